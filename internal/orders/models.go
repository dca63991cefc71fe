package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleAdmin    Role = "ADMIN"
)

// User is owned by the identity subsystem; orders only reads it.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Principal is the caller identity as asserted by the auth layer.
// An empty Username means the request is unauthenticated.
type Principal struct {
	Username string
}

type Product struct {
	ID          int64           `json:"id"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

type Order struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"userId"`
	Username  string          `json:"username"`
	Status    Status          `json:"status"`
	Total     decimal.Decimal `json:"totalAmount"`
	Lines     []Line          `json:"items"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Line is exclusively owned by its Order. UnitPrice and ProductName are
// captured at placement time and never follow later catalog changes.
type Line struct {
	ID          int64           `json:"id"`
	OrderID     int64           `json:"orderId"`
	ProductID   int64           `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"price"`
}

// Subtotal is unrounded; rounding happens once on the order total.
func (l Line) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type ItemInput struct {
	ProductID int64 `json:"productId" validate:"gt=0"`
	Quantity  int   `json:"quantity"  validate:"gt=0"`
}

type PlaceOrderInput struct {
	Items []ItemInput `json:"items" validate:"required,min=1,dive"`
}
