package orders

import "context"

// Ledger is the stock side of a placement transaction. Holds taken by
// LockProducts last until the enclosing transaction commits or rolls back.
type Ledger interface {
	// LockProducts takes exclusive holds in ascending id order and returns
	// the rows that exist. Missing ids are simply absent from the map.
	LockProducts(ctx context.Context, ids []int64) (map[int64]Product, error)
	// DecreaseStock requires a hold on id from the same transaction.
	DecreaseStock(ctx context.Context, id int64, qty int) (int, error)
}

// Tx is one atomic unit of work against storage.
type Tx interface {
	Ledger
	// InsertOrder persists o and its lines, filling in generated ids.
	InsertOrder(ctx context.Context, o *Order) error
}

type ListFilter struct {
	UserID *int64
	Status *Status
	Page   Page
}

type Store interface {
	// WithinTx runs fn in a transaction; fn returning an error rolls back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
	UserByUsername(ctx context.Context, username string) (User, error)
	OrderByID(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, f ListFilter) (PageResult, error)
	SaveOrderStatus(ctx context.Context, o *Order) error
}

// Notifier receives the id of every committed order. Implementations must
// not block the caller for long; delivery is best effort.
type Notifier interface {
	NotifyOrderCompleted(ctx context.Context, orderID int64) error
}

// CacheInvalidator drops cached product rows after stock changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, productIDs ...int64)
}
