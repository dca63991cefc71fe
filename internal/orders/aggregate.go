package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the currency minor unit (cents).
const MoneyScale = 2

// LineDraft is a validated request line with the unit price captured from
// the locked product row.
type LineDraft struct {
	ProductID   int64
	ProductName string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Build assembles a PENDING order. It does not touch storage.
func Build(user User, drafts []LineDraft, now time.Time) (*Order, error) {
	if len(drafts) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", ErrInvalidRequest)
	}
	lines := make([]Line, 0, len(drafts))
	for _, d := range drafts {
		if d.Quantity <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %d must be positive", ErrInvalidRequest, d.ProductID)
		}
		lines = append(lines, Line{
			ProductID:   d.ProductID,
			ProductName: d.ProductName,
			Quantity:    d.Quantity,
			UnitPrice:   d.UnitPrice,
		})
	}
	return &Order{
		UserID:    user.ID,
		Username:  user.Username,
		Status:    StatusPending,
		Total:     Total(lines),
		Lines:     lines,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// Total sums price × quantity exactly and rounds the sum once, half-up, to
// the minor unit.
func Total(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Subtotal())
	}
	return sum.Round(MoneyScale)
}

// SetStatus overwrites the status. Any known status may follow any other.
func (o *Order) SetStatus(s Status, now time.Time) error {
	if !s.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidRequest, s)
	}
	o.Status = s
	o.UpdatedAt = now
	return nil
}
