package orders

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnauthenticated   = errors.New("unauthenticated")
	ErrUserNotFound      = errors.New("user not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAccessDenied      = errors.New("access denied")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrInvalidRequest    = errors.New("invalid request")
)

// ProductNotFoundError lists every requested id missing from the ledger.
type ProductNotFoundError struct {
	IDs []int64
}

func (e *ProductNotFoundError) Error() string {
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("product not found: %s", strings.Join(ids, ","))
}

func (e *ProductNotFoundError) Is(target error) bool { return target == ErrProductNotFound }

// InsufficientStockError is retryable: a replenishment may let the same
// request succeed later.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Requested int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d (%s): requested %d, available %d",
		e.ProductID, e.Name, e.Requested, e.Available)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// persistence wraps storage faults, leaving domain errors untouched so they
// keep their own kind when a store returns them.
func persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *PersistenceError
	if errors.As(err, &pe) || isDomain(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

func isDomain(err error) bool {
	for _, k := range []error{
		ErrUnauthenticated, ErrUserNotFound, ErrProductNotFound, ErrInsufficientStock,
		ErrAccessDenied, ErrOrderNotFound, ErrInvalidRequest,
	} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}
