// Package notify combines order-completion notifiers.
package notify

import (
	"context"
	"errors"
	"sync"

	"github.com/ariefcatur/orderstream/internal/orders"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Multi delivers to every notifier concurrently. One failing target does
// not stop the others; all failures are returned joined.
type Multi []orders.Notifier

func (m Multi) NotifyOrderCompleted(ctx context.Context, orderID int64) error {
	var (
		g    errgroup.Group
		mu   sync.Mutex
		errs []error
	)
	for _, n := range m {
		g.Go(func() error {
			if err := n.NotifyOrderCompleted(ctx, orderID); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// Log only records the completion. It is the fallback when no transport is
// configured.
type Log struct {
	L *zap.Logger
}

func (l Log) NotifyOrderCompleted(_ context.Context, orderID int64) error {
	l.L.Info("order completed", zap.Int64("order_id", orderID))
	return nil
}

// Func adapts a function to orders.Notifier.
type Func func(ctx context.Context, orderID int64) error

func (f Func) NotifyOrderCompleted(ctx context.Context, orderID int64) error { return f(ctx, orderID) }
