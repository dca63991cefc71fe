// Package invoice turns OrderCompleted events into invoices.
package invoice

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/ariefcatur/orderstream/internal/kafka"
	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/ariefcatur/orderstream/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type OrderLoader interface {
	OrderByID(ctx context.Context, id int64) (*orders.Order, error)
}

// Deduper remembers processed event ids. Release forgets one so a failed
// event can be retried.
type Deduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

type Invoice struct {
	OrderID  int64
	Username string
	Lines    int
	Units    int
	Total    decimal.Decimal
	IssuedAt time.Time
}

type Worker struct {
	Orders OrderLoader
	Dedup  Deduper
	Log    *zap.Logger
	// Issued, when set, receives every invoice after it is logged.
	Issued func(Invoice)
}

// HandleOrderCompleted is the consumer handler for order.completed.
// Unknown event types and duplicates are acknowledged without work.
func (w *Worker) HandleOrderCompleted(ctx context.Context, m kafkago.Message) error {
	env, err := kafkax.UnmarshalEnvelope(m.Value)
	if err != nil {
		return err
	}
	if env.EventType != orders.EventOrderCompleted {
		return nil
	}

	fresh, err := w.Dedup.Claim(ctx, env.EventID)
	if err != nil {
		return fmt.Errorf("dedup %s: %w", env.EventID, err)
	}
	if !fresh {
		w.Log.Debug("duplicate event skipped", zap.String("event_id", env.EventID))
		return nil
	}

	inv, err := w.issue(ctx, env)
	if err != nil {
		if rerr := w.Dedup.Release(context.WithoutCancel(ctx), env.EventID); rerr != nil {
			w.Log.Warn("dedup release failed", zap.String("event_id", env.EventID), zap.Error(rerr))
		}
		return err
	}

	w.Log.Info("invoice issued",
		zap.Int64("order_id", inv.OrderID),
		zap.String("user", inv.Username),
		zap.Int("lines", inv.Lines),
		zap.Int("units", inv.Units),
		zap.String("total", inv.Total.StringFixed(orders.MoneyScale)),
		zap.String("event_id", env.EventID),
		zap.String("trace_id", env.TraceID),
	)
	if w.Issued != nil {
		w.Issued(inv)
	}
	return nil
}

func (w *Worker) issue(ctx context.Context, env orders.Envelope) (Invoice, error) {
	p, err := kafkax.UnwrapPayload[orders.OrderCompletedPayload](env.Payload)
	if err != nil {
		return Invoice{}, err
	}
	o, err := w.Orders.OrderByID(ctx, p.OrderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		return Invoice{}, fmt.Errorf("order %d from event %s: %w", p.OrderID, env.EventID, err)
	}
	if err != nil {
		return Invoice{}, fmt.Errorf("load order %d: %w", p.OrderID, err)
	}

	inv := Invoice{
		OrderID:  o.ID,
		Username: o.Username,
		Lines:    len(o.Lines),
		Total:    o.Total,
		IssuedAt: time.Now().UTC(),
	}
	for _, l := range o.Lines {
		inv.Units += l.Quantity
	}
	return inv, nil
}

// RedisDedup keeps processed event ids in Redis for redisx.TTLDedup.
type RedisDedup struct {
	RDB     *redis.Client
	Service string
}

func (d RedisDedup) Claim(ctx context.Context, eventID string) (bool, error) {
	return redisx.Claim(ctx, d.RDB, redisx.DedupKey(d.Service, eventID), redisx.TTLDedup)
}

func (d RedisDedup) Release(ctx context.Context, eventID string) error {
	return d.RDB.Del(ctx, redisx.DedupKey(d.Service, eventID)).Err()
}
