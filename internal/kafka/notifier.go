package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/trace"
)

// Notifier publishes OrderCompleted envelopes through a Producer.
type Notifier struct {
	p       *Producer
	service string
}

func NewNotifier(p *Producer, service string) *Notifier {
	return &Notifier{p: p, service: service}
}

func (n *Notifier) NotifyOrderCompleted(ctx context.Context, orderID int64) error {
	var traceID string
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		traceID = sc.TraceID().String()
	}
	env, err := orders.NewOrderCompleted(n.service, orderID, traceID, time.Now())
	if err != nil {
		return err
	}
	b, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return n.p.Enqueue(orders.PartitionKey(orderID), b,
		kafka.Header{Key: "event_type", Value: []byte(env.EventType)},
		kafka.Header{Key: "event_id", Value: []byte(env.EventID)},
	)
}
