package orders

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCompleted = "OrderCompleted"

	EventVersion = 1
)

// Envelope wraps every event published about an order.
type Envelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"`
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // order id
	Payload       json.RawMessage `json:"payload"`
}

type OrderCompletedPayload struct {
	OrderID int64 `json:"order_id"`
}

// NewOrderCompleted builds the versioned completion event for orderID.
func NewOrderCompleted(producer string, orderID int64, traceID string, now time.Time) (Envelope, error) {
	payload, err := json.Marshal(OrderCompletedPayload{OrderID: orderID})
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{
		EventID:       uuid.NewString(),
		EventType:     EventOrderCompleted,
		EventVersion:  EventVersion,
		OccurredAt:    now.UTC(),
		Producer:      producer,
		TraceID:       traceID,
		CorrelationID: strconv.FormatInt(orderID, 10),
		Payload:       payload,
	}, nil
}
