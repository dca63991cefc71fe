package kafka

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNotifier_EnqueuesVersionedEnvelope(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:9092"}, orders.TopicOrderCompleted, 4, zap.NewNop())
	n := NewNotifier(p, "order-api")

	require.NoError(t, n.NotifyOrderCompleted(context.Background(), 42))

	m := <-p.inbox
	assert.Equal(t, []byte("42"), m.Key)

	env, err := UnmarshalEnvelope(m.Value)
	require.NoError(t, err)
	assert.Equal(t, orders.EventOrderCompleted, env.EventType)
	assert.Equal(t, orders.EventVersion, env.EventVersion)
	assert.Equal(t, "order-api", env.Producer)
	assert.Equal(t, "42", env.CorrelationID)
	assert.NotEmpty(t, env.EventID)

	payload, err := UnwrapPayload[orders.OrderCompletedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(42), payload.OrderID)

	headers := map[string]string{}
	for _, h := range m.Headers {
		headers[h.Key] = string(h.Value)
	}
	assert.Equal(t, orders.EventOrderCompleted, headers["event_type"])
	assert.Equal(t, env.EventID, headers["event_id"])
}

func TestProducer_EnqueueNeverBlocks(t *testing.T) {
	p := NewProducer([]string{"127.0.0.1:9092"}, "t", 1, zap.NewNop())

	require.NoError(t, p.Enqueue([]byte("1"), []byte("a")))
	assert.ErrorIs(t, p.Enqueue([]byte("2"), []byte("b")), ErrQueueFull)

	p.Close()
	p.Close()
	assert.ErrorIs(t, p.Enqueue([]byte("3"), []byte("c")), ErrClosed)
}

func TestUnwrapPayload_Invalid(t *testing.T) {
	_, err := UnwrapPayload[orders.OrderCompletedPayload](json.RawMessage(`"nope"`))
	assert.Error(t, err)
	_, err = UnmarshalEnvelope([]byte("{"))
	assert.Error(t, err)
}
