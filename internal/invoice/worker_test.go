package invoice

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/ariefcatur/orderstream/internal/memstore"
	"github.com/ariefcatur/orderstream/internal/orders"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func (d *memDedup) Claim(_ context.Context, id string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[id] {
		return false, nil
	}
	d.seen[id] = true
	return true, nil
}

func (d *memDedup) Release(_ context.Context, id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, id)
	return nil
}

func placeDemoOrder(t *testing.T) (*memstore.Store, *orders.Order) {
	t.Helper()
	mem := memstore.New()
	require.NoError(t, mem.SeedDemo(context.Background()))
	svc := &orders.Service{Store: mem}
	o, err := svc.PlaceOrder(context.Background(), orders.Principal{Username: "alice"}, orders.PlaceOrderInput{
		Items: []orders.ItemInput{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 1}},
	})
	require.NoError(t, err)
	return mem, o
}

func message(t *testing.T, orderID int64) kafkago.Message {
	t.Helper()
	env, err := orders.NewOrderCompleted("test", orderID, "", time.Now())
	require.NoError(t, err)
	b, err := json.Marshal(env)
	require.NoError(t, err)
	return kafkago.Message{Value: b}
}

func TestWorker_IssuesOncePerEvent(t *testing.T) {
	mem, o := placeDemoOrder(t)

	var issued []Invoice
	w := &Worker{
		Orders: mem,
		Dedup:  &memDedup{seen: map[string]bool{}},
		Log:    zap.NewNop(),
		Issued: func(inv Invoice) { issued = append(issued, inv) },
	}

	m := message(t, o.ID)
	require.NoError(t, w.HandleOrderCompleted(context.Background(), m))
	require.NoError(t, w.HandleOrderCompleted(context.Background(), m))

	require.Len(t, issued, 1)
	inv := issued[0]
	assert.Equal(t, o.ID, inv.OrderID)
	assert.Equal(t, "alice", inv.Username)
	assert.Equal(t, 2, inv.Lines)
	assert.Equal(t, 3, inv.Units)
	assert.Equal(t, "214.48", inv.Total.StringFixed(2))
}

func TestWorker_FailedEventCanBeRetried(t *testing.T) {
	mem := memstore.New()
	dedup := &memDedup{seen: map[string]bool{}}
	w := &Worker{Orders: mem, Dedup: dedup, Log: zap.NewNop()}

	err := w.HandleOrderCompleted(context.Background(), message(t, 77))
	assert.ErrorIs(t, err, orders.ErrOrderNotFound)
	assert.Empty(t, dedup.seen)
}

func TestWorker_IgnoresOtherEvents(t *testing.T) {
	w := &Worker{Orders: memstore.New(), Dedup: &memDedup{seen: map[string]bool{}}, Log: zap.NewNop()}

	b, err := json.Marshal(orders.Envelope{EventID: "x", EventType: "OrderShipped"})
	require.NoError(t, err)
	assert.NoError(t, w.HandleOrderCompleted(context.Background(), kafkago.Message{Value: b}))

	assert.Error(t, w.HandleOrderCompleted(context.Background(), kafkago.Message{Value: []byte("not json")}))
}
