package redisx

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/redis/go-redis/v9"
)

// QueueNotifier pushes completed order ids onto a Redis list for workers
// that poll it.
type QueueNotifier struct {
	rdb  *redis.Client
	list string
}

func NewQueueNotifier(rdb *redis.Client) *QueueNotifier {
	return &QueueNotifier{rdb: rdb, list: orders.QueueOrderCompleted}
}

func (q *QueueNotifier) NotifyOrderCompleted(ctx context.Context, orderID int64) error {
	if err := q.rdb.RPush(ctx, q.list, strconv.FormatInt(orderID, 10)).Err(); err != nil {
		return fmt.Errorf("rpush %s: %w", q.list, err)
	}
	return nil
}
