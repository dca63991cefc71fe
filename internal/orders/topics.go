package orders

import "strconv"

const (
	TopicOrderCompleted = "order.completed"
	QueueOrderCompleted = "queue:order-complete"
)

// PartitionKey keeps all events of one order on the same partition.
func PartitionKey(orderID int64) []byte { return []byte(strconv.FormatInt(orderID, 10)) }
