// Package amqpx publishes order events to RabbitMQ.
package amqpx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/ariefcatur/orderstream/internal/orders"
	"github.com/streadway/amqp"
)

type Client struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	mu   sync.Mutex // amqp.Channel is not safe for concurrent publishes
}

func Dial(url string) (*Client, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	return &Client{conn: conn, ch: ch}, nil
}

func (c *Client) Close() error {
	if c.ch != nil {
		if err := c.ch.Close(); err != nil {
			return err
		}
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

func (c *Client) DeclareDurable(name string) (amqp.Queue, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.QueueDeclare(name, true, false, false, false, nil)
}

func (c *Client) Publish(queue string, body []byte, messageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ch.Publish("", queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
}

// Notifier publishes OrderCompleted envelopes to a durable queue named
// after the Kafka topic.
type Notifier struct {
	c       *Client
	queue   string
	service string
}

func NewNotifier(c *Client, service string) (*Notifier, error) {
	q, err := c.DeclareDurable(orders.TopicOrderCompleted)
	if err != nil {
		return nil, fmt.Errorf("declare %s: %w", orders.TopicOrderCompleted, err)
	}
	return &Notifier{c: c, queue: q.Name, service: service}, nil
}

func (n *Notifier) NotifyOrderCompleted(ctx context.Context, orderID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	env, err := orders.NewOrderCompleted(n.service, orderID, "", time.Now())
	if err != nil {
		return err
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	if err := n.c.Publish(n.queue, body, env.EventID); err != nil {
		return fmt.Errorf("publish %s: %w", n.queue, err)
	}
	return nil
}
