/**
 * @description
 * A RabbitMQ consumer that declares a topic exchange, a durable queue bound to
 * one routing key, and hands each delivery to a callback.
 *
 * The callback decides acknowledgment: true acks, false nacks with requeue.
 * RunWithReconnect keeps a subscription alive across broker restarts.
 *
 * @dependencies
 * - github.com/rabbitmq/amqp091-go: The official Go client for RabbitMQ.
 */
package rabbitmq

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/rabbitmq/amqp091-go"
)

// Consumer handles the connection and consumption of messages from RabbitMQ.
type Consumer struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

// NewConsumer creates a new RabbitMQ consumer.
func NewConsumer(amqpURL string) (*Consumer, error) {
	conn, ch, err := dial(amqpURL)
	if err != nil {
		return nil, err
	}
	return &Consumer{conn: conn, channel: ch}, nil
}

// MessageHandler processes a single RabbitMQ message.
// It should return true to acknowledge (ack) the message, or false to reject (nack) and requeue it.
type MessageHandler func(body []byte) bool

// ErrDeliveriesClosed is returned by Consume when the broker closes the delivery channel.
var ErrDeliveriesClosed = errors.New("rabbitmq delivery channel closed")

// Consume binds queueName to exchange with routingKey and processes messages
// until ctx is cancelled or the broker closes the channel.
func (c *Consumer) Consume(ctx context.Context, exchange, queueName, routingKey string, handler MessageHandler) error {
	if err := c.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		return err
	}

	q, err := c.channel.QueueDeclare(
		queueName, // name
		true,      // durable
		false,     // delete when unused
		false,     // exclusive
		false,     // no-wait
		nil,       // arguments
	)
	if err != nil {
		return err
	}

	if err := c.channel.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return err
	}

	// Prefetch one delivery at a time.
	if err := c.channel.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := c.channel.Consume(
		q.Name, // queue
		"",     // consumer
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return err
	}

	log.Printf("level=info component=rabbitmq_consumer msg=\"consuming\" exchange=%s queue=%s routing_key=%s", exchange, q.Name, routingKey)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return ErrDeliveriesClosed
			}
			if handler(d.Body) {
				if err := d.Ack(false); err != nil {
					log.Printf("level=warn component=rabbitmq_consumer msg=\"ack failed\" routing_key=%s err=%v", d.RoutingKey, err)
				}
				continue
			}
			log.Printf("level=warn component=rabbitmq_consumer msg=\"handler failed; re-queuing\" routing_key=%s", d.RoutingKey)
			if err := d.Nack(false, true); err != nil {
				log.Printf("level=warn component=rabbitmq_consumer msg=\"nack failed\" routing_key=%s err=%v", d.RoutingKey, err)
			}
		}
	}
}

// Subscriber is a connected consumer. *Consumer implements it.
type Subscriber interface {
	Consume(ctx context.Context, exchange, queueName, routingKey string, handler MessageHandler) error
	Close()
}

const maxReconnectBackoff = 30 * time.Second

// RunWithReconnect consumes queueName until ctx is cancelled. Whenever the
// connection cannot be made or the subscription ends with an error, it waits
// and connects again. The wait starts at backoff and doubles up to 30s; it
// resets after a subscription that was consuming until the broker closed it.
func RunWithReconnect(ctx context.Context, connect func() (Subscriber, error), exchange, queueName, routingKey string, handler MessageHandler, backoff time.Duration) {
	wait := backoff
	for {
		sub, err := connect()
		if err == nil {
			err = sub.Consume(ctx, exchange, queueName, routingKey, handler)
			sub.Close()
		}
		if ctx.Err() != nil {
			return
		}

		if errors.Is(err, ErrDeliveriesClosed) {
			wait = backoff
		}
		log.Printf("level=warn component=rabbitmq_consumer msg=\"subscription lost; reconnecting\" queue=%s retry_in=%s err=%v", queueName, wait, err)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		wait *= 2
		if wait > maxReconnectBackoff {
			wait = maxReconnectBackoff
		}
	}
}

// Close gracefully closes the channel and connection.
func (c *Consumer) Close() {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		c.conn.Close()
	}
}
