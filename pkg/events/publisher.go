package events

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

const NotificationExchange = "notification_events"

// Publisher hands a notification to whatever transport delivers it.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body interface{}) error
	Close()
}

// Envelope is the queued form of a notification.
type Envelope struct {
	RoutingKey string          `json:"routing_key"`
	Body       json.RawMessage `json:"body"`
	Attempts   int             `json:"attempts"`
	CreatedAt  time.Time       `json:"created_at"`
}

// RedisPublisher queues envelopes on the notification list consumed by the
// in-process worker.
type RedisPublisher struct {
	redis *RedisClient
}

func NewRedisPublisher(r *RedisClient) *RedisPublisher {
	return &RedisPublisher{redis: r}
}

func (p *RedisPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	return p.redis.Push(ctx, NotificationQueue, Envelope{
		RoutingKey: routingKey,
		Body:       raw,
		CreatedAt:  time.Now().UTC(),
	})
}

func (p *RedisPublisher) Close() {}

// AMQPPublisher publishes to a durable topic exchange.
type AMQPPublisher struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

func NewAMQPPublisher(amqpURL string) (*AMQPPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	if err := ch.ExchangeDeclare(NotificationExchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	return &AMQPPublisher{conn: conn, channel: ch}, nil
}

func (p *AMQPPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		Timestamp:    time.Now(),
		Body:         raw,
	}

	err = p.channel.PublishWithContext(ctx, NotificationExchange, routingKey, false, false, msg)
	if err == nil {
		return nil
	}

	// one reopen attempt; a closed channel is the usual cause
	logger.Warn("AMQP publish failed, reopening channel", logger.Merge(logger.WithError(err), logger.Fields{"routing_key": routingKey}))
	ch, chErr := p.conn.Channel()
	if chErr != nil {
		return chErr
	}
	p.channel = ch
	return p.channel.PublishWithContext(ctx, NotificationExchange, routingKey, false, false, msg)
}

func (p *AMQPPublisher) Close() {
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NopPublisher drops everything; used when no transport is reachable at
// startup.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, routingKey string, body interface{}) error {
	logger.Warn("Notification publish skipped, no transport", logger.Fields{"routing_key": routingKey})
	return nil
}

func (NopPublisher) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}
