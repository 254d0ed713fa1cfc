package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/goizzi/backoffice-service/internal/domain"
)

// Publisher is the interface implemented by types that can publish messages.
type Publisher interface {
	Publish(ctx context.Context, exchange, routingKey string, body interface{}) error
	Close()
}

// EventProducer publishes JSON messages to durable topic exchanges.
type EventProducer struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *logrus.Logger
}

// EventProducerFallback logs messages instead of publishing them. It is used when
// RabbitMQ is unreachable at startup so the service can still serve requests.
type EventProducerFallback struct {
	Logger *logrus.Logger
}

func (p *EventProducerFallback) Publish(_ context.Context, exchange, routingKey string, body interface{}) error {
	if p.Logger != nil {
		p.Logger.WithFields(logrus.Fields{
			"component":   "mq-fallback",
			"exchange":    exchange,
			"routing_key": routingKey,
		}).Debugf("would publish %v", body)
	}
	return nil
}

func (p *EventProducerFallback) Close() {}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	// Drop stray characters in front of the scheme.
	idx := strings.Index(strings.ToLower(clean), "amqp")
	if idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewEventProducer dials RabbitMQ with a bounded timeout and opens a channel.
func NewEventProducer(amqpURL string, logger *logrus.Logger) (*EventProducer, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp.DialConfig(cleanURL, amqp.Config{Dial: amqp.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return &EventProducer{conn: conn, channel: ch, logger: logger}, nil
}

func (p *EventProducer) reopenChannel(exchange string) error {
	if p.conn == nil {
		return amqp.ErrClosed
	}
	ch, err := p.conn.Channel()
	if err != nil {
		return err
	}
	p.channel = ch
	return p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil)
}

// Publish declares the exchange and publishes body as JSON. A failed publish is retried
// once on a fresh channel.
func (p *EventProducer) Publish(ctx context.Context, exchange, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}
	log := p.logger.WithFields(logrus.Fields{"component": "rabbitmq", "exchange": exchange, "routing_key": routingKey})

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.channel.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		log.WithError(err).Warn("failed to declare exchange; reopening channel")
		if err := p.reopenChannel(exchange); err != nil {
			return err
		}
	}

	msg := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
		Body:         jsonBody,
	}
	if err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
		log.WithError(err).Warn("publish failed; retrying on a fresh channel")
		if reopenErr := p.reopenChannel(exchange); reopenErr != nil {
			return err
		}
		if err := p.channel.PublishWithContext(ctx, exchange, routingKey, false, false, msg); err != nil {
			return err
		}
	}

	log.Debug("published message")
	return nil
}

// Close closes the channel and the connection.
func (p *EventProducer) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		_ = p.channel.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
}

// EventBus publishes back-office events to one exchange, routed by event type.
type EventBus struct {
	publisher Publisher
	exchange  string
}

func NewEventBus(publisher Publisher, exchange string) *EventBus {
	return &EventBus{publisher: publisher, exchange: exchange}
}

func (b *EventBus) PublishEvent(ctx context.Context, event domain.BackofficeEvent) error {
	return b.publisher.Publish(ctx, b.exchange, event.EventType, event)
}

func (b *EventBus) Close() {
	b.publisher.Close()
}
