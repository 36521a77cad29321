package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ExchangeName is the topic exchange carrying notification intents.
const ExchangeName = "medassign.notifications"

// AMQPEmitter publishes notification intents to RabbitMQ.
type AMQPEmitter struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewAMQPEmitter connects to RabbitMQ and declares the notification exchange.
func NewAMQPEmitter(url string, logger *slog.Logger) (*AMQPEmitter, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		ExchangeName, // name
		"topic",      // type
		true,         // durable
		false,        // auto-deleted
		false,        // internal
		false,        // no-wait
		nil,          // arguments
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	logger.Info("notification emitter connected", "exchange", ExchangeName)

	return &AMQPEmitter{
		conn:     conn,
		channel:  ch,
		exchange: ExchangeName,
		logger:   logger,
	}, nil
}

// Emit publishes the notification with its kind as routing key.
func (e *AMQPEmitter) Emit(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	err = e.channel.PublishWithContext(ctx,
		e.exchange,
		"notify."+string(n.Kind),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
	if err != nil {
		e.logger.Error("failed to publish notification", "kind", n.Kind, "error", err)
		return err
	}

	e.logger.Debug("notification published", "kind", n.Kind, "size", len(payload))
	return nil
}

// Close closes the emitter connection.
func (e *AMQPEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.channel != nil {
		if err := e.channel.Close(); err != nil {
			e.logger.Warn("error closing channel", "error", err)
		}
	}
	if e.conn != nil {
		if err := e.conn.Close(); err != nil {
			return err
		}
	}

	e.logger.Info("notification emitter closed")
	return nil
}
