package reassign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker/v2"
)

const (
	// ExchangeName is the topic exchange carrying reassignment requests.
	ExchangeName = "medassign.matching"

	// RoutingKey addresses the matching collaborator's request queue.
	RoutingKey = "matching.reassignment.requested"
)

// ErrMatcherUnavailable is returned while the breaker is open.
var ErrMatcherUnavailable = errors.New("matching collaborator unavailable")

// AMQPRequester publishes reassignment requests to RabbitMQ, guarded by a
// circuit breaker so a hung broker cannot stall the expiration sweep.
type AMQPRequester struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	breaker  *gobreaker.CircuitBreaker[any]
	timeout  time.Duration
	logger   *slog.Logger
	mu       sync.Mutex
}

// NewAMQPRequester connects to RabbitMQ and declares the matching exchange.
func NewAMQPRequester(url string, callTimeout time.Duration, logger *slog.Logger) (*AMQPRequester, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if callTimeout <= 0 {
		callTimeout = 5 * time.Second
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
		ExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	settings := gobreaker.Settings{
		Name:        "reassign",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info("circuit breaker state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	}

	logger.Info("reassignment requester connected", "exchange", ExchangeName)

	return &AMQPRequester{
		conn:    conn,
		channel: ch,
		breaker: gobreaker.NewCircuitBreaker[any](settings),
		timeout: callTimeout,
		logger:  logger,
	}, nil
}

// Request publishes the reassignment request through the breaker.
func (r *AMQPRequester) Request(ctx context.Context, req Request) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode reassignment request: %w", err)
	}

	_, err = r.breaker.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		return nil, r.publish(callCtx, payload)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrMatcherUnavailable
	}
	if err != nil {
		r.logger.Error("failed to publish reassignment request", "case_id", req.CaseID, "error", err)
		return err
	}

	r.logger.Debug("reassignment requested",
		"case_id", req.CaseID,
		"excluded", len(req.ExcludedDoctorIDs),
		"attempt", req.Attempt,
	)
	return nil
}

func (r *AMQPRequester) publish(ctx context.Context, payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.channel.PublishWithContext(ctx,
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			Body:         payload,
		},
	)
}

// Close closes the requester connection.
func (r *AMQPRequester) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.channel != nil {
		if err := r.channel.Close(); err != nil {
			r.logger.Warn("error closing channel", "error", err)
		}
	}
	if r.conn != nil {
		if err := r.conn.Close(); err != nil {
			return err
		}
	}

	r.logger.Info("reassignment requester closed")
	return nil
}
