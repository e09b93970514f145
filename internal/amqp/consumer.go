package amqp

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/koios/matrx-watchface/pkg/models"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	initialRetryDelay = time.Second
	maxRetryDelay     = 30 * time.Second
)

// Acknowledger settles a delivery; amqp.Delivery satisfies it
type Acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// WeatherSource consumes the device's weather queue while subscribed,
// reconnecting with exponential backoff
type WeatherSource struct {
	conn     *Connection
	deviceID string
	logger   *zap.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewWeatherSource creates an unsubscribed source
func NewWeatherSource(conn *Connection, deviceID string, logger *zap.Logger) *WeatherSource {
	return &WeatherSource{
		conn:     conn,
		deviceID: deviceID,
		logger:   logger,
	}
}

func (s *WeatherSource) Name() string { return "amqp" }

// Subscribe starts the consume loop in the background
func (s *WeatherSource) Subscribe(ctx context.Context, deliver func(models.WeatherUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	go func() {
		defer close(done)
		if err := s.run(ctx, deliver); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Error("Weather consumer stopped", zap.Error(err))
		}
	}()
	return nil
}

// Unsubscribe cancels the consume loop and waits for it to exit
func (s *WeatherSource) Unsubscribe() error {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// run consumes with automatic reconnection until ctx is cancelled
func (s *WeatherSource) run(ctx context.Context, deliver func(models.WeatherUpdate)) error {
	retryDelay := initialRetryDelay
	retryCount := 0

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		consumed, err := s.startConsuming(ctx, deliver)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if consumed {
			// Reset retry delay after a session that got going
			retryDelay = initialRetryDelay
			retryCount = 0
		}

		retryCount++
		s.logger.Error("Weather consumer failed, will retry after delay",
			zap.Error(err),
			zap.String("queue", QueueName(s.deviceID)),
			zap.Int("retry_count", retryCount),
			zap.Duration("retry_delay", retryDelay))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryDelay):
			retryDelay = nextRetryDelay(retryDelay)
		}
	}
}

// nextRetryDelay grows the delay by half, capped at maxRetryDelay
func nextRetryDelay(d time.Duration) time.Duration {
	d = time.Duration(float64(d) * 1.5)
	if d > maxRetryDelay {
		d = maxRetryDelay
	}
	return d
}

// startConsuming handles a single consumption session. It reports whether
// the consumer was registered before the session ended.
func (s *WeatherSource) startConsuming(ctx context.Context, deliver func(models.WeatherUpdate)) (bool, error) {
	if err := s.conn.EnsureConnection(); err != nil {
		return false, fmt.Errorf("failed to ensure connection: %w", err)
	}

	queue, err := s.conn.DeclareDeviceQueue(s.deviceID)
	if err != nil {
		s.conn.forceClose()
		return false, err
	}

	consumerTag := fmt.Sprintf("watchface-%s-%s", s.deviceID, uuid.NewString())
	msgs, err := s.conn.Consume(queue, consumerTag)
	if err != nil {
		// If consume fails, force a reconnection on next attempt
		s.logger.Warn("Failed to register consumer, forcing reconnection",
			zap.Error(err),
			zap.String("queue", queue))
		s.conn.forceClose()
		return false, fmt.Errorf("failed to register consumer: %w", err)
	}

	s.logger.Info("Started consuming weather updates",
		zap.String("queue", queue),
		zap.String("consumer_tag", consumerTag))

	for {
		select {
		case <-ctx.Done():
			if err := s.conn.Cancel(consumerTag); err != nil {
				s.logger.Warn("Failed to cancel consumer", zap.Error(err))
			}
			return true, ctx.Err()
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Warn("Message channel closed, will reconnect")
				return true, fmt.Errorf("message channel closed")
			}
			s.handleMessage(msg.Body, msg.RoutingKey, &msg, deliver)
		}
	}
}

// handleMessage processes a single delivery. Malformed payloads are dropped
// without requeueing.
func (s *WeatherSource) handleMessage(body []byte, routingKey string, ack Acknowledger, deliver func(models.WeatherUpdate)) {
	update, skipped, err := models.DecodeWeatherMessage(body)
	if err != nil {
		s.logger.Warn("Ignoring malformed weather message",
			zap.String("routing_key", routingKey),
			zap.Error(err))
		if nackErr := ack.Nack(false, false); nackErr != nil {
			s.logger.Error("Failed to reject message", zap.Error(nackErr))
		}
		return
	}
	if len(skipped) > 0 {
		s.logger.Debug("Ignoring non-string weather fields",
			zap.String("routing_key", routingKey),
			zap.Strings("keys", skipped))
	}

	if !update.Empty() {
		deliver(update)
	}

	if ackErr := ack.Ack(false); ackErr != nil {
		s.logger.Error("Failed to acknowledge message",
			zap.Error(ackErr),
			zap.String("routing_key", routingKey))
	}
}

var _ Acknowledger = (*amqp.Delivery)(nil)
