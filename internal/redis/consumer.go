package redis

import (
	"context"
	"fmt"
	"sync"

	"github.com/koios/matrx-watchface/pkg/models"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WeatherChannel is the pub/sub channel the companion publishes weather on
func WeatherChannel(deviceID string) string {
	return fmt.Sprintf("weather:%s", deviceID)
}

// WeatherSource delivers weather updates published on the device's Redis
// channel. It is subscribed only while the face is visible.
type WeatherSource struct {
	client  *Client
	channel string
	logger  *zap.Logger

	mu     sync.Mutex
	pubsub *redis.PubSub
	done   chan struct{}
}

// NewWeatherSource creates an unsubscribed source for the device
func NewWeatherSource(client *Client, deviceID string, logger *zap.Logger) *WeatherSource {
	return &WeatherSource{
		client:  client,
		channel: WeatherChannel(deviceID),
		logger:  logger,
	}
}

func (s *WeatherSource) Name() string { return "redis" }

// Subscribe starts consuming in the background; the network round trip
// happens off the caller's goroutine
func (s *WeatherSource) Subscribe(ctx context.Context, deliver func(models.WeatherUpdate)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pubsub != nil {
		return nil
	}

	// no channels yet so nothing is sent here
	pubsub := s.client.client.Subscribe(ctx)
	done := make(chan struct{})
	s.pubsub = pubsub
	s.done = done

	go s.consume(ctx, pubsub, deliver, done)
	return nil
}

// Unsubscribe stops the consumer and waits for it to exit
func (s *WeatherSource) Unsubscribe() error {
	s.mu.Lock()
	pubsub, done := s.pubsub, s.done
	s.pubsub, s.done = nil, nil
	s.mu.Unlock()

	if pubsub == nil {
		return nil
	}
	err := pubsub.Close()
	<-done
	if err != nil {
		return fmt.Errorf("failed to close weather subscription: %w", err)
	}
	return nil
}

func (s *WeatherSource) consume(ctx context.Context, pubsub *redis.PubSub, deliver func(models.WeatherUpdate), done chan struct{}) {
	defer close(done)

	if err := pubsub.Subscribe(ctx, s.channel); err != nil {
		if ctx.Err() != nil {
			return
		}
		// the channel below keeps retrying the connection
		s.logger.Warn("Failed to subscribe to weather channel, retrying in background",
			zap.String("channel", s.channel),
			zap.Error(err))
	}

	s.logger.Info("Started consuming weather updates", zap.String("channel", s.channel))

	msgs := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-msgs:
			if !ok {
				s.logger.Debug("Weather subscription closed", zap.String("channel", s.channel))
				return
			}
			s.handleMessage(msg, deliver)
		}
	}
}

// handleMessage processes a single pub/sub message
func (s *WeatherSource) handleMessage(msg *redis.Message, deliver func(models.WeatherUpdate)) {
	update, skipped, err := models.DecodeWeatherMessage([]byte(msg.Payload))
	if err != nil {
		s.logger.Warn("Ignoring malformed weather message",
			zap.String("channel", msg.Channel),
			zap.Error(err))
		return
	}
	if len(skipped) > 0 {
		s.logger.Debug("Ignoring non-string weather fields",
			zap.String("channel", msg.Channel),
			zap.Strings("keys", skipped))
	}
	if update.Empty() {
		return
	}
	deliver(update)
}
