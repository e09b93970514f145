package ingest

import (
	"context"
	"errors"
	"sync"

	"github.com/koios/matrx-watchface/pkg/models"
)

// ErrNotSubscribed is returned by PushSource.Push while the face is hidden
var ErrNotSubscribed = errors.New("weather channel is not subscribed")

// PushSource is an in-process weather source fed by the device host API
type PushSource struct {
	mu      sync.Mutex
	deliver func(models.WeatherUpdate)
}

func NewPushSource() *PushSource {
	return &PushSource{}
}

func (s *PushSource) Name() string { return "push" }

func (s *PushSource) Subscribe(_ context.Context, deliver func(models.WeatherUpdate)) error {
	s.mu.Lock()
	s.deliver = deliver
	s.mu.Unlock()
	return nil
}

func (s *PushSource) Unsubscribe() error {
	s.mu.Lock()
	s.deliver = nil
	s.mu.Unlock()
	return nil
}

// Push hands an update to the subscriber
func (s *PushSource) Push(u models.WeatherUpdate) error {
	s.mu.Lock()
	deliver := s.deliver
	s.mu.Unlock()

	if deliver == nil {
		return ErrNotSubscribed
	}
	deliver(u)
	return nil
}

// Subscribed reports whether a subscriber is attached
func (s *PushSource) Subscribed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deliver != nil
}
