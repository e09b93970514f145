package ingest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	// decoders for icon assets
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"
)

var (
	// ErrAssetNotFound is returned when an asset reference resolves to nothing
	ErrAssetNotFound = errors.New("asset not found")
)

// AssetFetcher resolves an asset reference to its bytes
type AssetFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Decoder turns asset bytes into an image
type Decoder func(data []byte) (image.Image, error)

// DecodeImage decodes png, jpeg, gif or webp data
func DecodeImage(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image data")
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decoded %s image is empty", format)
	}
	return img, nil
}

// FallbackFetcher tries each fetcher in order until one has the asset
type FallbackFetcher []AssetFetcher

func (f FallbackFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	var lastErr error = ErrAssetNotFound
	for _, fetcher := range f {
		data, err := fetcher.Fetch(ctx, ref)
		if err == nil {
			return data, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

// BreakerFetcher stops calling a failing asset store for a while so a dead
// link does not cost a full timeout per icon
type BreakerFetcher struct {
	next AssetFetcher
	cb   *gobreaker.CircuitBreaker
}

// NewBreakerFetcher wraps next with a circuit breaker that opens after
// maxFailures consecutive failures
func NewBreakerFetcher(name string, next AssetFetcher, maxFailures int, openFor time.Duration, logger *zap.Logger) *BreakerFetcher {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if openFor <= 0 {
		openFor = 30 * time.Second
	}
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(maxFailures)
		},
		// a missing asset is a valid answer from a healthy store, and a
		// cancelled session says nothing about the store at all
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrAssetNotFound) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Asset fetch circuit changed state",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	}
	return &BreakerFetcher{next: next, cb: gobreaker.NewCircuitBreaker(settings)}
}

func (b *BreakerFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	out, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.Fetch(ctx, ref)
	})
	if err != nil {
		return nil, err
	}
	return out.([]byte), nil
}

// State exposes the breaker state for health reporting
func (b *BreakerFetcher) State() gobreaker.State {
	return b.cb.State()
}
