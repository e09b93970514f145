package ingest

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 0xff, A: 0xff})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

type countingFetcher struct {
	calls atomic.Int32
	data  []byte
	err   error
}

func (f *countingFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

func TestDecodeImage(t *testing.T) {
	img, err := DecodeImage(encodePNG(t, 3, 2))
	if err != nil {
		t.Fatalf("DecodeImage() error = %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 3, 2) {
		t.Errorf("bounds = %v, want 3x2", img.Bounds())
	}

	if _, err := DecodeImage(nil); err == nil {
		t.Error("expected error for empty data")
	}
	if _, err := DecodeImage([]byte("not an image")); err == nil {
		t.Error("expected error for garbage data")
	}
}

func TestFallbackFetcher(t *testing.T) {
	missing := &countingFetcher{err: ErrAssetNotFound}
	found := &countingFetcher{data: []byte("icon")}
	never := &countingFetcher{data: []byte("other")}

	data, err := FallbackFetcher{missing, found, never}.Fetch(context.Background(), "sun")
	if err != nil {
		t.Fatalf("Fetch() error = %v", err)
	}
	if string(data) != "icon" {
		t.Errorf("Fetch() = %q, want icon", data)
	}
	if never.calls.Load() != 0 {
		t.Error("fetchers after a hit must not be called")
	}

	_, err = FallbackFetcher{missing}.Fetch(context.Background(), "sun")
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("Fetch() error = %v, want ErrAssetNotFound", err)
	}
	_, err = FallbackFetcher{}.Fetch(context.Background(), "sun")
	if !errors.Is(err, ErrAssetNotFound) {
		t.Errorf("empty FallbackFetcher error = %v, want ErrAssetNotFound", err)
	}
}

func TestBreakerFetcherOpensOnFailures(t *testing.T) {
	failing := &countingFetcher{err: errors.New("connection refused")}
	b := NewBreakerFetcher("test", failing, 2, time.Minute, zap.NewNop())

	for i := 0; i < 2; i++ {
		if _, err := b.Fetch(context.Background(), "sun"); err == nil {
			t.Fatal("expected fetch error")
		}
	}
	if b.State() != gobreaker.StateOpen {
		t.Fatalf("breaker state = %s, want open", b.State())
	}

	_, err := b.Fetch(context.Background(), "sun")
	if !errors.Is(err, gobreaker.ErrOpenState) {
		t.Errorf("Fetch() with open breaker error = %v, want ErrOpenState", err)
	}
	if failing.calls.Load() != 2 {
		t.Errorf("open breaker must not call through, calls = %d", failing.calls.Load())
	}
}

func TestBreakerFetcherIgnoresMissingAssets(t *testing.T) {
	missing := &countingFetcher{err: ErrAssetNotFound}
	b := NewBreakerFetcher("test", missing, 2, time.Minute, zap.NewNop())

	for i := 0; i < 5; i++ {
		if _, err := b.Fetch(context.Background(), "sun"); !errors.Is(err, ErrAssetNotFound) {
			t.Fatalf("Fetch() error = %v, want ErrAssetNotFound", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Errorf("missing assets must not trip the breaker, state = %s", b.State())
	}
}

// ctxFetcher serves every ref unless the caller's context is done
type ctxFetcher struct {
	calls atomic.Int32
}

func (f *ctxFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []byte(ref), nil
}

func TestBreakerFetcherIgnoresCancelledSessions(t *testing.T) {
	store := &ctxFetcher{}
	b := NewBreakerFetcher("test", store, 5, time.Minute, zap.NewNop())

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	for i := 0; i < 5; i++ {
		if _, err := b.Fetch(cancelled, "sun"); !errors.Is(err, context.Canceled) {
			t.Fatalf("Fetch() error = %v, want context.Canceled", err)
		}
	}
	if b.State() != gobreaker.StateClosed {
		t.Fatalf("cancelled fetches must not trip the breaker, state = %s", b.State())
	}

	data, err := b.Fetch(context.Background(), "sun")
	if err != nil || string(data) != "sun" {
		t.Errorf("Fetch() = %q, %v; want the healthy store to answer", data, err)
	}
}

func TestBreakerFetcherCountsTimeouts(t *testing.T) {
	store := &ctxFetcher{}
	b := NewBreakerFetcher("test", store, 2, time.Minute, zap.NewNop())

	expired, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	for i := 0; i < 2; i++ {
		b.Fetch(expired, "sun")
	}
	if b.State() != gobreaker.StateOpen {
		t.Errorf("timed out fetches should trip the breaker, state = %s", b.State())
	}
}
