package face

import (
	"context"
	"image"
	"image/color"
	"sync"
	"testing"
	"time"

	"code.cloudfoundry.org/clock/fakeclock"
	"github.com/goodsign/monday"
	"github.com/koios/matrx-watchface/internal/ingest"
	"github.com/koios/matrx-watchface/internal/render"
	"github.com/koios/matrx-watchface/pkg/models"
	"go.uber.org/zap"
)

var (
	testBackground    = color.RGBA{R: 0x03, G: 0xA9, B: 0xF4, A: 0xff}
	testBackgroundAlt = color.RGBA{R: 0x02, G: 0x88, B: 0xD1, A: 0xff}
)

func testTheme(t *testing.T) *models.Theme {
	t.Helper()
	layout := models.Layout{
		TimeX: 10, TimeY: 40, DateX: 10, DateY: 60,
		HighX: 40, LowX: 80, WeatherY: 100,
		TimeTextSize: 30, DateTextSize: 10, TemperatureTextSize: 14,
	}
	theme := &models.Theme{
		Colors: models.ThemeColors{
			Background:    "#03A9F4",
			BackgroundAlt: "#0288D1",
			Text:          "#FFFFFF",
		},
		Square: layout,
		Round:  layout,
		Icon:   models.IconRect{Left: 5, Top: 80, Size: 20},
	}
	if err := theme.Validate(); err != nil {
		t.Fatalf("invalid test theme: %v", err)
	}
	return theme
}

type drawCall struct {
	kind  string
	text  string
	style render.TextStyle
	color color.Color
	rect  image.Rectangle
}

type recordingCanvas struct {
	calls []drawCall
}

func (c *recordingCanvas) Fill(r image.Rectangle, col color.Color) {
	c.calls = append(c.calls, drawCall{kind: "fill", rect: r, color: col})
}

func (c *recordingCanvas) DrawText(text string, x, y float64, style render.TextStyle) {
	c.calls = append(c.calls, drawCall{kind: "text", text: text, style: style})
}

func (c *recordingCanvas) DrawImage(img image.Image, dst image.Rectangle, smooth bool) {
	c.calls = append(c.calls, drawCall{kind: "image", rect: dst})
}

// recordingSurface keeps the draw calls of every frame
type recordingSurface struct {
	mu      sync.Mutex
	frames  [][]drawCall
	painted chan struct{}
}

func newRecordingSurface() *recordingSurface {
	return &recordingSurface{painted: make(chan struct{}, 64)}
}

func (s *recordingSurface) Bounds() image.Rectangle {
	return image.Rect(0, 0, 120, 120)
}

func (s *recordingSurface) Paint(drawFrame func(render.Canvas)) error {
	c := &recordingCanvas{}
	drawFrame(c)
	s.mu.Lock()
	s.frames = append(s.frames, c.calls)
	s.mu.Unlock()
	s.painted <- struct{}{}
	return nil
}

func (s *recordingSurface) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *recordingSurface) last(t *testing.T) []drawCall {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.frames) == 0 {
		t.Fatal("no frame painted")
	}
	return s.frames[len(s.frames)-1]
}

func (s *recordingSurface) waitForPaint(t *testing.T) {
	t.Helper()
	select {
	case <-s.painted:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a paint")
	}
}

func findText(calls []drawCall, text string) (drawCall, bool) {
	for _, c := range calls {
		if c.kind == "text" && c.text == text {
			return c, true
		}
	}
	return drawCall{}, false
}

func countKind(calls []drawCall, kind string) int {
	n := 0
	for _, c := range calls {
		if c.kind == kind {
			n++
		}
	}
	return n
}

// gatedFetcher blocks each fetch until its ref is released
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[string]chan struct{}
	data  []byte
}

func newGatedFetcher(data []byte, refs ...string) *gatedFetcher {
	f := &gatedFetcher{gates: make(map[string]chan struct{}), data: data}
	for _, ref := range refs {
		f.gates[ref] = make(chan struct{})
	}
	return f
}

func (f *gatedFetcher) release(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.gates[ref])
}

func (f *gatedFetcher) Fetch(ctx context.Context, ref string) ([]byte, error) {
	f.mu.Lock()
	gate, ok := f.gates[ref]
	f.mu.Unlock()
	if !ok {
		return nil, ingest.ErrAssetNotFound
	}
	select {
	case <-gate:
		return f.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type testHarness struct {
	engine  *Engine
	clock   *fakeclock.FakeClock
	push    *ingest.PushSource
	pool    *ingest.WorkerPool
	surface *recordingSurface
	peek    *render.PeekCardState
}

// stubDecode turns any payload into a 1x1 image tagged by its first byte
func stubDecode(data []byte) (image.Image, error) {
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	if len(data) > 0 {
		img.Pix[0] = data[0]
	}
	return img, nil
}

func newHarness(t *testing.T, fetcher ingest.AssetFetcher, workers int) *testHarness {
	t.Helper()
	logger := zap.NewNop()
	fc := fakeclock.NewFakeClock(time.Date(2024, 1, 15, 0, 5, 0, 0, time.UTC))

	pool := ingest.NewWorkerPool(workers, fetcher, stubDecode, time.Second, logger)
	pool.Start()
	t.Cleanup(pool.Stop)

	push := ingest.NewPushSource()
	pipeline := ingest.NewPipeline(pool, logger, push)
	surface := newRecordingSurface()
	peek := &render.PeekCardState{}

	engine := NewEngine(Options{
		Theme:    testTheme(t),
		Clock:    fc,
		Zone:     func() (*time.Location, monday.Locale) { return time.UTC, monday.LocaleEnUS },
		Weather:  pipeline,
		Surface:  surface,
		PeekCard: peek,
		Logger:   logger,
	})

	return &testHarness{
		engine:  engine,
		clock:   fc,
		push:    push,
		pool:    pool,
		surface: surface,
		peek:    peek,
	}
}

// drain handles every queued message the way the loop would
func (h *testHarness) drain() {
	for {
		select {
		case msg := <-h.engine.inbox:
			h.engine.handle(msg)
		default:
			return
		}
	}
}

func (h *testHarness) awaitDecode(t *testing.T) ingest.DecodeResult {
	t.Helper()
	select {
	case r := <-h.pool.Results():
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for decode result")
		return ingest.DecodeResult{}
	}
}

func strPtr(s string) *string { return &s }
