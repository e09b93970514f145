package render

import (
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"sync"
)

// ErrNoFrame is returned when a frame is requested before the first paint
var ErrNoFrame = errors.New("no frame rendered yet")

// FrameBuffer is the device surface: every paint renders into a fresh image
// that replaces the previously presented frame
type FrameBuffer struct {
	bounds image.Rectangle
	fonts  *Fonts

	mu      sync.RWMutex
	latest  *image.RGBA
	frames  uint64
	present []func(*image.RGBA)
}

// NewFrameBuffer creates a surface of the given size
func NewFrameBuffer(width, height int, fonts *Fonts) *FrameBuffer {
	if width <= 0 {
		width = 320
	}
	if height <= 0 {
		height = 320
	}
	return &FrameBuffer{
		bounds: image.Rect(0, 0, width, height),
		fonts:  fonts,
	}
}

// OnPresent registers a hook called with every presented frame. Hooks run on
// the painting goroutine and must not block.
func (f *FrameBuffer) OnPresent(fn func(*image.RGBA)) {
	f.mu.Lock()
	f.present = append(f.present, fn)
	f.mu.Unlock()
}

func (f *FrameBuffer) Bounds() image.Rectangle {
	return f.bounds
}

// Paint renders one frame and presents it
func (f *FrameBuffer) Paint(drawFrame func(Canvas)) error {
	if f.fonts == nil {
		return fmt.Errorf("frame buffer has no fonts")
	}
	img := image.NewRGBA(f.bounds)
	drawFrame(NewGGCanvas(img, f.fonts))

	f.mu.Lock()
	f.latest = img
	f.frames++
	hooks := f.present
	f.mu.Unlock()

	for _, hook := range hooks {
		hook(img)
	}
	return nil
}

// Latest returns the last presented frame, or nil before the first paint.
// Presented frames are never drawn into again.
func (f *FrameBuffer) Latest() *image.RGBA {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest
}

// Frames returns the number of frames presented
func (f *FrameBuffer) Frames() uint64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.frames
}

// EncodePNG writes the latest frame as PNG
func (f *FrameBuffer) EncodePNG(w io.Writer) error {
	img := f.Latest()
	if img == nil {
		return ErrNoFrame
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}
	return nil
}
