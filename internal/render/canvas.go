package render

import (
	"image"
	"image/color"
	"sync"
)

// TextStyle configures a single text draw
type TextStyle struct {
	Color     color.Color
	Size      float64
	Bold      bool
	AntiAlias bool
}

// Canvas is the drawing capability a frame is painted onto. Text y offsets
// are baselines.
type Canvas interface {
	Fill(r image.Rectangle, c color.Color)
	DrawText(text string, x, y float64, style TextStyle)
	DrawImage(img image.Image, dst image.Rectangle, smooth bool)
}

// PeekCard reports the screen area covered by a transient system overlay.
// An empty rectangle means no card is showing.
type PeekCard interface {
	PeekCardBounds() image.Rectangle
}

// PeekCardState is a PeekCard updated from outside the render loop
type PeekCardState struct {
	mu     sync.RWMutex
	bounds image.Rectangle
}

// Set records the area currently covered by a peek card
func (p *PeekCardState) Set(r image.Rectangle) {
	p.mu.Lock()
	p.bounds = r.Canon()
	p.mu.Unlock()
}

// Clear records that no peek card is showing
func (p *PeekCardState) Clear() {
	p.Set(image.Rectangle{})
}

func (p *PeekCardState) PeekCardBounds() image.Rectangle {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.bounds
}
