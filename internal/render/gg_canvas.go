package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/math/fixed"
)

// Fonts caches truetype faces per size and weight
type Fonts struct {
	mu      sync.Mutex
	regular *truetype.Font
	bold    *truetype.Font
	faces   map[faceKey]font.Face
}

type faceKey struct {
	size float64
	bold bool
}

// LoadFonts parses the embedded Go fonts
func LoadFonts() (*Fonts, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("failed to parse bold font: %w", err)
	}
	return &Fonts{
		regular: regular,
		bold:    bold,
		faces:   make(map[faceKey]font.Face),
	}, nil
}

// Face returns a cached face for the given size and weight
func (f *Fonts) Face(size float64, bold bool) font.Face {
	f.mu.Lock()
	defer f.mu.Unlock()

	key := faceKey{size: size, bold: bold}
	if face, ok := f.faces[key]; ok {
		return face
	}

	ttf := f.regular
	if bold {
		ttf = f.bold
	}
	face := truetype.NewFace(ttf, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	f.faces[key] = face
	return face
}

// GGCanvas draws onto an RGBA image with gg
type GGCanvas struct {
	img   *image.RGBA
	dc    *gg.Context
	fonts *Fonts
}

// NewGGCanvas wraps img; drawing happens in place
func NewGGCanvas(img *image.RGBA, fonts *Fonts) *GGCanvas {
	return &GGCanvas{
		img:   img,
		dc:    gg.NewContextForRGBA(img),
		fonts: fonts,
	}
}

func (c *GGCanvas) Fill(r image.Rectangle, col color.Color) {
	c.dc.SetColor(col)
	c.dc.DrawRectangle(float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()))
	c.dc.Fill()
}

func (c *GGCanvas) DrawText(text string, x, y float64, style TextStyle) {
	if text == "" {
		return
	}
	face := c.fonts.Face(style.Size, style.Bold)
	if !style.AntiAlias {
		c.drawAliasedText(text, x, y, face, style.Color)
		return
	}
	c.dc.SetFontFace(face)
	c.dc.SetColor(style.Color)
	c.dc.DrawString(text, x, y)
}

// drawAliasedText rasterizes glyph coverage into a mask and thresholds it so
// every pixel is either fully on or off
func (c *GGCanvas) drawAliasedText(text string, x, y float64, face font.Face, col color.Color) {
	b := c.img.Bounds()
	mask := image.NewAlpha(b)
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.P(int(math.Round(x)), int(math.Round(y))),
	}
	d.DrawString(text)

	for i, a := range mask.Pix {
		if a >= 0x80 {
			mask.Pix[i] = 0xff
		} else {
			mask.Pix[i] = 0
		}
	}
	draw.DrawMask(c.img, b, image.NewUniform(col), image.Point{}, mask, b.Min, draw.Over)
}

func (c *GGCanvas) DrawImage(img image.Image, dst image.Rectangle, smooth bool) {
	if img == nil || dst.Empty() {
		return
	}
	var scaler draw.Scaler = draw.NearestNeighbor
	if smooth {
		scaler = draw.ApproxBiLinear
	}
	scaler.Scale(c.img, dst, img, img.Bounds(), draw.Over, nil)
}
