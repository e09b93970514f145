package render

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
)

func loadTestFonts(t *testing.T) *Fonts {
	t.Helper()
	fonts, err := LoadFonts()
	if err != nil {
		t.Fatalf("LoadFonts() error = %v", err)
	}
	return fonts
}

func TestFontsFaceCached(t *testing.T) {
	fonts := loadTestFonts(t)
	a := fonts.Face(12, false)
	b := fonts.Face(12, false)
	if a != b {
		t.Error("expected the same face for the same size and weight")
	}
	if fonts.Face(12, true) == a {
		t.Error("bold face must differ from regular")
	}
}

func TestGGCanvasAliasedTextIsBinary(t *testing.T) {
	fonts := loadTestFonts(t)

	render := func(antiAlias bool) *image.RGBA {
		img := image.NewRGBA(image.Rect(0, 0, 160, 60))
		c := NewGGCanvas(img, fonts)
		c.Fill(img.Bounds(), color.Black)
		c.DrawText("12:34", 5, 45, TextStyle{Color: color.White, Size: 36, AntiAlias: antiAlias})
		return img
	}

	partial := func(img *image.RGBA) (lit, mid int) {
		for i := 0; i < len(img.Pix); i += 4 {
			switch v := img.Pix[i]; {
			case v == 0xff:
				lit++
			case v != 0:
				mid++
			}
		}
		return
	}

	lit, mid := partial(render(false))
	if lit == 0 {
		t.Fatal("aliased text drew nothing")
	}
	if mid != 0 {
		t.Errorf("aliased text left %d partially lit pixels", mid)
	}

	_, mid = partial(render(true))
	if mid == 0 {
		t.Error("anti-aliased text should have partially lit edge pixels")
	}
}

func TestGGCanvasDrawImageScales(t *testing.T) {
	fonts := loadTestFonts(t)
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	c := NewGGCanvas(img, fonts)

	red := image.NewRGBA(image.Rect(0, 0, 2, 2))
	for i := 0; i < len(red.Pix); i += 4 {
		red.Pix[i], red.Pix[i+3] = 0xff, 0xff
	}
	dst := image.Rect(10, 10, 30, 30)
	c.DrawImage(red, dst, false)

	if got := img.RGBAAt(20, 20); got != (color.RGBA{R: 0xff, A: 0xff}) {
		t.Errorf("pixel inside destination = %v, want red", got)
	}
	if got := img.RGBAAt(5, 5); got.A != 0 {
		t.Errorf("pixel outside destination = %v, want untouched", got)
	}

	c.DrawImage(nil, dst, true)
	c.DrawImage(red, image.Rectangle{}, true)
}

func TestFrameBufferPaint(t *testing.T) {
	fb := NewFrameBuffer(64, 48, loadTestFonts(t))

	if fb.Latest() != nil {
		t.Fatal("expected no frame before the first paint")
	}
	if err := fb.EncodePNG(&bytes.Buffer{}); !errors.Is(err, ErrNoFrame) {
		t.Errorf("EncodePNG() before paint error = %v, want ErrNoFrame", err)
	}

	var presented []*image.RGBA
	fb.OnPresent(func(img *image.RGBA) { presented = append(presented, img) })

	paint := func(col color.Color) {
		if err := fb.Paint(func(c Canvas) { c.Fill(fb.Bounds(), col) }); err != nil {
			t.Fatalf("Paint() error = %v", err)
		}
	}

	paint(color.RGBA{B: 0xff, A: 0xff})
	first := fb.Latest()
	paint(color.RGBA{G: 0xff, A: 0xff})

	if fb.Frames() != 2 || len(presented) != 2 {
		t.Fatalf("frames = %d, presented = %d, want 2", fb.Frames(), len(presented))
	}
	if first.RGBAAt(1, 1) != (color.RGBA{B: 0xff, A: 0xff}) {
		t.Error("a presented frame must not be drawn into again")
	}
	if presented[1] != fb.Latest() {
		t.Error("hook must receive the latest frame")
	}

	var buf bytes.Buffer
	if err := fb.EncodePNG(&buf); err != nil {
		t.Fatalf("EncodePNG() error = %v", err)
	}
	decoded, err := png.Decode(&buf)
	if err != nil {
		t.Fatalf("png.Decode() error = %v", err)
	}
	if decoded.Bounds() != image.Rect(0, 0, 64, 48) {
		t.Errorf("decoded bounds = %v", decoded.Bounds())
	}
}

func TestFrameBufferWithoutFonts(t *testing.T) {
	fb := NewFrameBuffer(0, 0, nil)
	if fb.Bounds() != image.Rect(0, 0, 320, 320) {
		t.Errorf("default bounds = %v", fb.Bounds())
	}
	if err := fb.Paint(func(Canvas) {}); err == nil {
		t.Error("expected an error painting without fonts")
	}
}
