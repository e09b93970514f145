package render

import (
	"image"

	"github.com/koios/matrx-watchface/pkg/models"
)

// Inputs is everything a frame depends on
type Inputs struct {
	Clock   models.ClockSnapshot
	Weather models.WeatherSnapshot
	Power   models.PowerState
	Layout  models.Layout
	Palette models.Palette
}

// Draw paints one frame. It only issues canvas calls and never mutates its
// inputs; the peek card is the one external query it makes.
func Draw(c Canvas, bounds image.Rectangle, in Inputs, peek PeekCard) {
	drawBackground(c, bounds, in)

	antiAlias := in.Power.AntiAlias()
	c.DrawText(in.Clock.TimeText(), in.Layout.TimeX, in.Layout.TimeY, TextStyle{
		Color:     in.Palette.Text,
		Size:      in.Layout.TimeTextSize,
		AntiAlias: antiAlias,
	})
	c.DrawText(in.Clock.Date, in.Layout.DateX, in.Layout.DateY, TextStyle{
		Color:     in.Palette.Text,
		Size:      in.Layout.DateTextSize,
		AntiAlias: true,
	})

	if peekCardShowing(peek) {
		return
	}
	drawWeather(c, in, antiAlias)
}

func drawBackground(c Canvas, bounds image.Rectangle, in Inputs) {
	switch {
	case in.Power.Ambient:
		c.Fill(bounds, in.Palette.AmbientBackground)
	case in.Power.UseAlternateBackground():
		c.Fill(bounds, in.Palette.BackgroundAlt)
	default:
		c.Fill(bounds, in.Palette.Background)
	}
}

func drawWeather(c Canvas, in Inputs, antiAlias bool) {
	w := in.Weather
	if w.Icon != nil {
		c.DrawImage(w.Icon, in.Layout.IconRect, antiAlias)
	}
	if !w.HasTemperatures() {
		return
	}
	c.DrawText(*w.High, in.Layout.HighX, in.Layout.WeatherY, TextStyle{
		Color:     in.Palette.Text,
		Size:      in.Layout.TemperatureTextSize,
		Bold:      true,
		AntiAlias: true,
	})
	c.DrawText(*w.Low, in.Layout.LowX, in.Layout.WeatherY, TextStyle{
		Color:     in.Palette.Text,
		Size:      in.Layout.TemperatureTextSize,
		AntiAlias: true,
	})
}

func peekCardShowing(peek PeekCard) bool {
	if peek == nil {
		return false
	}
	return !peek.PeekCardBounds().Empty()
}
