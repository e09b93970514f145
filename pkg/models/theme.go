package models

import (
	"fmt"
	"image"
	"image/color"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Theme represents the theme.yaml resource: colors plus the two layout sets
// selected by the screen shape
type Theme struct {
	Colors ThemeColors `yaml:"colors" json:"colors"`
	Square Layout      `yaml:"square" json:"square"`
	Round  Layout      `yaml:"round" json:"round"`
	Icon   IconRect    `yaml:"icon" json:"icon"`

	// Runtime fields (not in the resource)
	Path    string  `yaml:"-" json:"path"`
	Palette Palette `yaml:"-" json:"-"`
}

// ThemeColors holds hex color strings as written in the resource
type ThemeColors struct {
	Background        string `yaml:"background" json:"background"`
	BackgroundAlt     string `yaml:"background_alt" json:"background_alt"`
	Text              string `yaml:"text" json:"text"`
	AmbientBackground string `yaml:"ambient_background" json:"ambient_background"`
}

// Palette is the parsed form of ThemeColors
type Palette struct {
	Background        color.RGBA
	BackgroundAlt     color.RGBA
	Text              color.RGBA
	AmbientBackground color.RGBA
}

// Layout holds offsets and text sizes for one screen shape
type Layout struct {
	TimeX               float64 `yaml:"time_x" json:"time_x"`
	TimeY               float64 `yaml:"time_y" json:"time_y"`
	DateX               float64 `yaml:"date_x" json:"date_x"`
	DateY               float64 `yaml:"date_y" json:"date_y"`
	HighX               float64 `yaml:"high_x" json:"high_x"`
	LowX                float64 `yaml:"low_x" json:"low_x"`
	WeatherY            float64 `yaml:"weather_y" json:"weather_y"`
	TimeTextSize        float64 `yaml:"time_text_size" json:"time_text_size"`
	DateTextSize        float64 `yaml:"date_text_size" json:"date_text_size"`
	TemperatureTextSize float64 `yaml:"temperature_text_size" json:"temperature_text_size"`

	// IconRect is copied from the theme when the layout is selected
	IconRect image.Rectangle `yaml:"-" json:"-"`
}

// IconRect is the fixed on-screen square for the weather icon
type IconRect struct {
	Left int `yaml:"left" json:"left"`
	Top  int `yaml:"top" json:"top"`
	Size int `yaml:"size" json:"size"`
}

// Rect converts the icon placement into an image rectangle
func (r IconRect) Rect() image.Rectangle {
	return image.Rect(r.Left, r.Top, r.Left+r.Size, r.Top+r.Size)
}

// LoadTheme loads and validates a theme resource. Any error here is a
// configuration failure the caller cannot recover from.
func LoadTheme(path string) (*Theme, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read theme file: %w", err)
	}

	var theme Theme
	if err := yaml.Unmarshal(data, &theme); err != nil {
		return nil, fmt.Errorf("failed to parse theme file: %w", err)
	}

	theme.Path = path
	if err := theme.Validate(); err != nil {
		return nil, fmt.Errorf("invalid theme %s: %w", path, err)
	}

	return &theme, nil
}

// ambientBlack is the only background allowed in ambient mode
var ambientBlack = color.RGBA{A: 0xff}

// Validate checks required values and fills the parsed palette
func (t *Theme) Validate() error {
	var err error
	if t.Palette.Background, err = ParseHexColor(t.Colors.Background); err != nil {
		return fmt.Errorf("colors.background: %w", err)
	}
	if t.Palette.BackgroundAlt, err = ParseHexColor(t.Colors.BackgroundAlt); err != nil {
		return fmt.Errorf("colors.background_alt: %w", err)
	}
	if t.Palette.Text, err = ParseHexColor(t.Colors.Text); err != nil {
		return fmt.Errorf("colors.text: %w", err)
	}
	// ambient mode always draws on black; the key may only restate that
	t.Palette.AmbientBackground = ambientBlack
	if t.Colors.AmbientBackground != "" {
		c, err := ParseHexColor(t.Colors.AmbientBackground)
		if err != nil {
			return fmt.Errorf("colors.ambient_background: %w", err)
		}
		if c != ambientBlack {
			return fmt.Errorf("colors.ambient_background must be #000000, got %s", t.Colors.AmbientBackground)
		}
	}

	if err := t.Square.validate(); err != nil {
		return fmt.Errorf("square: %w", err)
	}
	if err := t.Round.validate(); err != nil {
		return fmt.Errorf("round: %w", err)
	}
	if t.Icon.Size <= 0 {
		return fmt.Errorf("icon.size must be positive")
	}
	return nil
}

func (l Layout) validate() error {
	if l.TimeTextSize <= 0 {
		return fmt.Errorf("time_text_size must be positive")
	}
	if l.DateTextSize <= 0 {
		return fmt.Errorf("date_text_size must be positive")
	}
	if l.TemperatureTextSize <= 0 {
		return fmt.Errorf("temperature_text_size must be positive")
	}
	return nil
}

// Layout returns the offset and size set for the given screen shape
func (t *Theme) Layout(round bool) Layout {
	l := t.Square
	if round {
		l = t.Round
	}
	l.IconRect = t.Icon.Rect()
	return l
}

// ParseHexColor parses #RGB, #RRGGBB and #RRGGBBAA color strings
func ParseHexColor(s string) (color.RGBA, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	c := color.RGBA{A: 0xff}

	var err error
	switch len(s) {
	case 3:
		_, err = fmt.Sscanf(s, "%1x%1x%1x", &c.R, &c.G, &c.B)
		c.R *= 17
		c.G *= 17
		c.B *= 17
	case 6:
		_, err = fmt.Sscanf(s, "%02x%02x%02x", &c.R, &c.G, &c.B)
	case 8:
		_, err = fmt.Sscanf(s, "%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		return c, fmt.Errorf("invalid hex color %q", s)
	}
	if err != nil {
		return c, fmt.Errorf("invalid hex color %q: %w", s, err)
	}
	return c, nil
}
