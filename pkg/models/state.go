package models

import (
	"fmt"
	"image"
)

// FaceMode is the coarse state of the watch face
type FaceMode int

const (
	ModeHidden FaceMode = iota
	ModeVisibleInteractive
	ModeVisibleAmbient
)

func (m FaceMode) String() string {
	switch m {
	case ModeHidden:
		return "hidden"
	case ModeVisibleInteractive:
		return "visible_interactive"
	case ModeVisibleAmbient:
		return "visible_ambient"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// PowerState tracks visibility and display-power constraints
type PowerState struct {
	Visible       bool
	Ambient       bool
	LowBitAmbient bool
	// LowBitKnown is set once the device reported its capabilities; the
	// LowBitAmbient flag is immutable afterwards.
	LowBitKnown bool
	TapCount    int
}

// Mode derives the coarse face mode
func (s PowerState) Mode() FaceMode {
	switch {
	case !s.Visible:
		return ModeHidden
	case s.Ambient:
		return ModeVisibleAmbient
	default:
		return ModeVisibleInteractive
	}
}

// ShouldTick reports whether the 1 Hz refresh timer should be running
func (s PowerState) ShouldTick() bool {
	return s.Visible && !s.Ambient
}

// AntiAlias reports whether text may be drawn anti-aliased
func (s PowerState) AntiAlias() bool {
	return !(s.Ambient && s.LowBitAmbient)
}

// UseAlternateBackground selects the second background color on odd tap counts
func (s PowerState) UseAlternateBackground() bool {
	return s.TapCount%2 == 1
}

// ClockSnapshot is the wall-clock reading used for a single frame
type ClockSnapshot struct {
	Hour   int // 1-12
	Minute int // 0-59
	Date   string
}

// TimeText formats the time as H:MM
func (c ClockSnapshot) TimeText() string {
	return fmt.Sprintf("%d:%02d", c.Hour, c.Minute)
}

// DisplayHour converts a 24-hour clock hour to the 12-hour face, 0 and 12 both showing 12
func DisplayHour(hour24 int) int {
	h := hour24 % 12
	if h == 0 {
		return 12
	}
	return h
}

// WeatherSnapshot is the latest known weather. Nil fields have never been received.
type WeatherSnapshot struct {
	Description *string
	High        *string
	Low         *string
	Icon        image.Image
}

// HasTemperatures reports whether both the high and the low are known
func (s WeatherSnapshot) HasTemperatures() bool {
	return s.High != nil && s.Low != nil
}

// Merge overlays the text fields carried by the update. Fields the update
// omits keep their previous value. The icon is decoded elsewhere and is not
// touched here.
func (s WeatherSnapshot) Merge(u WeatherUpdate) (WeatherSnapshot, bool) {
	changed := false
	if u.Description != nil && !sameText(s.Description, u.Description) {
		s.Description = u.Description
		changed = true
	}
	if u.High != nil && !sameText(s.High, u.High) {
		s.High = u.High
		changed = true
	}
	if u.Low != nil && !sameText(s.Low, u.Low) {
		s.Low = u.Low
		changed = true
	}
	return s, changed
}

func sameText(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
