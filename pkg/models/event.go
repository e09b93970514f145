package models

import (
	"fmt"
	"strings"
	"time"
)

// LifecycleKind identifies a system callback delivered to the watch face
type LifecycleKind int

const (
	KindVisibility LifecycleKind = iota
	KindAmbientMode
	KindProperties
	KindInsets
	KindTimeTick
	KindTap
	KindTimezoneChanged
	KindPeekCard
)

var lifecycleKindNames = map[LifecycleKind]string{
	KindVisibility:      "visibility",
	KindAmbientMode:     "ambient",
	KindProperties:      "properties",
	KindInsets:          "insets",
	KindTimeTick:        "time_tick",
	KindTap:             "tap",
	KindTimezoneChanged: "timezone_changed",
	KindPeekCard:        "peek_card",
}

func (k LifecycleKind) String() string {
	if name, ok := lifecycleKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// ParseLifecycleKind maps a wire name such as "visibility" onto its kind
func ParseLifecycleKind(name string) (LifecycleKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, n := range lifecycleKindNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown lifecycle event type: %q", name)
}

// TapType is the phase of a touch gesture
type TapType int

const (
	// TapTouch is reported when the user starts touching the screen.
	TapTouch TapType = iota
	// TapTouchCancel is reported when the touch turned into another gesture.
	TapTouchCancel
	// TapCompleted is reported when the user finished a tap gesture.
	TapCompleted
)

var tapTypeNames = map[TapType]string{
	TapTouch:       "touch",
	TapTouchCancel: "cancel",
	TapCompleted:   "tap",
}

func (t TapType) String() string {
	if name, ok := tapTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("tap(%d)", int(t))
}

// ParseTapType maps a wire name ("touch", "cancel", "tap") onto its tap type
func ParseTapType(name string) (TapType, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for tap, n := range tapTypeNames {
		if n == name {
			return tap, nil
		}
	}
	return 0, fmt.Errorf("unknown tap type: %q", name)
}

// LifecycleEvent is a single enum-tagged system callback. Only the fields
// relevant to Kind are meaningful.
type LifecycleEvent struct {
	Kind          LifecycleKind
	Visible       bool
	Ambient       bool
	LowBitAmbient bool
	Round         bool
	Tap           TapType
	X             int
	Y             int
	EventTime     time.Time
}

func VisibilityChanged(visible bool) LifecycleEvent {
	return LifecycleEvent{Kind: KindVisibility, Visible: visible}
}

func AmbientModeChanged(ambient bool) LifecycleEvent {
	return LifecycleEvent{Kind: KindAmbientMode, Ambient: ambient}
}

func PropertiesChanged(lowBitAmbient bool) LifecycleEvent {
	return LifecycleEvent{Kind: KindProperties, LowBitAmbient: lowBitAmbient}
}

func InsetsApplied(round bool) LifecycleEvent {
	return LifecycleEvent{Kind: KindInsets, Round: round}
}

func TimeTicked() LifecycleEvent {
	return LifecycleEvent{Kind: KindTimeTick}
}

func TapCommand(tap TapType, x, y int, at time.Time) LifecycleEvent {
	return LifecycleEvent{Kind: KindTap, Tap: tap, X: x, Y: y, EventTime: at}
}

func TimezoneChanged() LifecycleEvent {
	return LifecycleEvent{Kind: KindTimezoneChanged}
}

// PeekCardMoved reports that a system card started, stopped or moved over the face
func PeekCardMoved() LifecycleEvent {
	return LifecycleEvent{Kind: KindPeekCard}
}

// Weather payload keys sent by the companion device
const (
	PayloadKeyDescription = "description"
	PayloadKeyHigh        = "high"
	PayloadKeyLow         = "low"
	PayloadKeyIcon        = "icon"
)

// WeatherUpdate is a partial delta from the companion device. A nil field
// means the event did not carry it.
type WeatherUpdate struct {
	Description *string `json:"description,omitempty"`
	High        *string `json:"high,omitempty"`
	Low         *string `json:"low,omitempty"`
	IconRef     *string `json:"icon,omitempty"`
}

// Empty reports whether the update carries no fields at all
func (u WeatherUpdate) Empty() bool {
	return u.Description == nil && u.High == nil && u.Low == nil && u.IconRef == nil
}

// ParseWeatherPayload maps a loosely typed sync payload onto a WeatherUpdate.
// Keys holding anything other than a string are skipped and returned so the
// caller can log them; unknown keys are ignored.
func ParseWeatherPayload(payload map[string]interface{}) (WeatherUpdate, []string) {
	var update WeatherUpdate
	var skipped []string

	take := func(key string) *string {
		raw, ok := payload[key]
		if !ok {
			return nil
		}
		s, ok := raw.(string)
		if !ok {
			skipped = append(skipped, key)
			return nil
		}
		return &s
	}

	update.Description = take(PayloadKeyDescription)
	update.High = take(PayloadKeyHigh)
	update.Low = take(PayloadKeyLow)
	update.IconRef = take(PayloadKeyIcon)

	return update, skipped
}
