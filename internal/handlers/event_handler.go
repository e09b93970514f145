package handlers

import (
	"image"
	"time"

	"github.com/koios/matrx-watchface/pkg/models"
)

// LifecycleRequest is the JSON body of POST /lifecycle. Only the fields the
// event type needs are read.
type LifecycleRequest struct {
	Type          string `json:"type"`
	Visible       *bool  `json:"visible,omitempty"`
	Ambient       *bool  `json:"ambient,omitempty"`
	LowBitAmbient *bool  `json:"low_bit_ambient,omitempty"`
	Round         *bool  `json:"round,omitempty"`
	Tap           string `json:"tap,omitempty"`
	X             int    `json:"x,omitempty"`
	Y             int    `json:"y,omitempty"`
}

// PeekRequest is the JSON body of POST /peek
type PeekRequest struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r PeekRequest) Rect() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// toEvent converts a validated request into a lifecycle event
func toEvent(kind models.LifecycleKind, req *LifecycleRequest, now time.Time) models.LifecycleEvent {
	switch kind {
	case models.KindVisibility:
		return models.VisibilityChanged(*req.Visible)
	case models.KindAmbientMode:
		return models.AmbientModeChanged(*req.Ambient)
	case models.KindProperties:
		return models.PropertiesChanged(*req.LowBitAmbient)
	case models.KindInsets:
		return models.InsetsApplied(*req.Round)
	case models.KindTap:
		tap, _ := models.ParseTapType(req.Tap)
		return models.TapCommand(tap, req.X, req.Y, now)
	case models.KindTimezoneChanged:
		return models.TimezoneChanged()
	case models.KindPeekCard:
		return models.PeekCardMoved()
	default:
		return models.TimeTicked()
	}
}
