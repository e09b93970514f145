package models

import (
	"encoding/json"
	"fmt"
	"time"
)

// FrameMessage is a rendered frame published to the device channel
type FrameMessage struct {
	Type       string    `json:"type"`
	DeviceID   string    `json:"device_id"`
	Sequence   uint64    `json:"sequence"`
	Width      int       `json:"width"`
	Height     int       `json:"height"`
	Frame      string    `json:"frame"` // base64 encoded PNG
	RenderedAt time.Time `json:"rendered_at"`
}

// FrameMessageType tags FrameMessage payloads
const FrameMessageType = "watchface_frame"

// DecodeWeatherMessage parses a JSON weather payload as sent over the sync
// transports. It fails only when the body is not a JSON object; bad fields
// are reported as skipped.
func DecodeWeatherMessage(body []byte) (WeatherUpdate, []string, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return WeatherUpdate{}, nil, fmt.Errorf("failed to unmarshal weather payload: %w", err)
	}
	if payload == nil {
		return WeatherUpdate{}, nil, fmt.Errorf("weather payload is not an object")
	}
	update, skipped := ParseWeatherPayload(payload)
	return update, skipped, nil
}
