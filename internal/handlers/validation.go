package handlers

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"github.com/koios/matrx-watchface/pkg/models"
)

// maxAssetRefLength bounds asset refs so they stay usable as cache keys
const maxAssetRefLength = 128

// ValidationError represents a validation error for a specific field
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func required(field string) ValidationError {
	return ValidationError{
		Field:   field,
		Message: fmt.Sprintf("Field '%s' is required", field),
		Code:    "required",
	}
}

func invalid(field, message string) ValidationError {
	return ValidationError{Field: field, Message: message, Code: "invalid_value"}
}

// validateLifecycleRequest checks that the fields the event kind needs are present
func validateLifecycleRequest(req *LifecycleRequest) (models.LifecycleKind, []ValidationError) {
	var errors []ValidationError

	if strings.TrimSpace(req.Type) == "" {
		return 0, []ValidationError{required("type")}
	}
	kind, err := models.ParseLifecycleKind(req.Type)
	if err != nil {
		return 0, []ValidationError{{Field: "type", Message: err.Error(), Code: "unknown_type"}}
	}

	switch kind {
	case models.KindVisibility:
		if req.Visible == nil {
			errors = append(errors, required("visible"))
		}
	case models.KindAmbientMode:
		if req.Ambient == nil {
			errors = append(errors, required("ambient"))
		}
	case models.KindProperties:
		if req.LowBitAmbient == nil {
			errors = append(errors, required("low_bit_ambient"))
		}
	case models.KindInsets:
		if req.Round == nil {
			errors = append(errors, required("round"))
		}
	case models.KindTap:
		if strings.TrimSpace(req.Tap) == "" {
			errors = append(errors, required("tap"))
		} else if _, err := models.ParseTapType(req.Tap); err != nil {
			errors = append(errors, invalid("tap", err.Error()))
		}
		if req.X < 0 {
			errors = append(errors, invalid("x", "Tap coordinates must not be negative"))
		}
		if req.Y < 0 {
			errors = append(errors, invalid("y", "Tap coordinates must not be negative"))
		}
	}

	return kind, errors
}

// validatePeekRequest checks that a peek card rectangle has a positive area
func validatePeekRequest(req *PeekRequest) []ValidationError {
	var errors []ValidationError
	if req.Width <= 0 {
		errors = append(errors, invalid("width", "Width must be positive"))
	}
	if req.Height <= 0 {
		errors = append(errors, invalid("height", "Height must be positive"))
	}
	return errors
}

// validateAssetRef rejects refs that cannot serve as asset keys
func validateAssetRef(ref string) []ValidationError {
	switch {
	case ref == "":
		return []ValidationError{required("ref")}
	case len(ref) > maxAssetRefLength:
		return []ValidationError{invalid("ref", fmt.Sprintf("Asset ref must be at most %d characters", maxAssetRefLength))}
	case strings.ContainsAny(ref, " \t\r\n"):
		return []ValidationError{invalid("ref", "Asset ref must not contain whitespace")}
	case strings.Contains(ref, ".."):
		return []ValidationError{invalid("ref", "Asset ref must not contain '..'")}
	}
	return nil
}

// validateAssetImage checks that data is an image in a registered format
// and returns that format
func validateAssetImage(data []byte) (string, []ValidationError) {
	if len(data) == 0 {
		return "", []ValidationError{required("body")}
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", []ValidationError{{Field: "body", Message: "Body is not a supported image", Code: "invalid_image"}}
	}
	if cfg.Width == 0 || cfg.Height == 0 {
		return "", []ValidationError{{Field: "body", Message: "Image has no pixels", Code: "invalid_image"}}
	}
	return format, nil
}
