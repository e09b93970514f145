package handlers

import (
	"bytes"
	"image"
	"image/png"
	"strings"
	"testing"

	"github.com/koios/matrx-watchface/pkg/models"
)

func boolPtr(b bool) *bool { return &b }

func TestValidateLifecycleRequest(t *testing.T) {
	tests := []struct {
		name       string
		req        LifecycleRequest
		wantKind   models.LifecycleKind
		wantFields []string
	}{
		{"missing type", LifecycleRequest{}, 0, []string{"type"}},
		{"unknown type", LifecycleRequest{Type: "reboot"}, 0, []string{"type"}},
		{"visibility", LifecycleRequest{Type: "visibility", Visible: boolPtr(true)}, models.KindVisibility, nil},
		{"visibility missing flag", LifecycleRequest{Type: "visibility"}, models.KindVisibility, []string{"visible"}},
		{"ambient false is present", LifecycleRequest{Type: "ambient", Ambient: boolPtr(false)}, models.KindAmbientMode, nil},
		{"ambient missing flag", LifecycleRequest{Type: "ambient"}, models.KindAmbientMode, []string{"ambient"}},
		{"properties missing flag", LifecycleRequest{Type: "properties"}, models.KindProperties, []string{"low_bit_ambient"}},
		{"insets missing flag", LifecycleRequest{Type: "insets"}, models.KindInsets, []string{"round"}},
		{"case insensitive", LifecycleRequest{Type: " Time_Tick "}, models.KindTimeTick, nil},
		{"tap", LifecycleRequest{Type: "tap", Tap: "tap", X: 10, Y: 20}, models.KindTap, nil},
		{"tap missing type", LifecycleRequest{Type: "tap"}, models.KindTap, []string{"tap"}},
		{"tap bad type", LifecycleRequest{Type: "tap", Tap: "swipe"}, models.KindTap, []string{"tap"}},
		{"tap negative", LifecycleRequest{Type: "tap", Tap: "touch", X: -1, Y: -2}, models.KindTap, []string{"x", "y"}},
		{"timezone", LifecycleRequest{Type: "timezone_changed"}, models.KindTimezoneChanged, nil},
		{"peek", LifecycleRequest{Type: "peek_card"}, models.KindPeekCard, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, errs := validateLifecycleRequest(&tt.req)
			if len(errs) != len(tt.wantFields) {
				t.Fatalf("errors = %+v, want fields %v", errs, tt.wantFields)
			}
			for i, field := range tt.wantFields {
				if errs[i].Field != field {
					t.Errorf("errors[%d].Field = %q, want %q", i, errs[i].Field, field)
				}
			}
			if len(tt.wantFields) == 0 && kind != tt.wantKind {
				t.Errorf("kind = %v, want %v", kind, tt.wantKind)
			}
		})
	}
}

func TestValidatePeekRequest(t *testing.T) {
	if errs := validatePeekRequest(&PeekRequest{X: 0, Y: 200, Width: 320, Height: 120}); len(errs) != 0 {
		t.Errorf("unexpected errors %+v", errs)
	}
	errs := validatePeekRequest(&PeekRequest{Width: 0, Height: -5})
	if len(errs) != 2 || errs[0].Field != "width" || errs[1].Field != "height" {
		t.Errorf("errors = %+v", errs)
	}
}

func TestValidateAssetRef(t *testing.T) {
	tests := []struct {
		ref   string
		valid bool
	}{
		{"sun", true},
		{"icons/partly-cloudy", true},
		{"", false},
		{"has space", false},
		{"../etc/passwd", false},
		{strings.Repeat("a", maxAssetRefLength), true},
		{strings.Repeat("a", maxAssetRefLength+1), false},
	}
	for _, tt := range tests {
		errs := validateAssetRef(tt.ref)
		if (len(errs) == 0) != tt.valid {
			t.Errorf("validateAssetRef(%q) = %+v, want valid=%v", tt.ref, errs, tt.valid)
		}
	}
}

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode() error = %v", err)
	}
	return buf.Bytes()
}

func TestValidateAssetImage(t *testing.T) {
	format, errs := validateAssetImage(pngBytes(t, 4, 4))
	if len(errs) != 0 || format != "png" {
		t.Errorf("format = %q, errors = %+v", format, errs)
	}

	if _, errs := validateAssetImage(nil); len(errs) != 1 || errs[0].Code != "required" {
		t.Errorf("empty body errors = %+v", errs)
	}
	if _, errs := validateAssetImage([]byte("not an image")); len(errs) != 1 || errs[0].Code != "invalid_image" {
		t.Errorf("garbage body errors = %+v", errs)
	}
}
