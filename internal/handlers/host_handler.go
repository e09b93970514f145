package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"code.cloudfoundry.org/clock"
	"github.com/koios/matrx-watchface/internal/ingest"
	"github.com/koios/matrx-watchface/internal/render"
	"github.com/koios/matrx-watchface/pkg/models"
	"go.uber.org/zap"
)

// maxAssetSize bounds uploaded icon assets
const maxAssetSize = 1 << 20

// EventPoster accepts lifecycle events for the face
type EventPoster interface {
	Post(ctx context.Context, ev models.LifecycleEvent) error
}

// FrameSource exposes the most recently presented frame
type FrameSource interface {
	EncodePNG(w io.Writer) error
	Frames() uint64
}

// PeekSetter records the area covered by a peek card
type PeekSetter interface {
	Set(r image.Rectangle)
	Clear()
}

// WeatherPusher hands a weather update to the in-process source
type WeatherPusher interface {
	Push(u models.WeatherUpdate) error
}

// AssetWriter stores icon bytes under a ref in process memory
type AssetWriter interface {
	Put(ref string, data []byte)
	Delete(ref string)
}

// SharedAssetStore is a store other hosts read icons from
type SharedAssetStore interface {
	Put(ctx context.Context, ref string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, ref string) error
}

// HealthCheck reports a dependency problem as an error
type HealthCheck func(ctx context.Context) error

// HostOptions wires a HostHandler to the running face
type HostOptions struct {
	Events  EventPoster
	Frames  FrameSource
	Peek    PeekSetter
	Weather WeatherPusher
	Assets  AssetWriter

	// SharedAssets, when set, receives every uploaded icon as well
	SharedAssets   SharedAssetStore
	SharedAssetTTL time.Duration
	Checks         map[string]HealthCheck
	Clock          clock.Clock
	Logger         *zap.Logger
}

// HostHandler is the device host API: it forwards system callbacks, weather
// pushes and icon uploads to the face and serves the rendered frame
type HostHandler struct {
	events  EventPoster
	frames  FrameSource
	peek    PeekSetter
	weather WeatherPusher
	assets  AssetWriter
	shared  SharedAssetStore
	ttl     time.Duration
	checks  map[string]HealthCheck
	clock   clock.Clock
	logger  *zap.Logger
}

// NewHostHandler creates a new host handler
func NewHostHandler(opts HostOptions) *HostHandler {
	clk := opts.Clock
	if clk == nil {
		clk = clock.NewClock()
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HostHandler{
		events:  opts.Events,
		frames:  opts.Frames,
		peek:    opts.Peek,
		weather: opts.Weather,
		assets:  opts.Assets,
		shared:  opts.SharedAssets,
		ttl:     opts.SharedAssetTTL,
		checks:  opts.Checks,
		clock:   clk,
		logger:  logger,
	}
}

// RegisterRoutes registers the host API routes
func (h *HostHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/frame", h.handleFrame)
	mux.HandleFunc("/lifecycle", h.handleLifecycle)
	mux.HandleFunc("/peek", h.handlePeek)
	mux.HandleFunc("/weather", h.handleWeather)
	mux.HandleFunc("/assets/", h.handleAsset)
}

// handleHealth handles GET /health - runs the dependency checks
func (h *HostHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := "healthy"
	code := http.StatusOK
	checks := make(map[string]string, len(names))
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			h.logger.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			checks[name] = err.Error()
			status = "degraded"
			code = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}

	var frames uint64
	if h.frames != nil {
		frames = h.frames.Frames()
	}
	writeJSON(w, code, map[string]interface{}{
		"status":  status,
		"service": "matrx-watchface",
		"version": "1.0.0",
		"frames":  frames,
		"checks":  checks,
	}, h.logger)
}

// handleFrame handles GET /frame - returns the last presented frame as PNG
func (h *HostHandler) handleFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.frames == nil {
		http.Error(w, "No frame rendered yet", http.StatusNotFound)
		return
	}

	var buf bytes.Buffer
	if err := h.frames.EncodePNG(&buf); err != nil {
		if errors.Is(err, render.ErrNoFrame) {
			http.Error(w, "No frame rendered yet", http.StatusNotFound)
			return
		}
		h.logger.Error("Failed to encode frame", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// handleLifecycle handles POST /lifecycle - forwards a system callback
func (h *HostHandler) handleLifecycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req LifecycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	kind, errs := validateLifecycleRequest(&req)
	if len(errs) > 0 {
		writeValidationErrors(w, errs, h.logger)
		return
	}

	ev := toEvent(kind, &req, h.clock.Now())
	if !h.post(w, r, ev) {
		return
	}

	h.logger.Debug("Forwarded lifecycle event", zap.Stringer("kind", kind))
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "accepted",
		"type":   kind.String(),
	}, h.logger)
}

// handlePeek handles:
// - POST /peek - a peek card now covers the given rectangle
// - DELETE /peek - the peek card went away
func (h *HostHandler) handlePeek(w http.ResponseWriter, r *http.Request) {
	if h.peek == nil {
		http.Error(w, "Peek cards are not supported", http.StatusNotImplemented)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req PeekRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid JSON body", http.StatusBadRequest)
			return
		}
		if errs := validatePeekRequest(&req); len(errs) > 0 {
			writeValidationErrors(w, errs, h.logger)
			return
		}
		h.peek.Set(req.Rect())
	case http.MethodDelete:
		h.peek.Clear()
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if !h.post(w, r, models.PeekCardMoved()) {
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{"status": "accepted"}, h.logger)
}

// handleWeather handles POST /weather - pushes a weather message while the
// face is subscribed
func (h *HostHandler) handleWeather(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.weather == nil {
		http.Error(w, "Weather push is not supported", http.StatusNotImplemented)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxAssetSize))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	update, skipped, err := models.DecodeWeatherMessage(body)
	if err != nil {
		http.Error(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}
	if update.Empty() {
		writeValidationErrors(w, []ValidationError{{
			Field:   "body",
			Message: "Message contains no string weather fields",
			Code:    "empty_update",
		}}, h.logger)
		return
	}

	if err := h.weather.Push(update); err != nil {
		if errors.Is(err, ingest.ErrNotSubscribed) {
			http.Error(w, "Face is not subscribed to weather updates", http.StatusConflict)
			return
		}
		h.logger.Error("Failed to push weather update", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if skipped == nil {
		skipped = []string{}
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"status":  "accepted",
		"skipped": skipped,
	}, h.logger)
}

// handleAsset handles:
// - PUT /assets/{ref} - stores icon bytes for later decodes
// - DELETE /assets/{ref} - forgets an icon
func (h *HostHandler) handleAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPut && r.Method != http.MethodDelete {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.assets == nil {
		http.Error(w, "Asset upload is not supported", http.StatusNotImplemented)
		return
	}

	ref := strings.TrimPrefix(r.URL.Path, "/assets/")
	if errs := validateAssetRef(ref); len(errs) > 0 {
		writeValidationErrors(w, errs, h.logger)
		return
	}

	if r.Method == http.MethodDelete {
		h.deleteAsset(w, r, ref)
		return
	}

	data, err := io.ReadAll(io.LimitReader(r.Body, maxAssetSize+1))
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	if len(data) > maxAssetSize {
		http.Error(w, "Asset too large", http.StatusRequestEntityTooLarge)
		return
	}

	format, errs := validateAssetImage(data)
	if len(errs) > 0 {
		writeValidationErrors(w, errs, h.logger)
		return
	}

	h.assets.Put(ref, data)

	shared := false
	if h.shared != nil {
		if err := h.shared.Put(r.Context(), ref, data, h.ttl); err != nil {
			h.logger.Warn("Failed to write icon asset to the shared store",
				zap.String("ref", ref),
				zap.Error(err))
		} else {
			shared = true
		}
	}

	h.logger.Info("Stored icon asset",
		zap.String("ref", ref),
		zap.String("format", format),
		zap.Int("bytes", len(data)),
		zap.Bool("shared", shared))

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ref":    ref,
		"format": format,
		"bytes":  len(data),
		"shared": shared,
	}, h.logger)
}

func (h *HostHandler) deleteAsset(w http.ResponseWriter, r *http.Request, ref string) {
	h.assets.Delete(ref)
	if h.shared != nil {
		if err := h.shared.Delete(r.Context(), ref); err != nil {
			h.logger.Error("Failed to delete icon asset from the shared store",
				zap.String("ref", ref),
				zap.Error(err))
			http.Error(w, "Failed to delete asset", http.StatusBadGateway)
			return
		}
	}

	h.logger.Info("Deleted icon asset", zap.String("ref", ref))
	w.WriteHeader(http.StatusNoContent)
}

// post forwards an event to the face and writes the error response on failure
func (h *HostHandler) post(w http.ResponseWriter, r *http.Request, ev models.LifecycleEvent) bool {
	if h.events == nil {
		http.Error(w, "Face is not running", http.StatusServiceUnavailable)
		return false
	}
	if err := h.events.Post(r.Context(), ev); err != nil {
		h.logger.Warn("Failed to post lifecycle event",
			zap.Stringer("kind", ev.Kind),
			zap.Error(err))
		http.Error(w, "Face is not running", http.StatusServiceUnavailable)
		return false
	}
	return true
}

func writeValidationErrors(w http.ResponseWriter, errs []ValidationError, logger *zap.Logger) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"valid":  false,
		"errors": errs,
	}, logger)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
