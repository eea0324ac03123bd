package app

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/earshot-dev/earshot/internal/config"
	"github.com/earshot-dev/earshot/internal/engine"
	"github.com/earshot-dev/earshot/internal/health"
	"github.com/earshot-dev/earshot/internal/observe"
	"github.com/earshot-dev/earshot/pkg/audio/capture"
)

// Routes builds the HTTP surface: the JSON command API, the websocket event
// stream, Prometheus metrics, and health probes. Every route passes through
// the observability middleware.
func (a *App) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/devices", a.handleDevices)
	mux.HandleFunc("POST /api/devices/select", a.handleAutoSelect)
	mux.HandleFunc("POST /api/devices/test", a.handleTestDevice)
	mux.HandleFunc("POST /api/devices/probe", a.handleProbeDevice)

	mux.HandleFunc("POST /api/capture/start", a.handleCaptureStart)
	mux.HandleFunc("POST /api/capture/stop", a.handleCaptureStop)
	mux.HandleFunc("GET /api/capture/status", a.handleCaptureStatus)

	mux.HandleFunc("GET /api/diagnose", a.handleDiagnose)
	mux.HandleFunc("POST /api/transcription/test", a.handleTestTranscription)

	mux.HandleFunc("GET /api/settings", a.handleGetSettings)
	mux.HandleFunc("PUT /api/settings", a.handlePutSettings)

	mux.HandleFunc("GET /api/sessions/{id}/segments", a.handleSegments)

	mux.Handle("GET /events", a.hub)
	mux.Handle("GET /metrics", promhttp.Handler())

	checkers := []health.Checker{health.BackendChecker(a.backend)}
	if p, ok := a.store.(health.Pinger); ok {
		checkers = append(checkers, health.StoreChecker(p))
	}
	health.New(checkers...).Register(mux)

	return observe.Middleware(a.metrics)(mux)
}

func (a *App) handleDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := a.Devices()
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

func (a *App) handleAutoSelect(w http.ResponseWriter, r *http.Request) {
	dev, err := a.AutoSelect()
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	if dev == nil {
		writeError(w, http.StatusNotFound, ErrNoDevice)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device": dev})
}

func (a *App) handleTestDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("device_id is required"))
		return
	}

	exists, err := a.TestDevice(req.DeviceID)
	if err != nil {
		writeError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"device_id": req.DeviceID, "exists": exists})
}

func (a *App) handleProbeDevice(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.DeviceID == "" {
		writeError(w, http.StatusBadRequest, errors.New("device_id is required"))
		return
	}

	res, err := a.ProbeDevice(r.Context(), req.DeviceID)
	if err != nil {
		writeError(w, http.StatusConflict, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleCaptureStart(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"device_id"`
	}
	// An empty body means "use the configured device".
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	status, err := a.StartCapture(req.DeviceID)
	if err != nil {
		code := http.StatusConflict
		switch {
		case errors.Is(err, ErrNoDevice), errors.Is(err, capture.ErrDeviceNotFound):
			code = http.StatusNotFound
		case errors.Is(err, capture.ErrUnsupported):
			code = http.StatusUnprocessableEntity
		}
		writeError(w, code, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (a *App) handleCaptureStop(w http.ResponseWriter, r *http.Request) {
	if err := a.StopCapture(); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, engine.Status{})
}

func (a *App) handleCaptureStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.CaptureStatus())
}

func (a *App) handleDiagnose(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.Diagnose())
}

func (a *App) handleTestTranscription(w http.ResponseWriter, r *http.Request) {
	res, err := a.TestTranscription(r.Context())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := a.Settings()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *App) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.DeviceSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := a.SaveSettings(settings); err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (a *App) handleSegments(w http.ResponseWriter, r *http.Request) {
	segments, err := a.Segments(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"segments": segments})
}

// writeJSON encodes v with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding failed"}`, http.StatusInternalServerError)
	}
}

// writeError encodes err as a JSON error body.
func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
