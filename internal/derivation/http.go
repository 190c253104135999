package derivation

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// HTTPHandler exposes the webhook surface for storage-created notifications.
type HTTPHandler struct {
	pipeline *Pipeline
	logger   *zap.Logger
	router   chi.Router
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(pipeline *Pipeline, logger *zap.Logger) *HTTPHandler {
	h := &HTTPHandler{
		pipeline: pipeline,
		logger:   logger,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/v1/events", h.handleEvent)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (h *HTTPHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body failed")
		return
	}

	events, err := ParseNotification(payload)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// Storage notifications batch one record per object creation; the first
	// record drives the response, as the delivery contract expects.
	event := events[0]

	result, err := h.pipeline.Process(r.Context(), event)
	if err != nil {
		status := StatusCode(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("derivation failed", zap.String("key", event.Key), zap.Error(err))
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bucket":               event.Bucket,
		"source_key":           event.Key,
		"video_replaced":       result.VideoReplaced,
		"video_key":            result.VideoKey,
		"animated_preview_key": result.AnimatedPreviewKey,
		"still_preview_key":    result.StillPreviewKey,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
