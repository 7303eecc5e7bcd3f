package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/eugenenazirov/streamfx/internal/settings"
	"github.com/eugenenazirov/streamfx/internal/version"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

// maxBodyBytes bounds settings update payloads.
const maxBodyBytes = 1 << 20

// Source is the configuration the handlers expose.
type Source interface {
	Get() *settings.Data
	Version() uint64
	IsDifferentVersion() bool
	IsCompatibleVersion() bool
	Save() error
}

// Handler wires the plugin configuration into HTTP handlers.
type Handler struct {
	source Source

	clock func() time.Time

	mu        sync.RWMutex
	updatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(source Source, opts ...HandlerOption) *Handler {
	h := &Handler{
		source: source,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.updatedAt = h.clock()
	return h
}

// MarkUpdated records that the settings changed outside the API, for
// example after the watcher reloaded them.
func (h *Handler) MarkUpdated() {
	h.mu.Lock()
	h.updatedAt = h.clock()
	h.mu.Unlock()
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleVersion(w http.ResponseWriter, r *http.Request) {
	_ = r
	stored := h.source.Version()
	current := version.Current()

	resp := versionResponse{
		Stored:         stored,
		StoredVersion:  version.Format(stored),
		Current:        current,
		CurrentVersion: version.Format(current),
		Commit:         version.GitCommit,
		Different:      h.source.IsDifferentVersion(),
		Compatible:     h.source.IsCompatibleVersion(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListSettings(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := settingsResponse{
		Settings:  h.source.Get().Snapshot(),
		UpdatedAt: h.currentUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	value, ok := h.source.Get().Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "Setting not found", "no setting named "+key, "GET /api/settings lists the stored keys")
		return
	}

	writeJSON(w, http.StatusOK, settingResponse{Key: key, Value: value})
}

func (h *Handler) handlePutSetting(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimSpace(r.PathValue("key"))

	var req settingRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if req.Value == nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "value is required")
		return
	}

	value := normalizeJSON(req.Value)
	if err := h.source.Get().Set(key, value); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid setting", err.Error())
		return
	}

	h.MarkUpdated()

	resp := settingResponse{
		Key:     key,
		Value:   value,
		Message: "Setting updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleDeleteSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if !h.source.Get().Erase(key) {
		writeError(w, http.StatusNotFound, "Setting not found", "no setting named "+key)
		return
	}

	h.MarkUpdated()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	_ = r
	if err := h.source.Save(); err != nil {
		writeInternalError(w, err)
		return
	}

	resp := settingsResponse{
		Settings:  h.source.Get().Snapshot(),
		UpdatedAt: h.currentUpdatedAt(),
		Message:   "Settings saved successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) currentUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.updatedAt
}

// normalizeJSON converts json.Number values into int64 or float64 so they
// persist as YAML numbers.
func normalizeJSON(value any) any {
	switch v := value.(type) {
	case json.Number:
		if i, err := v.Int64(); err == nil {
			return i
		}
		if f, err := v.Float64(); err == nil {
			return f
		}
		return v.String()
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			out[key] = normalizeJSON(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = normalizeJSON(item)
		}
		return out
	default:
		return v
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type settingRequest struct {
	Value any `json:"value"`
}

type settingResponse struct {
	Key     string `json:"key"`
	Value   any    `json:"value"`
	Message string `json:"message,omitempty"`
}

type settingsResponse struct {
	Settings  map[string]any `json:"settings"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Message   string         `json:"message,omitempty"`
}

type versionResponse struct {
	Stored         uint64 `json:"stored"`
	StoredVersion  string `json:"storedVersion"`
	Current        uint64 `json:"current"`
	CurrentVersion string `json:"currentVersion"`
	Commit         string `json:"commit"`
	Different      bool   `json:"different"`
	Compatible     bool   `json:"compatible"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"Internal error","details":"unable to encode response"}` + "\n"))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_, _ = w.Write(buf.Bytes())
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
