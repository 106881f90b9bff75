package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/caffeineduck/creek/dispatch"
	"github.com/caffeineduck/creek/internal/logger"
	"github.com/caffeineduck/creek/interp"
)

const maxBodySize = 16 << 20

type handler struct {
	dispatcher *dispatch.Dispatcher
	runtime    StateReporter
	channel    string
	startTime  time.Time
}

func newHandler(cfg Config) *handler {
	return &handler{
		dispatcher: cfg.Dispatcher,
		runtime:    cfg.Runtime,
		channel:    cfg.Channel,
		startTime:  time.Now(),
	}
}

// StatusCode maps a response to its HTTP status.
func StatusCode(resp dispatch.Response) int {
	switch {
	case resp.OK:
		return http.StatusOK
	case resp.Code == dispatch.CodeInvalidArgument:
		return http.StatusBadRequest
	case resp.Code == dispatch.CodeNotImplemented:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handler) invoke(w http.ResponseWriter, r *http.Request) {
	method := chi.URLParam(r, "method")

	channel := h.channel
	if raw := chi.URLParam(r, "channel"); raw != "" {
		name, err := url.PathUnescape(raw)
		if err != nil || name != h.channel {
			writeResponse(w, dispatch.Failure(dispatch.CodeNotImplemented, "no handler for channel %q", raw))
			return
		}
		channel = name
	}

	var args map[string]any
	body := http.MaxBytesReader(w, r.Body, maxBodySize)
	if err := json.NewDecoder(body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeResponse(w, dispatch.Failure(dispatch.CodeInvalidArgument, "request body must be a JSON object: %v", err))
		return
	}

	ctx := logger.WithContext(r.Context(), logger.NewLogContext(middleware.GetReqID(r.Context()), channel))
	writeResponse(w, h.dispatcher.Handle(ctx, dispatch.Request{Method: method, Args: args}))
}

type methodInfo struct {
	Name   string      `json:"name"`
	Target string      `json:"target"`
	Params []paramInfo `json:"params,omitempty"`
}

type paramInfo struct {
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Required bool   `json:"required"`
	Default  any    `json:"default,omitempty"`
}

func (h *handler) listMethods(w http.ResponseWriter, r *http.Request) {
	methods := h.dispatcher.Methods()
	out := make([]methodInfo, 0, len(methods))
	for _, m := range methods {
		info := methodInfo{Name: m.Name, Target: m.Target()}
		for _, p := range m.Params {
			info.Params = append(info.Params, paramInfo{
				Name: p.Name, Kind: p.Kind.String(), Required: p.Required, Default: p.Default,
			})
		}
		out = append(out, info)
	}
	writeJSON(w, http.StatusOK, out)
}

type intentRequest struct {
	Component string `json:"component"`
}

type intentResponse struct {
	Component   string `json:"component"`
	ShareSource string `json:"share_source"`
}

func (h *handler) setIntent(w http.ResponseWriter, r *http.Request) {
	var req intentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize)).Decode(&req); err != nil {
		writeResponse(w, dispatch.Failure(dispatch.CodeInvalidArgument, "invalid intent: %v", err))
		return
	}

	intent := h.dispatcher.Intent()
	intent.SetComponent(req.Component)
	logger.InfoCtx(r.Context(), "launch intent updated", logger.KeyComponent, req.Component)

	writeJSON(w, http.StatusOK, intentResponse{Component: intent.Component(), ShareSource: intent.ShareSource()})
}

type healthResponse struct {
	Status    string         `json:"status"`
	Timestamp time.Time      `json:"timestamp"`
	Data      map[string]any `json:"data,omitempty"`
}

func (h *handler) liveness(w http.ResponseWriter, r *http.Request) {
	uptime := time.Since(h.startTime)
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data: map[string]any{
			"service":    "creek",
			"started_at": h.startTime.UTC().Format(time.RFC3339),
			"uptime_sec": int64(uptime.Seconds()),
		},
	})
}

func (h *handler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.runtime == nil {
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unhealthy", Timestamp: time.Now().UTC()})
		return
	}

	state := h.runtime.State()
	resp := healthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Data:      map[string]any{"state": state.String(), "backend": h.runtime.Backend()},
	}
	status := http.StatusOK
	if state != interp.StateReady {
		resp.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, resp)
}

func writeResponse(w http.ResponseWriter, resp dispatch.Response) {
	writeJSON(w, StatusCode(resp), resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("write response", logger.Err(err)...)
	}
}
