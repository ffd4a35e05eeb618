package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"netprobe/internal/dashboard"
)

// Deps are the handlers and state the HTTP surface exposes.
type Deps struct {
	Dispatcher *dashboard.Dispatcher
	// State returns the current view frame; it is embedded in /api/state.
	State func() any
	// WS serves the websocket push channel. Nil disables /ws.
	WS http.Handler
	// Metrics serves the Prometheus exposition. Nil disables /metrics.
	Metrics http.Handler
}

type handler struct {
	d Deps
}

type stateResponse struct {
	Status dashboard.Status `json:"status"`
	Frame  any              `json:"frame,omitempty"`
}

type acceptedResponse struct {
	Command string `json:"command"`
	Range   string `json:"range,omitempty"`
	Limit   int    `json:"limit,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// NewHandler builds the router. Control routes go through limit.
func NewHandler(d Deps, limit func(http.Handler) http.Handler) http.Handler {
	h := &handler{d: d}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/api/state", h.handleState)
	r.Get("/api/ranges", h.handleRanges)
	if d.WS != nil {
		r.Handle("/ws", d.WS)
	}
	if d.Metrics != nil {
		r.Handle("/metrics", d.Metrics)
	}

	r.Route("/control", func(cr chi.Router) {
		if limit != nil {
			cr.Use(limit)
		}
		cr.Post("/range", h.handleRange)
		cr.Post("/panel", h.handlePanel)
		cr.Post("/series", h.handleSeries)
		cr.Post("/speedtest", h.handleCommand(func() dashboard.Command { return dashboard.RunSpeedtest{} }))
		cr.Post("/config", h.handleCommand(func() dashboard.Command { return dashboard.ConfigRequested{} }))
	})
	return r
}

func (h *handler) handleState(w http.ResponseWriter, _ *http.Request) {
	resp := stateResponse{Status: h.d.Dispatcher.Session().Status()}
	if h.d.State != nil {
		resp.Frame = h.d.State()
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *handler) handleRanges(w http.ResponseWriter, _ *http.Request) {
	s := h.d.Dispatcher.Session()
	h.writeJSON(w, http.StatusOK, map[string]any{
		"tokens":   dashboard.Tokens(),
		"current":  s.Ranges.Token(),
		"controls": s.Ranges.IDs(),
	})
}

func (h *handler) handleRange(w http.ResponseWriter, r *http.Request) {
	var cmd dashboard.RangeChanged
	if !h.decode(w, r, &cmd) {
		return
	}
	if err := h.d.Dispatcher.Dispatch(r.Context(), cmd); err != nil {
		h.respondDispatchError(w, err)
		return
	}
	ranges := h.d.Dispatcher.Session().Ranges
	h.writeJSON(w, http.StatusAccepted, acceptedResponse{Command: cmd.Name(), Range: ranges.Token(), Limit: ranges.Limit()})
}

func (h *handler) handlePanel(w http.ResponseWriter, r *http.Request) {
	var cmd dashboard.PanelToggled
	if !h.decode(w, r, &cmd) {
		return
	}
	h.dispatch(w, r, cmd)
}

func (h *handler) handleSeries(w http.ResponseWriter, r *http.Request) {
	var cmd dashboard.SeriesToggled
	if !h.decode(w, r, &cmd) {
		return
	}
	h.dispatch(w, r, cmd)
}

func (h *handler) handleCommand(build func() dashboard.Command) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.dispatch(w, r, build())
	}
}

func (h *handler) dispatch(w http.ResponseWriter, r *http.Request, cmd dashboard.Command) {
	if err := h.d.Dispatcher.Dispatch(r.Context(), cmd); err != nil {
		h.respondDispatchError(w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, acceptedResponse{Command: cmd.Name()})
}

// decode reads a JSON body. An empty body leaves v at its zero value.
func (h *handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, 64<<10))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, http.StatusBadRequest, "invalid json body")
		return false
	}
	return true
}

func (h *handler) respondDispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, dashboard.ErrUnknownControl),
		errors.Is(err, dashboard.ErrUnknownRange),
		errors.Is(err, dashboard.ErrUnknownPanel),
		errors.Is(err, dashboard.ErrUnknownSeries):
		h.writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, errorResponse{Error: message, Code: status})
}

func (h *handler) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
