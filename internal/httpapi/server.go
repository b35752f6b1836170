// Package httpapi exposes the light entities, the command history and the
// daemon health over HTTP.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/cyncd/internal/ledger"
	"github.com/dokzlo13/cyncd/internal/light"
	"github.com/dokzlo13/cyncd/internal/platform"
)

const (
	defaultCommandLimit = 50
	maxCommandLimit     = 1000
	maxBodyBytes        = 1 << 16
)

// Lights is the entity surface served by the API.
type Lights interface {
	List() []*light.Entity
	Snapshot(uniqueID string) (light.State, error)
	TurnOn(ctx context.Context, uniqueID string, params light.TurnOnParams) error
	TurnOff(ctx context.Context, uniqueID string) error
}

// CommandLog is the command history served by the API.
type CommandLog interface {
	Recent(ctx context.Context, limit int) ([]*ledger.Entry, error)
}

// ReadyFunc reports whether the daemon can serve commands.
type ReadyFunc func() error

type Server struct {
	lights   Lights
	commands CommandLog
	gatherer prometheus.Gatherer
	ready    ReadyFunc
}

// NewServer creates the API server. gatherer and ready may be nil.
func NewServer(lights Lights, commands CommandLog, gatherer prometheus.Gatherer, ready ReadyFunc) *Server {
	return &Server{lights: lights, commands: commands, gatherer: gatherer, ready: ready}
}

// Router builds the HTTP handler with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(requestLogger)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/lights", s.handleListLights)
		r.Get("/lights/{id}", s.handleGetLight)
		r.Post("/lights/{id}/turn_on", s.handleTurnOn)
		r.Post("/lights/{id}/turn_off", s.handleTurnOff)
		r.Get("/commands", s.handleCommands)
	})
	return r
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeCommandError maps entity and device errors to HTTP statuses.
func writeCommandError(w http.ResponseWriter, err error) {
	if errors.Is(err, platform.ErrNotFound) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	if s.ready != nil {
		if err := s.ready(); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListLights(w http.ResponseWriter, _ *http.Request) {
	entities := s.lights.List()
	states := make([]light.State, 0, len(entities))
	for _, e := range entities {
		states = append(states, e.State())
	}
	writeJSON(w, http.StatusOK, states)
}

func (s *Server) handleGetLight(w http.ResponseWriter, r *http.Request) {
	st, err := s.lights.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// turnOnRequest is the turn_on body. Omitted fields leave the attribute
// unchanged. Kelvin outside the supported window is clamped by the entity.
type turnOnRequest struct {
	RGB             []int `json:"rgb"`
	Brightness      *int  `json:"brightness"`
	ColorTempKelvin *int  `json:"color_temp_kelvin"`
}

func (req turnOnRequest) params() (light.TurnOnParams, error) {
	params := light.TurnOnParams{
		Brightness:      req.Brightness,
		ColorTempKelvin: req.ColorTempKelvin,
	}
	if req.Brightness != nil && (*req.Brightness < 0 || *req.Brightness > 255) {
		return params, fmt.Errorf("brightness must be in 0-255, got %d", *req.Brightness)
	}
	if req.RGB != nil {
		if len(req.RGB) != 3 {
			return params, fmt.Errorf("rgb must have 3 components, got %d", len(req.RGB))
		}
		for _, c := range req.RGB {
			if c < 0 || c > 255 {
				return params, fmt.Errorf("rgb components must be in 0-255, got %d", c)
			}
		}
		params.RGB = &light.RGB{R: uint8(req.RGB[0]), G: uint8(req.RGB[1]), B: uint8(req.RGB[2])}
	}
	return params, nil
}

func (s *Server) handleTurnOn(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "id")

	var req turnOnRequest
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req)
	if err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	params, err := req.params()
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := platform.WithSource(r.Context(), "api")
	if err := s.lights.TurnOn(ctx, uid, params); err != nil {
		writeCommandError(w, err)
		return
	}
	s.writeState(w, uid)
}

func (s *Server) handleTurnOff(w http.ResponseWriter, r *http.Request) {
	uid := chi.URLParam(r, "id")

	ctx := platform.WithSource(r.Context(), "api")
	if err := s.lights.TurnOff(ctx, uid); err != nil {
		writeCommandError(w, err)
		return
	}
	s.writeState(w, uid)
}

func (s *Server) writeState(w http.ResponseWriter, uid string) {
	st, err := s.lights.Snapshot(uid)
	if err != nil {
		writeCommandError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	limit := defaultCommandLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 || l > maxCommandLimit {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("limit must be in 1-%d", maxCommandLimit))
			return
		}
		limit = l
	}

	entries, err := s.commands.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read command ledger")
		writeError(w, http.StatusInternalServerError, "failed to read command history")
		return
	}
	if entries == nil {
		entries = []*ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
