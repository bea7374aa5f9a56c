// Package api provides the HTTP API for observing the town.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/goerr/v2"

	"github.com/talgya/mini-town/internal/engine"
	"github.com/talgya/mini-town/internal/world"
)

// Limits for list endpoints.
const (
	defaultLimit = 50
	maxLimit     = 500
	maxTimeScale = 1000
)

// EventStore reads the durable event journal. persistence.DB implements it.
type EventStore interface {
	RecentEvents(ctx context.Context, agentID string, limit int) ([]engine.Entry, error)
}

// Server serves the town state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Events   EventStore // optional; the in-memory log is used without it
	AdminKey string     // Bearer token for POST endpoints. Empty = POST disabled.

	// SearchLimit caps memory searches per client IP per hour.
	SearchLimit int
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	limit := s.SearchLimit
	if limit <= 0 {
		limit = 120
	}
	searchLimiter := NewRateLimiter(limit, time.Hour)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Public endpoints (GET, read-only).
		r.Get("/status", s.handleStatus)
		r.Get("/stats", s.handleStats)
		r.Get("/agents", s.handleAgents)
		r.Get("/agent/{id}", s.handleAgent)
		r.Get("/agent/{id}/memories", s.handleMemories(searchLimiter))
		r.Get("/agent/{id}/events", s.handleAgentEvents)
		r.Get("/locations", s.handleLocations)
		r.Get("/location/{name}", s.handleLocation)
		r.Get("/path", s.handlePath)
		r.Get("/jobs", s.handleJobs)
		r.Get("/events", s.handleEvents)

		// Admin endpoints (POST, require bearer token).
		r.Post("/pause", s.adminOnly(s.handlePause))
		r.Post("/resume", s.adminOnly(s.handleResume))
		r.Get("/speed", s.handleSpeed)
		r.Post("/speed", s.adminOnly(s.handleSpeed))
		r.Post("/snapshot", s.adminOnly(s.handleSnapshot))
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return goerr.Wrap(err, "HTTP server failed", goerr.V("addr", addr))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "HTTP server shutdown failed")
	}
	slog.Info("HTTP API stopped")
	return nil
}

// corsMiddleware adds CORS headers for allowed frontend origins.
// Set CORS_ORIGINS to a comma-separated list of allowed origins.
// Localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			origin = strings.TrimSpace(origin)
			if origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// checkBearerToken returns true if the request has a valid admin bearer token.
func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly wraps a handler to require bearer token auth on POST requests.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			if s.AdminKey == "" {
				http.Error(w, "admin endpoints disabled (no admin key set)", http.StatusForbidden)
				return
			}
			if !s.checkBearerToken(r) {
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
		}
		next(w, r)
	}
}

func parseLimit(r *http.Request) int {
	limit := defaultLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 && n <= maxLimit {
			limit = n
		}
	}
	return limit
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	tl := s.Sim.Timeline
	now := tl.Now()
	status := map[string]any{
		"name":       "mini-town",
		"time":       now,
		"sim_time":   engine.SimTime(now),
		"season":     tl.Season(),
		"daytime":    tl.IsDaytime(),
		"paused":     tl.Paused(),
		"time_scale": tl.TimeScale(),
		"population": s.Sim.Registry.Len(),
		"in_flight":  s.Sim.Registry.InFlight(),
		"ticks":      tl.Stats().Ticks,
	}
	writeJSON(w, status)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.Sim.Stats())
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	views := s.Sim.Registry.Snapshot()
	if loc := r.URL.Query().Get("location"); loc != "" {
		filtered := views[:0]
		for _, v := range views {
			if v.Location == loc {
				filtered = append(filtered, v)
			}
		}
		views = filtered
	}
	writeJSON(w, views)
}

func (s *Server) handleAgent(w http.ResponseWriter, r *http.Request) {
	a, ok := s.Sim.Registry.Get(chi.URLParam(r, "id"))
	if !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"agent":   a.View(),
		"persona": a.Persona,
		"idle":    a.IsIdle(),
	})
}

// handleMemories lists an agent's memories, or searches them when q is
// given. Searches embed the query and are rate limited.
func (s *Server) handleMemories(limiter *RateLimiter) http.HandlerFunc {
	search := RateLimitMiddleware(limiter, func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		scored := s.Sim.Memory.RetrieveScored(r.Context(), id, r.URL.Query().Get("q"), s.Sim.Timeline.Now(), parseLimit(r))
		writeJSON(w, scored)
	})

	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if _, ok := s.Sim.Registry.Get(id); !ok {
			http.Error(w, "agent not found", http.StatusNotFound)
			return
		}
		if s.Sim.Memory == nil {
			http.Error(w, "memory store not configured", http.StatusServiceUnavailable)
			return
		}
		if r.URL.Query().Get("q") != "" {
			search(w, r)
			return
		}

		all := s.Sim.Memory.GetAll(r.Context(), id)
		limit := parseLimit(r)
		if len(all) > limit {
			all = all[len(all)-limit:]
		}
		writeJSON(w, all)
	}
}

func (s *Server) handleAgentEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, ok := s.Sim.Registry.Get(id); !ok {
		http.Error(w, "agent not found", http.StatusNotFound)
		return
	}
	limit := parseLimit(r)

	if s.Events != nil {
		events, err := s.Events.RecentEvents(r.Context(), id, limit)
		if err != nil {
			slog.Error("failed to read event journal", "agent", id, "error", err)
			http.Error(w, "failed to read events", http.StatusInternalServerError)
			return
		}
		writeJSON(w, events)
		return
	}

	var out []engine.Entry
	recent := s.Sim.RecentEvents(-1)
	for i := len(recent) - 1; i >= 0 && len(out) < limit; i-- {
		if recent[i].AgentID == id {
			out = append(out, recent[i])
		}
	}
	writeJSON(w, out)
}

type locationSummary struct {
	world.Location
	Occupants []string       `json:"occupants"`
	Exits     map[string]int `json:"exits"`
}

func (s *Server) summarize(loc world.Location) locationSummary {
	out := locationSummary{Location: loc, Occupants: []string{}, Exits: s.Sim.Map.Neighbors(loc.Name)}
	for _, a := range s.Sim.Registry.AgentsAt(loc.Name) {
		out.Occupants = append(out.Occupants, a.ID)
	}
	return out
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	locs := s.Sim.Map.Locations()
	out := make([]locationSummary, len(locs))
	for i, loc := range locs {
		out[i] = s.summarize(loc)
	}
	writeJSON(w, out)
}

func (s *Server) handleLocation(w http.ResponseWriter, r *http.Request) {
	loc, ok := s.Sim.Map.Location(chi.URLParam(r, "name"))
	if !ok {
		http.Error(w, "location not found", http.StatusNotFound)
		return
	}
	writeJSON(w, s.summarize(loc))
}

func (s *Server) handlePath(w http.ResponseWriter, r *http.Request) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" || to == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	p, ok := s.Sim.Map.FindPath(from, to)
	if !ok {
		http.Error(w, "no path", http.StatusNotFound)
		return
	}
	writeJSON(w, p)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	type assignment struct {
		AgentID string `json:"agent_id"`
		world.Assignment
	}
	held := []assignment{}
	for _, a := range s.Sim.Registry.All() {
		if as, ok := s.Sim.Ledger.Assignment(a.ID); ok {
			held = append(held, assignment{AgentID: a.ID, Assignment: as})
		}
	}
	writeJSON(w, map[string]any{
		"available": s.Sim.Ledger.AllAvailableJobs(),
		"assigned":  held,
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.Sim.RecentEvents(-1)

	if cat := r.URL.Query().Get("category"); cat != "" {
		var filtered []engine.Entry
		for _, e := range events {
			if e.Category == cat {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}

	limit := parseLimit(r)
	start := 0
	if len(events) > limit {
		start = len(events) - limit
	}
	writeJSON(w, events[start:])
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.Sim.Timeline.Pause()
	writeJSON(w, map[string]bool{"paused": true})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.Sim.Timeline.Resume()
	writeJSON(w, map[string]bool{"paused": false})
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		var req struct {
			TimeScale float64 `json:"time_scale"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.TimeScale <= 0 || req.TimeScale > maxTimeScale {
			http.Error(w, "time_scale must be in (0, 1000]", http.StatusBadRequest)
			return
		}
		s.Sim.Timeline.SetTimeScale(req.TimeScale)
	}
	writeJSON(w, map[string]float64{"time_scale": s.Sim.Timeline.TimeScale()})
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	if err := s.Sim.Save(r.Context()); err != nil {
		slog.Error("snapshot failed", "error", err)
		http.Error(w, "snapshot failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]string{"status": "saved", "sim_time": engine.SimTime(s.Sim.Timeline.Now())})
}

func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Warn("failed to write response", "error", err)
	}
}
