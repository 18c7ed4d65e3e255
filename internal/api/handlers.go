package api

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/huettenzauber/internal/process"
	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/scene"
	"github.com/nerrad567/huettenzauber/internal/session"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// statusResponse is the body of GET /status.
type statusResponse struct {
	Version  string                   `json:"version"`
	Uptime   string                   `json:"uptime"`
	Session  session.Status           `json:"session"`
	Trigger  trigger.Status           `json:"trigger"`
	Current  *runner.Snapshot         `json:"current,omitempty"`
	Player   *process.Stats           `json:"player,omitempty"`
	Backends map[string]backendHealth `json:"backends"`
	Runtime  runtimeMetrics           `json:"runtime"`
}

// backendHealth is the outcome of one backend's health check.
type backendHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// runtimeMetrics holds Go runtime statistics.
type runtimeMetrics struct {
	Goroutines   int    `json:"goroutines"`
	HeapAllocMB  uint64 `json:"heap_alloc_mb"`
	SysMB        uint64 `json:"sys_mb"`
	NumGC        uint32 `json:"num_gc"`
	GoVersion    string `json:"go_version"`
	PauseTotalMS int64  `json:"gc_pause_total_ms"`
}

func collectRuntime() runtimeMetrics {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return runtimeMetrics{
		Goroutines:   runtime.NumGoroutine(),
		HeapAllocMB:  m.HeapAlloc / (1 << 20),
		SysMB:        m.Sys / (1 << 20),
		NumGC:        m.NumGC,
		GoVersion:    runtime.Version(),
		PauseTotalMS: time.Duration(m.PauseTotalNs).Milliseconds(), //nolint:gosec // fits for any realistic uptime
	}
}

// checkBackends runs every backend health check concurrently.
func (s *Server) checkBackends(ctx context.Context) map[string]backendHealth {
	results := make(map[string]backendHealth, len(s.backends))
	var mu sync.Mutex

	var g errgroup.Group
	for name, backend := range s.backends {
		g.Go(func() error {
			checkCtx, cancel := context.WithTimeout(ctx, backendCheckTimeout)
			defer cancel()

			h := backendHealth{Healthy: true}
			if err := backend.HealthCheck(checkCtx); err != nil {
				h = backendHealth{Error: err.Error()}
			}
			mu.Lock()
			results[name] = h
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// handleStatus reports the supervisor, trigger, player and backend state.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Version:  s.version,
		Uptime:   time.Since(s.started).Truncate(time.Second).String(),
		Session:  s.session.Status(),
		Trigger:  s.trigger.Status(),
		Backends: s.checkBackends(r.Context()),
		Runtime:  collectRuntime(),
	}
	if snap, ok := s.session.Current(); ok {
		resp.Current = &snap
	}
	if s.player != nil {
		stats := s.player.Stats()
		resp.Player = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

// sceneEntry is one row of GET /scenes.
type sceneEntry struct {
	scene.Descriptor
	Probability float64 `json:"probability"`
}

// handleListScenes returns the scene table with selection probabilities.
func (s *Server) handleListScenes(w http.ResponseWriter, _ *http.Request) {
	if s.scenes == nil {
		writeJSON(w, http.StatusOK, map[string]any{"scenes": []sceneEntry{}, "count": 0})
		return
	}

	entries := make([]sceneEntry, 0, s.scenes.Len())
	for i, d := range s.scenes.Scenes() {
		entries = append(entries, s.entry(i, d))
	}
	writeJSON(w, http.StatusOK, map[string]any{"scenes": entries, "count": len(entries)})
}

func (s *Server) entry(i int, d scene.Descriptor) sceneEntry {
	e := sceneEntry{Descriptor: d}
	if s.picker != nil {
		e.Probability = s.picker.Probability(i)
	}
	return e
}

// handleGetScene returns one scene by clip name.
func (s *Server) handleGetScene(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if s.scenes == nil {
		fail(w, r, codeNotFound, "scene not found: "+name)
		return
	}
	d, i, ok := s.scenes.Lookup(name)
	if !ok {
		fail(w, r, codeNotFound, "scene not found: "+name)
		return
	}
	writeJSON(w, http.StatusOK, s.entry(i, d))
}

// handleTrigger requests a scene as if the buttons had been pressed.
func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow() {
		fail(w, r, codeRateLimited, "trigger rate limit exceeded")
		return
	}

	if err := s.trigger.Trigger(trigger.SourceAPI); err != nil {
		if errors.Is(err, trigger.ErrNotArmed) {
			fail(w, r, codeNotArmed, "controller is not armed")
			return
		}
		s.logger.Error("manual trigger failed", "error", err)
		fail(w, r, codeInternal, "trigger failed")
		return
	}

	s.logger.Info("manual trigger accepted",
		"remote", r.RemoteAddr,
		"request_id", requestID(r),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
