package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/logging"
	"github.com/nerrad567/huettenzauber/internal/process"
	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/scene"
	"github.com/nerrad567/huettenzauber/internal/session"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

type fakeSession struct {
	status  session.Status
	current *runner.Snapshot
}

func (f *fakeSession) Status() session.Status { return f.status }

func (f *fakeSession) Current() (runner.Snapshot, bool) {
	if f.current == nil {
		return runner.Snapshot{}, false
	}
	return *f.current, true
}

type fakeTrigger struct {
	err     error
	sources []string
}

func (f *fakeTrigger) Trigger(source string) error {
	if f.err != nil {
		return f.err
	}
	f.sources = append(f.sources, source)
	return nil
}

func (f *fakeTrigger) Status() trigger.Status {
	return trigger.Status{State: trigger.StateArmed.String(), Triggers: len(f.sources)}
}

type fakeBackend struct{ err error }

func (f fakeBackend) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.err
}

type fakePlayer struct{ stats process.Stats }

func (f fakePlayer) Stats() process.Stats { return f.stats }

// testServer creates a Server over fakes and a two-scene table.
func testServer(t *testing.T, interval time.Duration) (*Server, *fakeSession, *fakeTrigger) {
	t.Helper()

	table, err := scene.NewTable([]scene.Descriptor{
		{ClipName: "storm", ClipPath: "/clips/storm.mp4", FogSteps: "1-2-3", Weight: 3},
		{ClipName: "rain", ClipPath: "/clips/rain.mp4", Weight: 1},
	})
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	picker, err := scene.NewPicker(table, nil)
	if err != nil {
		t.Fatalf("NewPicker: %v", err)
	}

	sess := &fakeSession{status: session.Status{Mode: config.ModeInteractive, Connected: true, Sessions: 1}}
	trig := &fakeTrigger{}

	srv, err := New(Deps{
		Config:  config.APIConfig{Host: "127.0.0.1", Port: 0, TriggerInterval: interval},
		Logger:  logging.Discard(),
		Session: sess,
		Trigger: trig,
		Scenes:  table,
		Picker:  picker,
		Backends: map[string]HealthChecker{
			"mqtt":     fakeBackend{},
			"influxdb": fakeBackend{err: errors.New("influxdb: not connected")},
		},
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return srv, sess, trig
}

func do(t *testing.T, h http.Handler, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New without logger should fail")
	}
	if _, err := New(Deps{Logger: logging.Discard()}); err == nil {
		t.Error("New without session and trigger should fail")
	}
}

func TestHealth(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header not set")
	}
}

func TestStatus(t *testing.T) {
	srv, sess, _ := testServer(t, 0)
	sess.current = &runner.Snapshot{
		RunID:   "run-1",
		Scene:   "storm",
		Source:  trigger.SourceButton,
		Effects: []runner.EffectStatus{{Name: "fog", Steps: "1-2-3"}},
	}

	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !body.Session.Connected || body.Session.Mode != config.ModeInteractive {
		t.Errorf("session = %+v", body.Session)
	}
	if body.Trigger.State != "armed" {
		t.Errorf("trigger state = %q, want armed", body.Trigger.State)
	}
	if body.Current == nil || body.Current.Scene != "storm" || len(body.Current.Effects) != 1 {
		t.Errorf("current = %+v", body.Current)
	}
	if !body.Backends["mqtt"].Healthy || body.Backends["influxdb"].Healthy {
		t.Errorf("backends = %+v", body.Backends)
	}
	if body.Backends["influxdb"].Error != "influxdb: not connected" {
		t.Errorf("influxdb error = %q", body.Backends["influxdb"].Error)
	}
	if body.Player != nil {
		t.Errorf("unmanaged player reported: %+v", body.Player)
	}
	if body.Runtime.Goroutines == 0 {
		t.Error("runtime metrics missing")
	}
}

func TestStatus_ManagedPlayer(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	srv.player = fakePlayer{stats: process.Stats{Name: "mpv", Status: process.StatusRunning, PID: 4242, RestartCount: 1}}

	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status")
	var body statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Player == nil || body.Player.PID != 4242 || body.Player.Status != process.StatusRunning {
		t.Errorf("player = %+v", body.Player)
	}
}

func TestStatus_NoBackends(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	srv.backends = nil

	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status")
	if !strings.Contains(rec.Body.String(), `"backends":{}`) {
		t.Errorf("body = %s, want empty backends", rec.Body.String())
	}
}

func TestStatus_Idle(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/status")
	if strings.Contains(rec.Body.String(), `"current"`) {
		t.Errorf("idle status should omit current: %s", rec.Body.String())
	}
}

func TestListScenes(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/scenes")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var body struct {
		Scenes []struct {
			ClipName    string  `json:"clip_name"`
			FogSteps    string  `json:"fog_steps"`
			Probability float64 `json:"probability"`
		} `json:"scenes"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || len(body.Scenes) != 2 {
		t.Fatalf("count = %d, scenes = %d", body.Count, len(body.Scenes))
	}
	if body.Scenes[0].ClipName != "storm" || body.Scenes[0].Probability != 0.75 {
		t.Errorf("scenes[0] = %+v", body.Scenes[0])
	}
	if body.Scenes[0].FogSteps != "1-2-3" {
		t.Errorf("fog_steps = %q", body.Scenes[0].FogSteps)
	}
	if body.Scenes[1].Probability != 0.25 {
		t.Errorf("scenes[1] probability = %v", body.Scenes[1].Probability)
	}
}

func TestGetScene(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodGet, "/api/v1/scenes/rain")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body struct {
		ClipPath    string  `json:"clip_path"`
		Probability float64 `json:"probability"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.ClipPath != "/clips/rain.mp4" || body.Probability != 0.25 {
		t.Errorf("body = %+v", body)
	}

	rec = do(t, h, http.MethodGet, "/api/v1/scenes/blizzard")
	if rec.Code != http.StatusNotFound {
		t.Errorf("unknown scene status = %d, want 404", rec.Code)
	}
}

func TestTrigger(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"accepted", nil, http.StatusAccepted, ""},
		{"not armed", trigger.ErrNotArmed, http.StatusConflict, codeNotArmed},
		{"other failure", errors.New("boom"), http.StatusInternalServerError, codeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _, trig := testServer(t, 0)
			trig.err = tt.err

			rec := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/trigger")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if tt.wantCode == "" {
				if len(trig.sources) != 1 || trig.sources[0] != trigger.SourceAPI {
					t.Errorf("sources = %v", trig.sources)
				}
				return
			}
			var body apiError
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %q, want %q", body.Code, tt.wantCode)
			}
		})
	}
}

func TestTrigger_RateLimited(t *testing.T) {
	srv, _, trig := testServer(t, time.Hour)
	h := srv.buildRouter()

	if rec := do(t, h, http.MethodPost, "/api/v1/trigger"); rec.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d, want 202", rec.Code)
	}
	if rec := do(t, h, http.MethodPost, "/api/v1/trigger"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second trigger status = %d, want 429", rec.Code)
	}
	if len(trig.sources) != 1 {
		t.Errorf("triggers = %d, want 1", len(trig.sources))
	}
}

func TestRouter_NotFoundAndMethod(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	h := srv.buildRouter()

	if rec := do(t, h, http.MethodGet, "/api/v1/nope"); rec.Code != http.StatusNotFound {
		t.Errorf("unknown path status = %d, want 404", rec.Code)
	}
	if rec := do(t, h, http.MethodGet, "/api/v1/trigger"); rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /trigger status = %d, want 405", rec.Code)
	}
}

func TestErrorBody_CarriesRequestID(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scenes/blizzard", nil)
	req.Header.Set("X-Request-ID", "req-42")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	var body apiError
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != codeNotFound || body.RequestID != "req-42" {
		t.Errorf("body = %+v", body)
	}
}

func TestFail_UnknownCode(t *testing.T) {
	rec := httptest.NewRecorder()
	fail(rec, httptest.NewRequest(http.MethodGet, "/", nil), "teapot", "short and stout")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	h := srv.recoveryMiddleware(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := do(t, h, http.MethodGet, "/")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}

func TestRequestID_Propagated(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "abc123")
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "abc123" {
		t.Errorf("X-Request-ID = %q, want abc123", got)
	}
}

func TestRequestID_OversizedReplaced(t *testing.T) {
	srv, _, _ := testServer(t, 0)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", strings.Repeat("x", maxRequestIDLen+1))
	rec := httptest.NewRecorder()
	srv.buildRouter().ServeHTTP(rec, req)

	got := rec.Header().Get("X-Request-ID")
	if got == "" || len(got) > maxRequestIDLen {
		t.Errorf("X-Request-ID = %q, want a fresh ID", got)
	}
}

func TestStartAndClose(t *testing.T) {
	srv, _, _ := testServer(t, 0)

	if srv.Addr() != "" {
		t.Errorf("Addr() before Start = %q", srv.Addr())
	}
	if err := srv.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	if err != nil {
		t.Fatalf("GET health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}

	if err := srv.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
