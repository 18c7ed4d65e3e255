package process

import (
	"context"
	"errors"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

func TestNewManager_Defaults(t *testing.T) {
	m := NewManager(Config{Name: "test-proc", Binary: "/usr/bin/test"})

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"RestartDelay", m.cfg.RestartDelay, 5 * time.Second},
		{"MaxRestartDelay", m.cfg.MaxRestartDelay, 5 * time.Minute},
		{"StableAfter", m.cfg.StableAfter, 2 * time.Minute},
		{"StopTimeout", m.cfg.StopTimeout, 10 * time.Second},
		{"WatchdogInterval", m.cfg.WatchdogInterval, 30 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
	if m.cfg.WatchdogStrikes != 3 {
		t.Errorf("WatchdogStrikes = %d, want 3", m.cfg.WatchdogStrikes)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("mpv", "/usr/bin/mpv", []string{"--idle=yes"})

	if cfg.Name != "mpv" || cfg.Binary != "/usr/bin/mpv" {
		t.Errorf("Name/Binary = %q/%q", cfg.Name, cfg.Binary)
	}
	if !cfg.Restart || cfg.MaxRestarts != 10 {
		t.Errorf("Restart/MaxRestarts = %v/%d, want true/10", cfg.Restart, cfg.MaxRestarts)
	}
}

func TestManager_InitialState(t *testing.T) {
	m := NewManager(Config{Name: "test", Binary: "/bin/true"})

	stats := m.Stats()
	if stats.Name != "test" || stats.Status != StatusStopped || stats.LastError != "" {
		t.Errorf("Stats() = %+v", stats)
	}
	if stats.PID != 0 || stats.Uptime != 0 {
		t.Errorf("PID/Uptime = %d/%v before Start, want 0/0", stats.PID, stats.Uptime)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() before Start error = %v", err)
	}
}

func TestManager_StartAndStop(t *testing.T) {
	m := NewManager(Config{
		Name:        "test-sleep",
		Binary:      "/bin/sleep",
		Args:        []string{"60"},
		StopTimeout: 2 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if stats := m.Stats(); stats.Status != StatusRunning || stats.PID == 0 {
		t.Errorf("Stats() after Start = %+v, want running with a PID", stats)
	}
	if err := m.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}

	start := time.Now()
	if err := m.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v, sleep should exit on SIGTERM", elapsed)
	}
	if got := m.Stats().Status; got != StatusStopped {
		t.Errorf("Status = %q after Stop(), want %q", got, StatusStopped)
	}
}

func TestManager_StopEscalatesToKill(t *testing.T) {
	m := NewManager(Config{
		Name:        "stubborn",
		Binary:      "/bin/sh",
		Args:        []string{"-c", "trap '' TERM; while :; do sleep 0.05; done"},
		StopTimeout: 200 * time.Millisecond,
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	time.Sleep(100 * time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		_ = m.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() did not kill a process ignoring SIGTERM")
	}
}

func TestManager_ContextCancelStops(t *testing.T) {
	m := NewManager(Config{Name: "test-sleep", Binary: "/bin/sleep", Args: []string{"60"}})

	ctx, cancel := context.WithCancel(context.Background())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	cancel()

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not end with the context")
	}
	if got := m.Stats().Status; got != StatusStopped {
		t.Errorf("Status = %q, want %q", got, StatusStopped)
	}
}

func TestManager_StartWithInvalidBinary(t *testing.T) {
	m := NewManager(Config{Name: "bad-binary", Binary: "/nonexistent/binary"})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start() with invalid binary expected error, got nil")
	}
	if got := m.Stats().Status; got != StatusFailed {
		t.Errorf("Status = %q, want %q", got, StatusFailed)
	}
	if err := m.Stop(); err != nil {
		t.Errorf("Stop() after failed start error = %v", err)
	}
}

func TestManager_BeforeStartFailure(t *testing.T) {
	m := NewManager(Config{
		Name:        "test",
		Binary:      "/bin/true",
		BeforeStart: func() error { return errors.New("socket path is a directory") },
	})

	err := m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "socket path is a directory") {
		t.Fatalf("Start() error = %v", err)
	}
	if m.Stats().PID != 0 {
		t.Error("process launched despite BeforeStart failure")
	}
}

func TestManager_RestartsUntilLimit(t *testing.T) {
	starts := filepath.Join(t.TempDir(), "starts")
	m := NewManager(Config{
		Name:            "crasher",
		Binary:          "/bin/sh",
		Args:            []string{"-c", "echo start >> " + starts + "; exit 3"},
		Restart:         true,
		RestartDelay:    10 * time.Millisecond,
		MaxRestartDelay: 20 * time.Millisecond,
		MaxRestarts:     2,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not give up after max restarts")
	}

	data, err := os.ReadFile(starts)
	if err != nil {
		t.Fatalf("read starts: %v", err)
	}
	if got := strings.Count(string(data), "start"); got != 3 {
		t.Errorf("starts = %d, want 3 (initial + 2 restarts)", got)
	}
	stats := m.Stats()
	if stats.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", stats.Status, StatusFailed)
	}
	if stats.LastError == "" {
		t.Error("LastError empty after crashes")
	}
	if stats.RestartCount != 3 {
		t.Errorf("RestartCount = %d, want 3", stats.RestartCount)
	}

	// Supervision has ended, so the process may be started again.
	if err := m.Start(ctx); err != nil {
		t.Errorf("Start() after giving up error = %v", err)
	}
	_ = m.Stop()
}

func TestManager_NoRestartWhenDisabled(t *testing.T) {
	m := NewManager(Config{Name: "once", Binary: "/bin/sh", Args: []string{"-c", "exit 1"}})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("supervision did not end after the process exited")
	}
	if stats := m.Stats(); stats.Status != StatusFailed || stats.RestartCount != 0 {
		t.Errorf("Stats() = %+v, want failed without restarts", stats)
	}
}

func TestManager_StopDuringRestartDelay(t *testing.T) {
	m := NewManager(Config{
		Name:            "crasher",
		Binary:          "/bin/sh",
		Args:            []string{"-c", "exit 1"},
		Restart:         true,
		RestartDelay:    time.Hour,
		MaxRestartDelay: time.Hour,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for m.Stats().Status != StatusFailed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	stopped := make(chan error, 1)
	go func() { stopped <- m.Stop() }()

	select {
	case err := <-stopped:
		if err != nil {
			t.Errorf("Stop() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop() blocked on the restart delay")
	}
	if got := m.Stats().Status; got != StatusStopped {
		t.Errorf("Status = %q, want %q", got, StatusStopped)
	}
}

func TestManager_WatchdogKills(t *testing.T) {
	m := NewManager(Config{
		Name:             "hung",
		Binary:           "/bin/sleep",
		Args:             []string{"60"},
		Watchdog:         func(context.Context) error { return errors.New("socket not answering") },
		WatchdogInterval: 10 * time.Millisecond,
		WatchdogStrikes:  2,
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	select {
	case <-m.done:
	case <-time.After(5 * time.Second):
		t.Fatal("watchdog did not kill the process")
	}
	if got := m.Stats().LastError; !strings.Contains(got, "watchdog") {
		t.Errorf("LastError = %q, want watchdog kill", got)
	}
}

func TestManager_ReadyTimeout(t *testing.T) {
	m := NewManager(Config{
		Name:         "never-ready",
		Binary:       "/bin/sleep",
		Args:         []string{"60"},
		Watchdog:     func(context.Context) error { return errors.New("connection refused") },
		ReadyTimeout: 150 * time.Millisecond,
	})

	start := time.Now()
	err := m.Start(context.Background())
	if err == nil || !strings.Contains(err.Error(), "not ready") {
		t.Fatalf("Start() error = %v, want not ready", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("Start() took %v", elapsed)
	}
	if got := m.Stats().Status; got != StatusFailed {
		t.Errorf("Status = %q, want %q", got, StatusFailed)
	}
}

func TestManager_ReadyWhenWatchdogPasses(t *testing.T) {
	ready := time.Now().Add(200 * time.Millisecond)
	m := NewManager(Config{
		Name:   "slow-start",
		Binary: "/bin/sleep",
		Args:   []string{"60"},
		Watchdog: func(context.Context) error {
			if time.Now().Before(ready) {
				return errors.New("connection refused")
			}
			return nil
		},
		WatchdogInterval: time.Hour,
		ReadyTimeout:     5 * time.Second,
	})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	defer m.Stop()

	if time.Now().Before(ready) {
		t.Error("Start() returned before the watchdog passed")
	}
}

func TestBackoff(t *testing.T) {
	m := NewManager(Config{
		Name:            "test",
		Binary:          "/bin/true",
		RestartDelay:    1 * time.Second,
		MaxRestartDelay: 30 * time.Second,
	})

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 8 * time.Second},
		{5, 16 * time.Second},
		{6, 30 * time.Second},
		{7, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := m.backoff(tt.attempt); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

func TestLineLogger(t *testing.T) {
	var lines []string
	l := &lineLogger{emit: func(s string) { lines = append(lines, s) }}

	l.Write([]byte("[cplayer] Playing: storm"))
	l.Write([]byte(".mp4\r\nAV: 00:00:01\n[ao] "))

	want := []string{"[cplayer] Playing: storm.mp4", "AV: 00:00:01"}
	if !slices.Equal(lines, want) {
		t.Errorf("lines = %q, want %q", lines, want)
	}

	l.Write([]byte(strings.Repeat("x", maxOutputLine)))
	if len(lines) != 3 || len(l.buf) != 0 {
		t.Errorf("overlong partial line not flushed: %d lines, %d buffered", len(lines), len(l.buf))
	}
}

func TestMPVArgs(t *testing.T) {
	cfg := config.PlayerConfig{
		Screen:    2,
		Volume:    65,
		ExtraArgs: []string{"--hwdec=auto"},
	}

	args := MPVArgs(cfg, "/tmp/mpv-socket-2")

	for _, want := range []string{
		"--idle=yes",
		"--input-ipc-server=/tmp/mpv-socket-2",
		"--screen=2",
		"--volume=65",
		"--hwdec=auto",
	} {
		if !slices.Contains(args, want) {
			t.Errorf("MPVArgs() = %v, missing %q", args, want)
		}
	}
	if args[len(args)-1] != "--hwdec=auto" {
		t.Error("extra args should come last")
	}
}

func TestNewMPV(t *testing.T) {
	m := NewMPV(config.PlayerConfig{
		Binary:             "/usr/bin/mpv",
		RestartDelay:       3 * time.Second,
		MaxRestartAttempts: 4,
	}, "/tmp/mpv-socket-1")

	if m.cfg.Name != "mpv" || m.cfg.Binary != "/usr/bin/mpv" {
		t.Errorf("config = %+v", m.cfg)
	}
	if m.cfg.RestartDelay != 3*time.Second || m.cfg.MaxRestarts != 4 {
		t.Errorf("restart policy = %v/%d", m.cfg.RestartDelay, m.cfg.MaxRestarts)
	}
	if m.cfg.Watchdog == nil || m.cfg.BeforeStart == nil || m.cfg.ReadyTimeout == 0 {
		t.Error("mpv manager needs a watchdog, a ready wait and stale socket cleanup")
	}
}

func TestRemoveStaleSocket(t *testing.T) {
	dir := t.TempDir()

	if err := removeStaleSocket(filepath.Join(dir, "missing.sock")); err != nil {
		t.Errorf("missing socket error = %v", err)
	}

	socket := filepath.Join(dir, "mpv.sock")
	ln, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	// Leave the file behind the way a crashed mpv does.
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	ln.Close()

	if err := removeStaleSocket(socket); err != nil {
		t.Fatalf("removeStaleSocket() error = %v", err)
	}
	if _, err := os.Stat(socket); !os.IsNotExist(err) {
		t.Error("stale socket still present")
	}

	regular := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(regular, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := removeStaleSocket(regular); err == nil {
		t.Error("regular file must not be removed")
	}
}

func TestSocketHealthCheck(t *testing.T) {
	socket := filepath.Join(t.TempDir(), "mpv.sock")
	check := SocketHealthCheck("unix", socket)

	if err := check(context.Background()); err == nil {
		t.Error("health check succeeded without a listener")
	}

	ln, err := net.Listen("unix", socket)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	if err := check(context.Background()); err != nil {
		t.Errorf("health check error = %v", err)
	}
}
