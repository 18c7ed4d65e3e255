package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"
)

// Status is the lifecycle state of a managed process.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

// ErrAlreadyRunning is returned by Start while a previous Start is still supervising.
var ErrAlreadyRunning = errors.New("process: already running")

const (
	watchdogTimeout = 5 * time.Second
	readyPoll       = 100 * time.Millisecond

	// maxOutputLine flushes a partial output line that never ends.
	maxOutputLine = 4096
)

// Config describes a supervised child process.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// Restart relaunches the process after an unexpected exit. The delay
	// starts at RestartDelay and doubles per attempt up to MaxRestartDelay.
	// A run that lasted StableAfter resets the attempt count. MaxRestarts
	// caps consecutive attempts; 0 means no cap.
	Restart         bool
	RestartDelay    time.Duration
	MaxRestartDelay time.Duration
	StableAfter     time.Duration
	MaxRestarts     int

	// StopTimeout is the grace between SIGTERM and SIGKILL.
	StopTimeout time.Duration

	// Watchdog is polled every WatchdogInterval while the process runs.
	// WatchdogStrikes consecutive failures kill it.
	Watchdog         func(ctx context.Context) error
	WatchdogInterval time.Duration
	WatchdogStrikes  int

	// ReadyTimeout, when set, makes every start wait for the Watchdog to
	// pass once. A process that is not ready in time is killed.
	ReadyTimeout time.Duration

	// BeforeStart runs before every launch.
	BeforeStart func() error
}

// DefaultConfig returns a Config that restarts the process with backoff.
func DefaultConfig(name, binary string, args []string) Config {
	return Config{
		Name:             name,
		Binary:           binary,
		Args:             args,
		Restart:          true,
		RestartDelay:     5 * time.Second,
		MaxRestartDelay:  5 * time.Minute,
		StableAfter:      2 * time.Minute,
		MaxRestarts:      10,
		StopTimeout:      10 * time.Second,
		WatchdogInterval: 30 * time.Second,
		WatchdogStrikes:  3,
	}
}

// Logger is the logging interface used by the process manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Manager runs one child process and keeps it alive until stopped.
type Manager struct {
	cfg    Config
	logger Logger

	mu       sync.RWMutex
	status   Status
	pid      int
	started  time.Time
	restarts int
	lastErr  error

	cancel context.CancelFunc
	done   chan struct{}
}

// NewManager returns a stopped Manager. Zero durations get the DefaultConfig values.
func NewManager(cfg Config) *Manager {
	def := DefaultConfig(cfg.Name, cfg.Binary, cfg.Args)
	if cfg.RestartDelay == 0 {
		cfg.RestartDelay = def.RestartDelay
	}
	if cfg.MaxRestartDelay == 0 {
		cfg.MaxRestartDelay = def.MaxRestartDelay
	}
	if cfg.StableAfter == 0 {
		cfg.StableAfter = def.StableAfter
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = def.StopTimeout
	}
	if cfg.WatchdogInterval == 0 {
		cfg.WatchdogInterval = def.WatchdogInterval
	}
	if cfg.WatchdogStrikes == 0 {
		cfg.WatchdogStrikes = def.WatchdogStrikes
	}
	return &Manager{cfg: cfg, logger: noopLogger{}, status: StatusStopped}
}

// SetLogger sets the logger. Child output is logged at debug level.
func (m *Manager) SetLogger(logger Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// run is one launched instance of the process.
type run struct {
	cmd     *exec.Cmd
	started time.Time
	exited  chan struct{}
	err     error
}

// Start launches the process and returns once it runs (and is ready, with
// a ReadyTimeout). It is then supervised until ctx ends or Stop is called.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.done != nil && !isClosed(m.done) {
		m.mu.Unlock()
		return fmt.Errorf("%s: %w", m.cfg.Name, ErrAlreadyRunning)
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.status, m.cancel, m.done = StatusStarting, cancel, done
	m.mu.Unlock()

	r, err := m.launch(runCtx)
	if err != nil {
		cancel()
		m.mu.Lock()
		m.status, m.lastErr, m.cancel = StatusFailed, err, nil
		m.mu.Unlock()
		close(done)
		return err
	}

	go m.supervise(runCtx, r, done)
	return nil
}

// Stop terminates the process and any pending restart and waits until
// supervision has ended. The process gets StopTimeout to exit on SIGTERM.
func (m *Manager) Stop() error {
	m.mu.RLock()
	cancel, done := m.cancel, m.done
	m.mu.RUnlock()

	if cancel == nil {
		return nil
	}
	m.logger.Info("stopping process", "name", m.cfg.Name)
	cancel()
	<-done
	return nil
}

func (m *Manager) launch(ctx context.Context) (*run, error) {
	if m.cfg.BeforeStart != nil {
		if err := m.cfg.BeforeStart(); err != nil {
			return nil, fmt.Errorf("preparing %s: %w", m.cfg.Name, err)
		}
	}

	cmd := exec.CommandContext(ctx, m.cfg.Binary, m.cfg.Args...) //nolint:gosec // binary comes from operator config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return signalGroup(cmd, syscall.SIGTERM) }
	cmd.WaitDelay = m.cfg.StopTimeout
	cmd.Stdout = m.output("stdout")
	cmd.Stderr = m.output("stderr")

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", m.cfg.Name, err)
	}

	r := &run{cmd: cmd, started: time.Now(), exited: make(chan struct{})}
	go func() {
		r.err = cmd.Wait()
		close(r.exited)
	}()

	m.mu.Lock()
	m.status, m.pid, m.started = StatusRunning, cmd.Process.Pid, r.started
	m.mu.Unlock()
	m.logger.Info("process started", "name", m.cfg.Name, "pid", cmd.Process.Pid, "args", m.cfg.Args)

	if m.cfg.ReadyTimeout > 0 && m.cfg.Watchdog != nil {
		if err := m.awaitReady(ctx, r); err != nil {
			_ = signalGroup(cmd, syscall.SIGKILL)
			<-r.exited
			return nil, err
		}
	}
	return r, nil
}

// awaitReady polls the watchdog until it passes once.
func (m *Manager) awaitReady(ctx context.Context, r *run) error {
	deadline := time.NewTimer(m.cfg.ReadyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(readyPoll)
	defer tick.Stop()

	for {
		err := m.check(ctx)
		if err == nil {
			return nil
		}
		select {
		case <-r.exited:
			return fmt.Errorf("%s exited before it was ready: %w", m.cfg.Name, r.err)
		case <-deadline.C:
			return fmt.Errorf("%s not ready after %v: %w", m.cfg.Name, m.cfg.ReadyTimeout, err)
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
		}
	}
}

func (m *Manager) check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, watchdogTimeout)
	defer cancel()
	return m.cfg.Watchdog(ctx)
}

// supervise owns the process until ctx ends or restarts are exhausted.
func (m *Manager) supervise(ctx context.Context, r *run, done chan struct{}) {
	defer close(done)

	for {
		err := m.watch(ctx, r)
		if ctx.Err() != nil {
			m.logger.Info("process stopped", "name", m.cfg.Name)
			m.exited(nil)
			return
		}

		m.logger.Warn("process exited unexpectedly", "name", m.cfg.Name, "error", err)
		m.exited(err)
		if !m.cfg.Restart {
			return
		}
		if time.Since(r.started) >= m.cfg.StableAfter {
			m.mu.Lock()
			m.restarts = 0
			m.mu.Unlock()
		}

		if r = m.relaunch(ctx); r == nil {
			return
		}
	}
}

// watch waits for the run to end. The watchdog kills it after
// WatchdogStrikes failures in a row.
func (m *Manager) watch(ctx context.Context, r *run) error {
	if m.cfg.Watchdog == nil {
		<-r.exited
		return r.err
	}

	tick := time.NewTicker(m.cfg.WatchdogInterval)
	defer tick.Stop()

	strikes := 0
	for {
		select {
		case <-r.exited:
			return r.err
		case <-tick.C:
		}
		if ctx.Err() != nil {
			continue
		}

		err := m.check(ctx)
		if err == nil {
			if strikes > 0 {
				m.logger.Info("watchdog recovered", "name", m.cfg.Name, "strikes", strikes)
			}
			strikes = 0
			continue
		}

		strikes++
		m.logger.Warn("watchdog failed", "name", m.cfg.Name, "strikes", strikes, "error", err)
		if strikes < m.cfg.WatchdogStrikes {
			continue
		}
		m.logger.Error("watchdog gave up, killing process", "name", m.cfg.Name)
		_ = signalGroup(r.cmd, syscall.SIGKILL)
		<-r.exited
		return fmt.Errorf("killed after %d failed watchdog checks: %w", strikes, err)
	}
}

// relaunch retries launch with backoff. It returns nil when ctx ends or the
// attempts are used up.
func (m *Manager) relaunch(ctx context.Context) *run {
	for {
		m.mu.Lock()
		m.restarts++
		attempt := m.restarts
		m.mu.Unlock()

		if m.cfg.MaxRestarts > 0 && attempt > m.cfg.MaxRestarts {
			m.logger.Error("giving up on process", "name", m.cfg.Name, "restarts", attempt-1)
			return nil
		}

		delay := m.backoff(attempt)
		m.logger.Info("restarting process", "name", m.cfg.Name, "attempt", attempt, "delay", delay)
		select {
		case <-ctx.Done():
			m.exited(nil)
			return nil
		case <-time.After(delay):
		}

		r, err := m.launch(ctx)
		if err == nil {
			return r
		}
		if ctx.Err() != nil {
			m.exited(nil)
			return nil
		}
		m.logger.Error("restart failed", "name", m.cfg.Name, "error", err)
		m.exited(err)
	}
}

// exited records the end of a run. A nil err means a requested stop.
func (m *Manager) exited(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		m.status = StatusStopped
		return
	}
	m.status, m.lastErr = StatusFailed, err
}

// backoff returns RestartDelay doubled per attempt, capped at MaxRestartDelay.
func (m *Manager) backoff(attempt int) time.Duration {
	delay := m.cfg.RestartDelay
	for i := 1; i < attempt && delay < m.cfg.MaxRestartDelay; i++ {
		delay *= 2
	}
	return min(delay, m.cfg.MaxRestartDelay)
}

// Stats is a snapshot of the managed process for the status API.
type Stats struct {
	Name         string        `json:"name"`
	Status       Status        `json:"status"`
	PID          int           `json:"pid,omitempty"`
	Uptime       time.Duration `json:"uptime,omitempty"`
	RestartCount int           `json:"restart_count"`
	LastError    string        `json:"last_error,omitempty"`
}

// Stats returns the current state of the process.
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Stats{Name: m.cfg.Name, Status: m.status, PID: m.pid, RestartCount: m.restarts}
	if m.status == StatusRunning {
		s.Uptime = time.Since(m.started)
	}
	if m.lastErr != nil {
		s.LastError = m.lastErr.Error()
	}
	return s
}

// signalGroup signals the process group started with Setpgid. A group that
// is already gone is not an error.
func signalGroup(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	return nil
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

// output returns a writer that logs the child's stream line by line.
func (m *Manager) output(stream string) *lineLogger {
	return &lineLogger{emit: func(line string) {
		m.logger.Debug("process output", "name", m.cfg.Name, "stream", stream, "line", line)
	}}
}

// lineLogger is written to by a single exec copy goroutine.
type lineLogger struct {
	emit func(string)
	buf  []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.buf = append(l.buf, p...)
	for {
		i := bytes.IndexByte(l.buf, '\n')
		if i < 0 {
			break
		}
		l.emit(string(bytes.TrimRight(l.buf[:i], "\r")))
		l.buf = l.buf[i+1:]
	}
	if len(l.buf) > maxOutputLine {
		l.emit(string(l.buf))
		l.buf = l.buf[:0]
	}
	return len(p), nil
}
