package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/huettenzauber/internal/effect"
	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
	"github.com/nerrad567/huettenzauber/internal/lighting"
	"github.com/nerrad567/huettenzauber/internal/player"
	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// SourceBatch marks scenes started by batch mode.
const SourceBatch = "batch"

// Logger is the logging interface used by the session package.
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

// Deps are the long-lived collaborators of a Supervisor.
type Deps struct {
	Dialer Dialer
	Picker trigger.Picker

	// Controller is required in interactive mode.
	Controller *trigger.Controller

	// Lighting defaults to lighting.Nop.
	Lighting lighting.Controller

	// Observer receives scene and effect events. Optional.
	Observer runner.Observer

	Logger Logger
}

// Status is a snapshot of the supervisor for the status API.
type Status struct {
	Mode              string `json:"mode"`
	Connected         bool   `json:"connected"`
	Sessions          int    `json:"sessions"`
	ReconnectAttempts int    `json:"reconnect_attempts"`
	BatchPlayed       int    `json:"batch_played,omitempty"`
}

// Supervisor runs sessions and applies the retry policy.
type Supervisor struct {
	cfg  *config.Config
	deps Deps

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool

	mu          sync.Mutex
	runner      *runner.Runner
	connected   bool
	sessions    int
	attempts    int
	batchPlayed int
}

// New creates a supervisor.
func New(cfg *config.Config, deps Deps) *Supervisor {
	if deps.Lighting == nil {
		deps.Lighting = lighting.Nop{}
	}
	if deps.Logger == nil {
		deps.Logger = noopLogger{}
	}
	return &Supervisor{cfg: cfg, deps: deps, sleep: sleepCtx}
}

// Run loops over sessions until ctx is cancelled, batch mode completes, or
// the reconnect budget is spent. Cancellation returns nil.
func (s *Supervisor) Run(ctx context.Context) error {
	log := s.deps.Logger
	policy := s.cfg.Session

	for {
		if ctx.Err() != nil {
			return nil
		}

		err := s.runSession(ctx)
		switch {
		case ctx.Err() != nil:
			log.Info("supervisor stopped")
			return nil

		case err == nil:
			log.Info("session finished")
			return nil

		case isRefused(err):
			log.Warn("backend refused connection, retrying",
				"error", err, "retry_in", policy.RefusedBackoff)
			if !s.sleep(ctx, policy.RefusedBackoff) {
				return nil
			}

		case isChannelLoss(err):
			attempts := s.countAttempt()
			if attempts > policy.MaxReconnectAttempts {
				log.Error("connection lost, giving up",
					"error", err, "attempts", attempts, "max_attempts", policy.MaxReconnectAttempts)
				return fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts-1, err)
			}
			log.Warn("connection lost, reconnecting",
				"error", err, "attempt", attempts, "max_attempts", policy.MaxReconnectAttempts,
				"retry_in", policy.ReconnectBackoff)
			if !s.sleep(ctx, policy.ReconnectBackoff) {
				return nil
			}

		default:
			return err
		}
	}
}

// runSession dials, sets up, runs the mode and always closes the connections.
func (s *Supervisor) runSession(ctx context.Context) error {
	conns, err := s.deps.Dialer.Dial(ctx)
	if err != nil {
		return err
	}
	defer func() {
		s.setSession(nil)
		if err := conns.Close(); err != nil {
			s.deps.Logger.Debug("closing connections", "error", err)
		}
	}()

	if err := s.setup(ctx, conns); err != nil {
		return fmt.Errorf("session setup: %w", err)
	}

	r := runner.New(runner.Config{
		Monitor: player.NewMonitor(conns.Player, player.MonitorConfig{
			OnVideo:         s.cfg.Player.OnVideo,
			OffVideo:        s.cfg.Player.OffVideo,
			GracePeriod:     s.cfg.Player.GracePeriod,
			UnknownInterval: s.cfg.Player.UnknownPollInterval,
			MinInterval:     s.cfg.Player.MinPollInterval,
		}, s.deps.Logger),
		Lighting: s.deps.Lighting,
		Fog:      effect.NewFogActuator(conns.GPIO, s.cfg.Fog),
		Water:    effect.NewValveActuator(conns.GPIO, s.cfg.Water),
		Observer: s.deps.Observer,
		Logger:   s.deps.Logger,
	})
	s.setSession(r)

	s.deps.Logger.Info("session started", "mode", s.cfg.Session.Mode, "socket", s.cfg.PlayerSocket())

	if s.cfg.Session.Mode == config.ModeBatch {
		return s.runBatch(ctx, r)
	}
	return s.deps.Controller.Run(ctx, conns.GPIO, r)
}

// setup applies the per-session configuration. It is safe to repeat.
func (s *Supervisor) setup(ctx context.Context, conns *Connections) error {
	if err := conns.Player.SetVolume(ctx, s.cfg.Player.Volume); err != nil {
		return fmt.Errorf("set volume: %w", err)
	}

	for _, pin := range s.cfg.Buttons.GPIOPins {
		if err := conns.GPIO.SetMode(ctx, pin, pigpio.ModeInput); err != nil {
			return fmt.Errorf("button %d mode: %w", pin, err)
		}
		if err := conns.GPIO.SetPullUpDown(ctx, pin, pigpio.PullDown); err != nil {
			return fmt.Errorf("button %d pull-down: %w", pin, err)
		}
	}

	if err := s.deps.Lighting.Idle(ctx); err != nil {
		s.deps.Logger.Warn("lighting idle failed", "error", err)
	}

	if s.cfg.Session.ResetRetriesOnSuccess {
		s.mu.Lock()
		s.attempts = 0
		s.mu.Unlock()
	}
	return nil
}

// runBatch plays the remaining scenes of the batch with pauses in between.
// Progress survives reconnects.
func (s *Supervisor) runBatch(ctx context.Context, r *runner.Runner) error {
	batch := s.cfg.Session.Batch
	for {
		s.mu.Lock()
		played := s.batchPlayed
		s.mu.Unlock()
		if played >= batch.Count {
			return nil
		}
		if played > 0 && !s.sleep(ctx, batch.Pause) {
			return ctx.Err()
		}

		d := s.deps.Picker.Pick()
		s.deps.Logger.Info("batch scene", "index", played+1, "of", batch.Count, "scene", d.ClipName)

		err := r.Run(runner.WithSource(ctx, SourceBatch), d)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case runner.ConnectionLost(err):
			return err
		case err != nil:
			s.deps.Logger.Error("scene failed", "scene", d.ClipName, "error", err)
		}

		s.mu.Lock()
		s.batchPlayed++
		s.mu.Unlock()
	}
}

func (s *Supervisor) countAttempt() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	return s.attempts
}

func (s *Supervisor) setSession(r *runner.Runner) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runner = r
	s.connected = r != nil
	if r != nil {
		s.sessions++
	}
}

// Current returns the scene in progress, if any.
func (s *Supervisor) Current() (runner.Snapshot, bool) {
	s.mu.Lock()
	r := s.runner
	s.mu.Unlock()
	if r == nil {
		return runner.Snapshot{}, false
	}
	return r.Current()
}

// Status returns a snapshot of the supervisor.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Status{
		Mode:              s.cfg.Session.Mode,
		Connected:         s.connected,
		Sessions:          s.sessions,
		ReconnectAttempts: s.attempts,
		BatchPlayed:       s.batchPlayed,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
