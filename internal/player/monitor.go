package player

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/huettenzauber/internal/scene"
)

// Default monitor timings.
const (
	DefaultGracePeriod     = 5 * time.Second
	DefaultUnknownInterval = 1 * time.Second
	DefaultMinInterval     = 250 * time.Millisecond
)

// State is the observed playback state.
type State int

const (
	StatePlaying State = iota
	StateIdle
)

func (s State) String() string {
	if s == StateIdle {
		return "idle"
	}
	return "playing"
}

// Status is one playback observation.
type Status struct {
	State     State
	Remaining time.Duration
	// Known is false when the player could not report Remaining.
	Known bool
}

// MonitorConfig holds the bumpers and poll timings of a Monitor.
type MonitorConfig struct {
	// OnVideo plays before every clip. Optional.
	OnVideo string
	// OffVideo plays after every clip. Optional.
	OffVideo string

	GracePeriod     time.Duration
	UnknownInterval time.Duration
	MinInterval     time.Duration
}

// Logger is the logging interface used by the player package.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}

// Monitor starts scene clips and waits for them to finish.
type Monitor struct {
	player Player
	cfg    MonitorConfig
	logger Logger

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) bool
}

// NewMonitor creates a monitor for p. Zero timings take the defaults.
func NewMonitor(p Player, cfg MonitorConfig, logger Logger) *Monitor {
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	if cfg.UnknownInterval <= 0 {
		cfg.UnknownInterval = DefaultUnknownInterval
	}
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = DefaultMinInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Monitor{player: p, cfg: cfg, logger: logger, sleep: sleepCtx}
}

// Start replaces whatever is playing with on bumper, clip, off bumper.
func (m *Monitor) Start(ctx context.Context, clipPath string) error {
	if err := m.player.Stop(ctx); err != nil {
		return fmt.Errorf("stop: %w", err)
	}

	queue := make([]string, 0, 3)
	if m.cfg.OnVideo != "" {
		queue = append(queue, m.cfg.OnVideo)
	}
	queue = append(queue, clipPath)
	if m.cfg.OffVideo != "" {
		queue = append(queue, m.cfg.OffVideo)
	}

	for i, path := range queue {
		mode := LoadAppend
		if i == 0 {
			mode = LoadAppendPlay
		}
		path = scene.ExpandHome(path)
		if err := m.player.Load(ctx, path, mode); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}

	m.logger.Debug("playlist queued", "clip", clipPath, "items", len(queue))
	return nil
}

// Poll observes the player once.
func (m *Monitor) Poll(ctx context.Context) (Status, error) {
	idle, err := m.player.IsIdle(ctx)
	if err != nil {
		return Status{}, err
	}
	if idle {
		return Status{State: StateIdle}, nil
	}

	remaining, known, err := m.player.RemainingTime(ctx)
	if err != nil {
		return Status{}, err
	}
	return Status{State: StatePlaying, Remaining: remaining, Known: known}, nil
}

// Wait blocks until the player goes idle.
//
// It waits GracePeriod for playback to start, then polls: every
// UnknownInterval while the remaining time is unknown, otherwise after half
// the remaining time but never sooner than MinInterval. Cancellation stops
// the observation and returns ctx.Err(); the player keeps playing.
func (m *Monitor) Wait(ctx context.Context) error {
	if !m.sleep(ctx, m.cfg.GracePeriod) {
		return ctx.Err()
	}

	for {
		status, err := m.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if status.State == StateIdle {
			return nil
		}

		next := m.nextPoll(status)
		m.logger.Debug("playing", "remaining", status.Remaining, "known", status.Known, "next_poll", next)
		if !m.sleep(ctx, next) {
			return ctx.Err()
		}
	}
}

// nextPoll returns the delay before the next poll while playing.
func (m *Monitor) nextPoll(s Status) time.Duration {
	if !s.Known {
		return m.cfg.UnknownInterval
	}
	return max(s.Remaining/2, m.cfg.MinInterval)
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
