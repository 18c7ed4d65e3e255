package runner

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/huettenzauber/internal/effect"
	"github.com/nerrad567/huettenzauber/internal/hardware/pigpio"
	"github.com/nerrad567/huettenzauber/internal/lighting"
	"github.com/nerrad567/huettenzauber/internal/player"
	"github.com/nerrad567/huettenzauber/internal/scene"
)

// Monitor starts a clip and waits for playback to end. *player.Monitor implements it.
type Monitor interface {
	Start(ctx context.Context, clipPath string) error
	Wait(ctx context.Context) error
}

// Logger is the logging interface used by the runner package.
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

// Outcome classifies how a scene ended.
type Outcome string

const (
	OutcomeCompleted   Outcome = "completed"
	OutcomeInterrupted Outcome = "interrupted"
	OutcomeFailed      Outcome = "failed"
)

// SceneEvent describes a scene start or finish.
type SceneEvent struct {
	RunID   string
	Scene   string
	Source  string
	Effects []string
	Started time.Time

	// Set on finish only.
	Duration time.Duration
	Outcome  Outcome
	Err      error
}

// Observer receives scene and effect events. Implementations must not block.
type Observer interface {
	effect.Observer
	SceneStarted(ev SceneEvent)
	SceneFinished(ev SceneEvent)
}

type noopObserver struct{}

func (noopObserver) EffectChanged(effect.Transition) {}
func (noopObserver) SceneStarted(SceneEvent)         {}
func (noopObserver) SceneFinished(SceneEvent)        {}

// Config wires a Runner to the connections of one session.
type Config struct {
	Monitor  Monitor
	Lighting lighting.Controller

	// Fog and Water are optional; a scene using a missing actuator skips it.
	Fog   effect.Actuator
	Water effect.Actuator

	Observer Observer
	Logger   Logger

	// CleanupTimeout bounds each effect's final Off and Release.
	CleanupTimeout time.Duration
}

// EffectStatus is a running effect in a Snapshot.
type EffectStatus struct {
	Name  string `json:"name"`
	Steps string `json:"steps"`
}

// Snapshot is a read-only view of the scene in progress.
type Snapshot struct {
	RunID   string         `json:"run_id"`
	Scene   string         `json:"scene"`
	Source  string         `json:"source"`
	Started time.Time      `json:"started"`
	Effects []EffectStatus `json:"effects"`
}

// Runner plays scenes one at a time.
type Runner struct {
	cfg Config

	mu      sync.Mutex
	current *session
}

// New creates a Runner.
func New(cfg Config) *Runner {
	if cfg.Lighting == nil {
		cfg.Lighting = lighting.Nop{}
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.Logger == nil {
		cfg.Logger = noopLogger{}
	}
	return &Runner{cfg: cfg}
}

type sourceKey struct{}

// WithSource records what triggered the scene run in ctx.
func WithSource(ctx context.Context, source string) context.Context {
	return context.WithValue(ctx, sourceKey{}, source)
}

// SourceFrom returns the trigger source recorded by WithSource, or "unknown".
func SourceFrom(ctx context.Context) string {
	if s, ok := ctx.Value(sourceKey{}).(string); ok {
		return s
	}
	return "unknown"
}

// Run plays one scene and returns when playback ended, failed or ctx was
// cancelled. Every effect it started has stopped and switched Off by then.
func (r *Runner) Run(ctx context.Context, d scene.Descriptor) (err error) {
	log := r.cfg.Logger
	s := &session{
		runID:   uuid.NewString(),
		scene:   d,
		source:  SourceFrom(ctx),
		started: time.Now(),
	}

	r.setCurrent(s)
	defer r.setCurrent(nil)

	log.Info("scene starting",
		"run_id", s.runID, "scene", d.ClipName, "source", s.source,
		"lighting", d.LightingCommand, "fog_steps", d.FogSteps, "water_steps", d.WaterSteps)

	tasks, configErr := r.effectTasks(s)

	var effects []string
	defer func() {
		effErr := s.shutdown()
		if errors.Is(effErr, pigpio.ErrChannelLost) {
			effErr = fmt.Errorf("%w: %w", ErrHardwareChannelLost, effErr)
		}
		outcome := outcomeOf(err, effErr)
		err = errors.Join(err, effErr, configErr)
		r.finish(s, effects, outcome, err)
	}()

	if err := r.cfg.Monitor.Start(ctx, d.ClipPath); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return playbackError("start playback", err)
	}

	for _, t := range tasks {
		s.spawn(ctx, t)
	}
	effects = s.effectNames()

	r.cfg.Observer.SceneStarted(SceneEvent{
		RunID:   s.runID,
		Scene:   d.ClipName,
		Source:  s.source,
		Effects: effects,
		Started: s.started,
	})

	if d.LightingCommand != "" {
		if err := r.cfg.Lighting.Send(ctx, d.LightingCommand); err != nil {
			log.Error("lighting command failed", "run_id", s.runID, "scene", d.ClipName, "error", err)
		}
	}

	if err := r.cfg.Monitor.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return playbackError("wait for playback", err)
	}

	log.Info("playback finished", "run_id", s.runID, "scene", d.ClipName)
	if err := r.cfg.Lighting.Idle(ctx); err != nil {
		log.Error("lighting idle failed", "run_id", s.runID, "scene", d.ClipName, "error", err)
	}
	return nil
}

// effectTasks builds the tasks for the scene's effects. Malformed timings
// are skipped and reported as ErrConfigMalformed.
func (r *Runner) effectTasks(s *session) ([]*effect.Task, error) {
	effects := []struct {
		name     string
		raw      string
		actuator effect.Actuator
	}{
		{effect.NameFog, s.scene.FogSteps, r.cfg.Fog},
		{effect.NameWater, s.scene.WaterSteps, r.cfg.Water},
	}

	var tasks []*effect.Task
	var errs []error
	for _, eff := range effects {
		steps, err := scene.ParseSteps(eff.raw)
		switch {
		case err != nil:
			r.cfg.Logger.Warn("skipping effect with malformed timing",
				"run_id", s.runID, "scene", s.scene.ClipName, "effect", eff.name, "error", err)
			errs = append(errs, fmt.Errorf("%w: %s: %w", ErrConfigMalformed, eff.name, err))
		case steps == nil:
			// absent
		case eff.actuator == nil:
			r.cfg.Logger.Warn("no actuator configured, skipping effect",
				"run_id", s.runID, "scene", s.scene.ClipName, "effect", eff.name)
		default:
			tasks = append(tasks, &effect.Task{
				Name:           eff.name,
				Scene:          s.scene.ClipName,
				RunID:          s.runID,
				Actuator:       eff.actuator,
				Steps:          *steps,
				Observer:       r.cfg.Observer,
				Logger:         r.cfg.Logger,
				CleanupTimeout: r.cfg.CleanupTimeout,
			})
		}
	}
	return tasks, errors.Join(errs...)
}

func playbackError(op string, err error) error {
	// A request that never got an answer leaves mpv as unusable as a closed socket.
	if errors.Is(err, player.ErrChannelLost) || errors.Is(err, player.ErrRequestTimeout) {
		return fmt.Errorf("%w: %s: %w", ErrPlaybackChannelLost, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// outcomeOf classifies a run from its playback and effect errors.
// Skipped effects do not make a scene fail.
func outcomeOf(playErr, effErr error) Outcome {
	switch {
	case errors.Is(playErr, context.Canceled):
		return OutcomeInterrupted
	case playErr != nil || effErr != nil:
		return OutcomeFailed
	default:
		return OutcomeCompleted
	}
}

// finish logs the outcome and notifies the observer.
func (r *Runner) finish(s *session, effects []string, outcome Outcome, err error) {
	duration := time.Since(s.started)
	args := []any{"run_id", s.runID, "scene", s.scene.ClipName, "outcome", outcome, "duration", duration}
	if err != nil {
		r.cfg.Logger.Warn("scene ended", append(args, "error", err)...)
	} else {
		r.cfg.Logger.Info("scene ended", args...)
	}

	r.cfg.Observer.SceneFinished(SceneEvent{
		RunID:    s.runID,
		Scene:    s.scene.ClipName,
		Source:   s.source,
		Effects:  effects,
		Started:  s.started,
		Duration: duration,
		Outcome:  outcome,
		Err:      err,
	})
}

func (r *Runner) setCurrent(s *session) {
	r.mu.Lock()
	r.current = s
	r.mu.Unlock()
}

// Current returns the scene in progress, if any.
func (r *Runner) Current() (Snapshot, bool) {
	r.mu.Lock()
	s := r.current
	r.mu.Unlock()
	if s == nil {
		return Snapshot{}, false
	}
	return Snapshot{
		RunID:   s.runID,
		Scene:   s.scene.ClipName,
		Source:  s.source,
		Started: s.started,
		Effects: s.active(),
	}, true
}
