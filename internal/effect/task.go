package effect

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/huettenzauber/internal/scene"
)

// Effect names used in logs, events and the status API.
const (
	NameFog   = "fog"
	NameWater = "water"
)

// DefaultCleanupTimeout bounds the final Off and Release.
const DefaultCleanupTimeout = 5 * time.Second

// Logger is the logging interface used by the effect package.
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

// Transition is one On or Off switch of an effect.
type Transition struct {
	Effect string
	Scene  string
	RunID  string
	On     bool
	At     time.Time
}

// Observer receives effect transitions. Implementations must not block.
type Observer interface {
	EffectChanged(t Transition)
}

// Task is one effect running through its timing cycle for one scene.
type Task struct {
	Name     string
	Scene    string
	RunID    string
	Actuator Actuator
	Steps    scene.Steps

	// Observer is optional.
	Observer Observer

	// Logger is optional.
	Logger Logger

	// CleanupTimeout bounds the final Off and Release. Default: 5 seconds.
	CleanupTimeout time.Duration
}

// Run drives the actuator until ctx is cancelled.
//
// Cancellation is the normal way a task ends and returns nil. A hardware
// failure ends the cycle and returns an error wrapping ErrActuation. In both
// cases the actuator is switched Off and released before Run returns; a
// failure there is joined into the result as ErrCleanup.
func (t *Task) Run(ctx context.Context) (err error) {
	log := t.logger()
	on := false

	defer func() {
		if cerr := t.cleanup(ctx, on); cerr != nil {
			log.Error("effect cleanup failed", "effect", t.Name, "scene", t.Scene, "run_id", t.RunID, "error", cerr)
			err = errors.Join(err, cerr)
		}
	}()

	if err := t.Actuator.Prepare(ctx); err != nil {
		return t.failed(ctx, "prepare", err)
	}

	log.Debug("effect prepared", "effect", t.Name, "scene", t.Scene, "steps", t.Steps.String())

	if !sleep(ctx, t.Steps.Delay) {
		return nil
	}

	if t.Steps.Idle() {
		log.Warn("effect has zero on and off time, holding off", "effect", t.Name, "scene", t.Scene)
		<-ctx.Done()
		return nil
	}

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := t.Actuator.On(ctx); err != nil {
			return t.failed(ctx, "on", err)
		}
		on = true
		t.notify(true)

		if !sleep(ctx, t.Steps.On) {
			return nil
		}

		if err := t.Actuator.Off(ctx); err != nil {
			return t.failed(ctx, "off", err)
		}
		on = false
		t.notify(false)

		if !sleep(ctx, t.Steps.Off) {
			return nil
		}
	}
}

// failed classifies an actuator error. Errors caused by cancellation are
// not failures.
func (t *Task) failed(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	t.logger().Error("effect actuation failed", "effect", t.Name, "scene", t.Scene, "run_id", t.RunID, "op", op, "error", err)
	return fmt.Errorf("%w: %s %s: %w", ErrActuation, t.Name, op, err)
}

// cleanup switches the actuator off and releases it on a detached context.
func (t *Task) cleanup(ctx context.Context, wasOn bool) error {
	timeout := t.CleanupTimeout
	if timeout <= 0 {
		timeout = DefaultCleanupTimeout
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()

	var errs []error
	if err := t.Actuator.Off(cctx); err != nil {
		errs = append(errs, fmt.Errorf("%w: %s off: %w", ErrCleanup, t.Name, err))
	} else if wasOn {
		t.notify(false)
	}
	if err := t.Actuator.Release(cctx); err != nil {
		errs = append(errs, fmt.Errorf("%w: %s release: %w", ErrCleanup, t.Name, err))
	}
	return errors.Join(errs...)
}

func (t *Task) notify(on bool) {
	if t.Observer == nil {
		return
	}
	t.Observer.EffectChanged(Transition{
		Effect: t.Name,
		Scene:  t.Scene,
		RunID:  t.RunID,
		On:     on,
		At:     time.Now(),
	})
}

func (t *Task) logger() Logger {
	if t.Logger == nil {
		return noopLogger{}
	}
	return t.Logger
}

// sleep waits for d or until ctx is done. It reports whether the full
// duration elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
