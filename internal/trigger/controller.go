package trigger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/scene"
)

// ErrNotArmed is returned by Trigger outside the Armed state.
var ErrNotArmed = errors.New("trigger: not armed")

// Trigger sources.
const (
	SourceButton = "button"
	SourceAPI    = "api"
	SourceMQTT   = "mqtt"
)

// State is the controller state.
type State int

const (
	StateDisarmed State = iota
	StateArmed
	StateTriggered
)

func (s State) String() string {
	switch s {
	case StateArmed:
		return "armed"
	case StateTriggered:
		return "triggered"
	default:
		return "disarmed"
	}
}

// Sensors reads button levels. *pigpio.Client implements it.
type Sensors interface {
	Levels(ctx context.Context, pins []int) ([]int, error)
}

// SceneRunner plays one scene synchronously. *runner.Runner implements it.
type SceneRunner interface {
	Run(ctx context.Context, d scene.Descriptor) error
}

// Picker chooses the next scene. *scene.Picker implements it.
type Picker interface {
	Pick() scene.Descriptor
}

// Logger is the logging interface used by the trigger package.
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

// Default timings.
const (
	DefaultSettleDelay  = 3 * time.Second
	DefaultPollInterval = 100 * time.Millisecond
)

// Config holds the controller settings.
type Config struct {
	Pins         []int
	SettleDelay  time.Duration
	PollInterval time.Duration
}

// Status is a snapshot of the controller.
type Status struct {
	State     string `json:"state"`
	LastScene string `json:"last_scene,omitempty"`
	Triggers  int    `json:"triggers"`
}

// Controller is the trigger state machine. It outlives sessions; Run is
// called once per session with that session's connections.
//
// Thread Safety: Trigger, State and Status are safe for concurrent use.
type Controller struct {
	cfg    Config
	picker Picker
	logger Logger

	requests chan string

	mu        sync.Mutex
	state     State
	lastScene string
	triggers  int

	onStateChange func(State)
}

// New creates a controller.
func New(cfg Config, picker Picker, logger Logger) *Controller {
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Controller{
		cfg:      cfg,
		picker:   picker,
		logger:   logger,
		requests: make(chan string, 1),
	}
}

// OnStateChange registers fn to be called on every state change. Must be
// set before Run. fn must not block.
func (c *Controller) OnStateChange(fn func(State)) {
	c.onStateChange = fn
}

// Run cycles the state machine until ctx is cancelled or a connection
// breaks. It returns ctx.Err() on cancellation, the sensor error when the
// buttons cannot be read, and scene errors that mean the player
// connection is gone. Other scene errors are logged and the cycle goes on.
func (c *Controller) Run(ctx context.Context, sensors Sensors, scenes SceneRunner) error {
	defer c.setState(StateDisarmed)

	for {
		c.setState(StateDisarmed)
		if !sleep(ctx, c.cfg.SettleDelay) {
			return ctx.Err()
		}

		source, err := c.armed(ctx, sensors)
		if err != nil {
			return err
		}

		if err := c.fire(ctx, scenes, source); err != nil {
			return err
		}
	}
}

// armed samples the buttons until they fire or a manual trigger arrives.
func (c *Controller) armed(ctx context.Context, sensors Sensors) (string, error) {
	c.drainRequests()

	levels, err := sensors.Levels(ctx, c.cfg.Pins)
	if err != nil {
		return "", c.sensorError(ctx, err)
	}
	prevAll := allActive(levels)

	c.setState(StateArmed)
	c.logger.Debug("armed", "pins", c.cfg.Pins, "held", prevAll)

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case source := <-c.requests:
			return source, nil
		case <-ticker.C:
			levels, err := sensors.Levels(ctx, c.cfg.Pins)
			if err != nil {
				return "", c.sensorError(ctx, err)
			}
			all := allActive(levels)
			if all && !prevAll {
				return SourceButton, nil
			}
			prevAll = all
		}
	}
}

func (c *Controller) sensorError(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return fmt.Errorf("read buttons: %w", err)
}

// fire runs one scene. It returns only errors that end the session.
func (c *Controller) fire(ctx context.Context, scenes SceneRunner, source string) error {
	c.setState(StateTriggered)
	d := c.picker.Pick()

	c.mu.Lock()
	c.lastScene = d.ClipName
	c.triggers++
	c.mu.Unlock()

	c.logger.Info("triggered", "source", source, "scene", d.ClipName)

	err := scenes.Run(runner.WithSource(ctx, source), d)
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case runner.ConnectionLost(err):
		return err
	case err != nil:
		c.logger.Error("scene failed", "scene", d.ClipName, "error", err)
	}
	return nil
}

// Trigger requests a scene from a non-button source.
// Returns ErrNotArmed unless the controller is Armed.
func (c *Controller) Trigger(source string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateArmed {
		return ErrNotArmed
	}
	select {
	case c.requests <- source:
	default:
		// one request already pending
	}
	return nil
}

func (c *Controller) drainRequests() {
	select {
	case <-c.requests:
	default:
	}
}

// currentState returns the current state.
func (c *Controller) currentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Status returns a snapshot for the status API.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{State: c.state.String(), LastScene: c.lastScene, Triggers: c.triggers}
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	changed := c.state != s
	c.state = s
	c.mu.Unlock()

	if changed && c.onStateChange != nil {
		c.onStateChange(s)
	}
}

// allActive reports whether every level is high. No pins is never active.
func allActive(levels []int) bool {
	if len(levels) == 0 {
		return false
	}
	for _, l := range levels {
		if l == 0 {
			return false
		}
	}
	return true
}

func sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
