// Package telemetry exports scene, effect and trigger events to MQTT and
// InfluxDB.
//
// Telemetry implements runner.Observer. Events are queued and delivered by
// Run on its own goroutine so a slow broker never delays an effect's
// timing. When the queue is full new events are dropped.
package telemetry

import (
	"context"
	"time"

	"github.com/nerrad567/huettenzauber/internal/effect"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/influxdb"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/mqtt"
	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

const queueSize = 64

// Publisher sends JSON events. *mqtt.Client implements it.
type Publisher interface {
	PublishJSON(topic string, v any, retained bool) error
}

// Recorder writes time series points. *influxdb.Client implements it.
type Recorder interface {
	WriteSceneRun(run influxdb.SceneRun)
	WriteEffectTransition(effect, scene, runID string, on bool, at time.Time)
}

// Logger is the logging interface used by the telemetry package.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// SceneStartedEvent is published when a scene starts.
type SceneStartedEvent struct {
	RunID   string    `json:"run_id"`
	Scene   string    `json:"scene"`
	Source  string    `json:"source"`
	Effects []string  `json:"effects"`
	Started time.Time `json:"started"`
}

// SceneFinishedEvent is published when a scene ends.
type SceneFinishedEvent struct {
	RunID      string    `json:"run_id"`
	Scene      string    `json:"scene"`
	Source     string    `json:"source"`
	Outcome    string    `json:"outcome"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	Finished   time.Time `json:"finished"`
}

// EffectEvent is published when an effect switches.
type EffectEvent struct {
	RunID  string    `json:"run_id"`
	Scene  string    `json:"scene"`
	Effect string    `json:"effect"`
	State  string    `json:"state"`
	At     time.Time `json:"at"`
}

// TriggerEvent is published (retained) when the trigger state changes.
type TriggerEvent struct {
	State string    `json:"state"`
	At    time.Time `json:"at"`
}

// Telemetry fans events out to the configured sinks. Both sinks are optional.
type Telemetry struct {
	pub    Publisher
	rec    Recorder
	topics mqtt.Topics
	logger Logger

	events chan func()
}

// New creates a Telemetry. A nil pub or rec disables that sink.
func New(pub Publisher, rec Recorder, topics mqtt.Topics, logger Logger) *Telemetry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Telemetry{
		pub:    pub,
		rec:    rec,
		topics: topics,
		logger: logger,
		events: make(chan func(), queueSize),
	}
}

// Run delivers queued events until ctx is cancelled, then drains the queue.
func (t *Telemetry) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case deliver := <-t.events:
					deliver()
				default:
					return nil
				}
			}
		case deliver := <-t.events:
			deliver()
		}
	}
}

func (t *Telemetry) enqueue(kind string, deliver func()) {
	select {
	case t.events <- deliver:
	default:
		t.logger.Debug("telemetry queue full, dropping event", "kind", kind)
	}
}

func (t *Telemetry) publish(topic string, v any, retained bool) {
	if t.pub == nil {
		return
	}
	if err := t.pub.PublishJSON(topic, v, retained); err != nil {
		t.logger.Warn("telemetry publish failed", "topic", topic, "error", err)
	}
}

// SceneStarted implements runner.Observer.
func (t *Telemetry) SceneStarted(ev runner.SceneEvent) {
	t.enqueue("scene_started", func() {
		t.publish(t.topics.SceneStarted(), SceneStartedEvent{
			RunID:   ev.RunID,
			Scene:   ev.Scene,
			Source:  ev.Source,
			Effects: ev.Effects,
			Started: ev.Started,
		}, false)
	})
}

// SceneFinished implements runner.Observer.
func (t *Telemetry) SceneFinished(ev runner.SceneEvent) {
	t.enqueue("scene_finished", func() {
		msg := SceneFinishedEvent{
			RunID:      ev.RunID,
			Scene:      ev.Scene,
			Source:     ev.Source,
			Outcome:    string(ev.Outcome),
			DurationMS: ev.Duration.Milliseconds(),
			Finished:   ev.Started.Add(ev.Duration),
		}
		if ev.Err != nil {
			msg.Error = ev.Err.Error()
		}
		t.publish(t.topics.SceneFinished(), msg, false)

		if t.rec != nil {
			t.rec.WriteSceneRun(influxdb.SceneRun{
				RunID:    ev.RunID,
				Scene:    ev.Scene,
				Source:   ev.Source,
				Outcome:  string(ev.Outcome),
				Started:  ev.Started,
				Duration: ev.Duration,
				Effects:  len(ev.Effects),
			})
		}
	})
}

// EffectChanged implements effect.Observer.
func (t *Telemetry) EffectChanged(tr effect.Transition) {
	t.enqueue("effect", func() {
		state := "off"
		if tr.On {
			state = "on"
		}
		t.publish(t.topics.Effect(tr.Effect), EffectEvent{
			RunID:  tr.RunID,
			Scene:  tr.Scene,
			Effect: tr.Effect,
			State:  state,
			At:     tr.At,
		}, false)

		if t.rec != nil {
			t.rec.WriteEffectTransition(tr.Effect, tr.Scene, tr.RunID, tr.On, tr.At)
		}
	})
}

// TriggerChanged publishes the retained trigger state.
// Pass it to trigger.Controller.OnStateChange.
func (t *Telemetry) TriggerChanged(s trigger.State) {
	at := time.Now()
	t.enqueue("trigger", func() {
		t.publish(t.topics.Trigger(), TriggerEvent{State: s.String(), At: at}, true)
	})
}

var _ runner.Observer = (*Telemetry)(nil)
