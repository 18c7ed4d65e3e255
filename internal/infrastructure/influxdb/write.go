package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementSceneRuns         = "scene_runs"
	MeasurementEffectTransitions = "effect_transitions"
)

// SceneRun describes one finished scene for the scene_runs measurement.
type SceneRun struct {
	RunID    string
	Scene    string
	Source   string
	Outcome  string
	Started  time.Time
	Duration time.Duration
	Effects  int
}

// WriteSceneRun records a finished scene.
//
// Tags: installation, scene, source, outcome. Fields: run_id, duration_s, effects.
// The point is timestamped with the scene start. The write is non-blocking.
func (c *Client) WriteSceneRun(run SceneRun) {
	if !c.open() {
		return
	}

	point := write.NewPoint(
		MeasurementSceneRuns,
		map[string]string{
			"installation": c.installation,
			"scene":        run.Scene,
			"source":       run.Source,
			"outcome":      run.Outcome,
		},
		map[string]interface{}{
			"run_id":     run.RunID,
			"duration_s": run.Duration.Seconds(),
			"effects":    run.Effects,
		},
		run.Started,
	)

	c.writes.WritePoint(point)
}

// WriteEffectTransition records an effect switching on (state=1) or off (state=0).
//
// Example:
//
//	client.WriteEffectTransition("fog", "Lagerfeuer", runID, true, time.Now())
func (c *Client) WriteEffectTransition(effect, scene, runID string, on bool, at time.Time) {
	if !c.open() {
		return
	}

	state := 0
	if on {
		state = 1
	}

	point := write.NewPoint(
		MeasurementEffectTransitions,
		map[string]string{
			"installation": c.installation,
			"effect":       effect,
			"scene":        scene,
		},
		map[string]interface{}{
			"state":  state,
			"run_id": runID,
		},
		at,
	)

	c.writes.WritePoint(point)
}
