// Package influxdb provides InfluxDB connectivity for scene telemetry.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, non-blocking batched writes, and health monitoring.
//
// # Purpose
//
// The controller only writes. Two measurements are recorded:
//   - scene_runs: one point per finished scene (duration, outcome, source)
//   - effect_transitions: one point per fog/water on or off switch
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB, cfg.Installation.ID, log)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteEffectTransition("fog", scene, runID, true, time.Now())
//
// # Error Handling
//
// Writes never block and never return an error. A batch the server rejects
// is reported to the Logger passed to Connect. Connection and health check
// errors are returned directly.
package influxdb
