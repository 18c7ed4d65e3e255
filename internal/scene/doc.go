// Package scene defines scene descriptors, their effect timing specs, the
// scene table loaded at startup, and weighted random selection.
//
// A scene table is a CSV file with the header
//
//	clip_name,clip_path,wled_command,fog_steps,water_steps,probability_weight
//
// Timing specs are dash-delimited seconds "delay-on-off", e.g. "2-3-2".
// An empty spec means the effect does not run in that scene.
//
// Usage:
//
//	table, err := scene.LoadTable(cfg.Scenes.Table)
//	if err != nil {
//	    return err // fatal at startup
//	}
//	picker, err := scene.NewPicker(table, nil)
//	next := picker.Pick()
package scene
