// Package config loads the controller's YAML configuration.
//
// A Config describes one installation: the scene table, the mpv IPC socket,
// the pigpiod daemon driving the fog and water relays, the optional WLED
// strip, MQTT and InfluxDB, and the HTTP control API. Values are layered as
// defaults, then the file, then HZ_* environment variables, then Override
// funcs built from command-line flags. Load validates the result.
//
// Broker passwords and the InfluxDB token belong in HZ_MQTT_PASSWORD and
// HZ_INFLUXDB_TOKEN rather than the file.
//
//	cfg, err := config.Load("configs/config.yaml", func(c *config.Config) {
//	    c.Session.Mode = config.ModeBatch
//	})
//	if err != nil {
//	    return err
//	}
//	dial := cfg.PigpiodAddress()
package config
