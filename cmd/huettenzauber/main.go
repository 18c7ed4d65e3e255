// Hüttenzauber scene controller.
//
// Waits for all trigger buttons to be pressed, plays a weighted-random scene
// on mpv and drives fog, water and WLED lighting alongside the video. The
// controller reconnects to mpv and pigpiod when either goes away.
//
// Usage:
//
//	huettenzauber --config /etc/huettenzauber/config.yaml [--volume 80] [--screen 1] [--batch 10]
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/huettenzauber/internal/api"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/influxdb"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/logging"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/mqtt"
	"github.com/nerrad567/huettenzauber/internal/lighting"
	"github.com/nerrad567/huettenzauber/internal/process"
	"github.com/nerrad567/huettenzauber/internal/scene"
	"github.com/nerrad567/huettenzauber/internal/session"
	"github.com/nerrad567/huettenzauber/internal/telemetry"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// options holds the parsed command line.
type options struct {
	configPath string
	overrides  []config.Override
}

// parseFlags reads the command line. Flags that were not given leave the
// configured value untouched.
func parseFlags(args []string) (options, error) {
	fs := pflag.NewFlagSet("huettenzauber", pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", getConfigPath(), "path to the YAML configuration file")
	volume := fs.IntP("volume", "v", 0, "player volume 0-100")
	screen := fs.IntP("screen", "s", 0, "display number for the player")
	batch := fs.IntP("batch", "b", 0, "play this many scenes back to back, then exit")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if fs.NArg() > 0 {
		return options{}, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}

	opts := options{configPath: *configPath}
	if fs.Changed("volume") {
		v := *volume
		opts.overrides = append(opts.overrides, func(c *config.Config) { c.Player.Volume = v })
	}
	if fs.Changed("screen") {
		s := *screen
		opts.overrides = append(opts.overrides, func(c *config.Config) { c.Player.Screen = s })
	}
	if fs.Changed("batch") {
		n := *batch
		opts.overrides = append(opts.overrides, func(c *config.Config) {
			c.Session.Mode = config.ModeBatch
			c.Session.Batch.Count = n
		})
	}
	return opts, nil
}

// getConfigPath returns the configuration file path.
// Uses HZ_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("HZ_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// run is the application logic, separated from main for testability.
// It returns nil on a clean shutdown or a completed batch.
func run(ctx context.Context, args []string) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}

	log := logging.Default()
	log.Info("starting Hüttenzauber",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	cfg, err := config.Load(opts.configPath, opts.overrides...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	log = logging.New(cfg.Logging, version)
	log.Info("configuration loaded", "path", opts.configPath)

	table, err := scene.LoadTable(scene.ExpandHome(cfg.Scenes.Table))
	if err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}
	picker, err := scene.NewPicker(table, nil)
	if err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}
	dumpStartup(log, cfg, table, picker)

	var player api.PlayerProcess
	if cfg.Player.Managed {
		mpv := process.NewMPV(cfg.Player, cfg.PlayerSocket())
		mpv.SetLogger(log.With("component", "mpv"))
		if err := mpv.Start(ctx); err != nil {
			return fmt.Errorf("starting mpv: %w", err)
		}
		defer func() {
			log.Info("stopping mpv")
			if stopErr := mpv.Stop(); stopErr != nil {
				log.Error("error stopping mpv", "error", stopErr)
			}
		}()
		player = mpv
	}

	// Telemetry sinks are optional; a broker or database outage must not
	// keep the scenes from playing.
	var (
		publisher telemetry.Publisher
		recorder  telemetry.Recorder
		backends  = map[string]api.HealthChecker{}
	)
	topics := mqtt.NewTopics(cfg.Installation.ID)

	var mqttClient *mqtt.Client
	if cfg.MQTT.Enabled {
		mqttClient, err = mqtt.Connect(cfg.MQTT, cfg.Installation.ID, log.With("component", "mqtt"))
		if err != nil {
			log.Warn("MQTT unavailable, continuing without it", "error", err)
		} else {
			defer func() {
				log.Info("disconnecting from MQTT")
				if closeErr := mqttClient.Close(); closeErr != nil {
					log.Error("error closing MQTT", "error", closeErr)
				}
			}()
			publisher = mqttClient
			backends["mqtt"] = mqttClient
			log.Info("MQTT connected",
				"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
				"client_id", cfg.MQTT.Broker.ClientID,
			)
		}
	}

	if cfg.InfluxDB.Enabled {
		influxClient, err := influxdb.Connect(cfg.InfluxDB, cfg.Installation.ID, log.With("component", "influxdb"))
		if err != nil {
			log.Warn("InfluxDB unavailable, continuing without it", "error", err)
		} else {
			defer func() {
				log.Info("closing InfluxDB connection")
				if closeErr := influxClient.Close(); closeErr != nil {
					log.Error("error closing InfluxDB", "error", closeErr)
				}
			}()
			recorder = influxClient
			backends["influxdb"] = influxClient
			log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
		}
	}

	tel := telemetry.New(publisher, recorder, topics, log)

	controller := trigger.New(trigger.Config{
		Pins:         cfg.Buttons.GPIOPins,
		SettleDelay:  cfg.Buttons.SettleDelay,
		PollInterval: cfg.Buttons.PollInterval,
	}, picker, log)
	controller.OnStateChange(tel.TriggerChanged)

	if mqttClient != nil {
		if err := telemetry.SubscribeTrigger(mqttClient, topics, controller, log); err != nil {
			log.Warn("remote trigger unavailable", "error", err)
		}
	}

	supervisor := session.New(cfg, session.Deps{
		Dialer:     session.NewNetDialer(cfg),
		Picker:     picker,
		Controller: controller,
		Lighting:   lighting.New(cfg.Lighting),
		Observer:   tel,
		Logger:     log,
	})

	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		// A finished batch or a fatal error ends the process.
		defer stop()
		return supervisor.Run(gctx)
	})
	g.Go(func() error {
		return tel.Run(gctx)
	})

	if cfg.API.Enabled {
		srv, err := api.New(api.Deps{
			Config:   cfg.API,
			Logger:   log,
			Session:  supervisor,
			Trigger:  controller,
			Scenes:   table,
			Picker:   picker,
			Backends: backends,
			Player:   player,
			Version:  version,
		})
		if err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("creating API server: %w", err)
		}
		if err := srv.Start(gctx); err != nil {
			stop()
			_ = g.Wait()
			return fmt.Errorf("starting API server: %w", err)
		}
		g.Go(func() error {
			<-gctx.Done()
			return srv.Close()
		})
	}

	log.Info("initialisation complete", "mode", cfg.Session.Mode)

	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("Hüttenzauber stopped")
	return nil
}

// dumpStartup logs the effective configuration and the scene table.
func dumpStartup(log *logging.Logger, cfg *config.Config, table *scene.Table, picker *scene.Picker) {
	log.Info("configuration",
		"installation", cfg.Installation.ID,
		"scene_table", cfg.Scenes.Table,
		"scenes", table.Len(),
		"mode", cfg.Session.Mode,
		"player_socket", cfg.PlayerSocket(),
		"screen", cfg.Player.Screen,
		"volume", cfg.Player.Volume,
		"pigpiod", cfg.PigpiodAddress(),
		"buttons", cfg.Buttons.GPIOPins,
		"fog_pin", cfg.Fog.GPIOPin,
		"water_pin", cfg.Water.GPIOPin,
		"lighting", cfg.Lighting.Enabled,
		"max_reconnect_attempts", cfg.Session.MaxReconnectAttempts,
		"reset_retries_on_success", cfg.Session.ResetRetriesOnSuccess,
	)
	for i, d := range table.Scenes() {
		log.Info("scene",
			"clip", d.ClipName,
			"path", d.ClipPath,
			"wled", d.LightingCommand,
			"fog", d.FogSteps,
			"water", d.WaterSteps,
			"weight", d.Weight,
			"probability", fmt.Sprintf("%.3f", picker.Probability(i)),
		)
	}
}
