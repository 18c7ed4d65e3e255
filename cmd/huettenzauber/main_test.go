package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
)

// writeInstallation creates a config file, a scene table and its clips in a
// temp dir. The player socket points at a path nothing listens on.
func writeInstallation(t *testing.T, extra string) string {
	t.Helper()
	dir := t.TempDir()

	for _, clip := range []string{"storm.mp4", "rain.mp4"} {
		if err := os.WriteFile(filepath.Join(dir, clip), []byte("x"), 0o600); err != nil {
			t.Fatalf("write clip: %v", err)
		}
	}

	table := "clip_name,clip_path,wled_command,fog_steps,water_steps,probability_weight\n" +
		"storm," + filepath.Join(dir, "storm.mp4") + ",/win&PL=1,2-5-10,,3\n" +
		"rain," + filepath.Join(dir, "rain.mp4") + ",,,0-4-4,1\n"
	tablePath := filepath.Join(dir, "scenes.csv")
	if err := os.WriteFile(tablePath, []byte(table), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}

	cfg := `
scenes:
  table: ` + tablePath + `
player:
  socket: ` + filepath.Join(dir, "mpv.sock") + `
  on_video: ` + filepath.Join(dir, "storm.mp4") + `
hardware:
  pigpiod_host: 127.0.0.1
  pigpiod_port: 1
buttons:
  gpio_pins: [17, 27]
session:
  refused_backoff: 50ms
logging:
  level: error
  format: text
  output: stderr
` + extra
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return cfgPath
}

func TestRun_InvalidConfig(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx, []string{"--config", "/nonexistent/path/config.yaml"})
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("error = %v, want loading config", err)
	}
}

func TestRun_ConfigFromEnv(t *testing.T) {
	t.Setenv("HZ_CONFIG", "/nonexistent/env/config.yaml")

	err := run(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "loading config") {
		t.Fatalf("run() error = %v, want loading config", err)
	}
}

func TestRun_InvalidSceneTable(t *testing.T) {
	cfgPath := writeInstallation(t, "")
	dir := filepath.Dir(cfgPath)
	bad := "clip_name,clip_path,wled_command,fog_steps,water_steps,probability_weight\n" +
		"ghost," + filepath.Join(dir, "missing.mp4") + ",,1-x-2,,1\n"
	if err := os.WriteFile(filepath.Join(dir, "scenes.csv"), []byte(bad), 0o600); err != nil {
		t.Fatalf("write table: %v", err)
	}

	err := run(context.Background(), []string{"--config", cfgPath})
	if err == nil || !strings.Contains(err.Error(), "loading scenes") {
		t.Fatalf("run() error = %v, want loading scenes", err)
	}
}

func TestRun_StopsCleanlyWhileBackendsRefuse(t *testing.T) {
	cfgPath := writeInstallation(t, "")

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := run(ctx, []string{"--config", cfgPath}); err != nil {
		t.Fatalf("run() error = %v, want nil on shutdown", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
}

func TestRun_WithAPI(t *testing.T) {
	cfgPath := writeInstallation(t, `
api:
  enabled: true
  host: 127.0.0.1
  port: 18089
`)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	if err := run(ctx, []string{"--config", cfgPath}); err != nil {
		t.Fatalf("run() error = %v", err)
	}
}

func TestRun_Help(t *testing.T) {
	err := run(context.Background(), []string{"--help"})
	if !errors.Is(err, pflag.ErrHelp) {
		t.Errorf("run(--help) error = %v, want ErrHelp", err)
	}
}

func TestParseFlags(t *testing.T) {
	t.Setenv("HZ_CONFIG", "")

	tests := []struct {
		name  string
		args  []string
		check func(t *testing.T, opts options, cfg *config.Config)
	}{
		{
			name: "defaults leave config untouched",
			args: nil,
			check: func(t *testing.T, opts options, cfg *config.Config) {
				if opts.configPath != defaultConfigPath {
					t.Errorf("configPath = %q", opts.configPath)
				}
				if cfg.Player.Volume != 55 || cfg.Player.Screen != 2 || cfg.Session.Mode != config.ModeInteractive {
					t.Errorf("cfg changed: %+v %+v", cfg.Player, cfg.Session)
				}
			},
		},
		{
			name: "volume and screen",
			args: []string{"--volume", "0", "-s", "0", "-c", "x.yaml"},
			check: func(t *testing.T, opts options, cfg *config.Config) {
				if opts.configPath != "x.yaml" {
					t.Errorf("configPath = %q", opts.configPath)
				}
				if cfg.Player.Volume != 0 || cfg.Player.Screen != 0 {
					t.Errorf("volume = %d, screen = %d, want 0, 0", cfg.Player.Volume, cfg.Player.Screen)
				}
			},
		},
		{
			name: "batch switches mode",
			args: []string{"--batch", "4"},
			check: func(t *testing.T, _ options, cfg *config.Config) {
				if cfg.Session.Mode != config.ModeBatch || cfg.Session.Batch.Count != 4 {
					t.Errorf("session = %+v", cfg.Session)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts, err := parseFlags(tt.args)
			if err != nil {
				t.Fatalf("parseFlags: %v", err)
			}
			cfg := &config.Config{
				Player:  config.PlayerConfig{Volume: 55, Screen: 2},
				Session: config.SessionConfig{Mode: config.ModeInteractive},
			}
			for _, o := range opts.overrides {
				o(cfg)
			}
			tt.check(t, opts, cfg)
		})
	}
}

func TestParseFlags_Errors(t *testing.T) {
	if _, err := parseFlags([]string{"--volume", "loud"}); err == nil {
		t.Error("non-integer volume should fail")
	}
	if _, err := parseFlags([]string{"extra"}); err == nil {
		t.Error("positional arguments should fail")
	}
}
