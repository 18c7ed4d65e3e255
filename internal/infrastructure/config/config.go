package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Hüttenzauber controller.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Installation InstallationConfig `yaml:"installation"`
	Scenes       ScenesConfig       `yaml:"scenes"`
	Player       PlayerConfig       `yaml:"player"`
	Hardware     HardwareConfig     `yaml:"hardware"`
	Buttons      ButtonsConfig      `yaml:"buttons"`
	Fog          FogConfig          `yaml:"fog"`
	Water        WaterConfig        `yaml:"water"`
	Lighting     LightingConfig     `yaml:"lighting"`
	Session      SessionConfig      `yaml:"session"`
	MQTT         MQTTConfig         `yaml:"mqtt"`
	InfluxDB     InfluxDBConfig     `yaml:"influxdb"`
	API          APIConfig          `yaml:"api"`
	Logging      LoggingConfig      `yaml:"logging"`
}

// InstallationConfig identifies this installation in telemetry and MQTT topics.
type InstallationConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// ScenesConfig locates the scene table.
type ScenesConfig struct {
	// Table is the path to the scene CSV file.
	Table string `yaml:"table"`
}

// PlayerConfig contains mpv player settings.
type PlayerConfig struct {
	// Socket is the mpv JSON IPC socket path.
	// Default: derived from Screen as /tmp/mpv-socket-<screen>.
	Socket string `yaml:"socket"`

	// Screen selects the display mpv renders on.
	Screen int `yaml:"screen"`

	// Volume is applied on every session setup (0-100).
	Volume int `yaml:"volume"`

	// OnVideo is the pre-roll bumper played before every clip.
	OnVideo string `yaml:"on_video"`

	// OffVideo is the optional post-roll bumper played after every clip.
	OffVideo string `yaml:"off_video"`

	// GracePeriod is how long to wait after loading before the first status poll.
	GracePeriod time.Duration `yaml:"grace_period"`

	// UnknownPollInterval is the re-poll delay when remaining time is unknown.
	UnknownPollInterval time.Duration `yaml:"unknown_poll_interval"`

	// MinPollInterval bounds the adaptive re-poll cadence near end-of-stream.
	MinPollInterval time.Duration `yaml:"min_poll_interval"`

	// RequestTimeout bounds a single IPC request/response.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Managed starts and supervises mpv as a child process.
	Managed bool `yaml:"managed"`

	// Binary is the mpv executable used when Managed is true.
	Binary string `yaml:"binary"`

	// ExtraArgs are appended to the managed mpv command line.
	ExtraArgs []string `yaml:"extra_args"`

	// RestartDelay is the wait between restarts of a managed mpv.
	RestartDelay time.Duration `yaml:"restart_delay"`

	// MaxRestartAttempts caps restarts of a managed mpv. 0 means unlimited.
	MaxRestartAttempts int `yaml:"max_restart_attempts"`
}

// HardwareConfig contains the pigpiod connection settings.
type HardwareConfig struct {
	Host           string        `yaml:"pigpiod_host"`
	Port           int           `yaml:"pigpiod_port"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// ButtonsConfig contains trigger button settings.
type ButtonsConfig struct {
	// GPIOPins are the BCM pins of the buttons. All must read high to trigger.
	GPIOPins []int `yaml:"gpio_pins"`

	// SettleDelay is the wait after a scene before the controller re-arms.
	SettleDelay time.Duration `yaml:"settle_delay"`

	// PollInterval is the sensor sampling interval while armed.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// FogConfig contains the fog machine servo settings.
type FogConfig struct {
	GPIOPin      int `yaml:"gpio_pin"`
	PWMFrequency int `yaml:"pwm_frequency"`
	PWMRange     int `yaml:"pwm_range"`
	RestDuty     int `yaml:"rest_duty"`
	OffDuty      int `yaml:"off_duty"`
	OnDuty       int `yaml:"on_duty"`
}

// WaterConfig contains the water valve settings.
type WaterConfig struct {
	GPIOPin int `yaml:"gpio_pin"`
}

// LightingConfig contains WLED controller settings.
type LightingConfig struct {
	Enabled     bool          `yaml:"enabled"`
	WLEDURL     string        `yaml:"wled_url"`
	OffCommand  string        `yaml:"off_command"`
	HTTPTimeout time.Duration `yaml:"http_timeout"`
}

// SessionConfig contains the supervisor retry policy and run mode.
type SessionConfig struct {
	// Mode is "interactive" (button triggered) or "batch" (fixed playlist).
	Mode string `yaml:"mode"`

	// RefusedBackoff is the wait between attempts while a backend refuses connections.
	RefusedBackoff time.Duration `yaml:"refused_backoff"`

	// ReconnectBackoff is the wait after a mid-session channel loss.
	ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`

	// MaxReconnectAttempts caps reconnects after mid-session channel loss.
	MaxReconnectAttempts int `yaml:"max_reconnect_attempts"`

	// ResetRetriesOnSuccess resets the reconnect counter after a session
	// survives setup. Default false: the counter accumulates for the process lifetime.
	ResetRetriesOnSuccess bool `yaml:"reset_retries_on_success"`

	Batch BatchConfig `yaml:"batch"`
}

// BatchConfig contains unattended playlist settings.
type BatchConfig struct {
	Count int           `yaml:"count"`
	Pause time.Duration `yaml:"pause"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings (seconds).
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`

	// TriggerInterval is the minimum spacing between accepted manual triggers.
	TriggerInterval time.Duration `yaml:"trigger_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Session modes.
const (
	ModeInteractive = "interactive"
	ModeBatch       = "batch"
)

// Override mutates a loaded configuration before validation.
// Command-line flags are applied this way.
type Override func(*Config)

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//  4. Overrides (command-line flags, override everything)
//
// Environment variables follow the pattern: HZ_SECTION_KEY
// For example: HZ_PLAYER_SOCKET, HZ_MQTT_PASSWORD
//
// Parameters:
//   - path: Path to the YAML configuration file
//   - overrides: Applied in order after environment variables
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string, overrides ...Override) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	for _, override := range overrides {
		override(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with the installation's usual defaults.
func defaultConfig() *Config {
	return &Config{
		Installation: InstallationConfig{
			ID:   "huette-01",
			Name: "Hüttenzauber",
		},
		Scenes: ScenesConfig{
			Table: "scenes.csv",
		},
		Player: PlayerConfig{
			Screen:              1,
			Volume:              80,
			GracePeriod:         5 * time.Second,
			UnknownPollInterval: 1 * time.Second,
			MinPollInterval:     250 * time.Millisecond,
			RequestTimeout:      5 * time.Second,
			Binary:              "/usr/bin/mpv",
			RestartDelay:        5 * time.Second,
			MaxRestartAttempts:  10,
		},
		Hardware: HardwareConfig{
			Host:           "localhost",
			Port:           8888,
			ConnectTimeout: 5 * time.Second,
			RequestTimeout: 2 * time.Second,
		},
		Buttons: ButtonsConfig{
			SettleDelay:  3 * time.Second,
			PollInterval: 100 * time.Millisecond,
		},
		Fog: FogConfig{
			PWMFrequency: 50,
			PWMRange:     1000,
		},
		Lighting: LightingConfig{
			OffCommand:  "/win&T=0",
			HTTPTimeout: 3 * time.Second,
		},
		Session: SessionConfig{
			Mode:                 ModeInteractive,
			RefusedBackoff:       10 * time.Second,
			ReconnectBackoff:     2 * time.Second,
			MaxReconnectAttempts: 10,
			Batch: BatchConfig{
				Count: 10,
				Pause: 5 * time.Second,
			},
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "huettenzauber",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		API: APIConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			TriggerInterval: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: HZ_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HZ_SCENES_TABLE"); v != "" {
		cfg.Scenes.Table = v
	}

	// Player
	if v := os.Getenv("HZ_PLAYER_SOCKET"); v != "" {
		cfg.Player.Socket = v
	}

	// Hardware
	if v := os.Getenv("HZ_PIGPIOD_HOST"); v != "" {
		cfg.Hardware.Host = v
	}
	if v := os.Getenv("HZ_PIGPIOD_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Hardware.Port = port
		}
	}

	// Lighting
	if v := os.Getenv("HZ_WLED_URL"); v != "" {
		cfg.Lighting.WLEDURL = v
	}

	// MQTT
	if v := os.Getenv("HZ_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HZ_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HZ_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("HZ_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// PlayerSocket returns the mpv IPC socket path, derived from the screen
// number when not set explicitly.
func (c *Config) PlayerSocket() string {
	if c.Player.Socket != "" {
		return c.Player.Socket
	}
	return fmt.Sprintf("/tmp/mpv-socket-%d", c.Player.Screen)
}

// PigpiodAddress returns the host:port of the pigpio daemon.
func (c *Config) PigpiodAddress() string {
	return fmt.Sprintf("%s:%d", c.Hardware.Host, c.Hardware.Port)
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of every validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Installation.ID == "" {
		errs = append(errs, "installation.id is required")
	}
	if c.Scenes.Table == "" {
		errs = append(errs, "scenes.table is required")
	}

	// Player
	if c.Player.OnVideo == "" {
		errs = append(errs, "player.on_video is required")
	}
	if c.Player.Volume < 0 || c.Player.Volume > 100 {
		errs = append(errs, "player.volume must be between 0 and 100")
	}
	if c.Player.GracePeriod < 0 || c.Player.UnknownPollInterval <= 0 || c.Player.MinPollInterval <= 0 {
		errs = append(errs, "player poll intervals must be positive")
	}

	// Hardware
	if c.Hardware.Port < 1 || c.Hardware.Port > 65535 {
		errs = append(errs, "hardware.pigpiod_port must be between 1 and 65535")
	}

	// Buttons
	if c.Session.Mode == ModeInteractive && len(c.Buttons.GPIOPins) == 0 {
		errs = append(errs, "buttons.gpio_pins must list at least one pin in interactive mode")
	}
	if c.Buttons.PollInterval <= 0 {
		errs = append(errs, "buttons.poll_interval must be positive")
	}

	// Lighting
	if c.Lighting.Enabled && c.Lighting.WLEDURL == "" {
		errs = append(errs, "lighting.wled_url is required when lighting is enabled")
	}

	// Session
	switch c.Session.Mode {
	case ModeInteractive:
	case ModeBatch:
		if c.Session.Batch.Count < 1 {
			errs = append(errs, "session.batch.count must be at least 1")
		}
	default:
		errs = append(errs, fmt.Sprintf("session.mode must be %q or %q", ModeInteractive, ModeBatch))
	}
	if c.Session.MaxReconnectAttempts < 0 {
		errs = append(errs, "session.max_reconnect_attempts must not be negative")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// API
	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
