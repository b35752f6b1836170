package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Log             LogConfig      `yaml:"log"`
	Database        DatabaseConfig `yaml:"database"`
	MQTT            MQTTConfig     `yaml:"mqtt"`
	HTTP            HTTPConfig     `yaml:"http"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	Options         OptionsConfig  `yaml:"options"`
	Homes           []HomeConfig   `yaml:"homes"`
	Script          string         `yaml:"script"`           // Optional Lua automation script
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"` // General shutdown timeout for graceful stops
}

// LogConfig contains logging settings
type LogConfig struct {
	Level   string `yaml:"level"`
	Colors  bool   `yaml:"colors"`
	UseJSON bool   `yaml:"use_json"`
}

// GetLevel returns the configured level, lower-cased
func (c LogConfig) GetLevel() string {
	return strings.ToLower(c.Level)
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// MQTTConfig contains the device bridge settings.
// When disabled, commands are applied locally (dry run).
type MQTTConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Broker         string   `yaml:"broker"`
	ClientID       string   `yaml:"client_id"`
	Username       string   `yaml:"username"`
	Password       string   `yaml:"password"`
	TopicPrefix    string   `yaml:"topic_prefix"`
	QoS            int      `yaml:"qos"`
	ConnectTimeout Duration `yaml:"connect_timeout"`
	RateLimitRPS   float64  `yaml:"rate_limit_rps"` // Outgoing command rate (default: 10)
}

// HTTPConfig contains the API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// Addr returns host:port
func (c HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`    // Number of worker goroutines (default: 4)
	QueueSize int `yaml:"queue_size"` // Event queue size (default: 100)
}

// GetWorkers returns worker count with default
func (c *EventBusConfig) GetWorkers() int {
	if c.Workers <= 0 {
		return 4
	}
	return c.Workers
}

// GetQueueSize returns queue size with default
func (c *EventBusConfig) GetQueueSize() int {
	if c.QueueSize <= 0 {
		return 100
	}
	return c.QueueSize
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	CleanupInterval Duration `yaml:"cleanup_interval"`
	RetentionDays   int      `yaml:"retention_days"`
}

// Retention returns the retention window as a duration
func (c LedgerConfig) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// OptionsConfig selects which rooms, subgroups and switches become light entities
type OptionsConfig struct {
	Rooms     []string `yaml:"rooms"`
	Subgroups []string `yaml:"subgroups"`
	Switches  []string `yaml:"switches"`
}

// HomeConfig is one Cync home in the device inventory
type HomeConfig struct {
	Name     string         `yaml:"name"`
	Rooms    []RoomConfig   `yaml:"rooms"`
	Switches []SwitchConfig `yaml:"switches"`
}

// RoomConfig describes a room or subgroup
type RoomConfig struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Switches   []string `yaml:"switches"`
	Subgroups  []string `yaml:"subgroups"`
	ParentRoom string   `yaml:"parent_room"`
	IsSubgroup bool     `yaml:"is_subgroup"`
}

// SwitchConfig describes a switch and its capabilities
type SwitchConfig struct {
	DeviceID          string `yaml:"device_id"`
	Name              string `yaml:"name"`
	Room              string `yaml:"room"`
	Plug              bool   `yaml:"plug"`
	Fan               bool   `yaml:"fan"`
	SupportRGB        bool   `yaml:"support_rgb"`
	SupportColorTemp  bool   `yaml:"support_color_temp"`
	SupportBrightness bool   `yaml:"support_brightness"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes, expanding environment
// variables and applying defaults
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, err
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) setDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./cyncd.sqlite"
	}

	// MQTT defaults
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "cyncd"
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "cync"
	}
	if cfg.MQTT.ConnectTimeout == 0 {
		cfg.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if cfg.MQTT.RateLimitRPS == 0 {
		cfg.MQTT.RateLimitRPS = 10.0 // 10 commands per second
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	// Ledger defaults
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}
	if cfg.Ledger.RetentionDays == 0 {
		cfg.Ledger.RetentionDays = 30
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks settings that have no sensible default
func (cfg *Config) Validate() error {
	if cfg.MQTT.Enabled && cfg.MQTT.Broker == "" {
		return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
	}
	if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt.qos must be 0, 1 or 2, got %d", cfg.MQTT.QoS)
	}

	rooms := make(map[string]bool)
	switches := make(map[string]bool)
	for _, home := range cfg.Homes {
		for _, r := range home.Rooms {
			if r.ID == "" {
				return fmt.Errorf("home %q: room without id", home.Name)
			}
			rooms[r.ID] = true
		}
		for _, s := range home.Switches {
			if s.DeviceID == "" {
				return fmt.Errorf("home %q: switch without device_id", home.Name)
			}
			switches[s.DeviceID] = true
		}
	}

	for _, id := range cfg.Options.Rooms {
		if !rooms[id] {
			return fmt.Errorf("options.rooms: unknown room %q", id)
		}
	}
	for _, id := range cfg.Options.Subgroups {
		if !rooms[id] {
			return fmt.Errorf("options.subgroups: unknown room %q", id)
		}
	}
	for _, id := range cfg.Options.Switches {
		if !switches[id] {
			return fmt.Errorf("options.switches: unknown switch %q", id)
		}
	}
	return nil
}

// GetShutdownTimeout returns the graceful shutdown timeout
func (cfg *Config) GetShutdownTimeout() time.Duration {
	return cfg.ShutdownTimeout.Duration()
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
