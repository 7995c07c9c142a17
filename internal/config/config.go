// Package config loads the server configuration from a YAML file with
// sane defaults for local runs.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full server configuration.
type Config struct {
	HTTP     HTTPConfig     `yaml:"http"`
	Log      LogConfig      `yaml:"log"`
	Postgres PostgresConfig `yaml:"postgres"`
	Redis    RedisConfig    `yaml:"redis"`
	Policies PoliciesConfig `yaml:"policies"`
	Events   EventsConfig   `yaml:"events"`
	Platform PlatformConfig `yaml:"platform"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "15s" or "2m".
type Duration time.Duration

// UnmarshalYAML parses the duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the standard library duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// HTTPConfig configures the REST listener.
type HTTPConfig struct {
	Port         int      `yaml:"port"`
	ReadTimeout  Duration `yaml:"readTimeout"`
	WriteTimeout Duration `yaml:"writeTimeout"`
	IdleTimeout  Duration `yaml:"idleTimeout"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// PostgresConfig configures the delegation ledger. An empty DSN selects
// the in-memory ledger (local runs and tests only).
type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig configures cross-instance lease coordination and the
// event stream. An empty address disables both.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// PoliciesConfig locates the authoritative policy directory.
type PoliciesConfig struct {
	Dir   string `yaml:"dir"`
	Watch bool   `yaml:"watch"`
}

// EventsConfig configures the delegation change event sink. Kind is one
// of "redis", "file" and "noop".
type EventsConfig struct {
	Kind        string `yaml:"kind"`
	Stream      string `yaml:"stream"`
	JournalPath string `yaml:"journalPath"`
}

// PlatformConfig holds the sibling platform service endpoints.
type PlatformConfig struct {
	ProfileURL          string `yaml:"profileUrl"`
	RegisterURL         string `yaml:"registerUrl"`
	SBLBridgeURL        string `yaml:"sblBridgeUrl"`
	ResourceRegistryURL string `yaml:"resourceRegistryUrl"`
}

// Default returns the local-run defaults.
func Default() Config {
	return Config{
		HTTP: HTTPConfig{
			Port:         8080,
			ReadTimeout:  Duration(15 * time.Second),
			WriteTimeout: Duration(15 * time.Second),
			IdleTimeout:  Duration(60 * time.Second),
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Policies: PoliciesConfig{
			Dir:   "policies",
			Watch: true,
		},
		Events: EventsConfig{
			Kind:   "noop",
			Stream: "delegationevents",
		},
	}
}

// Load reads the YAML file over the defaults. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}
