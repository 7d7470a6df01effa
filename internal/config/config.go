// Package config loads aiden-watch settings from defaults, a YAML file and
// AIDEN_WATCH_* environment variables.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aiden-platform/aiden-watch/internal/progress"
	"github.com/aiden-platform/aiden-watch/internal/stream"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to environment overrides, e.g. AIDEN_WATCH_SERVER_TOKEN.
const EnvPrefix = "AIDEN_WATCH"

// Config represents the complete aiden-watch configuration
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	Stream StreamConfig `mapstructure:"stream" yaml:"stream"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
	Stages StagesConfig `mapstructure:"stages" yaml:"stages"`
}

// ServerConfig locates the AIDEN backend
type ServerConfig struct {
	// BaseURL is the HTTP origin; the feed URL is derived from it.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	// Token is sent as a bearer token when set.
	Token string `mapstructure:"token" yaml:"token,omitempty"`
}

// StreamConfig tunes reconnection and keep-alive
type StreamConfig struct {
	ReconnectBase time.Duration `mapstructure:"reconnect_base" yaml:"reconnect_base"`
	ReconnectMax  time.Duration `mapstructure:"reconnect_max" yaml:"reconnect_max"`
	PingInterval  time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
}

// LogConfig controls the log file
type LogConfig struct {
	// Path defaults to ~/.aiden/aiden-watch.log when empty.
	Path  string `mapstructure:"path" yaml:"path"`
	Level string `mapstructure:"level" yaml:"level"`
}

// StagesConfig holds the stage tables used for progress
type StagesConfig struct {
	Default progress.Table `mapstructure:"default" yaml:"default"`
	// Targets overrides the table per project id. Keys are lowercased by
	// the loader.
	Targets map[string]progress.Table `mapstructure:"targets" yaml:"targets,omitempty"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			BaseURL: "http://127.0.0.1:8000",
		},
		Stream: StreamConfig{
			ReconnectBase: stream.DefaultReconnectBase,
			ReconnectMax:  stream.DefaultReconnectMax,
			PingInterval:  stream.DefaultPingInterval,
		},
		Log: LogConfig{
			Level: "info",
		},
		Stages: StagesConfig{
			Default: progress.DefaultStages(),
		},
	}
}

// SetDefaults registers defaults on v and binds the environment.
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("server.base_url", defaults.Server.BaseURL)
	v.SetDefault("server.token", defaults.Server.Token)

	v.SetDefault("stream.reconnect_base", defaults.Stream.ReconnectBase)
	v.SetDefault("stream.reconnect_max", defaults.Stream.ReconnectMax)
	v.SetDefault("stream.ping_interval", defaults.Stream.PingInterval)

	v.SetDefault("log.path", defaults.Log.Path)
	v.SetDefault("log.level", defaults.Log.Level)

	v.SetDefault("stages.default", defaults.Stages.Default)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads the configuration from v into a Config struct and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}
	return &cfg, nil
}

// LoadFile loads defaults, path and the environment with a fresh viper.
func LoadFile(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	return Load(v)
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "aiden-watch")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".aiden-watch"
	}
	return filepath.Join(home, ".config", "aiden-watch")
}

// ConfigFile returns the path to the config file
func ConfigFile() string {
	return filepath.Join(ConfigDir(), "config.yaml")
}

// WriteDefault writes a starter config file. An existing file is left alone.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config %s already exists", path)
	}
	data, err := yaml.Marshal(Default())
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}

// StagesFor returns the stage table for target, falling back to the
// configured default and then the built-in pipeline.
func (c *Config) StagesFor(target string) progress.Table {
	if t, ok := c.Stages.Targets[strings.ToLower(target)]; ok && len(t) > 0 {
		return t
	}
	if len(c.Stages.Default) > 0 {
		return c.Stages.Default
	}
	return progress.DefaultStages()
}

// WSBaseURL maps the HTTP base URL onto the websocket scheme.
func (c *Config) WSBaseURL() string {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return c.Server.BaseURL
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	return strings.TrimRight(u.String(), "/")
}

// HTTPBaseURL maps a websocket base URL back onto HTTP.
func (c *Config) HTTPBaseURL() string {
	u, err := url.Parse(c.Server.BaseURL)
	if err != nil {
		return c.Server.BaseURL
	}
	switch u.Scheme {
	case "wss":
		u.Scheme = "https"
	case "ws":
		u.Scheme = "http"
	}
	return strings.TrimRight(u.String(), "/")
}
