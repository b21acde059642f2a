package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

// Config models tasktree.yml (or tasktree.toml).
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	NATS     NATSConfig     `yaml:"nats" toml:"nats"`
	Relay    RelayConfig    `yaml:"relay" toml:"relay"`
	Log      LogConfig      `yaml:"log" toml:"log"`
}

type DatabaseConfig struct {
	Workspace   string `yaml:"workspace" toml:"workspace"`
	BusyTimeout string `yaml:"busy_timeout" toml:"busy_timeout"`
}

type ServerConfig struct {
	Addr     string `yaml:"addr" toml:"addr"`
	BasePath string `yaml:"base_path" toml:"base_path"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
	// AllowActorHeader accepts an unauthenticated X-Actor-Id header. Local
	// development only.
	AllowActorHeader bool   `yaml:"allow_actor_header" toml:"allow_actor_header"`
	TokenTTL         string `yaml:"token_ttl" toml:"token_ttl"`
}

type NATSConfig struct {
	URL           string `yaml:"url" toml:"url"`
	SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix"`
}

type RelayConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Interval string `yaml:"interval" toml:"interval"`
	Batch    int    `yaml:"batch" toml:"batch"`
}

type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// FileNames lists the config files looked up in a workspace, in order.
var FileNames = []string{"tasktree.yml", "tasktree.yaml", "tasktree.toml"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{Workspace: ".", BusyTimeout: "5s"},
		Server:   ServerConfig{Addr: "127.0.0.1:8080", BasePath: "/v0"},
		Auth:     AuthConfig{TokenTTL: "24h"},
		NATS:     NATSConfig{SubjectPrefix: "tasktree.events"},
		Relay:    RelayConfig{Interval: "2s", Batch: 100},
		Log:      LogConfig{Level: "info", Format: "text"},
	}
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	if d, err := time.ParseDuration(c.Database.BusyTimeout); err != nil || d <= 0 {
		return fmt.Errorf("config.database.busy_timeout must be a positive duration")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if _, err := time.ParseDuration(c.Auth.TokenTTL); err != nil {
		return fmt.Errorf("config.auth.token_ttl: %w", err)
	}
	if c.Relay.Enabled {
		if c.NATS.URL == "" {
			return fmt.Errorf("config.nats.url is required when the relay is enabled")
		}
		if c.NATS.SubjectPrefix == "" {
			return fmt.Errorf("config.nats.subject_prefix is required when the relay is enabled")
		}
	}
	if d, err := time.ParseDuration(c.Relay.Interval); err != nil || d <= 0 {
		return fmt.Errorf("config.relay.interval must be a positive duration")
	}
	if c.Relay.Batch <= 0 {
		return fmt.Errorf("config.relay.batch must be positive")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.log.level must be one of debug, info, warn, error")
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("config.log.format must be text or json")
	}
	return nil
}

// RelayInterval returns the parsed relay poll interval.
func (c *Config) RelayInterval() time.Duration {
	d, _ := time.ParseDuration(c.Relay.Interval)
	return d
}

// BusyTimeout returns how long a writer waits for the database lock.
func (c *Config) BusyTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Database.BusyTimeout)
	return d
}

// TokenTTL returns the parsed lifetime of minted tokens.
func (c *Config) TokenTTL() time.Duration {
	d, _ := time.ParseDuration(c.Auth.TokenTTL)
	return d
}

// Path returns the first config file present in workspace, or the default
// YAML path when none exists.
func Path(fs afero.Fs, workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	for _, name := range FileNames {
		p := filepath.Join(workspace, name)
		if ok, _ := afero.Exists(fs, p); ok {
			return p
		}
	}
	return filepath.Join(workspace, FileNames[0])
}

// Load reads the workspace config, falling back to defaults when the file
// does not exist.
func Load(fs afero.Fs, workspace string) (*Config, error) {
	cfg, err := FromFile(fs, Path(fs, workspace))
	if errors.Is(err, os.ErrNotExist) {
		cfg = Default()
		if workspace != "" {
			cfg.Database.Workspace = workspace
		}
		return cfg, nil
	}
	return cfg, err
}

// FromFile reads a YAML or TOML config, chosen by extension.
func FromFile(fs afero.Fs, path string) (*Config, error) {
	data, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FromTOML(data)
	}
	return FromYAML(data)
}

// FromYAML parses and validates config from raw YAML bytes. Missing keys
// keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromTOML parses and validates config from raw TOML bytes.
func FromTOML(data []byte) (*Config, error) {
	cfg := Default()
	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("invalid config toml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Write stores cfg at path, as TOML when the extension asks for it.
func Write(fs afero.Fs, path string, cfg *Config) error {
	var buf bytes.Buffer
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return err
		}
	} else {
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	}
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return afero.WriteFile(fs, path, buf.Bytes(), 0o644)
}
