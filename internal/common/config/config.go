package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
)

const (
	// DefaultCheckInterval is used by watch when no interval is configured
	DefaultCheckInterval = 15 * time.Minute
	// DefaultStateFile is the state file name inside the data directory
	DefaultStateFile = "version_data.json"
	// DefaultSourcesFile is the sources file name inside the config directory
	DefaultSourcesFile = "sources.toml"
)

// Config represents the application configuration
type Config struct {
	StateFile     string     `yaml:"state_file" validate:"required"`
	SourcesFile   string     `yaml:"sources_file" validate:"required"`
	HistoryDB     string     `yaml:"history_db,omitempty"`
	CheckInterval string     `yaml:"check_interval" validate:"omitempty,duration"`
	Log           LogConfig  `yaml:"log"`
	HTTP          HTTPConfig `yaml:"http"`
}

// LogConfig holds logging settings
type LogConfig struct {
	Level      string `yaml:"level" validate:"omitempty,loglevel"`
	File       string `yaml:"file,omitempty"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
}

// HTTPConfig holds settings for store page fetches
type HTTPConfig struct {
	Timeout    string `yaml:"timeout" validate:"omitempty,duration"`
	MaxRetries int    `yaml:"max_retries" validate:"gte=0,lte=10"`
	UserAgent  string `yaml:"user_agent,omitempty"` // Overrides the browser-like default
}

// ConfigPaths returns all possible config file paths in priority order
// 1. ~/.config/storewatch/config.yaml (XDG standard - priority)
// 2. ~/.storewatch/config.yaml (legacy fallback)
func ConfigPaths() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	xdgConfig := os.Getenv("XDG_CONFIG_HOME")
	if xdgConfig == "" {
		xdgConfig = filepath.Join(home, ".config")
	}

	return []string{
		filepath.Join(xdgConfig, "storewatch", "config.yaml"),
		filepath.Join(home, ".storewatch", "config.yaml"),
	}, nil
}

// DefaultConfigPath returns the default config file path (XDG standard)
func DefaultConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}
	return paths[0], nil
}

// FindConfigPath returns the first existing config file path
// Returns the default path if no config file exists yet
func FindConfigPath() (string, error) {
	paths, err := ConfigPaths()
	if err != nil {
		return "", err
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return paths[0], nil
}

// DataDir returns the directory holding the state file and history database
func DataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	xdgData := os.Getenv("XDG_DATA_HOME")
	if xdgData == "" {
		xdgData = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(xdgData, "storewatch"), nil
}

// Default returns the configuration written when none exists yet.
// The sources file sits next to configPath.
func Default(configPath string) (*Config, error) {
	dataDir, err := DataDir()
	if err != nil {
		return nil, err
	}
	return &Config{
		StateFile:     filepath.Join(dataDir, DefaultStateFile),
		SourcesFile:   filepath.Join(filepath.Dir(configPath), DefaultSourcesFile),
		CheckInterval: DefaultCheckInterval.String(),
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  5,
			MaxBackups: 3,
		},
		HTTP: HTTPConfig{
			Timeout:    "30s",
			MaxRetries: 3,
		},
	}, nil
}

// Load reads configuration from the first available config file
func Load() (*Config, error) {
	configPath, err := FindConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(configPath)
}

// LoadFrom reads configuration from a specific file path.
// A missing file is created with defaults.
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg, defErr := Default(path)
			if defErr != nil {
				return nil, defErr
			}
			if saveErr := cfg.SaveTo(path); saveErr != nil {
				return nil, saveErr
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SaveTo writes configuration to a specific file path
func (c *Config) SaveTo(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate checks field constraints
func (c *Config) Validate() error {
	validate := validator.New()

	_ = validate.RegisterValidation("duration", func(fl validator.FieldLevel) bool {
		d, err := time.ParseDuration(fl.Field().String())
		return err == nil && d > 0
	})

	_ = validate.RegisterValidation("loglevel", func(fl validator.FieldLevel) bool {
		switch strings.ToLower(fl.Field().String()) {
		case "debug", "info", "warn", "warning", "error", "quiet":
			return true
		default:
			return false
		}
	})

	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed '%s'", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Interval returns the watch interval, falling back to DefaultCheckInterval
func (c *Config) Interval() time.Duration {
	if d, err := time.ParseDuration(c.CheckInterval); err == nil && d > 0 {
		return d
	}
	return DefaultCheckInterval
}

// HTTPTimeout returns the per-request timeout (default 30s)
func (c *Config) HTTPTimeout() time.Duration {
	if d, err := time.ParseDuration(c.HTTP.Timeout); err == nil && d > 0 {
		return d
	}
	return 30 * time.Second
}

// StatePath returns the expanded state file path
func (c *Config) StatePath() (string, error) {
	return ExpandPath(c.StateFile)
}

// SourcesPath returns the expanded sources file path
func (c *Config) SourcesPath() (string, error) {
	return ExpandPath(c.SourcesFile)
}

// HistoryPath returns the expanded history database path, or "" when disabled
func (c *Config) HistoryPath() (string, error) {
	if c.HistoryDB == "" {
		return "", nil
	}
	return ExpandPath(c.HistoryDB)
}

// ExpandPath replaces a leading ~ with the user's home directory
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[1:]), nil
	}
	return path, nil
}
