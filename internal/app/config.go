package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"

	"github.com/raysh454/zapdash/internal/assistant"
	"github.com/raysh454/zapdash/internal/logging"
	"github.com/raysh454/zapdash/internal/reconciler"
	"github.com/raysh454/zapdash/internal/webclient"
	"github.com/raysh454/zapdash/internal/zap"
)

const EnvPrefix = "ZAPDASH"

var (
	ErrNoStorageRoot  = errors.New("storage root is required")
	ErrNoListenAddr   = errors.New("listen address is required")
	ErrNoScanService  = errors.New("scan service base url is required")
	ErrInvalidTimeout = errors.New("shutdown timeout must not be negative")
)

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// AllowedOrigins for CORS and the dashboard websocket. Empty allows any.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Config is the runtime configuration of the whole service.
type Config struct {
	// StorageRoot holds the record database and the artifact tree.
	StorageRoot string `mapstructure:"storage_root"`

	HTTP       HTTPConfig        `mapstructure:"http"`
	Reconciler reconciler.Config `mapstructure:"reconciler"`
	Zap        zap.Config        `mapstructure:"zap"`
	Assistant  assistant.Config  `mapstructure:"assistant"`
	WebClient  webclient.Config  `mapstructure:"webclient"`
	Logging    logging.Config    `mapstructure:"logging"`

	// SummarizeOnView asks the assistant for a summary the first time a
	// report without one is viewed, and stores it back into the artifact.
	SummarizeOnView bool `mapstructure:"summarize_on_view"`
}

// DefaultConfig returns a Config populated with development defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot: filepath.Join(xdg.DataHome, "zapdash"),
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Reconciler: reconciler.DefaultConfig(),
		Zap: zap.Config{
			BaseURL: "http://localhost:8000/",
		},
		Assistant: assistant.Config{
			Tool:          assistant.DefaultTool,
			MaxConcurrent: assistant.DefaultMaxConcurrent,
		},
		WebClient: webclient.Config{
			Timeout:   webclient.DefaultTimeout,
			UserAgent: "zapdash/1",
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "json",
		},
		SummarizeOnView: true,
	}
}

// DBPath is where the record database lives.
func (c *Config) DBPath() string { return filepath.Join(c.StorageRoot, "records.db") }

// ArtifactRoot is the root of the artifact tree.
func (c *Config) ArtifactRoot() string { return filepath.Join(c.StorageRoot, "artifacts") }

func (c *Config) Validate() error {
	if strings.TrimSpace(c.StorageRoot) == "" {
		return ErrNoStorageRoot
	}
	if strings.TrimSpace(c.HTTP.Addr) == "" {
		return ErrNoListenAddr
	}
	if c.HTTP.ShutdownTimeout < 0 {
		return ErrInvalidTimeout
	}
	if strings.TrimSpace(c.Zap.BaseURL) == "" {
		return ErrNoScanService
	}
	if err := c.Reconciler.Validate(); err != nil {
		return fmt.Errorf("reconciler: %w", err)
	}
	return nil
}

// LoadConfig reads configuration from path (or the default search path
// when empty) and ZAPDASH_* environment variables over DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(xdg.ConfigHome, "zapdash"))
		v.AddConfigPath(".")
		v.SetConfigName("zapdash")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	root, err := expandPath(cfg.StorageRoot)
	if err != nil {
		return nil, fmt.Errorf("expanding storage root path: %w", err)
	}
	cfg.StorageRoot = root

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every key so environment overrides apply even when
// no config file mentions them.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("storage_root", d.StorageRoot)
	v.SetDefault("summarize_on_view", d.SummarizeOnView)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.allowed_origins", d.HTTP.AllowedOrigins)

	v.SetDefault("reconciler.interval", d.Reconciler.Interval)
	v.SetDefault("reconciler.initial_delay", d.Reconciler.InitialDelay)
	v.SetDefault("reconciler.max_concurrent", d.Reconciler.MaxConcurrent)
	v.SetDefault("reconciler.query_rate", d.Reconciler.QueryRate)
	v.SetDefault("reconciler.query_burst", d.Reconciler.QueryBurst)

	v.SetDefault("zap.base_url", d.Zap.BaseURL)
	v.SetDefault("zap.api_key", d.Zap.APIKey)

	v.SetDefault("assistant.base_url", d.Assistant.BaseURL)
	v.SetDefault("assistant.tool", d.Assistant.Tool)
	v.SetDefault("assistant.max_concurrent", d.Assistant.MaxConcurrent)

	v.SetDefault("webclient.timeout", d.WebClient.Timeout)
	v.SetDefault("webclient.user_agent", d.WebClient.UserAgent)
	v.SetDefault("webclient.max_body_bytes", d.WebClient.MaxBodyBytes)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.file", d.Logging.File)
	v.SetDefault("logging.max_size_mb", d.Logging.MaxSizeMB)
	v.SetDefault("logging.max_backups", d.Logging.MaxBackups)
	v.SetDefault("logging.max_age_days", d.Logging.MaxAgeDays)
}

func expandPath(p string) (string, error) {
	if len(p) > 0 && p[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, p[1:]), nil
	}
	return p, nil
}
