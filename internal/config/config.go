// Package config loads service configuration from configs/config.yml, an
// optional .env file and BIOFILTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"
	"time"

	"biofilter_monitor/internal/engine"
	"biofilter_monitor/internal/source"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	// DefaultPath is read when no explicit path is given.
	DefaultPath = "configs/config.yml"
	// EnvPrefix prefixes every environment override, e.g. BIOFILTER_ENGINE_POLL_FLOOR.
	EnvPrefix = "BIOFILTER"
)

// Source kinds.
const (
	SourceHTTP      = "http"
	SourceSimulated = "simulated"
)

// Visibility modes.
const (
	VisibilityViewers = "viewers" // visible while a WebSocket viewer reports visible
	VisibilityAlways  = "always"  // headless: always visible
)

// Config is the full service configuration.
type Config struct {
	Port     string       `mapstructure:"port" validate:"required,numeric"`
	LogLevel string       `mapstructure:"log_level" validate:"oneof=debug info warn error"`
	DB       DBConfig     `mapstructure:"db"`
	Auth     AuthConfig   `mapstructure:"auth"`
	Engine   EngineConfig `mapstructure:"engine"`
	Source   SourceConfig `mapstructure:"source"`
	Stream   StreamConfig `mapstructure:"stream"`
}

// DBConfig locates the SQLite database.
type DBConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

// AuthConfig configures operator tokens.
type AuthConfig struct {
	SigningKey string        `mapstructure:"signing_key" validate:"required,min=16"`
	TokenTTL   time.Duration `mapstructure:"token_ttl" validate:"gt=0"`
}

// EngineConfig maps onto engine.Config.
type EngineConfig struct {
	AutoRefresh      bool          `mapstructure:"auto_refresh"`
	PollFloor        time.Duration `mapstructure:"poll_floor" validate:"gt=0"`
	PollCap          time.Duration `mapstructure:"poll_cap" validate:"gtefield=PollFloor"`
	FetchTimeout     time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	PeakPM25         float64       `mapstructure:"peak_pm25" validate:"gt=0"`
	PeakCO2          float64       `mapstructure:"peak_co2" validate:"gt=0"`
	PeakTemp         float64       `mapstructure:"peak_temp" validate:"gt=0"`
	AutoTriggerDelay time.Duration `mapstructure:"auto_trigger_delay" validate:"gt=0"`
	AutoTriggerEvery time.Duration `mapstructure:"auto_trigger_every" validate:"gt=0"`
	HistorySize      int           `mapstructure:"history_size" validate:"min=1,max=10000"`
	Visibility       string        `mapstructure:"visibility" validate:"oneof=viewers always"`
}

// SourceConfig selects and tunes the metrics source.
type SourceConfig struct {
	Kind            string        `mapstructure:"kind" validate:"oneof=http simulated"`
	URL             string        `mapstructure:"url" validate:"required_if=Kind http,omitempty,url"`
	Timeout         time.Duration `mapstructure:"timeout" validate:"gt=0"`
	FailureRate     float64       `mapstructure:"failure_rate" validate:"gte=0,lte=1"`
	Jitter          float64       `mapstructure:"jitter" validate:"gte=0,lte=1"`
	BreakerFailures uint32        `mapstructure:"breaker_failures" validate:"gt=0"`
	BreakerTimeout  time.Duration `mapstructure:"breaker_timeout" validate:"gt=0"`
}

// StreamConfig tunes the viewer WebSocket.
type StreamConfig struct {
	Interval time.Duration `mapstructure:"interval" validate:"gte=100ms"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("db.path", "app.db")

	// no usable default: an empty key fails validation
	v.SetDefault("auth.signing_key", "")
	v.SetDefault("auth.token_ttl", "1h")

	v.SetDefault("engine.auto_refresh", true)
	v.SetDefault("engine.poll_floor", engine.DefaultPollFloor.String())
	v.SetDefault("engine.poll_cap", engine.DefaultPollCap.String())
	v.SetDefault("engine.fetch_timeout", engine.DefaultFetchTimeout.String())
	v.SetDefault("engine.peak_pm25", engine.DefaultPeakPM25)
	v.SetDefault("engine.peak_co2", engine.DefaultPeakCO2)
	v.SetDefault("engine.peak_temp", engine.DefaultPeakTemp)
	v.SetDefault("engine.auto_trigger_delay", engine.DefaultAutoTriggerDelay.String())
	v.SetDefault("engine.auto_trigger_every", engine.DefaultAutoTriggerEvery.String())
	v.SetDefault("engine.history_size", engine.DefaultHistorySize)
	v.SetDefault("engine.visibility", VisibilityViewers)

	v.SetDefault("source.kind", SourceSimulated)
	v.SetDefault("source.url", "")
	v.SetDefault("source.timeout", engine.DefaultFetchTimeout.String())
	v.SetDefault("source.failure_rate", 0.1)
	v.SetDefault("source.jitter", 0.03)
	v.SetDefault("source.breaker_failures", source.DefaultBreakerSettings().ConsecutiveFailures)
	v.SetDefault("source.breaker_timeout", source.DefaultBreakerSettings().OpenTimeout.String())

	v.SetDefault("stream.interval", "1s")
}

// Load reads path (DefaultPath when empty). A missing file is not an error:
// defaults and environment overrides still apply.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	if path == "" {
		path = DefaultPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil && !isNotFound(err) {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// publishedSigningKeys have appeared in shipped config files and must not sign tokens.
var publishedSigningKeys = []string{"change-me-biofilter"}

// Validate checks cfg against its struct tags and rejects published signing keys.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if slices.Contains(publishedSigningKeys, cfg.Auth.SigningKey) {
		return errors.New("invalid config: SigningKey is a published placeholder, set BIOFILTER_AUTH_SIGNING_KEY")
	}
	return nil
}

// EngineOptions converts the engine section into engine.Config.
func (c *Config) EngineOptions() engine.Config {
	e := c.Engine
	return engine.Config{
		AutoRefresh:      e.AutoRefresh,
		PollFloor:        e.PollFloor,
		PollCap:          e.PollCap,
		FetchTimeout:     e.FetchTimeout,
		Peaks:            engine.Peaks{PM25: e.PeakPM25, CO2: e.PeakCO2, Temp: e.PeakTemp},
		AutoTriggerDelay: e.AutoTriggerDelay,
		AutoTriggerEvery: e.AutoTriggerEvery,
		HistorySize:      e.HistorySize,
	}
}

// BreakerSettings converts the source section into circuit breaker settings.
func (c *Config) BreakerSettings() source.BreakerSettings {
	return source.BreakerSettings{
		Name:                "metrics-upstream",
		ConsecutiveFailures: c.Source.BreakerFailures,
		OpenTimeout:         c.Source.BreakerTimeout,
	}
}

func isNotFound(err error) bool {
	var nf viper.ConfigFileNotFoundError
	return errors.As(err, &nf) || errors.Is(err, fs.ErrNotExist)
}
