package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata" // display timezone must resolve in minimal images

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config holds service configuration loaded from YAML, .env and the environment.
type Config struct {
	ServerPort string `validate:"required,numeric"`

	WeatherAPIKey     string        `validate:"required,min=10"`
	GeocodeURL        string        `validate:"required,url"`
	WeatherURL        string        `validate:"required,url"`
	WeatherAPITimeout time.Duration `validate:"gt=0"`

	// LookupTimeout bounds one widget run (geocode + weather).
	LookupTimeout  time.Duration `validate:"gt=0"`
	RequestTimeout time.Duration `validate:"gt=0"`
	RateLimitRPS   int           `validate:"min=0"`
	RateLimitBurst int           `validate:"min=0"`

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int           `validate:"min=1"`
	CircuitBreakerSuccessThreshold int           `validate:"min=1"`
	CircuitBreakerTimeout          time.Duration `validate:"gt=0"`

	ShutdownTimeout               time.Duration `validate:"gt=0"`
	ShutdownInFlightTimeout       time.Duration `validate:"gt=0"`
	ShutdownInFlightCheckInterval time.Duration `validate:"gt=0"`

	DefaultCity     string `validate:"required"`
	DisplayTimezone string `validate:"required,timezone"`
	// DisplayLocation is DisplayTimezone resolved by Load.
	DisplayLocation *time.Location `validate:"-"`
	PollSeconds     int            `validate:"min=1,max=60"`
	CityMinLength   int            `validate:"min=1"`
	CityMaxLength   int            `validate:"gtefield=CityMinLength"`

	SessionIdleTTL       time.Duration `validate:"gt=0"`
	SessionSweepInterval time.Duration `validate:"gt=0"`

	HealthWindow         time.Duration `validate:"gt=0"`
	DegradedErrorPct     int           `validate:"min=1,max=100"`
	OverloadThresholdPct int           `validate:"min=1,max=100"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	WeatherAPI struct {
		GeocodeURL string `yaml:"geocode_url"`
		WeatherURL string `yaml:"weather_url"`
		Timeout    string `yaml:"timeout"`
	} `yaml:"weather_api"`

	Request struct {
		Timeout       string `yaml:"timeout"`
		LookupTimeout string `yaml:"lookup_timeout"`
	} `yaml:"request"`

	Reliability struct {
		RateLimitRPS   int `yaml:"rate_limit_rps"`
		RateLimitBurst int `yaml:"rate_limit_burst"`
		CircuitBreaker struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Widget struct {
		DefaultCity     string `yaml:"default_city"`
		DisplayTimezone string `yaml:"display_timezone"`
		PollSeconds     int    `yaml:"poll_seconds"`
		CityMinLength   int    `yaml:"city_min_length"`
		CityMaxLength   int    `yaml:"city_max_length"`
	} `yaml:"widget"`

	Session struct {
		IdleTTL       string `yaml:"idle_ttl"`
		SweepInterval string `yaml:"sweep_interval"`
	} `yaml:"session"`

	Health struct {
		Window               string `yaml:"window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
	} `yaml:"health"`
}

// envOverrides are applied on top of the YAML file. Unset variables leave
// the file value in place.
type envOverrides struct {
	Port                  string `envconfig:"PORT"`
	WeatherAPIKey         string `envconfig:"WEATHER_API_KEY"`
	LegacyAPIKey          string `envconfig:"VITE_API_KEY"`
	GeocodeURL            string `envconfig:"GEOCODE_API_URL"`
	WeatherURL            string `envconfig:"WEATHER_API_URL"`
	DefaultCity           string `envconfig:"DEFAULT_CITY"`
	DisplayTimezone       string `envconfig:"DISPLAY_TIMEZONE"`
	RateLimitRPS          *int   `envconfig:"RATE_LIMIT_RPS"`
	CircuitBreakerEnabled *bool  `envconfig:"CIRCUIT_BREAKER_ENABLED"`
}

type secretsFile struct {
	WeatherAPIKey string `yaml:"weather_api_key"`
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev), then
// .env, then environment overrides, then config/secrets.yaml for the API key.
// Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	return LoadFrom(cwd)
}

// LoadFrom is Load rooted at dir instead of the working directory.
func LoadFrom(dir string) (*Config, error) {
	// Missing .env is fine; existing env vars win over it.
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}

	configPath := filepath.Join(dir, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := fromFile(fc)

	var ov envOverrides
	if err := envconfig.Process("", &ov); err != nil {
		return nil, fmt.Errorf("process environment: %w", err)
	}
	applyOverrides(cfg, ov)

	if cfg.WeatherAPIKey == "" {
		key, err := readSecretsKey(filepath.Join(dir, "config", "secrets.yaml"))
		if err != nil {
			return nil, err
		}
		cfg.WeatherAPIKey = key
	}
	if cfg.WeatherAPIKey == "" {
		return nil, errors.New("WEATHER_API_KEY required (set env, .env, or config/secrets.yaml weather_api_key)")
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fromFile(fc fileConfig) *Config {
	cfg := &Config{}

	cfg.ServerPort = fc.Server.Port
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.GeocodeURL = strings.TrimSpace(fc.WeatherAPI.GeocodeURL)
	if cfg.GeocodeURL == "" {
		cfg.GeocodeURL = "https://api.openweathermap.org/geo/1.0/direct"
	}
	cfg.WeatherURL = strings.TrimSpace(fc.WeatherAPI.WeatherURL)
	if cfg.WeatherURL == "" {
		cfg.WeatherURL = "https://api.openweathermap.org/data/2.5/weather"
	}
	cfg.WeatherAPITimeout = parseDurationOrZero(fc.WeatherAPI.Timeout, 5*time.Second)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 12*time.Second)
	cfg.LookupTimeout = parseDuration(fc.Request.LookupTimeout, 11*time.Second)

	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 15*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.DefaultCity = strings.TrimSpace(fc.Widget.DefaultCity)
	if cfg.DefaultCity == "" {
		cfg.DefaultCity = "Mysore"
	}
	cfg.DisplayTimezone = strings.TrimSpace(fc.Widget.DisplayTimezone)
	if cfg.DisplayTimezone == "" {
		cfg.DisplayTimezone = "UTC"
	}
	cfg.PollSeconds = fc.Widget.PollSeconds
	if cfg.PollSeconds <= 0 {
		cfg.PollSeconds = 1
	}
	cfg.CityMinLength = fc.Widget.CityMinLength
	if cfg.CityMinLength <= 0 {
		cfg.CityMinLength = 1
	}
	cfg.CityMaxLength = fc.Widget.CityMaxLength
	if cfg.CityMaxLength <= 0 {
		cfg.CityMaxLength = 100
	}

	cfg.SessionIdleTTL = parseDuration(fc.Session.IdleTTL, 30*time.Minute)
	cfg.SessionSweepInterval = parseDuration(fc.Session.SweepInterval, time.Minute)

	cfg.HealthWindow = parseDuration(fc.Health.Window, 60*time.Second)
	cfg.DegradedErrorPct = fc.Health.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}
	cfg.OverloadThresholdPct = fc.Health.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	return cfg
}

func applyOverrides(cfg *Config, ov envOverrides) {
	if ov.Port != "" {
		cfg.ServerPort = ov.Port
	}
	switch {
	case ov.WeatherAPIKey != "":
		cfg.WeatherAPIKey = ov.WeatherAPIKey
	case ov.LegacyAPIKey != "":
		cfg.WeatherAPIKey = ov.LegacyAPIKey
	}
	if ov.GeocodeURL != "" {
		cfg.GeocodeURL = ov.GeocodeURL
	}
	if ov.WeatherURL != "" {
		cfg.WeatherURL = ov.WeatherURL
	}
	if ov.DefaultCity != "" {
		cfg.DefaultCity = strings.TrimSpace(ov.DefaultCity)
	}
	if ov.DisplayTimezone != "" {
		cfg.DisplayTimezone = ov.DisplayTimezone
	}
	if ov.RateLimitRPS != nil {
		cfg.RateLimitRPS = *ov.RateLimitRPS
	}
	if ov.CircuitBreakerEnabled != nil {
		cfg.CircuitBreakerEnabled = *ov.CircuitBreakerEnabled
	}
}

func readSecretsKey(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read secrets file: %w", err)
	}
	var sec secretsFile
	if err := yaml.Unmarshal(data, &sec); err != nil {
		return "", fmt.Errorf("parse secrets file: %w", err)
	}
	return strings.TrimSpace(sec.WeatherAPIKey), nil
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is so validation can reject them.
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate runs struct-tag validation, then the cross-field rules: a
// lookup (two upstream calls) must fit inside the request timeout, which is
// raised to match if needed, and DisplayTimezone is resolved.
func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	if cfg.LookupTimeout < cfg.WeatherAPITimeout {
		cfg.LookupTimeout = 2*cfg.WeatherAPITimeout + time.Second
	}
	if cfg.RequestTimeout <= cfg.LookupTimeout {
		cfg.RequestTimeout = cfg.LookupTimeout + time.Second
	}
	loc, err := time.LoadLocation(cfg.DisplayTimezone)
	if err != nil {
		return fmt.Errorf("widget.display_timezone: %w", err)
	}
	cfg.DisplayLocation = loc
	return nil
}
