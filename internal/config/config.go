// README: Config loader; defaults, then optional YAML file (ROUTEBOT_CONFIG, ${VAR} expanded), then env overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ProviderOSM    = "osm"
	ProviderGoogle = "google"
)

type SessionConfig struct {
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// ResolverConfig is the single-match policy: top confidence >= Threshold and
// every other candidate more than Margin behind.
type ResolverConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold"`
	ConfidenceMargin    float64 `yaml:"confidence_margin"`
}

type Replacement struct {
	From string `yaml:"from"`
	To   string `yaml:"to"`
}

type ProviderConfig struct {
	Name              string        `yaml:"name"`
	Timeout           time.Duration `yaml:"timeout"`
	MaxRetries        int           `yaml:"max_retries"`
	DegenerateRadiusM float64       `yaml:"degenerate_radius_m"`
	UserAgent         string        `yaml:"user_agent"`
	CountryCodes      string        `yaml:"country_codes"`
	Language          string        `yaml:"language"`
	Region            string        `yaml:"region"`
	ViewBox           string        `yaml:"viewbox"`
	NominatimURL      string        `yaml:"nominatim_url"`
	OSRMURL           string        `yaml:"osrm_url"`
	OSRMProfile       string        `yaml:"osrm_profile"`
	GoogleAPIKey      string        `yaml:"google_api_key"`
	GoogleBaseURL     string        `yaml:"google_base_url"`
	LabelReplacements []Replacement `yaml:"label_replacements"`
}

type CacheConfig struct {
	PostgresDSN string        `yaml:"postgres_dsn"`
	GeocodeTTL  time.Duration `yaml:"geocode_ttl"`
	RedisAddr   string        `yaml:"redis_addr"`
	RouteTTL    time.Duration `yaml:"route_ttl"`
}

type MatrixConfig struct {
	Homeserver    string        `yaml:"homeserver"`
	UserID        string        `yaml:"user_id"`
	AccessToken   string        `yaml:"access_token"`
	AllowedRooms  []string      `yaml:"allowed_rooms"`
	CommandPrefix string        `yaml:"command_prefix"`
	TypingTimeout time.Duration `yaml:"typing_timeout"`
}

type CommandsConfig struct {
	Start  []string `yaml:"start"`
	Cancel []string `yaml:"cancel"`
	Help   []string `yaml:"help"`
	Back   []string `yaml:"back"`
}

type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Session  SessionConfig  `yaml:"session"`
	Resolver ResolverConfig `yaml:"resolver"`
	Provider ProviderConfig `yaml:"provider"`
	Cache    CacheConfig    `yaml:"cache"`
	Matrix   MatrixConfig   `yaml:"matrix"`
	Commands CommandsConfig `yaml:"commands"`
	Logging  struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`
}

// Defaults targets the public OSM services around Ho Chi Minh City.
func Defaults() Config {
	var cfg Config
	cfg.HTTP.Addr = ":8080"
	cfg.Session = SessionConfig{IdleTimeout: 30 * time.Minute, SweepInterval: time.Minute}
	cfg.Resolver = ResolverConfig{ConfidenceThreshold: 0.7, ConfidenceMargin: 0.15}
	cfg.Provider = ProviderConfig{
		Name:              ProviderOSM,
		Timeout:           12 * time.Second,
		MaxRetries:        2,
		DegenerateRadiusM: 1,
		UserAgent:         "routebot/1.0",
		CountryCodes:      "vn",
		Language:          "vi",
		Region:            "vn",
		ViewBox:           "106.3567007,10.1399458,107.0276712,11.1603083",
		NominatimURL:      "https://nominatim.openstreetmap.org",
		OSRMURL:           "https://router.project-osrm.org",
		OSRMProfile:       "driving",
	}
	cfg.Cache = CacheConfig{GeocodeTTL: 7 * 24 * time.Hour, RouteTTL: time.Hour}
	cfg.Matrix.TypingTimeout = 30 * time.Second
	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Metrics.Enabled = true
	cfg.Metrics.Path = "/metrics"
	return cfg
}

// Load reads .env (if present), then the file named by ROUTEBOT_CONFIG (if set), then env overrides.
func Load() (Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.Getenv("ROUTEBOT_CONFIG"))
}

// LoadFrom is Load with an explicit YAML path; an empty path skips the file.
func LoadFrom(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal([]byte(expandEnvVars(string(data))), &cfg); err != nil {
			return cfg, fmt.Errorf("parsing config file: %w", err)
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.HTTP.Addr = envOrDefault("ROUTEBOT_HTTP_ADDR", cfg.HTTP.Addr)
	cfg.Session.IdleTimeout = envOrDefaultDuration("ROUTEBOT_SESSION_IDLE_TIMEOUT", cfg.Session.IdleTimeout)
	cfg.Session.SweepInterval = envOrDefaultDuration("ROUTEBOT_SESSION_SWEEP_INTERVAL", cfg.Session.SweepInterval)
	cfg.Resolver.ConfidenceThreshold = envOrDefaultFloat("ROUTEBOT_CONFIDENCE_THRESHOLD", cfg.Resolver.ConfidenceThreshold)
	cfg.Resolver.ConfidenceMargin = envOrDefaultFloat("ROUTEBOT_CONFIDENCE_MARGIN", cfg.Resolver.ConfidenceMargin)

	cfg.Provider.Name = strings.ToLower(envOrDefault("ROUTEBOT_PROVIDER", cfg.Provider.Name))
	cfg.Provider.Timeout = envOrDefaultDuration("ROUTEBOT_PROVIDER_TIMEOUT", cfg.Provider.Timeout)
	cfg.Provider.MaxRetries = envOrDefaultInt("ROUTEBOT_PROVIDER_MAX_RETRIES", cfg.Provider.MaxRetries)
	cfg.Provider.UserAgent = envOrDefault("ROUTEBOT_USER_AGENT", cfg.Provider.UserAgent)
	cfg.Provider.NominatimURL = envOrDefault("ROUTEBOT_NOMINATIM_URL", cfg.Provider.NominatimURL)
	cfg.Provider.OSRMURL = envOrDefault("ROUTEBOT_OSRM_URL", cfg.Provider.OSRMURL)
	cfg.Provider.GoogleAPIKey = envOrDefault("GOOGLE_MAPS_API_KEY", cfg.Provider.GoogleAPIKey)

	cfg.Cache.PostgresDSN = envOrDefault("ROUTEBOT_DB_DSN", cfg.Cache.PostgresDSN)
	cfg.Cache.RedisAddr = envOrDefault("ROUTEBOT_REDIS_ADDR", cfg.Cache.RedisAddr)
	cfg.Cache.GeocodeTTL = envOrDefaultDuration("ROUTEBOT_GEOCODE_TTL", cfg.Cache.GeocodeTTL)
	cfg.Cache.RouteTTL = envOrDefaultDuration("ROUTEBOT_ROUTE_TTL", cfg.Cache.RouteTTL)

	cfg.Matrix.Homeserver = envOrDefault("ROUTEBOT_MATRIX_HOMESERVER", cfg.Matrix.Homeserver)
	cfg.Matrix.UserID = envOrDefault("ROUTEBOT_MATRIX_USER_ID", cfg.Matrix.UserID)
	cfg.Matrix.AccessToken = envOrDefault("ROUTEBOT_MATRIX_ACCESS_TOKEN", cfg.Matrix.AccessToken)

	cfg.Logging.Level = envOrDefault("ROUTEBOT_LOG_LEVEL", cfg.Logging.Level)
	cfg.Logging.Format = envOrDefault("ROUTEBOT_LOG_FORMAT", cfg.Logging.Format)
	cfg.Metrics.Enabled = envOrDefaultBool("ROUTEBOT_METRICS_ENABLED", cfg.Metrics.Enabled)
}

// Validate reports every problem at once.
func (c Config) Validate() error {
	var errs []error
	if c.Session.IdleTimeout <= 0 {
		errs = append(errs, errors.New("session.idle_timeout must be positive"))
	}
	if c.Session.SweepInterval <= 0 {
		errs = append(errs, errors.New("session.sweep_interval must be positive"))
	}
	if c.Resolver.ConfidenceThreshold < 0 || c.Resolver.ConfidenceMargin < 0 {
		errs = append(errs, errors.New("resolver.confidence_threshold and confidence_margin must not be negative"))
	}
	if c.Provider.Timeout <= 0 {
		errs = append(errs, errors.New("provider.timeout must be positive"))
	}
	switch c.Provider.Name {
	case ProviderOSM:
		if c.Provider.NominatimURL == "" || c.Provider.OSRMURL == "" {
			errs = append(errs, errors.New("provider.nominatim_url and provider.osrm_url are required for osm"))
		}
		if c.Provider.UserAgent == "" {
			errs = append(errs, errors.New("provider.user_agent is required by the Nominatim usage policy"))
		}
	case ProviderGoogle:
		if c.Provider.GoogleAPIKey == "" {
			errs = append(errs, errors.New("provider.google_api_key (GOOGLE_MAPS_API_KEY) is required for google"))
		}
	default:
		errs = append(errs, fmt.Errorf("provider.name %q: want %q or %q", c.Provider.Name, ProviderOSM, ProviderGoogle))
	}
	if c.Cache.PostgresDSN != "" && c.Cache.GeocodeTTL <= 0 {
		errs = append(errs, errors.New("cache.geocode_ttl must be positive when the geocode cache is enabled"))
	}
	if c.Cache.RedisAddr != "" && c.Cache.RouteTTL <= 0 {
		errs = append(errs, errors.New("cache.route_ttl must be positive when the route cache is enabled"))
	}
	return errors.Join(errs...)
}

// Validate checks the fields the Matrix bridge needs.
func (m MatrixConfig) Validate() error {
	var errs []error
	if m.Homeserver == "" {
		errs = append(errs, errors.New("matrix.homeserver is required"))
	}
	if m.UserID == "" {
		errs = append(errs, errors.New("matrix.user_id is required"))
	}
	if m.AccessToken == "" {
		errs = append(errs, errors.New("matrix.access_token is required"))
	}
	return errors.Join(errs...)
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} with the variable's value (empty when unset).
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			return n
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}
