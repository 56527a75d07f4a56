package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	ORS       ORSConfig       `yaml:"ors" mapstructure:"ors"`
	Isochrone IsochroneConfig `yaml:"isochrone" mapstructure:"isochrone"`
	Route     RouteConfig     `yaml:"route" mapstructure:"route"`
	Map       MapConfig       `yaml:"map" mapstructure:"map"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ORSConfig holds openrouteservice credentials and client limits.
type ORSConfig struct {
	APIKey      string  `yaml:"api_key" mapstructure:"api_key"`
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	// BreakerThreshold consecutive transient failures stop calls for
	// BreakerCooldownSecs. 0 disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// IsochroneConfig holds the orchestration timings and the parameter panel
// bounds and defaults. Ranges are in UI units (km or minutes).
type IsochroneConfig struct {
	DebounceMs        int     `yaml:"debounce_ms" mapstructure:"debounce_ms"`
	MinIntervalMs     int     `yaml:"min_interval_ms" mapstructure:"min_interval_ms"`
	AddressDebounceMs int     `yaml:"address_debounce_ms" mapstructure:"address_debounce_ms"`
	MaxDistanceKm     float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
	MaxTimeMin        float64 `yaml:"max_time_min" mapstructure:"max_time_min"`
	DefaultRange      float64 `yaml:"default_range" mapstructure:"default_range"`
	DefaultInterval   float64 `yaml:"default_interval" mapstructure:"default_interval"`
	DefaultProfile    string  `yaml:"default_profile" mapstructure:"default_profile"`
	DefaultRangeType  string  `yaml:"default_range_type" mapstructure:"default_range_type"`
}

// Debounce is the quiet period before an isochrone attempt is evaluated.
func (c IsochroneConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// MinInterval is the minimum spacing between accepted attempts.
func (c IsochroneConfig) MinInterval() time.Duration {
	return time.Duration(c.MinIntervalMs) * time.Millisecond
}

// AddressDebounce is the quiet period before typed text is geocoded.
func (c IsochroneConfig) AddressDebounce() time.Duration {
	return time.Duration(c.AddressDebounceMs) * time.Millisecond
}

// RouteConfig configures the start/end route layer.
type RouteConfig struct {
	MaxDistanceKm float64 `yaml:"max_distance_km" mapstructure:"max_distance_km"`
}

// MapConfig holds the initial map view served to browsers.
type MapConfig struct {
	CenterLat   float64 `yaml:"center_lat" mapstructure:"center_lat"`
	CenterLon   float64 `yaml:"center_lon" mapstructure:"center_lon"`
	Zoom        int     `yaml:"zoom" mapstructure:"zoom"`
	BasemapURL  string  `yaml:"basemap_url" mapstructure:"basemap_url"`
	Attribution string  `yaml:"attribution" mapstructure:"attribution"`
	// TileCacheEntries bounds the basemap tile proxy cache. 0 disables it.
	TileCacheEntries int `yaml:"tile_cache_entries" mapstructure:"tile_cache_entries"`
}

// GeocodeConfig configures forward geocoding.
type GeocodeConfig struct {
	Size         int `yaml:"size" mapstructure:"size"`
	CacheEntries int `yaml:"cache_entries" mapstructure:"cache_entries"`
	CacheTTLMins int `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
}

// RetryConfig configures retries of idempotent ORS calls.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// ServerConfig configures the session server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SendBuffer     int      `yaml:"send_buffer" mapstructure:"send_buffer"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ORSMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ors.api_key", "")
	v.SetDefault("ors.base_url", "https://api.openrouteservice.org")
	v.SetDefault("ors.timeout_secs", 30)
	v.SetDefault("ors.rate_limit", 5.0)
	v.SetDefault("ors.breaker_threshold", 5)
	v.SetDefault("ors.breaker_cooldown_secs", 30)
	v.SetDefault("isochrone.debounce_ms", 600)
	v.SetDefault("isochrone.min_interval_ms", 1000)
	v.SetDefault("isochrone.address_debounce_ms", 600)
	v.SetDefault("isochrone.max_distance_km", 50.0)
	v.SetDefault("isochrone.max_time_min", 60.0)
	v.SetDefault("isochrone.default_range", 15.0)
	v.SetDefault("isochrone.default_interval", 3.0)
	v.SetDefault("isochrone.default_profile", "driving-car")
	v.SetDefault("isochrone.default_range_type", "distance")
	v.SetDefault("route.max_distance_km", 700.0)
	v.SetDefault("map.center_lat", 51.236525)
	v.SetDefault("map.center_lon", 22.4998601)
	v.SetDefault("map.zoom", 18)
	v.SetDefault("map.basemap_url", "https://tile.openstreetmap.org/{z}/{x}/{y}.png")
	v.SetDefault("map.attribution", "&copy; OpenStreetMap contributors")
	v.SetDefault("map.tile_cache_entries", 1024)
	v.SetDefault("geocode.size", 5)
	v.SetDefault("geocode.cache_entries", 512)
	v.SetDefault("geocode.cache_ttl_mins", 60)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 250)
	v.SetDefault("retry.max_backoff_ms", 5000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.send_buffer", 64)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would make the panel or orchestrator
// misbehave. A missing API key is not an error here; see RequireAPIKey.
func (c *Config) Validate() error {
	iso := c.Isochrone
	switch {
	case iso.DebounceMs < 0 || iso.MinIntervalMs < 0 || iso.AddressDebounceMs < 0:
		return eris.New("config: isochrone timings must not be negative")
	case iso.MaxDistanceKm < 1 || iso.MaxTimeMin < 1:
		return eris.New("config: isochrone maximum ranges must be at least 1")
	case iso.DefaultInterval < 1 || iso.DefaultRange < iso.DefaultInterval:
		return eris.Errorf("config: isochrone default interval %.1f must be within [1, default range %.1f]",
			iso.DefaultInterval, iso.DefaultRange)
	case c.Route.MaxDistanceKm <= 0:
		return eris.New("config: route max distance must be positive")
	case c.Server.Port < 1 || c.Server.Port > 65535:
		return eris.Errorf("config: invalid server port %d", c.Server.Port)
	}
	return nil
}

// RequireAPIKey reports an error when no ORS key is configured.
func (c *Config) RequireAPIKey() error {
	if strings.TrimSpace(c.ORS.APIKey) == "" {
		return eris.New("config: ors.api_key is required (set ORSMAP_ORS_API_KEY)")
	}
	return nil
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	if c.ORS.APIKey != "" {
		c.ORS.APIKey = "REDACTED"
	}
	return c
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
