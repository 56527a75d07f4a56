package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// chdirTemp moves into an empty directory so no config.yaml is found.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) }) //nolint:errcheck
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Empty(t, cfg.ORS.APIKey)
	assert.Equal(t, "https://api.openrouteservice.org", cfg.ORS.BaseURL)
	assert.Equal(t, 30, cfg.ORS.TimeoutSecs)
	assert.InDelta(t, 5.0, cfg.ORS.RateLimit, 0.001)
	assert.Equal(t, 5, cfg.ORS.BreakerThreshold)
	assert.Equal(t, 30, cfg.ORS.BreakerCooldownSecs)

	assert.Equal(t, 600*time.Millisecond, cfg.Isochrone.Debounce())
	assert.Equal(t, time.Second, cfg.Isochrone.MinInterval())
	assert.Equal(t, 600*time.Millisecond, cfg.Isochrone.AddressDebounce())
	assert.InDelta(t, 50.0, cfg.Isochrone.MaxDistanceKm, 0.001)
	assert.InDelta(t, 60.0, cfg.Isochrone.MaxTimeMin, 0.001)
	assert.InDelta(t, 15.0, cfg.Isochrone.DefaultRange, 0.001)
	assert.InDelta(t, 3.0, cfg.Isochrone.DefaultInterval, 0.001)
	assert.Equal(t, "driving-car", cfg.Isochrone.DefaultProfile)
	assert.Equal(t, "distance", cfg.Isochrone.DefaultRangeType)

	assert.InDelta(t, 700.0, cfg.Route.MaxDistanceKm, 0.001)
	assert.InDelta(t, 51.236525, cfg.Map.CenterLat, 1e-9)
	assert.InDelta(t, 22.4998601, cfg.Map.CenterLon, 1e-9)
	assert.Equal(t, 18, cfg.Map.Zoom)
	assert.Contains(t, cfg.Map.BasemapURL, "openstreetmap")
	assert.Equal(t, 1024, cfg.Map.TileCacheEntries)

	assert.Equal(t, 5, cfg.Geocode.Size)
	assert.Equal(t, 512, cfg.Geocode.CacheEntries)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.AllowedOrigins)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
ors:
  api_key: file-key
isochrone:
  debounce_ms: 250
  max_distance_km: 15
log:
  level: debug
  format: console
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "file-key", cfg.ORS.APIKey)
	assert.Equal(t, 250*time.Millisecond, cfg.Isochrone.Debounce())
	assert.InDelta(t, 15.0, cfg.Isochrone.MaxDistanceKm, 0.001)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 9090, cfg.Server.Port)
	// Defaults still apply for unset values
	assert.Equal(t, 1000, cfg.Isochrone.MinIntervalMs)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
ors:
  api_key: file-key
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("ORSMAP_ORS_API_KEY", "env-key")
	t.Setenv("ORSMAP_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.ORS.APIKey)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("ORSMAP_SERVER_PORT", "3000")
	t.Setenv("ORSMAP_ISOCHRONE_MIN_INTERVAL_MS", "2000")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 2*time.Second, cfg.Isochrone.MinInterval())
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("ors: [unclosed"), 0o644))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	chdirTemp(t)
	t.Setenv("ORSMAP_ISOCHRONE_DEFAULT_INTERVAL", "20")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "default interval")
}

// validDefaults returns a Config that passes validation.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Isochrone.DebounceMs = 600
	cfg.Isochrone.MinIntervalMs = 1000
	cfg.Isochrone.AddressDebounceMs = 600
	cfg.Isochrone.MaxDistanceKm = 50
	cfg.Isochrone.MaxTimeMin = 60
	cfg.Isochrone.DefaultRange = 15
	cfg.Isochrone.DefaultInterval = 3
	cfg.Route.MaxDistanceKm = 700
	cfg.Server.Port = 8080
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"negative debounce", func(c *Config) { c.Isochrone.DebounceMs = -1 }, "timings"},
		{"zero max time", func(c *Config) { c.Isochrone.MaxTimeMin = 0 }, "maximum ranges"},
		{"interval above range", func(c *Config) { c.Isochrone.DefaultInterval = 16 }, "default interval"},
		{"zero interval", func(c *Config) { c.Isochrone.DefaultInterval = 0 }, "default interval"},
		{"route limit", func(c *Config) { c.Route.MaxDistanceKm = 0 }, "route max distance"},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, "invalid server port"},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }, "invalid server port"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validDefaults()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg := validDefaults()
	assert.Error(t, cfg.RequireAPIKey())

	cfg.ORS.APIKey = "  "
	assert.Error(t, cfg.RequireAPIKey())

	cfg.ORS.APIKey = "5b3ce3597851110001cf6248"
	assert.NoError(t, cfg.RequireAPIKey())
}

func TestRedacted(t *testing.T) {
	cfg := validDefaults()
	cfg.ORS.APIKey = "secret"

	red := cfg.Redacted()
	assert.Equal(t, "REDACTED", red.ORS.APIKey)
	assert.Equal(t, "secret", cfg.ORS.APIKey)

	cfg.ORS.APIKey = ""
	assert.Empty(t, cfg.Redacted().ORS.APIKey)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}
