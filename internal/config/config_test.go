package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/hazard-loss/internal/hazard"
)

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

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.InDelta(t, 5.0, cfg.Server.RateLimit, 0.001)
	assert.Equal(t, 8, cfg.Batch.Workers)
	assert.Equal(t, "geodesic", cfg.Hazard.Distance)
	assert.Equal(t, "reference", cfg.Loss.ClassSource)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "asset-changes", cfg.Kafka.Topic)
	assert.Equal(t, 5, cfg.Retry.MaxAttempts)
	assert.Equal(t, 60, cfg.Monitoring.CheckIntervalSecs)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: file:hazard.db
log:
  level: debug
  format: console
batch:
  workers: 3
hazard:
  distance: planar
  thresholds:
    flood: 1000
    gempa: 12000
loss:
  class_source: taxonomy
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "file:hazard.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.Equal(t, 3, cfg.Batch.Workers)
	assert.Equal(t, "planar", cfg.Hazard.Distance)
	assert.Equal(t, "taxonomy", cfg.Loss.ClassSource)

	th, err := cfg.Hazard.ThresholdMap()
	require.NoError(t, err)
	assert.Equal(t, map[hazard.Hazard]float64{hazard.Flood: 1000, hazard.Earthquake: 12000}, th)

	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	t.Setenv("HAZARD_STORE_DRIVER", "postgres")
	t.Setenv("HAZARD_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)
	t.Setenv("HAZARD_SERVER_PORT", "3000")
	t.Setenv("HAZARD_BATCH_WORKERS", "16")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Batch.Workers)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unterminated"), 0o644))

	_, err := Load()
	assert.Error(t, err)
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

func TestRetryDurations(t *testing.T) {
	r := RetryConfig{InitialBackoffMs: 50, MaxBackoffMs: 2000}
	assert.Equal(t, int64(50), r.InitialBackoff().Milliseconds())
	assert.Equal(t, int64(2000), r.MaxBackoff().Milliseconds())
}

// validDefaults returns a Config that passes every mode.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/hazard"
	cfg.Batch.Workers = 8
	cfg.Hazard.Distance = "geodesic"
	cfg.Loss.ClassSource = "reference"
	cfg.Server.Port = 8080
	cfg.Kafka.Brokers = []string{"localhost:9092"}
	cfg.Kafka.Topic = "asset-changes"
	cfg.Kafka.GroupID = "hazard-loss"
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"migrate", "import", "recompute", "serve", "consume"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_Engine(t *testing.T) {
	cfg := validDefaults()
	cfg.Batch.Workers = 0
	cfg.Hazard.Distance = "manhattan"
	cfg.Loss.ClassSource = "guess"
	cfg.Hazard.Thresholds = map[string]float64{"tsunami": 100}

	err := cfg.Validate("recompute")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "batch.workers")
	assert.Contains(t, err.Error(), "hazard.distance")
	assert.Contains(t, err.Error(), "loss.class_source")
	assert.Contains(t, err.Error(), "hazard.thresholds.tsunami")
}

func TestValidate_ServeAndConsume(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0
	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	cfg = validDefaults()
	cfg.Kafka.Brokers = nil
	cfg.Kafka.Topic = ""
	err = cfg.Validate("consume")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "kafka.brokers is required")
	assert.Contains(t, err.Error(), "kafka.topic is required")
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestThresholdMap_RejectsNonPositive(t *testing.T) {
	_, err := HazardConfig{Thresholds: map[string]float64{"flood": 0}}.ThresholdMap()
	assert.Error(t, err)
}
