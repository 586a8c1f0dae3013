package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/hazard-loss/internal/config"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/hazard"
	"github.com/sells-group/hazard-loss/internal/loss"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "recompute", "aal", "curves", "hazard", "serve", "consume", "maintenance"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "hazard-loss", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRecomputeCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range recomputeCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"all", "asset", "retract"} {
		assert.True(t, names[name], "expected recompute subcommand %q", name)
	}
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestHazardCommands_Flags(t *testing.T) {
	for _, name := range []string{"hazard", "id-field", "nodata", "analyze"} {
		assert.NotNil(t, hazardImportCmd.Flags().Lookup(name), "hazard import --%s", name)
	}
	for _, name := range []string{"hazard", "rp", "lon", "lat", "postgis"} {
		assert.NotNil(t, hazardNearestCmd.Flags().Lookup(name), "hazard nearest --%s", name)
	}
}

func TestConsumeCommand_Flags(t *testing.T) {
	flag := consumeCmd.Flags().Lookup("metrics-port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestEngineConfig(t *testing.T) {
	c := &config.Config{
		Batch:  config.BatchConfig{Workers: 4},
		Hazard: config.HazardConfig{Distance: "planar", Thresholds: map[string]float64{"banjir": 900}},
		Loss:   config.LossConfig{ClassSource: "taxonomy"},
	}
	ec, err := engineConfig(c)
	require.NoError(t, err)
	assert.Equal(t, 4, ec.Workers)
	assert.Equal(t, geospatial.ParseMetric("planar"), ec.Metric)
	assert.Equal(t, map[hazard.Hazard]float64{hazard.Flood: 900}, ec.Thresholds)
	assert.Equal(t, loss.TaxonomyClass, ec.ClassSource)

	c.Batch.Workers = 0
	ec, err = engineConfig(c)
	require.NoError(t, err)
	assert.Positive(t, ec.Workers)

	c.Hazard.Thresholds = map[string]float64{"tsunami": 1}
	_, err = engineConfig(c)
	assert.Error(t, err)
}

func TestInitStore_UnsupportedDriver(t *testing.T) {
	_, err := initStore(t.Context(), &config.Config{Store: config.StoreConfig{Driver: "oracle"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported store driver")
}

func TestRetryConfig(t *testing.T) {
	c := &config.Config{Retry: config.RetryConfig{MaxAttempts: 3, InitialBackoffMs: 10, MaxBackoffMs: 100}}
	rc := retryConfig(c)
	assert.Equal(t, 3, rc.MaxAttempts)
	assert.Equal(t, int64(10), rc.InitialBackoff.Milliseconds())
	assert.Equal(t, int64(100), rc.MaxBackoff.Milliseconds())
}
