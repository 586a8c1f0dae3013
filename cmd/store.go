package main

import (
	"context"
	"runtime"

	"github.com/rotisserie/eris"

	"github.com/sells-group/hazard-loss/internal/config"
	"github.com/sells-group/hazard-loss/internal/engine"
	"github.com/sells-group/hazard-loss/internal/geospatial"
	"github.com/sells-group/hazard-loss/internal/loss"
	"github.com/sells-group/hazard-loss/internal/monitoring"
	"github.com/sells-group/hazard-loss/internal/resilience"
	"github.com/sells-group/hazard-loss/internal/store"
)

func initStore(ctx context.Context, c *config.Config) (store.Store, error) {
	switch c.Store.Driver {
	case "sqlite":
		dsn := c.Store.DatabaseURL
		if dsn == "" {
			dsn = "hazard-loss.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		st, err := store.NewPostgres(ctx, c.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: c.Store.MaxConns,
			MinConns: c.Store.MinConns,
		})
		if err != nil {
			return nil, err
		}
		st.WithRetry(retryConfig(c))
		return st, nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", c.Store.Driver)
	}
}

func retryConfig(c *config.Config) resilience.RetryConfig {
	return resilience.FromSettings(c.Retry.MaxAttempts, c.Retry.InitialBackoff(), c.Retry.MaxBackoff())
}

func engineConfig(c *config.Config) (engine.Config, error) {
	thresholds, err := c.Hazard.ThresholdMap()
	if err != nil {
		return engine.Config{}, err
	}
	workers := c.Batch.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return engine.Config{
		Workers:     workers,
		Metric:      geospatial.ParseMetric(c.Hazard.Distance),
		Thresholds:  thresholds,
		ClassSource: loss.ParseClassSource(c.Loss.ClassSource),
	}, nil
}

func initEngine(st store.Store, c *config.Config, metrics *monitoring.Metrics) (*engine.Engine, error) {
	ec, err := engineConfig(c)
	if err != nil {
		return nil, err
	}
	opts := []engine.Option{}
	if metrics != nil {
		opts = append(opts, engine.WithMetrics(metrics))
	}
	return engine.New(st, ec, opts...), nil
}
