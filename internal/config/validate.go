package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
)

var storeDrivers = map[string]bool{"postgres": true, "sqlite": true}

// Validate checks the settings a command mode needs. Modes: "migrate",
// "recompute", "import", "serve", "consume".
func (c *Config) Validate(mode string) error {
	var errs []string

	requireStore := func() {
		if !storeDrivers[c.Store.Driver] {
			errs = append(errs, fmt.Sprintf("store.driver %q must be postgres or sqlite", c.Store.Driver))
		}
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required")
		}
	}
	checkEngine := func() {
		if c.Batch.Workers < 1 || c.Batch.Workers > 256 {
			errs = append(errs, "batch.workers must be between 1 and 256")
		}
		switch strings.ToLower(c.Hazard.Distance) {
		case "", "geodesic", "planar":
		default:
			errs = append(errs, fmt.Sprintf("hazard.distance %q must be geodesic or planar", c.Hazard.Distance))
		}
		switch strings.ToLower(c.Loss.ClassSource) {
		case "", "reference", "taxonomy":
		default:
			errs = append(errs, fmt.Sprintf("loss.class_source %q must be reference or taxonomy", c.Loss.ClassSource))
		}
		if _, err := c.Hazard.ThresholdMap(); err != nil {
			errs = append(errs, err.Error())
		}
	}

	switch mode {
	case "migrate", "import":
		requireStore()
	case "recompute":
		requireStore()
		checkEngine()
	case "serve":
		requireStore()
		checkEngine()
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.RateLimit < 0 || c.Server.RateBurst < 0 {
			errs = append(errs, "server.rate_limit and server.rate_burst must be >= 0")
		}
	case "consume":
		requireStore()
		checkEngine()
		if len(c.Kafka.Brokers) == 0 {
			errs = append(errs, "kafka.brokers is required")
		}
		if c.Kafka.Topic == "" {
			errs = append(errs, "kafka.topic is required")
		}
		if c.Kafka.GroupID == "" {
			errs = append(errs, "kafka.group_id is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
	}
	return nil
}
