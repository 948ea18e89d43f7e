package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Load reads relay.yaml from path, merges it over the built-in defaults,
// applies environment overrides, and validates the result.
//
// A missing file is not an error: the defaults describe a complete,
// runnable system. A malformed file is.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		slog.Info("No config file found, using built-in defaults", "path", path)
	case err != nil:
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	default:
		var fileCfg Config
		if err := yaml.Unmarshal(data, &fileCfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
		// File values win over defaults; zero values in the file keep the default.
		if err := mergo.Merge(cfg, &fileCfg, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("merging config: %w", err)
		}
		slog.Info("Loaded configuration", "path", path)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies the small set of environment overrides that
// make sense per deployment rather than per config file.
func applyEnvOverrides(cfg *Config) {
	if port := os.Getenv("HTTP_PORT"); port != "" {
		cfg.Server.HTTPPort = port
	}
}

// Validate checks the merged configuration for values the engines cannot
// operate with.
func (c *Config) Validate() error {
	var errs []error

	if c.WorkQueue.Workers < 1 {
		errs = append(errs, fmt.Errorf("work_queue.workers must be at least 1, got %d", c.WorkQueue.Workers))
	}
	if c.FanOut.Workers < 1 {
		errs = append(errs, fmt.Errorf("fan_out.workers must be at least 1, got %d", c.FanOut.Workers))
	}
	for name, batch := range map[string]int64{
		"dlq.batch_size":        c.DLQ.BatchSize,
		"work_queue.batch_size": c.WorkQueue.BatchSize,
		"fan_out.batch_size":    c.FanOut.BatchSize,
		"scheduler.batch_size":  c.Scheduler.BatchSize,
		"monitor.batch_size":    c.Monitor.BatchSize,
	} {
		if batch < 1 {
			errs = append(errs, fmt.Errorf("%s must be at least 1, got %d", name, batch))
		}
	}
	if c.Routing.MaxRules < 1 {
		errs = append(errs, fmt.Errorf("routing.max_rules must be at least 1, got %d", c.Routing.MaxRules))
	}
	if c.ContentRules.StandardMax <= 0 || c.ContentRules.ManualReviewMin <= c.ContentRules.StandardMax {
		errs = append(errs, fmt.Errorf("content_routing thresholds must satisfy 0 < standard_max < manual_review_min, got %v and %v",
			c.ContentRules.StandardMax, c.ContentRules.ManualReviewMin))
	}
	if c.Scheduler.PollInterval <= 0 || c.Monitor.PollInterval <= 0 {
		errs = append(errs, errors.New("scheduler and monitor poll intervals must be positive"))
	}
	if c.Server.SinkBuffer < 1 {
		errs = append(errs, fmt.Errorf("server.sink_buffer must be at least 1, got %d", c.Server.SinkBuffer))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
