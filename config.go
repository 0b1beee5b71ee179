package tasks

import (
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/otel"
	"github.com/hugolhafner/go-tasks/runtime"
)

// Assignment is one task instance: a registered task reading one partition of each
// of its source topics.
type Assignment struct {
	Task      string
	Partition int32
	Settings  map[string]any
}

type Config struct {
	Logger    logger.Logger
	Telemetry *otel.Telemetry
	// MaxInstances rejects applications with more assignments. 0 means no limit.
	MaxInstances   int
	RuntimeOptions []runtime.Option
}

type ConfigOption func(*Config)

func WithLogger(logger logger.Logger) ConfigOption {
	return func(c *Config) {
		c.Logger = logger
	}
}

func WithTelemetry(t *otel.Telemetry) ConfigOption {
	return func(c *Config) {
		c.Telemetry = t
	}
}

func WithMaxInstances(n int) ConfigOption {
	return func(c *Config) {
		c.MaxInstances = n
	}
}

// WithRuntimeOptions applies opts to every instance. Task, settings, logger and
// telemetry are set per instance and override anything given here.
func WithRuntimeOptions(opts ...runtime.Option) ConfigOption {
	return func(c *Config) {
		c.RuntimeOptions = append(c.RuntimeOptions, opts...)
	}
}

func defaultConfig() Config {
	return Config{
		Logger:    logger.NewNoopLogger(),
		Telemetry: otel.Noop(),
	}
}
