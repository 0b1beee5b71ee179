package runtime

import (
	"time"

	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/otel"
	"github.com/hugolhafner/go-tasks/reader"
)

type Config struct {
	TaskName  string
	Partition int32
	// Settings are overlaid onto the generated keys and passed to Init.
	Settings map[string]any

	CommitInterval time.Duration
	// CommitMaxCount commits early after this many processed messages. 0 disables it.
	CommitMaxCount int
	DequeueTimeout time.Duration
	QueueSize      int

	ReaderShutdownTimeout time.Duration
	ReaderOptions         []reader.Option

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		CommitInterval:        5 * time.Second,
		DequeueTimeout:        time.Second,
		QueueSize:             1000,
		ReaderShutdownTimeout: 10 * time.Second,
		Logger:                logger.NewNoopLogger(),
		Telemetry:             otel.Noop(),
	}
}

type Option func(*Config)

// WithTask sets the name and partition the instance persists its offsets and state under.
func WithTask(name string, partition int32) Option {
	return func(c *Config) {
		c.TaskName = name
		c.Partition = partition
	}
}

func WithSettings(settings map[string]any) Option {
	return func(c *Config) {
		c.Settings = settings
	}
}

func WithCommitInterval(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.CommitInterval = d
		}
	}
}

func WithCommitMaxCount(n int) Option {
	return func(c *Config) {
		c.CommitMaxCount = n
	}
}

func WithDequeueTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.DequeueTimeout = d
		}
	}
}

// WithQueueSize sets the capacity of the queue shared by all readers of the instance.
func WithQueueSize(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.QueueSize = n
		}
	}
}

func WithReaderShutdownTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReaderShutdownTimeout = d
		}
	}
}

func WithReaderOptions(opts ...reader.Option) Option {
	return func(c *Config) {
		c.ReaderOptions = append(c.ReaderOptions, opts...)
	}
}

func WithLogger(l logger.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}

func WithTelemetry(t *otel.Telemetry) Option {
	return func(c *Config) {
		if t != nil {
			c.Telemetry = t
		}
	}
}
