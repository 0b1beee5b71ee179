package reader

import (
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hugolhafner/go-tasks/logger"
	"github.com/hugolhafner/go-tasks/otel"
)

type Config struct {
	PollTimeout time.Duration

	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64

	// Retry logs are debug until a failure lasted WarnAfter, warn until ErrorAfter, then error.
	WarnAfter  time.Duration
	ErrorAfter time.Duration

	// NewBackOff overrides the exponential policy built from the fields above.
	NewBackOff func() backoff.BackOff

	Logger    logger.Logger
	Telemetry *otel.Telemetry
}

func defaultConfig() Config {
	return Config{
		PollTimeout:       time.Second,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffMultiplier: 2,
		WarnAfter:         10 * time.Second,
		ErrorAfter:        time.Minute,
		Logger:            logger.NewNoopLogger(),
		Telemetry:         otel.Noop(),
	}
}

func (c Config) newBackOff() backoff.BackOff {
	if c.NewBackOff != nil {
		return c.NewBackOff()
	}

	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(c.InitialBackoff),
		backoff.WithMultiplier(c.BackoffMultiplier),
		backoff.WithMaxInterval(c.MaxBackoff),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxElapsedTime(0),
	)
}

type Option func(*Config)

func WithPollTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.PollTimeout = d
	}
}

func WithBackoff(initial, max time.Duration, multiplier float64) Option {
	return func(c *Config) {
		c.InitialBackoff = initial
		c.MaxBackoff = max
		c.BackoffMultiplier = multiplier
	}
}

func WithBackOffFactory(f func() backoff.BackOff) Option {
	return func(c *Config) {
		c.NewBackOff = f
	}
}

func WithEscalation(warnAfter, errorAfter time.Duration) Option {
	return func(c *Config) {
		c.WarnAfter = warnAfter
		c.ErrorAfter = errorAfter
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
