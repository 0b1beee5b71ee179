package committer

import (
	"time"
)

var _ Trigger = (*Periodic)(nil)

type PeriodicConfig struct {
	MaxInterval time.Duration
	// MaxCount fires the trigger early once this many records were processed. 0 disables it.
	MaxCount int
}

type PeriodicOption func(*PeriodicConfig)

func WithMaxInterval(d time.Duration) PeriodicOption {
	return func(cfg *PeriodicConfig) {
		cfg.MaxInterval = d
	}
}

func WithMaxCount(c int) PeriodicOption {
	return func(cfg *PeriodicConfig) {
		cfg.MaxCount = c
	}
}

// Periodic is due when MaxInterval elapsed since the last Reset, or when MaxCount
// records were processed since then.
type Periodic struct {
	c     PeriodicConfig
	count int
	last  time.Time
}

func NewPeriodic(now time.Time, opts ...PeriodicOption) *Periodic {
	cfg := PeriodicConfig{
		MaxInterval: 5 * time.Second,
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	return &Periodic{
		c:    cfg,
		last: now,
	}
}

func (p *Periodic) RecordProcessed(count int) {
	p.count += count
}

func (p *Periodic) Due(now time.Time) bool {
	if p.c.MaxCount > 0 && p.count >= p.c.MaxCount {
		return true
	}
	return now.Sub(p.last) >= p.c.MaxInterval
}

func (p *Periodic) Reset(now time.Time) {
	p.count = 0
	p.last = now
}
