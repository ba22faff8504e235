package scheduler

import (
	"time"

	"github.com/smallbiznis/quotepay/internal/config"
)

// Config controls scheduler intervals and job limits.
type Config struct {
	RunInterval time.Duration
	JobTimeout  time.Duration
	// BacklogAge is how old an unprocessed webhook event must be before the
	// backlog job reports it.
	BacklogAge   time.Duration
	BacklogLimit int
	EnabledJobs  []string
}

func DefaultConfig() Config {
	return Config{
		RunInterval:  15 * time.Minute,
		JobTimeout:   30 * time.Second,
		BacklogAge:   10 * time.Minute,
		BacklogLimit: 100,
	}
}

func ProvideConfig(cfg config.Config) Config {
	return Config{RunInterval: cfg.SweepInterval}.withDefaults()
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.JobTimeout <= 0 {
		c.JobTimeout = defaults.JobTimeout
	}
	if c.BacklogAge <= 0 {
		c.BacklogAge = defaults.BacklogAge
	}
	if c.BacklogLimit <= 0 {
		c.BacklogLimit = defaults.BacklogLimit
	}
	return c
}
