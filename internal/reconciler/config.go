package reconciler

import (
	"errors"
	"time"
)

const (
	DefaultInterval     = 10 * time.Second
	DefaultInitialDelay = time.Second
)

var (
	ErrInvalidInterval = errors.New("reconcile interval must be positive")
	ErrInvalidDelay    = errors.New("initial delay must not be negative")
	ErrInvalidRate     = errors.New("query rate must not be negative")
)

// Config controls the polling schedule.
type Config struct {
	// Interval between ticks.
	Interval time.Duration `mapstructure:"interval"`

	// InitialDelay before the first tick of a session.
	InitialDelay time.Duration `mapstructure:"initial_delay"`

	// MaxConcurrent bounds status queries running within one tick. Zero
	// means one goroutine per record.
	MaxConcurrent int `mapstructure:"max_concurrent"`

	// QueryRate limits outbound status queries per second across all ticks.
	// Zero disables the limit.
	QueryRate  float64 `mapstructure:"query_rate"`
	QueryBurst int     `mapstructure:"query_burst"`
}

func DefaultConfig() Config {
	return Config{
		Interval:     DefaultInterval,
		InitialDelay: DefaultInitialDelay,
	}
}

func (c Config) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.InitialDelay < 0 {
		return ErrInvalidDelay
	}
	if c.QueryRate < 0 {
		return ErrInvalidRate
	}
	return nil
}
