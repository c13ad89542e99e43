package webclient

import "time"

const (
	DefaultTimeout      = 30 * time.Second
	DefaultMaxBodyBytes = 64 << 20
)

// Config tunes the net/http client.
type Config struct {
	// Timeout bounds a whole request including the body read. Zero means
	// DefaultTimeout.
	Timeout time.Duration `mapstructure:"timeout"`

	// UserAgent is sent unless the request sets its own.
	UserAgent string `mapstructure:"user_agent"`

	// MaxBodyBytes caps response bodies. Zero means DefaultMaxBodyBytes.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}
