package lock

import "time"

const (
	DefaultPrefix        = "coord:lock:user:"
	DefaultTTL           = 60 * time.Second
	DefaultRetryInterval = 100 * time.Millisecond
	DefaultMaxAttempts   = 50
)

// Config holds the configuration for the lock manager.
type Config struct {
	// Prefix is prepended to every resource id to build the store key.
	Prefix string
	// TTL bounds how long a crashed holder keeps the resource locked.
	TTL time.Duration
	// RetryInterval is the pause after a failed acquisition attempt.
	RetryInterval time.Duration
	// MaxAttempts is the number of attempts Acquire makes before giving up.
	MaxAttempts int
}

// Option configures a lock manager instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a lock config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithPrefix returns an option that sets the key prefix.
func WithPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		if value != "" {
			c.Prefix = value
		}
	})
}

// WithTTL returns an option that sets the lock expiry.
func WithTTL(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if value > 0 {
			c.TTL = value
		}
	})
}

// WithRetryInterval returns an option that sets the pause between attempts.
func WithRetryInterval(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if value >= 0 {
			c.RetryInterval = value
		}
	})
}

// WithMaxAttempts returns an option that sets how many times Acquire tries.
func WithMaxAttempts(value int) Option {
	return OptionFunc(func(c *Config) {
		if value > 0 {
			c.MaxAttempts = value
		}
	})
}
