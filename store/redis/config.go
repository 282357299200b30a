package redis

import "time"

// Config holds the configuration for the redis store.
type Config struct {
	// OperationTimeout bounds every non-blocking call. Blocking pops are
	// bounded by their own timeout plus this value.
	OperationTimeout time.Duration
}

// An Option configures a store instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a store config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithOperationTimeout returns an option that sets the per call timeout.
// Zero disables the timeout and relies on the caller context only.
func WithOperationTimeout(value time.Duration) Option {
	return OptionFunc(func(c *Config) {
		c.OperationTimeout = value
	})
}
