package queue

import "time"

const (
	DefaultPrefix       = "coord:queue:"
	DefaultConsumers    = 4
	DefaultMaxSize      = 10000
	DefaultMaxRetries   = 3
	DefaultPopTimeout   = time.Second
	DefaultRetryDelay   = 5 * time.Second
	DefaultErrorBackoff = time.Second
)

// Config holds the configuration for a Queue.
type Config struct {
	// Prefix is prepended to the queue name to build the list key.
	Prefix string
	// Consumers is the number of consumer loops started per queue.
	Consumers int
	// MaxSize is the queue length at which Publish rejects new messages.
	MaxSize int64
	// MaxRetries is how many failed deliveries are retried before a
	// message is discarded.
	MaxRetries int
	// PopTimeout bounds each blocking pop so consumers notice Stop.
	PopTimeout time.Duration
	// RetryDelay is the pause before a failed message is pushed back.
	RetryDelay time.Duration
	// ErrorBackoff is the pause after a store failure in a consumer.
	ErrorBackoff time.Duration
	// FailClosed rejects publishes while the queue length is unknown.
	FailClosed bool
}

// An Option configures a Queue instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a Queue config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithPrefix sets the list key prefix.
func WithPrefix(value string) Option {
	return OptionFunc(func(c *Config) {
		if value != "" {
			c.Prefix = value
		}
	})
}

// WithConsumers sets the number of consumer loops per queue.
func WithConsumers(n int) Option {
	return OptionFunc(func(c *Config) {
		if n > 0 {
			c.Consumers = n
		}
	})
}

// WithMaxSize sets the admission limit.
func WithMaxSize(n int64) Option {
	return OptionFunc(func(c *Config) {
		if n > 0 {
			c.MaxSize = n
		}
	})
}

// WithMaxRetries sets how many failed deliveries are retried.
func WithMaxRetries(n int) Option {
	return OptionFunc(func(c *Config) {
		if n >= 0 {
			c.MaxRetries = n
		}
	})
}

// WithPopTimeout sets the blocking pop timeout.
func WithPopTimeout(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if d > 0 {
			c.PopTimeout = d
		}
	})
}

// WithRetryDelay sets the pause before a failed message is re-enqueued.
func WithRetryDelay(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if d >= 0 {
			c.RetryDelay = d
		}
	})
}

// WithErrorBackoff sets the pause after a store failure in a consumer.
func WithErrorBackoff(d time.Duration) Option {
	return OptionFunc(func(c *Config) {
		if d >= 0 {
			c.ErrorBackoff = d
		}
	})
}

// WithFailClosed makes IsFull and Publish treat an unknown queue length as
// full instead of empty.
func WithFailClosed(value bool) Option {
	return OptionFunc(func(c *Config) {
		c.FailClosed = value
	})
}
