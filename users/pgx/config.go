package pgx

// Config holds the configuration for the PostgreSQL user repository.
type Config struct {
	TableName string
}

// An Option configures a Repository instance.
type Option interface {
	Apply(*Config)
}

// OptionFunc is a function that configures a Repository config.
type OptionFunc func(*Config)

// Apply calls f(config).
func (f OptionFunc) Apply(config *Config) {
	f(config)
}

// WithTableName sets the users table name.
func WithTableName(s string) Option {
	return OptionFunc(func(c *Config) {
		if s != "" {
			c.TableName = s
		}
	})
}
