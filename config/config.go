// Package config loads the coordd configuration from YAML with environment
// overrides.
package config

import (
	"bytes"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/lock"
	"github.com/enverbisevac/coord/queue"
	storeredis "github.com/enverbisevac/coord/store/redis"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is the prefix of environment variables overriding the file.
const EnvPrefix = "COORD_"

// HTTP configures the admin API listener.
type HTTP struct {
	Addr string `yaml:"addr"`
}

// Redis configures the connection to the coordination store.
type Redis struct {
	Addr             string        `yaml:"addr"`
	Password         string        `yaml:"password"`
	DB               int           `yaml:"db"`
	OperationTimeout time.Duration `yaml:"operation_timeout"`
}

// Database configures the users repository.
type Database struct {
	// URL is a PostgreSQL connection string. Empty disables the users
	// repository.
	URL string `yaml:"url"`
}

// Lock configures the lock manager.
type Lock struct {
	Prefix        string        `yaml:"prefix"`
	TTL           time.Duration `yaml:"ttl"`
	RetryInterval time.Duration `yaml:"retry_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
}

// Options converts the section into lock manager options.
func (l Lock) Options() []lock.Option {
	return []lock.Option{
		lock.WithPrefix(l.Prefix),
		lock.WithTTL(l.TTL),
		lock.WithRetryInterval(l.RetryInterval),
		lock.WithMaxAttempts(l.MaxAttempts),
	}
}

// Queue configures the work queue and its consumers.
type Queue struct {
	Prefix       string        `yaml:"prefix"`
	Consumers    int           `yaml:"consumers"`
	MaxSize      int64         `yaml:"max_size"`
	MaxRetries   int           `yaml:"max_retries"`
	PopTimeout   time.Duration `yaml:"pop_timeout"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
	ErrorBackoff time.Duration `yaml:"error_backoff"`
	FailClosed   bool          `yaml:"fail_closed"`
	// Names are the queues consumers are started on.
	Names []string `yaml:"names"`
}

// Options converts the section into queue options.
func (q Queue) Options() []queue.Option {
	return []queue.Option{
		queue.WithPrefix(q.Prefix),
		queue.WithConsumers(q.Consumers),
		queue.WithMaxSize(q.MaxSize),
		queue.WithMaxRetries(q.MaxRetries),
		queue.WithPopTimeout(q.PopTimeout),
		queue.WithRetryDelay(q.RetryDelay),
		queue.WithErrorBackoff(q.ErrorBackoff),
		queue.WithFailClosed(q.FailClosed),
	}
}

// Config is the complete coordd configuration.
type Config struct {
	HTTP     HTTP     `yaml:"http"`
	Redis    Redis    `yaml:"redis"`
	Database Database `yaml:"database"`
	Lock     Lock     `yaml:"lock"`
	Queue    Queue    `yaml:"queue"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		HTTP: HTTP{Addr: ":8080"},
		Redis: Redis{
			Addr:             "localhost:6379",
			OperationTimeout: storeredis.DefaultOperationTimeout,
		},
		Lock: Lock{
			Prefix:        lock.DefaultPrefix,
			TTL:           lock.DefaultTTL,
			RetryInterval: lock.DefaultRetryInterval,
			MaxAttempts:   lock.DefaultMaxAttempts,
		},
		Queue: Queue{
			Prefix:       queue.DefaultPrefix,
			Consumers:    queue.DefaultConsumers,
			MaxSize:      queue.DefaultMaxSize,
			MaxRetries:   queue.DefaultMaxRetries,
			PopTimeout:   queue.DefaultPopTimeout,
			RetryDelay:   queue.DefaultRetryDelay,
			ErrorBackoff: queue.DefaultErrorBackoff,
			Names:        []string{"tasks"},
		},
	}
}

// Load reads the file at path on top of the defaults and applies the
// environment overrides. An empty path loads defaults and environment only.
func Load(path string) (Config, error) {
	config := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.InvalidArgument("config: read %s", path).Source(err)
		}
		if err := config.Decode(bytes.NewReader(data)); err != nil {
			return Config{}, err
		}
	}

	if err := config.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := config.Validate(); err != nil {
		return Config{}, err
	}
	return config, nil
}

// Decode reads YAML from r into c. Keys absent from the document keep their
// current value.
func (c *Config) Decode(r io.Reader) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && err != io.EOF {
		return errors.InvalidArgument("config: %v", err).Source(err)
	}
	return nil
}

// ApplyEnv overrides connection settings from COORD_* variables looked up
// with lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPrefix + "HTTP_ADDR"); ok {
		c.HTTP.Addr = v
	}
	if v, ok := lookup(EnvPrefix + "REDIS_ADDR"); ok {
		c.Redis.Addr = v
	}
	if v, ok := lookup(EnvPrefix + "REDIS_PASSWORD"); ok {
		c.Redis.Password = v
	}
	if v, ok := lookup(EnvPrefix + "REDIS_DB"); ok {
		db, err := strconv.Atoi(v)
		if err != nil {
			return errors.InvalidArgument("config: %sREDIS_DB: %q is not a number", EnvPrefix, v).Source(err)
		}
		c.Redis.DB = db
	}
	if v, ok := lookup(EnvPrefix + "DATABASE_URL"); ok {
		c.Database.URL = v
	}
	return nil
}

// Validate rejects values the lock manager and the queue cannot run with.
func (c Config) Validate() error {
	switch {
	case c.HTTP.Addr == "":
		return errors.InvalidArgument("config: http.addr is required")
	case c.Redis.Addr == "":
		return errors.InvalidArgument("config: redis.addr is required")
	case c.Redis.DB < 0:
		return errors.InvalidArgument("config: redis.db must not be negative")
	case c.Redis.OperationTimeout <= 0:
		return errors.InvalidArgument("config: redis.operation_timeout must be positive")
	case c.Lock.TTL <= 0:
		return errors.InvalidArgument("config: lock.ttl must be positive")
	case c.Lock.RetryInterval <= 0:
		return errors.InvalidArgument("config: lock.retry_interval must be positive")
	case c.Lock.MaxAttempts <= 0:
		return errors.InvalidArgument("config: lock.max_attempts must be positive")
	case c.Queue.Consumers <= 0:
		return errors.InvalidArgument("config: queue.consumers must be positive")
	case c.Queue.MaxSize <= 0:
		return errors.InvalidArgument("config: queue.max_size must be positive")
	case c.Queue.MaxRetries < 0:
		return errors.InvalidArgument("config: queue.max_retries must not be negative")
	case c.Queue.PopTimeout <= 0:
		return errors.InvalidArgument("config: queue.pop_timeout must be positive")
	case c.Queue.RetryDelay < 0:
		return errors.InvalidArgument("config: queue.retry_delay must not be negative")
	case c.Queue.ErrorBackoff < 0:
		return errors.InvalidArgument("config: queue.error_backoff must not be negative")
	}
	for _, name := range c.Queue.Names {
		if name == "" {
			return errors.InvalidArgument("config: queue.names must not contain empty names")
		}
	}
	return nil
}
