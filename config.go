package dwdma

import (
	"os"
	"time"

	"dario.cat/mergo"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v3"
)

//Config holds the tunables of an Engine and of the hardware backend it is probed on.
/*
A Config is usually loaded from yaml:

	tick: 1ms
	drain_timeout: 100ms
	completion_queue: 64
	backend: uio
	uio: 2
	logging:
	  level: debug
	stats:
	  listen: 127.0.0.1:9090
	  path: /metrics

Fields left out take the value of DefaultConfig.
*/
type Config struct {
	// Tick is the period of the drain poll
	Tick time.Duration `yaml:"tick"`
	// DrainTimeout bounds how long a channel may stay draining before it is disabled by force
	DrainTimeout time.Duration `yaml:"drain_timeout"`
	// CompletionQueue is the number of completion events buffered for the dispatcher
	CompletionQueue int `yaml:"completion_queue"`

	// Backend selects the hardware access: "uio", "rpi" or "sim"
	Backend string `yaml:"backend"`
	// UIO is the index of the /dev/uioN device exposing the engine
	UIO int `yaml:"uio"`
	// Peripheral is the bus offset of the register window for the rpi backend
	Peripheral uint32 `yaml:"peripheral"`

	Logging LoggingConfig `yaml:"logging"`
	Stats   StatsConfig   `yaml:"stats"`
}

//LoggingConfig selects level and format of the logrus logger
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

//StatsConfig configures the prometheus endpoint
type StatsConfig struct {
	Listen    string        `yaml:"listen"`
	Path      string        `yaml:"path"`
	Namespace string        `yaml:"namespace"`
	Subsystem string        `yaml:"subsystem"`
	Interval  time.Duration `yaml:"interval"`
}

//DefaultConfig returns the configuration used when nothing else is set.
func DefaultConfig() *Config {
	return &Config{
		Tick:            time.Millisecond,
		DrainTimeout:    100 * time.Millisecond,
		CompletionQueue: 64,
		Backend:         "sim",
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Stats: StatsConfig{
			Path:      "/metrics",
			Namespace: "dwdma",
			Interval:  10 * time.Second,
		},
	}
}

//LoadConfig reads the yaml file at path and fills unset fields from DefaultConfig.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return ParseConfig(raw)
}

//ParseConfig parses raw yaml and fills unset fields from DefaultConfig.
func ParseConfig(raw []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(raw, c); err != nil {
		return nil, errors.Wrap(err, "parse config")
	}
	if err := c.fillDefaults(); err != nil {
		return nil, err
	}
	return c, c.Validate()
}

func (c *Config) fillDefaults() error {
	if err := mergo.Merge(c, *DefaultConfig()); err != nil {
		return errors.Wrap(err, "merge config defaults")
	}
	return nil
}

//Validate checks the values of the Config
func (c *Config) Validate() error {
	if c.Tick <= 0 {
		return errors.Wrap(ErrInvalidConfig, "tick must be positive")
	}
	if c.DrainTimeout < c.Tick {
		return errors.Wrap(ErrInvalidConfig, "drain_timeout shorter than tick")
	}
	if c.CompletionQueue <= 0 {
		return errors.Wrap(ErrInvalidConfig, "completion_queue must be positive")
	}
	switch c.Backend {
	case "uio", "rpi", "sim":
	default:
		return errors.Wrapf(ErrInvalidConfig, "unknown backend %q", c.Backend)
	}
	return nil
}

//drainPolls is the number of poll ticks a channel may stay draining
func (c *Config) drainPolls() int {
	n := int(c.DrainTimeout / c.Tick)
	if n < 1 {
		n = 1
	}
	return n
}
