package allocbench

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"

	"github.com/pavanmanishd/allocbench/heap"
)

// ArenaPolicy decides how long an arena lives.
type ArenaPolicy string

const (
	// ArenaFresh provisions a new arena and backend for every iteration.
	ArenaFresh ArenaPolicy = "fresh"
	// ArenaReuse keeps one arena and backend for the whole session. The
	// backend must be empty again at the end of every iteration.
	ArenaReuse ArenaPolicy = "reuse"
)

func (p *ArenaPolicy) UnmarshalText(text []byte) error {
	switch v := ArenaPolicy(text); v {
	case ArenaFresh, ArenaReuse:
		*p = v
		return nil
	}
	return errors.Wrapf(ErrInvalidConfig, "arena policy %q", text)
}

// Config drives a Runner.
type Config struct {
	HeapSize    int         `toml:"heap-size"`
	HeapAlign   int         `toml:"heap-align"`
	Iterations  int         `toml:"iterations"`
	ArenaPolicy ArenaPolicy `toml:"arena-policy"`

	// Verify wraps every backend in heap.Check.
	Verify bool `toml:"verify"`
	// Meter wraps every backend in a Metered decorator. Needs a Reporter.
	Meter bool `toml:"meter"`
	// Profile runs one untimed pass to capture peak heap metrics.
	Profile bool `toml:"profile"`

	Scenarios []string  `toml:"scenarios"`
	Backends  []string  `toml:"backends"`
	Log       LogConfig `toml:"log"`
}

// DefaultConfig returns the settings used when no file is given.
func DefaultConfig() Config {
	return Config{
		HeapSize:    heap.DefaultArenaSize,
		HeapAlign:   heap.DefaultArenaAlign,
		Iterations:  10,
		ArenaPolicy: ArenaFresh,
		Profile:     true,
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.HeapSize <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "heap-size %d", c.HeapSize)
	}
	if !heap.IsPowerOfTwo(c.HeapAlign) {
		return errors.Wrapf(ErrInvalidConfig, "heap-align %d is not a power of two", c.HeapAlign)
	}
	if c.Iterations <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "iterations %d", c.Iterations)
	}
	if c.Verify && uint64(c.HeapSize) > heap.MaxCheckedArenaSize {
		return errors.Wrapf(ErrInvalidConfig, "verify supports heap-size up to %d, got %d",
			heap.MaxCheckedArenaSize, c.HeapSize)
	}
	switch c.ArenaPolicy {
	case ArenaFresh, ArenaReuse:
	default:
		return errors.Wrapf(ErrInvalidConfig, "arena-policy %q", c.ArenaPolicy)
	}
	return c.Log.Validate()
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are
// rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "load config %s", path)
	}
	return cfg, checkDecoded(cfg, md)
}

// ParseConfig is LoadConfig for a TOML document held in memory.
func ParseConfig(data string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(data, &cfg)
	if err != nil {
		return Config{}, errors.Wrap(err, "parse config")
	}
	return cfg, checkDecoded(cfg, md)
}

func checkDecoded(cfg Config, md toml.MetaData) error {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return errors.Wrapf(ErrInvalidConfig, "unknown keys: %s", strings.Join(keys, ", "))
	}
	return cfg.Validate()
}
