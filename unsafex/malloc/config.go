package malloc

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// DefaultCapacity is the default arena size (64MB).
	DefaultCapacity = 64 << 20

	// DefaultSlotsPerArena is the default number of slots carved per slot arena by object pools.
	DefaultSlotsPerArena = 64
)

// Config holds the settings of a heap and the pools built on it.
//
//	capacity = 67108864
//	slots_per_arena = 64
//	log_level = "info"
type Config struct {
	// Capacity is the arena size in bytes.
	Capacity int `toml:"capacity"`

	// SlotsPerArena is how many objects a pool adds each time it grows.
	SlotsPerArena int `toml:"slots_per_arena"`

	// LogLevel is one of zap's level names; empty disables logging.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the default values of Config.
func DefaultConfig() Config {
	return Config{
		Capacity:      DefaultCapacity,
		SlotsPerArena: DefaultSlotsPerArena,
	}
}

// LoadConfig reads a TOML file. Missing keys keep their default values.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("load config %q: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the values of c.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be > 0, got %d", c.Capacity)
	}
	if c.SlotsPerArena <= 0 {
		return fmt.Errorf("slots_per_arena must be > 0, got %d", c.SlotsPerArena)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// NewLogger builds a production zap logger at c.LogLevel, or a nop logger if unset.
func (c Config) NewLogger() (*zap.Logger, error) {
	if c.LogLevel == "" {
		return zap.NewNop(), nil
	}
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

// NewHeapFromConfig creates a heap and initializes it with c.Capacity.
// Unless opts carries its own logger, the heap logs through c.NewLogger().
func NewHeapFromConfig(c Config, opts ...Option) (*Heap, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	l, err := c.NewLogger()
	if err != nil {
		return nil, err
	}
	h := NewHeap(append([]Option{WithLogger(l)}, opts...)...)
	if err := h.Init(c.Capacity); err != nil {
		return nil, err
	}
	return h, nil
}
