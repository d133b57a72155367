// Package config loads alloclower.toml, the settings shared by the lower,
// test and replay commands.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/roach88/alloclower/internal/engine"
	"github.com/roach88/alloclower/internal/heap"
	"github.com/roach88/alloclower/internal/lowering"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "alloclower.toml"

// Config is the decoded configuration file.
type Config struct {
	Lowering Lowering `toml:"lowering"`
	Engine   Engine   `toml:"engine"`
	Log      Log      `toml:"log"`
	Store    Store    `toml:"store"`

	// Path is the file the config was read from, empty for Default.
	Path string `toml:"-"`
}

// Lowering mirrors lowering.Limits.
type Lowering struct {
	MaxRegularObjectSize      int  `toml:"max_regular_object_size"`
	FunctionContextSlotLimit  int  `toml:"function_context_slot_limit"`
	BlockContextSlotLimit     int  `toml:"block_context_slot_limit"`
	ElementLoopUnrollLimit    int  `toml:"element_loop_unroll_limit"`
	MaxFastLiteralDepth       int  `toml:"max_fast_literal_depth"`
	MaxFastLiteralProperties  int  `toml:"max_fast_literal_properties"`
	AllocationSitePretenuring bool `toml:"allocation_site_pretenuring"`
}

// Engine configures the reduction driver.
type Engine struct {
	MaxSteps int `toml:"max_steps"`
}

// Log configures the CLI logger.
type Log struct {
	Level string `toml:"level"`
}

// Store configures persistence. An empty path disables it.
type Store struct {
	Path string `toml:"path"`
}

// Default returns the production configuration.
func Default() *Config {
	l := lowering.DefaultLimits()
	return &Config{
		Lowering: Lowering{
			MaxRegularObjectSize:      l.MaxRegularObjectSize,
			FunctionContextSlotLimit:  l.FunctionContextSlotLimit,
			BlockContextSlotLimit:     l.BlockContextSlotLimit,
			ElementLoopUnrollLimit:    l.ElementLoopUnrollLimit,
			MaxFastLiteralDepth:       l.MaxFastLiteralDepth,
			MaxFastLiteralProperties:  l.MaxFastLiteralProperties,
			AllocationSitePretenuring: l.AllocationSitePretenuring,
		},
		Engine: Engine{MaxSteps: engine.DefaultMaxSteps},
		Log:    Log{Level: "info"},
	}
}

// Parse decodes TOML over the defaults. Keys the config does not know are
// rejected.
func Parse(data []byte) (*Config, error) {
	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("parse config: unknown keys: %s", strings.Join(keys, ", "))
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Load reads and parses the config at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Path = path
	return c, nil
}

// FindAndLoad walks up from startDir looking for FileName. Without one it
// returns Default.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}
	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default(), nil
		}
		dir = parent
	}
}

// Validate reports every out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	positive := func(name string, v int) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}
	l := c.Lowering
	positive("lowering.max_regular_object_size", l.MaxRegularObjectSize)
	positive("lowering.max_fast_literal_depth", l.MaxFastLiteralDepth)
	positive("engine.max_steps", c.Engine.MaxSteps)
	for _, f := range []struct {
		name string
		v    int
	}{
		{"lowering.function_context_slot_limit", l.FunctionContextSlotLimit},
		{"lowering.block_context_slot_limit", l.BlockContextSlotLimit},
		{"lowering.element_loop_unroll_limit", l.ElementLoopUnrollLimit},
		{"lowering.max_fast_literal_properties", l.MaxFastLiteralProperties},
	} {
		if f.v < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %d", f.name, f.v))
		}
	}
	if l.MaxRegularObjectSize%heap.PointerSize != 0 {
		errs = append(errs, fmt.Errorf("lowering.max_regular_object_size must be a multiple of %d", heap.PointerSize))
	}
	if _, err := c.LogLevel(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Limits converts the lowering section.
func (c *Config) Limits() lowering.Limits {
	l := c.Lowering
	return lowering.Limits{
		MaxRegularObjectSize:      l.MaxRegularObjectSize,
		FunctionContextSlotLimit:  l.FunctionContextSlotLimit,
		BlockContextSlotLimit:     l.BlockContextSlotLimit,
		ElementLoopUnrollLimit:    l.ElementLoopUnrollLimit,
		MaxFastLiteralDepth:       l.MaxFastLiteralDepth,
		MaxFastLiteralProperties:  l.MaxFastLiteralProperties,
		AllocationSitePretenuring: l.AllocationSitePretenuring,
	}
}

// LogLevel parses the log level name.
func (c *Config) LogLevel() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return 0, fmt.Errorf("log.level: %w", err)
	}
	return lvl, nil
}
