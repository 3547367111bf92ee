// Package config loads the optional runtime tuning surface (heap pool
// size, GC stress mode, GC debug logging) for a Caby invocation from a
// TOML file. cmd/caby merges this with CLI flag overrides before
// constructing the VM.
package config

import (
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/Gregofi/caby/pkg/vm"
)

// Config is the tunable surface of one Caby invocation. Fields left
// unset in a caby.toml file keep Default()'s values rather than zeroing
// out, since Load starts from Default() and unmarshals on top of it.
type Config struct {
	HeapSize uint64 `toml:"heap_size"`
	GCStress bool   `toml:"gc_stress"`
	GCDebug  bool   `toml:"gc_debug"`
}

// Default returns the compile-time defaults: the heap pool sized at
// vm.DefaultHeapSize, stress mode and debug logging both off.
func Default() Config {
	return Config{HeapSize: vm.DefaultHeapSize}
}

// Load reads and parses a caby.toml file at path.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "config: parsing %s", path)
	}
	return cfg, nil
}

// Options converts cfg into the vm.Option values that reproduce it.
func (c Config) Options() []vm.Option {
	opts := []vm.Option{vm.WithHeapSize(c.HeapSize)}
	if c.GCStress {
		opts = append(opts, vm.WithStress(true))
	}
	if c.GCDebug {
		logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
		opts = append(opts, vm.WithGCLogger(logger))
	}
	return opts
}
