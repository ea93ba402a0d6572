// Package config loads the backend's tunable knobs. Grounded on the
// teacher's internal/pkg/config.go LoadConfig: same library
// (github.com/pelletier/go-toml/v2), same read-then-unmarshal-then-wrap
// shape. Unlike the teacher's project manifest, this config is read-only
// tuning data — no SPEC_FULL.md component ever writes one back out, so we
// do not port the teacher's hand-rolled comment-preserving TOML writer.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// ConfigFileName is the conventional on-disk name a host may look for,
// mirroring the teacher's ConfigFileName constant.
const ConfigFileName = "avian.toml"

// Config holds tuning knobs consumed by internal/jit.NewContext. The zero
// value is a valid configuration; unlike Default, it leaves AlignCallStack
// off.
type Config struct {
	// RegisterCount overrides the assembler's default register file size.
	// Tests use a small value to force spilling/stealing deterministically
	// with a register-starved register file.
	RegisterCount int `toml:"register_count"`

	// DebugTrace enables the zap debug logger; the backend logs one line
	// per WriteTo (code length and pool size). Never affects emitted code.
	DebugTrace bool `toml:"debug_trace"`

	// AlignCallStack controls whether CallEvent emits the stack-alignment
	// variant of the call sequence.
	AlignCallStack bool `toml:"align_call_stack"`
}

// Load reads and parses path as TOML into a Config.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}

// Default returns the conventional default configuration (no register
// override, no debug trace, aligned call stack).
func Default() Config {
	return Config{AlignCallStack: true}
}
