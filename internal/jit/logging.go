package jit

import (
	"github.com/hakanerp/avian/internal/config"
	"go.uber.org/zap"
)

// newLogger builds the optional debug-trace logger described in
// SPEC_FULL.md's AMBIENT STACK section. Purely diagnostic: it never
// influences emitted machine code, the same separation the teacher keeps
// between its zap-based diagnostics and its codegen correctness.
func newLogger(cfg config.Config) *zap.SugaredLogger {
	if !cfg.DebugTrace {
		return zap.NewNop().Sugar()
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop().Sugar()
	}
	return l.Sugar()
}
