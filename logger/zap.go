package logger

import (
	"go.uber.org/zap"

	"bptree"
)

// Zap adapts a zap.Logger to bptree.Logger through its sugared form,
// which takes the same loosely-typed key-value pairs.
type Zap struct {
	sugar *zap.SugaredLogger
}

// NewZap creates a bptree.Logger backed by logger.
func NewZap(logger *zap.Logger) bptree.Logger {
	return &Zap{sugar: logger.Sugar()}
}

func (z *Zap) Error(msg string, args ...any) {
	z.sugar.Errorw(msg, args...)
}

func (z *Zap) Warn(msg string, args ...any) {
	z.sugar.Warnw(msg, args...)
}

func (z *Zap) Info(msg string, args ...any) {
	z.sugar.Infow(msg, args...)
}
