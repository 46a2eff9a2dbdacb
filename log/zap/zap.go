// Package zap adapts a *zap.Logger to cache.Logger for hosts that
// standardize on go.uber.org/zap rather than the console logger.
package zap

import "go.uber.org/zap"

// Adapter implements cache.Logger over a *zap.Logger. It is satisfied
// structurally; importing cache here is unnecessary.
type Adapter struct {
	L *zap.Logger
}

// New wraps an existing *zap.Logger.
func New(l *zap.Logger) Adapter { return Adapter{L: l} }

func (a Adapter) Debug(msg string, args ...any) { a.L.Debug(msg, fields(args)...) }
func (a Adapter) Info(msg string, args ...any)  { a.L.Info(msg, fields(args)...) }
func (a Adapter) Warn(msg string, args ...any)  { a.L.Warn(msg, fields(args)...) }
func (a Adapter) Error(msg string, args ...any) { a.L.Error(msg, fields(args)...) }

// fields pairs up args as (key, value, key, value, ...) into zap
// fields. A trailing unpaired arg is logged under "extra".
func fields(args []any) []zap.Field {
	if len(args) == 0 {
		return nil
	}
	out := make([]zap.Field, 0, (len(args)+1)/2)
	i := 0
	for ; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			key = "arg"
		}
		out = append(out, zap.Any(key, args[i+1]))
	}
	if i < len(args) {
		out = append(out, zap.Any("extra", args[i]))
	}
	return out
}
