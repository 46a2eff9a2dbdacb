package cache

import "testing"

func TestNoOpLoggerDiscardsEverything(t *testing.T) {
	l := NewNoOpLogger()
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
}

func TestConsoleLoggerDoesNotPanic(t *testing.T) {
	l := NewConsoleLogger("test")
	l.Debug("hello", "k", "v")
	l.Info("hello")
	l.Warn("hello", "n", 1)
	l.Error("hello", "err", "boom")
}
