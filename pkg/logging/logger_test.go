package logging

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level Level) (*ZapLogger, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)
	return NewZapLogger(core, level), logs
}

func TestLogLevelString(t *testing.T) {
	tests := []struct {
		level    Level
		expected string
	}{
		{DebugLevel, "DEBUG"},
		{InfoLevel, "INFO"},
		{WarnLevel, "WARN"},
		{ErrorLevel, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.level.String(); got != tt.expected {
				t.Errorf("Level.String() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected Level
	}{
		{"DEBUG", DebugLevel},
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"warn", WarnLevel},
		{"WARNING", WarnLevel},
		{"error", ErrorLevel},
		{"invalid", InfoLevel}, // Default
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := ParseLevel(tt.input); got != tt.expected {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestFieldConstructors(t *testing.T) {
	if f := NodeID(7); f.Key != "node_id" || f.Type != zapcore.Uint64Type || f.Integer != 7 {
		t.Errorf("NodeID field = %+v", f)
	}
	if f := RelationshipID(9); f.Key != "relationship_id" || f.Integer != 9 {
		t.Errorf("RelationshipID field = %+v", f)
	}
	if f := Error(nil); f.Type != zapcore.SkipType {
		t.Errorf("Error(nil) should be skipped, got %+v", f)
	}
	if f := Error(errors.New("boom")); f.Key != "error" || f.Interface.(error).Error() != "boom" {
		t.Errorf("Error field = %+v, want boom", f)
	}
	if f := Latency(time.Second); f.Type != zapcore.DurationType || time.Duration(f.Integer) != time.Second {
		t.Errorf("Latency field = %+v, want 1s", f)
	}
}

func TestZapLogger_LevelFiltering(t *testing.T) {
	logger, logs := newObserved(WarnLevel)

	logger.Debug("debug")
	logger.Info("info")
	logger.Warn("warn")
	logger.Error("error")

	if logs.Len() != 2 {
		t.Fatalf("expected 2 entries at WARN, got %d", logs.Len())
	}
	entries := logs.All()
	if entries[0].Message != "warn" || entries[1].Message != "error" {
		t.Errorf("unexpected messages: %q, %q", entries[0].Message, entries[1].Message)
	}
}

func TestZapLogger_Fields(t *testing.T) {
	logger, logs := newObserved(DebugLevel)

	logger.Info("commit", Component("storage"), Count(3))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	ctx := entries[0].ContextMap()
	if ctx["component"] != "storage" {
		t.Errorf("component = %v, want storage", ctx["component"])
	}
	if ctx["count"] != int64(3) {
		t.Errorf("count = %v (%T), want 3", ctx["count"], ctx["count"])
	}
}

func TestZapLogger_With(t *testing.T) {
	logger, logs := newObserved(InfoLevel)

	child := logger.With(Component("loader"))
	child.Info("batch loaded")
	logger.Info("parent")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ContextMap()["component"] != "loader" {
		t.Error("child logger lost its preset field")
	}
	if _, ok := entries[1].ContextMap()["component"]; ok {
		t.Error("parent logger should not inherit child fields")
	}
}

func TestZapLogger_SetLevelSharedWithChildren(t *testing.T) {
	logger, logs := newObserved(InfoLevel)
	child := logger.With(Component("cache"))

	child.Debug("hidden")
	logger.SetLevel(DebugLevel)
	child.Debug("visible")

	if logger.GetLevel() != DebugLevel {
		t.Errorf("GetLevel() = %v, want DEBUG", logger.GetLevel())
	}
	if logs.Len() != 1 || logs.All()[0].Message != "visible" {
		t.Errorf("expected only the post-SetLevel entry, got %d entries", logs.Len())
	}
}

func TestTimedOperation(t *testing.T) {
	logger, logs := newObserved(DebugLevel)

	StartTimer(logger, "load", Operation("chain")).End()
	StartTimer(logger, "commit").EndError(errors.New("disk gone"))

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if _, ok := entries[0].ContextMap()["latency"]; !ok {
		t.Error("End should attach latency")
	}
	if entries[1].Level != zapcore.ErrorLevel {
		t.Errorf("EndError level = %v, want error", entries[1].Level)
	}
	if entries[1].ContextMap()["error"] != "disk gone" {
		t.Errorf("EndError error field = %v", entries[1].ContextMap()["error"])
	}
}

func TestNopLogger(t *testing.T) {
	var l Logger = NewNopLogger()
	l.Info("ignored", String("k", "v"))
	if l.With(Component("x")) == nil {
		t.Error("With should return a logger")
	}
	if l.GetLevel() != InfoLevel {
		t.Errorf("NopLogger level = %v", l.GetLevel())
	}
}

func TestDefaultLogger(t *testing.T) {
	prev := DefaultLogger()
	defer SetDefaultLogger(prev)

	SetDefaultLogger(NewNopLogger())
	if _, ok := DefaultLogger().(NopLogger); !ok {
		t.Error("SetDefaultLogger did not replace the default logger")
	}
}
