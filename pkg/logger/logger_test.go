package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// swapLogger installs a logger for the duration of the test.
func swapLogger(t *testing.T, logger *zap.Logger) {
	t.Helper()
	t.Cleanup(Replace(logger))
}

func TestInitConfiguresGlobalLogger(t *testing.T) {
	t.Cleanup(func() {
		global.Store(zap.NewNop())
	})

	if err := Init("debug"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	logger := Logger()
	if logger == nil {
		t.Fatal("expected Logger to return non-nil logger")
	}
	if !logger.Core().Enabled(zap.DebugLevel) {
		t.Fatal("expected logger to enable debug level")
	}
}

func TestInitUnknownLevelFallsBackToInfo(t *testing.T) {
	t.Cleanup(func() {
		global.Store(zap.NewNop())
	})

	if err := Init("chatty"); err != nil {
		t.Fatalf("Init returned error: %v", err)
	}

	core := Logger().Core()
	if core.Enabled(zap.DebugLevel) {
		t.Fatal("expected debug to be disabled at fallback level")
	}
	if !core.Enabled(zap.InfoLevel) {
		t.Fatal("expected info to be enabled at fallback level")
	}
}

func TestLoggingHelpersEmitEntries(t *testing.T) {
	core, recorded := observer.New(zap.DebugLevel)
	swapLogger(t, zap.New(core))

	Info("info message", zap.String("k", "v"))
	Error("error message")
	Warn("warn message")
	Debug("debug message")

	if recorded.Len() != 4 {
		t.Fatalf("expected 4 log entries, got %d", recorded.Len())
	}

	entries := recorded.All()
	want := []string{"info message", "error message", "warn message", "debug message"}
	for i, entry := range entries {
		if entry.Message != want[i] {
			t.Fatalf("entry %d message = %q, want %q", i, entry.Message, want[i])
		}
	}
	if field := entries[0].ContextMap()["k"]; field != "v" {
		t.Fatalf("expected field \"k\" to equal \"v\", got %v", field)
	}
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zap.InfoLevel)
	swapLogger(t, zap.New(core))

	WithModule("api").Info("module test")

	entries := recorded.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if module := entries[0].ContextMap()["module"]; module != "api" {
		t.Fatalf("expected module field to be \"api\", got %v", module)
	}
}
