package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewLevels(t *testing.T) {
	logger, err := New("release", "warn")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if logger.Core().Enabled(zapcore.InfoLevel) {
		t.Fatal("info must be disabled at warn level")
	}
	if !logger.Core().Enabled(zapcore.ErrorLevel) {
		t.Fatal("error must be enabled at warn level")
	}

	logger, err = New("debug", "debug")
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if !logger.Core().Enabled(zapcore.DebugLevel) {
		t.Fatal("debug must be enabled")
	}
}

func TestNewInvalidLevel(t *testing.T) {
	if _, err := New("debug", "loud"); err == nil {
		t.Fatal("expected error for invalid level")
	}
}

func TestInstallReplacesGlobals(t *testing.T) {
	logger, restore, err := Install("test", "info")
	if err != nil {
		t.Fatalf("Install returned error: %v", err)
	}
	if zap.L() != logger {
		t.Fatal("expected global logger to be replaced")
	}
	restore()
	if zap.L() == logger {
		t.Fatal("expected global logger to be restored")
	}
}
