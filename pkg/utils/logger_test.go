package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewLogger(t *testing.T) {
	t.Run("debug mode returns development logger", func(t *testing.T) {
		logger, err := NewLogger(true)
		if err != nil {
			t.Fatalf("NewLogger(true) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(true) returned nil logger")
		}
		_ = logger.Sync()
	})

	t.Run("production mode returns production logger", func(t *testing.T) {
		logger, err := NewLogger(false)
		if err != nil {
			t.Fatalf("NewLogger(false) error: %v", err)
		}
		if logger == nil {
			t.Fatal("NewLogger(false) returned nil logger")
		}
		_ = logger.Sync()
	})
}

func TestNewFileLogger(t *testing.T) {
	t.Run("empty path is a no-op logger", func(t *testing.T) {
		logger, err := NewFileLogger("", true)
		if err != nil {
			t.Fatalf("NewFileLogger error: %v", err)
		}
		logger.Info("dropped")
	})

	t.Run("writes to the file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ui.log")
		logger, err := NewFileLogger(path, false)
		if err != nil {
			t.Fatalf("NewFileLogger error: %v", err)
		}
		logger.Info("analysis finished")
		_ = logger.Sync()
		data, err := os.ReadFile(path)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(data), "analysis finished") {
			t.Errorf("log file = %q", data)
		}
	})

	t.Run("debug level only in debug mode", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ui.log")
		logger, err := NewFileLogger(path, false)
		if err != nil {
			t.Fatal(err)
		}
		logger.Debug("hidden")
		_ = logger.Sync()
		data, _ := os.ReadFile(path)
		if strings.Contains(string(data), "hidden") {
			t.Errorf("debug entry written at info level: %q", data)
		}
	})
}
