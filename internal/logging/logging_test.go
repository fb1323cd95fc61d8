package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"

	"github.com/nhle/content-portal/internal/model"
)

func TestNewLevelAndFormat(t *testing.T) {
	logger, err := New(model.LogConfig{Level: "debug", Format: "json"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.GetLevel() != log.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*log.JSONFormatter); !ok {
		t.Errorf("formatter = %T, want JSONFormatter", logger.Formatter)
	}
}

func TestNewFallsBackToInfo(t *testing.T) {
	logger, err := New(model.LogConfig{Level: "chatty"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if logger.GetLevel() != log.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "portal.log")
	logger, err := New(model.LogConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.WithField("component", "test").Info("hello")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if !strings.Contains(string(data), "component=test") {
		t.Errorf("log file missing field: %q", data)
	}
}
