package repositories

import (
	"testing"
	"time"
)

func TestDefaultMigrationConfig(t *testing.T) {
	cfg := DefaultMigrationConfig()

	if cfg.SourceURL != "file://migrations" {
		t.Errorf("Expected the bundled migrations directory, got %q", cfg.SourceURL)
	}
	if cfg.DBName != "taskboard" {
		t.Errorf("Expected taskboard as the default store name, got %q", cfg.DBName)
	}
	if cfg.ReadyWait != 10*time.Second {
		t.Errorf("Expected a 10s readiness window, got %s", cfg.ReadyWait)
	}
}
