package main

import (
	"testing"
	"time"

	"taskboard/backend/internal/config"
)

func TestNewHTTPServer_NoWriteDeadlineForStreams(t *testing.T) {
	cfg := &config.Config{
		Server: config.ServerConfig{
			Host:        "127.0.0.1",
			Port:        9090,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: time.Minute,
		},
	}

	srv := newHTTPServer(cfg, nil)

	if srv.WriteTimeout != 0 {
		t.Errorf("Expected no write timeout so event streams stay open, got %s", srv.WriteTimeout)
	}
	if srv.ReadTimeout != 15*time.Second {
		t.Errorf("Expected read timeout 15s, got %s", srv.ReadTimeout)
	}
	if srv.IdleTimeout != time.Minute {
		t.Errorf("Expected idle timeout 1m, got %s", srv.IdleTimeout)
	}
	if srv.Addr != "127.0.0.1:9090" {
		t.Errorf("Expected addr 127.0.0.1:9090, got %s", srv.Addr)
	}
}
