package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  host: "0.0.0.0"
  port: 9090
  path_prefix: "/ui"

database:
  path: "/data/test.db"

robot:
  base_url: "http://turtle.local:8090"
  timeout: 3s
  retries: 5
  rate_limit: 2.5

session:
  mode: developer
  client_type: linux
  cache_ttl: 30s

platform:
  driver: docker
  env:
    - "ROS_MASTER_URI=http://turtle.local:11311"

logging:
  level: debug
  development: true

log_buffer: 50
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr() != "0.0.0.0:9090" {
		t.Errorf("expected addr 0.0.0.0:9090, got %s", cfg.Server.Addr())
	}
	if cfg.Server.PathPrefix != "/ui" {
		t.Errorf("expected path prefix /ui, got %s", cfg.Server.PathPrefix)
	}
	if cfg.Database.Path != "/data/test.db" {
		t.Errorf("expected db path /data/test.db, got %s", cfg.Database.Path)
	}
	if cfg.Robot.BaseURL != "http://turtle.local:8090" {
		t.Errorf("unexpected base url %s", cfg.Robot.BaseURL)
	}
	if cfg.Robot.Timeout != 3*time.Second {
		t.Errorf("expected timeout 3s, got %v", cfg.Robot.Timeout)
	}
	if cfg.Robot.Retries != 5 || cfg.Robot.RateLimit != 2.5 {
		t.Errorf("unexpected retry settings %+v", cfg.Robot)
	}
	if cfg.Session.Mode != "developer" || cfg.Session.ClientType != "linux" {
		t.Errorf("unexpected session %+v", cfg.Session)
	}
	if cfg.Session.CacheTTL != 30*time.Second {
		t.Errorf("expected cache ttl 30s, got %v", cfg.Session.CacheTTL)
	}
	if cfg.Platform.Driver != "docker" || len(cfg.Platform.Env) != 1 {
		t.Errorf("unexpected platform %+v", cfg.Platform)
	}
	if cfg.Logging.Level != "debug" || !cfg.Logging.Development {
		t.Errorf("unexpected logging %+v", cfg.Logging)
	}
	if cfg.LogBuffer != 50 {
		t.Errorf("expected log buffer 50, got %d", cfg.LogBuffer)
	}
	// unset values fall back to defaults
	if cfg.Robot.RetryWaitMax != 2*time.Second {
		t.Errorf("expected default retry wait max, got %v", cfg.Robot.RetryWaitMax)
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Addr() != "127.0.0.1:8080" {
		t.Errorf("unexpected default addr %s", cfg.Server.Addr())
	}
	if cfg.Server.PathPrefix != "/chooser" {
		t.Errorf("unexpected default path prefix %s", cfg.Server.PathPrefix)
	}
	if cfg.Session.Mode != "registered" {
		t.Errorf("expected registered mode, got %s", cfg.Session.Mode)
	}
	if cfg.Session.ClientType != "android" {
		t.Errorf("expected android client type, got %s", cfg.Session.ClientType)
	}
	if cfg.Session.CacheTTL != 0 {
		t.Errorf("expected zero cache ttl, got %v", cfg.Session.CacheTTL)
	}
	if cfg.Platform.Driver != "exec" {
		t.Errorf("expected exec driver, got %s", cfg.Platform.Driver)
	}
	if cfg.LogBuffer != 500 {
		t.Errorf("expected log buffer 500, got %d", cfg.LogBuffer)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
robot:
  base_url: "http://from-file:8090"
session:
  mode: registered
`)
	t.Setenv("APPCHOOSER_ROBOT_BASE_URL", "http://from-env:8090")
	t.Setenv("APPCHOOSER_SESSION_MODE", "developer")
	t.Setenv("APPCHOOSER_SERVER_PORT", "7070")
	t.Setenv("APPCHOOSER_ROBOT_TIMEOUT", "1500ms")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Robot.BaseURL != "http://from-env:8090" {
		t.Errorf("expected env base url, got %s", cfg.Robot.BaseURL)
	}
	if cfg.Session.Mode != "developer" {
		t.Errorf("expected developer mode, got %s", cfg.Session.Mode)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.Port)
	}
	if cfg.Robot.Timeout != 1500*time.Millisecond {
		t.Errorf("expected 1.5s timeout, got %v", cfg.Robot.Timeout)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad mode", "session:\n  mode: kiosk\n"},
		{"bad driver", "platform:\n  driver: snap\n"},
		{"bad yaml", "server: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(writeConfig(t, tt.content)); err == nil {
				t.Error("expected error")
			}
		})
	}

	if _, err := Load("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}
