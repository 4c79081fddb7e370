// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML loading, env var expansion and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  http_addr: "0.0.0.0:8000"

database:
  path: "./chatloom.db"

uploads:
  dir: "/tmp/chatloom_uploads"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8000" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8000")
	}
	if cfg.Database.Path != "./chatloom.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./chatloom.db")
	}
	if cfg.Uploads.Dir != "/tmp/chatloom_uploads" {
		t.Errorf("Uploads.Dir = %q, want %q", cfg.Uploads.Dir, "/tmp/chatloom_uploads")
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want %q", cfg.Logging.Format, "json")
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("TEST_CHATLOOM_DB", "/data/expanded.db")

	path := writeConfig(t, `
server:
  http_addr: "127.0.0.1:8000"

database:
  path: "${TEST_CHATLOOM_DB}"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/data/expanded.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/data/expanded.db")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("Load() expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [not: valid")
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected error for invalid YAML")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name: "valid",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: "127.0.0.1:8000"},
				Database: DatabaseConfig{Path: "./test.db"},
			},
		},
		{
			name:    "missing http_addr",
			cfg:     Config{Database: DatabaseConfig{Path: "./test.db"}},
			wantErr: "server.http_addr",
		},
		{
			name:    "missing database path",
			cfg:     Config{Server: ServerConfig{HTTPAddr: "127.0.0.1:8000"}},
			wantErr: "database.path",
		},
		{
			name: "bad logging format",
			cfg: Config{
				Server:   ServerConfig{HTTPAddr: "127.0.0.1:8000"},
				Database: DatabaseConfig{Path: "./test.db"},
				Logging:  LoggingConfig{Format: "xml"},
			},
			wantErr: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
