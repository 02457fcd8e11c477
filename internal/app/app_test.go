package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"maskid/internal/domain"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"MASKID_HOME", "MASKID_STORE", "MASKID_REDIS_URL", "MASKID_AVATAR_TTL", "MASKID_LOG_LEVEL", "MASKID_LOG_FORMAT"} {
		t.Setenv(k, "")
		_ = os.Unsetenv(k)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	cfg, err := LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Home != home || cfg.Store != StoreSQLite || cfg.AvatarTTL != 24*time.Hour || cfg.LogLevel != "info" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadConfig_Layers(t *testing.T) {
	clearEnv(t)
	home := t.TempDir()
	yaml := "store: file\nlog_level: debug\navatar_ttl: 1h\n"
	if err := os.WriteFile(filepath.Join(home, "config.yaml"), []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(home, ".env"), []byte("MASKID_LOG_FORMAT=json\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("MASKID_LOG_LEVEL", "warn")

	cfg, err := LoadConfig(home)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Store != StoreFile {
		t.Fatalf("Store = %q, want file from config.yaml", cfg.Store)
	}
	if cfg.AvatarTTL != time.Hour {
		t.Fatalf("AvatarTTL = %v, want 1h from config.yaml", cfg.AvatarTTL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, environment must win over config.yaml", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Fatalf("LogFormat = %q, want json from .env", cfg.LogFormat)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		mut  func(*Config)
		want string
	}{
		{"store", func(c *Config) { c.Store = "postgres" }, "unknown store"},
		{"level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
		{"format", func(c *Config) { c.LogFormat = "xml" }, "unknown log format"},
		{"home", func(c *Config) { c.Home = "" }, "home directory"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mut(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want %q", err, tc.want)
			}
		})
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.LogFormat = "json"
	cfg.LogLevel = "warn"
	logger, err := NewLogger(&buf, cfg)
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("shown", "k", "v")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, `"msg":"shown"`) {
		t.Fatalf("unexpected log output: %q", out)
	}
}

func TestNewWire_Stores(t *testing.T) {
	for _, backend := range []string{StoreMemory, StoreFile, StoreSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Home = t.TempDir()
			cfg.Store = backend
			w, err := NewWire(context.Background(), cfg, nil)
			if err != nil {
				t.Fatalf("NewWire: %v", err)
			}
			defer func() { _ = w.Close() }()

			ctx := context.Background()
			id, err := w.Personas.CreatePersonaByMnemonic(ctx, "alice", "")
			if err != nil {
				t.Fatalf("CreatePersonaByMnemonic: %v", err)
			}
			prof := domain.NewProfileIdentifier("net", "alice")
			if err := w.Personas.SetProfileAvatar(ctx, prof, "data:image/png;base64,AA"); err != nil {
				t.Fatalf("SetProfileAvatar: %v", err)
			}
			p, err := w.Personas.QueryPersona(ctx, id)
			if err != nil || p.Nickname != "alice" {
				t.Fatalf("QueryPersona = %+v, %v", p, err)
			}
		})
	}
}
