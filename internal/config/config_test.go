package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Defra.ContainerName != "folio-defra" {
		t.Errorf("expected folio-defra container, got %s", cfg.Defra.ContainerName)
	}
	if cfg.Annotate.CacheSize <= 0 {
		t.Error("expected positive default cache size")
	}
	if cfg.DefraURL() != "http://localhost:9181" {
		t.Errorf("unexpected defra URL %s", cfg.DefraURL())
	}
}

func TestResolveEnvVars(t *testing.T) {
	t.Run("resolves environment variable", func(t *testing.T) {
		t.Setenv("TEST_FOLIO_VALUE", "secret123")

		result := ResolveEnvVars("${TEST_FOLIO_VALUE}")
		if result != "secret123" {
			t.Errorf("expected secret123, got %s", result)
		}
	})

	t.Run("returns empty for missing env var", func(t *testing.T) {
		result := ResolveEnvVars("${DEFINITELY_NOT_SET_12345}")
		if result != "" {
			t.Errorf("expected empty string, got %s", result)
		}
	})

	t.Run("leaves literal values unchanged", func(t *testing.T) {
		result := ResolveEnvVars("literal-value")
		if result != "literal-value" {
			t.Errorf("expected literal-value, got %s", result)
		}
	})
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return configFile
}

func TestNewManager(t *testing.T) {
	t.Run("loads from config file", func(t *testing.T) {
		configFile := writeConfig(t, `
server:
  port: "9090"
annotate:
  cache_size: 16
`)

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}

		cfg := mgr.Get()
		if cfg.Server.Port != "9090" {
			t.Errorf("expected port 9090, got %s", cfg.Server.Port)
		}
		if cfg.Annotate.CacheSize != 16 {
			t.Errorf("expected cache size 16, got %d", cfg.Annotate.CacheSize)
		}
		// Unset keys fall back to defaults
		if cfg.Logging.Format != "text" {
			t.Errorf("expected default text format, got %s", cfg.Logging.Format)
		}
		if mgr.ConfigFile() != configFile {
			t.Errorf("expected config file %s, got %s", configFile, mgr.ConfigFile())
		}
	})

	t.Run("environment overrides file", func(t *testing.T) {
		configFile := writeConfig(t, `
logging:
  level: info
`)
		t.Setenv("FOLIO_LOGGING_LEVEL", "debug")

		mgr, err := NewManager(configFile)
		if err != nil {
			t.Fatalf("failed to create manager: %v", err)
		}
		if got := mgr.Get().Logging.Level; got != "debug" {
			t.Errorf("expected debug from env, got %s", got)
		}
	})

	t.Run("malformed file is an error", func(t *testing.T) {
		configFile := writeConfig(t, "server: [unclosed")
		if _, err := NewManager(configFile); err == nil {
			t.Error("expected error for malformed config")
		}
	})
}

func TestManager_OnChange_Multiple(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"1\"\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var calls atomic.Int32
	mgr.OnChange(func(cfg *Config) { calls.Add(1) })
	mgr.OnChange(func(cfg *Config) { calls.Add(1) })
	mgr.OnChange(func(cfg *Config) { calls.Add(1) })

	mgr.reload()

	if calls.Load() != 3 {
		t.Errorf("expected 3 callback calls, got %d", calls.Load())
	}
}

func TestManager_Get_ThreadSafe(t *testing.T) {
	mgr, err := NewManager(writeConfig(t, "server:\n  port: \"1\"\n"))
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	done := make(chan struct{})
	for i := 0; i < 10; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				cfg := mgr.Get()
				_ = cfg.Server.Port
			}
			done <- struct{}{}
		}()
	}
	go func() {
		for j := 0; j < 20; j++ {
			mgr.reload()
		}
		done <- struct{}{}
	}()

	for i := 0; i < 11; i++ {
		<-done
	}
}

func TestManager_WatchConfig(t *testing.T) {
	configFile := writeConfig(t, `
logging:
  level: info
`)

	mgr, err := NewManager(configFile)
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var callbackCount atomic.Int32
	var lastValue atomic.Value

	mgr.OnChange(func(cfg *Config) {
		callbackCount.Add(1)
		lastValue.Store(cfg.Logging.Level)
	})

	mgr.WatchConfig()

	// Give fsnotify time to set up the watcher
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(configFile, []byte("logging:\n  level: debug\n"), 0644); err != nil {
		t.Fatalf("failed to write updated config file: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if callbackCount.Load() > 0 {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	if callbackCount.Load() == 0 {
		t.Fatal("callback was not invoked after config file change")
	}
	if got := mgr.Get().Logging.Level; got != "debug" {
		t.Errorf("config not updated: expected debug, got %s", got)
	}
	if v := lastValue.Load(); v != "debug" {
		t.Errorf("callback received wrong value: expected debug, got %v", v)
	}
}

func TestWriteDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := WriteDefault(path); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}

	mgr, err := NewManager(path)
	if err != nil {
		t.Fatalf("failed to load written default: %v", err)
	}
	cfg := mgr.Get()
	def := DefaultConfig()
	if cfg.Defra.Image != def.Defra.Image {
		t.Errorf("expected image %s, got %s", def.Defra.Image, cfg.Defra.Image)
	}
	if cfg.Annotate.QueueSize != def.Annotate.QueueSize {
		t.Errorf("expected queue size %d, got %d", def.Annotate.QueueSize, cfg.Annotate.QueueSize)
	}

	data, _ := os.ReadFile(path)
	if !strings.HasPrefix(string(data), "# Folio configuration") {
		t.Error("expected header comment")
	}
}

func TestNewLogger(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	t.Run("json format", func(t *testing.T) {
		var buf bytes.Buffer
		logger, _ := newLogger(&buf, LoggingConfig{Level: "info", Format: "JSON"})
		logger.Info("hello", "k", "v")
		if !strings.HasPrefix(strings.TrimSpace(buf.String()), "{") {
			t.Errorf("expected JSON output, got %q", buf.String())
		}
	})

	t.Run("level can change in place", func(t *testing.T) {
		var buf bytes.Buffer
		logger, level := newLogger(&buf, LoggingConfig{Level: "warn", Format: "text"})
		logger.Info("hidden")
		if buf.Len() != 0 {
			t.Fatalf("info should be filtered at warn level, got %q", buf.String())
		}
		level.Set(slog.LevelDebug)
		logger.Debug("shown")
		if !strings.Contains(buf.String(), "shown") {
			t.Errorf("expected debug output after level change, got %q", buf.String())
		}
	})
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" WARN ":  slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"verbose": slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
