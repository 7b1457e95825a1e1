package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg == nil {
		t.Fatal("Config should not be nil")
	}

	if cfg.Port != 8318 {
		t.Errorf("Expected default port 8318, got %d", cfg.Port)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level 'info', got %s", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("Expected default log format 'json', got %s", cfg.LogFormat)
	}
	if cfg.VectorBackend != "local" {
		t.Errorf("Expected default vector backend 'local', got %s", cfg.VectorBackend)
	}
	if cfg.MemoryDedupThreshold != 0.9 {
		t.Errorf("Expected default dedup threshold 0.9, got %v", cfg.MemoryDedupThreshold)
	}
	if cfg.HotnessAlpha != 0.2 {
		t.Errorf("Expected default hotness alpha 0.2, got %v", cfg.HotnessAlpha)
	}
	if cfg.TraceMaxEvents != 500 {
		t.Errorf("Expected default trace budget 500, got %d", cfg.TraceMaxEvents)
	}
	if cfg.RootAPIKey != "" {
		t.Errorf("Expected admin disabled by default, got root key %q", cfg.RootAPIKey)
	}
	if cfg.RecorderEnabled {
		t.Error("Expected recorder disabled by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	os.Clearenv()
	t.Setenv("OPENVIKING_PORT", "9999")
	t.Setenv("OPENVIKING_ROOT_API_KEY", "root-secret")
	t.Setenv("OPENVIKING_VECTOR_BACKEND", "http")
	t.Setenv("OPENVIKING_AGFS_URL", "sqlite://./agfs.db")
	t.Setenv("OPENVIKING_ALLOWED_ORIGINS", "https://a.example , https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != 9999 {
		t.Errorf("Expected port 9999, got %d", cfg.Port)
	}
	if cfg.RootAPIKey != "root-secret" {
		t.Errorf("Expected root key from env, got %q", cfg.RootAPIKey)
	}
	if cfg.VectorBackend != "http" {
		t.Errorf("Expected vector backend http, got %q", cfg.VectorBackend)
	}
	if cfg.AGFSURL != "sqlite://./agfs.db" {
		t.Errorf("Expected AGFS URL from env, got %q", cfg.AGFSURL)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Errorf("Expected comma-separated origins split and trimmed, got %v", cfg.AllowedOrigins)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	os.Clearenv()

	fileCfg := map[string]interface{}{
		"port":                   7777,
		"vector_backend":         "vikingdb",
		"vector_url":             "http://vikingdb:8500",
		"memory_dedup_threshold": 0.85,
	}
	data, err := yaml.Marshal(fileCfg)
	if err != nil {
		t.Fatalf("marshaling config file: %v", err)
	}
	path := filepath.Join(t.TempDir(), "ov.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	t.Setenv("OPENVIKING_CONFIG_FILE", path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Port != 7777 {
		t.Errorf("Expected port from file, got %d", cfg.Port)
	}
	if cfg.VectorBackend != "vikingdb" {
		t.Errorf("Expected vector backend from file, got %q", cfg.VectorBackend)
	}
	if cfg.MemoryDedupThreshold != 0.85 {
		t.Errorf("Expected dedup threshold from file, got %v", cfg.MemoryDedupThreshold)
	}
}

func TestLoad_MissingConfigFileErrors(t *testing.T) {
	os.Clearenv()
	t.Setenv("OPENVIKING_CONFIG_FILE", "/nonexistent/ov.yaml")

	if _, err := Load(); err == nil {
		t.Fatal("Expected error for missing explicit config file")
	}
}

func TestLoad_ValidatesRanges(t *testing.T) {
	os.Clearenv()
	t.Setenv("OPENVIKING_MEMORY_DEDUP_THRESHOLD", "1.5")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for out-of-range dedup threshold")
	}

	os.Clearenv()
	t.Setenv("OPENVIKING_HOTNESS_ALPHA", "-0.1")
	if _, err := Load(); err == nil {
		t.Fatal("Expected error for out-of-range hotness alpha")
	}
}
