// internal/appconfig/appconfig_test.go
package appconfig

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoad verifies that a configuration file is merged over the defaults and
// that the duration helpers interpret the loaded values.
func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	payload := `{
  "flowiseUrl": "http://flowise.local:3001/",
  "flowiseApiKey": "secret-key-value",
  "emitInterval": 0.5,
  "timeout": 30,
  "debug": true
}`
	if err := os.WriteFile(path, []byte(payload), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() with valid config failed: %v", err)
	}
	if cfg.BaseURL() != "http://flowise.local:3001" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.BaseURL())
	}
	if cfg.RequestTimeout() != 30*time.Second {
		t.Fatalf("expected 30s timeout, got %v", cfg.RequestTimeout())
	}
	if cfg.EmitIntervalDuration() != 500*time.Millisecond {
		t.Fatalf("expected 500ms emit interval, got %v", cfg.EmitIntervalDuration())
	}
	if !cfg.EnableStatusIndicator {
		t.Fatal("expected status indicator to default to true")
	}
	if !cfg.Debug {
		t.Fatal("expected debug from file")
	}
	if cfg.ConfigPath != path {
		t.Fatalf("expected config path %q, got %q", path, cfg.ConfigPath)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
}

// TestLoadErrors covers invalid files and explicit paths that do not exist.
func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()
	invalid := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(invalid, []byte(`{ "flowiseUrl": `), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(invalid); err == nil {
		t.Fatal("Load() with invalid JSON should have failed")
	}
	if _, err := Load(filepath.Join(dir, "nonexistent.json")); err == nil {
		t.Fatal("Load() with nonexistent file should have failed")
	}
}

// TestLoadEnvironment checks the FLOWISE_* variables documented for the plugin.
func TestLoadEnvironment(t *testing.T) {
	t.Setenv("FLOWISE_API_URL", "https://flows.example.com")
	t.Setenv("FLOWISE_API_KEY", "env-key")
	t.Setenv("FLOWPIPE_TIMEOUT", "45")

	dir := t.TempDir()
	oldCwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(oldCwd) })

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if cfg.FlowiseURL != "https://flows.example.com" {
		t.Fatalf("expected url from env, got %q", cfg.FlowiseURL)
	}
	if cfg.FlowiseAPIKey != "env-key" {
		t.Fatalf("expected key from env, got %q", cfg.FlowiseAPIKey)
	}
	if cfg.TimeoutSeconds != 45 {
		t.Fatalf("expected timeout 45 from env, got %d", cfg.TimeoutSeconds)
	}
	if cfg.ConfigPath != "" {
		t.Fatalf("expected no config file, got %q", cfg.ConfigPath)
	}
}

func TestDefaults(t *testing.T) {
	t.Parallel()

	var zero Config
	if zero.RequestTimeout() != 120*time.Second {
		t.Fatalf("expected default request timeout of 120s, got %v", zero.RequestTimeout())
	}
	if zero.ListenAddr() != DefaultListenAddr {
		t.Fatalf("expected default listen addr, got %q", zero.ListenAddr())
	}
	def := Default()
	if def.EmitIntervalDuration() != time.Second {
		t.Fatalf("expected default emit interval of 1s, got %v", def.EmitIntervalDuration())
	}
	if !def.EnableStatusIndicator {
		t.Fatal("expected status indicator enabled by default")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing url", cfg: Config{}, wantErr: true},
		{name: "bad scheme", cfg: Config{FlowiseURL: "ftp://flowise"}, wantErr: true},
		{name: "no host", cfg: Config{FlowiseURL: "http://"}, wantErr: true},
		{name: "negative interval", cfg: Config{FlowiseURL: "http://localhost:3001", EmitInterval: -1}, wantErr: true},
		{name: "valid", cfg: Config{FlowiseURL: "http://localhost:3001"}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestShowConfigMasksSecrets(t *testing.T) {
	t.Parallel()

	cfg := Config{FlowiseURL: "http://localhost:3001", FlowiseAPIKey: "abcd1234efgh5678"}
	var out bytes.Buffer
	ShowConfig(&out, &cfg)

	text := out.String()
	if strings.Contains(text, "abcd1234efgh5678") {
		t.Fatalf("expected API key to be masked, got: %s", text)
	}
	if !strings.Contains(text, "abcd…5678") {
		t.Fatalf("expected masked key, got: %s", text)
	}
	if !strings.Contains(text, "No config file loaded") {
		t.Fatalf("expected defaults notice, got: %s", text)
	}
}
