package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

var configEnv = []string{
	"ZERODHA_API_KEY", "ZERODHA_API_SECRET", "SERVER_MODE", "KITE_PROXY_URL",
	"LLM_PROVIDER", "LLM_MODEL", "RESEARCH_PROVIDER", "BRAVE_API_KEY", "PORT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnv {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Server.Port != 5000 || c.Server.Host != "127.0.0.1" {
		t.Errorf("Expected 127.0.0.1:5000, got %s", c.Addr())
	}
	if c.Server.ShutdownDelay != 3*time.Second {
		t.Errorf("Expected 3s shutdown delay, got %v", c.Server.ShutdownDelay)
	}
	if c.LLM.Provider != "RULES" || c.LLM.MaxSteps != 8 {
		t.Errorf("Unexpected LLM defaults %+v", c.LLM)
	}
	if c.Research.Provider != "news" || c.Research.CacheTTL != 15*time.Minute {
		t.Errorf("Unexpected research defaults %+v", c.Research)
	}
	if c.RunOnce() {
		t.Error("Expected development mode by default")
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearEnv(t)
	c, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Expected defaults for missing file, got %v", err)
	}
	if c.Client.BaseURL != "http://127.0.0.1:5000" {
		t.Errorf("Expected default proxy URL, got %s", c.Client.BaseURL)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
server:
  port: 6000
  mode: production
broker:
  api_key: file-key
llm:
  provider: claude
`)
	t.Setenv("ZERODHA_API_KEY", "env-key")
	t.Setenv("LLM_PROVIDER", "openai")
	t.Setenv("PORT", "7000")

	c, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if c.Broker.APIKey != "env-key" {
		t.Errorf("Expected env-key, got %s", c.Broker.APIKey)
	}
	if c.LLM.Provider != "OPENAI" {
		t.Errorf("Expected OPENAI, got %s", c.LLM.Provider)
	}
	if c.Server.Port != 7000 || c.Server.Mode != ModeProduction {
		t.Errorf("Expected port 7000 production, got %d %s", c.Server.Port, c.Server.Mode)
	}
	if c.Client.BaseURL != "http://127.0.0.1:7000" {
		t.Errorf("Expected proxy URL to follow PORT, got %s", c.Client.BaseURL)
	}
}

func TestInvalidConfig(t *testing.T) {
	clearEnv(t)
	cases := map[string]string{
		"mode":     "server:\n  mode: forever\n",
		"provider": "llm:\n  provider: GEMINI\n",
		"yaml":     "server: [\n",
		"brave":    "research:\n  provider: brave\n",
	}
	for name, body := range cases {
		if _, err := LoadConfig(writeConfig(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}

	t.Setenv("PORT", "abc")
	if _, err := LoadConfig(""); err == nil {
		t.Error("Expected error for invalid PORT")
	}
}

func TestRequireBroker(t *testing.T) {
	c := Default()
	if err := c.RequireBroker(); err == nil || !strings.Contains(err.Error(), "ZERODHA_API_KEY") {
		t.Errorf("Expected missing key error, got %v", err)
	}
	c.Broker.APIKey = "key"
	if err := c.RequireBroker(); err == nil || !strings.Contains(err.Error(), "ZERODHA_API_SECRET") {
		t.Errorf("Expected missing secret error, got %v", err)
	}
	c.Broker.APISecret = "secret"
	if err := c.RequireBroker(); err != nil {
		t.Errorf("Expected complete credentials, got %v", err)
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	c := Default()
	c.Broker.APIKey = "kitekey123"
	c.Broker.APISecret = "supersecretvalue"
	out := c.String()
	if strings.Contains(out, "supersecretvalue") || strings.Contains(out, "kitekey123") {
		t.Errorf("Expected secrets redacted, got %s", out)
	}
	if !strings.Contains(out, "***REDACTED***") || !strings.Contains(out, "BraveAPIKey: <unset>") {
		t.Errorf("Expected redaction markers, got %s", out)
	}
	if !strings.Contains(out, "Port: 5000") {
		t.Errorf("Expected plain fields kept, got %s", out)
	}
}
