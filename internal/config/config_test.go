package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func load(t *testing.T, args ...string) *Config {
	t.Helper()
	f := Flags()
	if err := f.Parse(append([]string{"--env", ""}, args...)); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(f)
	if err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := load(t)
	if cfg.Platform != PlatformLocal || cfg.Assistant != "gemini" || cfg.Lang != "en-US" {
		t.Fatalf("defaults = %+v", cfg)
	}
	if cfg.QuotaCooldown != 10*time.Second || cfg.Volume != 1 || cfg.Rate != 1 {
		t.Fatalf("defaults = %+v", cfg)
	}
}

func TestPrecedence(t *testing.T) {
	t.Setenv("ODIN_PLATFORM", "bridge")
	t.Setenv("ODIN_BRIDGE_URL", "ws://env:1/odin")
	t.Setenv("GEMINI_API_KEY", "from-env")

	cfg := load(t, "--bridge-url", "ws://flag:2/odin")
	if cfg.Platform != PlatformBridge {
		t.Errorf("platform = %q, env should override default", cfg.Platform)
	}
	if cfg.BridgeURL != "ws://flag:2/odin" {
		t.Errorf("bridge url = %q, flag should override env", cfg.BridgeURL)
	}
	if cfg.GeminiAPIKey != "from-env" {
		t.Errorf("gemini key = %q", cfg.GeminiAPIKey)
	}
}

func TestConfigFileAndDotenv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "odin.yaml")
	if err := os.WriteFile(file, []byte("assistant: openai\nquota_cooldown: 30s\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	env := filepath.Join(dir, ".env")
	if err := os.WriteFile(env, []byte("OPENAI_API_KEY=sk-test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("OPENAI_API_KEY") })

	cfg := load(t, "--config", file, "--env", env)
	if cfg.Assistant != "openai" || cfg.QuotaCooldown != 30*time.Second {
		t.Fatalf("config file not applied: %+v", cfg)
	}
	if cfg.OpenAIAPIKey != "sk-test" {
		t.Fatalf("openai key = %q", cfg.OpenAIAPIKey)
	}
}

func TestValidate(t *testing.T) {
	for _, args := range [][]string{
		{"--platform", "carrier-pigeon"},
		{"--assistant", "oracle"},
		{"--platform", "replay"},
	} {
		f := Flags()
		if err := f.Parse(append([]string{"--env", ""}, args...)); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(f); err == nil {
			t.Errorf("Load(%v) succeeded, want error", args)
		}
	}
}
