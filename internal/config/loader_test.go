package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadFromFileValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	content := `{"telegram": {"mode": "bot", "botToken": "123:abc"}, "prefixes": ["!"]}`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.Telegram.Mode != "bot" {
		t.Errorf("expected mode %q, got %q", "bot", cfg.Telegram.Mode)
	}
	if len(cfg.Prefixes) != 1 || cfg.Prefixes[0] != "!" {
		t.Errorf("expected prefixes [!], got %v", cfg.Prefixes)
	}
}

func TestLoadFromFileInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	_, err := LoadFromFile(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoadFromFileReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(`{}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("TELEBOX_GPT_MODEL=from-dotenv\n"), 0644); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.Unsetenv("TELEBOX_GPT_MODEL") })

	cfg, err := LoadFromFile(filepath.Join(dir, "config.json"))
	if err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}
	if cfg.GPT.Model != "from-dotenv" {
		t.Errorf("expected model from .env, got %q", cfg.GPT.Model)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("TELEBOX_TELEGRAM_APIID", "12345")
	t.Setenv("TELEBOX_TELEGRAM_APIHASH", "hash")
	t.Setenv("TELEBOX_GPT_APIKEY", "sk-env")
	t.Setenv("TELEBOX_ASSETSDIR", "/tmp/env-assets")

	cfg, err := LoadFromReader(strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}

	checks := []struct {
		name string
		got  any
		want any
	}{
		{"apiId", cfg.Telegram.APIID, 12345},
		{"apiHash", cfg.Telegram.APIHash, "hash"},
		{"gptKey", cfg.GPT.APIKey, "sk-env"},
		{"assets", cfg.AssetsDir, "/tmp/env-assets"},
	}
	for _, c := range checks {
		t.Run(c.name, func(t *testing.T) {
			if c.got != c.want {
				t.Errorf("expected %v, got %v", c.want, c.got)
			}
		})
	}
}

func TestTildeExpansion(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("cannot determine home dir")
	}

	cfg, err := LoadFromReader(strings.NewReader(`{"assetsDir": "~/box"}`))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if want := filepath.Join(home, "box"); cfg.AssetsDir != want {
		t.Errorf("expected expanded assets dir %q, got %q", want, cfg.AssetsDir)
	}
	if cfg.PluginDir("acron") != filepath.Join(home, "box", "acron") {
		t.Errorf("unexpected plugin dir %q", cfg.PluginDir("acron"))
	}
}

func TestEmptyPrefixesFallBackToDefault(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(`{"prefixes": []}`))
	if err != nil {
		t.Fatalf("LoadFromReader failed: %v", err)
	}
	if len(cfg.Prefixes) != 2 || cfg.Prefixes[0] != "." {
		t.Errorf("expected default prefixes, got %v", cfg.Prefixes)
	}
}

func TestDefaultConfigValues(t *testing.T) {
	cfg := DefaultConfig()

	tests := []struct {
		name string
		got  interface{}
		want interface{}
	}{
		{"mode", cfg.Telegram.Mode, "user"},
		{"assets", cfg.AssetsDir, "~/.telebox/assets"},
		{"provider", cfg.GPT.Provider, "openai"},
		{"historyLimit", cfg.GPT.HistoryLimit, 20},
		{"logFormat", cfg.Log.Format, "text"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.got != tc.want {
				t.Errorf("expected %v, got %v", tc.want, tc.got)
			}
		})
	}
}
