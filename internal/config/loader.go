package config

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// DefaultPath returns ~/.telebox/config.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".telebox", "config.json"), nil
}

// Load loads config from the default path (~/.telebox/config.json).
func Load() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return nil, err
	}
	return LoadFromFile(path)
}

// LoadFromFile loads config from a specific file path. A .env file next to
// the config is loaded into the process environment first; variables that
// are already set win.
func LoadFromFile(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load %s: %w", envPath, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer f.Close()
	return LoadFromReader(f)
}

// LoadFromReader loads config from an io.Reader, applying defaults and env overrides.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := DefaultConfig()

	if err := json.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	cfg.AssetsDir = expandHome(cfg.AssetsDir)
	cfg.Telegram.Session = expandHome(cfg.Telegram.Session)
	if len(cfg.Prefixes) == 0 {
		cfg.Prefixes = DefaultConfig().Prefixes
	}

	return cfg, nil
}

// applyEnvOverrides applies TELEBOX_-prefixed environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	envMap := map[string]*string{
		"TELEBOX_TELEGRAM_MODE":       &cfg.Telegram.Mode,
		"TELEBOX_TELEGRAM_APIHASH":    &cfg.Telegram.APIHash,
		"TELEBOX_TELEGRAM_PHONE":      &cfg.Telegram.Phone,
		"TELEBOX_TELEGRAM_SESSION":    &cfg.Telegram.Session,
		"TELEBOX_TELEGRAM_BOTTOKEN":   &cfg.Telegram.BotToken,
		"TELEBOX_ASSETSDIR":           &cfg.AssetsDir,
		"TELEBOX_RELAY_DISCORD_TOKEN": &cfg.Relay.Discord.Token,
		"TELEBOX_RELAY_SLACK_TOKEN":   &cfg.Relay.Slack.BotToken,
		"TELEBOX_GPT_PROVIDER":        &cfg.GPT.Provider,
		"TELEBOX_GPT_APIKEY":          &cfg.GPT.APIKey,
		"TELEBOX_GPT_BASEURL":         &cfg.GPT.BaseURL,
		"TELEBOX_GPT_MODEL":           &cfg.GPT.Model,
		"TELEBOX_LOG_LEVEL":           &cfg.Log.Level,
		"TELEBOX_LOG_FORMAT":          &cfg.Log.Format,
	}

	for env, ptr := range envMap {
		if val := os.Getenv(env); val != "" {
			*ptr = val
		}
	}

	if val := os.Getenv("TELEBOX_TELEGRAM_APIID"); val != "" {
		if id, err := strconv.Atoi(val); err == nil {
			cfg.Telegram.APIID = id
		}
	}
}

// expandHome expands a leading ~ in a path.
func expandHome(p string) string {
	if len(p) >= 2 && p[0] == '~' && p[1] == '/' {
		home, err := os.UserHomeDir()
		if err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// PluginDir returns the assets subdirectory owned by a plugin.
func (c *Config) PluginDir(plugin string) string {
	return filepath.Join(c.AssetsDir, plugin)
}
