package config

// Config is the top-level configuration
type Config struct {
	Telegram  TelegramConfig `json:"telegram"`
	Prefixes  []string       `json:"prefixes"`
	AssetsDir string         `json:"assetsDir"`
	Relay     RelayConfig    `json:"relay"`
	GPT       GPTConfig      `json:"gpt"`
	Log       LogConfig      `json:"log"`
}

// TelegramConfig selects and configures the client adapter.
// Mode "user" logs in as a user account (MTProto), "bot" uses the Bot API.
type TelegramConfig struct {
	Mode         string   `json:"mode"`
	APIID        int      `json:"apiId"`
	APIHash      string   `json:"apiHash"`
	Phone        string   `json:"phone"`
	Session      string   `json:"session"`
	BotToken     string   `json:"botToken"`
	AllowedUsers []string `json:"allowedUsers"`
}

// RelayConfig holds credentials for non-Telegram shift targets.
type RelayConfig struct {
	Discord DiscordConfig `json:"discord"`
	Slack   SlackConfig   `json:"slack"`
}

type DiscordConfig struct {
	Token string `json:"token"`
}

type SlackConfig struct {
	BotToken string `json:"botToken"`
}

// GPTConfig holds the defaults for the gpt plugin. Values set with
// ".gpt set" are stored per installation under the assets directory and
// take precedence.
type GPTConfig struct {
	Provider     string  `json:"provider"`
	APIKey       string  `json:"apiKey"`
	BaseURL      string  `json:"baseUrl"`
	Model        string  `json:"model"`
	MaxTokens    int     `json:"maxTokens"`
	Temperature  float64 `json:"temperature"`
	SystemPrompt string  `json:"systemPrompt"`
	HistoryLimit int     `json:"historyLimit"`
}

type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"` // "text" or "json"
}

// DefaultConfig returns a Config with sensible defaults applied.
func DefaultConfig() *Config {
	return &Config{
		Telegram: TelegramConfig{
			Mode:    "user",
			Session: "~/.telebox/session.dat",
		},
		Prefixes:  []string{".", "。"},
		AssetsDir: "~/.telebox/assets",
		GPT: GPTConfig{
			Provider:     "openai",
			Model:        "gpt-4o-mini",
			MaxTokens:    2048,
			Temperature:  0.7,
			HistoryLimit: 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}
