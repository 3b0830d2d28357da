package plugins

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/coopco/telebox/internal/jsonfile"
	"github.com/coopco/telebox/internal/providers"
	"github.com/coopco/telebox/internal/session"
	"github.com/coopco/telebox/internal/telegram"
)

// gptSettings are the values changed with ".gpt set". Empty fields fall
// back to the gpt section of the main config.
type gptSettings struct {
	Provider     string `json:"provider,omitempty"`
	APIKey       string `json:"apiKey,omitempty"`
	BaseURL      string `json:"baseUrl,omitempty"`
	Model        string `json:"model,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// gptCache holds the stored settings and the provider built from them.
type gptCache struct {
	path string

	mu       sync.Mutex
	loaded   bool
	settings gptSettings
	provider providers.Provider
}

func (c *gptCache) get() (gptSettings, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.loaded {
		if _, err := jsonfile.Load(c.path, &c.settings); err != nil {
			return gptSettings{}, err
		}
		c.loaded = true
	}
	return c.settings, nil
}

func (c *gptCache) update(fn func(*gptSettings)) error {
	s, err := c.get()
	if err != nil {
		return err
	}
	fn(&s)
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := jsonfile.Save(c.path, s); err != nil {
		return err
	}
	c.settings = s
	c.provider = nil
	return nil
}

// GPT chats with an LLM, keeping a history per chat.
type GPT struct {
	deps        *Deps
	cache       *gptCache
	sessions    *session.Store
	newProvider func(providers.Settings) (providers.Provider, error)
}

func NewGPT(d *Deps) *GPT {
	dir := d.PluginDir("gpt")
	return &GPT{
		deps:        d,
		cache:       &gptCache{path: filepath.Join(dir, "config.json")},
		sessions:    session.NewStore(filepath.Join(dir, "sessions")),
		newProvider: providers.New,
	}
}

func (g *GPT) Name() string        { return "gpt" }
func (g *GPT) Description() string { return "与 OpenAI 兼容或 Anthropic 模型对话" }

func (g *GPT) Commands() []Command {
	return []Command{{
		Name:    "gpt",
		Summary: "AI 对话",
		Usage: []string{
			"gpt <问题>",
			"gpt clear",
			"gpt set key|model|provider|baseurl|system <值>",
			"gpt info",
		},
		Handler: g.handle,
	}}
}

// effective merges stored settings over the config defaults.
func (g *GPT) effective() (providers.Settings, string, error) {
	s, err := g.cache.get()
	if err != nil {
		return providers.Settings{}, "", err
	}
	def := g.deps.Config.GPT
	pick := func(v, fallback string) string {
		if v != "" {
			return v
		}
		return fallback
	}
	return providers.Settings{
		Provider: pick(s.Provider, def.Provider),
		APIKey:   pick(s.APIKey, def.APIKey),
		BaseURL:  pick(s.BaseURL, def.BaseURL),
		Model:    pick(s.Model, def.Model),
	}, pick(s.SystemPrompt, def.SystemPrompt), nil
}

func (g *GPT) provider() (providers.Provider, providers.Settings, string, error) {
	set, system, err := g.effective()
	if err != nil {
		return nil, set, "", err
	}
	g.cache.mu.Lock()
	defer g.cache.mu.Unlock()
	if g.cache.provider == nil {
		p, err := g.newProvider(set)
		if err != nil {
			return nil, set, "", fmt.Errorf("gpt 未配置: %w", err)
		}
		g.cache.provider = p
	}
	return g.cache.provider, set, system, nil
}

func (g *GPT) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "clear":
		if err := g.sessions.Clear(c.Msg.ChatID); err != nil {
			return err
		}
		return c.Edit(ctx, "✅ 已清除本聊天的对话记录")
	case "set":
		return g.set(ctx, c)
	case "info":
		return g.info(ctx, c)
	case "help":
		return errUsage
	}
	return g.ask(ctx, c)
}

func (g *GPT) set(ctx context.Context, c *Context) error {
	key := strings.ToLower(c.Arg(1))
	value := c.Rest(2)
	if key == "" || value == "" {
		return usagef("需要 <key|model|provider|baseurl|system> <值>")
	}
	var apply func(*gptSettings)
	switch key {
	case "key", "apikey":
		apply = func(s *gptSettings) { s.APIKey = value }
	case "model":
		apply = func(s *gptSettings) { s.Model = value }
	case "provider":
		if providers.FindByName(value) == nil {
			return usagef("未知的 provider: %s (可选: %s)", value, strings.Join(providers.Names(), ", "))
		}
		apply = func(s *gptSettings) { s.Provider = strings.ToLower(value) }
	case "baseurl", "base":
		apply = func(s *gptSettings) { s.BaseURL = strings.TrimRight(value, "/") }
	case "system", "prompt":
		apply = func(s *gptSettings) { s.SystemPrompt = value }
	default:
		return usagef("未知配置项: %s", key)
	}
	if err := g.cache.update(apply); err != nil {
		return err
	}
	if key == "key" || key == "apikey" {
		return c.Edit(ctx, "✅ 已设置 API Key: "+telegram.Code(maskSecret(value)))
	}
	return c.Editf(ctx, "✅ 已设置 %s: %s", key, telegram.Code(telegram.Truncate(value, 200)))
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:3] + "****" + s[len(s)-4:]
}

func (g *GPT) info(ctx context.Context, c *Context) error {
	set, system, err := g.effective()
	if err != nil {
		return err
	}
	key := "未设置"
	if set.APIKey != "" {
		key = maskSecret(set.APIKey)
	}
	base := set.BaseURL
	if base == "" {
		base = "默认"
	}
	sess := g.sessions.Get(c.Msg.ChatID)
	var b strings.Builder
	b.WriteString("<b>🤖 GPT 配置</b>")
	b.WriteString("\nProvider: " + telegram.Code(set.Provider))
	b.WriteString("\nModel: " + telegram.Code(set.Model))
	b.WriteString("\nBase URL: " + telegram.Code(base))
	b.WriteString("\nAPI Key: " + telegram.Code(key))
	if system != "" {
		b.WriteString("\nSystem: " + telegram.EscapeHTML(telegram.Truncate(system, 100)))
	}
	b.WriteString(fmt.Sprintf("\n本聊天记录: %d 条", sess.Len()))
	return c.Edit(ctx, b.String())
}

func (g *GPT) ask(ctx context.Context, c *Context) error {
	prompt := c.Raw
	replied, err := c.Replied(ctx)
	if err != nil {
		return err
	}
	if replied != nil && replied.Text != "" {
		if prompt == "" {
			prompt = replied.Text
		} else {
			prompt = "「" + replied.Text + "」\n\n" + prompt
		}
	}
	if prompt == "" {
		return errUsage
	}

	p, set, system, err := g.provider()
	if err != nil {
		return err
	}
	if err := c.Edit(ctx, "🤔 思考中…"); err != nil {
		return err
	}

	cfg := g.deps.Config.GPT
	sess := g.sessions.Get(c.Msg.ChatID)
	var msgs []providers.Message
	for _, m := range sess.Window(cfg.HistoryLimit) {
		msgs = append(msgs, providers.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, providers.Message{Role: providers.RoleUser, Content: prompt})

	resp, err := p.Chat(ctx, providers.ChatRequest{
		Model:        set.Model,
		Messages:     msgs,
		MaxTokens:    cfg.MaxTokens,
		Temperature:  cfg.Temperature,
		SystemPrompt: system,
	})
	if err != nil {
		return err
	}
	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return fmt.Errorf("模型没有返回内容")
	}

	sess.AddExchange(prompt, answer)
	if cfg.HistoryLimit > 0 {
		sess.Trim(cfg.HistoryLimit * 2)
	}
	if err := g.sessions.Save(sess); err != nil {
		return err
	}

	q := telegram.Truncate(c.Raw, 200)
	if q == "" {
		q = telegram.Truncate(prompt, 200)
	}
	return c.Edit(ctx, "<b>Q:</b> "+telegram.EscapeHTML(q)+"\n\n<b>A:</b> "+
		telegram.EscapeHTML(telegram.Truncate(answer, telegram.MaxMessageLen-400)))
}
