package providers

import (
	"fmt"
	"sort"
	"strings"
)

type ProviderSpec struct {
	Name           string
	Keywords       []string // model name keywords for matching
	EnvKey         string   // environment variable for API key
	DefaultAPIBase string   // default base URL
	DefaultModel   string
	Anthropic      bool // native Anthropic Messages API; everything else speaks OpenAI
}

// Providers lists the known backends. All but anthropic are reached through
// the OpenAI-compatible client.
var Providers = []ProviderSpec{
	{Name: "openai", Keywords: []string{"gpt", "o1", "o3", "o4", "chatgpt"}, EnvKey: "OPENAI_API_KEY", DefaultModel: "gpt-4o-mini"},
	{Name: "anthropic", Keywords: []string{"claude", "anthropic"}, EnvKey: "ANTHROPIC_API_KEY", DefaultModel: defaultAnthropicModel, Anthropic: true},
	{Name: "openrouter", Keywords: []string{"openrouter"}, EnvKey: "OPENROUTER_API_KEY", DefaultAPIBase: "https://openrouter.ai/api/v1"},
	{Name: "deepseek", Keywords: []string{"deepseek"}, EnvKey: "DEEPSEEK_API_KEY", DefaultAPIBase: "https://api.deepseek.com/v1", DefaultModel: "deepseek-chat"},
	{Name: "moonshot", Keywords: []string{"moonshot", "kimi"}, EnvKey: "MOONSHOT_API_KEY", DefaultAPIBase: "https://api.moonshot.cn/v1"},
	{Name: "zhipu", Keywords: []string{"glm", "zhipu"}, EnvKey: "ZHIPUAI_API_KEY", DefaultAPIBase: "https://open.bigmodel.cn/api/paas/v4"},
	{Name: "dashscope", Keywords: []string{"qwen", "dashscope"}, EnvKey: "DASHSCOPE_API_KEY", DefaultAPIBase: "https://dashscope.aliyuncs.com/compatible-mode/v1"},
	{Name: "groq", Keywords: []string{"groq"}, EnvKey: "GROQ_API_KEY", DefaultAPIBase: "https://api.groq.com/openai/v1"},
	{Name: "xai", Keywords: []string{"grok", "xai"}, EnvKey: "XAI_API_KEY", DefaultAPIBase: "https://api.x.ai/v1"},
	{Name: "gemini", Keywords: []string{"gemini"}, EnvKey: "GOOGLE_API_KEY", DefaultAPIBase: "https://generativelanguage.googleapis.com/v1beta/openai"},
	{Name: "ollama", Keywords: []string{"ollama"}, DefaultAPIBase: "http://localhost:11434/v1"},
}

// FindByModel matches model name against Keywords, returns first match.
func FindByModel(model string) *ProviderSpec {
	lower := strings.ToLower(model)
	for i := range Providers {
		for _, kw := range Providers[i].Keywords {
			if strings.Contains(lower, kw) {
				return &Providers[i]
			}
		}
	}
	return nil
}

// FindByName returns the provider spec with an exact name match.
func FindByName(name string) *ProviderSpec {
	name = strings.ToLower(strings.TrimSpace(name))
	for i := range Providers {
		if Providers[i].Name == name {
			return &Providers[i]
		}
	}
	return nil
}

// Names returns the known provider names, sorted.
func Names() []string {
	out := make([]string, len(Providers))
	for i, p := range Providers {
		out[i] = p.Name
	}
	sort.Strings(out)
	return out
}

// Settings selects and configures a provider.
type Settings struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// New builds a provider from settings. An empty provider name is inferred
// from the model, falling back to openai.
func New(s Settings) (Provider, error) {
	if s.APIKey == "" {
		return nil, fmt.Errorf("api key is not set")
	}
	var spec *ProviderSpec
	if s.Provider != "" {
		spec = FindByName(s.Provider)
		if spec == nil {
			return nil, fmt.Errorf("unknown provider %q (known: %s)", s.Provider, strings.Join(Names(), ", "))
		}
	} else if spec = FindByModel(s.Model); spec == nil {
		spec = FindByName("openai")
	}
	model := s.Model
	if model == "" {
		model = spec.DefaultModel
	}
	if spec.Anthropic {
		p := NewAnthropicProvider(s.APIKey, s.BaseURL)
		if model != "" {
			p.defaultModel = model
		}
		return p, nil
	}
	return NewOpenAICompatProviderFromSpec(spec, s.APIKey, s.BaseURL, model), nil
}
