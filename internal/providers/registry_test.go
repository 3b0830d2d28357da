package providers

import (
	"testing"
)

func TestFindByModel(t *testing.T) {
	tests := []struct {
		model    string
		wantName string
	}{
		{"gpt-4o", "openai"},
		{"claude-3-5-sonnet", "anthropic"},
		{"deepseek-chat", "deepseek"},
		{"qwen-max", "dashscope"},
	}
	for _, tt := range tests {
		spec := FindByModel(tt.model)
		if spec == nil {
			t.Errorf("FindByModel(%q) = nil, want %q", tt.model, tt.wantName)
			continue
		}
		if spec.Name != tt.wantName {
			t.Errorf("FindByModel(%q).Name = %q, want %q", tt.model, spec.Name, tt.wantName)
		}
	}
}

func TestFindByModelUnknown(t *testing.T) {
	if spec := FindByModel("totally-unknown-model-xyz"); spec != nil {
		t.Errorf("FindByModel(unknown) = %q, want nil", spec.Name)
	}
}

func TestFindByName(t *testing.T) {
	spec := FindByName(" Anthropic ")
	if spec == nil || spec.Name != "anthropic" {
		t.Fatalf("FindByName(anthropic) = %v", spec)
	}
	if FindByName("nope") != nil {
		t.Error("unexpected match for unknown name")
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		s       Settings
		wantAnt bool
		wantErr bool
	}{
		{"explicit openai", Settings{Provider: "openai", APIKey: "k"}, false, false},
		{"explicit anthropic", Settings{Provider: "anthropic", APIKey: "k"}, true, false},
		{"inferred from model", Settings{APIKey: "k", Model: "claude-3-haiku"}, true, false},
		{"fallback openai", Settings{APIKey: "k", Model: "my-local-model", BaseURL: "http://127.0.0.1:8000/v1"}, false, false},
		{"missing key", Settings{Provider: "openai"}, false, true},
		{"unknown provider", Settings{Provider: "cohere2", APIKey: "k"}, false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.s)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			_, isAnt := p.(*AnthropicProvider)
			if isAnt != tt.wantAnt {
				t.Errorf("provider type %T, want anthropic=%v", p, tt.wantAnt)
			}
		})
	}
}

func TestNewAppliesModelDefaults(t *testing.T) {
	p, err := New(Settings{Provider: "deepseek", APIKey: "k"})
	if err != nil {
		t.Fatal(err)
	}
	oai := p.(*OpenAICompatProvider)
	if oai.defaultModel != "deepseek-chat" {
		t.Errorf("defaultModel = %q", oai.defaultModel)
	}

	p, err = New(Settings{Provider: "anthropic", APIKey: "k", Model: "claude-3-opus"})
	if err != nil {
		t.Fatal(err)
	}
	if got := p.(*AnthropicProvider).defaultModel; got != "claude-3-opus" {
		t.Errorf("anthropic defaultModel = %q", got)
	}
}
