package channels

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/slack-go/slack"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
)

// mockChannel is a test double for Channel.
type mockChannel struct {
	name    string
	mu      sync.Mutex
	sent    []bus.OutboundMessage
	started bool
	fail    error
}

func (m *mockChannel) Name() string { return m.name }
func (m *mockChannel) Start(_ context.Context) error {
	m.started = true
	return nil
}
func (m *mockChannel) Stop() error { return nil }
func (m *mockChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mockChannel) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func TestRegisterAndGetFactory(t *testing.T) {
	const name = "test-channel-reg"
	Register(name, func(cfg config.RelayConfig) (Channel, error) {
		return &mockChannel{name: name}, nil
	})
	defer delete(registry, name)

	factory, ok := GetFactory(name)
	if !ok || factory == nil {
		t.Fatalf("expected factory for %q to be registered", name)
	}
	if _, ok := GetFactory("nonexistent-channel-xyz"); ok {
		t.Fatal("unexpected factory for unregistered channel")
	}
}

func TestRegisteredNamesIncludesBuiltins(t *testing.T) {
	names := strings.Join(RegisteredNames(), ",")
	if names != "discord,slack" {
		t.Errorf("RegisteredNames = %q, want discord,slack", names)
	}
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in      string
		channel string
		chat    string
		ok      bool
	}{
		{"discord:123456", "discord", "123456", true},
		{"Slack:C01ABC", "slack", "C01ABC", true},
		{"-1001234567890", "", "", false},
		{"@channel", "", "", false},
		{"discord:", "", "", false},
		{"matrix:room", "", "", false},
	}
	for _, tc := range tests {
		ch, chat, ok := ParseTarget(tc.in)
		if ch != tc.channel || chat != tc.chat || ok != tc.ok {
			t.Errorf("ParseTarget(%q) = (%q, %q, %v), want (%q, %q, %v)", tc.in, ch, chat, ok, tc.channel, tc.chat, tc.ok)
		}
	}
}

func TestAddConfiguredSkipsMissingCredentials(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(4))
	if err := mgr.AddConfigured(config.RelayConfig{}); err != nil {
		t.Fatalf("AddConfigured: %v", err)
	}
	if mgr.Has("discord") || mgr.Has("slack") {
		t.Fatal("channels enabled without credentials")
	}

	if err := mgr.AddConfigured(config.RelayConfig{Slack: config.SlackConfig{BotToken: "xoxb-test"}}); err != nil {
		t.Fatalf("AddConfigured: %v", err)
	}
	if !mgr.Has("slack") || mgr.Has("discord") {
		t.Fatal("expected only slack enabled")
	}
}

func TestOutboundRoutedThroughBus(t *testing.T) {
	msgBus := bus.NewMessageBus(16)
	mgr := NewManager(msgBus)
	discord := &mockChannel{name: "discord"}
	slackCh := &mockChannel{name: "slack"}
	mgr.Add(discord)
	mgr.Add(slackCh)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go msgBus.DispatchOutbound(ctx)

	msgBus.PublishOutbound(ctx, bus.OutboundMessage{Channel: "discord", ChatID: "1", Content: "hello"})
	msgBus.PublishOutbound(ctx, bus.OutboundMessage{Channel: "nowhere", ChatID: "1", Content: "lost"})

	deadline := time.After(time.Second)
	for discord.count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for discord delivery")
		default:
			time.Sleep(5 * time.Millisecond)
		}
	}
	if slackCh.count() != 0 {
		t.Errorf("slack received %d messages", slackCh.count())
	}
}

func TestManagerSendErrors(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(4))
	if err := mgr.Send(context.Background(), bus.OutboundMessage{Channel: "discord"}); err == nil {
		t.Fatal("expected error for unconfigured channel")
	}
	want := errors.New("rate limited")
	mgr.Add(&mockChannel{name: "discord", fail: want})
	if err := mgr.Send(context.Background(), bus.OutboundMessage{Channel: "discord"}); !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestStartAll(t *testing.T) {
	mgr := NewManager(bus.NewMessageBus(4))
	mock := &mockChannel{name: "discord"}
	mgr.Add(mock)
	if err := mgr.StartAll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !mock.started {
		t.Error("channel not started")
	}
	if err := mgr.StopAll(); err != nil {
		t.Fatal(err)
	}
}

func TestSlackChannelSend(t *testing.T) {
	var got struct {
		channel string
		text    string
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat.postMessage") {
			http.NotFound(w, r)
			return
		}
		r.ParseForm()
		got.channel = r.FormValue("channel")
		got.text = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"ok": true, "channel": got.channel, "ts": "1.000"})
	}))
	defer srv.Close()

	ch := &SlackChannel{client: slack.New("xoxb-test", slack.OptionAPIURL(srv.URL+"/"))}
	err := ch.Send(context.Background(), bus.OutboundMessage{Channel: "slack", ChatID: "C42", Content: "from telegram"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.channel != "C42" || got.text != "from telegram" {
		t.Errorf("posted channel=%q text=%q", got.channel, got.text)
	}
}

func TestSplitRunes(t *testing.T) {
	parts := splitRunes(strings.Repeat("ab", 3), 4)
	if len(parts) != 2 || parts[0] != "abab" || parts[1] != "ab" {
		t.Errorf("splitRunes = %q", parts)
	}
	if got := splitRunes("short", 10); len(got) != 1 || got[0] != "short" {
		t.Errorf("splitRunes short = %q", got)
	}
}

func TestDiscordFactoryRequiresToken(t *testing.T) {
	ch, err := newDiscordChannel(config.RelayConfig{})
	if err != nil || ch != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", ch, err)
	}
	ch, err = newDiscordChannel(config.RelayConfig{Discord: config.DiscordConfig{Token: "abc"}})
	if err != nil {
		t.Fatalf("newDiscordChannel: %v", err)
	}
	if ch.Name() != "discord" {
		t.Errorf("Name = %q", ch.Name())
	}
}
