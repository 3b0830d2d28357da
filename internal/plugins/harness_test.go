package plugins

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
	"github.com/coopco/telebox/internal/telegram"
	"github.com/coopco/telebox/internal/telegram/telegramtest"
)

const testChat int64 = -100555

type fakeScheduler struct {
	mu   sync.Mutex
	fns  map[string]func()
	exps map[string]string
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{fns: make(map[string]func()), exps: make(map[string]string)}
}

func (s *fakeScheduler) Set(key, expr string, fn func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.fns[key]; ok {
		return nil
	}
	s.fns[key] = fn
	s.exps[key] = expr
	return nil
}

func (s *fakeScheduler) Del(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.fns, key)
	delete(s.exps, key)
}

func (s *fakeScheduler) Has(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.fns[key]
	return ok
}

func (s *fakeScheduler) fire(t *testing.T, key string) {
	t.Helper()
	s.mu.Lock()
	fn, ok := s.fns[key]
	s.mu.Unlock()
	if !ok {
		t.Fatalf("nothing armed under %q", key)
	}
	fn()
}

type fakeRunner struct {
	mu    sync.Mutex
	calls [][]string
	out   map[string][]byte
	err   error
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, append([]string{name}, args...))
	key := name
	if len(args) > 0 {
		key += " " + args[0]
	}
	return r.out[key], r.err
}

type harness struct {
	t       *testing.T
	client  *telegramtest.Client
	sched   *fakeScheduler
	sleeper *telegramtest.Sleeper
	exec    *fakeRunner
	bus     *bus.MessageBus
	deps    *Deps
	reg     *Registry
	disp    *Dispatcher
	now     time.Time
	nextID  int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.AssetsDir = t.TempDir()
	h := &harness{
		t:       t,
		client:  telegramtest.New(),
		sched:   newFakeScheduler(),
		sleeper: &telegramtest.Sleeper{},
		exec:    &fakeRunner{out: make(map[string][]byte)},
		bus:     bus.NewMessageBus(16),
		reg:     NewRegistry(),
		now:     time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		nextID:  10000,
	}
	h.deps = &Deps{
		Context:   context.Background(),
		Client:    h.client,
		Config:    cfg,
		Cache:     telegram.NewEntityCache(h.client, time.Minute),
		Bus:       h.bus,
		Scheduler: h.sched,
		Exec:      h.exec,
		Sleeper:   h.sleeper,
		Now:       func() time.Time { return h.now },
		Registry:  h.reg,
	}
	h.disp = NewDispatcher(h.reg, h.client, cfg)
	h.disp.SetSelf(h.client.SelfEnt.ID)
	return h
}

func (h *harness) register(p Plugin) {
	h.t.Helper()
	if err := h.reg.Register(p); err != nil {
		h.t.Fatal(err)
	}
}

// message builds an outgoing message in testChat.
func (h *harness) message(text string) *telegram.Message {
	h.nextID++
	return &telegram.Message{ID: h.nextID, ChatID: testChat, SenderID: h.client.SelfEnt.ID, Text: text, Out: true}
}

// run dispatches text as typed by the account owner and returns the
// resulting edit of that message.
func (h *harness) run(text string) string {
	h.t.Helper()
	m := h.message(text)
	h.disp.Handle(context.Background(), bus.InboundMessage{Source: bus.SourceTelegram, Message: m})
	return h.editOf(m.ChatID, m.ID)
}

func (h *harness) editOf(chat int64, id int) string {
	edits := h.client.CallsOf("EditMessage")
	for i := len(edits) - 1; i >= 0; i-- {
		if edits[i].Chat == chat && len(edits[i].IDs) == 1 && edits[i].IDs[0] == id {
			return edits[i].Text
		}
	}
	return ""
}

func (h *harness) key(plugin, id string) string {
	return fmt.Sprintf("%s:%s", plugin, id)
}

func inbound(m *telegram.Message) bus.InboundMessage {
	return bus.InboundMessage{Source: bus.SourceTelegram, Message: m}
}
