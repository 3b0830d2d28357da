package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
	"github.com/coopco/telebox/internal/telegram"
)

const seenCapacity = 1024

// Dispatcher turns inbound messages into command invocations. Messages are
// handled one at a time, in arrival order.
type Dispatcher struct {
	reg      *Registry
	client   telegram.Client
	prefixes []string
	botMode  bool
	allowed  map[string]bool

	mu     sync.Mutex
	selfID int64
	seen   *seenSet
}

func NewDispatcher(reg *Registry, client telegram.Client, cfg *config.Config) *Dispatcher {
	allowed := make(map[string]bool, len(cfg.Telegram.AllowedUsers))
	for _, u := range cfg.Telegram.AllowedUsers {
		allowed[normalizeUser(u)] = true
	}
	prefixes := cfg.Prefixes
	if len(prefixes) == 0 {
		prefixes = config.DefaultConfig().Prefixes
	}
	return &Dispatcher{
		reg:      reg,
		client:   client,
		prefixes: prefixes,
		botMode:  cfg.Telegram.Mode == "bot",
		allowed:  allowed,
		seen:     newSeenSet(seenCapacity),
	}
}

// SetSelf records the account id so its own messages are recognised even
// when the client does not mark them outgoing.
func (d *Dispatcher) SetSelf(id int64) {
	d.mu.Lock()
	d.selfID = id
	d.mu.Unlock()
}

// Prefix returns the first configured prefix, used in help texts.
func (d *Dispatcher) Prefix() string {
	return d.prefixes[0]
}

// Run consumes the bus until ctx is cancelled or the bus is closed.
func (d *Dispatcher) Run(ctx context.Context, b *bus.MessageBus) error {
	for {
		in, err := b.ConsumeInbound(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		d.Handle(ctx, in)
	}
}

// Handle dispatches a single inbound message.
func (d *Dispatcher) Handle(ctx context.Context, in bus.InboundMessage) {
	msg := in.Message
	if msg == nil {
		return
	}
	if !d.seen.add(in.Key()) {
		return
	}
	injected := in.Source == bus.SourceInjected

	if d.authorized(msg, injected) {
		if prefix, name, raw, ok := d.parse(msg.Text); ok {
			if cmd, p, found := d.reg.Lookup(name); found {
				c := NewContext(d.client, msg, prefix, name, raw)
				c.Injected = injected
				d.run(ctx, p, cmd, c)
				return
			}
		}
	}
	if !injected {
		d.watch(ctx, msg)
	}
}

func (d *Dispatcher) authorized(msg *telegram.Message, injected bool) bool {
	if injected || msg.Out {
		return true
	}
	d.mu.Lock()
	self := d.selfID
	d.mu.Unlock()
	if self != 0 && msg.SenderID == self {
		return true
	}
	if !d.botMode {
		return false
	}
	if d.allowed[strconv.FormatInt(msg.SenderID, 10)] {
		return true
	}
	return msg.SenderUsername != "" && d.allowed[normalizeUser(msg.SenderUsername)]
}

// normalizeUser keys allowedUsers entries: numeric ids as written,
// usernames lowercased without "@".
func normalizeUser(u string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(u)), "@")
}

// parse splits "<prefix><name> <raw...>". The name ends at the first space
// or line break.
func (d *Dispatcher) parse(text string) (prefix, name, raw string, ok bool) {
	text = strings.TrimLeftFunc(text, unicode.IsSpace)
	for _, p := range d.prefixes {
		if p == "" || !strings.HasPrefix(text, p) {
			continue
		}
		rest := text[len(p):]
		end := strings.IndexFunc(rest, unicode.IsSpace)
		if end < 0 {
			end = len(rest)
		}
		name = strings.ToLower(rest[:end])
		if name == "" {
			return "", "", "", false
		}
		return p, name, rest[end:], true
	}
	return "", "", "", false
}

func (d *Dispatcher) run(ctx context.Context, p Plugin, cmd Command, c *Context) {
	err := d.call(ctx, cmd, c)
	if err == nil {
		return
	}
	slog.Warn("command failed", "plugin", p.Name(), "command", cmd.Name, "chat", c.Msg.ChatID, "error", err)
	if editErr := c.Edit(ctx, renderError(c.Prefix, cmd, err)); editErr != nil {
		slog.Error("render command error", "command", cmd.Name, "error", editErr)
	}
}

func (d *Dispatcher) call(ctx context.Context, cmd Command, c *Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("command panicked", "command", cmd.Name, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("内部错误: %v", r)
		}
	}()
	return cmd.Handler(ctx, c)
}

func renderError(prefix string, cmd Command, err error) string {
	if IsUsage(err) {
		return "❌ " + telegram.EscapeHTML(err.Error()) + "\n\n" + formatUsage(prefix, cmd)
	}
	return "❌ " + telegram.EscapeHTML(telegram.Describe(err))
}

func (d *Dispatcher) watch(ctx context.Context, msg *telegram.Message) {
	for _, p := range d.reg.Plugins() {
		w, ok := p.(Watcher)
		if !ok {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					slog.Error("watcher panicked", "plugin", p.Name(), "panic", r)
				}
			}()
			w.Watch(ctx, msg)
		}()
	}
}

// seenSet remembers the most recent keys in insertion order.
type seenSet struct {
	mu   sync.Mutex
	keys map[string]struct{}
	ring []string
	next int
}

func newSeenSet(n int) *seenSet {
	return &seenSet{keys: make(map[string]struct{}, n), ring: make([]string, n)}
}

// add reports whether key was new.
func (s *seenSet) add(key string) bool {
	if key == "" {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.keys[key]; ok {
		return false
	}
	if old := s.ring[s.next]; old != "" {
		delete(s.keys, old)
	}
	s.ring[s.next] = key
	s.next = (s.next + 1) % len(s.ring)
	s.keys[key] = struct{}{}
	return true
}
