package channels

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
)

// sendTimeout bounds a single relay delivery.
const sendTimeout = 30 * time.Second

type Manager struct {
	channels []Channel
	bus      *bus.MessageBus
	mu       sync.Mutex
}

func NewManager(msgBus *bus.MessageBus) *Manager {
	m := &Manager{bus: msgBus}
	m.setupOutboundDispatch()
	return m
}

// AddChannel creates a channel from the relay config. Unconfigured
// channels are skipped and reported as not added.
func (m *Manager) AddChannel(name string, cfg config.RelayConfig) (bool, error) {
	factory, ok := GetFactory(name)
	if !ok {
		return false, fmt.Errorf("no factory registered for channel %q", name)
	}
	ch, err := factory(cfg)
	if err != nil {
		return false, fmt.Errorf("failed to create channel %q: %w", name, err)
	}
	if ch == nil {
		return false, nil
	}
	m.Add(ch)
	return true, nil
}

// AddConfigured adds every registered channel that has credentials.
func (m *Manager) AddConfigured(cfg config.RelayConfig) error {
	for _, name := range RegisteredNames() {
		added, err := m.AddChannel(name, cfg)
		if err != nil {
			return err
		}
		if added {
			slog.Info("relay channel enabled", "channel", name)
		}
	}
	return nil
}

// Add registers an already built channel.
func (m *Manager) Add(ch Channel) {
	m.mu.Lock()
	m.channels = append(m.channels, ch)
	m.mu.Unlock()
}

// Has reports whether a channel with that name is enabled.
func (m *Manager) Has(name string) bool {
	return m.find(name) != nil
}

func (m *Manager) find(name string) Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.channels {
		if ch.Name() == name {
			return ch
		}
	}
	return nil
}

func (m *Manager) snapshot() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	chs := make([]Channel, len(m.channels))
	copy(chs, m.channels)
	return chs
}

// StartAll starts all enabled channels.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, ch := range m.snapshot() {
		if err := ch.Start(ctx); err != nil {
			return fmt.Errorf("failed to start channel %q: %w", ch.Name(), err)
		}
	}
	return nil
}

// StopAll stops all channels.
func (m *Manager) StopAll() error {
	var firstErr error
	for _, ch := range m.snapshot() {
		if err := ch.Stop(); err != nil {
			slog.Error("failed to stop channel", "channel", ch.Name(), "error", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Send delivers msg synchronously to the named channel.
func (m *Manager) Send(ctx context.Context, msg bus.OutboundMessage) error {
	ch := m.find(msg.Channel)
	if ch == nil {
		return fmt.Errorf("relay channel %q is not configured", msg.Channel)
	}
	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	return ch.Send(ctx, msg)
}

// setupOutboundDispatch subscribes to outbound messages and routes to channels.
func (m *Manager) setupOutboundDispatch() {
	m.bus.Subscribe("", func(msg bus.OutboundMessage) {
		if err := m.Send(context.Background(), msg); err != nil {
			slog.Error("failed to relay message", "channel", msg.Channel, "chat", msg.ChatID, "error", err)
		}
	})
}
