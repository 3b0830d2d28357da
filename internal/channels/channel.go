// Package channels delivers relay messages to chat platforms outside
// Telegram. Shift rules whose target is "discord:<id>" or "slack:<id>"
// end up here through the message bus.
package channels

import (
	"context"
	"sort"
	"strings"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
)

// Channel is a send-only relay target.
type Channel interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// ChannelFactory builds a Channel from the relay section of the config. It
// returns (nil, nil) when the channel is not configured.
type ChannelFactory func(cfg config.RelayConfig) (Channel, error)

var registry = map[string]ChannelFactory{}

// Register adds a channel factory to the registry.
func Register(name string, factory ChannelFactory) {
	registry[name] = factory
}

// GetFactory returns the factory for a channel name.
func GetFactory(name string) (ChannelFactory, bool) {
	f, ok := registry[name]
	return f, ok
}

// RegisteredNames returns all registered channel names, sorted.
func RegisteredNames() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParseTarget splits "discord:123" into ("discord", "123"). ok is false
// for plain Telegram references and for unknown relay names.
func ParseTarget(target string) (channel, chatID string, ok bool) {
	name, id, found := strings.Cut(target, ":")
	if !found || id == "" {
		return "", "", false
	}
	name = strings.ToLower(name)
	if _, known := registry[name]; !known {
		return "", "", false
	}
	return name, id, true
}
