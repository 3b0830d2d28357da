package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
)

func init() {
	Register("discord", newDiscordChannel)
}

// discordMaxLen is Discord's per-message character limit.
const discordMaxLen = 2000

// DiscordChannel posts relay messages through the Discord REST API. No
// gateway connection is opened; the bot only needs send permission.
type DiscordChannel struct {
	session *discordgo.Session
}

func newDiscordChannel(cfg config.RelayConfig) (Channel, error) {
	if cfg.Discord.Token == "" {
		return nil, nil
	}
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	return &DiscordChannel{session: session}, nil
}

func (c *DiscordChannel) Name() string { return "discord" }

func (c *DiscordChannel) Start(ctx context.Context) error {
	u, err := c.session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("discord: verify token: %w", err)
	}
	slog.Info("discord relay ready", "bot", u.Username)
	return nil
}

func (c *DiscordChannel) Stop() error {
	return nil
}

func (c *DiscordChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	for _, part := range splitRunes(msg.Content, discordMaxLen) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, part, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("discord: failed to send message: %w", err)
		}
	}
	return nil
}

// splitRunes cuts s into chunks of at most n runes.
func splitRunes(s string, n int) []string {
	r := []rune(s)
	if len(r) <= n {
		return []string{s}
	}
	var parts []string
	for len(r) > 0 {
		k := min(n, len(r))
		parts = append(parts, string(r[:k]))
		r = r[k:]
	}
	return parts
}
