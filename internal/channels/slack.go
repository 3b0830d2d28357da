package channels

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
)

func init() {
	Register("slack", newSlackChannel)
}

// SlackChannel posts relay messages with a bot token.
type SlackChannel struct {
	client *slack.Client
}

func newSlackChannel(cfg config.RelayConfig) (Channel, error) {
	if cfg.Slack.BotToken == "" {
		return nil, nil
	}
	return &SlackChannel{client: slack.New(cfg.Slack.BotToken)}, nil
}

func (c *SlackChannel) Name() string { return "slack" }

func (c *SlackChannel) Start(ctx context.Context) error {
	resp, err := c.client.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack: auth test: %w", err)
	}
	slog.Info("slack relay ready", "team", resp.Team, "user", resp.User)
	return nil
}

func (c *SlackChannel) Stop() error {
	return nil
}

func (c *SlackChannel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	_, _, err := c.client.PostMessageContext(ctx, msg.ChatID,
		slack.MsgOptionText(msg.Content, false),
		slack.MsgOptionDisableLinkUnfurl(),
	)
	if err != nil {
		return fmt.Errorf("slack: failed to send message: %w", err)
	}
	return nil
}
