package bus

import (
	"strconv"

	"github.com/coopco/telebox/internal/telegram"
)

// Inbound sources.
const (
	SourceTelegram = "telegram" // delivered by the client
	SourceInjected = "injected" // sent by telebox itself and dispatched as if typed
)

// InboundMessage is a Telegram message waiting for the dispatcher.
type InboundMessage struct {
	Source  string
	Message *telegram.Message
}

// Key identifies the underlying message; the dispatcher uses it to drop
// duplicates when the client also echoes an injected message.
func (m InboundMessage) Key() string {
	if m.Message == nil {
		return ""
	}
	return strconv.FormatInt(m.Message.ChatID, 10) + ":" + strconv.Itoa(m.Message.ID)
}

// OutboundMessage is text for a relay channel outside Telegram.
type OutboundMessage struct {
	Channel  string            // relay name, e.g. "discord" or "slack"
	ChatID   string            // channel id on that platform
	Content  string            // plain text
	Metadata map[string]string // e.g. source chat and message id
}
