// Package telegram is the single point of contact with Telegram. Plugins only
// see the Client interface; adapters exist for a user account (MTProto, via
// gogram) and for a bot token (Bot API).
package telegram

import (
	"context"
	"errors"
	"time"
)

// ErrUnsupported is returned by adapters for operations the underlying API
// cannot perform (for example listing dialogs with a bot token).
var ErrUnsupported = errors.New("operation not supported by this client")

// Message is the subset of an incoming or sent message the plugins use.
type Message struct {
	ID        int
	ChatID    int64
	SenderID  int64
	ReplyToID int
	Text      string
	HasMedia  bool
	MediaKind string // "photo", "video", "document", ... empty for text
	Out       bool   // sent by the account this client is logged in as
	Date      time.Time

	SenderUsername string // without "@"; only the bot transport fills it
}

// EntityType distinguishes users from the two chat flavours.
type EntityType string

const (
	EntityUser    EntityType = "user"
	EntityChat    EntityType = "chat"
	EntityChannel EntityType = "channel"
)

// Entity is a resolved user, basic group or channel.
type Entity struct {
	ID       int64 // canonical id, see NormalizeChatID
	Type     EntityType
	Title    string // chat title or user full name
	Username string
	IsAdmin  bool // the client account has admin rights here
}

// Display returns a short human readable label.
func (e Entity) Display() string {
	if e.Username != "" {
		return e.Title + " (@" + e.Username + ")"
	}
	return e.Title
}

// SendOptions controls formatting of sent and edited messages.
type SendOptions struct {
	HTML      bool
	ReplyTo   int
	NoPreview bool
	FileName  string
	Caption   string
}

// BanAction is the admin operation applied by EditBanned.
type BanAction string

const (
	ActionBan    BanAction = "ban"
	ActionUnban  BanAction = "unban"
	ActionMute   BanAction = "mute"
	ActionUnmute BanAction = "unmute"
	ActionKick   BanAction = "kick"
)

// Client is the Telegram surface the plugins depend on.
type Client interface {
	Self(ctx context.Context) (Entity, error)

	SendMessage(ctx context.Context, chat int64, text string, opts *SendOptions) (*Message, error)
	EditMessage(ctx context.Context, chat int64, id int, text string, opts *SendOptions) error
	DeleteMessages(ctx context.Context, chat int64, ids []int) error
	PinMessage(ctx context.Context, chat int64, id int) error
	UnpinMessage(ctx context.Context, chat int64, id int) error
	ForwardMessages(ctx context.Context, to, from int64, ids []int) error
	// CopyMessage re-sends a message without the "forwarded from" header.
	CopyMessage(ctx context.Context, to, from int64, id int) error
	GetMessages(ctx context.Context, chat int64, ids []int) ([]*Message, error)

	DownloadMedia(ctx context.Context, chat int64, id int, dest string) (string, error)
	SendFile(ctx context.Context, chat int64, path string, opts *SendOptions) (*Message, error)

	// ResolvePeer accepts a numeric id in any of the supported sign
	// conventions, an @username, or "me".
	ResolvePeer(ctx context.Context, ref string) (Entity, error)
	EditBanned(ctx context.Context, chat, user int64, action BanAction, until time.Time) error
	// AdminChats returns the groups and channels where the account is admin.
	AdminChats(ctx context.Context) ([]Entity, error)

	// OnMessage registers the single handler for new and outgoing messages.
	OnMessage(fn func(*Message))
	Start(ctx context.Context) error
	Stop() error
}
