package telegram

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// BotClient implements Client with a bot token. The Bot API cannot list
// dialogs or read arbitrary history, so AdminChats returns ErrUnsupported
// and GetMessages only sees messages the bot received while running.
type BotClient struct {
	bot     *tgbotapi.BotAPI
	handler func(*Message)
	stopCh  chan struct{}
	http    *http.Client

	recent *recentMessages
}

// NewBotClient authenticates the token with getMe.
func NewBotClient(token string) (*BotClient, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}
	return &BotClient{
		bot:    bot,
		stopCh: make(chan struct{}),
		http:   &http.Client{Timeout: 5 * time.Minute},
		recent: newRecentMessages(2000),
	}, nil
}

func (c *BotClient) Self(ctx context.Context) (Entity, error) {
	return Entity{
		ID:       c.bot.Self.ID,
		Type:     EntityUser,
		Title:    strings.TrimSpace(c.bot.Self.FirstName + " " + c.bot.Self.LastName),
		Username: c.bot.Self.UserName,
	}, nil
}

func (c *BotClient) OnMessage(fn func(*Message)) { c.handler = fn }

func (c *BotClient) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := c.bot.GetUpdatesChan(u)
	slog.Info("telegram: bot started", "username", c.bot.Self.UserName)

	go func() {
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				m := update.Message
				if m == nil {
					m = update.ChannelPost
				}
				if m == nil {
					continue
				}
				msg := convertBotMessage(m, c.bot.Self.ID)
				c.recent.put(msg, botFileID(m))
				if c.handler != nil {
					c.handler(msg)
				}
			case <-ctx.Done():
				c.bot.StopReceivingUpdates()
				return
			case <-c.stopCh:
				c.bot.StopReceivingUpdates()
				return
			}
		}
	}()
	return nil
}

func (c *BotClient) Stop() error {
	close(c.stopCh)
	return nil
}

func (c *BotClient) SendMessage(ctx context.Context, chat int64, text string, opts *SendOptions) (*Message, error) {
	m := tgbotapi.NewMessage(chat, text)
	if opts != nil {
		if opts.HTML {
			m.ParseMode = tgbotapi.ModeHTML
		}
		m.ReplyToMessageID = opts.ReplyTo
		m.DisableWebPagePreview = opts.NoPreview
	}
	sent, err := c.bot.Send(m)
	if err != nil {
		return nil, err
	}
	msg := convertBotMessage(&sent, c.bot.Self.ID)
	c.recent.put(msg, "")
	return msg, nil
}

func (c *BotClient) EditMessage(ctx context.Context, chat int64, id int, text string, opts *SendOptions) error {
	e := tgbotapi.NewEditMessageText(chat, id, text)
	if opts != nil {
		if opts.HTML {
			e.ParseMode = tgbotapi.ModeHTML
		}
		e.DisableWebPagePreview = opts.NoPreview
	}
	_, err := c.bot.Send(e)
	return err
}

func (c *BotClient) DeleteMessages(ctx context.Context, chat int64, ids []int) error {
	for _, id := range ids {
		if _, err := c.bot.Request(tgbotapi.NewDeleteMessage(chat, id)); err != nil {
			return err
		}
	}
	return nil
}

func (c *BotClient) PinMessage(ctx context.Context, chat int64, id int) error {
	_, err := c.bot.Request(tgbotapi.PinChatMessageConfig{ChatID: chat, MessageID: id, DisableNotification: true})
	return err
}

func (c *BotClient) UnpinMessage(ctx context.Context, chat int64, id int) error {
	_, err := c.bot.Request(tgbotapi.UnpinChatMessageConfig{ChatID: chat, MessageID: id})
	return err
}

func (c *BotClient) ForwardMessages(ctx context.Context, to, from int64, ids []int) error {
	for _, id := range ids {
		if _, err := c.bot.Send(tgbotapi.NewForward(to, from, id)); err != nil {
			return err
		}
	}
	return nil
}

func (c *BotClient) CopyMessage(ctx context.Context, to, from int64, id int) error {
	_, err := c.bot.Request(tgbotapi.NewCopyMessage(to, from, id))
	return err
}

func (c *BotClient) GetMessages(ctx context.Context, chat int64, ids []int) ([]*Message, error) {
	var out []*Message
	for _, id := range ids {
		if m, ok := c.recent.get(chat, id); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *BotClient) DownloadMedia(ctx context.Context, chat int64, id int, dest string) (string, error) {
	fileID, ok := c.recent.fileID(chat, id)
	if !ok {
		return "", fmt.Errorf("message %d in %d has no media known to the bot", id, chat)
	}
	url, err := c.bot.GetFileDirectURL(fileID)
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed: HTTP %d", resp.StatusCode)
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return "", err
	}
	f, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if _, err := io.Copy(f, resp.Body); err != nil {
		return "", err
	}
	return dest, nil
}

func (c *BotClient) SendFile(ctx context.Context, chat int64, path string, opts *SendOptions) (*Message, error) {
	doc := tgbotapi.NewDocument(chat, tgbotapi.FilePath(path))
	if opts != nil {
		doc.Caption = opts.Caption
		if opts.HTML {
			doc.ParseMode = tgbotapi.ModeHTML
		}
	}
	sent, err := c.bot.Send(doc)
	if err != nil {
		return nil, err
	}
	return convertBotMessage(&sent, c.bot.Self.ID), nil
}

func (c *BotClient) ResolvePeer(ctx context.Context, ref string) (Entity, error) {
	p, err := ParsePeerRef(ref)
	if err != nil {
		return Entity{}, err
	}
	if p.Self {
		return c.Self(ctx)
	}
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: p.ID}}
	if p.Username != "" {
		cfg.ChatConfig = tgbotapi.ChatConfig{SuperGroupUsername: "@" + p.Username}
	}
	chat, err := c.bot.GetChat(cfg)
	if err != nil {
		return Entity{}, err
	}
	ent := Entity{ID: chat.ID, Username: chat.UserName, Title: chat.Title}
	switch chat.Type {
	case "private":
		ent.Type = EntityUser
		ent.Title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	case "group":
		ent.Type = EntityChat
	default:
		ent.Type = EntityChannel
	}
	if ent.Type != EntityUser {
		member, err := c.bot.GetChatMember(tgbotapi.GetChatMemberConfig{
			ChatConfigWithUser: tgbotapi.ChatConfigWithUser{ChatID: chat.ID, UserID: c.bot.Self.ID},
		})
		if err == nil {
			ent.IsAdmin = member.IsCreator() || (member.IsAdministrator() && member.CanRestrictMembers)
		}
	}
	return ent, nil
}

func (c *BotClient) EditBanned(ctx context.Context, chat, user int64, action BanAction, until time.Time) error {
	member := tgbotapi.ChatMemberConfig{ChatID: chat, UserID: user}
	var untilDate int64
	if !until.IsZero() {
		untilDate = until.Unix()
	}
	switch action {
	case ActionBan:
		_, err := c.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member, UntilDate: untilDate, RevokeMessages: true})
		return err
	case ActionUnban:
		_, err := c.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
		return err
	case ActionKick:
		if _, err := c.bot.Request(tgbotapi.BanChatMemberConfig{ChatMemberConfig: member}); err != nil {
			return err
		}
		_, err := c.bot.Request(tgbotapi.UnbanChatMemberConfig{ChatMemberConfig: member, OnlyIfBanned: true})
		return err
	case ActionMute, ActionUnmute:
		allow := action == ActionUnmute
		_, err := c.bot.Request(tgbotapi.RestrictChatMemberConfig{
			ChatMemberConfig: member,
			UntilDate:        untilDate,
			Permissions: &tgbotapi.ChatPermissions{
				CanSendMessages:       allow,
				CanSendMediaMessages:  allow,
				CanSendPolls:          allow,
				CanSendOtherMessages:  allow,
				CanAddWebPagePreviews: allow,
			},
		})
		return err
	}
	return fmt.Errorf("unknown ban action %q", action)
}

func (c *BotClient) AdminChats(ctx context.Context) ([]Entity, error) {
	return nil, ErrUnsupported
}

func convertBotMessage(m *tgbotapi.Message, selfID int64) *Message {
	msg := &Message{
		ID:     m.MessageID,
		ChatID: m.Chat.ID,
		Text:   m.Text,
		Date:   m.Time(),
	}
	if m.Text == "" {
		msg.Text = m.Caption
	}
	if m.From != nil {
		msg.SenderID = m.From.ID
		msg.SenderUsername = m.From.UserName
		msg.Out = m.From.ID == selfID
	} else {
		msg.SenderID = m.Chat.ID
	}
	if m.ReplyToMessage != nil {
		msg.ReplyToID = m.ReplyToMessage.MessageID
	}
	switch {
	case len(m.Photo) > 0:
		msg.HasMedia, msg.MediaKind = true, "photo"
	case m.Video != nil:
		msg.HasMedia, msg.MediaKind = true, "video"
	case m.Document != nil:
		msg.HasMedia, msg.MediaKind = true, "document"
	case m.Audio != nil, m.Voice != nil:
		msg.HasMedia, msg.MediaKind = true, "audio"
	case m.Sticker != nil:
		msg.HasMedia, msg.MediaKind = true, "sticker"
	}
	return msg
}

func botFileID(m *tgbotapi.Message) string {
	switch {
	case len(m.Photo) > 0:
		return m.Photo[len(m.Photo)-1].FileID
	case m.Video != nil:
		return m.Video.FileID
	case m.Document != nil:
		return m.Document.FileID
	case m.Audio != nil:
		return m.Audio.FileID
	case m.Voice != nil:
		return m.Voice.FileID
	case m.Sticker != nil:
		return m.Sticker.FileID
	}
	return ""
}

type recentEntry struct {
	msg    *Message
	fileID string
}

// recentMessages remembers the last n messages seen by the bot, since the
// Bot API has no way to fetch a message by id.
type recentMessages struct {
	mu    sync.Mutex
	max   int
	order []string
	byKey map[string]recentEntry
}

func newRecentMessages(max int) *recentMessages {
	return &recentMessages{max: max, byKey: make(map[string]recentEntry)}
}

func recentKey(chat int64, id int) string {
	return strconv.FormatInt(chat, 10) + ":" + strconv.Itoa(id)
}

func (r *recentMessages) put(m *Message, fileID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k := recentKey(m.ChatID, m.ID)
	if _, ok := r.byKey[k]; !ok {
		r.order = append(r.order, k)
	}
	r.byKey[k] = recentEntry{msg: m, fileID: fileID}
	for len(r.order) > r.max {
		delete(r.byKey, r.order[0])
		r.order = r.order[1:]
	}
}

func (r *recentMessages) get(chat int64, id int) (*Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[recentKey(chat, id)]
	return e.msg, ok
}

func (r *recentMessages) fileID(chat int64, id int) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.byKey[recentKey(chat, id)]
	return e.fileID, ok && e.fileID != ""
}
