package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tg "github.com/amarnathcjd/gogram/telegram"
)

// UserConfig configures the MTProto user-account adapter.
type UserConfig struct {
	APIID   int
	APIHash string
	Phone   string
	Session string
}

// UserClient implements Client for a logged-in user account on top of gogram.
type UserClient struct {
	cl    *tg.Client
	phone string
	self  Entity
}

// NewUserClient creates (but does not connect) a user-account client.
func NewUserClient(cfg UserConfig) (*UserClient, error) {
	if cfg.APIID == 0 || cfg.APIHash == "" {
		return nil, fmt.Errorf("telegram: apiId and apiHash are required for user mode")
	}
	cl, err := tg.NewClient(tg.ClientConfig{
		AppID:   int32(cfg.APIID),
		AppHash: cfg.APIHash,
		Session: cfg.Session,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: gogram init: %w", err)
	}
	return &UserClient{cl: cl, phone: cfg.Phone}, nil
}

// Start connects and, when the session is new, runs the interactive login.
func (c *UserClient) Start(ctx context.Context) error {
	if err := c.cl.Start(); err != nil {
		return fmt.Errorf("telegram: login: %w", err)
	}
	me, err := c.cl.GetMe()
	if err != nil {
		return fmt.Errorf("telegram: get me: %w", err)
	}
	c.self = userEntity(me)
	slog.Info("telegram: logged in", "user", c.self.Display(), "id", c.self.ID)
	return nil
}

func (c *UserClient) Stop() error {
	return c.cl.Stop()
}

func (c *UserClient) Self(ctx context.Context) (Entity, error) {
	if c.self.ID != 0 {
		return c.self, nil
	}
	me, err := c.cl.GetMe()
	if err != nil {
		return Entity{}, err
	}
	c.self = userEntity(me)
	return c.self, nil
}

func (c *UserClient) OnMessage(fn func(*Message)) {
	c.cl.On(tg.OnMessage, func(m *tg.NewMessage) error {
		if msg := convertNewMessage(m, c.self.ID); msg != nil {
			fn(msg)
		}
		return nil
	})
}

func sendOpts(opts *SendOptions) *tg.SendOptions {
	o := &tg.SendOptions{}
	if opts == nil {
		return o
	}
	if opts.HTML {
		o.ParseMode = tg.HTML
	}
	o.ReplyID = int32(opts.ReplyTo)
	o.LinkPreview = !opts.NoPreview
	return o
}

func (c *UserClient) SendMessage(ctx context.Context, chat int64, text string, opts *SendOptions) (*Message, error) {
	m, err := c.cl.SendMessage(chat, text, sendOpts(opts))
	if err != nil {
		return nil, err
	}
	return convertNewMessage(m, c.self.ID), nil
}

func (c *UserClient) EditMessage(ctx context.Context, chat int64, id int, text string, opts *SendOptions) error {
	_, err := c.cl.EditMessage(chat, int32(id), text, sendOpts(opts))
	return err
}

func (c *UserClient) DeleteMessages(ctx context.Context, chat int64, ids []int) error {
	_, err := c.cl.DeleteMessages(chat, toInt32s(ids))
	return err
}

func (c *UserClient) PinMessage(ctx context.Context, chat int64, id int) error {
	_, err := c.cl.PinMessage(chat, int32(id))
	return err
}

func (c *UserClient) UnpinMessage(ctx context.Context, chat int64, id int) error {
	_, err := c.cl.UnpinMessage(chat, int32(id))
	return err
}

func (c *UserClient) ForwardMessages(ctx context.Context, to, from int64, ids []int) error {
	_, err := c.cl.Forward(to, from, toInt32s(ids))
	return err
}

func (c *UserClient) CopyMessage(ctx context.Context, to, from int64, id int) error {
	_, err := c.cl.Forward(to, from, []int32{int32(id)}, &tg.ForwardOptions{HideAuthor: true})
	return err
}

func (c *UserClient) GetMessages(ctx context.Context, chat int64, ids []int) ([]*Message, error) {
	msgs, err := c.cl.GetMessages(chat, &tg.SearchOption{IDs: toInt32s(ids)})
	if err != nil {
		return nil, err
	}
	out := make([]*Message, 0, len(msgs))
	for i := range msgs {
		if m := convertNewMessage(&msgs[i], c.self.ID); m != nil {
			out = append(out, m)
		}
	}
	return out, nil
}

func (c *UserClient) DownloadMedia(ctx context.Context, chat int64, id int, dest string) (string, error) {
	msgs, err := c.cl.GetMessages(chat, &tg.SearchOption{IDs: []int32{int32(id)}})
	if err != nil {
		return "", err
	}
	if len(msgs) == 0 || !msgs[0].IsMedia() {
		return "", fmt.Errorf("message %d in %d has no media", id, chat)
	}
	return msgs[0].Download(&tg.DownloadOptions{FileName: dest})
}

func (c *UserClient) SendFile(ctx context.Context, chat int64, path string, opts *SendOptions) (*Message, error) {
	mo := &tg.MediaOptions{ForceDocument: true}
	if opts != nil {
		mo.Caption = opts.Caption
		mo.FileName = opts.FileName
		if opts.HTML {
			mo.ParseMode = tg.HTML
		}
	}
	m, err := c.cl.SendMedia(chat, path, mo)
	if err != nil {
		return nil, err
	}
	return convertNewMessage(m, c.self.ID), nil
}

func (c *UserClient) ResolvePeer(ctx context.Context, ref string) (Entity, error) {
	p, err := ParsePeerRef(ref)
	if err != nil {
		return Entity{}, err
	}
	switch {
	case p.Self:
		return c.Self(ctx)
	case p.Username != "":
		obj, err := c.cl.ResolveUsername(p.Username)
		if err != nil {
			return Entity{}, err
		}
		return entityFromObject(obj)
	}

	raw, typ := SplitMarkedID(p.ID)
	switch typ {
	case EntityUser:
		peer, err := c.cl.ResolvePeer(p.ID)
		if err != nil {
			return Entity{}, err
		}
		ip, ok := peer.(*tg.InputPeerUser)
		if !ok {
			return Entity{}, fmt.Errorf("PEER_ID_INVALID: %d is not a user", p.ID)
		}
		users, err := c.cl.UsersGetUsers([]tg.InputUser{&tg.InputUserObj{UserID: ip.UserID, AccessHash: ip.AccessHash}})
		if err != nil {
			return Entity{}, err
		}
		if len(users) == 0 {
			return Entity{}, fmt.Errorf("PEER_ID_INVALID: user %d not found", p.ID)
		}
		return entityFromObject(users[0])
	case EntityChannel:
		peer, err := c.cl.ResolvePeer(p.ID)
		if err != nil {
			return Entity{}, err
		}
		ip, ok := peer.(*tg.InputPeerChannel)
		if !ok {
			return Entity{}, fmt.Errorf("PEER_ID_INVALID: %d is not a channel", p.ID)
		}
		res, err := c.cl.ChannelsGetChannels([]tg.InputChannel{&tg.InputChannelObj{ChannelID: ip.ChannelID, AccessHash: ip.AccessHash}})
		if err != nil {
			return Entity{}, err
		}
		return firstChat(res, raw)
	default:
		res, err := c.cl.MessagesGetChats([]int64{raw})
		if err != nil {
			return Entity{}, err
		}
		return firstChat(res, raw)
	}
}

func (c *UserClient) EditBanned(ctx context.Context, chat, user int64, action BanAction, until time.Time) error {
	if action == ActionKick {
		_, err := c.cl.KickParticipant(chat, user)
		return err
	}
	opts, err := bannedOptions(action, until)
	if err != nil {
		return err
	}
	_, err = c.cl.EditBanned(chat, user, opts)
	return err
}

// bannedOptions maps a ban action to gogram's options. A zero until means
// the restriction never expires.
func bannedOptions(action BanAction, until time.Time) (*tg.BannedOptions, error) {
	opts := &tg.BannedOptions{Rights: &tg.ChatBannedRights{}}
	switch action {
	case ActionBan:
		opts.Ban = true
	case ActionUnban:
		opts.Unban = true
	case ActionMute:
		opts.Mute = true
	case ActionUnmute:
		opts.Unmute = true
	default:
		return nil, fmt.Errorf("unknown ban action %q", action)
	}
	if !until.IsZero() {
		opts.Rights.UntilDate = int32(until.Unix())
	}
	return opts, nil
}

func (c *UserClient) AdminChats(ctx context.Context) ([]Entity, error) {
	res, err := c.cl.MessagesGetDialogs(&tg.MessagesGetDialogsParams{
		OffsetPeer: &tg.InputPeerEmpty{},
		Limit:      500,
	})
	if err != nil {
		return nil, err
	}
	var chats []tg.Chat
	switch d := res.(type) {
	case *tg.MessagesDialogsObj:
		chats = d.Chats
	case *tg.MessagesDialogsSlice:
		chats = d.Chats
	}
	var out []Entity
	for _, ch := range chats {
		ent, err := entityFromObject(ch)
		if err != nil || !ent.IsAdmin {
			continue
		}
		out = append(out, ent)
	}
	return out, nil
}

func firstChat(res tg.MessagesChats, raw int64) (Entity, error) {
	var chats []tg.Chat
	switch r := res.(type) {
	case *tg.MessagesChatsObj:
		chats = r.Chats
	case *tg.MessagesChatsSlice:
		chats = r.Chats
	}
	if len(chats) == 0 {
		return Entity{}, fmt.Errorf("PEER_ID_INVALID: chat %d not found", raw)
	}
	return entityFromObject(chats[0])
}

func entityFromObject(obj any) (Entity, error) {
	switch v := obj.(type) {
	case *tg.UserObj:
		return userEntity(v), nil
	case *tg.Channel:
		admin := v.Creator || (v.AdminRights != nil && v.AdminRights.BanUsers)
		return Entity{
			ID:       MarkedID(v.ID, EntityChannel),
			Type:     EntityChannel,
			Title:    v.Title,
			Username: v.Username,
			IsAdmin:  admin,
		}, nil
	case *tg.ChatObj:
		admin := v.Creator || (v.AdminRights != nil && v.AdminRights.BanUsers)
		return Entity{
			ID:      MarkedID(v.ID, EntityChat),
			Type:    EntityChat,
			Title:   v.Title,
			IsAdmin: admin && !v.Deactivated,
		}, nil
	default:
		return Entity{}, fmt.Errorf("unsupported peer type %T", obj)
	}
}

func userEntity(u *tg.UserObj) Entity {
	return Entity{
		ID:       u.ID,
		Type:     EntityUser,
		Title:    strings.TrimSpace(u.FirstName + " " + u.LastName),
		Username: u.Username,
	}
}

func peerToID(p tg.Peer) int64 {
	switch v := p.(type) {
	case *tg.PeerUser:
		return v.UserID
	case *tg.PeerChat:
		return MarkedID(v.ChatID, EntityChat)
	case *tg.PeerChannel:
		return MarkedID(v.ChannelID, EntityChannel)
	}
	return 0
}

func convertNewMessage(m *tg.NewMessage, selfID int64) *Message {
	if m == nil || m.Message == nil {
		return nil
	}
	mo := m.Message
	msg := &Message{
		ID:     int(mo.ID),
		ChatID: peerToID(mo.PeerID),
		Text:   mo.Message,
		Out:    mo.Out,
		Date:   time.Unix(int64(mo.Date), 0),
	}
	switch {
	case mo.FromID != nil:
		msg.SenderID = peerToID(mo.FromID)
	case mo.Out:
		msg.SenderID = selfID
	default:
		msg.SenderID = msg.ChatID
	}
	if h, ok := mo.ReplyTo.(*tg.MessageReplyHeaderObj); ok {
		msg.ReplyToID = int(h.ReplyToMsgID)
	}
	switch mo.Media.(type) {
	case nil, *tg.MessageMediaEmpty, *tg.MessageMediaWebPage:
	case *tg.MessageMediaPhoto:
		msg.HasMedia, msg.MediaKind = true, "photo"
	case *tg.MessageMediaDocument:
		msg.HasMedia, msg.MediaKind = true, "document"
	default:
		msg.HasMedia, msg.MediaKind = true, "other"
	}
	return msg
}

func toInt32s(ids []int) []int32 {
	out := make([]int32, len(ids))
	for i, id := range ids {
		out[i] = int32(id)
	}
	return out
}
