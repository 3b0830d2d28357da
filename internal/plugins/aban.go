package plugins

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coopco/telebox/internal/banlog"
	"github.com/coopco/telebox/internal/telegram"
)

const (
	sweepDelay     = 2 * time.Second
	actionSuperBan = "sb"
)

var banActionNames = map[string]telegram.BanAction{
	"ban":    telegram.ActionBan,
	"unban":  telegram.ActionUnban,
	"mute":   telegram.ActionMute,
	"unmute": telegram.ActionUnmute,
	"kick":   telegram.ActionKick,
}

var banActionLabels = map[telegram.BanAction]string{
	telegram.ActionBan:    "封禁",
	telegram.ActionUnban:  "解封",
	telegram.ActionMute:   "禁言",
	telegram.ActionUnmute: "解除禁言",
	telegram.ActionKick:   "踢出",
}

// Aban applies admin actions to users and logs them.
type Aban struct {
	deps  *Deps
	path  string
	delay time.Duration

	mu  sync.Mutex
	log *banlog.Store
}

func NewAban(d *Deps) *Aban {
	return &Aban{
		deps:  d,
		path:  filepath.Join(d.PluginDir("aban"), "actions.db"),
		delay: sweepDelay,
	}
}

func (a *Aban) Name() string { return "aban" }
func (a *Aban) Description() string {
	return "封禁、禁言、踢出用户，支持在所有管理的群组中批量封禁"
}

func (a *Aban) Commands() []Command {
	return []Command{{
		Name:    "aban",
		Summary: "管理操作",
		Usage: []string{
			"aban ban|unban|mute|unmute|kick [用户] [原因]",
			"aban sb [用户] [原因]",
			"aban log [用户]",
		},
		Handler: a.handle,
	}}
}

func (a *Aban) store() (*banlog.Store, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.log == nil {
		s, err := banlog.Open(a.path)
		if err != nil {
			return nil, err
		}
		a.log = s
	}
	return a.log, nil
}

// Stop closes the action log.
func (a *Aban) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.log == nil {
		return nil
	}
	err := a.log.Close()
	a.log = nil
	return err
}

func (a *Aban) handle(ctx context.Context, c *Context) error {
	sub := strings.ToLower(c.Arg(0))
	if action, ok := banActionNames[sub]; ok {
		return a.single(ctx, c, action)
	}
	switch sub {
	case actionSuperBan:
		return a.superBan(ctx, c)
	case "log":
		return a.showLog(ctx, c)
	case "", "help":
		return errUsage
	default:
		return usagef("未知子命令: %s", sub)
	}
}

func looksLikeUser(s string) bool {
	if strings.HasPrefix(s, "@") || strings.Contains(s, "t.me/") {
		return true
	}
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}

// target picks the user from the arguments, or from the replied message
// when the first argument is not a user reference. It returns the user and
// the reason text.
func (a *Aban) target(ctx context.Context, c *Context) (int64, string, error) {
	if arg := c.Arg(1); arg != "" && looksLikeUser(arg) {
		id, err := a.deps.resolve(ctx, arg)
		if err != nil {
			return 0, "", err
		}
		if id <= 0 {
			return 0, "", fmt.Errorf("%s 不是用户", arg)
		}
		return id, c.Rest(2), nil
	}
	replied, err := c.Replied(ctx)
	if err != nil {
		return 0, "", err
	}
	if replied == nil {
		return 0, "", usagef("请指定用户或回复其消息")
	}
	if replied.SenderID <= 0 {
		return 0, "", fmt.Errorf("被回复的消息不是用户发送的")
	}
	return replied.SenderID, c.Rest(1), nil
}

func (a *Aban) apply(ctx context.Context, chat, user int64, action telegram.BanAction) error {
	return a.deps.retry(ctx, func() error {
		return a.deps.Client.EditBanned(ctx, chat, user, action, time.Time{})
	})
}

func (a *Aban) record(ctx context.Context, r banlog.Record) {
	store, err := a.store()
	if err == nil {
		r.CreatedAt = a.deps.now()
		_, err = store.Add(ctx, r)
	}
	if err != nil {
		slog.Warn("aban: record action", "action", r.Action, "user", r.UserID, "error", err)
	}
}

func (a *Aban) chatTitle(ctx context.Context, chat int64) string {
	if a.deps.Cache == nil {
		return ""
	}
	ent, err := a.deps.Cache.Resolve(ctx, strconv.FormatInt(chat, 10))
	if err != nil {
		return ""
	}
	return ent.Title
}

func (a *Aban) single(ctx context.Context, c *Context, action telegram.BanAction) error {
	user, reason, err := a.target(ctx, c)
	if err != nil {
		return err
	}
	chat := c.Msg.ChatID
	err = a.apply(ctx, chat, user, action)
	rec := banlog.Record{
		Action:    string(action),
		ChatID:    chat,
		ChatTitle: a.chatTitle(ctx, chat),
		UserID:    user,
		Reason:    reason,
		OK:        err == nil,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	a.record(ctx, rec)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("✅ 已%s用户 %s", banActionLabels[action], telegram.Code(strconv.FormatInt(user, 10)))
	if reason != "" {
		msg += "\n原因: " + telegram.EscapeHTML(reason)
	}
	return c.Edit(ctx, msg)
}

// superBan bans the user in every group where the account is admin, one
// group per limiter tick. Failures in single groups are collected.
func (a *Aban) superBan(ctx context.Context, c *Context) error {
	user, reason, err := a.target(ctx, c)
	if err != nil {
		return err
	}
	var chats []telegram.Entity
	err = a.deps.retry(ctx, func() (err error) {
		chats, err = a.deps.Client.AdminChats(ctx)
		return err
	})
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		return fmt.Errorf("没有找到具有封禁权限的群组")
	}
	if err := c.Editf(ctx, "⏳ 正在 %d 个群组中封禁 %s…", len(chats), telegram.Code(strconv.FormatInt(user, 10))); err != nil {
		return err
	}

	limit := rate.Inf
	if a.delay > 0 {
		limit = rate.Every(a.delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	ok := 0
	var failures []string
	for _, ch := range chats {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}
		err := a.apply(ctx, ch.ID, user, telegram.ActionBan)
		rec := banlog.Record{
			Action:    actionSuperBan,
			ChatID:    ch.ID,
			ChatTitle: ch.Title,
			UserID:    user,
			Reason:    reason,
			OK:        err == nil,
		}
		if err != nil {
			rec.Error = err.Error()
			failures = append(failures, telegram.EscapeHTML(ch.Title)+": "+telegram.EscapeHTML(telegram.Describe(err)))
		} else {
			ok++
		}
		a.record(ctx, rec)
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("<b>🔨 全局封禁</b> %s\n成功 %d / 失败 %d", telegram.Code(strconv.FormatInt(user, 10)), ok, len(failures)))
	if reason != "" {
		b.WriteString("\n原因: " + telegram.EscapeHTML(reason))
	}
	for _, f := range failures {
		b.WriteString("\n• " + f)
	}
	return c.Edit(ctx, b.String())
}

func (a *Aban) showLog(ctx context.Context, c *Context) error {
	var q banlog.Query
	if arg := c.Arg(1); arg != "" {
		id, err := a.deps.resolve(ctx, arg)
		if err != nil {
			return err
		}
		q.UserID = id
	}
	store, err := a.store()
	if err != nil {
		return err
	}
	recs, err := store.List(ctx, q)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("<b>📜 操作记录</b>")
	if q.UserID != 0 {
		okN, failN, err := store.Count(ctx, q.UserID)
		if err != nil {
			return err
		}
		b.WriteString(fmt.Sprintf(" %s (成功 %d / 失败 %d)", telegram.Code(strconv.FormatInt(q.UserID, 10)), okN, failN))
	}
	if len(recs) == 0 {
		b.WriteString("\n\n暂无记录")
		return c.Edit(ctx, b.String())
	}
	b.WriteString("\n")
	for _, r := range recs {
		mark := "✅"
		if !r.OK {
			mark = "❌"
		}
		chat := r.ChatTitle
		if chat == "" {
			chat = strconv.FormatInt(r.ChatID, 10)
		}
		b.WriteString(fmt.Sprintf("\n%s %s %s %s @ %s", mark, r.CreatedAt.Format(timeLayout), r.Action,
			telegram.Code(strconv.FormatInt(r.UserID, 10)), telegram.EscapeHTML(chat)))
		if r.Reason != "" {
			b.WriteString(" · " + telegram.EscapeHTML(r.Reason))
		}
	}
	return c.Edit(ctx, b.String())
}
