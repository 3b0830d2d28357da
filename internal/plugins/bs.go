package plugins

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/telegram"
)

const (
	KindBroadcast  = "broadcast"
	broadcastDelay = 3 * time.Second
)

type broadcastPayload struct {
	Chats []int64 `json:"chats"`
	Text  string  `json:"text"`
}

// Broadcast sends one text to several chats on a schedule.
type Broadcast struct {
	deps  *Deps
	tasks *cron.Service
	delay time.Duration
}

func NewBroadcast(d *Deps) *Broadcast {
	b := &Broadcast{deps: d, delay: broadcastDelay}
	b.tasks = d.newTaskService("bs", b.run)
	return b
}

func (b *Broadcast) Name() string        { return "bs" }
func (b *Broadcast) Description() string { return "定时向多个聊天群发消息" }

func (b *Broadcast) Commands() []Command {
	return []Command{{
		Name:    "bs",
		Summary: "定时群发",
		Usage: []string{
			`bs add "<cron>" <chat1,chat2,...> <text>`,
			"bs list",
			"bs run <id>",
			"bs rm|disable|enable <id>",
		},
		Handler: b.handle,
	}}
}

func (b *Broadcast) Start(ctx context.Context) error {
	_, err := b.tasks.Bootstrap()
	return err
}

func (b *Broadcast) Tasks() *cron.Service { return b.tasks }

func (b *Broadcast) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "add", "set":
		return b.add(ctx, c)
	case "list", "ls":
		tasks, err := b.tasks.List(cron.Filter{})
		if err != nil {
			return err
		}
		return c.Edit(ctx, renderTaskGroups("📢 群发任务", b.tasks, tasks, func(t cron.Task) string {
			var p broadcastPayload
			_ = t.Decode(&p)
			return fmt.Sprintf("#%s → %d 个聊天: %s", t.ID, len(p.Chats),
				telegram.Code(telegram.Truncate(p.Text, 40)))
		}))
	case "run":
		id, err := taskIDArg(c, 1)
		if err != nil {
			return err
		}
		if err := c.Editf(ctx, "⏳ 正在执行任务 #%s…", telegram.EscapeHTML(id)); err != nil {
			return err
		}
		t, err := b.tasks.RunNow(id)
		if err != nil {
			return describeTaskErr(id, err)
		}
		if t.LastError != "" {
			return errors.New(t.LastError)
		}
		return c.Editf(ctx, "✅ 任务 #%s: %s", t.ID, telegram.EscapeHTML(t.LastResult))
	case "rm", "del", "delete":
		return removeTaskCmd(ctx, c, b.tasks)
	case "disable":
		return toggleTaskCmd(ctx, c, b.tasks, false)
	case "enable":
		return toggleTaskCmd(ctx, c, b.tasks, true)
	case "", "help":
		return errUsage
	default:
		return usagef("未知子命令: %s", sub)
	}
}

func (b *Broadcast) add(ctx context.Context, c *Context) error {
	expr, rest, err := parseCronArg(c.Rest(1))
	if err != nil {
		return err
	}
	list, text := takeFields(rest, 1)
	if list == "" || text == "" {
		return usagef("需要 <chat1,chat2,...> <text>")
	}
	var chats []int64
	for _, ref := range strings.Split(list, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		id, err := b.deps.resolve(ctx, ref)
		if err != nil {
			return fmt.Errorf("%s: %w", ref, err)
		}
		chats = append(chats, id)
	}
	if len(chats) == 0 {
		return usagef("没有目标聊天")
	}

	t, err := cron.NewTask(KindBroadcast, expr, broadcastPayload{Chats: chats, Text: text})
	if err != nil {
		return err
	}
	t, err = b.tasks.Add(t)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("✅ 已添加群发任务 #%s，%d 个聊天", t.ID, len(chats))
	if next, ok := b.tasks.Next(t); ok {
		msg += "\n下次执行: " + next.Format(timeLayout)
	}
	return c.Edit(ctx, msg)
}

// run sends to each chat in turn. One failing chat does not stop the
// rest; the task only fails when no chat succeeds.
func (b *Broadcast) run(ctx context.Context, t cron.Task) (string, error) {
	var p broadcastPayload
	if err := t.Decode(&p); err != nil {
		return "", err
	}
	ok := 0
	var failed []string
	var lastErr error
	for i, chat := range p.Chats {
		if i > 0 {
			if err := b.deps.pause(ctx, b.delay); err != nil {
				return "", err
			}
		}
		err := b.deps.retry(ctx, func() error {
			_, err := b.deps.Client.SendMessage(ctx, chat, p.Text, nil)
			return err
		})
		if err != nil {
			lastErr = err
			failed = append(failed, strconv.FormatInt(chat, 10))
			continue
		}
		ok++
	}
	summary := fmt.Sprintf("ok %d/%d", ok, len(p.Chats))
	if ok == 0 && lastErr != nil {
		return "", fmt.Errorf("%s: %w", summary, lastErr)
	}
	if len(failed) > 0 {
		summary += " (failed: " + strings.Join(failed, ",") + ")"
	}
	return summary, nil
}
