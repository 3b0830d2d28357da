package plugins

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/telegram"
)

// Task kinds handled by acron.
const (
	KindSend    = "send"
	KindCopy    = "copy"
	KindForward = "forward"
	KindDel     = "del"
	KindPin     = "pin"
	KindUnpin   = "unpin"
	KindCmd     = "cmd"
)

// acronAction is one decoded task variant.
type acronAction interface {
	run(ctx context.Context, d *Deps) (string, error)
	describe() string
}

type sendAction struct {
	Chat int64  `json:"chat"`
	Text string `json:"text"`
}

// relayAction copies or forwards one message.
type relayAction struct {
	From  int64 `json:"from"`
	MsgID int   `json:"msgId"`
	To    int64 `json:"to"`
	copy  bool
}

// msgAction deletes, pins or unpins one message.
type msgAction struct {
	Chat  int64 `json:"chat"`
	MsgID int   `json:"msgId"`
	kind  string
}

type cmdAction struct {
	Chat    int64  `json:"chat"`
	Command string `json:"command"`
}

func (a sendAction) describe() string {
	return "chat=" + telegram.Code(strconv.FormatInt(a.Chat, 10)) +
		" text=" + telegram.Code(telegram.Truncate(a.Text, 40))
}

func (a sendAction) run(ctx context.Context, d *Deps) (string, error) {
	var m *telegram.Message
	err := d.retry(ctx, func() (err error) {
		m, err = d.Client.SendMessage(ctx, a.Chat, a.Text, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("sent #%d", m.ID), nil
}

func (a relayAction) describe() string {
	return fmt.Sprintf("from=%s msgId=%s to=%s",
		telegram.Code(strconv.FormatInt(a.From, 10)),
		telegram.Code(strconv.Itoa(a.MsgID)),
		telegram.Code(strconv.FormatInt(a.To, 10)))
}

func (a relayAction) run(ctx context.Context, d *Deps) (string, error) {
	err := d.retry(ctx, func() error {
		if a.copy {
			return d.Client.CopyMessage(ctx, a.To, a.From, a.MsgID)
		}
		return d.Client.ForwardMessages(ctx, a.To, a.From, []int{a.MsgID})
	})
	if err != nil {
		return "", err
	}
	if a.copy {
		return fmt.Sprintf("copied %d", a.MsgID), nil
	}
	return fmt.Sprintf("forwarded %d", a.MsgID), nil
}

func (a msgAction) describe() string {
	return "chat=" + telegram.Code(strconv.FormatInt(a.Chat, 10)) +
		" msgId=" + telegram.Code(strconv.Itoa(a.MsgID))
}

func (a msgAction) run(ctx context.Context, d *Deps) (string, error) {
	err := d.retry(ctx, func() error {
		switch a.kind {
		case KindDel:
			return d.Client.DeleteMessages(ctx, a.Chat, []int{a.MsgID})
		case KindPin:
			return d.Client.PinMessage(ctx, a.Chat, a.MsgID)
		default:
			return d.Client.UnpinMessage(ctx, a.Chat, a.MsgID)
		}
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s %d", a.kind, a.MsgID), nil
}

func (a cmdAction) describe() string {
	return "chat=" + telegram.Code(strconv.FormatInt(a.Chat, 10)) +
		" cmd=" + telegram.Code(telegram.Truncate(a.Command, 40))
}

// run sends the command text and queues the sent message for dispatch as
// if it had been typed.
func (a cmdAction) run(ctx context.Context, d *Deps) (string, error) {
	if d.Bus == nil {
		return "", fmt.Errorf("message bus unavailable")
	}
	var m *telegram.Message
	err := d.retry(ctx, func() (err error) {
		m, err = d.Client.SendMessage(ctx, a.Chat, a.Command, nil)
		return err
	})
	if err != nil {
		return "", err
	}
	if err := d.Bus.PublishInbound(ctx, bus.InboundMessage{Source: bus.SourceInjected, Message: m}); err != nil {
		return "", err
	}
	return fmt.Sprintf("dispatched #%d", m.ID), nil
}

// decodeAcron returns the variant stored in t.
func decodeAcron(t cron.Task) (acronAction, error) {
	switch t.Kind {
	case KindSend:
		var a sendAction
		if err := t.Decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	case KindCopy, KindForward:
		var a relayAction
		if err := t.Decode(&a); err != nil {
			return nil, err
		}
		a.copy = t.Kind == KindCopy
		return a, nil
	case KindDel, KindPin, KindUnpin:
		var a msgAction
		if err := t.Decode(&a); err != nil {
			return nil, err
		}
		a.kind = t.Kind
		return a, nil
	case KindCmd:
		var a cmdAction
		if err := t.Decode(&a); err != nil {
			return nil, err
		}
		return a, nil
	}
	return nil, fmt.Errorf("unknown task kind %q", t.Kind)
}

// Acron runs Telegram actions on cron schedules.
type Acron struct {
	deps  *Deps
	tasks *cron.Service
}

func NewAcron(d *Deps) *Acron {
	a := &Acron{deps: d}
	a.tasks = d.newTaskService("acron", a.run)
	return a
}

func (a *Acron) Name() string { return "acron" }
func (a *Acron) Description() string {
	return "定时发送、复制、转发、删除、置顶消息或执行命令"
}

func (a *Acron) Commands() []Command {
	return []Command{{
		Name:    "acron",
		Summary: "定时任务",
		Usage: []string{
			`acron set "<cron>" send <chat> <text> [| 备注]`,
			`acron set "<cron>" copy|forward <fromChat> <msgId> <toChat>`,
			`acron set "<cron>" del|pin|unpin <chat> <msgId>`,
			`acron set "<cron>" cmd <chat> <命令>`,
			"acron list [kind]",
			"acron rm|disable|enable <id>",
		},
		Handler: a.handle,
	}}
}

// Start arms the stored tasks.
func (a *Acron) Start(ctx context.Context) error {
	_, err := a.tasks.Bootstrap()
	return err
}

// Tasks exposes the task service.
func (a *Acron) Tasks() *cron.Service { return a.tasks }

func (a *Acron) run(ctx context.Context, t cron.Task) (string, error) {
	act, err := decodeAcron(t)
	if err != nil {
		return "", err
	}
	return act.run(ctx, a.deps)
}

func (a *Acron) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "set", "add":
		return a.set(ctx, c)
	case "list", "ls":
		return a.list(ctx, c)
	case "rm", "del", "delete":
		return removeTaskCmd(ctx, c, a.tasks)
	case "disable":
		return toggleTaskCmd(ctx, c, a.tasks, false)
	case "enable":
		return toggleTaskCmd(ctx, c, a.tasks, true)
	case "", "help":
		return errUsage
	default:
		return usagef("未知子命令: %s", sub)
	}
}

func (a *Acron) set(ctx context.Context, c *Context) error {
	expr, rest, err := parseCronArg(c.Rest(1))
	if err != nil {
		return err
	}
	kind, rest := takeFields(rest, 1)
	kind = strings.ToLower(kind)

	var payload any
	remark := ""
	switch kind {
	case KindSend:
		chatRef, text := takeFields(rest, 1)
		text, remark = splitRemark(text)
		if chatRef == "" || text == "" {
			return usagef("send 需要 <chat> <text>")
		}
		chat, err := a.deps.resolve(ctx, chatRef)
		if err != nil {
			return err
		}
		payload = sendAction{Chat: chat, Text: text}
	case KindCopy, KindForward:
		body, rmk := splitRemark(rest)
		remark = rmk
		f := strings.Fields(body)
		if len(f) != 3 {
			return usagef("%s 需要 <fromChat> <msgId> <toChat>", kind)
		}
		from, err := a.deps.resolve(ctx, f[0])
		if err != nil {
			return err
		}
		id, err := parseMsgID(f[1])
		if err != nil {
			return err
		}
		to, err := a.deps.resolve(ctx, f[2])
		if err != nil {
			return err
		}
		payload = relayAction{From: from, MsgID: id, To: to}
	case KindDel, KindPin, KindUnpin:
		body, rmk := splitRemark(rest)
		remark = rmk
		f := strings.Fields(body)
		if len(f) != 2 {
			return usagef("%s 需要 <chat> <msgId>", kind)
		}
		chat, err := a.deps.resolve(ctx, f[0])
		if err != nil {
			return err
		}
		id, err := parseMsgID(f[1])
		if err != nil {
			return err
		}
		payload = msgAction{Chat: chat, MsgID: id}
	case KindCmd:
		chatRef, command := takeFields(rest, 1)
		if chatRef == "" || command == "" {
			return usagef("cmd 需要 <chat> <命令>")
		}
		chat, err := a.deps.resolve(ctx, chatRef)
		if err != nil {
			return err
		}
		payload = cmdAction{Chat: chat, Command: command}
	case "":
		return usagef("缺少任务类型")
	default:
		return usagef("未知任务类型: %s", kind)
	}

	t, err := cron.NewTask(kind, expr, payload)
	if err != nil {
		return err
	}
	t.Remark = remark
	t, err = a.tasks.Add(t)
	if err != nil {
		return err
	}
	msg := fmt.Sprintf("✅ 已添加任务 #%s (%s)", t.ID, t.Kind)
	if next, ok := a.tasks.Next(t); ok {
		msg += "\n下次执行: " + next.Format(timeLayout)
	}
	return c.Edit(ctx, msg)
}

func (a *Acron) list(ctx context.Context, c *Context) error {
	tasks, err := a.tasks.List(cron.Filter{Kind: strings.ToLower(c.Arg(1))})
	if err != nil {
		return err
	}
	return c.Edit(ctx, renderTaskGroups("⏰ 定时任务", a.tasks, tasks, func(t cron.Task) string {
		line := fmt.Sprintf("#%s <b>%s</b>", t.ID, t.Kind)
		if act, err := decodeAcron(t); err == nil {
			line += " " + act.describe()
		}
		return line
	}))
}

func parseMsgID(s string) (int, error) {
	if _, id, err := telegram.ParseMessageLink(s); err == nil && id > 0 {
		return id, nil
	}
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, usagef("无效的消息 ID: %s", s)
	}
	return id, nil
}
