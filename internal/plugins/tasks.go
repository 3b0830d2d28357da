package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/telegram"
)

const timeLayout = "2006-01-02 15:04:05"

// parseCronArg takes a cron expression off the front of raw. Accepted
// forms: a quoted expression, a descriptor ("@daily", "@every 1h") or
// six bare fields.
func parseCronArg(raw string) (expr, rest string, err error) {
	raw = strings.TrimLeftFunc(raw, unicode.IsSpace)
	if raw == "" {
		return "", "", usagef("缺少 cron 表达式")
	}
	switch q := raw[0]; {
	case q == '"' || q == '\'':
		end := strings.IndexByte(raw[1:], q)
		if end < 0 {
			return "", "", usagef("cron 表达式缺少结束引号")
		}
		expr, rest = raw[1:end+1], raw[end+2:]
	case q == '@':
		n := 1
		if strings.HasPrefix(raw, "@every") {
			n = 2
		}
		expr, rest = takeFields(raw, n)
	default:
		expr, rest = takeFields(raw, 6)
	}
	expr = strings.TrimSpace(expr)
	if err := cron.Validate(expr); err != nil {
		return "", "", err
	}
	return expr, strings.TrimSpace(rest), nil
}

func takeFields(s string, n int) (head, rest string) {
	fields := strings.Fields(s)
	if len(fields) < n {
		return strings.Join(fields, " "), ""
	}
	return strings.Join(fields[:n], " "), skipFields(s, n)
}

// splitRemark separates a trailing " | remark".
func splitRemark(s string) (body, remark string) {
	i := strings.LastIndex(s, " | ")
	if i < 0 {
		return strings.TrimSpace(s), ""
	}
	return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+3:])
}

// describeTaskState renders the schedule and bookkeeping lines of t.
// Disabled tasks have no next run line.
func describeTaskState(svc *cron.Service, t cron.Task) string {
	var b strings.Builder
	b.WriteString("\n  cron: " + telegram.Code(t.Cron))
	if next, ok := svc.Next(t); ok {
		b.WriteString("\n  下次: " + next.Format(timeLayout))
	}
	if !t.LastRun.IsZero() {
		b.WriteString("\n  上次: " + t.LastRun.Format(timeLayout))
		if t.LastError != "" {
			b.WriteString(" ❌ " + telegram.EscapeHTML(telegram.Truncate(t.LastError, 200)))
		} else if t.LastResult != "" {
			b.WriteString(" ✅ " + telegram.EscapeHTML(telegram.Truncate(t.LastResult, 200)))
		}
	}
	if t.Remark != "" {
		b.WriteString("\n  备注: " + telegram.EscapeHTML(t.Remark))
	}
	return b.String()
}

// renderTaskGroups lists tasks split into enabled and disabled groups.
func renderTaskGroups(title string, svc *cron.Service, tasks []cron.Task, line func(cron.Task) string) string {
	var on, off []cron.Task
	for _, t := range tasks {
		if t.Disabled {
			off = append(off, t)
		} else {
			on = append(on, t)
		}
	}
	var b strings.Builder
	b.WriteString(telegram.Bold(title))
	if len(tasks) == 0 {
		b.WriteString("\n\n暂无任务")
		return b.String()
	}
	group := func(name string, ts []cron.Task) {
		b.WriteString(fmt.Sprintf("\n\n<b>%s (%d)</b>", name, len(ts)))
		for _, t := range ts {
			b.WriteString("\n" + line(t) + describeTaskState(svc, t))
		}
	}
	group("✅ 已启用", on)
	group("⏸ 已禁用", off)
	return b.String()
}

func taskIDArg(c *Context, i int) (string, error) {
	id := strings.TrimPrefix(c.Arg(i), "#")
	if id == "" {
		return "", usagef("缺少任务 ID")
	}
	return id, nil
}

func describeTaskErr(id string, err error) error {
	if errors.Is(err, cron.ErrNotFound) {
		return fmt.Errorf("任务 #%s 不存在", id)
	}
	return err
}

func removeTaskCmd(ctx context.Context, c *Context, svc *cron.Service) error {
	id, err := taskIDArg(c, 1)
	if err != nil {
		return err
	}
	if err := svc.Remove(id); err != nil {
		return describeTaskErr(id, err)
	}
	return c.Editf(ctx, "🗑 已删除任务 #%s", telegram.EscapeHTML(id))
}

func toggleTaskCmd(ctx context.Context, c *Context, svc *cron.Service, enabled bool) error {
	id, err := taskIDArg(c, 1)
	if err != nil {
		return err
	}
	t, err := svc.SetEnabled(id, enabled)
	if err != nil {
		return describeTaskErr(id, err)
	}
	if !enabled {
		return c.Editf(ctx, "⏸ 已禁用任务 #%s", telegram.EscapeHTML(t.ID))
	}
	msg := fmt.Sprintf("▶️ 已启用任务 #%s", telegram.EscapeHTML(t.ID))
	if next, ok := svc.Next(t); ok {
		msg += "\n下次执行: " + next.Format(timeLayout)
	}
	return c.Edit(ctx, msg)
}
