package plugins

import (
	"context"
	"strings"

	"github.com/coopco/telebox/internal/telegram"
)

// Help lists plugins and shows command usage.
type Help struct {
	reg *Registry
}

func NewHelp(reg *Registry) *Help {
	return &Help{reg: reg}
}

func (h *Help) Name() string        { return "help" }
func (h *Help) Description() string { return "列出插件与命令用法" }

func (h *Help) Commands() []Command {
	return []Command{{
		Name:    "help",
		Summary: "查看帮助",
		Usage:   []string{"help", "help <命令>"},
		Handler: h.handle,
	}}
}

func (h *Help) handle(ctx context.Context, c *Context) error {
	if name := strings.TrimLeft(c.Arg(0), ".。/"); name != "" {
		cmd, p, ok := h.reg.Lookup(name)
		if !ok {
			return usagef("未知命令: %s", name)
		}
		return c.Edit(ctx, formatUsage(c.Prefix, cmd)+"\n\n<i>"+telegram.EscapeHTML(p.Description())+"</i>")
	}

	var b strings.Builder
	b.WriteString("<b>📦 插件列表</b>\n")
	for _, p := range h.reg.Plugins() {
		names := make([]string, 0, len(p.Commands()))
		for _, cmd := range p.Commands() {
			names = append(names, telegram.Code(c.Prefix+cmd.Name))
		}
		b.WriteString("\n• " + telegram.Bold(p.Name()) + " " + strings.Join(names, " "))
		if d := p.Description(); d != "" {
			b.WriteString("\n  " + telegram.EscapeHTML(d))
		}
	}
	b.WriteString("\n\n使用 " + telegram.Code(c.Prefix+"help <命令>") + " 查看用法")
	return c.Edit(ctx, b.String())
}
