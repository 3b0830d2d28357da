package plugins

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/coopco/telebox/internal/telegram"
)

// Context is one command invocation.
type Context struct {
	Msg     *telegram.Message
	Command string
	// Args are the whitespace separated words after the command name.
	Args []string
	// Raw is the text after the command name with its line breaks intact.
	Raw      string
	Prefix   string
	Injected bool

	client telegram.Client
	reply  *telegram.Message
}

// NewContext parses text for cmd. Exposed for plugins that build their own
// contexts in tests.
func NewContext(client telegram.Client, msg *telegram.Message, prefix, command, raw string) *Context {
	return &Context{
		Msg:     msg,
		Command: command,
		Args:    strings.Fields(raw),
		Raw:     strings.TrimSpace(raw),
		Prefix:  prefix,
		client:  client,
	}
}

// Arg returns the i-th argument or "".
func (c *Context) Arg(i int) string {
	if i < 0 || i >= len(c.Args) {
		return ""
	}
	return c.Args[i]
}

// Rest returns the raw text after the first n arguments, keeping the
// spacing and line breaks of what follows.
func (c *Context) Rest(n int) string {
	return skipFields(c.Raw, n)
}

func skipFields(s string, n int) string {
	for i := 0; i < n; i++ {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		idx := strings.IndexFunc(s, unicode.IsSpace)
		if idx < 0 {
			return ""
		}
		s = s[idx:]
	}
	return strings.TrimSpace(s)
}

// Edit shows text (HTML) as the command's result. The invoking message is
// edited when it belongs to the account; otherwise a reply is sent once
// and edited afterwards.
func (c *Context) Edit(ctx context.Context, text string) error {
	text = telegram.Truncate(text, telegram.MaxMessageLen)
	opts := &telegram.SendOptions{HTML: true, NoPreview: true}
	switch {
	case c.Msg.Out || c.Injected:
		return c.client.EditMessage(ctx, c.Msg.ChatID, c.Msg.ID, text, opts)
	case c.reply != nil:
		return c.client.EditMessage(ctx, c.reply.ChatID, c.reply.ID, text, opts)
	}
	opts.ReplyTo = c.Msg.ID
	m, err := c.client.SendMessage(ctx, c.Msg.ChatID, text, opts)
	if err != nil {
		return err
	}
	c.reply = m
	return nil
}

// Editf is Edit with formatting.
func (c *Context) Editf(ctx context.Context, format string, args ...any) error {
	return c.Edit(ctx, fmt.Sprintf(format, args...))
}

// Replied returns the message the invocation replies to, or nil.
func (c *Context) Replied(ctx context.Context) (*telegram.Message, error) {
	if c.Msg.ReplyToID == 0 {
		return nil, nil
	}
	msgs, err := c.client.GetMessages(ctx, c.Msg.ChatID, []int{c.Msg.ReplyToID})
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[0], nil
}
