// Package plugins holds the command framework and every built-in plugin.
//
// A plugin exposes one or more commands. The dispatcher strips the command
// prefix from messages written by the account owner, looks the command up
// in the Registry and runs its handler with a Context that edits the
// invoking message with the result.
package plugins

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/coopco/telebox/internal/telegram"
)

// Handler runs one command invocation.
type Handler func(ctx context.Context, c *Context) error

// Command is a single prefixed command such as ".acron".
type Command struct {
	Name    string
	Summary string
	// Usage lines, without the prefix, e.g. "acron rm <id>".
	Usage   []string
	Handler Handler
}

// Plugin is a named group of commands.
type Plugin interface {
	Name() string
	Description() string
	Commands() []Command
}

// Starter is implemented by plugins with work to do once the client is
// connected, such as re-arming scheduled tasks.
type Starter interface {
	Start(ctx context.Context) error
}

// Watcher is implemented by plugins that look at every incoming message
// that is not a command.
type Watcher interface {
	Watch(ctx context.Context, msg *telegram.Message)
}

// Stopper is implemented by plugins holding resources.
type Stopper interface {
	Stop() error
}

// UsageError asks the dispatcher to show the command's usage.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	if e.Reason == "" {
		return "参数错误"
	}
	return e.Reason
}

func usagef(format string, args ...any) error {
	return &UsageError{Reason: fmt.Sprintf(format, args...)}
}

var errUsage = &UsageError{}

// IsUsage reports whether err is a UsageError.
func IsUsage(err error) bool {
	var ue *UsageError
	return errors.As(err, &ue)
}

// formatUsage renders usage lines with the active prefix.
func formatUsage(prefix string, cmd Command) string {
	var b strings.Builder
	b.WriteString("<b>" + telegram.EscapeHTML(prefix+cmd.Name) + "</b>")
	if cmd.Summary != "" {
		b.WriteString(" " + telegram.EscapeHTML(cmd.Summary))
	}
	for _, u := range cmd.Usage {
		b.WriteString("\n<code>" + telegram.EscapeHTML(prefix+u) + "</code>")
	}
	return b.String()
}
