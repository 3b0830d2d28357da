package plugins

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/channels"
	"github.com/coopco/telebox/internal/jsonfile"
	"github.com/coopco/telebox/internal/telegram"
)

// Rule filters.
const (
	FilterAll   = "all"
	FilterText  = "text"
	FilterMedia = "media"
	FilterPhoto = "photo"
)

const (
	ModeForward = "forward"
	ModeCopy    = "copy"

	backfillDelay = time.Second
	backfillBatch = 50
	backfillMax   = 5000
)

var errSkipped = errors.New("skipped")

// Rule forwards new messages of one chat to a target. Target is either a
// canonical chat id or "<relay>:<channel>".
type Rule struct {
	ID        string    `json:"id"`
	Source    int64     `json:"source"`
	Target    string    `json:"target"`
	Mode      string    `json:"mode"`
	Filter    string    `json:"filter"`
	Paused    bool      `json:"paused"`
	Count     int       `json:"count"`
	LastError string    `json:"lastError,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func (r Rule) matches(m *telegram.Message) bool {
	switch r.Filter {
	case FilterText:
		return m.Text != "" && !m.HasMedia
	case FilterMedia:
		return m.HasMedia
	case FilterPhoto:
		return m.MediaKind == "photo"
	default:
		return true
	}
}

type ruleFile struct {
	Seq   int    `json:"seq"`
	Rules []Rule `json:"rules"`
}

// RuleStore keeps shift rules in memory, backed by a JSON file.
type RuleStore struct {
	path string

	mu     sync.Mutex
	loaded bool
	data   ruleFile
}

func NewRuleStore(path string) *RuleStore {
	return &RuleStore{path: path}
}

func (s *RuleStore) loadLocked() error {
	if s.loaded {
		return nil
	}
	if _, err := jsonfile.Load(s.path, &s.data); err != nil {
		return fmt.Errorf("shift rules: %w", err)
	}
	s.loaded = true
	return nil
}

func (s *RuleStore) Add(r Rule) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Rule{}, err
	}
	s.data.Seq++
	r.ID = strconv.Itoa(s.data.Seq)
	next := s.data
	next.Rules = append(append([]Rule(nil), s.data.Rules...), r)
	if err := jsonfile.Save(s.path, next); err != nil {
		s.data.Seq--
		return Rule{}, err
	}
	s.data = next
	return r, nil
}

func (s *RuleStore) Update(id string, fn func(*Rule)) (Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return Rule{}, err
	}
	for i := range s.data.Rules {
		if s.data.Rules[i].ID != id {
			continue
		}
		r := s.data.Rules[i]
		fn(&r)
		r.ID = id
		next := s.data
		next.Rules = append([]Rule(nil), s.data.Rules...)
		next.Rules[i] = r
		if err := jsonfile.Save(s.path, next); err != nil {
			return Rule{}, err
		}
		s.data = next
		return r, nil
	}
	return Rule{}, fmt.Errorf("规则 #%s 不存在", id)
}

func (s *RuleStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return err
	}
	for i, r := range s.data.Rules {
		if r.ID != id {
			continue
		}
		next := s.data
		next.Rules = append(append([]Rule(nil), s.data.Rules[:i]...), s.data.Rules[i+1:]...)
		if err := jsonfile.Save(s.path, next); err != nil {
			return err
		}
		s.data = next
		return nil
	}
	return fmt.Errorf("规则 #%s 不存在", id)
}

func (s *RuleStore) List() ([]Rule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.loadLocked(); err != nil {
		return nil, err
	}
	return append([]Rule(nil), s.data.Rules...), nil
}

// Shift forwards messages between chats by rule and backfills ranges.
type Shift struct {
	deps  *Deps
	rules *RuleStore
	delay time.Duration
}

func NewShift(d *Deps) *Shift {
	return &Shift{
		deps:  d,
		rules: NewRuleStore(filepath.Join(d.PluginDir("shift"), "rules.json")),
		delay: backfillDelay,
	}
}

func (s *Shift) Name() string { return "shift" }
func (s *Shift) Description() string {
	return "按规则自动转发消息，支持转发到 Discord/Slack 与历史补发"
}

func (s *Shift) Commands() []Command {
	return []Command{{
		Name:    "shift",
		Summary: "自动转发",
		Usage: []string{
			"shift set <源> <目标> [copy] [text|media|photo]",
			"shift del|pause|resume <id>",
			"shift list",
			"shift backup <源> <目标> <起始ID> <结束ID>",
		},
		Handler: s.handle,
	}}
}

func (s *Shift) Rules() *RuleStore { return s.rules }

func (s *Shift) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "set", "add":
		return s.set(ctx, c)
	case "del", "rm":
		id, err := taskIDArg(c, 1)
		if err != nil {
			return err
		}
		if err := s.rules.Delete(id); err != nil {
			return err
		}
		return c.Editf(ctx, "🗑 已删除规则 #%s", telegram.EscapeHTML(id))
	case "pause", "resume":
		id, err := taskIDArg(c, 1)
		if err != nil {
			return err
		}
		paused := sub == "pause"
		if _, err := s.rules.Update(id, func(r *Rule) { r.Paused = paused }); err != nil {
			return err
		}
		if paused {
			return c.Editf(ctx, "⏸ 已暂停规则 #%s", telegram.EscapeHTML(id))
		}
		return c.Editf(ctx, "▶️ 已恢复规则 #%s", telegram.EscapeHTML(id))
	case "list", "ls":
		return s.list(ctx, c)
	case "backup":
		return s.backfill(ctx, c)
	case "", "help":
		return errUsage
	default:
		return usagef("未知子命令: %s", sub)
	}
}

// resolveTarget accepts a chat reference or "<relay>:<channel>".
func (s *Shift) resolveTarget(ctx context.Context, ref string) (string, error) {
	if name, chatID, ok := channels.ParseTarget(ref); ok {
		if s.deps.Relays == nil || !s.deps.Relays.Has(name) {
			return "", fmt.Errorf("%s 未配置，请在配置文件 relay.%s 中填写凭据", name, name)
		}
		return name + ":" + chatID, nil
	}
	id, err := s.deps.resolve(ctx, ref)
	if err != nil {
		return "", err
	}
	return strconv.FormatInt(id, 10), nil
}

func (s *Shift) set(ctx context.Context, c *Context) error {
	if len(c.Args) < 3 {
		return usagef("需要 <源> <目标>")
	}
	rule := Rule{Mode: ModeForward, Filter: FilterAll, CreatedAt: s.deps.now()}
	for _, opt := range c.Args[3:] {
		switch o := strings.ToLower(opt); o {
		case ModeCopy, ModeForward:
			rule.Mode = o
		case FilterAll, FilterText, FilterMedia, FilterPhoto:
			rule.Filter = o
		default:
			return usagef("未知选项: %s", opt)
		}
	}
	src, err := s.deps.resolve(ctx, c.Arg(1))
	if err != nil {
		return fmt.Errorf("源: %w", err)
	}
	dst, err := s.resolveTarget(ctx, c.Arg(2))
	if err != nil {
		return fmt.Errorf("目标: %w", err)
	}
	if dst == strconv.FormatInt(src, 10) {
		return usagef("源和目标不能相同")
	}
	rule.Source, rule.Target = src, dst
	rule, err = s.rules.Add(rule)
	if err != nil {
		return err
	}
	return c.Editf(ctx, "✅ 已添加规则 #%s: %s → %s (%s, %s)", rule.ID,
		telegram.Code(strconv.FormatInt(src, 10)), telegram.Code(dst), rule.Mode, rule.Filter)
}

func (s *Shift) list(ctx context.Context, c *Context) error {
	rules, err := s.rules.List()
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return c.Edit(ctx, "<b>🔀 转发规则</b>\n\n暂无规则")
	}
	var b strings.Builder
	b.WriteString("<b>🔀 转发规则</b>\n")
	for _, r := range rules {
		state := "✅"
		if r.Paused {
			state = "⏸"
		}
		b.WriteString(fmt.Sprintf("\n%s #%s %s → %s %s/%s 已转发 %d", state, r.ID,
			telegram.Code(strconv.FormatInt(r.Source, 10)), telegram.Code(r.Target), r.Mode, r.Filter, r.Count))
		if r.LastError != "" {
			b.WriteString("\n  ❌ " + telegram.EscapeHTML(telegram.Truncate(r.LastError, 200)))
		}
	}
	return c.Edit(ctx, b.String())
}

// Watch delivers msg through every active rule on its chat.
func (s *Shift) Watch(ctx context.Context, msg *telegram.Message) {
	rules, err := s.rules.List()
	if err != nil {
		slog.Warn("shift: load rules", "error", err)
		return
	}
	for _, r := range rules {
		if r.Paused || r.Source != msg.ChatID || !r.matches(msg) {
			continue
		}
		err := s.deliver(ctx, r.Target, r.Mode, msg)
		if errors.Is(err, errSkipped) {
			continue
		}
		if err != nil {
			slog.Warn("shift: deliver", "rule", r.ID, "source", msg.ChatID, "message", msg.ID, "error", err)
		}
		if _, uerr := s.rules.Update(r.ID, func(r *Rule) {
			if err != nil {
				r.LastError = telegram.Describe(err)
				return
			}
			r.Count++
			r.LastError = ""
		}); uerr != nil {
			slog.Warn("shift: save rule", "rule", r.ID, "error", uerr)
		}
	}
}

// deliver sends msg to target. Forwards out of chats that restrict
// forwarding fall back to copies.
func (s *Shift) deliver(ctx context.Context, target, mode string, msg *telegram.Message) error {
	if name, chatID, ok := channels.ParseTarget(target); ok {
		if msg.Text == "" {
			return errSkipped
		}
		return s.deps.Bus.PublishOutbound(ctx, bus.OutboundMessage{
			Channel: name,
			ChatID:  chatID,
			Content: msg.Text,
			Metadata: map[string]string{
				"source":  strconv.FormatInt(msg.ChatID, 10),
				"message": strconv.Itoa(msg.ID),
			},
		})
	}
	to, err := strconv.ParseInt(target, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid target %q", target)
	}
	if mode == ModeCopy {
		return s.deps.retry(ctx, func() error {
			return s.deps.Client.CopyMessage(ctx, to, msg.ChatID, msg.ID)
		})
	}
	err = s.deps.retry(ctx, func() error {
		return s.deps.Client.ForwardMessages(ctx, to, msg.ChatID, []int{msg.ID})
	})
	if telegram.IsError(err, "CHAT_FORWARDS_RESTRICTED") {
		return s.deps.retry(ctx, func() error {
			return s.deps.Client.CopyMessage(ctx, to, msg.ChatID, msg.ID)
		})
	}
	return err
}

// backfill delivers an id range from source to target, one message per
// tick of a fixed-rate limiter.
func (s *Shift) backfill(ctx context.Context, c *Context) error {
	if len(c.Args) < 5 {
		return usagef("需要 <源> <目标> <起始ID> <结束ID>")
	}
	src, err := s.deps.resolve(ctx, c.Arg(1))
	if err != nil {
		return fmt.Errorf("源: %w", err)
	}
	dst, err := s.resolveTarget(ctx, c.Arg(2))
	if err != nil {
		return fmt.Errorf("目标: %w", err)
	}
	start, err1 := strconv.Atoi(c.Arg(3))
	end, err2 := strconv.Atoi(c.Arg(4))
	if err1 != nil || err2 != nil || start <= 0 || end < start {
		return usagef("无效的消息 ID 范围")
	}
	if end-start+1 > backfillMax {
		return usagef("一次最多补发 %d 条", backfillMax)
	}
	if err := c.Editf(ctx, "⏳ 正在补发 %d-%d…", start, end); err != nil {
		return err
	}

	limit := rate.Inf
	if s.delay > 0 {
		limit = rate.Every(s.delay)
	}
	limiter := rate.NewLimiter(limit, 1)
	var sent, skipped, failed int
	var lastErr error
	for lo := start; lo <= end; lo += backfillBatch {
		hi := min(lo+backfillBatch-1, end)
		ids := make([]int, 0, hi-lo+1)
		for id := lo; id <= hi; id++ {
			ids = append(ids, id)
		}
		var msgs []*telegram.Message
		err := s.deps.retry(ctx, func() (err error) {
			msgs, err = s.deps.Client.GetMessages(ctx, src, ids)
			return err
		})
		if err != nil {
			return err
		}
		skipped += len(ids) - len(msgs)
		for _, m := range msgs {
			if err := limiter.Wait(ctx); err != nil {
				return err
			}
			switch err := s.deliver(ctx, dst, ModeForward, m); {
			case errors.Is(err, errSkipped):
				skipped++
			case err != nil:
				failed++
				lastErr = err
				slog.Warn("shift: backfill", "source", src, "message", m.ID, "error", err)
			default:
				sent++
			}
		}
	}

	msg := fmt.Sprintf("✅ 补发完成: 成功 %d, 跳过 %d, 失败 %d", sent, skipped, failed)
	if lastErr != nil {
		msg += "\n最后错误: " + telegram.EscapeHTML(telegram.Describe(lastErr))
	}
	return c.Edit(ctx, msg)
}
