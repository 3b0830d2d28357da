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

	"github.com/coopco/telebox/internal/backup"
	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/jsonfile"
	"github.com/coopco/telebox/internal/telegram"
	"github.com/dustin/go-humanize"
)

const (
	KindBackup      = "backup"
	defaultBackupTo = "me"
	defaultKeep     = 5
	archivesDir     = "archives"
)

type backupSettings struct {
	Target string `json:"target"`
	Keep   int    `json:"keep"`
}

// Backup archives the assets directory and uploads it to a chat.
type Backup struct {
	deps  *Deps
	tasks *cron.Service
	path  string

	mu       sync.Mutex
	settings *backupSettings
}

func NewBackup(d *Deps) *Backup {
	b := &Backup{deps: d, path: filepath.Join(d.PluginDir("bf"), "config.json")}
	b.tasks = d.newTaskService("bf", b.run)
	return b
}

func (b *Backup) Name() string        { return "bf" }
func (b *Backup) Description() string { return "备份插件数据并上传到指定聊天" }

func (b *Backup) Commands() []Command {
	return []Command{{
		Name:    "bf",
		Summary: "备份",
		Usage: []string{
			"bf",
			"bf target <chat>",
			`bf cron "<cron>"`,
			"bf off",
			"bf status",
			"bf keep <n>",
		},
		Handler: b.handle,
	}}
}

func (b *Backup) Start(ctx context.Context) error {
	_, err := b.tasks.Bootstrap()
	return err
}

func (b *Backup) Tasks() *cron.Service { return b.tasks }

func (b *Backup) load() (backupSettings, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.settings == nil {
		s := backupSettings{Target: defaultBackupTo, Keep: defaultKeep}
		if _, err := jsonfile.Load(b.path, &s); err != nil {
			return s, err
		}
		b.settings = &s
	}
	return *b.settings, nil
}

func (b *Backup) update(fn func(*backupSettings)) (backupSettings, error) {
	s, err := b.load()
	if err != nil {
		return s, err
	}
	fn(&s)
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := jsonfile.Save(b.path, s); err != nil {
		return s, err
	}
	b.settings = &s
	return s, nil
}

func (b *Backup) handle(ctx context.Context, c *Context) error {
	switch sub := strings.ToLower(c.Arg(0)); sub {
	case "", "now":
		if err := c.Edit(ctx, "⏳ 正在备份…"); err != nil {
			return err
		}
		res, err := b.backupNow(ctx)
		if err != nil {
			return err
		}
		return c.Edit(ctx, "✅ "+telegram.EscapeHTML(res))
	case "target":
		ref := c.Arg(1)
		if ref == "" {
			return usagef("缺少目标聊天")
		}
		id, err := b.deps.resolve(ctx, ref)
		if err != nil {
			return err
		}
		if _, err := b.update(func(s *backupSettings) { s.Target = strconv.FormatInt(id, 10) }); err != nil {
			return err
		}
		return c.Editf(ctx, "✅ 备份目标: %s", telegram.Code(strconv.FormatInt(id, 10)))
	case "keep":
		n, err := strconv.Atoi(c.Arg(1))
		if err != nil || n < 0 {
			return usagef("保留数量必须是非负整数")
		}
		if _, err := b.update(func(s *backupSettings) { s.Keep = n }); err != nil {
			return err
		}
		if n == 0 {
			return c.Edit(ctx, "✅ 本地备份将全部保留")
		}
		return c.Editf(ctx, "✅ 本地保留最近 %d 个备份", n)
	case "cron":
		return b.schedule(ctx, c)
	case "off":
		t, found, err := b.task()
		if err != nil {
			return err
		}
		if !found || t.Disabled {
			return c.Edit(ctx, "定时备份未开启")
		}
		if _, err := b.tasks.SetEnabled(t.ID, false); err != nil {
			return err
		}
		return c.Edit(ctx, "⏸ 已关闭定时备份")
	case "status":
		return b.status(ctx, c)
	case "help":
		return errUsage
	default:
		return usagef("未知子命令: %s", sub)
	}
}

// task returns the single backup task, if any.
func (b *Backup) task() (cron.Task, bool, error) {
	tasks, err := b.tasks.List(cron.Filter{Kind: KindBackup})
	if err != nil || len(tasks) == 0 {
		return cron.Task{}, false, err
	}
	return tasks[0], true, nil
}

func (b *Backup) schedule(ctx context.Context, c *Context) error {
	expr, _, err := parseCronArg(c.Rest(1))
	if err != nil {
		return err
	}
	t, found, err := b.task()
	if err != nil {
		return err
	}
	if found {
		t, err = b.tasks.Update(t.ID, func(t *cron.Task) { t.Cron = expr })
		if err == nil && t.Disabled {
			t, err = b.tasks.SetEnabled(t.ID, true)
		}
	} else {
		t, err = cron.NewTask(KindBackup, expr, struct{}{})
		if err == nil {
			t, err = b.tasks.Add(t)
		}
	}
	if err != nil {
		return err
	}
	msg := "✅ 定时备份: " + telegram.Code(t.Cron)
	if next, ok := b.tasks.Next(t); ok {
		msg += "\n下次执行: " + next.Format(timeLayout)
	}
	return c.Edit(ctx, msg)
}

func (b *Backup) status(ctx context.Context, c *Context) error {
	s, err := b.load()
	if err != nil {
		return err
	}
	archives, err := backup.List(b.archiveDir())
	if err != nil {
		return err
	}
	var sb strings.Builder
	sb.WriteString("<b>💾 备份状态</b>")
	sb.WriteString("\n目标: " + telegram.Code(s.Target))
	sb.WriteString(fmt.Sprintf("\n本地备份: %d 个 (保留 %d)", len(archives), s.Keep))
	t, found, err := b.task()
	if err != nil {
		return err
	}
	switch {
	case !found:
		sb.WriteString("\n定时: 未设置")
	case t.Disabled:
		sb.WriteString("\n定时: 已关闭 " + telegram.Code(t.Cron))
	default:
		sb.WriteString("\n定时: " + telegram.Code(t.Cron))
		if next, ok := b.tasks.Next(t); ok {
			sb.WriteString("\n下次: " + next.Format(timeLayout))
		}
	}
	if found && !t.LastRun.IsZero() {
		sb.WriteString("\n上次: " + t.LastRun.Format(timeLayout))
		if t.LastError != "" {
			sb.WriteString(" ❌ " + telegram.EscapeHTML(t.LastError))
		} else {
			sb.WriteString(" ✅ " + telegram.EscapeHTML(t.LastResult))
		}
	}
	return c.Edit(ctx, sb.String())
}

func (b *Backup) archiveDir() string {
	return filepath.Join(b.deps.PluginDir("bf"), archivesDir)
}

func (b *Backup) run(ctx context.Context, t cron.Task) (string, error) {
	return b.backupNow(ctx)
}

// backupNow writes an archive, uploads it and prunes old local copies.
func (b *Backup) backupNow(ctx context.Context) (string, error) {
	s, err := b.load()
	if err != nil {
		return "", err
	}
	target, err := b.deps.resolve(ctx, s.Target)
	if err != nil {
		return "", fmt.Errorf("resolve backup target: %w", err)
	}

	root := b.deps.Config.AssetsDir
	dest := filepath.Join(b.archiveDir(), backup.ArchiveName(b.deps.now()))
	st, err := backup.Create(ctx, root, dest, backup.Options{
		SkipDirs:     []string{filepath.ToSlash(filepath.Join("bf", archivesDir))},
		SkipSuffixes: backup.DefaultSkipSuffixes,
	})
	if err != nil {
		return "", err
	}
	if st.Files == 0 {
		return "", errors.New("没有可备份的文件")
	}

	caption := fmt.Sprintf("telebox 备份 %s\n%d 个文件, %s",
		b.deps.now().Format(timeLayout), st.Files, humanize.IBytes(uint64(st.Bytes)))
	err = b.deps.retry(ctx, func() error {
		_, err := b.deps.Client.SendFile(ctx, target, dest, &telegram.SendOptions{
			Caption:  caption,
			FileName: filepath.Base(dest),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("upload backup: %w", err)
	}

	removed, err := backup.Prune(b.archiveDir(), s.Keep)
	if err != nil {
		slog.Warn("bf: prune archives", "error", err)
	}
	slog.Info("bf: backup uploaded", "path", dest, "files", st.Files, "bytes", st.Bytes, "pruned", len(removed))
	return fmt.Sprintf("%d files, %s → %d", st.Files, humanize.IBytes(uint64(st.Bytes)), target), nil
}
