package plugins

import (
	"context"
	"path/filepath"
	"time"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/config"
	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/telegram"
)

// RelaySet reports which non-Telegram relay channels are configured.
type RelaySet interface {
	Has(name string) bool
}

// Deps is everything a plugin may use. It is built once in main and
// shared; plugins never reach for globals.
type Deps struct {
	// Context is cancelled on shutdown; scheduled fires run under it.
	Context   context.Context
	Client    telegram.Client
	Config    *config.Config
	Cache     *telegram.EntityCache
	Bus       *bus.MessageBus
	Relays    RelaySet
	Scheduler cron.Scheduler
	Exec      Runner
	Sleeper   telegram.Sleeper
	Now       func() time.Time
	Registry  *Registry
}

// PluginDir returns <assets>/<plugin>.
func (d *Deps) PluginDir(plugin string) string {
	return d.Config.PluginDir(plugin)
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) ctx() context.Context {
	if d.Context != nil {
		return d.Context
	}
	return context.Background()
}

// retry runs fn with the FLOOD_WAIT retry policy.
func (d *Deps) retry(ctx context.Context, fn func() error) error {
	return telegram.WithFloodRetry(ctx, d.Sleeper, fn)
}

// pause waits between iterations of a long loop.
func (d *Deps) pause(ctx context.Context, dur time.Duration) error {
	s := d.Sleeper
	if s == nil {
		s = telegram.RealSleeper{}
	}
	return s.Sleep(ctx, dur)
}

// resolve turns a user-supplied chat reference into a canonical id.
func (d *Deps) resolve(ctx context.Context, ref string) (int64, error) {
	if id, err := telegram.NormalizeChatID(ref); err == nil {
		return id, nil
	}
	if d.Cache != nil {
		return d.Cache.ResolveID(ctx, ref)
	}
	ent, err := d.Client.ResolvePeer(ctx, ref)
	if err != nil {
		return 0, err
	}
	return ent.ID, nil
}

// newTaskService opens the task store of a plugin on the shared scheduler.
func (d *Deps) newTaskService(plugin string, run cron.Runner) *cron.Service {
	store := cron.NewStore(TaskStorePath(d.Config.AssetsDir, plugin))
	return cron.NewService(d.ctx(), plugin, store, d.Scheduler, run, d.now)
}

// TaskStorePath is where a plugin keeps its scheduled tasks.
func TaskStorePath(assets, plugin string) string {
	return filepath.Join(assets, plugin, "tasks.json")
}
