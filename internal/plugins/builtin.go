package plugins

import (
	"context"
	"errors"
	"log/slog"
)

// Builtin returns every bundled plugin wired to d.
func Builtin(d *Deps) []Plugin {
	return []Plugin{
		NewHelp(d.Registry),
		NewAcron(d),
		NewBroadcast(d),
		NewBackup(d),
		NewShift(d),
		NewSpeedtest(d),
		NewAban(d),
		NewGPT(d),
	}
}

// RegisterAll registers ps in order and stops at the first conflict.
func RegisterAll(reg *Registry, ps []Plugin) error {
	for _, p := range ps {
		if err := reg.Register(p); err != nil {
			return err
		}
	}
	return nil
}

// StartAll runs every Starter. A failing plugin is logged and skipped so
// the others still come up.
func StartAll(ctx context.Context, reg *Registry) {
	for _, p := range reg.Plugins() {
		s, ok := p.(Starter)
		if !ok {
			continue
		}
		if err := s.Start(ctx); err != nil {
			slog.Error("plugin start failed", "plugin", p.Name(), "error", err)
		}
	}
}

// StopAll runs every Stopper and joins their errors.
func StopAll(reg *Registry) error {
	var errs []error
	for _, p := range reg.Plugins() {
		if s, ok := p.(Stopper); ok {
			if err := s.Stop(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
