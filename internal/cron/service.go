package cron

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Runner executes one fire of a task and returns a short result line.
type Runner func(ctx context.Context, t Task) (string, error)

// Service binds one plugin's task store to a shared Scheduler. Scheduler
// keys are "<plugin>:<id>" so several services can share one scheduler.
//
// Fires of the same task are not serialized: a run that outlasts the cron
// period overlaps with the next one.
type Service struct {
	plugin string
	store  *Store
	sched  Scheduler
	run    Runner
	ctx    context.Context
	now    func() time.Time
}

// NewService binds a plugin's task store to the scheduler. now stamps
// creation and run times; nil means time.Now.
func NewService(ctx context.Context, plugin string, store *Store, sched Scheduler, run Runner, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		plugin: plugin,
		store:  store,
		sched:  sched,
		run:    run,
		ctx:    ctx,
		now:    now,
	}
}

func (s *Service) Plugin() string { return s.plugin }

func (s *Service) key(id string) string {
	return s.plugin + ":" + id
}

// Add validates the cron expression, persists t with a fresh id and arms
// it unless it is disabled. Nothing is written when validation fails.
func (s *Service) Add(t Task) (Task, error) {
	if err := Validate(t.Cron); err != nil {
		return Task{}, err
	}
	t.Plugin = s.plugin
	if t.CreatedAt.IsZero() {
		t.CreatedAt = s.now()
	}
	t.LastRun, t.LastResult, t.LastError = time.Time{}, "", ""

	saved, err := s.store.Create(t)
	if err != nil {
		return Task{}, fmt.Errorf("save task: %w", err)
	}
	if !saved.Disabled {
		if err := s.arm(saved); err != nil {
			return saved, err
		}
	}
	slog.Info("cron: task added", "plugin", s.plugin, "task", saved.ID, "kind", saved.Kind, "cron", saved.Cron)
	return saved, nil
}

// Remove disarms and deletes the task.
func (s *Service) Remove(id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.sched.Del(s.key(id))
	slog.Info("cron: task removed", "plugin", s.plugin, "task", id)
	return nil
}

// SetEnabled toggles a task. Enabling re-validates the stored expression
// and leaves the task disabled when it no longer parses.
func (s *Service) SetEnabled(id string, enabled bool) (Task, error) {
	t, err := s.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	if enabled {
		if err := Validate(t.Cron); err != nil {
			return t, err
		}
	}
	t, err = s.store.Update(id, func(t *Task) error {
		t.Disabled = !enabled
		return nil
	})
	if err != nil {
		return Task{}, err
	}
	if enabled {
		if err := s.arm(t); err != nil {
			return t, err
		}
	} else {
		s.sched.Del(s.key(id))
	}
	return t, nil
}

func (s *Service) Get(id string) (Task, error) {
	return s.store.Get(id)
}

// List returns the tasks matching f ordered by id.
func (s *Service) List(f Filter) ([]Task, error) {
	all, err := s.store.List()
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, t := range all {
		if f.match(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Update edits a stored task in place. The schedule is re-armed when the
// cron expression changes.
func (s *Service) Update(id string, fn func(*Task)) (Task, error) {
	var before Task
	t, err := s.store.Update(id, func(t *Task) error {
		before = *t
		fn(t)
		t.Plugin = before.Plugin
		if t.Cron != before.Cron {
			return Validate(t.Cron)
		}
		return nil
	})
	if err != nil {
		return t, err
	}
	if t.Cron != before.Cron || t.Disabled != before.Disabled {
		s.sched.Del(s.key(id))
		if !t.Disabled {
			if err := s.arm(t); err != nil {
				return t, err
			}
		}
	}
	return t, nil
}

// Next reports when an enabled task fires next.
func (s *Service) Next(t Task) (time.Time, bool) {
	if t.Disabled {
		return time.Time{}, false
	}
	next, err := NextRun(t.Cron, s.now())
	if err != nil || next.IsZero() {
		return time.Time{}, false
	}
	return next, true
}

// Bootstrap arms every enabled task with a valid expression and returns
// how many were armed. Disabled and unparsable tasks are skipped.
func (s *Service) Bootstrap() (int, error) {
	tasks, err := s.store.List()
	if err != nil {
		return 0, err
	}
	n := 0
	for _, t := range tasks {
		if t.Disabled {
			continue
		}
		if err := s.arm(t); err != nil {
			slog.Debug("cron: skip task", "plugin", s.plugin, "task", t.ID, "error", err)
			continue
		}
		n++
	}
	slog.Info("cron: tasks armed", "plugin", s.plugin, "count", n, "total", len(tasks))
	return n, nil
}

// RunNow runs the task immediately and returns the updated record. A
// disabled task still runs; only its schedule is paused.
func (s *Service) RunNow(id string) (Task, error) {
	t, err := s.store.Get(id)
	if err != nil {
		return Task{}, err
	}
	s.execute(t)
	return s.store.Get(id)
}

func (s *Service) arm(t Task) error {
	id := t.ID
	return s.sched.Set(s.key(id), t.Cron, func() { s.fire(id) })
}

// fire runs the task stored under id. A task that has been removed or
// disabled since it was armed is ignored.
func (s *Service) fire(id string) {
	t, err := s.store.Get(id)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			slog.Warn("cron: load task", "plugin", s.plugin, "task", id, "error", err)
		}
		return
	}
	if t.Disabled {
		return
	}
	s.execute(t)
}

// execute runs t and records the outcome on its stored record.
func (s *Service) execute(t Task) {
	id := t.ID
	fireID := uuid.NewString()
	log := slog.With("plugin", s.plugin, "task", id, "kind", t.Kind, "fire", fireID)
	started := s.now()
	result, runErr := s.safeRun(t)

	_, err := s.store.Update(id, func(t *Task) error {
		t.LastRun = started
		if runErr != nil {
			t.LastResult, t.LastError = "", runErr.Error()
		} else {
			t.LastResult, t.LastError = result, ""
		}
		return nil
	})
	if err != nil && !errors.Is(err, ErrNotFound) {
		log.Warn("cron: save fire result", "error", err)
	}
	if runErr != nil {
		log.Warn("cron: task failed", "error", runErr)
		return
	}
	log.Info("cron: task fired", "result", result, "took", s.now().Sub(started))
}

func (s *Service) safeRun(t Task) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("cron: task panicked", "plugin", s.plugin, "task", t.ID, "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if s.run == nil {
		return "", fmt.Errorf("no runner for %s tasks", s.plugin)
	}
	return s.run(s.ctx, t)
}
