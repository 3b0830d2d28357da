package cron

import (
	"fmt"
	"strings"
	"sync"
	"time"

	robfigcron "github.com/robfig/cron/v3"
)

// parser accepts 5 or 6 fields (leading seconds optional) and descriptors
// such as @daily or @every 1h.
var parser = robfigcron.NewParser(
	robfigcron.SecondOptional | robfigcron.Minute | robfigcron.Hour |
		robfigcron.Dom | robfigcron.Month | robfigcron.Dow | robfigcron.Descriptor,
)

// Validate parses expr and wraps any failure in ErrInvalidCron.
func Validate(expr string) error {
	_, err := parse(expr)
	return err
}

// NextRun returns the first activation of expr after from.
func NextRun(expr string, from time.Time) (time.Time, error) {
	sched, err := parse(expr)
	if err != nil {
		return time.Time{}, err
	}
	return sched.Next(from), nil
}

func parse(expr string) (robfigcron.Schedule, error) {
	expr = strings.Trim(strings.TrimSpace(expr), `"'`)
	if expr == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidCron)
	}
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidCron, expr, err)
	}
	return sched, nil
}

// Scheduler arms callbacks under string keys. Set on a key that is
// already armed does nothing.
type Scheduler interface {
	Set(key, expr string, fn func()) error
	Del(key string)
	Has(key string) bool
}

// RobfigScheduler is the Scheduler backed by robfig/cron.
type RobfigScheduler struct {
	c       *robfigcron.Cron
	mu      sync.Mutex
	entries map[string]robfigcron.EntryID
}

func NewRobfigScheduler(loc *time.Location) *RobfigScheduler {
	if loc == nil {
		loc = time.Local
	}
	return &RobfigScheduler{
		c:       robfigcron.New(robfigcron.WithParser(parser), robfigcron.WithLocation(loc)),
		entries: make(map[string]robfigcron.EntryID),
	}
}

// Start begins firing armed entries.
func (r *RobfigScheduler) Start() {
	r.c.Start()
}

// Stop halts the scheduler and waits for running callbacks.
func (r *RobfigScheduler) Stop() {
	<-r.c.Stop().Done()
}

func (r *RobfigScheduler) Set(key, expr string, fn func()) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; ok {
		return nil
	}
	sched, err := parse(expr)
	if err != nil {
		return err
	}
	r.entries[key] = r.c.Schedule(sched, robfigcron.FuncJob(fn))
	return nil
}

func (r *RobfigScheduler) Del(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.entries[key]; ok {
		r.c.Remove(id)
		delete(r.entries, key)
	}
}

func (r *RobfigScheduler) Has(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entries[key]
	return ok
}

// Len reports the number of armed entries.
func (r *RobfigScheduler) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
