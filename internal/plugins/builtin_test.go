package plugins

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestBuiltinRegistersEveryPlugin(t *testing.T) {
	h := newHarness(t)
	if err := RegisterAll(h.reg, Builtin(h.deps)); err != nil {
		t.Fatal(err)
	}
	want := []string{"aban", "acron", "bf", "bs", "gpt", "help", "shift", "speedtest"}
	if diff := cmp.Diff(want, h.reg.Names()); diff != "" {
		t.Errorf("plugins (-want +got):\n%s", diff)
	}
	for _, name := range want {
		if _, _, ok := h.reg.Lookup(name); !ok {
			t.Errorf("command %q not registered", name)
		}
	}

	h.run(`.acron set "@hourly" del -100123 1`)
	h.run(`.bs add "@daily" -100123 hi`)
	h.run(".aban log")

	sched := newFakeScheduler()
	h.deps.Scheduler = sched
	reg := NewRegistry()
	h.deps.Registry = reg
	if err := RegisterAll(reg, Builtin(h.deps)); err != nil {
		t.Fatal(err)
	}
	StartAll(context.Background(), reg)
	if !sched.Has("acron:1") || !sched.Has("bs:1") {
		t.Errorf("armed after start: %v", sched.exps)
	}
	if err := StopAll(h.reg); err != nil {
		t.Errorf("stop: %v", err)
	}
	if err := StopAll(reg); err != nil {
		t.Errorf("stop: %v", err)
	}
}
