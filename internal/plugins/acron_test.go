package plugins

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coopco/telebox/internal/bus"
	"github.com/coopco/telebox/internal/cron"
)

func newAcronHarness(t *testing.T) (*harness, *Acron) {
	t.Helper()
	h := newHarness(t)
	a := NewAcron(h.deps)
	h.register(a)
	return h, a
}

func TestAcronDeleteTaskScenario(t *testing.T) {
	h, a := newAcronHarness(t)

	edit := h.run(`.acron set "0 0 2 * * *" del -100123 55`)
	if !strings.Contains(edit, "已添加任务 #1 (del)") {
		t.Fatalf("set: %q", edit)
	}
	tasks, err := a.Tasks().List(cron.Filter{})
	if err != nil || len(tasks) != 1 {
		t.Fatalf("tasks = %v, %v", tasks, err)
	}
	var act msgAction
	if err := tasks[0].Decode(&act); err != nil {
		t.Fatal(err)
	}
	if tasks[0].Kind != "del" || tasks[0].Disabled || act.Chat != -100123 || act.MsgID != 55 {
		t.Fatalf("task = %+v payload = %+v", tasks[0], act)
	}

	list := h.run(".acron list")
	enabled, disabled, _ := strings.Cut(list, "已禁用")
	for _, w := range []string{"#1 <b>del</b>", "chat=<code>-100123</code>", "msgId=<code>55</code>", "下次:"} {
		if !strings.Contains(enabled, w) {
			t.Errorf("enabled group missing %q:\n%s", w, list)
		}
	}
	if !strings.Contains(disabled, "(0)") {
		t.Errorf("disabled group not empty:\n%s", list)
	}

	h.run(".acron disable 1")
	if h.sched.Has("acron:1") {
		t.Error("disabled task still armed")
	}
	list = h.run(".acron list")
	enabled, disabled, _ = strings.Cut(list, "已禁用")
	if !strings.Contains(enabled, "(0)") || !strings.Contains(disabled, "#1 <b>del</b>") {
		t.Errorf("task not in disabled group:\n%s", list)
	}
	if strings.Contains(disabled, "下次") {
		t.Errorf("disabled task shows next run:\n%s", list)
	}
}

func TestAcronRejectsInvalidCronBeforeWrite(t *testing.T) {
	h, a := newAcronHarness(t)
	edit := h.run(`.acron set "0 0 99 * * *" del -100123 55`)
	if !strings.Contains(edit, "❌") {
		t.Fatalf("edit = %q", edit)
	}
	if _, err := os.Stat(TaskStorePath(h.deps.Config.AssetsDir, "acron")); !os.IsNotExist(err) {
		t.Errorf("store written: %v", err)
	}
	if tasks, _ := a.Tasks().List(cron.Filter{}); len(tasks) != 0 {
		t.Errorf("tasks = %v", tasks)
	}
}

func TestAcronFireKinds(t *testing.T) {
	h, a := newAcronHarness(t)
	cmds := []string{
		`.acron set "*/5 * * * * *" del -100123 55`,
		`.acron set "@every 1h" pin -100123 56 | daily pin`,
		`.acron set "0 0 * * * *" unpin -100123 57`,
		`.acron set 0 30 9 * * 1 send -100200 good morning | greeting`,
		`.acron set "@hourly" copy -100123 58 -100200`,
		`.acron set "@hourly" forward -100123 59 me`,
	}
	for _, c := range cmds {
		if edit := h.run(c); !strings.Contains(edit, "✅") {
			t.Fatalf("%s: %q", c, edit)
		}
	}
	for _, id := range []string{"1", "2", "3", "4", "5", "6"} {
		h.sched.fire(t, "acron:"+id)
	}

	calls := map[string]int{}
	for _, c := range h.client.Calls {
		calls[c.Method]++
	}
	for _, m := range []string{"DeleteMessages", "PinMessage", "UnpinMessage", "CopyMessage", "ForwardMessages"} {
		if calls[m] != 1 {
			t.Errorf("%s called %d times", m, calls[m])
		}
	}
	var sent bool
	for _, s := range h.client.CallsOf("SendMessage") {
		if s.Chat == -100200 && s.Text == "good morning" {
			sent = true
		}
	}
	if !sent {
		t.Error("send task did not send")
	}
	fwd := h.client.CallsOf("ForwardMessages")[0]
	if fwd.Chat != h.client.SelfEnt.ID || fwd.From != -100123 {
		t.Errorf("forward = %+v", fwd)
	}

	t2, _ := a.Tasks().Get("2")
	t4, _ := a.Tasks().Get("4")
	if t2.Remark != "daily pin" || t4.Remark != "greeting" || t4.Cron != "0 30 9 * * 1" {
		t.Errorf("t2 = %+v\nt4 = %+v", t2, t4)
	}
	if t2.LastResult != "pin 56" || t2.LastRun.IsZero() {
		t.Errorf("t2 bookkeeping = %+v", t2)
	}
}

func TestAcronFireRecordsTelegramError(t *testing.T) {
	h, a := newAcronHarness(t)
	h.run(`.acron set "@hourly" del -100123 55`)
	h.client.FailNext("DeleteMessages", errors.New("MESSAGE_ID_INVALID"))
	h.sched.fire(t, "acron:1")

	task, _ := a.Tasks().Get("1")
	if task.LastError != "MESSAGE_ID_INVALID" || task.LastResult != "" {
		t.Errorf("task = %+v", task)
	}
	if list := h.run(".acron list"); !strings.Contains(list, "❌ MESSAGE_ID_INVALID") {
		t.Errorf("list:\n%s", list)
	}
}

func TestAcronFloodWaitRetriesOnce(t *testing.T) {
	h, a := newAcronHarness(t)
	h.run(`.acron set "@hourly" unpin -100123 55`)
	h.client.FailNext("UnpinMessage", errors.New("FLOOD_WAIT_5"))
	h.sched.fire(t, "acron:1")

	if n := len(h.client.CallsOf("UnpinMessage")); n != 2 {
		t.Errorf("attempts = %d", n)
	}
	if h.sleeper.Total().Seconds() < 6 {
		t.Errorf("slept %v", h.sleeper.Total())
	}
	if task, _ := a.Tasks().Get("1"); task.LastError != "" {
		t.Errorf("task = %+v", task)
	}
}

func TestAcronCmdTaskIsDispatched(t *testing.T) {
	h, _ := newAcronHarness(t)
	var got []string
	h.register(echoPlugin(&got))

	h.run(`.acron set "@hourly" cmd -100123 .echo from cron`)
	h.sched.fire(t, "acron:1")

	in, err := h.bus.ConsumeInbound(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if in.Source != bus.SourceInjected || in.Message.Text != ".echo from cron" {
		t.Fatalf("inbound = %+v", in)
	}
	h.disp.Handle(context.Background(), in)
	if diff := cmp.Diff([]string{"from cron"}, got); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if edit := h.editOf(-100123, in.Message.ID); edit != "echo: from cron" {
		t.Errorf("edit = %q", edit)
	}
}

func TestAcronRemoveAndEnable(t *testing.T) {
	h, a := newAcronHarness(t)
	h.run(`.acron set "@hourly" del -100123 55`)
	h.run(".acron disable 1")

	if edit := h.run(".acron enable 1"); !strings.Contains(edit, "已启用任务 #1") {
		t.Errorf("enable = %q", edit)
	}
	if !h.sched.Has("acron:1") {
		t.Error("enabled task not armed")
	}
	if edit := h.run(".acron rm 1"); !strings.Contains(edit, "已删除任务 #1") {
		t.Errorf("rm = %q", edit)
	}
	if h.sched.Has("acron:1") {
		t.Error("removed task still armed")
	}
	if edit := h.run(".acron rm 1"); !strings.Contains(edit, "任务 #1 不存在") {
		t.Errorf("second rm = %q", edit)
	}

	h.run(`.acron set "@hourly" del -100123 56`)
	if task, err := a.Tasks().Get("2"); err != nil || task.ID != "2" {
		t.Errorf("id reused: %+v %v", task, err)
	}
}

func TestAcronBootstrap(t *testing.T) {
	h, _ := newAcronHarness(t)
	h.run(`.acron set "@hourly" del -100123 55`)
	h.run(`.acron set "@hourly" del -100123 56`)
	h.run(".acron disable 2")

	sched := newFakeScheduler()
	h.deps.Scheduler = sched
	restarted := NewAcron(h.deps)
	if err := restarted.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if !sched.Has("acron:1") || sched.Has("acron:2") {
		t.Errorf("armed = %v", sched.exps)
	}
}

func TestAcronUsageErrors(t *testing.T) {
	h, _ := newAcronHarness(t)
	tests := []struct{ text, want string }{
		{".acron", "<code>.acron list [kind]</code>"},
		{".acron frob", "未知子命令"},
		{`.acron set "@hourly" nuke 1`, "未知任务类型"},
		{`.acron set "@hourly" del -100123`, "del 需要"},
		{`.acron set "@hourly" del -100123 abc`, "无效的消息 ID"},
		{`.acron set "@hourly`, "缺少结束引号"},
		{`.acron set "@hourly" send @nobody_here hi`, "用户名不存在"},
	}
	for _, tt := range tests {
		if edit := h.run(tt.text); !strings.Contains(edit, tt.want) {
			t.Errorf("%s: %q missing %q", tt.text, edit, tt.want)
		}
	}
}

func TestParseCronArg(t *testing.T) {
	tests := []struct {
		raw, expr, rest string
		wantErr         bool
	}{
		{`"0 0 2 * * *" del 1 2`, "0 0 2 * * *", "del 1 2", false},
		{`'*/5 * * * *' x`, "*/5 * * * *", "x", false},
		{"0 0 2 * * * del 1 2", "0 0 2 * * *", "del 1 2", false},
		{"@daily send me hi", "@daily", "send me hi", false},
		{"@every 90s send me hi", "@every 90s", "send me hi", false},
		{`"61 * * * * *" x`, "", "", true},
		{"", "", "", true},
	}
	for _, tt := range tests {
		expr, rest, err := parseCronArg(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("%q: err = %v", tt.raw, err)
			continue
		}
		if expr != tt.expr || rest != tt.rest {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", tt.raw, expr, rest, tt.expr, tt.rest)
		}
	}
}
