package plugins

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/coopco/telebox/internal/banlog"
	"github.com/coopco/telebox/internal/telegram"
)

func newAbanHarness(t *testing.T) (*harness, *Aban) {
	t.Helper()
	h := newHarness(t)
	a := NewAban(h.deps)
	a.delay = 0
	h.register(a)
	t.Cleanup(func() { a.Stop() })
	return h, a
}

func TestAbanSingleActionByArgument(t *testing.T) {
	h, a := newAbanHarness(t)
	edit := h.run(".aban mute 4242 too loud")
	if !strings.Contains(edit, "已禁言用户 <code>4242</code>") || !strings.Contains(edit, "原因: too loud") {
		t.Fatalf("edit = %q", edit)
	}
	calls := h.client.CallsOf("EditBanned")
	if len(calls) != 1 || calls[0].Chat != testChat || calls[0].User != 4242 || calls[0].Action != telegram.ActionMute {
		t.Fatalf("calls = %+v", calls)
	}

	store, _ := a.store()
	recs, err := store.List(context.Background(), banlog.Query{UserID: 4242})
	if err != nil || len(recs) != 1 || recs[0].Action != "mute" || recs[0].Reason != "too loud" || !recs[0].OK {
		t.Errorf("records = %+v, %v", recs, err)
	}
}

func TestAbanTargetFromReply(t *testing.T) {
	h, _ := newAbanHarness(t)
	h.client.AddMessage(&telegram.Message{ID: 50, ChatID: testChat, SenderID: 777, Text: "spam"})

	m := h.message(".aban kick spammer")
	m.ReplyToID = 50
	h.disp.Handle(context.Background(), inbound(m))

	calls := h.client.CallsOf("EditBanned")
	if len(calls) != 1 || calls[0].User != 777 || calls[0].Action != telegram.ActionKick {
		t.Fatalf("calls = %+v", calls)
	}
	if edit := h.editOf(testChat, m.ID); !strings.Contains(edit, "原因: spammer") {
		t.Errorf("edit = %q", edit)
	}

	if edit := h.run(".aban ban"); !strings.Contains(edit, "请指定用户或回复其消息") {
		t.Errorf("no target = %q", edit)
	}
	if edit := h.run(".aban ban -100123"); !strings.Contains(edit, "不是用户") {
		t.Errorf("chat target = %q", edit)
	}
}

func TestAbanFailureIsLogged(t *testing.T) {
	h, a := newAbanHarness(t)
	h.client.FailNext("EditBanned", errors.New("USER_ADMIN_INVALID"))
	if edit := h.run(".aban ban 4242"); !strings.Contains(edit, "无法对管理员执行此操作") {
		t.Errorf("edit = %q", edit)
	}
	store, _ := a.store()
	okN, failN, err := store.Count(context.Background(), 4242)
	if err != nil || okN != 0 || failN != 1 {
		t.Errorf("count = %d/%d, %v", okN, failN, err)
	}
}

func TestAbanSuperBan(t *testing.T) {
	h, a := newAbanHarness(t)
	h.client.Admin = []telegram.Entity{
		{ID: -100001, Type: telegram.EntityChannel, Title: "Group A", IsAdmin: true},
		{ID: -100002, Type: telegram.EntityChannel, Title: "Group B", IsAdmin: true},
		{ID: -3, Type: telegram.EntityChat, Title: "Group C", IsAdmin: true},
	}
	h.client.FailNext("EditBanned", errors.New("FLOOD_WAIT_2"))
	h.client.FailNext("EditBanned", nil)
	h.client.FailNext("EditBanned", errors.New("CHAT_ADMIN_REQUIRED"))

	edit := h.run(".aban sb 4242 scam")
	if !strings.Contains(edit, "成功 2 / 失败 1") {
		t.Fatalf("edit = %q", edit)
	}
	if !strings.Contains(edit, "Group B: 需要管理员权限") {
		t.Errorf("failure detail missing: %q", edit)
	}
	if n := len(h.client.CallsOf("EditBanned")); n != 4 {
		t.Errorf("EditBanned calls = %d", n)
	}
	if h.sleeper.Total().Seconds() != 3 {
		t.Errorf("slept %v", h.sleeper.Total())
	}

	store, _ := a.store()
	recs, _ := store.List(context.Background(), banlog.Query{UserID: 4242})
	if len(recs) != 3 || recs[0].ChatTitle != "Group C" || recs[1].OK {
		t.Errorf("records = %+v", recs)
	}

	log := h.run(".aban log 4242")
	for _, w := range []string{"成功 2 / 失败 1", "❌", "sb <code>4242</code> @ Group B · scam"} {
		if !strings.Contains(log, w) {
			t.Errorf("log missing %q:\n%s", w, log)
		}
	}
}

func TestAbanSuperBanWithoutAdminChats(t *testing.T) {
	h, _ := newAbanHarness(t)
	if edit := h.run(".aban sb 4242"); !strings.Contains(edit, "没有找到具有封禁权限的群组") {
		t.Errorf("edit = %q", edit)
	}
	if edit := h.run(".aban log"); !strings.Contains(edit, "暂无记录") {
		t.Errorf("log = %q", edit)
	}
}
