package telegram

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestDescribe(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{errors.New("rpc error: CHAT_ADMIN_REQUIRED"), "需要管理员权限（CHAT_ADMIN_REQUIRED）"},
		{errors.New("FLOOD_WAIT_30"), "操作过于频繁，请 30 秒后重试"},
		{fmt.Errorf("pin: %w", ErrUnsupported), "当前客户端模式不支持此操作"},
		{errors.New("something odd"), "something odd"},
	}
	for _, c := range cases {
		if got := Describe(c.err); got != c.want {
			t.Errorf("Describe(%v) = %q, want %q", c.err, got, c.want)
		}
	}
}

func TestIsError(t *testing.T) {
	err := errors.New("telegram: CHAT_FORWARDS_RESTRICTED (400)")
	if !IsError(err, "CHAT_FORWARDS_RESTRICTED") {
		t.Error("expected match")
	}
	if IsError(err, "PEER_ID_INVALID") || IsError(nil, "X") {
		t.Error("unexpected match")
	}
}

func TestEscapeAndTruncate(t *testing.T) {
	if got := Code(`<a & "b">`); got != "<code>&lt;a &amp; &quot;b&quot;&gt;</code>" {
		t.Errorf("Code = %q", got)
	}
	long := strings.Repeat("汉", 10)
	got := Truncate(long, 5)
	if got != "汉汉汉汉…" {
		t.Errorf("Truncate = %q", got)
	}
	if Truncate("short", 10) != "short" {
		t.Error("Truncate changed a short string")
	}
}
