package telegram

import (
	"errors"
	"fmt"
	"strings"
)

var knownErrors = []struct {
	substr string
	text   string
}{
	{"CHAT_ADMIN_REQUIRED", "需要管理员权限"},
	{"CHAT_WRITE_FORBIDDEN", "没有在该聊天发言的权限"},
	{"CHANNEL_PRIVATE", "无法访问该频道/群组（私有或已被移出）"},
	{"CHAT_FORWARDS_RESTRICTED", "该聊天禁止转发/保存内容"},
	{"USER_NOT_PARTICIPANT", "用户不在该群组中"},
	{"USER_ADMIN_INVALID", "无法对管理员执行此操作"},
	{"PEER_ID_INVALID", "无效的聊天/用户 ID"},
	{"MESSAGE_ID_INVALID", "消息不存在或已被删除"},
	{"MESSAGE_NOT_MODIFIED", "消息内容未变化"},
	{"USERNAME_NOT_OCCUPIED", "用户名不存在"},
	{"USERNAME_INVALID", "用户名无效"},
	{"USER_BANNED_IN_CHANNEL", "账号被限制发言"},
	{"RIGHT_FORBIDDEN", "权限不足"},
}

// Describe turns an error into a short Chinese message for the chat. Known
// Telegram error codes get a friendlier text; anything else is shown
// verbatim.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrUnsupported) {
		return "当前客户端模式不支持此操作"
	}
	if wait, ok := FloodWait(err); ok {
		return fmt.Sprintf("操作过于频繁，请 %d 秒后重试", int(wait.Seconds()))
	}
	msg := err.Error()
	for _, k := range knownErrors {
		if strings.Contains(msg, k.substr) {
			return k.text + "（" + k.substr + "）"
		}
	}
	return msg
}

// IsError reports whether err carries the given Telegram error code.
func IsError(err error, code string) bool {
	return err != nil && strings.Contains(err.Error(), code)
}
