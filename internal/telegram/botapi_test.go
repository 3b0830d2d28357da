package telegram

import (
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/go-cmp/cmp"
)

func TestConvertBotMessage(t *testing.T) {
	date := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	in := &tgbotapi.Message{
		MessageID:      3,
		From:           &tgbotapi.User{ID: 42, UserName: "Alice"},
		Chat:           &tgbotapi.Chat{ID: -100500},
		Date:           int(date.Unix()),
		Caption:        "look",
		Photo:          []tgbotapi.PhotoSize{{FileID: "p"}},
		ReplyToMessage: &tgbotapi.Message{MessageID: 2},
	}
	got := convertBotMessage(in, 1000)
	got.Date = got.Date.UTC()
	want := &Message{
		ID: 3, ChatID: -100500, SenderID: 42, SenderUsername: "Alice", ReplyToID: 2,
		Text: "look", HasMedia: true, MediaKind: "photo", Date: date,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}

	own := convertBotMessage(&tgbotapi.Message{MessageID: 4, From: &tgbotapi.User{ID: 1000}, Chat: &tgbotapi.Chat{ID: 7}}, 1000)
	if !own.Out || own.SenderUsername != "" {
		t.Errorf("own message = %+v", own)
	}
}
