package channels

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/mymmrac/telego"

	"github.com/nomland/nunti/pkg/bus"
)

func TestConvertEntitiesUsesUTF16Offsets(t *testing.T) {
	text := "🎉 see @nuntibot"
	got := convertEntities(text, []telego.MessageEntity{
		{Type: "mention", Offset: 7, Length: 9},
		{Type: "bold", Offset: 40, Length: 2},
	})
	if len(got) != 1 {
		t.Fatalf("entities = %+v, want 1", got)
	}
	if got[0].Type != "mention" || got[0].Text != "@nuntibot" {
		t.Errorf("entity = %+v", got[0])
	}
}

func TestConvertChannelAutomaticForward(t *testing.T) {
	channel := telego.Chat{ID: -100100, Type: telego.ChatTypeChannel, Title: "Weekly Reads", Username: "weeklyreads"}
	m := &telego.Message{
		MessageID:          900,
		Chat:               telego.Chat{ID: -100200, Type: telego.ChatTypeSupergroup, Title: "Readers"},
		From:               &telego.User{ID: 777000, FirstName: "Telegram"},
		SenderChat:         &channel,
		IsAutomaticForward: true,
		Date:               1702656377,
		Caption:            "Interesting read https://example.com/a",
		CaptionEntities:    []telego.MessageEntity{{Type: "url", Offset: 17, Length: 21}},
		ForwardOrigin: &telego.MessageOriginChannel{
			Type:            telego.OriginTypeChannel,
			Date:            1702656300,
			Chat:            channel,
			MessageID:       55,
			AuthorSignature: "Jane Doe",
		},
		Photo: []telego.PhotoSize{
			{FileID: "small", Width: 90, Height: 90},
			{FileID: "big", Width: 1280, Height: 720, FileSize: 2048},
		},
	}

	msg := convertMessage(m)
	if msg.Text != m.Caption || len(msg.Entities) != 1 || msg.Entities[0].Text != "https://example.com/a" {
		t.Fatalf("caption not used as text: %+v", msg)
	}
	if !msg.IsAutomaticForward || msg.SenderChat == nil || msg.SenderChat.Kind != bus.ChatChannel {
		t.Errorf("sender chat = %+v", msg.SenderChat)
	}
	o := msg.ForwardOrigin
	if o == nil || o.Kind != bus.OriginChannel || o.MessageID != 55 || o.Chat.Username != "weeklyreads" || o.Signature != "Jane Doe" {
		t.Fatalf("origin = %+v", o)
	}
	if best, ok := msg.LargestPhoto(); !ok || best.FileID != "big" || best.FileSize != 2048 {
		t.Errorf("largest photo = %+v", best)
	}
}

func TestConvertTopicReply(t *testing.T) {
	m := &telego.Message{
		MessageID:       51,
		MessageThreadID: 5,
		IsTopicMessage:  true,
		Chat:            telego.Chat{ID: -100200, Type: telego.ChatTypeSupergroup},
		From:            &telego.User{ID: 2, FirstName: "Bob", Username: "bob"},
		Text:            "hi",
		ReplyToMessage: &telego.Message{
			MessageID:         5,
			Chat:              telego.Chat{ID: -100200, Type: telego.ChatTypeSupergroup},
			ForumTopicCreated: &telego.ForumTopicCreated{Name: "Books"},
		},
	}
	msg := convertMessage(m)
	if msg.ThreadID != 5 || !msg.IsTopicMessage || msg.From.Username != "bob" {
		t.Errorf("message = %+v", msg)
	}
	if msg.ReplyTo == nil || msg.ReplyTo.TopicName != "Books" {
		t.Fatalf("reply = %+v", msg.ReplyTo)
	}
}

func TestConvertHiddenUserOrigin(t *testing.T) {
	o := convertOrigin(&telego.MessageOriginHiddenUser{
		Type:           telego.OriginTypeHiddenUser,
		Date:           1702656300,
		SenderUserName: "Anon Reader",
	})
	if o == nil || o.Kind != bus.OriginHiddenUser || o.HiddenName != "Anon Reader" || o.Date != 1702656300 {
		t.Fatalf("origin = %+v", o)
	}
	if convertOrigin(nil) != nil {
		t.Error("nil origin converted")
	}
}

func TestSplitLargeMessage(t *testing.T) {
	if got := splitLargeMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short = %q", got)
	}
	long := strings.Repeat("a", 8) + "\n" + strings.Repeat("b", 8)
	got := splitLargeMessage(long, 10)
	if len(got) != 2 || got[0] != strings.Repeat("a", 8)+"\n" || strings.Join(got, "") != long {
		t.Fatalf("chunks = %q", got)
	}
}

func TestSplitLargeMessageKeepsRunesWhole(t *testing.T) {
	long := strings.Repeat("读书笔记", 500)
	got := splitLargeMessage(long, 4096)
	if len(got) < 2 {
		t.Fatalf("chunks = %d, want at least 2", len(got))
	}
	for i, c := range got {
		if !utf8.ValidString(c) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
		if len(c) > 4096 {
			t.Fatalf("chunk %d has %d bytes", i, len(c))
		}
	}
	if strings.Join(got, "") != long {
		t.Fatal("chunks do not reassemble the message")
	}
}
