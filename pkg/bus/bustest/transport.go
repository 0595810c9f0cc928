// Package bustest provides an in-memory bus.Transport for tests.
package bustest

import (
	"context"
	"fmt"
	"sync"

	"github.com/nomland/nunti/pkg/bus"
)

type Edit struct {
	ChatID    int64
	MessageID int
	Text      string
}

type Delete struct {
	ChatID    int64
	MessageID int
}

// Transport records outbound calls and answers lookups from its maps.
type Transport struct {
	mu sync.Mutex

	Bot       bus.User
	Admins    map[int64][]bus.User
	Chats     map[int64]*bus.ChatInfo
	Usernames map[string]*bus.ChatInfo
	Photos    map[int64][]byte
	Files     map[string][]byte

	Sent    []bus.OutboundMessage
	Edits   []Edit
	Deletes []Delete

	// FailSend makes Send return an error.
	FailSend error
	nextID   int
}

func New() *Transport {
	return &Transport{
		Bot:       bus.User{ID: 1, IsBot: true, FirstName: "Nunti", Username: "nuntibot"},
		Admins:    map[int64][]bus.User{},
		Chats:     map[int64]*bus.ChatInfo{},
		Usernames: map[string]*bus.ChatInfo{},
		Photos:    map[int64][]byte{},
		Files:     map[string][]byte{},
		nextID:    9000,
	}
}

func (t *Transport) Send(_ context.Context, msg bus.OutboundMessage) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.FailSend != nil {
		return 0, t.FailSend
	}
	t.nextID++
	t.Sent = append(t.Sent, msg)
	return t.nextID, nil
}

func (t *Transport) Edit(_ context.Context, chatID int64, messageID int, text string, _ bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Edits = append(t.Edits, Edit{ChatID: chatID, MessageID: messageID, Text: text})
	return nil
}

func (t *Transport) Delete(_ context.Context, chatID int64, messageID int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Deletes = append(t.Deletes, Delete{ChatID: chatID, MessageID: messageID})
	return nil
}

func (t *Transport) ChatAdministrators(_ context.Context, chatID int64) ([]bus.User, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	admins, ok := t.Admins[chatID]
	if !ok {
		return nil, fmt.Errorf("chat %d not found", chatID)
	}
	return admins, nil
}

func (t *Transport) ChatInfo(_ context.Context, ref bus.ChatRef) (*bus.ChatInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ref.Username != "" {
		if info, ok := t.Usernames[ref.Username]; ok {
			return info, nil
		}
		return nil, fmt.Errorf("chat @%s not found", ref.Username)
	}
	if info, ok := t.Chats[ref.ID]; ok {
		return info, nil
	}
	return nil, fmt.Errorf("chat %d not found", ref.ID)
}

func (t *Transport) ProfilePhoto(_ context.Context, userID int64) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Photos[userID], nil
}

func (t *Transport) FileContent(_ context.Context, fileID string) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	data, ok := t.Files[fileID]
	if !ok {
		return nil, fmt.Errorf("file %s not found", fileID)
	}
	return data, nil
}

func (t *Transport) BotUser() bus.User {
	return t.Bot
}

// LastText returns the text of the most recent sent message, or "".
func (t *Transport) LastText() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.Sent) == 0 {
		return ""
	}
	return t.Sent[len(t.Sent)-1].Text
}

// Reset clears recorded outbound calls.
func (t *Transport) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Sent, t.Edits, t.Deletes = nil, nil, nil
}
