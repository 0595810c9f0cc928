package store

import (
	"fmt"
	"strconv"
)

// WatchTopics lists (chat, topic) pairs whose messages are treated as shares
// without mentioning the bot. The value is the link the operator supplied.
type WatchTopics struct {
	t *table
}

func NewWatchTopics(kv KV, tableName string) (*WatchTopics, error) {
	t, err := loadTable(kv, tableName)
	if err != nil {
		return nil, err
	}
	return &WatchTopics{t: t}, nil
}

func WatchKey(chatID string, topicID int) string {
	return chatID + "-" + strconv.Itoa(topicID)
}

func (w *WatchTopics) Has(chatID string, topicID int) bool {
	_, ok := w.t.get(WatchKey(chatID, topicID))
	return ok
}

func (w *WatchTopics) Add(chatID string, topicID int, link string) error {
	if err := w.t.set(WatchKey(chatID, topicID), link); err != nil {
		return fmt.Errorf("watch %s/%d: %w", chatID, topicID, err)
	}
	return nil
}

func (w *WatchTopics) Remove(chatID string, topicID int) error {
	ok, err := w.t.remove(WatchKey(chatID, topicID))
	if err != nil {
		return fmt.Errorf("unwatch %s/%d: %w", chatID, topicID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (w *WatchTopics) Entries() []Entry {
	return w.t.entries()
}

func (w *WatchTopics) Len() int {
	return w.t.len()
}
