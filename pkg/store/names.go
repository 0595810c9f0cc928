package store

import "fmt"

// NameIndex keeps operator-facing labels for chats, shown by /ls and /getName.
type NameIndex struct {
	t *table
}

func NewNameIndex(kv KV, tableName string) (*NameIndex, error) {
	t, err := loadTable(kv, tableName)
	if err != nil {
		return nil, err
	}
	return &NameIndex{t: t}, nil
}

func (n *NameIndex) Get(chatID string) (string, bool) {
	return n.t.get(chatID)
}

func (n *NameIndex) Set(chatID, label string) error {
	if err := n.t.set(chatID, label); err != nil {
		return fmt.Errorf("set name %s: %w", chatID, err)
	}
	return nil
}

func (n *NameIndex) Remove(chatID string) error {
	if _, err := n.t.remove(chatID); err != nil {
		return fmt.Errorf("remove name %s: %w", chatID, err)
	}
	return nil
}
