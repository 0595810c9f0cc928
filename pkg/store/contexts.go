package store

import "fmt"

// ContextMap binds a chat (short id, without the -100 prefix) to a registry
// context reference. Several chats may share one reference.
type ContextMap struct {
	t *table
}

func NewContextMap(kv KV, tableName string) (*ContextMap, error) {
	t, err := loadTable(kv, tableName)
	if err != nil {
		return nil, err
	}
	return &ContextMap{t: t}, nil
}

func (c *ContextMap) Get(chatID string) (string, bool) {
	return c.t.get(chatID)
}

func (c *ContextMap) Set(chatID, contextRef string) error {
	if err := c.t.set(chatID, contextRef); err != nil {
		return fmt.Errorf("set context %s: %w", chatID, err)
	}
	return nil
}

func (c *ContextMap) Remove(chatID string) error {
	ok, err := c.t.remove(chatID)
	if err != nil {
		return fmt.Errorf("remove context %s: %w", chatID, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// LinkedChat returns another chat bound to the same context as chatID. A
// channel and its discussion group are linked this way.
func (c *ContextMap) LinkedChat(chatID string) (string, bool) {
	ref, ok := c.t.get(chatID)
	if !ok {
		return "", false
	}
	for _, e := range c.t.entries() {
		if e.Key != chatID && e.Value == ref {
			return e.Key, true
		}
	}
	return "", false
}

func (c *ContextMap) Entries() []Entry {
	return c.t.entries()
}

func (c *ContextMap) Len() int {
	return c.t.len()
}
