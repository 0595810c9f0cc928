package store

import "fmt"

// MappingStore maps a message key ("<chat>-<message>") to the record key
// ("<owner>-<note>") created for it. A key present here has been processed.
type MappingStore struct {
	t *table
}

func NewMappingStore(kv KV, tableName string) (*MappingStore, error) {
	t, err := loadTable(kv, tableName)
	if err != nil {
		return nil, err
	}
	return &MappingStore{t: t}, nil
}

func (m *MappingStore) Get(messageKey string) (string, bool) {
	return m.t.get(messageKey)
}

// Put records messageKey -> recordKey, overwriting any previous value.
// If the durable write fails nothing changes in memory.
func (m *MappingStore) Put(messageKey, recordKey string) error {
	if err := m.t.set(messageKey, recordKey); err != nil {
		return fmt.Errorf("put mapping %s: %w", messageKey, err)
	}
	return nil
}

// PutNew is Put for keys that must not exist yet.
func (m *MappingStore) PutNew(messageKey, recordKey string) error {
	if existing, ok := m.t.get(messageKey); ok {
		return fmt.Errorf("%w: %s -> %s", ErrAlreadyMapped, messageKey, existing)
	}
	return m.Put(messageKey, recordKey)
}

func (m *MappingStore) RemoveByKey(messageKey string) error {
	ok, err := m.t.remove(messageKey)
	if err != nil {
		return fmt.Errorf("remove mapping %s: %w", messageKey, err)
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RemoveByValue drops every message key pointing at recordKey and returns them.
func (m *MappingStore) RemoveByValue(recordKey string) ([]string, error) {
	removed, err := m.t.removeValue(recordKey)
	if err != nil {
		return removed, fmt.Errorf("remove mappings for %s: %w", recordKey, err)
	}
	if len(removed) == 0 {
		return nil, ErrNotFound
	}
	return removed, nil
}

func (m *MappingStore) Len() int {
	return m.t.len()
}
