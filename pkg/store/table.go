package store

import (
	"fmt"
	"sort"
	"sync"
)

// table mirrors one KV table in memory. Durable writes happen first; the
// in-memory copy only changes once the backend accepted the write.
type table struct {
	kv   KV
	name string

	mu   sync.RWMutex
	data map[string]string
}

type Entry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func loadTable(kv KV, name string) (*table, error) {
	t := &table{kv: kv, name: name, data: map[string]string{}}
	err := kv.Iterate(name, func(k, v string) error {
		t.data[k] = v
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("load table %s: %w", name, err)
	}
	return t, nil
}

func (t *table) get(key string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	v, ok := t.data[key]
	return v, ok
}

func (t *table) set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.kv.Set(t.name, key, value); err != nil {
		return err
	}
	t.data[key] = value
	return nil
}

func (t *table) remove(key string) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.data[key]; !ok {
		return false, nil
	}
	if err := t.kv.Delete(t.name, key); err != nil {
		return false, err
	}
	delete(t.data, key)
	return true, nil
}

// removeValue deletes every key currently holding value.
func (t *table) removeValue(value string) ([]string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var removed []string
	for k, v := range t.data {
		if v != value {
			continue
		}
		if err := t.kv.Delete(t.name, k); err != nil {
			sort.Strings(removed)
			return removed, err
		}
		delete(t.data, k)
		removed = append(removed, k)
	}
	sort.Strings(removed)
	return removed, nil
}

func (t *table) len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.data)
}

func (t *table) entries() []Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Entry, 0, len(t.data))
	for k, v := range t.data {
		out = append(out, Entry{Key: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
