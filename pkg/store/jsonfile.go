package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// JSONFileKV keeps one pretty-printed JSON object per table in dir/<table>.json.
// Each file is loaded fully on first use and rewritten atomically on every change.
type JSONFileKV struct {
	dir    string
	mu     sync.Mutex
	tables map[string]map[string]string
}

func OpenJSONFile(dir string) (*JSONFileKV, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("json store: empty directory")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("json store: create dir: %w", err)
	}
	return &JSONFileKV{
		dir:    dir,
		tables: map[string]map[string]string{},
	}, nil
}

func (s *JSONFileKV) Get(table, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return "", false, err
	}
	v, ok := t[key]
	return v, ok, nil
}

func (s *JSONFileKV) Set(table, key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return err
	}
	next := cloneTable(t)
	next[key] = value
	if err := s.writeLocked(table, next); err != nil {
		return err
	}
	s.tables[table] = next
	return nil
}

func (s *JSONFileKV) Delete(table, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.tableLocked(table)
	if err != nil {
		return err
	}
	if _, ok := t[key]; !ok {
		return nil
	}
	next := cloneTable(t)
	delete(next, key)
	if err := s.writeLocked(table, next); err != nil {
		return err
	}
	s.tables[table] = next
	return nil
}

func (s *JSONFileKV) Iterate(table string, fn func(key, value string) error) error {
	s.mu.Lock()
	t, err := s.tableLocked(table)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	snapshot := cloneTable(t)
	s.mu.Unlock()

	keys := make([]string, 0, len(snapshot))
	for k := range snapshot {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := fn(k, snapshot[k]); err != nil {
			return err
		}
	}
	return nil
}

func (s *JSONFileKV) Close() error {
	return nil
}

func (s *JSONFileKV) path(table string) string {
	return filepath.Join(s.dir, table+".json")
}

func (s *JSONFileKV) tableLocked(table string) (map[string]string, error) {
	if strings.TrimSpace(table) == "" || strings.ContainsAny(table, `/\`) {
		return nil, fmt.Errorf("json store: invalid table name %q", table)
	}
	if t, ok := s.tables[table]; ok {
		return t, nil
	}

	t := map[string]string{}
	data, err := os.ReadFile(s.path(table))
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("json store: read %s: %w", table, err)
	case len(bytes.TrimSpace(data)) > 0:
		if err := json.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("json store: decode %s: %w", table, err)
		}
	}
	s.tables[table] = t
	return t, nil
}

func (s *JSONFileKV) writeLocked(table string, t map[string]string) error {
	data, err := json.MarshalIndent(t, "", "  ")
	if err != nil {
		return fmt.Errorf("json store: encode %s: %w", table, err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(s.dir, "."+table+".*.tmp")
	if err != nil {
		return fmt.Errorf("json store: temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("json store: write %s: %w", table, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("json store: sync %s: %w", table, err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("json store: close %s: %w", table, err)
	}
	if err := os.Rename(tmpPath, s.path(table)); err != nil {
		cleanup()
		return fmt.Errorf("json store: replace %s: %w", table, err)
	}
	return nil
}

func cloneTable(t map[string]string) map[string]string {
	out := make(map[string]string, len(t)+1)
	for k, v := range t {
		out[k] = v
	}
	return out
}
