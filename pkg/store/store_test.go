package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nomland/nunti/pkg/config"
)

// failingKV wraps a KV and fails writes on demand.
type failingKV struct {
	KV
	failWrites bool
}

var errDiskFull = errors.New("disk full")

func (f *failingKV) Set(table, key, value string) error {
	if f.failWrites {
		return errDiskFull
	}
	return f.KV.Set(table, key, value)
}

func (f *failingKV) Delete(table, key string) error {
	if f.failWrites {
		return errDiskFull
	}
	return f.KV.Delete(table, key)
}

func newJSONKV(t *testing.T) *JSONFileKV {
	t.Helper()
	kv, err := OpenJSONFile(t.TempDir())
	if err != nil {
		t.Fatalf("OpenJSONFile: %v", err)
	}
	return kv
}

func newSQLiteKV(t *testing.T) *SQLiteKV {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	kv, err := OpenSQLite(dsn)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = kv.Close() })
	return kv
}

func testStorageConfig() config.StorageConfig {
	return config.DefaultConfig().Storage
}

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()

	if _, ok, err := kv.Get("t1", "missing"); err != nil || ok {
		t.Fatalf("Get missing = ok %v err %v", ok, err)
	}
	if err := kv.Set("t1", "b", "2"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set("t1", "a", "1"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := kv.Set("t1", "a", "1b"); err != nil {
		t.Fatalf("Set overwrite: %v", err)
	}
	if err := kv.Set("t2", "a", "other"); err != nil {
		t.Fatalf("Set t2: %v", err)
	}

	v, ok, err := kv.Get("t1", "a")
	if err != nil || !ok || v != "1b" {
		t.Fatalf("Get a = %q %v %v, want 1b", v, ok, err)
	}

	var keys []string
	if err := kv.Iterate("t1", func(k, v string) error {
		keys = append(keys, k+"="+v)
		return nil
	}); err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	if strings.Join(keys, ",") != "a=1b,b=2" {
		t.Fatalf("Iterate = %v", keys)
	}

	if err := kv.Delete("t1", "a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok, _ := kv.Get("t1", "a"); ok {
		t.Fatal("key still present after Delete")
	}
	if v, _, _ := kv.Get("t2", "a"); v != "other" {
		t.Fatalf("t2 leaked delete, got %q", v)
	}
	if err := kv.Set("t1", "", "x"); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("Set empty key err = %v, want ErrEmptyKey", err)
	}
}

func TestJSONFileKV(t *testing.T) {
	exerciseKV(t, newJSONKV(t))
}

func TestSQLiteKV(t *testing.T) {
	exerciseKV(t, newSQLiteKV(t))
}

func TestJSONFileKV_ReloadFromDisk(t *testing.T) {
	dir := t.TempDir()
	kv, err := OpenJSONFile(dir)
	if err != nil {
		t.Fatalf("OpenJSONFile: %v", err)
	}
	if err := kv.Set("nunti-idMap", "1918703227-404", "60177-12"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "nunti-idMap.json"))
	if err != nil {
		t.Fatalf("read table file: %v", err)
	}
	if !strings.Contains(string(data), `"1918703227-404": "60177-12"`) {
		t.Fatalf("unexpected file content: %s", data)
	}

	reopened, err := OpenJSONFile(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	v, ok, err := reopened.Get("nunti-idMap", "1918703227-404")
	if err != nil || !ok || v != "60177-12" {
		t.Fatalf("Get after reopen = %q %v %v", v, ok, err)
	}
}

func TestJSONFileKV_RejectsBadTableName(t *testing.T) {
	kv := newJSONKV(t)
	if err := kv.Set("../escape", "k", "v"); err == nil {
		t.Fatal("expected error for table name with path separator")
	}
}

func TestMappingStore_PutFailureLeavesMemoryUntouched(t *testing.T) {
	kv := &failingKV{KV: newJSONKV(t)}
	m, err := NewMappingStore(kv, "ids")
	if err != nil {
		t.Fatalf("NewMappingStore: %v", err)
	}

	kv.failWrites = true
	if err := m.Put("100-1", "7-1"); !errors.Is(err, errDiskFull) {
		t.Fatalf("Put err = %v, want disk full", err)
	}
	if _, ok := m.Get("100-1"); ok {
		t.Fatal("mapping visible in memory after failed durable write")
	}

	kv.failWrites = false
	if err := m.Put("100-1", "7-1"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	kv.failWrites = true
	if err := m.RemoveByKey("100-1"); err == nil {
		t.Fatal("expected RemoveByKey to fail")
	}
	if v, ok := m.Get("100-1"); !ok || v != "7-1" {
		t.Fatalf("mapping lost after failed delete: %q %v", v, ok)
	}
}

func TestMappingStore_PutNewAndRemove(t *testing.T) {
	m, err := NewMappingStore(newJSONKV(t), "ids")
	if err != nil {
		t.Fatalf("NewMappingStore: %v", err)
	}
	if err := m.PutNew("100-1", "7-1"); err != nil {
		t.Fatalf("PutNew: %v", err)
	}
	if err := m.PutNew("100-1", "7-2"); !errors.Is(err, ErrAlreadyMapped) {
		t.Fatalf("second PutNew err = %v, want ErrAlreadyMapped", err)
	}
	if err := m.Put("200-5", "7-1"); err != nil {
		t.Fatalf("Put alias: %v", err)
	}
	if err := m.Put("100-2", "7-3"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := m.RemoveByValue("7-1")
	if err != nil {
		t.Fatalf("RemoveByValue: %v", err)
	}
	if strings.Join(removed, ",") != "100-1,200-5" {
		t.Fatalf("removed = %v", removed)
	}
	if m.Len() != 1 {
		t.Fatalf("Len = %d, want 1", m.Len())
	}
	if _, err := m.RemoveByValue("7-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveByValue again err = %v, want ErrNotFound", err)
	}
	if err := m.RemoveByKey("nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("RemoveByKey missing err = %v", err)
	}
}

func TestContextMap_LinkedChat(t *testing.T) {
	c, err := NewContextMap(newJSONKV(t), "ctx")
	if err != nil {
		t.Fatalf("NewContextMap: %v", err)
	}
	mustSet := func(chat, ref string) {
		if err := c.Set(chat, ref); err != nil {
			t.Fatalf("Set %s: %v", chat, err)
		}
	}
	mustSet("1700000001", "555")  // channel
	mustSet("1800000002", "555")  // discussion group
	mustSet("1900000003", "777")

	if linked, ok := c.LinkedChat("1700000001"); !ok || linked != "1800000002" {
		t.Fatalf("LinkedChat(channel) = %q %v", linked, ok)
	}
	if _, ok := c.LinkedChat("1900000003"); ok {
		t.Fatal("unexpected link for unshared context")
	}
	if _, ok := c.LinkedChat("unknown"); ok {
		t.Fatal("unexpected link for unknown chat")
	}
	if err := c.Remove("1900000003"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := c.Remove("1900000003"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Remove twice err = %v", err)
	}
}

func TestWatchTopics(t *testing.T) {
	w, err := NewWatchTopics(newJSONKV(t), "watch")
	if err != nil {
		t.Fatalf("NewWatchTopics: %v", err)
	}
	if err := w.Add("1918703227", 8, "https://t.me/c/1918703227/8"); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !w.Has("1918703227", 8) || w.Has("1918703227", 9) {
		t.Fatal("Has returned wrong membership")
	}
	if err := w.Remove("1918703227", 8); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if w.Len() != 0 {
		t.Fatalf("Len = %d", w.Len())
	}
}

func TestRepositoryLoadReplaysTables(t *testing.T) {
	kv := newJSONKV(t)
	cfg := testStorageConfig()
	_ = kv.Set(cfg.IDMapTable, "100-1", "7-1")
	_ = kv.Set(cfg.ContextMapTable, "100", "555")
	_ = kv.Set(cfg.WatchTable, "100-3", "https://t.me/c/100/3")

	repo, err := Load(kv, cfg)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	st := repo.Stats()
	if st.Mappings != 1 || st.Contexts != 1 || st.Watches != 1 {
		t.Fatalf("Stats = %+v", st)
	}
	if !repo.Watches.Has("100", 3) {
		t.Fatal("watch topic not replayed")
	}
}

func TestMigrateJSONToSQLite(t *testing.T) {
	src := newJSONKV(t)
	dst := newSQLiteKV(t)
	cfg := testStorageConfig()
	_ = src.Set(cfg.IDMapTable, "100-1", "7-1")
	_ = src.Set(cfg.IDMapTable, "100-2", "7-2")
	_ = src.Set(cfg.ContextMapTable, "100", "555")

	n, err := Migrate(src, dst, Tables(cfg))
	if err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	if n != 3 {
		t.Fatalf("migrated %d entries, want 3", n)
	}
	if v, ok, _ := dst.Get(cfg.IDMapTable, "100-2"); !ok || v != "7-2" {
		t.Fatalf("dst Get = %q %v", v, ok)
	}
}

func TestOpenUnknownBackend(t *testing.T) {
	cfg := testStorageConfig()
	cfg.Backend = "redis"
	if _, err := Open(cfg); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
