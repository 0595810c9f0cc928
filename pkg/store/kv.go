// Package store holds the flat key-value persistence used by the bot and the
// in-memory indexes replayed from it at startup.
package store

import (
	"errors"
	"fmt"

	"github.com/nomland/nunti/pkg/config"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyMapped = errors.New("store: message already mapped")
	ErrEmptyKey      = errors.New("store: empty key")
)

// KV is a set of named string tables. Writes are synchronous: when Set or
// Delete returns nil the change is durable.
type KV interface {
	Get(table, key string) (string, bool, error)
	Set(table, key, value string) error
	Delete(table, key string) error
	// Iterate calls fn for every entry of table in key order. Returning an
	// error from fn stops the iteration and is passed through.
	Iterate(table string, fn func(key, value string) error) error
	Close() error
}

// Open builds the KV backend selected by cfg.Backend.
func Open(cfg config.StorageConfig) (KV, error) {
	switch cfg.Backend {
	case "", "json":
		return OpenJSONFile(config.ExpandHome(cfg.Dir))
	case "sqlite":
		return OpenSQLite(config.ExpandHome(cfg.SQLitePath))
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// Tables lists every table name the repository reads, in a stable order.
func Tables(cfg config.StorageConfig) []string {
	return []string{cfg.IDMapTable, cfg.ContextMapTable, cfg.NameTable, cfg.WatchTable}
}
