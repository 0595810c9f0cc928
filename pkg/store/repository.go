package store

import (
	"fmt"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
)

// Repository owns every persisted index. It is built once at startup by
// replaying the KV tables and then passed to the router and wizards.
type Repository struct {
	Mappings *MappingStore
	Contexts *ContextMap
	Names    *NameIndex
	Watches  *WatchTopics
}

type Stats struct {
	Mappings int `json:"mappings"`
	Contexts int `json:"contexts"`
	Watches  int `json:"watch_topics"`
}

func Load(kv KV, cfg config.StorageConfig) (*Repository, error) {
	mappings, err := NewMappingStore(kv, cfg.IDMapTable)
	if err != nil {
		return nil, err
	}
	contexts, err := NewContextMap(kv, cfg.ContextMapTable)
	if err != nil {
		return nil, err
	}
	names, err := NewNameIndex(kv, cfg.NameTable)
	if err != nil {
		return nil, err
	}
	watches, err := NewWatchTopics(kv, cfg.WatchTable)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		Mappings: mappings,
		Contexts: contexts,
		Names:    names,
		Watches:  watches,
	}
	logger.InfoCF("store", "Repository loaded", map[string]interface{}{
		"mappings": mappings.Len(),
		"contexts": contexts.Len(),
		"watches":  watches.Len(),
	})
	return r, nil
}

func (r *Repository) Stats() Stats {
	return Stats{
		Mappings: r.Mappings.Len(),
		Contexts: r.Contexts.Len(),
		Watches:  r.Watches.Len(),
	}
}

// Migrate copies the given tables from src to dst and returns the number of
// entries written.
func Migrate(src, dst KV, tables []string) (int, error) {
	total := 0
	for _, name := range tables {
		if name == "" {
			continue
		}
		n := 0
		err := src.Iterate(name, func(k, v string) error {
			if err := dst.Set(name, k, v); err != nil {
				return err
			}
			n++
			return nil
		})
		total += n
		if err != nil {
			return total, fmt.Errorf("migrate %s: %w", name, err)
		}
		logger.InfoCF("store", "Table migrated", map[string]interface{}{
			"table":   name,
			"entries": n,
		})
	}
	return total, nil
}
