package core

import (
	"fmt"
	"io"

	"entitygraph/internal/config"
	"entitygraph/internal/infra/persistence/memory"
	"entitygraph/internal/infra/persistence/postgres"
	"entitygraph/internal/infra/persistence/sqlite"
	"entitygraph/pkg/domain"
)

// OpenPersistentStore selects a backend from cfg. Every backend applies policy
// to the records it accepts.
func OpenPersistentStore(cfg config.Storage, engine *domain.RulesEngine, policy domain.ValidationPolicy) (domain.PersistentStore, error) {
	opt := memory.WithPolicy(policy)
	switch cfg.Driver {
	case config.StorageMemory:
		return memory.NewStore(engine, opt), nil
	case "", config.StorageSQLite:
		return sqlite.NewStore(cfg.SQLitePath, engine, opt)
	case config.StoragePostgres:
		return postgres.NewStore(cfg.PostgresDSN, engine, opt)
	default:
		return nil, fmt.Errorf("unknown storage driver %s", cfg.Driver)
	}
}

// CloseStore releases database handles held by durable backends.
func CloseStore(store domain.PersistentStore) error {
	if c, ok := store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
