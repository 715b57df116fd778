// Package sessionstore provides persistent sdk.SessionStore implementations
// for native clients: a JSON file, a redis hash, or a postgres row. Every
// store supports compare-and-clear, so a rejected session is dropped exactly
// once even when several processes share it.
package sessionstore

import (
	"context"
	"fmt"

	"github.com/spf13/afero"

	"github.com/birbparty/nestlink/sdk"
)

// Store is a session store holding external resources
type Store interface {
	sdk.SessionStore
	CompareAndClear(ctx context.Context, token string) (bool, error)
	Close() error
}

type memoryStore struct {
	*sdk.MemorySessionStore
}

func (memoryStore) Close() error { return nil }

// Open builds the store selected by cfg.Backend
func Open(cfg *Config, fs afero.Fs) (Store, error) {
	switch cfg.Backend {
	case BackendMemory:
		return memoryStore{sdk.NewMemorySessionStore()}, nil
	case BackendFile, "":
		if fs == nil {
			fs = afero.NewOsFs()
		}
		return NewFileStore(fs, cfg.File.Path), nil
	case BackendRedis:
		return NewRedisStore(&cfg.Redis, cfg.Profile)
	case BackendPostgres:
		return NewPostgresStore(&cfg.Postgres, cfg.Profile)
	default:
		return nil, fmt.Errorf("unknown session backend %q", cfg.Backend)
	}
}
