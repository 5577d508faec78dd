package factory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/loykin/localserve/internal/store"
	"github.com/loykin/localserve/internal/store/memory"
	pg "github.com/loykin/localserve/internal/store/postgres"
	sq "github.com/loykin/localserve/internal/store/sqlite"
)

// NewFromConfig builds the backend named by cfg.Type. An empty type falls
// back to cfg.DSN, then to cfg.Path as a sqlite file.
func NewFromConfig(cfg store.Config) (store.Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case "memory", "mem":
		return memory.New(), nil
	case "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Path) == "" && cfg.DSN != "" {
			return NewFromDSN(cfg.DSN)
		}
		return sq.New(cfg.Path)
	case "postgres", "postgresql":
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		return pg.New(cfg.DSN)
	case "":
		if cfg.DSN != "" {
			return NewFromDSN(cfg.DSN)
		}
		if cfg.Path != "" {
			return sq.New(cfg.Path)
		}
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported store type: %s (supported: memory, sqlite, postgres)", cfg.Type)
	}
}

// NewFromDSN selects a store implementation based on DSN.
// Supported:
//   - memory:   "memory://"
//   - sqlite:   "sqlite://<path>" or a bare filepath
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.Store, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "memory://") {
		return memory.New(), nil
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	return sq.New(d)
}
