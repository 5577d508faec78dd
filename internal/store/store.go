package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("store: key not found")

// Store is a small key/value persistence interface used to keep the identity
// of the supervised process across host restarts.
type Store interface {
	EnsureSchema(ctx context.Context) error
	Get(ctx context.Context, key string) (string, error)
	// Set writes all pairs in one transaction.
	Set(ctx context.Context, kv map[string]string) error
	// Delete removes all keys in one transaction. Missing keys are not an error.
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Type string `mapstructure:"type" json:"type"` // memory | sqlite | postgres
	Path string `mapstructure:"path" json:"path"` // sqlite file
	DSN  string `mapstructure:"dsn" json:"dsn"`   // postgres DSN, or a DSN understood by factory.NewFromDSN
}
