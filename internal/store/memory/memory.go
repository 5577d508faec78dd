// Package memory is an in-process store.Store. State is lost with the process.
package memory

import (
	"context"
	"sync"

	"github.com/loykin/localserve/internal/store"
)

type DB struct {
	mu sync.RWMutex
	m  map[string]string
}

func New() *DB { return &DB{m: make(map[string]string)} }

func (d *DB) EnsureSchema(context.Context) error { return nil }

func (d *DB) Get(_ context.Context, key string) (string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (d *DB) Set(_ context.Context, kv map[string]string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for k, v := range kv {
		d.m[k] = v
	}
	return nil
}

func (d *DB) Delete(_ context.Context, keys ...string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, k := range keys {
		delete(d.m, k)
	}
	return nil
}

func (d *DB) Close() error { return nil }
