// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/localserve/internal/store"
)

// Run exercises st. The store must be empty.
func Run(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.EnsureSchema(ctx))
	require.NoError(t, st.EnsureSchema(ctx), "schema creation is idempotent")

	_, err := st.Get(ctx, "a.process_id")
	require.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, st.Set(ctx, map[string]string{
		"a.process_id": "1234",
		"a.log_file":   "/tmp/localserve/server_8080.log",
	}))
	v, err := st.Get(ctx, "a.process_id")
	require.NoError(t, err)
	assert.Equal(t, "1234", v)

	require.NoError(t, st.Set(ctx, map[string]string{"a.process_id": "5678"}))
	v, err = st.Get(ctx, "a.process_id")
	require.NoError(t, err)
	assert.Equal(t, "5678", v, "set overwrites")

	v, err = st.Get(ctx, "a.log_file")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/localserve/server_8080.log", v)

	require.NoError(t, st.Set(ctx, map[string]string{"b.process_id": "42"}))
	require.NoError(t, st.Delete(ctx, "a.process_id", "a.log_file", "a.missing"))
	_, err = st.Get(ctx, "a.process_id")
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.Get(ctx, "a.log_file")
	require.ErrorIs(t, err, store.ErrNotFound)

	v, err = st.Get(ctx, "b.process_id")
	require.NoError(t, err)
	assert.Equal(t, "42", v, "other instances are untouched")

	require.NoError(t, st.Set(ctx, nil))
	require.NoError(t, st.Delete(ctx))
}
