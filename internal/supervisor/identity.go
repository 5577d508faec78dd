package supervisor

import (
	"context"
	"errors"
	"strconv"

	"github.com/loykin/localserve/internal/store"
)

// Identity is what survives a host restart: enough to find the server again.
type Identity struct {
	PID       int
	LogPath   string
	StartUnix int64
	LaunchID  string
	Port      int
	Root      string
}

type identityKeys struct {
	pid, logFile, startUnix, launchID, port, root string
}

func keysFor(name string) identityKeys {
	return identityKeys{
		pid:       name + ".process_id",
		logFile:   name + ".log_file",
		startUnix: name + ".start_unix",
		launchID:  name + ".launch_id",
		port:      name + ".port",
		root:      name + ".root_dir",
	}
}

func (k identityKeys) all() []string {
	return []string{k.pid, k.logFile, k.startUnix, k.launchID, k.port, k.root}
}

// loadIdentity returns ok=false when no usable identity is stored.
func loadIdentity(ctx context.Context, st store.Store, k identityKeys) (Identity, bool, error) {
	raw, err := st.Get(ctx, k.pid)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}
	pid, err := strconv.Atoi(raw)
	if err != nil || pid <= 0 {
		return Identity{}, false, nil
	}
	id := Identity{PID: pid}
	if id.LogPath, err = optional(ctx, st, k.logFile); err != nil {
		return Identity{}, false, err
	}
	s, err := optional(ctx, st, k.startUnix)
	if err != nil {
		return Identity{}, false, err
	}
	id.StartUnix, _ = strconv.ParseInt(s, 10, 64)
	if id.LaunchID, err = optional(ctx, st, k.launchID); err != nil {
		return Identity{}, false, err
	}
	if s, err = optional(ctx, st, k.port); err != nil {
		return Identity{}, false, err
	}
	id.Port, _ = strconv.Atoi(s)
	if id.Root, err = optional(ctx, st, k.root); err != nil {
		return Identity{}, false, err
	}
	return id, true, nil
}

func optional(ctx context.Context, st store.Store, key string) (string, error) {
	v, err := st.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	return v, err
}

func saveIdentity(ctx context.Context, st store.Store, k identityKeys, id Identity) error {
	start := ""
	if id.StartUnix > 0 {
		start = strconv.FormatInt(id.StartUnix, 10)
	}
	return st.Set(ctx, map[string]string{
		k.pid:       strconv.Itoa(id.PID),
		k.logFile:   id.LogPath,
		k.startUnix: start,
		k.launchID:  id.LaunchID,
		k.port:      strconv.Itoa(id.Port),
		k.root:      id.Root,
	})
}

func clearIdentity(ctx context.Context, st store.Store, k identityKeys) error {
	return st.Delete(ctx, k.all()...)
}
