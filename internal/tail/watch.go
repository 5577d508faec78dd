package tail

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch signals on the returned channel whenever path is written, created or
// replaced. Signals coalesce; a receiver that falls behind sees one pending
// wakeup. The parent directory is watched so the file may not exist yet.
// The channel is closed when ctx is done.
func Watch(ctx context.Context, path string) (<-chan struct{}, error) {
	return WatchMatch(ctx, path)
}

// WatchMatch is Watch for any file matching one of the glob patterns, so a
// pattern such as "logs/server_*.log" keeps working when the server moves to
// another file in the same directory.
func WatchMatch(ctx context.Context, patterns ...string) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	abs := make([]string, 0, len(patterns))
	dirs := make(map[string]bool)
	for _, p := range patterns {
		a, err := filepath.Abs(p)
		if err != nil {
			_ = w.Close()
			return nil, err
		}
		if _, err := filepath.Match(a, a); err != nil {
			_ = w.Close()
			return nil, err
		}
		abs = append(abs, a)
		dir := filepath.Dir(a)
		if dirs[dir] {
			continue
		}
		if err := w.Add(dir); err != nil {
			_ = w.Close()
			return nil, err
		}
		dirs[dir] = true
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !matchesAny(abs, filepath.Clean(ev.Name)) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
					continue
				}
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func matchesAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if p == name {
			return true
		}
		if ok, _ := filepath.Match(p, name); ok {
			return true
		}
	}
	return false
}
