// Package tail reads only the bytes appended to a file since the previous read.
package tail

import (
	"io"
	"os"
	"sync"
)

// DefaultMaxChunk caps a single read.
const DefaultMaxChunk = 1 << 20

// Tailer tracks a read offset into one file. The offset never moves backwards
// except when the file shrinks or the path is replaced.
type Tailer struct {
	mu       sync.Mutex
	path     string
	offset   int64
	maxChunk int64
}

type Option func(*Tailer)

// WithMaxChunk bounds how many bytes one ReadNew call may return.
func WithMaxChunk(n int64) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.maxChunk = n
		}
	}
}

func New(path string, opts ...Option) *Tailer {
	t := &Tailer{path: path, maxChunk: DefaultMaxChunk}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Tailer) Path() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.path
}

func (t *Tailer) Offset() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offset
}

// SetPath points the tailer at path. The offset is kept when the path is unchanged.
func (t *Tailer) SetPath(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if path != t.path {
		t.path = path
		t.offset = 0
	}
}

// Reset points the tailer at path and rewinds to the beginning.
func (t *Tailer) Reset(path string) {
	t.mu.Lock()
	t.path = path
	t.offset = 0
	t.mu.Unlock()
}

// ReadNew returns the bytes appended since the last call. It returns nil when
// nothing changed, the file is missing, or any I/O error occurs.
func (t *Tailer) ReadNew() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.path == "" {
		return nil
	}
	// #nosec G304
	f, err := os.Open(t.path)
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	fi, err := f.Stat()
	if err != nil {
		return nil
	}
	size := fi.Size()
	if size < t.offset {
		// truncated or replaced
		t.offset = 0
	}
	if size == t.offset {
		return nil
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return nil
	}
	n := size - t.offset
	if n > t.maxChunk {
		n = t.maxChunk
	}
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if read > 0 {
		t.offset += int64(read)
	}
	if err != nil && read == 0 {
		return nil
	}
	return buf[:read]
}
