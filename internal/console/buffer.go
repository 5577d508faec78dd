// Package console is the host-side view of the supervised server: a bounded,
// filterable log buffer fed by a poller, and terminal rendering.
package console

import (
	"strings"
	"sync"
	"time"
)

// DefaultMaxLines bounds the buffer when no size is given.
const DefaultMaxLines = 1000

// Entry is one displayed log line.
type Entry struct {
	Time     time.Time `json:"time"`
	Text     string    `json:"text"`
	Severity Severity  `json:"severity"`
}

// Format renders the entry as "[HH:MM:SS] text".
func (e Entry) Format() string {
	return "[" + e.Time.Format("15:04:05") + "] " + e.Text
}

// LogBuffer is a fixed-size ring of entries; the oldest entry is evicted when full.
type LogBuffer struct {
	mu      sync.RWMutex
	entries []Entry
	head    int
	size    int
	total   uint64
}

func NewLogBuffer(maxLines int) *LogBuffer {
	if maxLines <= 0 {
		maxLines = DefaultMaxLines
	}
	return &LogBuffer{entries: make([]Entry, maxLines)}
}

func (b *LogBuffer) Cap() int { return len(b.entries) }

func (b *LogBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Total counts every line ever added, including evicted ones.
func (b *LogBuffer) Total() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.total
}

// Add appends one line stamped with t.
func (b *LogBuffer) Add(t time.Time, text string) Entry {
	e := Entry{Time: t, Text: text, Severity: DetectSeverity(text)}
	b.mu.Lock()
	defer b.mu.Unlock()
	c := len(b.entries)
	b.entries[(b.head+b.size)%c] = e
	if b.size < c {
		b.size++
	} else {
		b.head = (b.head + 1) % c
	}
	b.total++
	return e
}

// Lines returns the buffered entries, oldest first.
func (b *LogBuffer) Lines() []Entry {
	return b.Filter("")
}

// Filter returns entries whose text contains query, ignoring case. An empty
// query matches everything.
func (b *LogBuffer) Filter(query string) []Entry {
	q := strings.ToLower(query)
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Entry, 0, b.size)
	for i := 0; i < b.size; i++ {
		e := b.entries[(b.head+i)%len(b.entries)]
		if q == "" || strings.Contains(strings.ToLower(e.Text), q) {
			out = append(out, e)
		}
	}
	return out
}

// Export returns the filtered entries as newline-joined text for copying.
func (b *LogBuffer) Export(query string) string {
	entries := b.Filter(query)
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Format()
	}
	return strings.Join(lines, "\n")
}

func (b *LogBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := range b.entries {
		b.entries[i] = Entry{}
	}
	b.head = 0
	b.size = 0
}
