package logger

import (
	"sync"

	"github.com/rs/zerolog"
)

// Filter selects diagnostics entries. Zero fields match everything.
type Filter struct {
	// MinLevel drops entries less severe than this zerolog level name.
	MinLevel  string
	Component string
	// Limit keeps only the newest matches.
	Limit int
}

func (f Filter) match(e LogEntry, floor zerolog.Level) bool {
	if f.Component != "" && e.Component != f.Component {
		return false
	}
	if f.MinLevel == "" {
		return true
	}
	lvl, err := zerolog.ParseLevel(e.Level)
	if err != nil {
		return false
	}
	return lvl >= floor
}

// entryLog holds the newest diagnostics entries. Once full, each add
// overwrites the oldest one.
type entryLog struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

func newEntryLog(capacity int) *entryLog {
	if capacity <= 0 {
		capacity = defaultBufferSize
	}
	return &entryLog{entries: make([]LogEntry, capacity)}
}

func (l *entryLog) add(e LogEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries[l.next] = e
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// query returns matching entries, oldest first.
func (l *entryLog) query(f Filter) []LogEntry {
	floor := zerolog.TraceLevel
	if f.MinLevel != "" {
		lvl, err := zerolog.ParseLevel(f.MinLevel)
		if err != nil {
			return []LogEntry{}
		}
		floor = lvl
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	start, n := 0, l.next
	if l.full {
		start, n = l.next, len(l.entries)
	}

	out := make([]LogEntry, 0, n)
	for i := 0; i < n; i++ {
		e := l.entries[(start+i)%len(l.entries)]
		if f.match(e, floor) {
			out = append(out, e)
		}
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[len(out)-f.Limit:]
	}
	return out
}
