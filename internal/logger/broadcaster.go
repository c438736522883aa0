package logger

import (
	"sync"

	"github.com/goccy/go-json"
)

const (
	defaultBufferSize = 500

	// MessageType is the push message type of a diagnostics entry.
	MessageType = "diagnostics:entry"
)

// Broadcaster pushes typed messages to connected views.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LogEntry represents a parsed log entry for streaming.
type LogEntry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// LogBroadcaster implements io.Writer. It keeps the most recent entries and
// forwards each one to the diagnostics channel.
type LogBroadcaster struct {
	hub    Broadcaster
	recent *entryLog
	mu     sync.RWMutex
}

// NewLogBroadcaster creates a new log broadcaster.
// Hub can be nil initially and set later with SetHub.
func NewLogBroadcaster(hub Broadcaster, bufferSize int) *LogBroadcaster {
	return &LogBroadcaster{
		hub:    hub,
		recent: newEntryLog(bufferSize),
	}
}

// SetHub sets the broadcaster hub for sending messages.
func (b *LogBroadcaster) SetHub(hub Broadcaster) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hub = hub
}

// Write implements io.Writer. It receives JSON log entries from zerolog.
func (b *LogBroadcaster) Write(p []byte) (n int, err error) {
	n = len(p)

	entry, parseErr := parseLogEntry(p)
	if parseErr != nil {
		return n, nil //nolint:nilerr // Silently ignore malformed log entries
	}

	b.recent.add(entry)

	b.mu.RLock()
	hub := b.hub
	b.mu.RUnlock()

	if hub != nil {
		_ = hub.Broadcast(MessageType, entry)
	}

	return n, nil
}

// RecentLogs returns the buffered entries matching f, oldest first.
func (b *LogBroadcaster) RecentLogs(f Filter) []LogEntry {
	return b.recent.query(f)
}

// parseLogEntry splits a zerolog JSON line into the well-known fields and
// the rest.
func parseLogEntry(data []byte) (LogEntry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return LogEntry{}, err
	}

	entry := LogEntry{}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}

	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}

	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}

	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}

	if len(raw) > 0 {
		entry.Fields = raw
	}

	return entry, nil
}
