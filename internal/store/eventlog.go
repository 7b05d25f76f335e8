package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/atomic"
	"go.uber.org/zap"
)

const (
	logFileName = "bot_log.json"

	// maxLogEntries caps the log; the oldest entry is evicted first.
	maxLogEntries = 1000
)

// LogEntry is one line of the bot's append-only activity log.
type LogEntry struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// EventLog is a bounded, newest-first activity log persisted to its own
// JSON file. Write failures are logged and swallowed; the log is
// informational and must never block ticket handling.
type EventLog struct {
	path   string
	logger *zap.Logger

	mu      sync.Mutex
	entries []LogEntry // newest-first
}

// NewEventLog loads (or initializes) the log file under dataDir.
func NewEventLog(dataDir string, logger *zap.Logger) (*EventLog, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	l := &EventLog{path: filepath.Join(dataDir, logFileName), logger: logger}

	data, err := os.ReadFile(l.path)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read bot log: %w", err)
	}
	if err := json.Unmarshal(data, &l.entries); err != nil {
		// A corrupt log is not worth failing startup over.
		logger.Warn("bot log unreadable, starting fresh", zap.String("path", l.path), zap.Error(err))
		l.entries = nil
	}
	return l, nil
}

// Append records a message at the head of the log, evicting the oldest
// entry beyond the cap.
func (l *EventLog) Append(message string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append([]LogEntry{{Time: time.Now().UTC(), Message: message}}, l.entries...)
	if len(l.entries) > maxLogEntries {
		l.entries = l.entries[:maxLogEntries]
	}
	data, err := json.MarshalIndent(l.entries, "", "  ")
	if err != nil {
		l.logger.Warn("bot log encode failed", zap.Error(err))
		return
	}
	if err := atomic.WriteFile(l.path, bytes.NewReader(data)); err != nil {
		l.logger.Warn("bot log write failed", zap.String("path", l.path), zap.Error(err))
	}
}

// Recent returns up to n newest entries.
func (l *EventLog) Recent(n int) []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	return append([]LogEntry(nil), l.entries[:n]...)
}
