package testutil

import (
	"fmt"
	"strings"
	"sync"
)

// LogEntry is one recorded log call.
type LogEntry struct {
	Level string
	Msg   string
	KV    []interface{}
}

// Logger records log calls. It satisfies the Logger interfaces used across
// the module.
type Logger struct {
	mu      sync.Mutex
	entries []LogEntry
}

func (l *Logger) record(level, msg string, kv []interface{}) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, LogEntry{Level: level, Msg: msg, KV: kv})
}

func (l *Logger) Debug(msg string, kv ...interface{}) { l.record("debug", msg, kv) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.record("info", msg, kv) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.record("warn", msg, kv) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.record("error", msg, kv) }

// Entries returns a copy of everything logged so far.
func (l *Logger) Entries() []LogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]LogEntry(nil), l.entries...)
}

// Has reports whether a message at level contains substr, either in the
// message itself or in one of its values.
func (l *Logger) Has(level, substr string) bool {
	for _, e := range l.Entries() {
		if e.Level != level {
			continue
		}
		if strings.Contains(e.Msg, substr) {
			return true
		}
		for _, v := range e.KV {
			if strings.Contains(fmt.Sprint(v), substr) {
				return true
			}
		}
	}
	return false
}
