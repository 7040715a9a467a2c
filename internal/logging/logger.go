package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// RequestLog is one access-log record for a cache API call.
type RequestLog struct {
	Timestamp  time.Time `json:"timestamp"`
	RequestID  string    `json:"request_id"`
	TraceID    string    `json:"trace_id,omitempty"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	Operation  string    `json:"operation,omitempty"`
	Key        string    `json:"key,omitempty"`
	Status     int       `json:"status"`
	DurationMs int64     `json:"duration_ms"`
	Hit        *bool     `json:"hit,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// Logger writes access logs: a human-readable line to the console and,
// when configured, one JSON document per line to a file.
type Logger struct {
	mu      sync.Mutex
	enabled bool
	file    *os.File
	console io.Writer
}

var defaultLogger = &Logger{enabled: true, console: os.Stdout}

// Default returns the default access logger
func Default() *Logger {
	return defaultLogger
}

// SetOutput sets the JSON log file
func (l *Logger) SetOutput(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		l.file.Close()
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	l.file = f
	return nil
}

// SetConsole redirects console output; nil disables it.
func (l *Logger) SetConsole(w io.Writer) {
	l.mu.Lock()
	l.console = w
	l.mu.Unlock()
}

// SetEnabled turns access logging on or off.
func (l *Logger) SetEnabled(enabled bool) {
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// Log writes an access log entry
func (l *Logger) Log(entry *RequestLog) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled {
		return
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}

	if l.console != nil {
		status := "✓"
		if entry.Status >= 400 {
			status = "✗"
		}
		hit := ""
		if entry.Hit != nil {
			if *entry.Hit {
				hit = " [hit]"
			} else {
				hit = " [miss]"
			}
		}
		fmt.Fprintf(l.console, "[request] %s %s %s %s %d %dms%s\n",
			status, entry.RequestID, entry.Method, entry.Path, entry.Status, entry.DurationMs, hit)
		if entry.Error != "" {
			fmt.Fprintf(l.console, "[request]   error: %s\n", entry.Error)
		}
	}

	if l.file != nil {
		data, _ := json.Marshal(entry)
		l.file.Write(append(data, '\n'))
	}
}

// Close closes the log file
func (l *Logger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
