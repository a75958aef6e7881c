package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType represents the type of event
type EventType string

const (
	EventState   EventType = "state"
	EventExclude EventType = "exclude"
	EventPrice   EventType = "price"
	EventRun     EventType = "run"
	EventError   EventType = "error"
)

// EventLevel represents the severity level
type EventLevel string

const (
	LevelDebug   EventLevel = "debug"
	LevelInfo    EventLevel = "info"
	LevelWarning EventLevel = "warning"
	LevelError   EventLevel = "error"
)

// levelPriority maps event levels to numeric priorities for comparison
var levelPriority = map[EventLevel]int{
	LevelDebug:   0,
	LevelInfo:    1,
	LevelWarning: 2,
	LevelError:   3,
}

// ParseLevel maps a level name to an EventLevel, defaulting to info
func ParseLevel(s string) EventLevel {
	level := EventLevel(s)
	if _, ok := levelPriority[level]; ok {
		return level
	}
	return LevelInfo
}

// Event represents a single event in a build
type Event struct {
	Timestamp  time.Time         `json:"ts"`
	Level      EventLevel        `json:"level"`
	Event      EventType         `json:"event"`
	Stage      string            `json:"stage,omitempty"`
	Message    string            `json:"message,omitempty"`
	RunID      string            `json:"run_id,omitempty"`
	ReleaseID  int               `json:"release_id,omitempty"`
	Artist     string            `json:"artist,omitempty"`
	Title      string            `json:"title,omitempty"`
	Reason     string            `json:"reason,omitempty"`
	Currency   string            `json:"currency,omitempty"`
	Price      *float64          `json:"price,omitempty"`
	NumForSale *int              `json:"num_for_sale,omitempty"`
	Cached     bool              `json:"cached,omitempty"`
	Duration   int64             `json:"duration_ms,omitempty"` // in milliseconds
	Error      string            `json:"error,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// EventLogger writes events to a JSONL file
type EventLogger struct {
	file     *os.File
	encoder  *json.Encoder
	mu       sync.Mutex
	path     string
	minLevel EventLevel
}

// NewEventLogger creates a new event logger with a minimum log level
// minLevel determines which events are written (e.g., LevelInfo skips LevelDebug)
func NewEventLogger(outputDir string, minLevel EventLevel) (*EventLogger, error) {
	// Create output directory if it doesn't exist
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	// Generate filename with timestamp
	timestamp := time.Now().Format("20060102-150405")
	filename := fmt.Sprintf("events-%s.jsonl", timestamp)
	path := filepath.Join(outputDir, filename)

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create event log: %w", err)
	}

	return &EventLogger{
		file:     file,
		encoder:  json.NewEncoder(file),
		path:     path,
		minLevel: minLevel,
	}, nil
}

// Log writes an event to the JSONL file
func (l *EventLogger) Log(event *Event) error {
	if l == nil || l.file == nil {
		return nil // Silently ignore if logger not initialized
	}

	if levelPriority[event.Level] < levelPriority[l.minLevel] {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := l.encoder.Encode(event); err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	return nil
}

// LogState logs a pipeline transition
func (l *EventLogger) LogState(stage, message string) error {
	level := LevelInfo
	if stage == "failed" {
		level = LevelError
	}
	return l.Log(&Event{
		Level:   level,
		Event:   EventState,
		Stage:   stage,
		Message: message,
	})
}

// LogExclusion logs a release rejected by the format classifier
func (l *EventLogger) LogExclusion(releaseID int, artist, title, reason string) error {
	return l.Log(&Event{
		Level:     LevelDebug,
		Event:     EventExclude,
		ReleaseID: releaseID,
		Artist:    artist,
		Title:     title,
		Reason:    reason,
	})
}

// LogPrice logs a marketplace lookup
func (l *EventLogger) LogPrice(releaseID int, currency string, price *float64, numForSale *int, cached bool, err error) error {
	level := LevelDebug
	errMsg := ""
	if err != nil {
		level = LevelWarning
		errMsg = err.Error()
	}

	return l.Log(&Event{
		Level:      level,
		Event:      EventPrice,
		ReleaseID:  releaseID,
		Currency:   currency,
		Price:      price,
		NumForSale: numForSale,
		Cached:     cached,
		Error:      errMsg,
	})
}

// LogRun logs the outcome of a build
func (l *EventLogger) LogRun(runID, username, state string, rows int, duration time.Duration) error {
	level := LevelInfo
	if state == "failed" {
		level = LevelError
	}
	return l.Log(&Event{
		Level:    level,
		Event:    EventRun,
		RunID:    runID,
		Stage:    state,
		Duration: duration.Milliseconds(),
		Extra: map[string]string{
			"username": username,
			"rows":     fmt.Sprintf("%d", rows),
		},
	})
}

// LogError logs an error event
func (l *EventLogger) LogError(event EventType, stage string, err error) error {
	return l.Log(&Event{
		Level: LevelError,
		Event: event,
		Stage: stage,
		Error: err.Error(),
	})
}

// Close closes the event log file
func (l *EventLogger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.file.Close()
}

// Path returns the path to the event log file
func (l *EventLogger) Path() string {
	if l == nil {
		return ""
	}
	return l.path
}

// NullLogger returns a no-op event logger
func NullLogger() *EventLogger {
	return nil
}
