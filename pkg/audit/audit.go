package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Action identifies what kind of change an event records
type Action string

const (
	ActionCreate   Action = "create"
	ActionUpdate   Action = "update"
	ActionDelete   Action = "delete"
	ActionAssign   Action = "assign"
	ActionUnassign Action = "unassign"
	ActionRollback Action = "rollback"
	ActionPublish  Action = "publish"
)

// Event is a single audit record
type Event struct {
	Time      time.Time `json:"time"`
	RequestID string    `json:"request_id,omitempty"`
	Tenant    string    `json:"tenant"`
	Actor     string    `json:"actor,omitempty"`
	Action    Action    `json:"action"`
	Resource  string    `json:"resource"`
	Target    string    `json:"target"`
	Detail    string    `json:"detail,omitempty"`
	Outcome   string    `json:"outcome"`
}

// Sink receives audit events
type Sink interface {
	Write(ctx context.Context, event Event) error
	Close() error
}

// LogSink writes audit events as JSON lines through logrus.
type LogSink struct {
	logger *logrus.Logger
	closer io.Closer
}

// NewLogSink creates a sink writing to the given writer.
func NewLogSink(w io.Writer) *LogSink {
	logger := logrus.New()
	logger.SetOutput(w)
	logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logger.SetLevel(logrus.InfoLevel)
	return &LogSink{logger: logger}
}

// NewFileSink creates a sink appending to the given file path.
func NewFileSink(path string) (*LogSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log: %w", err)
	}
	sink := NewLogSink(f)
	sink.closer = f
	return sink, nil
}

// Write records one event
func (s *LogSink) Write(ctx context.Context, event Event) error {
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	s.logger.WithFields(logrus.Fields{
		"audit_time": event.Time.Format(time.RFC3339Nano),
		"request_id": event.RequestID,
		"tenant":     event.Tenant,
		"actor":      event.Actor,
		"action":     string(event.Action),
		"resource":   event.Resource,
		"target":     event.Target,
		"detail":     event.Detail,
		"outcome":    event.Outcome,
	}).Info("audit")
	return nil
}

// Close releases the underlying file, if any
func (s *LogSink) Close() error {
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}

// NopSink discards all events
type NopSink struct{}

func (NopSink) Write(ctx context.Context, event Event) error { return nil }
func (NopSink) Close() error                                 { return nil }

// MemorySink collects events in memory, for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (s *MemorySink) Write(ctx context.Context, event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if event.Time.IsZero() {
		event.Time = time.Now().UTC()
	}
	s.events = append(s.events, event)
	return nil
}

func (s *MemorySink) Close() error { return nil }

// Events returns a copy of recorded events
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}
