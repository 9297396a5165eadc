// Package record captures conversation oracle events as newline-delimited
// JSON artifacts, optionally zstd-compressed. The log is a replayable test
// artifact, not a results store.
package record

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
)

// EventKind identifies what an event records.
type EventKind string

const (
	EventTurn      EventKind = "turn"
	EventSignal    EventKind = "signal"
	EventTerminate EventKind = "terminate"
	EventVerdict   EventKind = "verdict"
)

// Event is one NDJSON log line.
type Event struct {
	Time      time.Time `json:"time"`
	Kind      EventKind `json:"kind"`
	TurnIndex int       `json:"turn_index,omitempty"`
	Payload   any       `json:"payload,omitempty"`
}

// Writer defines the interface for event recording.
type Writer interface {
	Write(event Event) error
	Close() error
}

// FileWriter writes events as NDJSON. Paths ending in ".zst" are
// transparently zstd-compressed.
type FileWriter struct {
	mu     sync.Mutex
	file   *os.File
	zw     *zstd.Encoder
	enc    *json.Encoder
	path   string
	closed bool
}

// NewFileWriter creates an event log at path, creating parent directories
// as needed.
func NewFileWriter(path string) (*FileWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating record directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("opening record file: %w", err)
	}

	w := &FileWriter{file: f, path: path}

	var sink io.Writer = f
	if strings.HasSuffix(path, ".zst") {
		zw, err := zstd.NewWriter(f)
		if err != nil {
			f.Close() //nolint:errcheck
			return nil, fmt.Errorf("creating zstd writer: %w", err)
		}
		w.zw = zw
		sink = zw
	}

	w.enc = json.NewEncoder(sink)
	return w, nil
}

// Write appends a single event as one JSON line.
func (w *FileWriter) Write(event Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("record writer already closed")
	}
	return w.enc.Encode(event)
}

// Close flushes and closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	if w.zw != nil {
		if err := w.zw.Close(); err != nil {
			w.file.Close() //nolint:errcheck
			return fmt.Errorf("closing zstd writer: %w", err)
		}
	}
	return w.file.Close()
}

// Path returns the file path of the event log.
func (w *FileWriter) Path() string {
	return w.path
}

// NopWriter discards all events. Useful as a default when recording is
// disabled.
type NopWriter struct{}

// Write is a no-op.
func (NopWriter) Write(Event) error { return nil }

// Close is a no-op.
func (NopWriter) Close() error { return nil }
