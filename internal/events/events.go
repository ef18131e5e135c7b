// Package events writes the structured event stream consumed by the
// external logging/observability layer. The wire format is one JSON
// object per line; each batch is marshaled into a single buffer and
// written with one Write call.
package events

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Event type names on the wire.
const (
	WorkflowStarted   = "workflow:started"
	WorkflowCompleted = "workflow:completed"
	WorkflowFailed    = "workflow:failed"
	WorkflowCancelled = "workflow:cancelled"
	WorkflowPaused    = "workflow:paused"
	WorkflowResumed   = "workflow:resumed"
	PhaseStarted      = "phase:started"
	PhaseCompleted    = "phase:completed"
	PhaseFailed       = "phase:failed"
	PolicyAllow       = "policy.allow"
	PolicyDeny        = "policy.deny"
	PolicyPrompt      = "policy.prompt"
	ApprovalApproved  = "approval.approved"
	ApprovalDenied    = "approval.denied"
	ApprovalTimeout   = "approval.timeout"
	CleanupStart      = "cleanup:start"
	CleanupComplete   = "cleanup:complete"
	CleanupError      = "cleanup:error"
)

// Event is one timestamped record on the stream.
type Event struct {
	Timestamp time.Time      `json:"ts"`
	Type      string         `json:"type"`
	RunID     string         `json:"run_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Log is an append-only NDJSON event stream. Safe for concurrent use.
type Log struct {
	path string
	file *os.File
	mu   sync.Mutex
}

// Open opens (or creates) the event stream file for appending.
func Open(path string) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("events: create directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("events: open file: %w", err)
	}
	return &Log{path: path, file: file}, nil
}

// Emit appends a single event. The timestamp is set here.
func (l *Log) Emit(typ, runID string, fields map[string]any) error {
	return l.EmitBatch([]Event{{Type: typ, RunID: runID, Fields: fields}})
}

// EmitBatch appends a batch of events atomically: all lines are marshaled
// into one buffer and handed to the kernel in a single write, so a
// concurrent emitter can never interleave inside the batch.
func (l *Log) EmitBatch(batch []Event) error {
	if len(batch) == 0 {
		return nil
	}
	now := time.Now().UTC()

	var buf bytes.Buffer
	for i := range batch {
		if batch[i].Timestamp.IsZero() {
			batch[i].Timestamp = now
		}
		line, err := json.Marshal(batch[i])
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", batch[i].Type, err)
		}
		buf.Write(line)
		buf.WriteByte('\n')
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("events: write batch: %w", err)
	}
	return l.file.Sync()
}

// Path returns the stream's file path.
func (l *Log) Path() string { return l.path }

// Close closes the underlying file.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
