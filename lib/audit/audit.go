// Copyright 2026 The Lackey Authors
// SPDX-License-Identifier: Apache-2.0

// Package audit records every shell command and sandboxed file
// operation performed during a run as an append-only NDJSON trail.
//
// Each line is an independent JSON object, making the trail:
//
//   - Crash-safe: a SIGKILL mid-run preserves every completed entry.
//     A single JSON document would be truncated and unparseable.
//   - Streamable: an observer can tail the file for live progress
//     instead of waiting for the run to finish.
//
// The Log is an explicitly passed, single-owner instance — never a
// process-wide singleton — so tests substitute an in-memory sink and
// assert on exactly the entries a component produced. All methods are
// nil-safe no-ops, letting callers skip auditing without nil checks.
package audit

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/lackey-foundation/lackey/lib/clock"
)

// Entry is one recorded operation. Command entries (shell commands)
// carry Command, Dir, ExitCode, and Output; tool entries (sandboxed
// file operations and agent tool calls) carry Op, Args, and Result.
// Entries are never mutated after creation.
type Entry struct {
	// Kind is "command" or "tool".
	Kind string `json:"kind"`

	// Time is the operation's start time in RFC3339 format.
	Time string `json:"time"`

	// Actor identifies who performed the operation: "engine" for
	// pipeline-driven commands, or an agent name ("scoper",
	// "executor", "fixer") for tool calls.
	Actor string `json:"actor"`

	// Step is the 1-based blueprint step index for command entries
	// driven by the pipeline. Zero for agent tool calls.
	Step int `json:"step,omitempty"`

	// DurationMS is the operation's wall-clock duration.
	DurationMS int64 `json:"duration_ms"`

	// Command fields.
	Command  string `json:"command,omitempty"`
	Dir      string `json:"dir,omitempty"`
	ExitCode int    `json:"exit_code,omitempty"`
	Output   string `json:"output,omitempty"`

	// Tool fields.
	Op     string            `json:"op,omitempty"`
	Args   map[string]string `json:"args,omitempty"`
	Result string            `json:"result,omitempty"`
}

// Log is an append-only audit trail. It retains every entry in memory
// for the run summary and, when file-backed, streams each entry as an
// NDJSON line with a sync per line so partial trails survive a crash.
//
// Log is safe for concurrent use; in practice a run is single-threaded
// and entries arrive strictly ordered.
type Log struct {
	mu      sync.Mutex
	clock   clock.Clock
	logger  *slog.Logger
	file    *os.File
	encoder *json.Encoder
	entries []Entry
}

// New creates an in-memory audit log. Entries accumulate for
// Entries() and WriteTo; nothing hits the filesystem until the
// finalizer asks for the trail.
func New(clk clock.Clock, logger *slog.Logger) *Log {
	if clk == nil {
		clk = clock.Real()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{clock: clk, logger: logger}
}

// NewFile creates an audit log that additionally streams each entry
// to the NDJSON file at path, truncating any existing content.
func NewFile(path string, clk clock.Clock, logger *slog.Logger) (*Log, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating audit log %s: %w", path, err)
	}
	log := New(clk, logger)
	log.file = file
	log.encoder = json.NewEncoder(file)
	return log, nil
}

// Close flushes and closes the backing file, if any.
func (log *Log) Close() error {
	if log == nil || log.file == nil {
		return nil
	}
	return log.file.Close()
}

// Command records one shell command invocation.
func (log *Log) Command(actor string, step int, command, dir string, exitCode int, output string, start time.Time, duration time.Duration) {
	if log == nil {
		return
	}
	log.append(Entry{
		Kind:       "command",
		Time:       start.UTC().Format(time.RFC3339),
		Actor:      actor,
		Step:       step,
		DurationMS: duration.Milliseconds(),
		Command:    command,
		Dir:        dir,
		ExitCode:   exitCode,
		Output:     output,
	})
}

// Tool records one sandboxed file operation or agent tool call.
func (log *Log) Tool(actor, op string, args map[string]string, result string, start time.Time, duration time.Duration) {
	if log == nil {
		return
	}
	log.append(Entry{
		Kind:       "tool",
		Time:       start.UTC().Format(time.RFC3339),
		Actor:      actor,
		Op:         op,
		Args:       args,
		Result:     result,
		DurationMS: duration.Milliseconds(),
	})
}

// Now returns the log's clock time, so callers measure durations
// against the same clock the entries are stamped with.
func (log *Log) Now() time.Time {
	if log == nil {
		return time.Now()
	}
	return log.clock.Now()
}

// Entries returns a copy of all recorded entries in order.
func (log *Log) Entries() []Entry {
	if log == nil {
		return nil
	}
	log.mu.Lock()
	defer log.mu.Unlock()
	entries := make([]Entry, len(log.entries))
	copy(entries, log.entries)
	return entries
}

// WriteTo writes the full trail as NDJSON to w, one entry per line,
// returning the number of bytes written per [io.WriterTo]. Used by
// the finalizer when the log is not already file-backed.
func (log *Log) WriteTo(w io.Writer) (int64, error) {
	if log == nil {
		return 0, nil
	}
	counter := &countingWriter{writer: w}
	encoder := json.NewEncoder(counter)
	for _, entry := range log.Entries() {
		if err := encoder.Encode(entry); err != nil {
			return counter.written, err
		}
	}
	return counter.written, nil
}

type countingWriter struct {
	writer  io.Writer
	written int64
}

func (counter *countingWriter) Write(p []byte) (int, error) {
	n, err := counter.writer.Write(p)
	counter.written += int64(n)
	return n, err
}

func (log *Log) append(entry Entry) {
	log.mu.Lock()
	defer log.mu.Unlock()
	log.entries = append(log.entries, entry)

	if log.encoder == nil {
		return
	}
	if err := log.encoder.Encode(entry); err != nil {
		log.logger.Warn("failed to write audit entry", "error", err)
		return
	}
	// Sync after each line so the trail survives a crash and is
	// visible to readers tailing the file immediately.
	if err := log.file.Sync(); err != nil {
		log.logger.Warn("failed to sync audit log", "error", err)
	}
}

// Truncate shortens s to at most max characters, appending a marker
// when content was dropped. Used for command output headed into the
// trail and step details.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "\n... (truncated)"
}
