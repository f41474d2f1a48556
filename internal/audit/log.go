// Package audit records every dispatch attempt, accepted or rejected, to an
// append-only JSONL sink.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Outcome is the audited result of a dispatch attempt.
type Outcome string

const (
	OutcomeAccepted     Outcome = "accepted"
	OutcomeUnauthorized Outcome = "unauthorized"
	OutcomeRateLimited  Outcome = "rate_limited"
	OutcomeInvalid      Outcome = "invalid_input"
	OutcomeBusy         Outcome = "busy"
	OutcomeTimeout      Outcome = "timeout"
	OutcomeUpstream     Outcome = "upstream_failure"
	OutcomeInternal     Outcome = "internal_error"
)

// Entry is one audit record. Entries are never mutated or deleted here;
// retention is the sink operator's concern.
type Entry struct {
	ID         string    `json:"id"`
	Timestamp  time.Time `json:"timestamp"`
	Operation  string    `json:"operation"`
	Category   string    `json:"category"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`
	CallerHint string    `json:"caller_hint,omitempty"`
}

// Notifier receives a copy of every recorded entry, e.g. the websocket
// monitor feed. Implementations must not block.
type Notifier interface {
	Notify(Entry)
}

// Log is a fire-and-forget audit writer. Record never blocks the dispatch
// path: when the buffer is full the entry is dropped and counted, and the
// degraded state is reported through the logger and Dropped, never to the
// HTTP caller.
type Log struct {
	ch       chan Entry
	dropped  atomic.Int64
	logger   *zap.Logger
	notifier Notifier
	wg       sync.WaitGroup
	closed   atomic.Bool
}

// New starts a log writing JSONL entries to w.
func New(w io.Writer, buffer int, logger *zap.Logger, notifier Notifier) *Log {
	if buffer <= 0 {
		buffer = 256
	}
	l := &Log{
		ch:       make(chan Entry, buffer),
		logger:   logger,
		notifier: notifier,
	}
	l.wg.Add(1)
	go l.run(w)
	return l
}

// Open creates dir if needed and starts a log appending to audit.jsonl.
func Open(dir string, buffer int, logger *zap.Logger, notifier Notifier) (*Log, io.Closer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, "audit.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	return New(f, buffer, logger, notifier), f, nil
}

// Record enqueues an entry, assigning ID and timestamp if unset.
func (l *Log) Record(entry Entry) {
	if l.closed.Load() {
		l.dropped.Add(1)
		return
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case l.ch <- entry:
	default:
		n := l.dropped.Add(1)
		if l.logger != nil {
			l.logger.Warn("audit entry dropped, sink is behind",
				zap.String("operation", entry.Operation),
				zap.Int64("dropped_total", n),
			)
		}
	}
}

// Dropped returns how many entries have been lost to backpressure.
func (l *Log) Dropped() int64 {
	return l.dropped.Load()
}

// Close stops accepting entries and waits for the writer to drain.
func (l *Log) Close() {
	if l.closed.Swap(true) {
		return
	}
	close(l.ch)
	l.wg.Wait()
}

func (l *Log) run(w io.Writer) {
	defer l.wg.Done()
	enc := json.NewEncoder(w)
	for entry := range l.ch {
		if err := enc.Encode(entry); err != nil {
			n := l.dropped.Add(1)
			if l.logger != nil {
				l.logger.Warn("audit sink write failed",
					zap.Error(err),
					zap.Int64("dropped_total", n),
				)
			}
		}
		if l.notifier != nil {
			l.notifier.Notify(entry)
		}
	}
}
