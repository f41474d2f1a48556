package audit

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"testing"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type collectNotifier struct {
	mu      sync.Mutex
	entries []Entry
}

func (c *collectNotifier) Notify(e Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = append(c.entries, e)
}

func TestRecordWritesJSONL(t *testing.T) {
	buf := &syncBuffer{}
	notifier := &collectNotifier{}
	log := New(buf, 8, nil, notifier)

	log.Record(Entry{Operation: "send-message", Category: "chat", Outcome: OutcomeAccepted, CallerHint: "abcd1234"})
	log.Record(Entry{Operation: "raw-command", Category: "raw", Outcome: OutcomeInvalid, Reason: "address_not_whitelisted"})
	log.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines=%d, want 2", len(lines))
	}

	var first Entry
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("unmarshal first line: %v", err)
	}
	if first.Operation != "send-message" || first.Outcome != OutcomeAccepted {
		t.Fatalf("first=%+v, want send-message accepted", first)
	}
	if first.ID == "" || first.Timestamp.IsZero() {
		t.Fatal("entry missing assigned id or timestamp")
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	if len(notifier.entries) != 2 {
		t.Fatalf("notified=%d, want 2", len(notifier.entries))
	}
}

func TestRecordAfterCloseCountsDropped(t *testing.T) {
	buf := &syncBuffer{}
	log := New(buf, 8, nil, nil)
	log.Close()

	log.Record(Entry{Operation: "jump"})
	if got := log.Dropped(); got != 1 {
		t.Fatalf("Dropped()=%d, want 1", got)
	}
}
