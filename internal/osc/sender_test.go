package osc

import (
	"testing"
	"time"

	"github.com/saker-ai/vrchat-bridge/internal/command"
)

func TestBuildMessageCoercesNumericTypes(t *testing.T) {
	msg := buildMessage(command.OutboundMessage{
		Address: "/avatar/parameters/Wave",
		Args:    []any{int64(1), 0.5, "hi", true},
	})

	if msg.Address != "/avatar/parameters/Wave" {
		t.Fatalf("address=%q", msg.Address)
	}
	if len(msg.Arguments) != 4 {
		t.Fatalf("args=%d, want 4", len(msg.Arguments))
	}
	if got, ok := msg.Arguments[0].(int32); !ok || got != 1 {
		t.Fatalf("arg0=%v (%T), want int32(1)", msg.Arguments[0], msg.Arguments[0])
	}
	if got, ok := msg.Arguments[1].(float32); !ok || got != 0.5 {
		t.Fatalf("arg1=%v (%T), want float32(0.5)", msg.Arguments[1], msg.Arguments[1])
	}
	if got, ok := msg.Arguments[2].(string); !ok || got != "hi" {
		t.Fatalf("arg2=%v, want \"hi\"", msg.Arguments[2])
	}
	if got, ok := msg.Arguments[3].(bool); !ok || !got {
		t.Fatalf("arg3=%v, want true", msg.Arguments[3])
	}
}

func TestBuildMessageNoCrossTypeCoercion(t *testing.T) {
	msg := buildMessage(command.OutboundMessage{
		Address: "/chatbox/typing",
		Args:    []any{true},
	})
	if _, ok := msg.Arguments[0].(bool); !ok {
		t.Fatalf("boolean arg became %T", msg.Arguments[0])
	}
}

func TestSendIsNonBlocking(t *testing.T) {
	// Port 0 never receives; Send must still return immediately.
	s := NewSender("127.0.0.1", 19009, nil)
	defer s.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 200; i++ {
			s.Send([]command.OutboundMessage{{Address: "/input/Jump", Args: []any{int64(1)}}})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked")
	}
}
