// Package osc delivers outbound messages to the VRChat OSC receiver over
// UDP, fire-and-forget.
package osc

import (
	"sync"
	"time"

	goosc "github.com/hypebeast/go-osc/osc"
	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/command"
)

// Sender queues messages for best-effort UDP delivery. Delivery is
// at-most-once: nothing is awaited, nothing is retried, and a transport
// error only surfaces in the log.
type Sender struct {
	client *goosc.Client
	ch     chan *goosc.Message
	logger *zap.Logger
	wg     sync.WaitGroup
	closed sync.Once
	timers sync.WaitGroup
}

// NewSender starts the delivery loop toward host:port.
func NewSender(host string, port int, logger *zap.Logger) *Sender {
	s := &Sender{
		client: goosc.NewClient(host, port),
		ch:     make(chan *goosc.Message, 64),
		logger: logger,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Send enqueues the sequence. Messages with a delay are scheduled and
// delivered later without holding up the caller or any other request.
func (s *Sender) Send(msgs []command.OutboundMessage) {
	for _, m := range msgs {
		packet := buildMessage(m)
		if m.Delay <= 0 {
			s.enqueue(packet)
			continue
		}
		s.timers.Add(1)
		time.AfterFunc(m.Delay, func() {
			defer s.timers.Done()
			s.enqueue(packet)
		})
	}
}

func (s *Sender) enqueue(msg *goosc.Message) {
	select {
	case s.ch <- msg:
	default:
		if s.logger != nil {
			s.logger.Warn("osc send queue full, message dropped", zap.String("address", msg.Address))
		}
	}
}

// Close stops the delivery loop after in-flight scheduled messages fire.
func (s *Sender) Close() {
	s.closed.Do(func() {
		s.timers.Wait()
		close(s.ch)
		s.wg.Wait()
	})
}

func (s *Sender) run() {
	defer s.wg.Done()
	for msg := range s.ch {
		if err := s.client.Send(msg); err != nil && s.logger != nil {
			s.logger.Warn("osc send failed",
				zap.String("address", msg.Address),
				zap.Error(err),
			)
		}
	}
}

// buildMessage converts an OutboundMessage to the wire representation.
// Integers and floats narrow to the 32-bit OSC types VRChat expects;
// booleans and strings pass through untouched.
func buildMessage(m command.OutboundMessage) *goosc.Message {
	msg := goosc.NewMessage(m.Address)
	for _, arg := range m.Args {
		switch v := arg.(type) {
		case string:
			msg.Append(v)
		case bool:
			msg.Append(v)
		case int64:
			msg.Append(int32(v))
		case int:
			msg.Append(int32(v))
		case int32:
			msg.Append(v)
		case float64:
			msg.Append(float32(v))
		case float32:
			msg.Append(v)
		default:
			// Validation admits only primitives; anything else is a
			// programming error worth seeing on the wire as a string.
			msg.Append(stringify(v))
		}
	}
	return msg
}

func stringify(v any) string {
	type stringer interface{ String() string }
	if s, ok := v.(stringer); ok {
		return s.String()
	}
	return "?"
}
