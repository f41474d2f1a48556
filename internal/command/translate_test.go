package command

import (
	"errors"
	"testing"
	"time"
)

func testTranslator() *Translator {
	return NewTranslator(NewWhitelist([]string{"/chatbox/", "/input/", "/avatar/parameters/"}))
}

func TestTranslateSendMessageWithNotify(t *testing.T) {
	msgs, err := testTranslator().Translate(SendMessage{Text: "hello", Direct: true, Notify: true})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages=%d, want 2 with notify", len(msgs))
	}
	if msgs[0].Address != "/chatbox/input" {
		t.Fatalf("address=%q, want /chatbox/input", msgs[0].Address)
	}
	// The notify variant never alters the chatbox payload itself.
	if msgs[0].Args[0] != "hello" || msgs[0].Args[1] != true {
		t.Fatalf("args=%v, want [hello true]", msgs[0].Args)
	}
	if msgs[1].Address != "/chatbox/notify" {
		t.Fatalf("second address=%q, want /chatbox/notify", msgs[1].Address)
	}
}

func TestTranslateSendMessageWithoutNotify(t *testing.T) {
	msgs, err := testTranslator().Translate(SendMessage{Text: "quiet", Direct: true})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("messages=%d, want 1 without notify", len(msgs))
	}
}

func TestTranslateMoveHoldsThenReleases(t *testing.T) {
	hold := 750 * time.Millisecond
	msgs, err := testTranslator().Translate(Move{Vertical: 1, Horizontal: -0.5, Duration: hold})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	// Two axis sets now, three zeroing messages after the hold.
	if len(msgs) != 5 {
		t.Fatalf("messages=%d, want 5", len(msgs))
	}
	if msgs[0].Address != "/input/Vertical" || msgs[0].Args[0] != 1.0 || msgs[0].Delay != 0 {
		t.Fatalf("msg0=%+v", msgs[0])
	}
	for _, m := range msgs[2:] {
		if m.Delay != hold {
			t.Fatalf("release %s delay=%v, want %v", m.Address, m.Delay, hold)
		}
		if m.Args[0] != 0.0 {
			t.Fatalf("release %s args=%v, want zero", m.Address, m.Args)
		}
	}
}

func TestTranslateMoveWithLook(t *testing.T) {
	msgs, err := testTranslator().Translate(Move{Look: 0.5, Duration: time.Second})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if len(msgs) != 6 {
		t.Fatalf("messages=%d, want 6 with look", len(msgs))
	}
	if msgs[2].Address != "/input/LookHorizontal" || msgs[2].Args[0] != 0.5 {
		t.Fatalf("msg2=%+v, want immediate look", msgs[2])
	}
}

func TestTranslateJumpPressAndRelease(t *testing.T) {
	msgs, err := testTranslator().Translate(Jump{})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("messages=%d, want press and release", len(msgs))
	}
	if msgs[0].Args[0] != int64(1) || msgs[0].Delay != 0 {
		t.Fatalf("press=%+v", msgs[0])
	}
	if msgs[1].Args[0] != int64(0) || msgs[1].Delay != 100*time.Millisecond {
		t.Fatalf("release=%+v, want 0 after 100ms", msgs[1])
	}
}

func TestTranslateToggles(t *testing.T) {
	msgs, _ := testTranslator().Translate(SetRun{Running: true})
	if msgs[0].Address != "/input/Run" || msgs[0].Args[0] != int64(1) {
		t.Fatalf("run=%+v", msgs[0])
	}
	msgs, _ = testTranslator().Translate(SetVoice{Unmute: false})
	if msgs[0].Address != "/input/Voice" || msgs[0].Args[0] != int64(0) {
		t.Fatalf("voice=%+v", msgs[0])
	}
	msgs, _ = testTranslator().Translate(SetTyping{Typing: true})
	if msgs[0].Address != "/chatbox/typing" || msgs[0].Args[0] != true {
		t.Fatalf("typing=%+v", msgs[0])
	}
}

func TestTranslateSetParameterAddress(t *testing.T) {
	msgs, err := testTranslator().Translate(SetParameter{Name: "Wave", Value: 0.5})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if msgs[0].Address != "/avatar/parameters/Wave" {
		t.Fatalf("address=%q", msgs[0].Address)
	}
}

func TestTranslateRawRechecksWhitelist(t *testing.T) {
	// A Raw command that skipped validation must still be refused here.
	_, err := testTranslator().Translate(Raw{Address: "/tracking/head"})
	if !errors.Is(err, ErrAddressNotWhitelisted) {
		t.Fatalf("error=%v, want ErrAddressNotWhitelisted", err)
	}

	msgs, err := testTranslator().Translate(Raw{Address: "/input/Jump", Args: []any{int64(1)}})
	if err != nil {
		t.Fatalf("Translate error: %v", err)
	}
	if msgs[0].Address != "/input/Jump" {
		t.Fatalf("address=%q", msgs[0].Address)
	}
}

func TestTranslateNoOSCForSideEffectOps(t *testing.T) {
	for _, cmd := range []Command{
		LaunchWorld{WorldID: "wrld_abc"},
		CaptureScreen{Quality: 70},
		CaptureAudio{Duration: time.Second},
		TranscribeAudio{Duration: time.Second},
		ListAudioDevices{},
	} {
		msgs, err := testTranslator().Translate(cmd)
		if err != nil {
			t.Fatalf("Translate(%s) error: %v", cmd.Op(), err)
		}
		if len(msgs) != 0 {
			t.Fatalf("Translate(%s)=%v, want no messages", cmd.Op(), msgs)
		}
	}
}
