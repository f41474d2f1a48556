package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/saker-ai/vrchat-bridge/internal/audit"
	"github.com/saker-ai/vrchat-bridge/internal/auth"
	"github.com/saker-ai/vrchat-bridge/internal/capture"
	"github.com/saker-ai/vrchat-bridge/internal/command"
	"github.com/saker-ai/vrchat-bridge/internal/quota"
)

type fakeSender struct {
	mu   sync.Mutex
	sent [][]command.OutboundMessage
}

func (f *fakeSender) Send(msgs []command.OutboundMessage) {
	f.mu.Lock()
	f.sent = append(f.sent, msgs)
	f.mu.Unlock()
}

func (f *fakeSender) batches() [][]command.OutboundMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent
}

type fakeLauncher struct {
	url string
	err error
}

func (f *fakeLauncher) Launch(_ context.Context, url string) error {
	f.url = url
	return f.err
}

type fakeScreen struct {
	data []byte
	err  error
}

func (f *fakeScreen) Grab(int) ([]byte, error) { return f.data, f.err }

type fakeMicrophone struct {
	err  error
	busy time.Duration
}

func (f *fakeMicrophone) Record(ctx context.Context, _ string, duration time.Duration) (capture.Recording, error) {
	wait := f.busy
	if wait == 0 {
		wait = time.Millisecond
	}
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return capture.Recording{}, ctx.Err()
	}
	if f.err != nil {
		return capture.Recording{}, f.err
	}
	return capture.Recording{Samples: make([]int16, 1600), SampleRate: 16000, Channels: 1}, nil
}

func (f *fakeMicrophone) Devices() ([]capture.Device, error) {
	return []capture.Device{{ID: "0", Name: "mic", IsDefault: true}}, nil
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f *fakeTranscriber) Transcribe(context.Context, []byte, string) (capture.Transcript, error) {
	if f.err != nil {
		return capture.Transcript{}, f.err
	}
	return capture.Transcript{Text: f.text, Language: "en"}, nil
}

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

type testEnv struct {
	gw       *Gateway
	sender   *fakeSender
	launcher *fakeLauncher
	audit    *audit.Log
	auditBuf *syncBuffer
}

func newTestEnv(t *testing.T, token string, windows map[string][]quota.Window) *testEnv {
	t.Helper()
	buf := &syncBuffer{}
	log := audit.New(buf, 64, nil, nil)
	t.Cleanup(log.Close)

	whitelist := command.NewWhitelist([]string{"/chatbox/", "/input/", "/avatar/parameters/"})
	sender := &fakeSender{}
	launcher := &fakeLauncher{}

	gw := New(Deps{
		Guard:       auth.NewGuard(token),
		Quota:       quota.NewTracker(windows, true),
		Validator:   command.NewValidator(command.Limits{MaxMoveSeconds: 5, MaxCaptureSeconds: 30}, whitelist),
		Translator:  command.NewTranslator(whitelist),
		Sender:      sender,
		Coordinator: capture.NewCoordinator(&fakeMicrophone{}, time.Second, nil),
		Transcriber: &fakeTranscriber{text: "hello there"},
		Launcher:    launcher,
		Screen:      &fakeScreen{data: []byte{0xff, 0xd8, 0xff}},
		Audit:       log,
	})
	return &testEnv{gw: gw, sender: sender, launcher: launcher, audit: log, auditBuf: buf}
}

// entries closes the audit log and decodes everything written so far.
func (e *testEnv) entries(t *testing.T) []audit.Entry {
	t.Helper()
	e.audit.Close()
	var out []audit.Entry
	for _, line := range strings.Split(strings.TrimSpace(e.auditBuf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry audit.Entry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		out = append(out, entry)
	}
	return out
}

func TestDispatchBadCredentialConsumesNoQuota(t *testing.T) {
	env := newTestEnv(t, "secret", map[string][]quota.Window{
		"chat": {{Limit: 1, Span: time.Minute}},
	})

	res := env.gw.Dispatch(context.Background(), command.OpSendMessage,
		map[string]any{"message": "hi"}, "wrong")
	if res.Status != StatusUnauthorized {
		t.Fatalf("status=%s, want %s", res.Status, StatusUnauthorized)
	}

	// The rejected attempt must not have consumed the single chat slot.
	res = env.gw.Dispatch(context.Background(), command.OpSendMessage,
		map[string]any{"message": "hi"}, "secret")
	if res.Status != StatusOK {
		t.Fatalf("status=%s after rejected attempt, want %s", res.Status, StatusOK)
	}

	entries := env.entries(t)
	if len(entries) != 2 {
		t.Fatalf("audit entries=%d, want 2", len(entries))
	}
	if entries[0].Outcome != audit.OutcomeUnauthorized || entries[1].Outcome != audit.OutcomeAccepted {
		t.Fatalf("outcomes=%s,%s", entries[0].Outcome, entries[1].Outcome)
	}
}

func TestDispatchRateLimitAfterWindowExhausted(t *testing.T) {
	env := newTestEnv(t, "", map[string][]quota.Window{
		"chat": {{Limit: 2, Span: time.Minute}},
	})

	fields := map[string]any{"message": "hi"}
	for i := 0; i < 2; i++ {
		if res := env.gw.Dispatch(context.Background(), command.OpSendMessage, fields, ""); res.Status != StatusOK {
			t.Fatalf("dispatch %d status=%s, want %s", i, res.Status, StatusOK)
		}
	}
	res := env.gw.Dispatch(context.Background(), command.OpSendMessage, fields, "")
	if res.Status != StatusRateLimited {
		t.Fatalf("status=%s, want %s", res.Status, StatusRateLimited)
	}
	if res.RetryAfter <= 0 || res.RetryAfter > time.Minute {
		t.Fatalf("RetryAfter=%v, want in (0, 1m]", res.RetryAfter)
	}

	entries := env.entries(t)
	if len(entries) != 3 {
		t.Fatalf("audit entries=%d, want 3", len(entries))
	}
	if entries[2].Outcome != audit.OutcomeRateLimited {
		t.Fatalf("outcome=%s, want %s", entries[2].Outcome, audit.OutcomeRateLimited)
	}
}

func TestDispatchInvalidInputNeverReachesSender(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpSetParameter,
		map[string]any{"name": "bad name!", "value": 1.0}, "")
	if res.Status != StatusInvalidInput {
		t.Fatalf("status=%s, want %s", res.Status, StatusInvalidInput)
	}
	if res.Reason != command.CodeBadParameterName {
		t.Fatalf("reason=%s, want %s", res.Reason, command.CodeBadParameterName)
	}
	if len(env.sender.batches()) != 0 {
		t.Fatal("invalid input reached the sender")
	}

	entries := env.entries(t)
	if len(entries) != 1 || entries[0].Outcome != audit.OutcomeInvalid {
		t.Fatalf("entries=%v, want one invalid_input", entries)
	}
}

func TestDispatchSendMessageEndToEnd(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpSendMessage,
		map[string]any{"message": "hello world", "notify": false}, "")
	if res.Status != StatusOK {
		t.Fatalf("status=%s, want %s", res.Status, StatusOK)
	}
	batches := env.sender.batches()
	if len(batches) != 1 || len(batches[0]) != 1 {
		t.Fatalf("batches=%v, want one single-message batch", batches)
	}
	msg := batches[0][0]
	if msg.Address != "/chatbox/input" {
		t.Fatalf("address=%q, want /chatbox/input", msg.Address)
	}
	if msg.Args[0] != "hello world" {
		t.Fatalf("args[0]=%v, want the message text", msg.Args[0])
	}
}

func TestDispatchLaunchWorldBuildsDeepLink(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpLaunchWorld,
		map[string]any{"world_id": "wrld_abc-123"}, "")
	if res.Status != StatusOK {
		t.Fatalf("status=%s, want %s", res.Status, StatusOK)
	}
	want := "vrchat://launch?ref=vrchat.com&id=wrld_abc-123"
	if env.launcher.url != want {
		t.Fatalf("url=%q, want %q", env.launcher.url, want)
	}
}

func TestDispatchLaunchFailureIsUpstream(t *testing.T) {
	env := newTestEnv(t, "", nil)
	env.launcher.err = errors.New("no opener")

	res := env.gw.Dispatch(context.Background(), command.OpLaunchWorld,
		map[string]any{"world_id": "wrld_abc"}, "")
	if res.Status != StatusUpstream || res.Reason != ReasonLaunchFailed {
		t.Fatalf("status=%s reason=%s, want upstream/launch_failed", res.Status, res.Reason)
	}

	entries := env.entries(t)
	if len(entries) != 1 || entries[0].Outcome != audit.OutcomeUpstream {
		t.Fatalf("entries=%v, want one upstream_failure", entries)
	}
}

func TestDispatchCaptureAudioReturnsWAV(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpCaptureAudio,
		map[string]any{"duration": 1}, "")
	if res.Status != StatusOK {
		t.Fatalf("status=%s, want %s", res.Status, StatusOK)
	}
	if res.ContentType != "audio/wav" {
		t.Fatalf("content type=%q, want audio/wav", res.ContentType)
	}
	if len(res.Raw) <= 44 || string(res.Raw[:4]) != "RIFF" {
		t.Fatalf("payload is not a WAV file (%d bytes)", len(res.Raw))
	}
}

func TestDispatchCaptureBusyWhileSlotHeld(t *testing.T) {
	buf := &syncBuffer{}
	log := audit.New(buf, 64, nil, nil)
	defer log.Close()

	whitelist := command.NewWhitelist([]string{"/chatbox/"})
	coordinator := capture.NewCoordinator(&fakeMicrophone{busy: 300 * time.Millisecond}, time.Second, nil)
	gw := New(Deps{
		Guard:       auth.NewGuard(""),
		Quota:       quota.NewTracker(nil, true),
		Validator:   command.NewValidator(command.Limits{}, whitelist),
		Translator:  command.NewTranslator(whitelist),
		Sender:      &fakeSender{},
		Coordinator: coordinator,
		Audit:       log,
	})

	go gw.Dispatch(context.Background(), command.OpCaptureAudio, map[string]any{"duration": 1}, "")
	time.Sleep(50 * time.Millisecond)

	res := gw.Dispatch(context.Background(), command.OpCaptureAudio, map[string]any{"duration": 1}, "")
	if res.Status != StatusBusy || res.Reason != ReasonCaptureBusy {
		t.Fatalf("status=%s reason=%s, want busy/capture_busy", res.Status, res.Reason)
	}
}

func TestDispatchTranscribe(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpTranscribeAudio,
		map[string]any{"duration": 1}, "")
	if res.Status != StatusOK {
		t.Fatalf("status=%s, want %s", res.Status, StatusOK)
	}
	if res.Body["text"] != "hello there" {
		t.Fatalf("text=%v, want transcript text", res.Body["text"])
	}
}

func TestDispatchScreenshot(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpCaptureScreen, nil, "")
	if res.Status != StatusOK || res.ContentType != "image/jpeg" {
		t.Fatalf("status=%s content=%q, want ok/image/jpeg", res.Status, res.ContentType)
	}
	if len(res.Raw) == 0 {
		t.Fatal("screenshot payload empty")
	}
}

func TestDispatchDeviceListing(t *testing.T) {
	env := newTestEnv(t, "", nil)

	res := env.gw.Dispatch(context.Background(), command.OpListAudioDevices, nil, "")
	if res.Status != StatusOK {
		t.Fatalf("status=%s, want %s", res.Status, StatusOK)
	}
	devices, ok := res.Body["devices"].([]capture.Device)
	if !ok || len(devices) != 1 {
		t.Fatalf("devices=%v, want the fake device list", res.Body["devices"])
	}
}
