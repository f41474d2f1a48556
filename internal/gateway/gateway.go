// Package gateway sequences every request through the access guard, quota
// tracker, validator and the command's effect, writing exactly one audit
// entry per dispatch.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/audit"
	"github.com/saker-ai/vrchat-bridge/internal/auth"
	"github.com/saker-ai/vrchat-bridge/internal/capture"
	"github.com/saker-ai/vrchat-bridge/internal/command"
	"github.com/saker-ai/vrchat-bridge/internal/quota"
	"github.com/saker-ai/vrchat-bridge/pkg/audio"
)

// Status is the response category for a dispatch.
type Status string

const (
	StatusOK           Status = "ok"
	StatusUnauthorized Status = "unauthorized"
	StatusRateLimited  Status = "rate_limited"
	StatusInvalidInput Status = "invalid_input"
	StatusBusy         Status = "busy"
	StatusTimeout      Status = "timeout"
	StatusUpstream     Status = "upstream_failure"
	StatusInternal     Status = "internal_error"
)

// Stable reason codes for non-validation rejections.
const (
	ReasonBadCredential     = "invalid_credential"
	ReasonRateLimited       = "rate_limited"
	ReasonCaptureBusy       = "capture_busy"
	ReasonCaptureTimeout    = "capture_timeout"
	ReasonCaptureFailed     = "capture_failed"
	ReasonTranscribeFailed  = "transcriber_failed"
	ReasonLaunchFailed      = "launch_failed"
	ReasonScreenshotFailed  = "screenshot_failed"
	ReasonEncodeFailed      = "encode_failed"
	ReasonTranslationFailed = "translation_failed"
)

// Result is the outcome of one dispatch.
type Result struct {
	Status      Status
	Reason      string
	Field       string
	RetryAfter  time.Duration
	Body        map[string]any
	Raw         []byte
	ContentType string
}

// Sender delivers translated messages, fire-and-forget.
type Sender interface {
	Send([]command.OutboundMessage)
}

// Launcher opens a vrchat:// launch URL on the local machine.
type Launcher interface {
	Launch(ctx context.Context, url string) error
}

// ScreenGrabber captures the primary display as JPEG.
type ScreenGrabber interface {
	Grab(quality int) ([]byte, error)
}

// CaptureSettings shapes capture responses and transcriber input.
type CaptureSettings struct {
	TranscriberRate int
	OpusBitrate     int
}

// Gateway owns the dispatch sequence. All shared mutable state lives in the
// quota tracker and capture coordinator it is constructed with; the gateway
// itself is stateless and safe for concurrent use.
type Gateway struct {
	guard       *auth.Guard
	quota       *quota.Tracker
	validator   *command.Validator
	translator  *command.Translator
	sender      Sender
	coordinator *capture.Coordinator
	transcriber capture.Transcriber
	launcher    Launcher
	screen      ScreenGrabber
	auditLog    *audit.Log
	settings    CaptureSettings
	logger      *zap.Logger
	now         func() time.Time
}

// Deps collects the gateway's collaborators.
type Deps struct {
	Guard       *auth.Guard
	Quota       *quota.Tracker
	Validator   *command.Validator
	Translator  *command.Translator
	Sender      Sender
	Coordinator *capture.Coordinator
	Transcriber capture.Transcriber
	Launcher    Launcher
	Screen      ScreenGrabber
	Audit       *audit.Log
	Settings    CaptureSettings
	Logger      *zap.Logger
}

// New builds a gateway.
func New(deps Deps) *Gateway {
	settings := deps.Settings
	if settings.TranscriberRate <= 0 {
		settings.TranscriberRate = 16000
	}
	return &Gateway{
		guard:       deps.Guard,
		quota:       deps.Quota,
		validator:   deps.Validator,
		translator:  deps.Translator,
		sender:      deps.Sender,
		coordinator: deps.Coordinator,
		transcriber: deps.Transcriber,
		launcher:    deps.Launcher,
		screen:      deps.Screen,
		auditLog:    deps.Audit,
		settings:    settings,
		logger:      deps.Logger,
		now:         time.Now,
	}
}

// Dispatch runs one request through the full sequence. Every branch,
// including rejections, produces exactly one audit entry whose outcome
// matches the returned status.
func (g *Gateway) Dispatch(ctx context.Context, op command.Operation, fields map[string]any, credential string) Result {
	hint := auth.CallerHint(credential)
	result := g.dispatch(ctx, op, fields, credential)

	g.auditLog.Record(audit.Entry{
		Operation:  string(op),
		Category:   op.Category(),
		Outcome:    outcomeFor(result.Status),
		Reason:     result.Reason,
		CallerHint: hint,
	})
	return result
}

func (g *Gateway) dispatch(ctx context.Context, op command.Operation, fields map[string]any, credential string) Result {
	if !g.guard.Authorize(credential) {
		return Result{Status: StatusUnauthorized, Reason: ReasonBadCredential}
	}

	if admitted, retry := g.quota.Admit(op.Category(), g.now()); !admitted {
		return Result{Status: StatusRateLimited, Reason: ReasonRateLimited, RetryAfter: retry}
	}

	cmd, rejection := g.validator.Validate(op, fields)
	if rejection != nil {
		return Result{Status: StatusInvalidInput, Reason: rejection.Code, Field: rejection.Field}
	}

	switch c := cmd.(type) {
	case command.LaunchWorld:
		return g.launchWorld(ctx, c)
	case command.CaptureScreen:
		return g.captureScreen(c)
	case command.CaptureAudio:
		return g.captureAudio(ctx, c)
	case command.TranscribeAudio:
		return g.transcribeAudio(ctx, c)
	case command.ListAudioDevices:
		return g.listDevices()
	default:
		return g.sendOSC(cmd)
	}
}

func (g *Gateway) sendOSC(cmd command.Command) Result {
	msgs, err := g.translator.Translate(cmd)
	if err != nil {
		// Validation should have caught this; the translator's own
		// whitelist check is the second gate.
		if errors.Is(err, command.ErrAddressNotWhitelisted) {
			return Result{Status: StatusInvalidInput, Reason: command.CodeNotWhitelisted}
		}
		return Result{Status: StatusInternal, Reason: ReasonTranslationFailed}
	}
	g.sender.Send(msgs)

	body := map[string]any{"status": "sent"}
	if m, ok := cmd.(command.SendMessage); ok {
		body["message"] = m.Text
	}
	return Result{Status: StatusOK, Body: body}
}

func (g *Gateway) launchWorld(ctx context.Context, c command.LaunchWorld) Result {
	url := fmt.Sprintf("vrchat://launch?ref=vrchat.com&id=%s", c.WorldID)
	if err := g.launcher.Launch(ctx, url); err != nil {
		g.warn("world launch failed", err, zap.String("world_id", c.WorldID))
		return Result{Status: StatusUpstream, Reason: ReasonLaunchFailed}
	}
	return Result{Status: StatusOK, Body: map[string]any{"status": "launched", "url": url}}
}

func (g *Gateway) captureScreen(c command.CaptureScreen) Result {
	jpeg, err := g.screen.Grab(c.Quality)
	if err != nil {
		g.warn("screenshot failed", err)
		return Result{Status: StatusUpstream, Reason: ReasonScreenshotFailed}
	}
	return Result{Status: StatusOK, Raw: jpeg, ContentType: "image/jpeg"}
}

func (g *Gateway) captureAudio(ctx context.Context, c command.CaptureAudio) Result {
	rec, result := g.record(ctx, c.Device, c.Duration)
	if result != nil {
		return *result
	}

	if c.Format == "opus" {
		mono := audio.DownmixMono(rec.Samples, rec.Channels)
		enc, err := audio.NewPacketEncoder(rec.SampleRate, 1, g.settings.OpusBitrate)
		if err != nil {
			g.warn("opus encoder init failed", err)
			return Result{Status: StatusInternal, Reason: ReasonEncodeFailed}
		}
		packets, err := enc.EncodeStream(mono)
		if err != nil {
			g.warn("opus encode failed", err)
			return Result{Status: StatusInternal, Reason: ReasonEncodeFailed}
		}
		return Result{Status: StatusOK, Raw: packets, ContentType: "audio/opus"}
	}

	wav := audio.EncodeWAV(rec.Samples, rec.SampleRate, rec.Channels)
	return Result{Status: StatusOK, Raw: wav, ContentType: "audio/wav"}
}

func (g *Gateway) transcribeAudio(ctx context.Context, c command.TranscribeAudio) Result {
	rec, result := g.record(ctx, c.Device, c.Duration)
	if result != nil {
		return *result
	}

	mono := audio.DownmixMono(rec.Samples, rec.Channels)
	resampled, err := audio.Resample(mono, rec.SampleRate, g.settings.TranscriberRate)
	if err != nil {
		g.warn("resample failed", err)
		return Result{Status: StatusInternal, Reason: ReasonEncodeFailed}
	}
	wav := audio.EncodeWAV(resampled, g.settings.TranscriberRate, 1)

	transcript, err := g.transcriber.Transcribe(ctx, wav, c.Language)
	if err != nil {
		g.warn("transcription failed", err)
		return Result{Status: StatusUpstream, Reason: ReasonTranscribeFailed}
	}
	return Result{Status: StatusOK, Body: map[string]any{
		"text":     transcript.Text,
		"language": transcript.Language,
	}}
}

// record runs the exclusive capture and maps coordinator errors to statuses.
// The slot is already released by the time any error is reported.
func (g *Gateway) record(ctx context.Context, device string, duration time.Duration) (capture.Recording, *Result) {
	rec, err := g.coordinator.Capture(ctx, device, duration)
	switch {
	case err == nil:
		return rec, nil
	case errors.Is(err, capture.ErrBusy):
		return capture.Recording{}, &Result{Status: StatusBusy, Reason: ReasonCaptureBusy}
	case errors.Is(err, capture.ErrTimedOut):
		return capture.Recording{}, &Result{Status: StatusTimeout, Reason: ReasonCaptureTimeout}
	default:
		g.warn("capture failed", err)
		return capture.Recording{}, &Result{Status: StatusUpstream, Reason: ReasonCaptureFailed}
	}
}

func (g *Gateway) listDevices() Result {
	devices, err := g.coordinator.Devices()
	if err != nil {
		g.warn("device enumeration failed", err)
		return Result{Status: StatusUpstream, Reason: ReasonCaptureFailed}
	}
	return Result{Status: StatusOK, Body: map[string]any{"devices": devices}}
}

func (g *Gateway) warn(msg string, err error, fields ...zap.Field) {
	if g.logger != nil {
		g.logger.Warn(msg, append(fields, zap.Error(err))...)
	}
}

func outcomeFor(status Status) audit.Outcome {
	switch status {
	case StatusOK:
		return audit.OutcomeAccepted
	case StatusUnauthorized:
		return audit.OutcomeUnauthorized
	case StatusRateLimited:
		return audit.OutcomeRateLimited
	case StatusInvalidInput:
		return audit.OutcomeInvalid
	case StatusBusy:
		return audit.OutcomeBusy
	case StatusTimeout:
		return audit.OutcomeTimeout
	case StatusUpstream:
		return audit.OutcomeUpstream
	default:
		return audit.OutcomeInternal
	}
}
