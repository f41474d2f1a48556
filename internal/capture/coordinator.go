// Package capture serializes exclusive audio capture sessions and bounds
// their real-world duration.
package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the capture slot state.
type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
)

var (
	// ErrBusy means another capture session holds the slot. Requests are
	// rejected immediately, never queued.
	ErrBusy = errors.New("capture slot busy")
	// ErrTimedOut means the watchdog fired before the recorder returned.
	ErrTimedOut = errors.New("capture exceeded duration ceiling")
)

// Device describes one capture device.
type Device struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	IsDefault bool   `json:"is_default"`
}

// Recording is raw captured PCM.
type Recording struct {
	Samples    []int16
	SampleRate int
	Channels   int
}

// Recorder is the underlying capture device. Record must honor ctx
// cancellation and return whatever was captured up to that point or an
// error.
type Recorder interface {
	Record(ctx context.Context, device string, duration time.Duration) (Recording, error)
	Devices() ([]Device, error)
}

// Transcript is the result of speech recognition on a completed capture.
type Transcript struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
}

// Transcriber is the external speech-recognition collaborator. It is only
// invoked after a completed capture; its failure is independent of the
// capture's own success.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte, language string) (Transcript, error)
}

// Coordinator guarantees at most one active capture session and a hard
// ceiling on each session's duration.
type Coordinator struct {
	mu       sync.Mutex
	state    State
	recorder Recorder
	grace    time.Duration
	logger   *zap.Logger
}

// NewCoordinator builds a coordinator around the recorder. grace is the
// watchdog margin beyond the requested duration.
func NewCoordinator(recorder Recorder, grace time.Duration, logger *zap.Logger) *Coordinator {
	if grace <= 0 {
		grace = 2 * time.Second
	}
	return &Coordinator{
		state:    StateIdle,
		recorder: recorder,
		grace:    grace,
		logger:   logger,
	}
}

// State returns the current slot state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// tryAcquire atomically claims the slot. Exactly one concurrent caller wins.
func (c *Coordinator) tryAcquire() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return false
	}
	c.state = StateRecording
	return true
}

func (c *Coordinator) release() {
	c.mu.Lock()
	c.state = StateIdle
	c.mu.Unlock()
}

// Capture claims the slot, records for duration and releases the slot on
// every exit path: completion, timeout, failure or caller cancellation.
func (c *Coordinator) Capture(ctx context.Context, device string, duration time.Duration) (Recording, error) {
	if !c.tryAcquire() {
		return Recording{}, ErrBusy
	}
	defer c.release()

	recCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		rec Recording
		err error
	}
	done := make(chan outcome, 1)
	start := time.Now()
	go func() {
		rec, err := c.recorder.Record(recCtx, device, duration)
		done <- outcome{rec: rec, err: err}
	}()

	// The watchdog bounds real-world duration independent of the
	// recorder's own cooperation.
	watchdog := time.NewTimer(duration + c.grace)
	defer watchdog.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			if c.logger != nil {
				c.logger.Warn("capture failed",
					zap.String("device", device),
					zap.Duration("elapsed", time.Since(start)),
					zap.Error(out.err),
				)
			}
			return Recording{}, out.err
		}
		return out.rec, nil
	case <-watchdog.C:
		cancel()
		if c.logger != nil {
			c.logger.Warn("capture watchdog fired",
				zap.String("device", device),
				zap.Duration("requested", duration),
				zap.Duration("grace", c.grace),
			)
		}
		return Recording{}, ErrTimedOut
	case <-ctx.Done():
		cancel()
		return Recording{}, ctx.Err()
	}
}

// Devices enumerates capture capability. It never touches the slot, so it
// may run while a session is recording.
func (c *Coordinator) Devices() ([]Device, error) {
	return c.recorder.Devices()
}
