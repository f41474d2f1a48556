// Package mic records from the OS capture device via miniaudio.
package mic

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gen2brain/malgo"
	"go.uber.org/zap"

	"github.com/saker-ai/vrchat-bridge/internal/capture"
	"github.com/saker-ai/vrchat-bridge/pkg/audio"
)

// Recorder implements capture.Recorder on top of malgo. A fresh miniaudio
// context is created per operation; captures are rare and short, and this
// keeps device hot-plug visible without a watcher.
type Recorder struct {
	sampleRate int
	channels   int
	logger     *zap.Logger
}

// NewRecorder builds a recorder producing PCM16 at the given shape.
func NewRecorder(sampleRate, channels int, logger *zap.Logger) *Recorder {
	if sampleRate <= 0 {
		sampleRate = 48000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Recorder{sampleRate: sampleRate, channels: channels, logger: logger}
}

// Record captures for duration, or until ctx is cancelled, returning what
// was collected up to that point.
func (r *Recorder) Record(ctx context.Context, device string, duration time.Duration) (capture.Recording, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return capture.Recording{}, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatS16
	deviceConfig.Capture.Channels = uint32(r.channels)
	deviceConfig.SampleRate = uint32(r.sampleRate)
	deviceConfig.Alsa.NoMMap = 1

	if device != "" {
		id, err := findDeviceID(mctx, device)
		if err != nil {
			return capture.Recording{}, err
		}
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	var mu sync.Mutex
	var pcm []byte
	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			mu.Lock()
			pcm = append(pcm, input...)
			mu.Unlock()
		},
	}

	dev, err := malgo.InitDevice(mctx.Context, deviceConfig, callbacks)
	if err != nil {
		return capture.Recording{}, fmt.Errorf("init capture device: %w", err)
	}
	defer dev.Uninit()

	if err := dev.Start(); err != nil {
		return capture.Recording{}, fmt.Errorf("start capture device: %w", err)
	}

	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}
	_ = dev.Stop()

	mu.Lock()
	collected := pcm
	pcm = nil
	mu.Unlock()

	if ctx.Err() != nil && len(collected) == 0 {
		return capture.Recording{}, ctx.Err()
	}

	if r.logger != nil {
		r.logger.Debug("capture finished",
			zap.String("device", device),
			zap.Int("bytes", len(collected)),
			zap.Duration("requested", duration),
		)
	}

	return capture.Recording{
		Samples:    audio.BytesToInt16(collected),
		SampleRate: r.sampleRate,
		Channels:   r.channels,
	}, nil
}

// Devices enumerates capture devices. It holds no capture resource and may
// run concurrently with an active recording.
func (r *Recorder) Devices() ([]capture.Device, error) {
	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("init audio context: %w", err)
	}
	defer func() {
		_ = mctx.Uninit()
		mctx.Free()
	}()

	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("enumerate capture devices: %w", err)
	}

	devices := make([]capture.Device, 0, len(infos))
	for _, info := range infos {
		devices = append(devices, capture.Device{
			ID:        info.ID.String(),
			Name:      info.Name(),
			IsDefault: info.IsDefault != 0,
		})
	}
	return devices, nil
}

func findDeviceID(mctx *malgo.AllocatedContext, device string) (malgo.DeviceID, error) {
	infos, err := mctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, fmt.Errorf("enumerate capture devices: %w", err)
	}
	for _, info := range infos {
		if info.Name() == device || info.ID.String() == device {
			return info.ID, nil
		}
	}
	return malgo.DeviceID{}, fmt.Errorf("capture device %q not found", device)
}
