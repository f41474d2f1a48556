package audio

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/saker-ai/vrchat-bridge/pkg/audio/opusx"
)

const (
	opusFrameDurationMs = 20
	opusMaxPacketBytes  = 4000
	frameHeaderSize     = 4
)

// PacketEncoder turns PCM16 into a stream of length-framed opus packets.
// Each packet is prefixed with a compact 4-byte header: payload type,
// reserved byte, big-endian uint16 payload size.
type PacketEncoder struct {
	mu         sync.Mutex
	enc        *opusx.Encoder
	frameSize  int
	channels   int
	sampleRate int
	scratch    []byte
}

// NewPacketEncoder builds an encoder for the given PCM shape. Opus supports
// 8, 12, 16, 24 and 48 kHz input.
func NewPacketEncoder(sampleRate, channels, bitrate int) (*PacketEncoder, error) {
	enc, err := opusx.NewEncoder(sampleRate, channels, opusx.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}
	if bitrate > 0 {
		if err := enc.SetBitrate(bitrate); err != nil {
			return nil, fmt.Errorf("set opus bitrate: %w", err)
		}
	}
	return &PacketEncoder{
		enc:        enc,
		frameSize:  sampleRate * opusFrameDurationMs / 1000,
		channels:   channels,
		sampleRate: sampleRate,
		scratch:    make([]byte, opusMaxPacketBytes),
	}, nil
}

// EncodeStream encodes the whole sample buffer into framed packets. The
// final partial frame is zero-padded.
func (e *PacketEncoder) EncodeStream(samples []int16) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	samplesPerFrame := e.frameSize * e.channels
	var out []byte
	for offset := 0; offset < len(samples); offset += samplesPerFrame {
		end := offset + samplesPerFrame
		frame := samples[offset:min(end, len(samples))]
		if len(frame) < samplesPerFrame {
			padded := make([]int16, samplesPerFrame)
			copy(padded, frame)
			frame = padded
		}
		n, err := e.enc.Encode(frame, e.scratch)
		if err != nil {
			return nil, fmt.Errorf("opus encode: %w", err)
		}
		if n == 0 {
			continue
		}
		head := make([]byte, frameHeaderSize)
		binary.BigEndian.PutUint16(head[2:4], uint16(n))
		out = append(out, head...)
		out = append(out, e.scratch[:n]...)
	}
	return out, nil
}

// Backend reports which opus implementation is linked in.
func Backend() string {
	return opusx.Backend()
}
