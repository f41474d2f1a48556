//go:build !cgo

package opusx

import "github.com/godeps/opus"

// Backend names the opus implementation compiled in.
func Backend() string {
	return "pure-godeps/opus"
}

type Application = opus.Application

const (
	AppVoIP  = opus.AppVoIP
	AppAudio = opus.AppAudio
)

type Encoder struct {
	enc *opus.Encoder
}

func NewEncoder(sampleRate, channels int, app Application) (*Encoder, error) {
	enc, err := opus.NewEncoder(sampleRate, channels, app)
	if err != nil {
		return nil, err
	}
	return &Encoder{enc: enc}, nil
}

func (e *Encoder) Encode(pcm []int16, data []byte) (int, error) {
	return e.enc.Encode(pcm, data)
}

func (e *Encoder) SetBitrate(bitrate int) error {
	return e.enc.SetBitrate(bitrate)
}

func (e *Encoder) SetComplexity(complexity int) error {
	return e.enc.SetComplexity(complexity)
}
