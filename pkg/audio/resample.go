package audio

import (
	resampler "github.com/godeps/go-audio-soxr"
)

// Resample converts PCM16 samples from inRate to outRate in one shot.
func Resample(samples []int16, inRate int, outRate int) ([]int16, error) {
	if inRate == outRate || len(samples) == 0 {
		return samples, nil
	}

	engine, err := resampler.NewEngineFloat32(float64(inRate), float64(outRate), resampler.QualityHigh)
	if err != nil {
		return nil, err
	}

	out, err := engine.Process(Int16ToFloat32(samples))
	if err != nil {
		return nil, err
	}
	tail, err := engine.Flush()
	if err != nil {
		return nil, err
	}
	if len(tail) > 0 {
		out = append(out, tail...)
	}
	return Float32ToInt16(out), nil
}
