// Package audio provides the PCM plumbing between the capture device, the
// opus/wav response encoders and the transcriber: sample conversions,
// resampling and container framing.
package audio

import "math"

func float32ToInt16(sample float32) int16 {
	if sample > 1.0 {
		return 32767
	}
	if sample < -1.0 {
		return -32768
	}
	return int16(sample * 32767)
}

// Int16ToFloat32 converts PCM16 samples to normalized float32.
func Int16ToFloat32(samples []int16) []float32 {
	out := make([]float32, len(samples))
	for i, sample := range samples {
		out[i] = float32(sample) / float32(math.MaxInt16)
	}
	return out
}

// Float32ToInt16 converts normalized float32 samples to PCM16 with clipping.
func Float32ToInt16(samples []float32) []int16 {
	out := make([]int16, len(samples))
	for i, sample := range samples {
		out[i] = float32ToInt16(sample)
	}
	return out
}

// Int16ToBytes converts PCM16 samples to little-endian bytes.
func Int16ToBytes(samples []int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, sample := range samples {
		out[i*2] = byte(sample)
		out[i*2+1] = byte(sample >> 8)
	}
	return out
}

// BytesToInt16 converts little-endian bytes to PCM16 samples. A trailing
// odd byte is zero-padded.
func BytesToInt16(data []byte) []int16 {
	out := make([]int16, (len(data)+1)/2)
	for i := range out {
		low := data[i*2]
		high := byte(0)
		if i*2+1 < len(data) {
			high = data[i*2+1]
		}
		out[i] = int16(low) | int16(high)<<8
	}
	return out
}

// DownmixMono averages interleaved channels into one.
func DownmixMono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			sum += int(samples[i*channels+c])
		}
		out[i] = int16(sum / channels)
	}
	return out
}
