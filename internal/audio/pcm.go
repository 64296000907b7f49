package audio

import (
	"encoding/binary"
	"fmt"
	"os"
)

// LoadSamples reads a raw s16le asset and returns float32 samples in [-1, 1), downmixed to mono.
func LoadSamples(path string, f Format) ([]float32, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path is produced by the job workspace
	if err != nil {
		return nil, fmt.Errorf("read pcm: %w", err)
	}
	return DecodePCM16(data, f.Channels), nil
}

// DecodePCM16 converts interleaved s16le bytes into mono float32 samples.
// A trailing partial frame is dropped.
func DecodePCM16(data []byte, channels int) []float32 {
	if channels <= 0 {
		channels = 1
	}
	frameBytes := 2 * channels
	frames := len(data) / frameBytes
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		base := i * frameBytes
		for c := 0; c < channels; c++ {
			v := int16(binary.LittleEndian.Uint16(data[base+2*c:]))
			sum += float32(v) / 32768
		}
		out[i] = sum / float32(channels)
	}
	return out
}

// EncodePCM16 converts float32 samples into mono s16le bytes, clipping out-of-range values.
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, 2*len(samples))
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[2*i:], uint16(toInt16(s)))
	}
	return out
}

func toInt16(s float32) int16 {
	switch {
	case s >= 1:
		return 32767
	case s <= -1:
		return -32768
	default:
		return int16(s * 32768)
	}
}
