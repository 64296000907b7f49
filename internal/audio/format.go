// Package audio measures and slices raw PCM assets without loading them whole.
//
// Raw assets are headerless signed 16-bit little-endian PCM, the layout ffmpeg
// writes with "-f s16le". All sizes are derived from the byte count, so probing
// and segment extraction never decode more than the segment being processed.
package audio

import (
	"time"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Format describes a raw PCM layout.
type Format struct {
	SampleRate int
	Channels   int
}

// Reference is the 16 kHz mono layout every transcription engine consumes.
var Reference = Format{SampleRate: common.SampleRate, Channels: common.Channels}

// FrameBytes is the size of one sample across all channels.
func (f Format) FrameBytes() int64 {
	return int64(common.BytesPerSample * f.Channels)
}

// BytesPerSecond is the data rate of the format.
func (f Format) BytesPerSecond() int64 {
	return f.FrameBytes() * int64(f.SampleRate)
}

// FramesToDuration converts a frame count into wall-clock time.
func (f Format) FramesToDuration(frames int64) time.Duration {
	if f.SampleRate <= 0 {
		return 0
	}
	rate := int64(f.SampleRate)
	// Whole seconds and the remainder separately so long inputs cannot overflow.
	return time.Duration(frames/rate)*time.Second + time.Duration(frames%rate)*time.Second/time.Duration(rate)
}

// DurationToFrames converts wall-clock time into a frame count, rounding down.
func (f Format) DurationToFrames(d time.Duration) int64 {
	rate := int64(f.SampleRate)
	return int64(d/time.Second)*rate + int64(d%time.Second)*rate/int64(time.Second)
}
