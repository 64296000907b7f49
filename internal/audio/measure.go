package audio

import (
	"fmt"
	"os"
	"time"
)

// Info is what Measure learns about a raw asset.
type Info struct {
	Size     int64
	Frames   int64
	Duration time.Duration
}

// Seconds returns the duration in (fractional) seconds.
func (i Info) Seconds() float64 {
	return i.Duration.Seconds()
}

// Measure derives a raw PCM asset's length from its byte size. A trailing partial frame is ignored.
func Measure(path string, f Format) (Info, error) {
	if f.FrameBytes() <= 0 || f.SampleRate <= 0 {
		return Info{}, fmt.Errorf("invalid pcm format %+v", f)
	}
	st, err := os.Stat(path)
	if err != nil {
		return Info{}, fmt.Errorf("stat pcm: %w", err)
	}
	if st.IsDir() {
		return Info{}, fmt.Errorf("pcm path %s is a directory", path)
	}
	frames := st.Size() / f.FrameBytes()
	return Info{
		Size:     st.Size(),
		Frames:   frames,
		Duration: f.FramesToDuration(frames),
	}, nil
}
