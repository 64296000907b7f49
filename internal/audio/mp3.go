package audio

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tcolgate/mp3"
)

// ErrNoFrames is returned when a stream holds no decodable MP3 frame.
var ErrNoFrames = errors.New("no mp3 frames found")

// MP3Duration walks the frame headers of an MP3 stream and sums their durations.
// Frame payloads are skipped, so this is cheap even for long files.
func MP3Duration(r io.Reader) (time.Duration, error) {
	dec := mp3.NewDecoder(r)
	var (
		frame   mp3.Frame
		skipped int
		total   time.Duration
		frames  int
	)
	for {
		if err := dec.Decode(&frame, &skipped); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			if frames > 0 {
				// Trailing garbage (tags, truncated frame) after valid audio.
				break
			}
			return 0, fmt.Errorf("decode mp3 frame: %w", err)
		}
		total += frame.Duration()
		frames++
	}
	if frames == 0 {
		return 0, ErrNoFrames
	}
	return total, nil
}
