package audio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"
)

// Segment is a bounded window of a raw asset. Offsets are in bytes.
type Segment struct {
	Index  int
	Start  time.Duration
	End    time.Duration
	Offset int64
	Length int64
}

// Duration of the window.
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

func (s Segment) String() string {
	return fmt.Sprintf("segment %d: %s-%s", s.Index, s.Start, s.End)
}

// Segmenter splits long assets into fixed-length windows that tile the whole duration.
type Segmenter struct {
	format Format
	length time.Duration
}

// NewSegmenter returns a segmenter producing windows of the given length.
func NewSegmenter(f Format, length time.Duration) (*Segmenter, error) {
	if length <= 0 {
		return nil, fmt.Errorf("segment length must be positive, got %s", length)
	}
	if f.DurationToFrames(length) <= 0 {
		return nil, fmt.Errorf("segment length %s is shorter than one frame", length)
	}
	return &Segmenter{format: f, length: length}, nil
}

// Count returns ceil(duration / length). Zero-length audio has zero segments.
func (s *Segmenter) Count(info Info) int {
	per := s.format.DurationToFrames(s.length)
	if info.Frames <= 0 {
		return 0
	}
	return int((info.Frames + per - 1) / per)
}

// At returns the i-th window. The last window ends exactly at info.Duration.
func (s *Segmenter) At(info Info, i int) Segment {
	per := s.format.DurationToFrames(s.length)
	startFrame := int64(i) * per
	endFrame := startFrame + per
	if endFrame > info.Frames {
		endFrame = info.Frames
	}
	fb := s.format.FrameBytes()
	return Segment{
		Index:  i,
		Start:  s.format.FramesToDuration(startFrame),
		End:    s.format.FramesToDuration(endFrame),
		Offset: startFrame * fb,
		Length: (endFrame - startFrame) * fb,
	}
}

// Plan lists every window in ascending order. Only boundaries are computed; no samples are read.
func (s *Segmenter) Plan(info Info) []Segment {
	n := s.Count(info)
	out := make([]Segment, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, s.At(info, i))
	}
	return out
}

// Extract copies the window's bytes from src into a new file at dst and returns the bytes written.
// If src is shorter than the planned window the copy is clamped at end of file.
func (s *Segmenter) Extract(src string, seg Segment, dst string) (int64, error) {
	in, err := os.Open(src) // #nosec G304 - path is produced by the job workspace
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o600) // #nosec G304
	if err != nil {
		return 0, fmt.Errorf("create segment file: %w", err)
	}

	n, copyErr := io.Copy(out, io.NewSectionReader(in, seg.Offset, seg.Length))
	closeErr := out.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		return n, fmt.Errorf("copy %s: %w", seg, err)
	}
	// Keep whole frames only.
	if rem := n % s.format.FrameBytes(); rem != 0 {
		n -= rem
		if err := os.Truncate(dst, n); err != nil {
			return n, fmt.Errorf("truncate partial frame: %w", err)
		}
	}
	return n, nil
}
