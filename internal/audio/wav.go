package audio

import (
	"encoding/binary"
	"fmt"
	"io"
)

// WriteWAV writes mono 16-bit PCM samples as a canonical RIFF/WAVE stream.
func WriteWAV(w io.Writer, samples []float32, sampleRate int) error {
	data := EncodePCM16(samples)
	const headerSize = 44
	hdr := make([]byte, headerSize)
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(headerSize-8+len(data)))
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16) // fmt chunk size
	binary.LittleEndian.PutUint16(hdr[20:], 1)  // PCM
	binary.LittleEndian.PutUint16(hdr[22:], 1)  // mono
	binary.LittleEndian.PutUint32(hdr[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(sampleRate*2))
	binary.LittleEndian.PutUint16(hdr[32:], 2)  // block align
	binary.LittleEndian.PutUint16(hdr[34:], 16) // bits per sample
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(data)))

	if _, err := w.Write(hdr); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("write wav data: %w", err)
	}
	return nil
}
