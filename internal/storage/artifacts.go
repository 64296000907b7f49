package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Metadata is the JSON wrapper written next to each transcript.
type Metadata struct {
	URL       string `json:"url"`
	Timestamp string `json:"timestamp"`
	Text      string `json:"text"`
	Length    int    `json:"length"`
}

// Written locates the two durable artifacts of a job.
type Written struct {
	TextPath string
	JSONPath string
}

// Artifacts writes transcript files into a fixed output directory.
type Artifacts struct {
	dir string
	now func() time.Time
}

// NewArtifacts creates a writer for dir. The directory is created on first write.
func NewArtifacts(dir string) *Artifacts {
	return &Artifacts{dir: dir, now: time.Now}
}

// Dir returns the output directory.
func (a *Artifacts) Dir() string { return a.dir }

// Paths returns the deterministic artifact paths for jobID.
func (a *Artifacts) Paths(jobID string) Written {
	base := filepath.Join(a.dir, common.ArtifactPrefix+jobID)
	return Written{
		TextPath: base + common.ArtifactText,
		JSONPath: base + common.ArtifactJSON,
	}
}

// Write stores transcription-<id>.txt and transcription-<id>.json. Existing files are never
// overwritten. If the second file fails, the first is removed so no half-written job remains.
func (a *Artifacts) Write(jobID, sourceURL, text string) (Written, error) {
	if err := os.MkdirAll(a.dir, 0o750); err != nil {
		return Written{}, fmt.Errorf("ensure output dir: %w", err)
	}
	out := a.Paths(jobID)

	meta, err := json.MarshalIndent(Metadata{
		URL:       sourceURL,
		Timestamp: a.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		Text:      text,
		Length:    utf8.RuneCountInString(text),
	}, "", "  ")
	if err != nil {
		return Written{}, fmt.Errorf("marshal metadata: %w", err)
	}

	if err := writeOnce(out.TextPath, []byte(text)); err != nil {
		return Written{}, err
	}
	if err := writeOnce(out.JSONPath, meta); err != nil {
		return Written{}, errors.Join(err, os.Remove(out.TextPath))
	}
	return out, nil
}

func writeOnce(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640) // #nosec G304 - deterministic artifact path
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	return nil
}
