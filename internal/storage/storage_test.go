package storage

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScratch_TrackReleaseCleanup(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "tmp")
	s, err := NewScratch(dir, "123", nil)
	require.NoError(t, err)

	raw := s.Track("audio", ".src")
	pcm := s.Track("audio", ".pcm")
	never := s.Track("audio-seg0", ".pcm")
	assert.Equal(t, filepath.Join(dir, "audio-123.src"), raw)
	assert.Equal(t, filepath.Join(dir, "audio-123.pcm"), pcm)

	require.NoError(t, os.WriteFile(raw, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(pcm, []byte("y"), 0o600))

	s.Release(raw)
	assert.NoFileExists(t, raw)
	assert.ElementsMatch(t, []string{pcm, never}, s.Pending())

	s.Cleanup()
	assert.NoFileExists(t, pcm)
	assert.Empty(t, s.Pending())
}

func TestScratch_RemovesEachPathOnce(t *testing.T) {
	s, err := NewScratch(t.TempDir(), "7", nil)
	require.NoError(t, err)
	calls := map[string]int{}
	s.remove = func(p string) error {
		calls[p]++
		return nil
	}

	a := s.Track("a", ".pcm")
	b := s.Track("b", ".pcm")
	s.Release(a)
	s.Release(a)
	s.Cleanup()
	s.Cleanup()

	assert.Equal(t, map[string]int{a: 1, b: 1}, calls)
}

func TestScratch_CleanupFailureIsSwallowed(t *testing.T) {
	s, err := NewScratch(t.TempDir(), "9", nil)
	require.NoError(t, err)
	s.remove = func(string) error { return errors.New("permission denied") }

	s.Track("a", ".pcm")
	assert.NotPanics(t, s.Cleanup)
	assert.Empty(t, s.Pending())
}

func TestArtifacts_WriteTextAndMetadata(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "transcriptions")
	a := NewArtifacts(dir)
	a.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 6_000_000, time.UTC) }

	got, err := a.Write("1700000000000", "https://youtu.be/abc", "añadir texto")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "transcription-1700000000000.txt"), got.TextPath)
	assert.Equal(t, filepath.Join(dir, "transcription-1700000000000.json"), got.JSONPath)

	txt, err := os.ReadFile(got.TextPath)
	require.NoError(t, err)
	assert.Equal(t, "añadir texto", string(txt))

	raw, err := os.ReadFile(got.JSONPath)
	require.NoError(t, err)
	var meta Metadata
	require.NoError(t, json.Unmarshal(raw, &meta))
	assert.Equal(t, "https://youtu.be/abc", meta.URL)
	assert.Equal(t, "2026-01-02T03:04:05.006Z", meta.Timestamp)
	assert.Equal(t, "añadir texto", meta.Text)
	assert.Equal(t, 12, meta.Length, "length counts characters, not bytes")
}

func TestArtifacts_NeverOverwrites(t *testing.T) {
	a := NewArtifacts(t.TempDir())
	_, err := a.Write("1", "u", "first")
	require.NoError(t, err)

	_, err = a.Write("1", "u", "second")
	require.Error(t, err)

	txt, err := os.ReadFile(a.Paths("1").TextPath)
	require.NoError(t, err)
	assert.Equal(t, "first", string(txt))
}

func TestArtifacts_RollsBackTextWhenJSONFails(t *testing.T) {
	dir := t.TempDir()
	a := NewArtifacts(dir)
	paths := a.Paths("2")
	// Occupy the JSON path so its exclusive create fails.
	require.NoError(t, os.WriteFile(paths.JSONPath, []byte("{}"), 0o600))

	_, err := a.Write("2", "u", "text")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "transcription-2.json"))
	assert.NoFileExists(t, paths.TextPath)
}

func TestScratch_CleanupSweepsToolLeftovers(t *testing.T) {
	dir := t.TempDir()
	s, err := NewScratch(dir, "42", nil)
	require.NoError(t, err)

	src := s.Track("audio", ".src")
	leftovers := []string{src + ".part", filepath.Join(dir, "download-42.webm")}
	for _, p := range leftovers {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	other := filepath.Join(dir, "audio-4242.src.part")
	require.NoError(t, os.WriteFile(other, []byte("x"), 0o600))

	s.Cleanup()

	for _, p := range leftovers {
		assert.NoFileExists(t, p)
	}
	assert.FileExists(t, other, "files of other jobs are kept")
}
