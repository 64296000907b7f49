package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/ytscribe/internal/common"
)

func TestParseByteSize_K8sAndCommonUnits(t *testing.T) {
	cases := []struct {
		in   string
		want uint64
	}{
		{"1024", 1024},
		{"1Ki", 1024},
		{"1KiB", 1024},
		{"2Mi", 2 * 1024 * 1024},
		{"2MiB", 2 * 1024 * 1024},
		{"3Gi", 3 * 1024 * 1024 * 1024},
		{"3GiB", 3 * 1024 * 1024 * 1024},
		{"10KB", 10 * 1000},
		{"10MB", 10 * 1000 * 1000},
		{"2GB", 2 * 1000 * 1000 * 1000},
	}
	for _, c := range cases {
		got, err := ParseByteSize(c.in)
		require.NoError(t, err, c.in)
		assert.Equal(t, c.want, got, c.in)
	}
	_, err := ParseByteSize("bad")
	assert.Error(t, err, "invalid unit")
}

func TestLoad_WithEnvAndDefaults(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	t.Setenv("OPENAI_KEY", "secret123")

	yaml := `
server:
  address: ":0"
  readTimeout: 1s
  idleTimeout: 3s
  maxBodySize: 64Ki
  storageDir: "` + escapeBackslashes(dir) + `"
  apiKey: "key123"
  corsOrigins: ["http://localhost:5173"]

log:
  level: debug
  format: json

engine:
  provider: "openai"
  openai:
    apiKey: "${OPENAI_KEY}"
    language: es
`
	require.NoError(t, os.WriteFile(cfgPath, []byte(yaml), 0o600))

	cfg, err := Load(cfgPath)
	require.NoError(t, err)

	assert.Equal(t, ":0", cfg.Server.Addr)
	assert.Equal(t, time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 3*time.Second, cfg.Server.IdleTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout, "writeTimeout stays unlimited for event streams")
	assert.Equal(t, uint64(64*1024), uint64(cfg.Server.MaxBodySize))
	assert.Equal(t, "key123", cfg.Server.APIKey)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)
	assert.Regexp(t, `ytscribe\.db$`, cfg.Server.DatabasePath)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)

	assert.Equal(t, "secret123", cfg.Engine.OpenAI.APIKey, "env expansion")
	assert.Equal(t, "whisper-1", cfg.Engine.OpenAI.Model)
	assert.NotEmpty(t, cfg.Engine.OpenAI.BaseURL)

	// Audio defaults must match the reference deployment.
	assert.Equal(t, common.SampleRate, cfg.Audio.SampleRate)
	assert.Equal(t, common.Channels, cfg.Audio.Channels)
	assert.Equal(t, common.LongAudioThreshold, cfg.Audio.LongAudioThreshold)
	assert.Equal(t, common.SegmentLength, cfg.Audio.SegmentLength)

	for _, d := range []string{cfg.Acquisition.WorkDir, cfg.Output.Dir} {
		assert.True(t, strings.HasPrefix(d, dir), "dir %s should live under storageDir %s", d, dir)
		assert.DirExists(t, d)
	}
	assert.True(t, cfg.History.IsEnabled(), "history defaults to enabled")
}

func TestLoad_MissingExplicitFileFails(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestParse_ValidationErrors(t *testing.T) {
	dir := escapeBackslashes(t.TempDir())
	cases := map[string]string{
		"unknown provider": "engine:\n  provider: nope\n",
		"whispercpp model": "engine:\n  provider: whispercpp\n",
		"segment too long": "audio:\n  longAudioThreshold: 10s\n  segmentLength: 20s\n",
		"log format":       "log:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte("server:\n  storageDir: \"" + dir + "\"\n" + body))
			assert.Error(t, err)
		})
	}
}

func TestHistoryConfig_ExplicitDisable(t *testing.T) {
	dir := escapeBackslashes(t.TempDir())
	cfg, err := Parse([]byte("server:\n  storageDir: \"" + dir + "\"\nhistory:\n  enabled: false\n"))
	require.NoError(t, err)
	assert.False(t, cfg.History.IsEnabled())
}

func TestParse_NormalizesProvider(t *testing.T) {
	dir := escapeBackslashes(t.TempDir())
	cfg, err := Parse([]byte("server:\n  storageDir: \"" + dir + "\"\nengine:\n  provider: \" OpenAI \"\n"))
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Engine.Provider)
	assert.NotZero(t, cfg.Engine.OpenAI.Timeout, "openai defaults apply after normalization")
}

func escapeBackslashes(p string) string {
	// On Windows, YAML literal may require escaping backslashes
	return strings.ReplaceAll(p, `\`, `\\`)
}
