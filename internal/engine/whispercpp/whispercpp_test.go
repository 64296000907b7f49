package whispercpp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/ytscribe/internal/command"
	"github.com/jo-hoe/ytscribe/internal/config"
)

type fakeRunner struct {
	run func(name string, args []string) (command.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	return f.run(name, args)
}

func argValue(args []string, flag string) string {
	for i := 0; i+1 < len(args); i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func modelDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range []string{"ggml-small.bin", "ggml-base.bin", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}
	return dir
}

func TestLoad_ResolvesModelFromDirectory(t *testing.T) {
	dir := modelDir(t)
	e, err := Load(config.WhisperCPPSettings{BinaryPath: "whisper-cli", ModelPath: dir}, 100, 20*time.Second, "", &fakeRunner{})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "ggml-base.bin"), e.Model())
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(config.WhisperCPPSettings{}, 100, time.Second, "", nil)
	assert.Error(t, err)

	_, err = Load(config.WhisperCPPSettings{ModelPath: filepath.Join(t.TempDir(), "missing.bin")}, 100, time.Second, "", nil)
	assert.Error(t, err)

	_, err = Load(config.WhisperCPPSettings{ModelPath: t.TempDir()}, 100, time.Second, "", nil)
	assert.ErrorContains(t, err, "no .bin or .gguf")
}

func TestTranscribe_RunsCLIAndCleansWorkspace(t *testing.T) {
	work := t.TempDir()
	var seenArgs []string
	runner := &fakeRunner{run: func(name string, args []string) (command.Result, error) {
		seenArgs = args
		assert.Equal(t, "whisper-cli", name)
		wav, err := os.ReadFile(argValue(args, "-f"))
		require.NoError(t, err)
		assert.Equal(t, "RIFF", string(wav[:4]))
		require.NoError(t, os.WriteFile(argValue(args, "-of")+".txt", []byte("  hello\n world \n"), 0o600))
		return command.Result{}, nil
	}}
	e, err := Load(config.WhisperCPPSettings{BinaryPath: "whisper-cli", ModelPath: modelDir(t), Language: "auto", Threads: 4}, 100, 20*time.Second, work, runner)
	require.NoError(t, err)

	var chunks []int
	text, err := e.Transcribe(context.Background(), make([]float32, 100*45), func(n int) { chunks = append(chunks, n) })
	require.NoError(t, err)

	assert.Equal(t, "hello world", text)
	assert.Equal(t, []int{3}, chunks)
	assert.NotContains(t, seenArgs, "-l")
	assert.Equal(t, "4", argValue(seenArgs, "-t"))
	assert.Contains(t, seenArgs, "-otxt")

	left, err := os.ReadDir(work)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestTranscribe_ToolFailure(t *testing.T) {
	work := t.TempDir()
	runner := &fakeRunner{run: func(name string, args []string) (command.Result, error) {
		return command.Result{ExitCode: 1, Stderr: "failed to load model"}, errors.New("exit status 1")
	}}
	e, err := Load(config.WhisperCPPSettings{BinaryPath: "whisper-cli", ModelPath: modelDir(t), Language: "de"}, 100, 20*time.Second, work, runner)
	require.NoError(t, err)

	_, err = e.Transcribe(context.Background(), make([]float32, 10), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, command.ErrFailed)

	left, _ := os.ReadDir(work)
	assert.Empty(t, left)
}

func TestTranscribe_EmptyInputSkipsCLI(t *testing.T) {
	runner := &fakeRunner{run: func(name string, args []string) (command.Result, error) {
		t.Fatalf("cli must not run for empty input")
		return command.Result{}, nil
	}}
	e, err := Load(config.WhisperCPPSettings{ModelPath: modelDir(t)}, 100, time.Second, "", runner)
	require.NoError(t, err)
	text, err := e.Transcribe(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, text)
}

func TestBuildWhisperArgs_Language(t *testing.T) {
	args := buildWhisperArgs("m.bin", "a.wav", "out", " de ", 0)
	assert.Equal(t, []string{"-m", "m.bin", "-f", "a.wav", "-of", "out", "-otxt", "-np", "-l", "de"}, args)
}
