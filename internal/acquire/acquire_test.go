package acquire

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/ytscribe/internal/command"
	"github.com/jo-hoe/ytscribe/internal/config"
)

// fakeRunner simulates command execution order and outcomes.
type fakeRunner struct {
	run func(ctx context.Context, name string, args ...string) (command.Result, error)
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (command.Result, error) {
	if f.run == nil {
		return command.Result{}, nil
	}
	return f.run(ctx, name, args...)
}

func testConfig() config.AcquisitionConfig {
	return config.AcquisitionConfig{YTDLPPath: "yt-dlp-custom", FFmpegPath: "ffmpeg-custom", MaxConcurrent: 1}
}

func argValue(args []string, flag string) string {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag {
			return args[i+1]
		}
	}
	return ""
}

func mustWrite(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestAcquire_DownloadsThenTranscodes(t *testing.T) {
	dir := t.TempDir()
	req := Request{
		URL:        "https://youtu.be/abc",
		SourcePath: filepath.Join(dir, "audio-1.src"),
		PCMPath:    filepath.Join(dir, "audio-1.pcm"),
		SampleRate: 16000,
		Channels:   1,
	}

	var calls []string
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (command.Result, error) {
		calls = append(calls, name)
		switch name {
		case "yt-dlp-custom":
			assert.Equal(t, req.SourcePath, argValue(args, "-o"))
			assert.Contains(t, args, "--no-part", "no .part file may outlive a failed download")
			assert.Equal(t, "--", args[len(args)-2], "url is separated from options")
			assert.Equal(t, req.URL, args[len(args)-1])
			mustWrite(t, req.SourcePath, "webm")
		case "ffmpeg-custom":
			assert.Equal(t, req.SourcePath, argValue(args, "-i"))
			assert.Equal(t, "16000", argValue(args, "-ar"))
			assert.Equal(t, "1", argValue(args, "-ac"))
			assert.Equal(t, "s16le", argValue(args, "-f"))
			assert.Equal(t, req.PCMPath, args[len(args)-1])
			mustWrite(t, req.PCMPath, "pcm")
		default:
			t.Fatalf("unexpected tool %s", name)
		}
		return command.Result{}, nil
	}}

	tools := NewWithRunner(nil, testConfig(), runner)
	require.NoError(t, tools.Acquire(context.Background(), req))
	assert.Equal(t, []string{"yt-dlp-custom", "ffmpeg-custom"}, calls)
}

func TestAcquire_ToolFailureCarriesDiagnostics(t *testing.T) {
	dir := t.TempDir()
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (command.Result, error) {
		return command.Result{Stderr: "ERROR: Video unavailable", ExitCode: 1}, errors.New("exit status 1")
	}}
	tools := NewWithRunner(nil, testConfig(), runner)

	err := tools.Acquire(context.Background(), Request{
		URL:        "https://youtu.be/gone",
		SourcePath: filepath.Join(dir, "a.src"),
		PCMPath:    filepath.Join(dir, "a.pcm"),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrToolFailed)

	var cmdErr *command.Error
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, "yt-dlp-custom", cmdErr.Tool)
	assert.Equal(t, 1, cmdErr.ExitCode)
	assert.Contains(t, cmdErr.Error(), "Video unavailable")
}

func TestAcquire_MissingOutputIsFailure(t *testing.T) {
	dir := t.TempDir()
	tools := NewWithRunner(nil, testConfig(), &fakeRunner{})

	err := tools.Acquire(context.Background(), Request{
		URL:        "https://youtu.be/abc",
		SourcePath: filepath.Join(dir, "a.src"),
		PCMPath:    filepath.Join(dir, "a.pcm"),
	})
	require.ErrorIs(t, err, ErrToolFailed)
}

func TestAcquire_RejectsEmptyURL(t *testing.T) {
	called := false
	tools := NewWithRunner(nil, testConfig(), &fakeRunner{run: func(ctx context.Context, name string, args ...string) (command.Result, error) {
		called = true
		return command.Result{}, nil
	}})
	require.Error(t, tools.Acquire(context.Background(), Request{URL: "  "}))
	assert.False(t, called)
}

func TestAcquire_BoundsConcurrency(t *testing.T) {
	dir := t.TempDir()
	var active, peak int32
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (command.Result, error) {
		n := atomic.AddInt32(&active, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&active, -1)
		out := argValue(args, "-o")
		if name == "ffmpeg-custom" {
			out = args[len(args)-1]
		}
		mustWrite(t, out, "x")
		return command.Result{}, nil
	}}
	tools := NewWithRunner(nil, testConfig(), runner)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := string(rune('a' + i))
			err := tools.Acquire(context.Background(), Request{
				URL:        "https://youtu.be/" + id,
				SourcePath: filepath.Join(dir, id+".src"),
				PCMPath:    filepath.Join(dir, id+".pcm"),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int32(1), atomic.LoadInt32(&peak))
}

func TestDownloadMP3_UsesExtensionTemplate(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "download-1.mp3")
	runner := &fakeRunner{run: func(ctx context.Context, name string, args ...string) (command.Result, error) {
		assert.Equal(t, filepath.Join(dir, "download-1.%(ext)s"), argValue(args, "-o"))
		assert.Equal(t, "mp3", argValue(args, "--audio-format"))
		assert.Equal(t, "5", argValue(args, "--audio-quality"))
		assert.Contains(t, args, "--no-part")
		mustWrite(t, target, "ID3")
		return command.Result{}, nil
	}}
	tools := NewWithRunner(nil, testConfig(), runner)

	require.NoError(t, tools.DownloadMP3(context.Background(), "https://youtu.be/abc", target))
	require.Error(t, tools.DownloadMP3(context.Background(), "https://youtu.be/abc", filepath.Join(dir, "x.wav")))
}
