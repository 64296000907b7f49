// Package acquire turns a video URL into local audio using yt-dlp and ffmpeg.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/jo-hoe/ytscribe/internal/command"
	"github.com/jo-hoe/ytscribe/internal/config"
)

// ErrToolFailed marks failures of yt-dlp or ffmpeg.
var ErrToolFailed = command.ErrFailed

// Request asks for the audio of URL as raw PCM.
// SourcePath receives the downloaded container and PCMPath the transcoded samples;
// both are owned (and cleaned up) by the caller, even when Acquire fails.
type Request struct {
	URL        string
	SourcePath string
	PCMPath    string
	SampleRate int
	Channels   int
}

// Acquirer produces a local raw audio asset for a source URL.
type Acquirer interface {
	Acquire(ctx context.Context, req Request) error
}

// Tools runs yt-dlp and ffmpeg. Concurrent acquisitions are bounded by a semaphore.
type Tools struct {
	log    *slog.Logger
	runner command.Runner
	ytdlp  string
	ffmpeg string
	slots  *semaphore.Weighted
	stat   func(string) (os.FileInfo, error)
}

var _ Acquirer = (*Tools)(nil)

// New builds Tools from configuration using the OS process runner.
func New(log *slog.Logger, cfg config.AcquisitionConfig) *Tools {
	return NewWithRunner(log, cfg, command.ExecRunner{})
}

// NewWithRunner builds Tools with an injected command runner.
func NewWithRunner(log *slog.Logger, cfg config.AcquisitionConfig, runner command.Runner) *Tools {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	slots := cfg.MaxConcurrent
	if slots <= 0 {
		slots = 1
	}
	return &Tools{
		log:    log,
		runner: runner,
		ytdlp:  cfg.YTDLPPath,
		ffmpeg: cfg.FFmpegPath,
		slots:  semaphore.NewWeighted(int64(slots)),
		stat:   os.Stat,
	}
}

// Acquire downloads the best audio stream and transcodes it to headerless s16le PCM.
func (t *Tools) Acquire(ctx context.Context, req Request) error {
	if strings.TrimSpace(req.URL) == "" {
		return fmt.Errorf("source url is required")
	}
	if err := t.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for acquisition slot: %w", err)
	}
	defer t.slots.Release(1)

	start := time.Now()
	if err := t.run(ctx, t.ytdlp, ytdlpAudioArgs(req.URL, req.SourcePath)); err != nil {
		return err
	}
	if err := t.expectFile(req.SourcePath, t.ytdlp); err != nil {
		return err
	}
	t.log.Debug("audio downloaded", "url", req.URL, "path", req.SourcePath, "duration", time.Since(start))

	start = time.Now()
	if err := t.run(ctx, t.ffmpeg, ffmpegPCMArgs(req.SourcePath, req.PCMPath, req.SampleRate, req.Channels)); err != nil {
		return err
	}
	if err := t.expectFile(req.PCMPath, t.ffmpeg); err != nil {
		return err
	}
	t.log.Debug("audio transcoded", "path", req.PCMPath, "duration", time.Since(start))
	return nil
}

// DownloadMP3 extracts the audio of url as an MP3 at mp3Path, which must end in ".mp3".
func (t *Tools) DownloadMP3(ctx context.Context, url, mp3Path string) error {
	if !strings.HasSuffix(mp3Path, ".mp3") {
		return fmt.Errorf("mp3 path %q must end in .mp3", mp3Path)
	}
	if err := t.slots.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("wait for acquisition slot: %w", err)
	}
	defer t.slots.Release(1)

	template := strings.TrimSuffix(mp3Path, ".mp3") + ".%(ext)s"
	if err := t.run(ctx, t.ytdlp, ytdlpMP3Args(url, template)); err != nil {
		return err
	}
	return t.expectFile(mp3Path, t.ytdlp)
}

func (t *Tools) run(ctx context.Context, tool string, args []string) error {
	_, err := command.Run(ctx, t.runner, tool, args...)
	return err
}

func (t *Tools) expectFile(path, tool string) error {
	if _, err := t.stat(path); err != nil {
		return &command.Error{Tool: tool, ExitCode: 0, Stderr: "completed but output file is missing", Err: err}
	}
	return nil
}

var ytdlpCommonArgs = []string{
	"--no-playlist",
	"--no-part",
	"--no-warnings",
	"--no-check-certificates",
	"--prefer-free-formats",
	"--add-header", "referer:youtube.com",
	"--add-header", "user-agent:Mozilla/5.0",
}

func ytdlpAudioArgs(url, out string) []string {
	args := append([]string{"-f", "bestaudio/best"}, ytdlpCommonArgs...)
	return append(args, "-o", out, "--", url)
}

func ytdlpMP3Args(url, template string) []string {
	args := append([]string{"-x", "--audio-format", "mp3", "--audio-quality", "5"}, ytdlpCommonArgs...)
	return append(args, "-o", template, "--", url)
}

// ffmpegPCMArgs builds conversion args for headerless signed 16-bit PCM at the target rate.
func ffmpegPCMArgs(in, out string, sampleRate, channels int) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-i", in,
		"-vn",
		"-ac", strconv.Itoa(channels),
		"-ar", strconv.Itoa(sampleRate),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		out,
	}
}
