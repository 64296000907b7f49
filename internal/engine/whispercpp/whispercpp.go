// Package whispercpp runs transcription through the whisper.cpp command line tool.
package whispercpp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/audio"
	"github.com/jo-hoe/ytscribe/internal/command"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Engine writes samples to a temporary WAV and hands it to whisper-cli in one pass.
// Progress is reported once, after the whole input has been decoded.
type Engine struct {
	binary     string
	model      string
	language   string
	threads    int
	sampleRate int
	chunk      time.Duration
	tempDir    string
	runner     command.Runner

	mkdirTemp func(dir, pattern string) (string, error)
	removeAll func(path string) error
	readFile  func(name string) ([]byte, error)
}

// Load resolves the model file and returns a ready engine.
// tempDir holds per-call workspaces; empty means the OS default.
func Load(cfg config.WhisperCPPSettings, sampleRate int, chunk time.Duration, tempDir string, runner command.Runner) (*Engine, error) {
	model, err := resolveModelPath(cfg.ModelPath, os.Stat, os.ReadDir)
	if err != nil {
		return nil, err
	}
	if runner == nil {
		runner = command.ExecRunner{}
	}
	return &Engine{
		binary:     cfg.BinaryPath,
		model:      model,
		language:   cfg.Language,
		threads:    cfg.Threads,
		sampleRate: sampleRate,
		chunk:      chunk,
		tempDir:    tempDir,
		runner:     runner,
		mkdirTemp:  os.MkdirTemp,
		removeAll:  os.RemoveAll,
		readFile:   os.ReadFile,
	}, nil
}

func (e *Engine) Name() string { return "whispercpp" }

// Model is the resolved model file.
func (e *Engine) Model() string { return e.model }

func (e *Engine) Transcribe(ctx context.Context, samples []float32, onChunk engine.ChunkFunc) (string, error) {
	chunks := engine.Chunks(len(samples), e.sampleRate, e.chunk)
	if len(chunks) == 0 {
		return "", nil
	}

	dir, err := e.mkdirTemp(e.tempDir, "whispercpp-*")
	if err != nil {
		return "", fmt.Errorf("create workspace: %w", err)
	}
	defer func() { _ = e.removeAll(dir) }()

	wavPath := filepath.Join(dir, "input.wav")
	if err := writeWAVFile(wavPath, samples, e.sampleRate); err != nil {
		return "", err
	}

	textBase := filepath.Join(dir, "transcript")
	if _, err := command.Run(ctx, e.runner, e.binary, buildWhisperArgs(e.model, wavPath, textBase, e.language, e.threads)...); err != nil {
		return "", err
	}

	content, err := e.readFile(textBase + ".txt")
	if err != nil {
		return "", fmt.Errorf("whisper.cpp completed but transcript is missing: %w", err)
	}
	if onChunk != nil {
		onChunk(len(chunks))
	}
	return strings.Join(strings.Fields(string(content)), " "), nil
}

func writeWAVFile(path string, samples []float32, sampleRate int) (err error) {
	f, err := os.Create(path) // #nosec G304 - path is inside our own temp workspace
	if err != nil {
		return fmt.Errorf("create wav: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("close wav: %w", cerr)
		}
	}()
	if err := audio.WriteWAV(f, samples, sampleRate); err != nil {
		return fmt.Errorf("write wav: %w", err)
	}
	return nil
}

// resolveModelPath accepts a model file or a directory; for a directory the
// lexically first .bin or .gguf file wins.
func resolveModelPath(raw string, stat func(string) (os.FileInfo, error), readDir func(string) ([]os.DirEntry, error)) (string, error) {
	modelPath := strings.TrimSpace(raw)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}
	info, err := stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(entry.Name())) {
		case ".bin", ".gguf":
			names = append(names, entry.Name())
		}
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}
	sort.Strings(names)
	return filepath.Join(modelPath, names[0]), nil
}

// normalizeLanguage maps "auto" and empty to no override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func buildWhisperArgs(modelPath, audioPath, textBase, language string, threads int) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", textBase,
		"-otxt",
		"-np",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	if threads > 0 {
		args = append(args, "-t", strconv.Itoa(threads))
	}
	return args
}
