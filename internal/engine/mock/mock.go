// Package mock is an engine that fabricates transcripts for development and tests.
package mock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/engine"
)

var _ engine.Engine = (*Engine)(nil)

// Engine emits one line of text per chunk, optionally sleeping Delay per chunk.
type Engine struct {
	prefix     string
	delay      time.Duration
	sampleRate int
	chunk      time.Duration
}

// New creates a mock engine for samples at sampleRate, chunked by chunk.
func New(cfg config.MockSettings, sampleRate int, chunk time.Duration) *Engine {
	return &Engine{prefix: cfg.Prefix, delay: cfg.Delay, sampleRate: sampleRate, chunk: chunk}
}

func (e *Engine) Name() string { return "mock" }

func (e *Engine) Transcribe(ctx context.Context, samples []float32, onChunk engine.ChunkFunc) (string, error) {
	chunks := engine.Chunks(len(samples), e.sampleRate, e.chunk)
	parts := make([]string, 0, len(chunks))
	for i, c := range chunks {
		if err := e.wait(ctx); err != nil {
			return "", err
		}
		from := time.Duration(c[0]) * time.Second / time.Duration(e.sampleRate)
		to := time.Duration(c[1]) * time.Second / time.Duration(e.sampleRate)
		parts = append(parts, fmt.Sprintf("%s [%s-%s]", e.prefix, from, to))
		if onChunk != nil {
			onChunk(i + 1)
		}
	}
	return strings.Join(parts, " "), nil
}

func (e *Engine) wait(ctx context.Context) error {
	if e.delay <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(e.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
