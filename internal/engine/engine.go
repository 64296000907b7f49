// Package engine defines the speech-to-text capability and its lazily loaded handle.
package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrNotConfigured is returned when no engine can be built from configuration.
var ErrNotConfigured = errors.New("transcription engine not configured")

// ChunkFunc is notified after each processed chunk with the running count.
type ChunkFunc func(processed int)

// Engine transcribes mono float32 samples at the configured sample rate.
type Engine interface {
	Name() string
	// Transcribe returns the concatenated text of samples. onChunk may be nil.
	Transcribe(ctx context.Context, samples []float32, onChunk ChunkFunc) (string, error)
}

// Loader builds an engine. It may be slow (model files, remote handshakes).
type Loader func(ctx context.Context) (Engine, error)

// Provider hands out a single shared engine, loading it on first use.
// A failed load is not cached; the next Get retries.
type Provider struct {
	name  string
	load  Loader
	group singleflight.Group

	mu     sync.RWMutex
	engine Engine
}

// NewProvider wraps load so concurrent first callers share one initialization.
func NewProvider(name string, load Loader) *Provider {
	return &Provider{name: name, load: load}
}

// Name is the configured provider name.
func (p *Provider) Name() string { return p.name }

// Loaded reports whether the engine has been initialized.
func (p *Provider) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.engine != nil
}

// Get returns the shared engine, initializing it when needed.
func (p *Provider) Get(ctx context.Context) (Engine, error) {
	p.mu.RLock()
	e := p.engine
	p.mu.RUnlock()
	if e != nil {
		return e, nil
	}
	if p.load == nil {
		return nil, ErrNotConfigured
	}

	ch := p.group.DoChan("engine", func() (any, error) {
		p.mu.RLock()
		cached := p.engine
		p.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}
		// Other callers may be waiting on this load; the first caller's cancellation must not fail them.
		loaded, err := p.load(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.engine = loaded
		p.mu.Unlock()
		return loaded, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(Engine), nil
	}
}

// Chunks splits n samples at sampleRate into windows of at most length.
// It returns the [start, end) sample index of each window; n == 0 yields none.
func Chunks(n, sampleRate int, length time.Duration) [][2]int {
	if n <= 0 {
		return nil
	}
	size := int(int64(sampleRate) * int64(length) / int64(time.Second))
	if size <= 0 {
		size = n
	}
	out := make([][2]int, 0, (n+size-1)/size)
	for start := 0; start < n; start += size {
		end := min(start+size, n)
		out = append(out, [2]int{start, end})
	}
	return out
}
