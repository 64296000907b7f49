package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticEngine struct{ name string }

func (s staticEngine) Name() string { return s.name }
func (s staticEngine) Transcribe(ctx context.Context, samples []float32, onChunk ChunkFunc) (string, error) {
	return "", nil
}

func TestProvider_LoadsOnceForConcurrentCallers(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	p := NewProvider("static", func(ctx context.Context) (Engine, error) {
		loads.Add(1)
		<-release
		return staticEngine{name: "static"}, nil
	})
	assert.False(t, p.Loaded())

	var wg sync.WaitGroup
	results := make([]Engine, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := p.Get(context.Background())
			assert.NoError(t, err)
			results[i] = e
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.True(t, p.Loaded())
	for _, e := range results {
		assert.Equal(t, "static", e.Name())
	}

	// Subsequent calls hit the cache.
	_, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int32(1), loads.Load())
}

func TestProvider_FailedLoadIsRetried(t *testing.T) {
	var calls atomic.Int32
	p := NewProvider("flaky", func(ctx context.Context) (Engine, error) {
		if calls.Add(1) == 1 {
			return nil, errors.New("model missing")
		}
		return staticEngine{name: "flaky"}, nil
	})

	_, err := p.Get(context.Background())
	require.Error(t, err)
	assert.False(t, p.Loaded())

	e, err := p.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "flaky", e.Name())
	assert.Equal(t, int32(2), calls.Load())
}

func TestProvider_NilLoader(t *testing.T) {
	_, err := NewProvider("none", nil).Get(context.Background())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestProvider_CallerCancellation(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	p := NewProvider("slow", func(ctx context.Context) (Engine, error) {
		<-release
		return staticEngine{}, nil
	})
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := p.Get(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChunks(t *testing.T) {
	assert.Nil(t, Chunks(0, 100, 20*time.Second))

	got := Chunks(4500, 100, 20*time.Second)
	require.Len(t, got, 3)
	assert.Equal(t, [2]int{0, 2000}, got[0])
	assert.Equal(t, [2]int{4000, 4500}, got[2])

	exact := Chunks(2000, 100, 20*time.Second)
	assert.Len(t, exact, 1)
}
