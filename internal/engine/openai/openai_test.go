package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jo-hoe/ytscribe/internal/config"
)

func TestClient_Transcribe_Success(t *testing.T) {
	var calls atomic.Int32
	var seenAuth, seenModel, seenLang, seenFormat string
	var seenRIFF bool

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		seenAuth = r.Header.Get("Authorization")
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, "bad form", http.StatusBadRequest)
			return
		}
		seenModel = r.FormValue("model")
		seenLang = r.FormValue("language")
		seenFormat = r.FormValue("response_format")
		f, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		head := make([]byte, 4)
		_, _ = io.ReadFull(f, head)
		seenRIFF = string(head) == "RIFF"

		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": fmt.Sprintf(" part%d ", n)})
	}))
	defer ts.Close()

	c := New(config.OpenAISettings{BaseURL: ts.URL + "/", APIKey: "k123", Model: "whisper-1", Language: "de"}, 100, 20*time.Second)

	var progress []int
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	out, err := c.Transcribe(ctx, make([]float32, 100*45), func(n int) { progress = append(progress, n) })
	require.NoError(t, err)

	assert.Equal(t, "part1 part2 part3", out)
	assert.Equal(t, []int{1, 2, 3}, progress)
	assert.Equal(t, "Bearer k123", seenAuth)
	assert.Equal(t, "whisper-1", seenModel)
	assert.Equal(t, "de", seenLang)
	assert.Equal(t, "json", seenFormat)
	assert.True(t, seenRIFF, "chunk should be uploaded as WAV")
}

func TestClient_Transcribe_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	c := New(config.OpenAISettings{BaseURL: ts.URL, Model: "m"}, 100, 20*time.Second)
	_, err := c.Transcribe(context.Background(), make([]float32, 100), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Contains(t, err.Error(), "chunk 1/1")
}

func TestLoad_ChecksServer(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer ts.Close()

	_, err := Load(context.Background(), config.OpenAISettings{BaseURL: ts.URL, APIKey: "bad"}, 100, time.Second)
	require.Error(t, err)

	c, err := Load(context.Background(), config.OpenAISettings{BaseURL: ts.URL, APIKey: "good"}, 100, time.Second)
	require.NoError(t, err)
	assert.Equal(t, "openai", c.Name())
}

func TestLoad_Unreachable(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	url := ts.URL
	ts.Close()

	_, err := Load(context.Background(), config.OpenAISettings{BaseURL: url}, 100, time.Second)
	assert.Error(t, err)
}
