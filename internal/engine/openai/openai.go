// Package openai transcribes audio through an OpenAI-compatible /v1/audio/transcriptions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/audio"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/engine"
)

var _ engine.Engine = (*Client)(nil)

const (
	// Headers
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"

	// Auth
	authSchemeBearer = "Bearer"

	// Endpoints
	endpointTranscriptions = "v1/audio/transcriptions"
	endpointModels         = "v1/models"

	// Form fields
	fieldFile           = "file"
	fieldModel          = "model"
	fieldLanguage       = "language"
	fieldResponseFormat = "response_format"
	responseFormatJSON  = "json"
	chunkFileName       = "chunk.wav"

	defaultTimeout    = 2 * time.Minute
	errorSnippetLimit = 400
)

// Client implements engine.Engine by uploading WAV chunks to a transcription server.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	model      string
	language   string
	sampleRate int
	chunk      time.Duration
}

// New creates a client for samples at sampleRate, uploaded in windows of chunk.
func New(cfg config.OpenAISettings, sampleRate int, chunk time.Duration) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		language:   cfg.Language,
		sampleRate: sampleRate,
		chunk:      chunk,
	}
}

// Load creates a client and checks that the server accepts our credentials.
// Servers that do not expose the models listing are accepted as-is.
func Load(ctx context.Context, cfg config.OpenAISettings, sampleRate int, chunk time.Duration) (*Client, error) {
	c := New(cfg, sampleRate, chunk)
	u, err := url.JoinPath(c.baseURL, endpointModels)
	if err != nil {
		return nil, fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	c.authorize(req)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reach transcription server: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
	case resp.StatusCode >= http.StatusBadRequest:
		return nil, fmt.Errorf("transcription server status %d", resp.StatusCode)
	}
	return c, nil
}

func (c *Client) Name() string { return "openai" }

// Transcribe uploads each chunk in order and joins the returned texts with a space.
func (c *Client) Transcribe(ctx context.Context, samples []float32, onChunk engine.ChunkFunc) (string, error) {
	chunks := engine.Chunks(len(samples), c.sampleRate, c.chunk)
	parts := make([]string, 0, len(chunks))
	for i, ch := range chunks {
		text, err := c.transcribeChunk(ctx, samples[ch[0]:ch[1]])
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
		if onChunk != nil {
			onChunk(i + 1)
		}
	}
	return strings.Join(parts, " "), nil
}

func (c *Client) transcribeChunk(ctx context.Context, samples []float32) (string, error) {
	body, contentType, err := c.buildForm(samples)
	if err != nil {
		return "", err
	}

	u, err := url.JoinPath(c.baseURL, endpointTranscriptions)
	if err != nil {
		return "", fmt.Errorf("join url: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set(headerContentType, contentType)
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("http do: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", fmt.Errorf("transcription status %d: %s", resp.StatusCode, truncate(string(respBytes), errorSnippetLimit))
	}

	var out transcriptionResponse
	if err := json.Unmarshal(respBytes, &out); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	return out.Text, nil
}

func (c *Client) buildForm(samples []float32) (io.Reader, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	fw, err := mw.CreateFormFile(fieldFile, chunkFileName)
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if err := audio.WriteWAV(fw, samples, c.sampleRate); err != nil {
		return nil, "", fmt.Errorf("encode wav: %w", err)
	}
	fields := [][2]string{
		{fieldModel, c.model},
		{fieldResponseFormat, responseFormatJSON},
	}
	if strings.TrimSpace(c.language) != "" {
		fields = append(fields, [2]string{fieldLanguage, c.language})
	}
	for _, f := range fields {
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}
	return &buf, mw.FormDataContentType(), nil
}

func (c *Client) authorize(req *http.Request) {
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set(headerAuthorization, authSchemeBearer+" "+c.apiKey)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

type transcriptionResponse struct {
	Text string `json:"text"`
}
