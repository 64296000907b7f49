package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jo-hoe/ytscribe/internal/common"
)

// Config is the root configuration loaded from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
	Audio       AudioConfig       `yaml:"audio"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Engine      EngineConfig      `yaml:"engine"`
	Output      OutputConfig      `yaml:"output"`
	History     HistoryConfig     `yaml:"history"`
}

// ServerConfig holds HTTP server and runtime settings.
type ServerConfig struct {
	Addr          string        `yaml:"address"`
	ReadTimeout   time.Duration `yaml:"readTimeout"`
	WriteTimeout  time.Duration `yaml:"writeTimeout"` // 0 keeps event streams open for the whole job
	IdleTimeout   time.Duration `yaml:"idleTimeout"`
	MaxBodySize   ByteSize      `yaml:"maxBodySize"`
	StorageDir    string        `yaml:"storageDir"`
	DatabasePath  string        `yaml:"databasePath"` // optional, overrides default storageDir/ytscribe.db
	APIKey        string        `yaml:"apiKey"`       // optional static API key header (X-API-Key)
	CORSOrigins   []string      `yaml:"corsOrigins"`
	WorkerCount   int           `yaml:"workerCount"`
	QueueCapacity int           `yaml:"queueCapacity"`
	ShutdownGrace time.Duration `yaml:"shutdownGrace"`
}

// LogConfig controls the process logger.
type LogConfig struct {
	Level      string `yaml:"level"`  // debug|info|warn|error
	Format     string `yaml:"format"` // text|json
	File       string `yaml:"file"`   // optional rotated log file
	MaxSizeMB  int    `yaml:"maxSizeMB"`
	MaxBackups int    `yaml:"maxBackups"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
}

// AudioConfig holds the sample format and segmentation parameters.
type AudioConfig struct {
	SampleRate         int           `yaml:"sampleRate"`
	Channels           int           `yaml:"channels"`
	LongAudioThreshold time.Duration `yaml:"longAudioThreshold"`
	SegmentLength      time.Duration `yaml:"segmentLength"`
	ChunkLength        time.Duration `yaml:"chunkLength"`
}

// AcquisitionConfig points at the external download and transcoding tools.
type AcquisitionConfig struct {
	YTDLPPath     string `yaml:"ytDlpPath"`
	FFmpegPath    string `yaml:"ffmpegPath"`
	MaxConcurrent int    `yaml:"maxConcurrent"`
	WorkDir       string `yaml:"workDir"`
}

// EngineConfig selects the transcription provider and provider-specific options.
type EngineConfig struct {
	Provider   string             `yaml:"provider"` // mock|openai|whispercpp
	Mock       MockSettings       `yaml:"mock"`
	OpenAI     OpenAISettings     `yaml:"openai"`
	WhisperCPP WhisperCPPSettings `yaml:"whispercpp"`
}

// MockSettings config for the mock engine.
type MockSettings struct {
	Delay  time.Duration `yaml:"delay"` // per chunk
	Prefix string        `yaml:"prefix"`
}

// OpenAISettings config for an OpenAI-compatible /v1/audio/transcriptions server.
type OpenAISettings struct {
	BaseURL  string        `yaml:"baseUrl"`
	APIKey   string        `yaml:"apiKey"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

// WhisperCPPSettings config for the local whisper.cpp CLI.
type WhisperCPPSettings struct {
	BinaryPath string `yaml:"binaryPath"`
	ModelPath  string `yaml:"modelPath"` // model file or directory holding .bin/.gguf models
	Language   string `yaml:"language"`
	Threads    int    `yaml:"threads"`
}

// OutputConfig controls where transcript artifacts land.
type OutputConfig struct {
	Dir string `yaml:"dir"`
}

// HistoryConfig toggles the SQLite job history.
type HistoryConfig struct {
	Enabled *bool `yaml:"enabled"`
}

// IsEnabled reports whether job history is on. Default is on.
func (h HistoryConfig) IsEnabled() bool {
	return h.Enabled == nil || *h.Enabled
}

// ByteSize represents a size in bytes that unmarshals from strings like "10Mi", "20MB", "512KiB", "1024".
type ByteSize uint64

// UnmarshalYAML implements yaml unmarshalling for ByteSize.
func (b *ByteSize) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		str := strings.TrimSpace(value.Value)
		parsed, err := ParseByteSize(str)
		if err != nil {
			return err
		}
		*b = ByteSize(parsed)
		return nil
	}
	return fmt.Errorf("invalid bytesize node kind: %v", value.Kind)
}

var reNumeric = regexp.MustCompile(`^\d+$`)

// ParseByteSize parses a string like "10Mi", "20MB", "512KiB", "1024" into bytes.
// Supports Kubernetes-style quantities for binary units: Ki, Mi, Gi (case-insensitive).
// Also accepts KiB/MiB/GiB and decimal KB/MB/GB, and bare bytes.
func ParseByteSize(s string) (uint64, error) {
	orig := s
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty size")
	}
	if reNumeric.MatchString(s) {
		val, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid size number: %w", err)
		}
		return val, nil
	}

	up := strings.ToUpper(s)

	type unit struct {
		suffix string
		value  uint64
	}
	units := []unit{
		{"KIB", 1024},
		{"MIB", 1024 * 1024},
		{"GIB", 1024 * 1024 * 1024},
		{"KI", 1024},
		{"MI", 1024 * 1024},
		{"GI", 1024 * 1024 * 1024},
		{"KB", 1000},
		{"MB", 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"B", 1},
	}
	for _, u := range units {
		if strings.HasSuffix(up, u.suffix) {
			num := strings.TrimSpace(s[:len(s)-len(u.suffix)])
			val, err := strconv.ParseFloat(num, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size number in %q: %w", orig, err)
			}
			return uint64(val * float64(u.value)), nil
		}
	}
	return 0, fmt.Errorf("unknown size suffix in %q", orig)
}

// Load reads YAML config from path, expands environment variables, and validates it.
// If path is empty, it will attempt to read from env var YTSCRIBE_CONFIG, then default to "config.yaml".
// A missing default file is not an error: the built-in defaults are used.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if path == "" {
		if env := os.Getenv("YTSCRIBE_CONFIG"); env != "" {
			path = env
			explicit = true
		} else {
			path = "config.yaml"
		}
	}
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath) // #nosec G304 - reading sanitized config file path is expected
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		data = nil
	}
	return Parse(data)
}

// Parse builds a validated Config from raw YAML, applying defaults and creating storage dirs.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	for _, dir := range []string{cfg.Server.StorageDir, cfg.Acquisition.WorkDir, cfg.Output.Dir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ensure dir %s: %w", dir, err)
		}
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":3001"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = 60 * time.Second
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = ByteSize(1024 * 1024)
	}
	if cfg.Server.StorageDir == "" {
		cfg.Server.StorageDir = "data"
	}
	if cfg.Server.DatabasePath == "" {
		cfg.Server.DatabasePath = filepath.Join(cfg.Server.StorageDir, "ytscribe.db")
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}
	if cfg.Server.WorkerCount <= 0 {
		cfg.Server.WorkerCount = common.DefaultWorkerCount
	}
	if cfg.Server.QueueCapacity <= 0 {
		cfg.Server.QueueCapacity = common.DefaultQueueCapacity
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 15 * time.Second
	}

	// Log defaults
	if strings.TrimSpace(cfg.Log.Level) == "" {
		cfg.Log.Level = "info"
	}
	if strings.TrimSpace(cfg.Log.Format) == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Log.MaxSizeMB <= 0 {
		cfg.Log.MaxSizeMB = 100
	}
	if cfg.Log.MaxBackups <= 0 {
		cfg.Log.MaxBackups = 5
	}
	if cfg.Log.MaxAgeDays <= 0 {
		cfg.Log.MaxAgeDays = 30
	}

	// Audio defaults match the reference deployment.
	if cfg.Audio.SampleRate == 0 {
		cfg.Audio.SampleRate = common.SampleRate
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = common.Channels
	}
	if cfg.Audio.LongAudioThreshold == 0 {
		cfg.Audio.LongAudioThreshold = common.LongAudioThreshold
	}
	if cfg.Audio.SegmentLength == 0 {
		cfg.Audio.SegmentLength = common.SegmentLength
	}
	if cfg.Audio.ChunkLength == 0 {
		cfg.Audio.ChunkLength = common.ChunkLength
	}

	// Acquisition defaults
	if cfg.Acquisition.YTDLPPath == "" {
		cfg.Acquisition.YTDLPPath = common.YTDLPExecutable
	}
	if cfg.Acquisition.FFmpegPath == "" {
		cfg.Acquisition.FFmpegPath = common.FFmpegExecutable
	}
	if cfg.Acquisition.MaxConcurrent <= 0 {
		cfg.Acquisition.MaxConcurrent = common.DefaultMaxDownloads
	}
	if cfg.Acquisition.WorkDir == "" {
		cfg.Acquisition.WorkDir = filepath.Join(cfg.Server.StorageDir, common.TempDirName)
	}

	// Engine defaults
	cfg.Engine.Provider = strings.ToLower(strings.TrimSpace(cfg.Engine.Provider))
	if cfg.Engine.Provider == "" {
		cfg.Engine.Provider = "mock"
	}
	if cfg.Engine.Mock.Prefix == "" {
		cfg.Engine.Mock.Prefix = "Transcribed by Mock"
	}
	if cfg.Engine.Provider == "openai" {
		if strings.TrimSpace(cfg.Engine.OpenAI.BaseURL) == "" {
			cfg.Engine.OpenAI.BaseURL = "http://localhost:8000"
		}
		if strings.TrimSpace(cfg.Engine.OpenAI.Model) == "" {
			cfg.Engine.OpenAI.Model = "whisper-1"
		}
		if cfg.Engine.OpenAI.Timeout == 0 {
			cfg.Engine.OpenAI.Timeout = 2 * time.Minute
		}
	}
	if cfg.Engine.WhisperCPP.BinaryPath == "" {
		cfg.Engine.WhisperCPP.BinaryPath = common.WhisperCPPExecutable
	}

	// Output defaults
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = filepath.Join(cfg.Server.StorageDir, common.TranscriptionsDirName)
	}
}

func validate(cfg *Config) error {
	switch cfg.Engine.Provider {
	case "mock", "openai":
	case "whispercpp":
		if strings.TrimSpace(cfg.Engine.WhisperCPP.ModelPath) == "" {
			return errors.New("engine.whispercpp.modelPath is required")
		}
	default:
		return fmt.Errorf("unsupported engine provider %q", cfg.Engine.Provider)
	}

	a := cfg.Audio
	if a.SampleRate <= 0 || a.Channels <= 0 {
		return fmt.Errorf("audio.sampleRate and audio.channels must be positive")
	}
	if a.SegmentLength <= 0 || a.ChunkLength <= 0 || a.LongAudioThreshold <= 0 {
		return fmt.Errorf("audio durations must be positive")
	}
	if a.SegmentLength > a.LongAudioThreshold {
		return fmt.Errorf("audio.segmentLength (%s) exceeds audio.longAudioThreshold (%s)", a.SegmentLength, a.LongAudioThreshold)
	}

	switch strings.ToLower(cfg.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unsupported log format %q", cfg.Log.Format)
	}
	return nil
}
