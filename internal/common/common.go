package common

import "time"

// Shared constants to enforce DRY and avoid magic strings/numbers.

// HTTP headers and content types
const (
	HeaderAPIKey       = "X-API-Key" // #nosec G101 - header name constant, not a credential
	HeaderPrefer       = "Prefer"
	HeaderRequestID    = "X-Request-ID"
	HeaderAudioLength  = "X-Audio-Duration"
	PreferRespondAsync = "respond-async"
	ContentTypeJSON    = "application/json"
	ContentTypeSSE     = "text/event-stream"
	ContentTypeMPEG    = "audio/mpeg"
)

// API paths
const (
	PathHealthz         = "/healthz"
	PathHealth          = "/api/health"
	PathMetrics         = "/metrics"
	PathTranscribe      = "/api/transcribe"
	PathTranscribeEvent = "/api/transcribe-stream"
	PathDownload        = "/api/download"
	PathJobs            = "/api/jobs"
)

// Reference audio parameters. Any deployment must keep these for behavior compatibility.
const (
	SampleRate         = 16000
	Channels           = 1
	BytesPerSample     = 2 // s16le
	LongAudioThreshold = 3600 * time.Second
	SegmentLength      = 1800 * time.Second
	ChunkLength        = 20 * time.Second
)

// Defaults and limits
const (
	DefaultQueueCapacity = 128
	DefaultWorkerCount   = 2
	DefaultMaxDownloads  = 2
	MemoryHistoryLimit   = 500
	SQLiteBusyTimeoutMS  = 5000
)

// External tools
const (
	YTDLPExecutable      = "yt-dlp"
	FFmpegExecutable     = "ffmpeg"
	WhisperCPPExecutable = "whisper-cli"
)

// Subdirectory names
const (
	TempDirName           = "tmp"
	TranscriptionsDirName = "transcriptions"
)

// Artifact naming
const (
	ArtifactPrefix = "transcription-"
	ArtifactText   = ".txt"
	ArtifactJSON   = ".json"
)

// Job status strings
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)
