// Package processor runs transcription jobs: acquisition, probing, direct or
// segmented transcription and persistence, reporting progress along the way.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/acquire"
	"github.com/jo-hoe/ytscribe/internal/audio"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/engine"
	"github.com/jo-hoe/ytscribe/internal/jobs"
	"github.com/jo-hoe/ytscribe/internal/metrics"
	"github.com/jo-hoe/ytscribe/internal/progress"
	"github.com/jo-hoe/ytscribe/internal/storage"
	"github.com/jo-hoe/ytscribe/internal/util"
)

// ErrMissingURL rejects a job before anything is allocated.
var ErrMissingURL = errors.New("URL is required")

// Messages shown to clients. Everything except a missing URL collapses into MsgProcessingFailed.
const (
	MsgMissingURL       = "URL is required"
	MsgProcessingFailed = "Error processing the request"
	MsgComplete         = "Transcription complete"
)

// Percentage checkpoints of the progress bar.
const (
	pctConnect        = 0
	pctDownloadStart  = 5
	pctDownloaded     = 30
	pctMeasured         = 35
	pctProcessed      = 40
	pctModelReady     = 50
	pctTranscribeSpan = 40
	pctTranscribed    = 90
	pctSaved          = 95
)

// EngineSource hands out the shared transcription engine.
type EngineSource interface {
	Get(ctx context.Context) (engine.Engine, error)
}

// Result is the outcome of a completed job.
type Result struct {
	JobID string
	Text  string
	Files storage.Written
}

// Orchestrator implements jobs.Processor.
type Orchestrator struct {
	log       *slog.Logger
	acquirer  acquire.Acquirer
	engines   EngineSource
	artifacts *storage.Artifacts
	store     jobs.Store

	workDir   string
	format    audio.Format
	threshold time.Duration
	segment   time.Duration
	chunk     time.Duration
	now       func() time.Time
}

var _ jobs.Processor = (*Orchestrator)(nil)

// New wires an orchestrator. store may be nil when history is disabled.
func New(log *slog.Logger, cfg *config.Config, acq acquire.Acquirer, engines EngineSource, store jobs.Store) *Orchestrator {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Orchestrator{
		log:       log,
		acquirer:  acq,
		engines:   engines,
		artifacts: storage.NewArtifacts(cfg.Output.Dir),
		store:     store,
		workDir:   cfg.Acquisition.WorkDir,
		format:    audio.Format{SampleRate: cfg.Audio.SampleRate, Channels: cfg.Audio.Channels},
		threshold: cfg.Audio.LongAudioThreshold,
		segment:   cfg.Audio.SegmentLength,
		chunk:     cfg.Audio.ChunkLength,
		now:       time.Now,
	}
}

// NewJob creates a job for url and records it in history when enabled.
// A job without a URL is never recorded.
func (o *Orchestrator) NewJob(url string) jobs.Job {
	now := o.now()
	job := jobs.Job{
		ID:        util.NewJobID(now),
		URL:       strings.TrimSpace(url),
		Status:    jobs.StatusQueued,
		CreatedAt: now.UTC(),
	}
	if o.store != nil && job.URL != "" {
		if err := o.store.CreateJob(&job); err != nil {
			o.log.Warn("job history insert failed", "job_id", job.ID, "err", err)
		}
	}
	return job
}

// Process runs a queued job. Events only reach the history store.
func (o *Orchestrator) Process(ctx context.Context, item jobs.WorkItem) error {
	_, err := o.Run(context.WithoutCancel(ctx), item.Job, progress.Discard)
	return err
}

// Run executes job and reports to sink. The sink sees exactly one terminal event,
// emitted after every temporary file of the job has been removed.
func (o *Orchestrator) Run(ctx context.Context, job jobs.Job, sink progress.Sink) (Result, error) {
	log := o.log.With("job_id", job.ID, "url", job.URL)
	if strings.TrimSpace(job.URL) == "" {
		metrics.JobRejected()
		log.Info("job rejected", "err", ErrMissingURL)
		progress.NewEmitter(sink).Fail(MsgMissingURL)
		return Result{}, ErrMissingURL
	}

	if o.store != nil {
		sink = progress.Multi(sink, jobs.StoreSink(o.store, job.ID, o.log))
	}
	em := progress.NewEmitter(sink)

	done := metrics.JobStarted()
	start := o.now()
	res, err := o.run(ctx, log, job, em)
	if err != nil {
		done(metrics.OutcomeFailed)
		log.Error("job failed", "err", err, "duration", time.Since(start))
		em.Fail(MsgProcessingFailed)
		return Result{}, err
	}
	done(metrics.OutcomeCompleted)
	log.Info("job completed", "chars", len(res.Text), "duration", time.Since(start))
	em.Complete(MsgComplete, res.Text, progress.Files{Text: res.Files.TextPath, JSON: res.Files.JSONPath})
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, log *slog.Logger, job jobs.Job, em *progress.Emitter) (Result, error) {
	em.Progress(progress.StepConnect, pctConnect, "Connected, starting transcription")

	scratch, err := storage.NewScratch(o.workDir, job.ID, log)
	if err != nil {
		return Result{}, err
	}
	defer scratch.Cleanup()

	// Acquisition
	em.Progress(progress.StepDownload, pctDownloadStart, "Downloading audio...")
	source := scratch.Track("audio", ".src")
	pcm := scratch.Track("audio", ".pcm")
	step := time.Now()
	err = o.acquirer.Acquire(ctx, acquire.Request{
		URL:        job.URL,
		SourcePath: source,
		PCMPath:    pcm,
		SampleRate: o.format.SampleRate,
		Channels:   o.format.Channels,
	})
	if err != nil {
		return Result{}, fmt.Errorf("acquire audio: %w", err)
	}
	scratch.Release(source)
	metrics.RecordStep(string(progress.StepDownload), time.Since(step))
	em.Progress(progress.StepDownload, pctDownloaded, "Audio downloaded")

	// Probing
	step = time.Now()
	em.Progress(progress.StepProcess, pctDownloaded, "Processing audio...")
	info, err := audio.Measure(pcm, o.format)
	if err != nil {
		return Result{}, fmt.Errorf("measure audio: %w", err)
	}
	log.Info("audio measured", "seconds", info.Seconds(), "bytes", info.Size)
	em.Progress(progress.StepProcess, pctMeasured, fmt.Sprintf("Audio duration: %.0f seconds", info.Seconds()))
	long := info.Duration > o.threshold
	if long {
		em.Progress(progress.StepProcess, pctProcessed, "Long audio detected, transcribing in segments")
	} else {
		em.Progress(progress.StepProcess, pctProcessed, "Audio processed")
	}
	metrics.RecordStep(string(progress.StepProcess), time.Since(step))

	// Model readiness
	step = time.Now()
	em.Progress(progress.StepModel, pctProcessed, "Loading transcription model...")
	eng, err := o.engines.Get(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("load engine: %w", err)
	}
	metrics.SetEngineLoaded(true)
	metrics.RecordStep(string(progress.StepModel), time.Since(step))
	em.Progress(progress.StepModel, pctModelReady, "Model ready")

	// Transcription
	step = time.Now()
	var text string
	if long {
		text, err = o.transcribeSegments(ctx, log, eng, scratch, pcm, info, em)
	} else {
		text, err = o.transcribeDirect(ctx, eng, pcm, info, em)
	}
	if err != nil {
		return Result{}, err
	}
	metrics.RecordStep(string(progress.StepTranscribe), time.Since(step))
	em.Progress(progress.StepTranscribe, pctTranscribed, "Transcription finished")

	// Persistence
	step = time.Now()
	em.Progress(progress.StepSave, pctTranscribed, "Saving transcription...")
	written, err := o.artifacts.Write(job.ID, job.URL, text)
	if err != nil {
		return Result{}, fmt.Errorf("write artifacts: %w", err)
	}
	scratch.Release(pcm)
	metrics.RecordStep(string(progress.StepSave), time.Since(step))
	em.Progress(progress.StepSave, pctSaved, "Transcription saved")

	return Result{JobID: job.ID, Text: text, Files: written}, nil
}

func (o *Orchestrator) transcribeDirect(ctx context.Context, eng engine.Engine, pcm string, info audio.Info, em *progress.Emitter) (string, error) {
	samples, err := audio.LoadSamples(pcm, o.format)
	if err != nil {
		return "", fmt.Errorf("load samples: %w", err)
	}
	total := o.chunkCount(info.Duration)
	em.Progress(progress.StepTranscribe, pctModelReady, "Transcribing audio...")
	text, err := eng.Transcribe(ctx, samples, func(n int) {
		n = min(n, total)
		em.Progress(progress.StepTranscribe, transcribePct(n, total),
			fmt.Sprintf("Transcribing chunk %d of %d", n, total))
	})
	if err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// transcribeSegments processes segments strictly in index order; the first failure aborts the rest.
func (o *Orchestrator) transcribeSegments(ctx context.Context, log *slog.Logger, eng engine.Engine, scratch *storage.Scratch, pcm string, info audio.Info, em *progress.Emitter) (string, error) {
	seg, err := audio.NewSegmenter(o.format, o.segment)
	if err != nil {
		return "", err
	}
	count := seg.Count(info)
	log.Info("segmented transcription", "segments", count, "segment_length", o.segment)
	em.Progress(progress.StepTranscribe, pctModelReady, fmt.Sprintf("Transcribing %d segments...", count))

	parts := make([]string, 0, count)
	for i := range count {
		s := seg.At(info, i)
		text, err := o.transcribeSegment(ctx, eng, scratch, seg, pcm, s, count, em)
		metrics.RecordSegment(err == nil)
		if err != nil {
			return "", fmt.Errorf("%s: %w", s, err)
		}
		log.Debug("segment transcribed", "segment", i, "start", s.Start, "end", s.End)
		if text = strings.TrimSpace(text); text != "" {
			parts = append(parts, text)
		}
		em.Progress(progress.StepTranscribe, transcribePct(i+1, count),
			fmt.Sprintf("Segment %d of %d transcribed", i+1, count))
	}
	return strings.Join(parts, " "), nil
}

func (o *Orchestrator) transcribeSegment(ctx context.Context, eng engine.Engine, scratch *storage.Scratch, seg *audio.Segmenter, pcm string, s audio.Segment, count int, em *progress.Emitter) (string, error) {
	path := scratch.Track(fmt.Sprintf("segment-%d", s.Index), ".pcm")
	defer scratch.Release(path)

	if _, err := seg.Extract(pcm, s, path); err != nil {
		return "", err
	}
	samples, err := audio.LoadSamples(path, o.format)
	if err != nil {
		return "", fmt.Errorf("load samples: %w", err)
	}

	total := o.chunkCount(s.Duration())
	return eng.Transcribe(ctx, samples, func(n int) {
		n = min(n, total)
		em.Progress(progress.StepTranscribe, transcribePct(s.Index*total+n, count*total),
			fmt.Sprintf("Segment %d of %d: chunk %d of %d", s.Index+1, count, n, total))
	})
}

// chunkCount is the number of engine chunks expected for d, at least one.
func (o *Orchestrator) chunkCount(d time.Duration) int {
	if o.chunk <= 0 || d <= 0 {
		return 1
	}
	return max(1, int((d+o.chunk-1)/o.chunk))
}

// transcribePct maps done out of total units onto the transcription range.
func transcribePct(done, total int) int {
	if total <= 0 {
		return pctTranscribed
	}
	done = min(max(done, 0), total)
	return pctModelReady + pctTranscribeSpan*done/total
}
