package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/jobs"
	"github.com/jo-hoe/ytscribe/internal/metrics"
	"github.com/jo-hoe/ytscribe/internal/processor"
	"github.com/jo-hoe/ytscribe/internal/progress"
)

type urlRequest struct {
	URL string `json:"url"`
}

type filesOut struct {
	Text string `json:"txt"`
	JSON string `json:"json"`
}

type transcribeResponse struct {
	JobID   string   `json:"job_id"`
	Text    string   `json:"text"`
	Success bool     `json:"success"`
	Files   filesOut `json:"files"`
}

type createResponse struct {
	JobID     string `json:"job_id"`
	StatusURL string `json:"status_url"`
}

// handleTranscribeStream runs a job and streams its progress as server-sent events.
// The job is detached from the request: a client that goes away stops receiving
// events but does not stop the job.
func (svc *Service) handleTranscribeStream(w http.ResponseWriter, r *http.Request) {
	sse, err := progress.NewSSEWriter(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
		return
	}

	job := svc.Orchestrator.NewJob(r.URL.Query().Get("url"))
	log := svc.logger().With("job_id", job.ID, "request_id", RequestID(r.Context()))
	log.Info("stream job started", "url", job.URL)

	_, _ = svc.Orchestrator.Run(context.WithoutCancel(r.Context()), job, sse)
	if err := sse.Err(); err != nil {
		log.Info("client left before the stream ended", "err", err)
	}
}

func (svc *Service) decodeURL(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req urlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	url := strings.TrimSpace(req.URL)
	if url == "" {
		metrics.JobRejected()
		writeError(w, http.StatusBadRequest, processor.MsgMissingURL)
		return "", false
	}
	return url, true
}

// handleTranscribe runs a job to completion and returns the transcript.
// With "Prefer: respond-async" the job is queued and 202 points at its status.
func (svc *Service) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	url, ok := svc.decodeURL(w, r)
	if !ok {
		return
	}

	prefer := strings.ToLower(strings.TrimSpace(r.Header.Get(common.HeaderPrefer)))
	if strings.Contains(prefer, common.PreferRespondAsync) && svc.Queue != nil {
		svc.enqueue(w, url)
		return
	}

	job := svc.Orchestrator.NewJob(url)
	res, err := svc.Orchestrator.Run(context.WithoutCancel(r.Context()), job, nil)
	switch {
	case errors.Is(err, processor.ErrMissingURL):
		writeError(w, http.StatusBadRequest, processor.MsgMissingURL)
	case err != nil:
		writeError(w, http.StatusInternalServerError, processor.MsgProcessingFailed)
	default:
		writeJSON(w, http.StatusOK, transcribeResponse{
			JobID:   res.JobID,
			Text:    res.Text,
			Success: true,
			Files:   filesOut{Text: res.Files.TextPath, JSON: res.Files.JSONPath},
		})
	}
}

func (svc *Service) enqueue(w http.ResponseWriter, url string) {
	job := svc.Orchestrator.NewJob(url)
	if err := svc.Queue.Enqueue(jobs.WorkItem{Job: job, Cleanup: svc.settle(job.ID)}); err != nil {
		svc.logger().Warn("enqueue failed", "job_id", job.ID, "err", err)
		if svc.Store != nil {
			_ = svc.Store.SaveError(job.ID, processor.MsgProcessingFailed, time.Now())
		}
		writeError(w, http.StatusServiceUnavailable, "queue full, try later")
		return
	}
	svc.logger().Info("job enqueued", "job_id", job.ID)
	writeJSON(w, http.StatusAccepted, createResponse{
		JobID:     job.ID,
		StatusURL: path.Join(common.PathJobs, job.ID),
	})
}

// settle marks a queued job failed if it never reached a terminal state,
// e.g. because it was dropped at shutdown.
func (svc *Service) settle(id string) func() error {
	return func() error {
		if svc.Store == nil {
			return nil
		}
		job, err := svc.Store.GetJob(id)
		if err != nil || job.Terminal() {
			return err
		}
		return svc.Store.SaveError(id, processor.MsgProcessingFailed, time.Now())
	}
}

type jobOut struct {
	JobID       string     `json:"job_id"`
	URL         string     `json:"url"`
	Status      string     `json:"status"`
	Step        string     `json:"step,omitempty"`
	Progress    int        `json:"progress"`
	Error       *string    `json:"error,omitempty"`
	Files       *filesOut  `json:"files,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func jobToOut(job *jobs.Job) jobOut {
	out := jobOut{
		JobID:       job.ID,
		URL:         job.URL,
		Status:      string(job.Status),
		Step:        job.Step,
		Progress:    job.Progress,
		Error:       job.ErrorMessage,
		CreatedAt:   job.CreatedAt,
		StartedAt:   job.StartedAt,
		CompletedAt: job.CompletedAt,
	}
	if job.TextPath != nil && job.JSONPath != nil {
		out.Files = &filesOut{Text: *job.TextPath, JSON: *job.JSONPath}
	}
	return out
}

func (svc *Service) handleGetJob(w http.ResponseWriter, r *http.Request) {
	if svc.Store == nil {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	job, err := svc.Store.GetJob(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if err != nil {
		svc.logger().Error("get job", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, jobToOut(job))
}

func (svc *Service) handleListJobs(w http.ResponseWriter, r *http.Request) {
	if svc.Store == nil {
		writeJSON(w, http.StatusOK, []jobOut{})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	list, err := svc.Store.ListJobs(limit)
	if err != nil {
		svc.logger().Error("list jobs", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	out := make([]jobOut, 0, len(list))
	for _, j := range list {
		out = append(out, jobToOut(j))
	}
	writeJSON(w, http.StatusOK, out)
}
