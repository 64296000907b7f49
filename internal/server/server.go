package server

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/rs/cors"

	"github.com/jo-hoe/ytscribe/internal/common"
	"github.com/jo-hoe/ytscribe/internal/config"
	"github.com/jo-hoe/ytscribe/internal/jobs"
	"github.com/jo-hoe/ytscribe/internal/metrics"
	"github.com/jo-hoe/ytscribe/internal/processor"
)

// EngineStatus reports on the shared transcription engine.
type EngineStatus interface {
	Name() string
	Loaded() bool
}

type Service struct {
	Log          *slog.Logger
	Cfg          *config.Config
	Store        jobs.Store
	Queue        *jobs.Queue
	Orchestrator *processor.Orchestrator
	Engine       EngineStatus
	Downloader   Downloader
}

// NewHTTPServer builds the http.Server with routes and middleware.
func NewHTTPServer(svc *Service) *http.Server {
	return &http.Server{
		Addr:         svc.Cfg.Server.Addr,
		Handler:      svc.Handler(),
		ReadTimeout:  svc.Cfg.Server.ReadTimeout,
		WriteTimeout: svc.Cfg.Server.WriteTimeout,
		IdleTimeout:  svc.Cfg.Server.IdleTimeout,
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (svc *Service) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(http.MethodGet+" "+common.PathHealthz, svc.handleHealth)
	mux.HandleFunc(http.MethodGet+" "+common.PathHealth, svc.handleHealth)
	mux.Handle(http.MethodGet+" "+common.PathMetrics, metrics.Handler())

	mux.HandleFunc(http.MethodGet+" "+common.PathTranscribeEvent, svc.withCommon(svc.handleTranscribeStream))
	mux.HandleFunc(http.MethodPost+" "+common.PathTranscribe, svc.withCommon(svc.handleTranscribe))
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs, svc.withCommon(svc.handleListJobs))
	mux.HandleFunc(http.MethodGet+" "+common.PathJobs+"/{id}", svc.withCommon(svc.handleGetJob))
	mux.HandleFunc(http.MethodPost+" "+common.PathDownload, svc.withCommon(svc.handleDownload))

	log := svc.logger()
	var h http.Handler = recoveryMiddleware(mux, log)
	h = loggingMiddleware(h, log)
	h = requestIDMiddleware(h)
	return newCORS(svc.Cfg.Server.CORSOrigins).Handler(h)
}

func (svc *Service) logger() *slog.Logger {
	if svc.Log == nil {
		return slog.New(slog.DiscardHandler)
	}
	return svc.Log
}

func newCORS(origins []string) *cors.Cors {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", common.HeaderAPIKey, common.HeaderPrefer, common.HeaderRequestID},
		ExposedHeaders: []string{common.HeaderRequestID, common.HeaderAudioLength, "Content-Disposition"},
	})
}

// withCommon enforces the API key and the request body limit.
func (svc *Service) withCommon(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if key := strings.TrimSpace(svc.Cfg.Server.APIKey); key != "" {
			// EventSource cannot set headers, so the stream also accepts ?apiKey=.
			got := r.Header.Get(common.HeaderAPIKey)
			if got == "" && r.Method == http.MethodGet {
				got = r.URL.Query().Get("apiKey")
			}
			if got != key {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		if limit := safeInt64(svc.Cfg.Server.MaxBodySize); limit > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
		}
		next.ServeHTTP(w, r)
	}
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"modelLoaded"`
	Engine      string `json:"engine"`
	Queued      int    `json:"queued"`
}

func (svc *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	out := healthResponse{Status: "ok"}
	if svc.Engine != nil {
		out.ModelLoaded = svc.Engine.Loaded()
		out.Engine = svc.Engine.Name()
	}
	if svc.Queue != nil {
		out.Queued = svc.Queue.Pending()
	}
	writeJSON(w, http.StatusOK, out)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", common.ContentTypeJSON)
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(v)
}

func safeInt64(u config.ByteSize) int64 {
	if u > config.ByteSize(math.MaxInt64) {
		return math.MaxInt64
	}
	return int64(u) // #nosec G115 - safe cast after explicit upper-bound check
}
