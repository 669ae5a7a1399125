package server

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/ponte/pkg/service"
	"github.com/dasmlab/ponte/pkg/translate"
)

//go:embed openapi.json
var openAPIDocument []byte

const (
	maxBodyBytes      = 10 << 20
	retryAfterSeconds = "1"
	sseKeepAlive      = 15 * time.Second
)

// HTTPConfig holds listener settings for the HTTP server.
type HTTPConfig struct {
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// HTTPServer provides the translation API, job status with SSE progress
// updates, health and metrics.
type HTTPServer struct {
	svc      *service.TranslationService
	jobQueue *service.JobQueue
	logger   *logrus.Logger
	server   *http.Server

	// requestTimeout bounds a synchronous translation.
	requestTimeout time.Duration
}

// NewHTTPServer creates a new HTTP server.
func NewHTTPServer(svc *service.TranslationService, jobQueue *service.JobQueue, logger *logrus.Logger, cfg HTTPConfig) *HTTPServer {
	if logger == nil {
		logger = logrus.New()
	}
	s := &HTTPServer{
		svc:      svc,
		jobQueue:       jobQueue,
		logger:         logger,
		requestTimeout: cfg.WriteTimeout,
	}
	// WriteTimeout stays zero on the listener so SSE streams are not cut off.
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.ReadTimeout,
	}
	return s
}

// Handler returns the HTTP routes.
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /translate", s.handleTranslate)
	mux.HandleFunc("GET /openapi.json", s.handleOpenAPI)

	mux.HandleFunc("POST /api/v1/jobs", s.handleCreateJob)
	mux.HandleFunc("GET /api/v1/jobs/{id}", s.handleJobStatus)
	mux.HandleFunc("GET /api/v1/jobs/{id}/events", s.handleJobEvents)

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return mux
}

// Start serves until Shutdown is called.
func (s *HTTPServer) Start() error {
	s.logger.WithField("addr", s.server.Addr).Info("Starting HTTP server")

	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting connections and waits for active requests.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

type translationRequest struct {
	Text         *string `json:"text"`
	FromLanguage string  `json:"fromLanguage"`
}

type translationResponse struct {
	Translation string `json:"translation"`
}

// handleTranslate translates a text to English or Italian.
func (s *HTTPServer) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translationRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Text == nil {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	lang, err := s.svc.ParseLanguage(req.FromLanguage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	if s.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.requestTimeout)
		defer cancel()
	}

	translation, err := s.svc.Translate(ctx, *req.Text, lang)
	if err != nil {
		s.writeTranslateError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, translationResponse{Translation: translation})
}

func (s *HTTPServer) writeTranslateError(w http.ResponseWriter, r *http.Request, err error) {
	logger := s.logger.WithError(err).WithField("path", r.URL.Path)

	switch {
	case r.Context().Err() != nil:
		logger.Debug("Client went away before translation finished")
	case errors.Is(err, service.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, translate.ErrQueueFull):
		logger.Warn("Rejecting translation, queue full")
		w.Header().Set("Retry-After", retryAfterSeconds)
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("Translation timed out")
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		logger.Error("Translation failed")
		http.Error(w, fmt.Sprintf("An unspecified internal error occurred: %v", err), http.StatusInternalServerError)
	}
}

func (s *HTTPServer) handleOpenAPI(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(openAPIDocument)
}

type createJobRequest struct {
	RequestID    string  `json:"requestId"`
	Text         *string `json:"text"`
	FromLanguage string  `json:"fromLanguage"`
}

// handleCreateJob starts an asynchronous translation.
func (s *HTTPServer) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req createJobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Text == nil {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	lang, err := s.svc.ParseLanguage(req.FromLanguage)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, err := s.jobQueue.CreateJob(service.JobRequest{
		RequestID:    req.RequestID,
		Text:         *req.Text,
		FromLanguage: lang,
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	snap, _ := job.Snapshot()
	w.Header().Set("Location", "/api/v1/jobs/"+job.ID)
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *HTTPServer) lookupJob(w http.ResponseWriter, r *http.Request) (*service.TranslationJob, bool) {
	job, err := s.jobQueue.GetJob(r.PathValue("id"))
	if err != nil {
		http.Error(w, fmt.Sprintf("Job not found: %v", err), http.StatusNotFound)
		return nil, false
	}
	return job, true
}

// handleJobStatus returns the current status of a translation job as JSON.
func (s *HTTPServer) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	snap, _ := job.Snapshot()
	writeJSON(w, http.StatusOK, snap)
}

// handleJobEvents streams job progress as Server-Sent Events until the job
// finishes or the client disconnects.
func (s *HTTPServer) handleJobEvents(w http.ResponseWriter, r *http.Request) {
	job, ok := s.lookupJob(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	keepAlive := time.NewTicker(sseKeepAlive)
	defer keepAlive.Stop()

	var last service.JobSnapshot
	for first := true; ; first = false {
		snap, changed := job.Snapshot()
		if first || snap.Status != last.Status || snap.ProgressPercent != last.ProgressPercent {
			if err := s.sendSSEEvent(w, "status", snap); err != nil {
				return
			}
			flusher.Flush()
			last = snap
		}
		if snap.Status.Finished() {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-changed:
		case <-keepAlive.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}

// sendSSEEvent writes one event in SSE format: event: <type>\ndata: <json>\n\n
func (s *HTTPServer) sendSSEEvent(w http.ResponseWriter, eventType string, snap service.JobSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.WithError(err).Error("Failed to marshal SSE event")
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, data)
	return err
}

type healthResponse struct {
	Status      string            `json:"status"`
	Translators map[string]string `json:"translators"`
}

// handleHealth reports healthy only once every translator is serving.
func (s *HTTPServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "healthy", Translators: s.svc.Status()}
	code := http.StatusOK
	if !s.svc.AllReady() {
		resp.Status = "unavailable"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
