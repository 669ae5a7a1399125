package service

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/dasmlab/ponte/pkg/translate"
)

// ErrJobNotFound is returned for unknown or expired job IDs.
var ErrJobNotFound = errors.New("job not found")

// TranslationJobStatus represents the status of a translation job.
type TranslationJobStatus string

const (
	JobStatusQueued     TranslationJobStatus = "queued"
	JobStatusProcessing TranslationJobStatus = "processing"
	JobStatusCompleted  TranslationJobStatus = "completed"
	JobStatusFailed     TranslationJobStatus = "failed"
)

// Finished reports whether the status is terminal.
func (s TranslationJobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobRequest is the input of an asynchronous translation.
type JobRequest struct {
	RequestID    string // optional client-provided ID
	Text         string
	FromLanguage translate.Language
}

// TranslationJob represents an asynchronous translation job.
type TranslationJob struct {
	ID           string
	RequestID    string
	CreatedAt    time.Time
	Text         string
	FromLanguage translate.Language

	mu              sync.RWMutex
	status          TranslationJobStatus
	startedAt       *time.Time
	completedAt     *time.Time
	err             string
	translation     string
	inferenceTime   time.Duration
	progressPercent int32
	progressMessage string
	changed         chan struct{} // closed and replaced on every update
}

// JobSnapshot is a consistent copy of a job's state.
type JobSnapshot struct {
	ID              string               `json:"job_id"`
	RequestID       string               `json:"request_id,omitempty"`
	Status          TranslationJobStatus `json:"status"`
	FromLanguage    string               `json:"from_language"`
	ProgressPercent int32                `json:"progress_percent"`
	ProgressMessage string               `json:"progress_message,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
	StartedAt       *time.Time           `json:"started_at,omitempty"`
	CompletedAt     *time.Time           `json:"completed_at,omitempty"`
	Error           string               `json:"error,omitempty"`
	Translation     string               `json:"translation,omitempty"`
	InferenceTime   float64              `json:"inference_time_seconds,omitempty"`
}

func newJob(req JobRequest) *TranslationJob {
	return &TranslationJob{
		ID:           uuid.New().String(),
		RequestID:    req.RequestID,
		CreatedAt:    time.Now(),
		Text:         req.Text,
		FromLanguage: req.FromLanguage,
		status:       JobStatusQueued,
		changed:      make(chan struct{}),
	}
}

// update applies fn under the lock and wakes watchers.
func (j *TranslationJob) update(fn func()) {
	j.mu.Lock()
	defer j.mu.Unlock()

	fn()
	close(j.changed)
	j.changed = make(chan struct{})
}

// UpdateStatus updates the status of a job.
func (j *TranslationJob) UpdateStatus(status TranslationJobStatus, message string) {
	j.update(func() {
		j.status = status
		j.progressMessage = message

		now := time.Now()
		switch status {
		case JobStatusProcessing:
			if j.startedAt == nil {
				j.startedAt = &now
			}
		case JobStatusCompleted, JobStatusFailed:
			if j.completedAt == nil {
				j.completedAt = &now
			}
		}
	})
}

// UpdateProgress updates the progress of a job.
func (j *TranslationJob) UpdateProgress(percent int32, message string) {
	j.update(func() {
		j.progressPercent = percent
		j.progressMessage = message
	})
}

// SetError marks the job failed.
func (j *TranslationJob) SetError(err error) {
	j.update(func() {
		j.err = err.Error()
		j.status = JobStatusFailed
		now := time.Now()
		j.completedAt = &now
	})
}

// SetResult marks the job completed with its translation.
func (j *TranslationJob) SetResult(translation string, inferenceTime time.Duration) {
	j.update(func() {
		j.translation = translation
		j.inferenceTime = inferenceTime
		j.status = JobStatusCompleted
		now := time.Now()
		j.completedAt = &now
		j.progressPercent = 100
	})
}

// Snapshot returns a copy of the job state and a channel that is closed on
// the next change.
func (j *TranslationJob) Snapshot() (JobSnapshot, <-chan struct{}) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	snap := JobSnapshot{
		ID:              j.ID,
		RequestID:       j.RequestID,
		Status:          j.status,
		FromLanguage:    j.FromLanguage.Name(),
		ProgressPercent: j.progressPercent,
		ProgressMessage: j.progressMessage,
		CreatedAt:       j.CreatedAt,
		StartedAt:       j.startedAt,
		CompletedAt:     j.completedAt,
		Error:           j.err,
	}
	if j.status == JobStatusCompleted {
		snap.Translation = j.translation
		snap.InferenceTime = j.inferenceTime.Seconds()
	}
	return snap, j.changed
}

// GetStatus returns the job status, message and progress.
func (j *TranslationJob) GetStatus() (TranslationJobStatus, string, int32) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	return j.status, j.progressMessage, j.progressPercent
}

// JobQueue manages asynchronous translation jobs.
type JobQueue struct {
	jobs      map[string]*TranslationJob
	jobsMu    sync.RWMutex
	logger    *logrus.Logger
	processor *JobProcessor
	running   sync.WaitGroup
}

// NewJobQueue creates a new job queue.
func NewJobQueue(logger *logrus.Logger) *JobQueue {
	if logger == nil {
		logger = logrus.New()
	}
	return &JobQueue{
		jobs:   make(map[string]*TranslationJob),
		logger: logger,
	}
}

// SetProcessor sets the job processor for this queue.
func (q *JobQueue) SetProcessor(processor *JobProcessor) {
	q.processor = processor
}

// CreateJob creates a new translation job and starts processing it.
func (q *JobQueue) CreateJob(req JobRequest) (*TranslationJob, error) {
	if req.FromLanguage == "" {
		return nil, fmt.Errorf("%w: fromLanguage is required", ErrInvalidRequest)
	}

	job := newJob(req)

	q.jobsMu.Lock()
	q.jobs[job.ID] = job
	q.jobsMu.Unlock()

	q.logger.WithFields(logrus.Fields{
		"job_id":        job.ID,
		"request_id":    req.RequestID,
		"from_language": req.FromLanguage,
		"text_length":   len(req.Text),
	}).Info("Created translation job")

	if q.processor != nil {
		q.running.Add(1)
		go func() {
			defer q.running.Done()
			q.processor.ProcessJob(job)
		}()
	}

	return job, nil
}

// GetJob retrieves a job by ID.
func (q *JobQueue) GetJob(jobID string) (*TranslationJob, error) {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()

	job, exists := q.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	return job, nil
}

// Len returns the number of tracked jobs.
func (q *JobQueue) Len() int {
	q.jobsMu.RLock()
	defer q.jobsMu.RUnlock()
	return len(q.jobs)
}

// Wait blocks until every started job has finished processing.
func (q *JobQueue) Wait() {
	q.running.Wait()
}

// CleanupOldJobs removes finished jobs that completed more than maxAge ago.
func (q *JobQueue) CleanupOldJobs(maxAge time.Duration) int {
	q.jobsMu.Lock()
	defer q.jobsMu.Unlock()

	now := time.Now()
	removed := 0

	for id, job := range q.jobs {
		job.mu.RLock()
		expired := job.status.Finished() && job.completedAt != nil && now.Sub(*job.completedAt) > maxAge
		job.mu.RUnlock()

		if expired {
			delete(q.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		q.logger.WithFields(logrus.Fields{
			"removed":   removed,
			"remaining": len(q.jobs),
		}).Info("Cleaned up old translation jobs")
	}
	return removed
}
