package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/dasmlab/ponte/pkg/translate"
)

const (
	// DefaultChunkSize is the largest piece of text sent in one request.
	DefaultChunkSize = 10 * 1024
	// DefaultJobTimeout bounds the processing of one job.
	DefaultJobTimeout = 10 * time.Minute
)

// Translator translates text away from a source language.
type Translator interface {
	Translate(ctx context.Context, text string, from translate.Language) (string, error)
}

// JobProcessor processes translation jobs asynchronously.
type JobProcessor struct {
	translator Translator
	logger     *logrus.Logger
	chunkSize  int // maximum chunk size in bytes
	timeout    time.Duration
}

// NewJobProcessor creates a new job processor. Non-positive chunkSize or
// timeout select the defaults.
func NewJobProcessor(translator Translator, chunkSize int, timeout time.Duration, logger *logrus.Logger) *JobProcessor {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if timeout <= 0 {
		timeout = DefaultJobTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &JobProcessor{
		translator: translator,
		logger:     logger,
		chunkSize:  chunkSize,
		timeout:    timeout,
	}
}

// ProcessJob translates a job's text, chunking it when it is large.
func (p *JobProcessor) ProcessJob(job *TranslationJob) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	startTime := time.Now()
	logger := p.logger.WithFields(logrus.Fields{
		"job_id":     job.ID,
		"request_id": job.RequestID,
	})
	logger.Info("Starting translation job processing")

	job.UpdateStatus(JobStatusProcessing, "Starting translation...")

	translation, err := p.translateChunked(ctx, job)
	if err != nil {
		logger.WithError(err).Error("Translation job failed")
		job.SetError(err)
		return
	}

	inferenceTime := time.Since(startTime)
	job.SetResult(translation, inferenceTime)

	logger.WithFields(logrus.Fields{
		"inference_time": inferenceTime.Seconds(),
		"success":        true,
	}).Info("Translation job completed successfully")
}

// translateChunked translates content piece by piece, reporting progress
// between 10% and 90%.
func (p *JobProcessor) translateChunked(ctx context.Context, job *TranslationJob) (string, error) {
	chunks := splitIntoChunks(job.Text, p.chunkSize)
	totalChunks := len(chunks)

	p.logger.WithFields(logrus.Fields{
		"job_id":       job.ID,
		"text_length":  len(job.Text),
		"chunk_size":   p.chunkSize,
		"total_chunks": totalChunks,
	}).Debug("Split document into chunks")

	job.UpdateProgress(10, "Translating content...")

	translated := make([]string, 0, totalChunks)
	for i, chunk := range chunks {
		out, err := p.translator.Translate(ctx, chunk, job.FromLanguage)
		if err != nil {
			return "", fmt.Errorf("chunk %d/%d translation failed: %w", i+1, totalChunks, err)
		}
		translated = append(translated, out)

		progress := 10 + int32((float64(i+1)/float64(totalChunks))*80)
		job.UpdateProgress(progress, fmt.Sprintf("Translated chunk %d/%d", i+1, totalChunks))
	}

	return strings.Join(translated, "\n\n"), nil
}

// splitIntoChunks splits text into chunks of at most maxChunkSize bytes,
// breaking at paragraphs first and sentences second. A single sentence
// longer than maxChunkSize becomes its own chunk.
func splitIntoChunks(text string, maxChunkSize int) []string {
	if len(text) <= maxChunkSize {
		return []string{text}
	}

	var chunks []string
	var current strings.Builder
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
		}
	}
	add := func(piece, sep string) {
		if current.Len() > 0 && current.Len()+len(sep)+len(piece) > maxChunkSize {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString(sep)
		}
		current.WriteString(piece)
	}

	for _, para := range strings.Split(text, "\n\n") {
		if strings.TrimSpace(para) == "" {
			continue
		}
		if len(para) <= maxChunkSize {
			add(para, "\n\n")
			continue
		}

		flush()
		for _, sentence := range splitBySentences(para) {
			add(sentence, " ")
		}
		flush()
	}
	flush()

	return chunks
}

// splitBySentences splits text after '.', '!' or '?' followed by whitespace.
func splitBySentences(text string) []string {
	var sentences []string
	start := 0

	for i := 0; i < len(text)-1; i++ {
		switch text[i] {
		case '.', '!', '?':
			switch text[i+1] {
			case ' ', '\n', '\t':
				if s := strings.TrimSpace(text[start : i+1]); s != "" {
					sentences = append(sentences, s)
				}
				start = i + 1
			}
		}
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}
