package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/dasmlab/ponte/pkg/translate"
)

// ErrInvalidRequest is returned for requests that can never succeed, such as
// an unsupported source language.
var ErrInvalidRequest = errors.New("invalid translation request")

// Config holds what the service needs to spawn its translators.
type Config struct {
	// ModelsPath is the directory holding the per-direction model folders.
	ModelsPath string
	// QueueSize bounds each translator's queue.
	QueueSize int
	// Backpressure is applied when a queue is full.
	Backpressure translate.Backpressure
	// Loader builds the model for each direction.
	Loader translate.Loader
	// Logger for service operations.
	Logger *logrus.Logger
}

// TranslationService routes translation requests to one actor per direction.
// Each actor owns its model; the service holds only their handles.
type TranslationService struct {
	actors map[translate.Direction]*translate.Actor

	// LanguageMapper resolves client language tags.
	LanguageMapper *translate.LanguageMapper

	// Logger for service operations.
	Logger *logrus.Logger
}

// NewTranslationService spawns a translator for every supported direction.
// Models load in the background; use Ready to wait for them.
func NewTranslationService(cfg Config) *TranslationService {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	s := &TranslationService{
		actors:         make(map[translate.Direction]*translate.Actor, len(translate.Directions)),
		LanguageMapper: translate.NewLanguageMapper(),
		Logger:         cfg.Logger,
	}
	for _, d := range translate.Directions {
		s.actors[d] = translate.Spawn(d, translate.ActorConfig{
			BasePath:     cfg.ModelsPath,
			QueueSize:    cfg.QueueSize,
			Backpressure: cfg.Backpressure,
			Loader:       cfg.Loader,
			Logger:       cfg.Logger,
		})
	}

	cfg.Logger.WithFields(logrus.Fields{
		"models_path":  cfg.ModelsPath,
		"translators":  len(s.actors),
		"backpressure": cfg.Backpressure.String(),
	}).Info("Translation service created")

	return s
}

// ParseLanguage resolves a client language tag, wrapping failures in
// ErrInvalidRequest.
func (s *TranslationService) ParseLanguage(tag string) (translate.Language, error) {
	lang, err := s.LanguageMapper.Parse(tag)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return lang, nil
}

// Translate translates text away from the given language: Italian text goes
// to English and English text goes to Italian. The model's segments are
// joined with a single space and the result is trimmed.
func (s *TranslationService) Translate(ctx context.Context, text string, from translate.Language) (string, error) {
	direction, err := translate.DirectionFrom(from)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	logger := s.Logger.WithFields(logrus.Fields{
		"direction":   direction.String(),
		"text_length": len(text),
	})
	logger.Debug("Translate request received")

	startTime := time.Now()
	segments, err := s.actors[direction].Translate(ctx, text)
	if err != nil {
		logger.WithError(err).Warn("Translation failed")
		return "", err
	}

	translation := strings.TrimSpace(strings.Join(segments, " "))

	logger.WithFields(logrus.Fields{
		"duration_ms": time.Since(startTime).Milliseconds(),
		"segments":    len(segments),
	}).Debug("Translation completed")

	return translation, nil
}

// Ready waits until every translator has loaded its model. It returns the
// load failures joined together, or ctx.Err() if ctx ends first.
func (s *TranslationService) Ready(ctx context.Context) error {
	var errs []error
	for _, d := range translate.Directions {
		if err := s.actors[d].Ready(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Status reports each translator's lifecycle state keyed by direction.
func (s *TranslationService) Status() map[string]string {
	status := make(map[string]string, len(s.actors))
	for d, a := range s.actors {
		status[d.String()] = a.State().String()
	}
	return status
}

// AllReady reports whether every translator is serving.
func (s *TranslationService) AllReady() bool {
	for _, a := range s.actors {
		if a.State() != translate.StateReady {
			return false
		}
	}
	return true
}

// Shutdown stops every translator in parallel. Each stop waits for at most
// one in-flight inference. If ctx ends first Shutdown returns ctx.Err() and
// the stops finish in the background.
func (s *TranslationService) Shutdown(ctx context.Context) error {
	s.Logger.Info("Shutting down translators")

	var g errgroup.Group
	for d, a := range s.actors {
		g.Go(func() error {
			err := a.Stop()
			if errors.Is(err, translate.ErrStopped) {
				return nil
			}
			if err != nil {
				s.Logger.WithError(err).WithField("direction", d.String()).Warn("Translator stopped with error")
				return fmt.Errorf("stopping %s translator: %w", d, err)
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		if err == nil {
			s.Logger.Info("All translators stopped")
		}
		return err
	case <-ctx.Done():
		s.Logger.WithError(ctx.Err()).Warn("Shutdown timed out waiting for translators")
		return ctx.Err()
	}
}
