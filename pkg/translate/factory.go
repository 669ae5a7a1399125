package translate

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// EngineType represents the type of translation engine to use.
type EngineType string

const (
	// EngineArgos runs Argos/Marian models in a local worker process.
	EngineArgos EngineType = "argos"
	// EngineLibreTranslate uses a LibreTranslate server as the backend.
	EngineLibreTranslate EngineType = "libretranslate"
	// EngineLoopback upper-cases its input; no model files are needed.
	EngineLoopback EngineType = "loopback"
)

// Config holds configuration for creating a Loader.
type Config struct {
	// Engine specifies which translation engine to use.
	Engine EngineType
	// BaseURL is the base URL for the LibreTranslate API.
	BaseURL string
	// WorkerCommand starts the Argos worker process.
	WorkerCommand []string
	// WorkerEnv is added to the worker process environment.
	WorkerEnv []string
	// RequestTimeout bounds one backend call.
	RequestTimeout time.Duration
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

// NewLoader creates the model Loader for the configured engine.
func NewLoader(cfg Config) (Loader, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}

	cfg.Logger.WithFields(logrus.Fields{
		"engine":   cfg.Engine,
		"base_url": cfg.BaseURL,
	}).Info("Creating model loader")

	switch cfg.Engine {
	case EngineArgos:
		return NewSubprocessLoader(SubprocessConfig{
			Command:        cfg.WorkerCommand,
			Env:            cfg.WorkerEnv,
			RequestTimeout: cfg.RequestTimeout,
		}, cfg.Logger), nil
	case EngineLibreTranslate:
		return NewLibreTranslateLoader(cfg.BaseURL, cfg.RequestTimeout, cfg.Logger), nil
	case EngineLoopback:
		return NewLoopbackLoader(), nil
	default:
		cfg.Logger.WithField("engine", cfg.Engine).Error("Unknown translation engine")
		return nil, fmt.Errorf("unknown translation engine: %s", cfg.Engine)
	}
}

// ParseEngineType parses a string into an EngineType.
func ParseEngineType(s string) (EngineType, error) {
	switch strings.ToLower(s) {
	case "argos":
		return EngineArgos, nil
	case "libretranslate":
		return EngineLibreTranslate, nil
	case "loopback":
		return EngineLoopback, nil
	default:
		return "", fmt.Errorf("unknown engine type: %s (supported: argos, libretranslate, loopback)", s)
	}
}
