package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultWorkerCommand starts the Argos worker script shipped in the image.
var DefaultWorkerCommand = []string{"python3", "/app/scripts/translate_worker.py"}

const (
	// DefaultWorkerLoadTimeout bounds the model load handshake.
	DefaultWorkerLoadTimeout = 2 * time.Minute
	// DefaultWorkerRequestTimeout bounds a single translation.
	DefaultWorkerRequestTimeout = 5 * time.Minute
)

// SubprocessConfig configures the external worker process.
type SubprocessConfig struct {
	// Command is the worker executable and its arguments.
	Command []string
	// Env is appended to the current environment.
	Env []string
	// LoadTimeout bounds the load handshake.
	LoadTimeout time.Duration
	// RequestTimeout bounds each translation.
	RequestTimeout time.Duration
}

// workerMessage is one JSON line written to the worker's stdin.
type workerMessage struct {
	Op         string `json:"op"` // "load" or "translate"
	Text       string `json:"text,omitempty"`
	SourceLang string `json:"source_lang,omitempty"`
	TargetLang string `json:"target_lang,omitempty"`
	ModelDir   string `json:"model_dir,omitempty"`
	Weights    string `json:"weights,omitempty"`
	Config     string `json:"config,omitempty"`
	Vocab      string `json:"vocab,omitempty"`
}

// workerReply is one JSON line read from the worker's stdout.
type workerReply struct {
	Success  bool     `json:"success"`
	Segments []string `json:"segments,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// SubprocessModel drives a model hosted in a child process over
// newline-delimited JSON on stdin/stdout. It is used from a single worker
// goroutine and holds no lock.
type SubprocessModel struct {
	process        *exec.Cmd
	stdin          io.WriteCloser
	encoder        *json.Encoder
	decoder        *json.Decoder
	requestTimeout time.Duration
	logger         *logrus.Entry
}

// NewSubprocessLoader returns a Loader that starts one worker process per
// direction and asks it to load that direction's model.
func NewSubprocessLoader(cfg SubprocessConfig, logger *logrus.Logger) Loader {
	if len(cfg.Command) == 0 {
		cfg.Command = DefaultWorkerCommand
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = DefaultWorkerLoadTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultWorkerRequestTimeout
	}
	if logger == nil {
		logger = logrus.New()
	}

	return LoaderFunc(func(direction Direction, paths ModelPaths) (Model, error) {
		return startSubprocess(cfg, direction, paths, logger.WithFields(logrus.Fields{
			"engine":    EngineArgos,
			"direction": direction.String(),
		}))
	})
}

func startSubprocess(cfg SubprocessConfig, direction Direction, paths ModelPaths, logger *logrus.Entry) (*SubprocessModel, error) {
	if _, err := os.Stat(paths.Dir); err != nil {
		return nil, fmt.Errorf("model directory: %w", err)
	}

	cmd := exec.Command(cfg.Command[0], cfg.Command[1:]...)
	cmd.Env = append(os.Environ(), cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start worker process: %w", err)
	}

	m := &SubprocessModel{
		process:        cmd,
		stdin:          stdin,
		encoder:        json.NewEncoder(stdin),
		decoder:        json.NewDecoder(stdout),
		requestTimeout: cfg.RequestTimeout,
		logger:         logger.WithField("pid", cmd.Process.Pid),
	}
	m.logger.Info("Worker process started")

	if _, err := m.roundTrip(&workerMessage{
		Op:         "load",
		SourceLang: string(direction.Source()),
		TargetLang: string(direction.Target()),
		ModelDir:   paths.Dir,
		Weights:    paths.Weights,
		Config:     paths.Config,
		Vocab:      paths.Vocab,
	}, cfg.LoadTimeout); err != nil {
		m.Close()
		return nil, fmt.Errorf("load handshake: %w", err)
	}

	return m, nil
}

// Translate sends text to the worker process and returns its segments.
func (m *SubprocessModel) Translate(text string) ([]string, error) {
	reply, err := m.roundTrip(&workerMessage{Op: "translate", Text: text}, m.requestTimeout)
	if err != nil {
		return nil, err
	}
	return reply.Segments, nil
}

// roundTrip writes one message and waits for one reply. If the worker does
// not answer within timeout it is killed, since its stream is then out of step.
func (m *SubprocessModel) roundTrip(msg *workerMessage, timeout time.Duration) (*workerReply, error) {
	if err := m.encoder.Encode(msg); err != nil {
		return nil, fmt.Errorf("failed to write to worker: %w", err)
	}

	var reply workerReply
	decoded := make(chan error, 1)
	go func() { decoded <- m.decoder.Decode(&reply) }()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-decoded:
		if errors.Is(err, io.EOF) {
			return nil, errors.New("worker connection closed")
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read response: %w", err)
		}
	case <-timer.C:
		m.logger.WithField("timeout", timeout.String()).Error("Worker did not answer in time, killing it")
		_ = m.process.Process.Kill()
		<-decoded
		return nil, fmt.Errorf("worker timed out after %s", timeout)
	}

	if !reply.Success {
		if reply.Error == "" {
			reply.Error = "unknown error"
		}
		return nil, fmt.Errorf("translation failed: %s", reply.Error)
	}
	return &reply, nil
}

// Close ends the worker process.
func (m *SubprocessModel) Close() error {
	m.stdin.Close()

	exited := make(chan error, 1)
	go func() { exited <- m.process.Wait() }()

	select {
	case err := <-exited:
		m.logger.WithError(err).Debug("Worker process exited")
		return nil
	case <-time.After(5 * time.Second):
		if err := m.process.Process.Kill(); err != nil {
			return err
		}
		<-exited
		m.logger.Warn("Worker process killed")
		return nil
	}
}
