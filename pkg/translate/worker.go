package translate

import (
	"errors"
	"fmt"
	"io"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// worker owns the model and drains the queue one request at a time.
// Nothing but run touches model, so it is never used concurrently.
type worker struct {
	direction Direction
	paths     ModelPaths
	loader    Loader
	queue     <-chan *request
	stop      *shutdown

	readyOnce sync.Once
	ready     chan struct{}
	loadErr   error // written before ready is closed

	done chan struct{}
	err  error // written before done is closed

	state   atomic.Int32
	logger  *logrus.Entry
	metrics *MetricsCollector
}

func (w *worker) currentState() ActorState {
	return ActorState(w.state.Load())
}

func (w *worker) setState(s ActorState) {
	w.state.Store(int32(s))
	w.metrics.SetState(s)
}

func (w *worker) markReady(err error) {
	w.readyOnce.Do(func() {
		w.loadErr = err
		close(w.ready)
	})
}

// run is the worker goroutine: load, serve until stopped, then report.
func (w *worker) run() {
	defer close(w.done)
	defer w.setState(StateStopped)
	defer func() {
		if r := recover(); r != nil {
			w.logger.WithFields(logrus.Fields{
				"panic": r,
				"stack": string(debug.Stack()),
			}).Error("Translation worker panicked")
			w.err = fmt.Errorf("%w: worker panicked: %v", ErrJoin, r)
			w.markReady(w.err)
		}
	}()

	model, err := w.load()
	w.markReady(err)
	if err != nil {
		w.err = err
		return
	}
	defer w.closeModel(model)

	w.setState(StateReady)
	w.loop(model)
}

func (w *worker) load() (Model, error) {
	w.logger.WithFields(logrus.Fields{
		"model_dir": w.paths.Dir,
		"source":    w.direction.Source(),
		"target":    w.direction.Target(),
	}).Debug("Initialising model")

	start := time.Now()
	var (
		model Model
		err   error
	)
	if w.loader == nil {
		err = errors.New("no model loader configured")
	} else {
		model, err = w.loader.Load(w.direction, w.paths)
		if err == nil && model == nil {
			err = errors.New("loader returned no model")
		}
	}
	duration := time.Since(start)
	w.metrics.RecordModelLoad(duration, err == nil)

	if err != nil {
		w.logger.WithError(err).WithField("model_dir", w.paths.Dir).Error("Failed to load translation model")
		return nil, &ResourceError{Direction: w.direction, Phase: PhaseLoad, Err: err}
	}

	w.logger.WithField("duration_ms", duration.Milliseconds()).Info("Translation model loaded")
	return model, nil
}

// loop serves requests until the stop signal is closed.
// A pending stop always wins over queued requests.
func (w *worker) loop(model Model) {
	for {
		select {
		case <-w.stop.ch:
			w.logStop()
			return
		default:
		}

		select {
		case <-w.stop.ch:
			w.logStop()
			return
		case req := <-w.queue:
			w.serve(model, req)
		}
	}
}

func (w *worker) serve(model Model, req *request) {
	w.metrics.RecordQueueWait(time.Since(req.enqueued))
	w.metrics.UpdateQueueLength(len(w.queue))
	w.logger.WithField("text_length", len(req.text)).Debug("Received translation request")

	start := time.Now()
	segments, err := model.Translate(req.text)
	duration := time.Since(start)

	responseSize := 0
	for _, s := range segments {
		responseSize += len(s)
	}
	w.metrics.RecordTranslationRequest(duration, err == nil, len(req.text), responseSize)

	if err != nil {
		w.logger.WithError(err).Warn("Translation request failed")
		err = &ResourceError{Direction: w.direction, Phase: PhaseInference, Err: err}
		segments = nil
	}

	if req.ctx.Err() != nil {
		w.metrics.RecordDroppedReply()
		w.logger.WithError(req.ctx.Err()).Warn("Caller stopped waiting, dropping reply")
		return
	}

	// reply has room for exactly one result, so this never blocks.
	req.reply <- result{segments: segments, err: err}

	w.logger.WithFields(logrus.Fields{
		"duration_ms": duration.Milliseconds(),
		"segments":    len(segments),
	}).Debug("Completed translation request")
}

func (w *worker) logStop() {
	entry := w.logger.WithField("unserved", len(w.queue))
	if w.stop.released.Load() {
		entry.Info("Translator handle released, worker exiting")
		return
	}
	entry.Debug("Stop requested, worker exiting")
}

func (w *worker) closeModel(model Model) {
	closer, ok := model.(io.Closer)
	if !ok {
		return
	}
	if err := closer.Close(); err != nil {
		w.logger.WithError(err).Warn("Failed to close translation model")
	}
}
