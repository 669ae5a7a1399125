package translate

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// DefaultQueueSize is the default capacity of an actor's request queue.
const DefaultQueueSize = 100

// Backpressure selects what Translate does when the queue is full.
type Backpressure int

const (
	// BackpressureBlock makes Translate wait for queue space until its
	// context is done.
	BackpressureBlock Backpressure = iota
	// BackpressureReject makes Translate fail at once with ErrQueueFull.
	BackpressureReject
)

func (b Backpressure) String() string {
	if b == BackpressureReject {
		return "reject"
	}
	return "block"
}

// ParseBackpressure parses "block" or "reject".
func ParseBackpressure(s string) (Backpressure, error) {
	switch strings.ToLower(s) {
	case "", "block":
		return BackpressureBlock, nil
	case "reject":
		return BackpressureReject, nil
	default:
		return 0, fmt.Errorf("unknown backpressure policy: %s (supported: block, reject)", s)
	}
}

// ActorConfig holds everything an actor needs to load and serve its model.
type ActorConfig struct {
	// BasePath is the directory containing the per-direction model folders.
	BasePath string
	// QueueSize bounds the number of queued requests. Defaults to DefaultQueueSize.
	QueueSize int
	// Backpressure is applied when the queue is full.
	Backpressure Backpressure
	// Loader constructs the model on the worker goroutine.
	Loader Loader
	// Logger is the logger instance to use. If nil, a default logger is created.
	Logger *logrus.Logger
}

func (c ActorConfig) withDefaults() ActorConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.Logger == nil {
		c.Logger = logrus.New()
	}
	return c
}

// ActorState is the lifecycle state of an actor's worker.
type ActorState int32

const (
	StateLoading ActorState = iota
	StateReady
	StateStopped
)

func (s ActorState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

type request struct {
	ctx      context.Context
	text     string
	enqueued time.Time
	reply    chan result
}

type result struct {
	segments []string
	err      error
}

// shutdown is the stop signal shared by an actor handle and its worker.
// It is closed at most once.
type shutdown struct {
	once     sync.Once
	ch       chan struct{}
	released atomic.Bool
}

func (s *shutdown) signal() {
	s.once.Do(func() { close(s.ch) })
}

// release is used when the handle is garbage collected without Stop.
func (s *shutdown) release() {
	s.released.Store(true)
	s.signal()
}

// Actor owns one model for one direction. The model lives on a dedicated
// worker goroutine and is reached only through the actor's bounded queue.
// Translate is safe for concurrent use.
type Actor struct {
	direction    Direction
	queue        chan<- *request
	backpressure Backpressure
	stop         *shutdown
	worker       *worker
	stopped      atomic.Bool
	logger       *logrus.Entry
	metrics      *MetricsCollector
}

// Spawn starts a worker for direction and returns its handle.
// Spawn never fails: a model that cannot be loaded is reported by Ready,
// Translate and Stop.
func Spawn(direction Direction, cfg ActorConfig) *Actor {
	cfg = cfg.withDefaults()

	logger := cfg.Logger.WithField("direction", direction.String())
	metrics := NewMetricsCollector(direction)
	queue := make(chan *request, cfg.QueueSize)
	stop := &shutdown{ch: make(chan struct{})}

	w := &worker{
		direction: direction,
		paths:     ResolveModelPaths(cfg.BasePath, direction),
		loader:    cfg.Loader,
		queue:     queue,
		stop:      stop,
		ready:     make(chan struct{}),
		done:      make(chan struct{}),
		logger:    logger,
		metrics:   metrics,
	}

	a := &Actor{
		direction:    direction,
		queue:        queue,
		backpressure: cfg.Backpressure,
		stop:         stop,
		worker:       w,
		logger:       logger,
		metrics:      metrics,
	}

	// The worker never references the handle, so a dropped handle is
	// collected and its worker told to exit.
	runtime.AddCleanup(a, func(s *shutdown) { s.release() }, stop)

	logger.WithFields(logrus.Fields{
		"queue_size":   cfg.QueueSize,
		"backpressure": cfg.Backpressure.String(),
		"model_dir":    w.paths.Dir,
	}).Info("Spawning translator")

	metrics.SetState(StateLoading)
	go w.run()

	return a
}

// Direction returns the direction this actor translates.
func (a *Actor) Direction() Direction {
	return a.direction
}

// State returns the worker's current lifecycle state.
func (a *Actor) State() ActorState {
	return a.worker.currentState()
}

// QueueLen returns the number of requests waiting to be served.
func (a *Actor) QueueLen() int {
	return len(a.queue)
}

// Ready blocks until the model has been loaded or failed to load.
// It returns the load error, if any, as a *ResourceError.
func (a *Actor) Ready(ctx context.Context) error {
	select {
	case <-a.worker.ready:
		return a.worker.loadErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Translate queues text for the worker and waits for its reply.
// The returned segments are exactly those produced by the model.
//
// If ctx ends first Translate returns ctx.Err(), but a request that was
// already queued is still translated; its reply is discarded.
func (a *Actor) Translate(ctx context.Context, text string) ([]string, error) {
	a.logger.WithField("text_length", len(text)).Debug("Initiating translation request")

	req := &request{
		ctx:      ctx,
		text:     text,
		enqueued: time.Now(),
		reply:    make(chan result, 1),
	}
	if err := a.enqueue(ctx, req); err != nil {
		return nil, err
	}

	select {
	case res := <-req.reply:
		return res.segments, res.err
	case <-a.worker.done:
		// The worker may have replied right before exiting.
		select {
		case res := <-req.reply:
			return res.segments, res.err
		default:
		}
		return nil, a.exitErr(ErrDelivery)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *Actor) enqueue(ctx context.Context, req *request) error {
	select {
	case <-a.worker.done:
		return a.exitErr(ErrSend)
	default:
	}

	if a.backpressure == BackpressureReject {
		select {
		case a.queue <- req:
		case <-a.worker.done:
			return a.exitErr(ErrSend)
		default:
			a.metrics.RecordRejection()
			a.logger.WithField("queue_len", len(a.queue)).Warn("Translation queue full, rejecting request")
			return ErrQueueFull
		}
	} else {
		select {
		case a.queue <- req:
		case <-a.worker.done:
			return a.exitErr(ErrSend)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	a.metrics.UpdateQueueLength(len(a.queue))
	return nil
}

// exitErr builds the error returned to callers once the worker is gone.
// It must only be called after worker.done is closed.
func (a *Actor) exitErr(kind error) error {
	if err := a.worker.err; err != nil {
		return fmt.Errorf("%w: %w", kind, err)
	}
	return kind
}

// Stop signals the worker to exit and blocks until it has.
// A request being translated when Stop is called still gets its reply;
// requests still queued are answered with ErrDelivery.
// Stop returns the worker's terminal error: nil, the load failure, or an
// ErrJoin if the worker panicked. The actor must not be used afterwards.
//
// Stop blocks the calling goroutine for up to one inference.
func (a *Actor) Stop() error {
	if !a.stopped.CompareAndSwap(false, true) {
		return ErrStopped
	}

	a.logger.WithField("queue_len", len(a.queue)).Info("Stopping translator")
	a.stop.signal()
	<-a.worker.done

	if err := a.worker.err; err != nil {
		a.logger.WithError(err).Warn("Translator stopped with error")
		return err
	}
	a.logger.Info("Translator stopped")
	return nil
}
