package translate

import (
	"errors"
	"fmt"
)

var (
	// ErrResource matches any *ResourceError: the model could not be loaded
	// or failed while translating.
	ErrResource = errors.New("translation model failure")

	// ErrSend is returned when a request cannot be enqueued because the
	// actor's worker has already exited.
	ErrSend = errors.New("failed to send a message to the translator")

	// ErrDelivery is returned when the worker exited before replying.
	ErrDelivery = errors.New("translator exited before replying")

	// ErrJoin is returned by Stop when the worker terminated abnormally.
	ErrJoin = errors.New("failed to join the translation worker")

	// ErrQueueFull is returned when the queue is at capacity and the actor
	// rejects instead of blocking.
	ErrQueueFull = errors.New("translation queue is full")

	// ErrStopped is returned by Stop on an actor that was already stopped.
	ErrStopped = errors.New("translator already stopped")
)

// Phases a ResourceError can originate from.
const (
	PhaseLoad      = "load"
	PhaseInference = "inference"
)

// ResourceError reports a failure of the underlying model.
// Load failures are fatal for the actor; inference failures only fail the
// request that caused them.
type ResourceError struct {
	Direction Direction
	Phase     string
	Err       error
}

func (e *ResourceError) Error() string {
	return fmt.Sprintf("%s model %s failed: %v", e.Direction, e.Phase, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrResource) match any ResourceError.
func (e *ResourceError) Is(target error) bool { return target == ErrResource }
