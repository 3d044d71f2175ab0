package pipeline

import (
	"context"
	"errors"

	"github.com/skosovsky/toolsynth"
)

var (
	// ErrShutdown is returned by Run after Shutdown.
	ErrShutdown = errors.New("pipeline: runner is shut down")
	// ErrUnresolved means too many turns of a path could not be completed.
	ErrUnresolved = errors.New("too many unresolved turns")
)

// Failure reasons reported per path.
const (
	ReasonStructural = "structural"
	ReasonUnresolved = "unresolved"
	ReasonOracle     = "oracle"
	ReasonPanic      = "panic"
	ReasonCancelled  = "cancelled"
	ReasonInternal   = "internal"
)

// reasonOf classifies a path failure.
func reasonOf(err error) string {
	switch {
	case toolsynth.IsStructuralError(err):
		return ReasonStructural
	case errors.Is(err, ErrUnresolved):
		return ReasonUnresolved
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return ReasonCancelled
	case toolsynth.IsOracleError(err):
		return ReasonOracle
	case errors.As(err, new(*toolsynth.PanicError)):
		return ReasonPanic
	default:
		return ReasonInternal
	}
}
