// Package errs defines the error kinds that cross package boundaries
// un-wrapped so callers (the CLI, the HTTP layer, the WFA pipeline) can
// branch on them with errors.Is/errors.As, following the teacher's plain
// fmt.Errorf("...: %w", err) wrapping idiom rather than a third-party
// errors library.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies why an operation failed, mirroring the seven cases the
// engine distinguishes: malformed input, a missing resource, a caught
// per-trial/per-module failure, a disabled adaptive trigger, cooperative
// cancellation, a rolled-back storage write, and an unrecoverable
// startup condition.
type Kind int

const (
	// InputValidation: malformed CSV, missing columns, bad timestamp
	// parsing, unknown MA type, out-of-range parameters, invalid
	// objective/constraint/sampler config. Never recovered; surfaced to
	// the caller with a specific message.
	InputValidation Kind = iota
	// ResourceMissing: unknown strategy_id, non-existent DB file, missing
	// CSV at export replay time. Surfaced verbatim.
	ResourceMissing
	// ExecutionFailure: unexpected exception in a worker. A per-trial
	// failure is caught and the trial is marked failed; a WFA
	// post-process module failure is caught per module and recorded in
	// that window's module status.
	ExecutionFailure
	// TriggerDisabled: not a failure; an adaptive WFA warning condition
	// when CUSUM/drawdown/inactivity baselines cannot be formed.
	TriggerDisabled
	// Cancellation: cooperative; the caller should treat this as a
	// structured "cancelled" result, not a crash.
	Cancellation
	// StorageFailure: a DB write that could not commit and was rolled
	// back. The run is marked errored; the process keeps running.
	StorageFailure
	// Fatal: the process cannot continue at all, e.g. the storage
	// directory is unwritable at startup.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case InputValidation:
		return "input_validation"
	case ResourceMissing:
		return "resource_missing"
	case ExecutionFailure:
		return "execution_failure"
	case TriggerDisabled:
		return "trigger_disabled"
	case Cancellation:
		return "cancellation"
	case StorageFailure:
		return "storage_failure"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps an underlying cause with a Kind so callers can branch on
// classification without parsing message text.
type Error struct {
	Kind    Kind
	Op      string // the operation that failed, e.g. "ohlcv.Load"
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Is lets errors.Is match by Kind: two *Error values with the same Kind
// are treated as equal, so a zero-cause *Error of the wanted Kind works
// as the comparison target (see Sentinel below). A target that is not an
// *Error never matches.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Sentinel returns a zero-cause *Error of the given Kind, suitable as an
// errors.Is comparison target: errors.Is(err, errs.Sentinel(errs.Fatal)).
func Sentinel(k Kind) *Error { return &Error{Kind: k} }

// New builds an *Error with no wrapped cause.
func New(k Kind, op, message string) *Error {
	return &Error{Kind: k, Op: op, Message: message}
}

// Wrap builds an *Error around cause, or returns nil if cause is nil.
func Wrap(k Kind, op, message string, cause error) *Error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: k, Op: op, Message: message, Cause: cause}
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error, reporting ok=false otherwise.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
