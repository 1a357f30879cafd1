// Package errors classifies run failures so the CLI can report one terminal
// diagnostic and decide whether a retry can help.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the failure class of a run.
type Kind int

const (
	KindUnknown Kind = iota
	// KindConfig is missing or invalid static configuration.
	KindConfig
	// KindDiscovery is a failed or malformed discovery run.
	KindDiscovery
	// KindSpawn means the tap binary could not be found or started.
	KindSpawn
	// KindProcess is a non-zero or signalled tap exit.
	KindProcess
	// KindCheckpoint means the checkpoint could not be read or committed.
	KindCheckpoint
	// KindProtocolDecode is a line that failed JSON decoding. Never fatal.
	KindProtocolDecode
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "ConfigError"
	case KindDiscovery:
		return "DiscoveryFailure"
	case KindSpawn:
		return "SpawnFailure"
	case KindProcess:
		return "ProcessFailure"
	case KindCheckpoint:
		return "CheckpointError"
	case KindProtocolDecode:
		return "ProtocolDecodeWarning"
	default:
		return "UnknownError"
	}
}

// Sentinels for errors.Is checks against a classified error.
var (
	ErrConfig         = errors.New("config error")
	ErrDiscovery      = errors.New("discovery failure")
	ErrSpawn          = errors.New("spawn failure")
	ErrProcess        = errors.New("process failure")
	ErrCheckpoint     = errors.New("checkpoint error")
	ErrProtocolDecode = errors.New("protocol decode warning")
)

func (k Kind) sentinel() error {
	switch k {
	case KindConfig:
		return ErrConfig
	case KindDiscovery:
		return ErrDiscovery
	case KindSpawn:
		return ErrSpawn
	case KindProcess:
		return ErrProcess
	case KindCheckpoint:
		return ErrCheckpoint
	case KindProtocolDecode:
		return ErrProtocolDecode
	default:
		return nil
	}
}

// RunError is a classified error. Diagnostic holds captured tap stderr, if any.
type RunError struct {
	Kind       Kind
	Component  string
	Op         string
	Err        error
	Diagnostic string
}

func (e *RunError) Error() string {
	msg := fmt.Sprintf("%s: %s.%s", e.Kind, e.Component, e.Op)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *RunError) Unwrap() error {
	return e.Err
}

func (e *RunError) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// Retryable reports whether running again unchanged may succeed.
func (e *RunError) Retryable() bool {
	switch e.Kind {
	case KindDiscovery, KindProcess, KindCheckpoint:
		return true
	default:
		return false
	}
}

// Wrap classifies err as kind, formatted as "Kind: component.op: err".
func Wrap(kind Kind, err error, component, op string) *RunError {
	return &RunError{Kind: kind, Component: component, Op: op, Err: err}
}

// WithDiagnostic wraps err and attaches captured diagnostic output.
func WithDiagnostic(kind Kind, err error, component, op, diagnostic string) *RunError {
	e := Wrap(kind, err, component, op)
	e.Diagnostic = diagnostic
	return e
}

// KindOf returns the class of the outermost RunError in err's chain.
func KindOf(err error) Kind {
	var re *RunError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err is a RunError that a later run may clear.
func IsRetryable(err error) bool {
	var re *RunError
	return errors.As(err, &re) && re.Retryable()
}
