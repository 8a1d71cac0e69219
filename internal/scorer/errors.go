package scorer

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a scorer failure.
type Kind string

const (
	KindLaunchFailed    Kind = "launch_failed"
	KindNonZeroExit     Kind = "non_zero_exit"
	KindMalformedOutput Kind = "malformed_output"
	KindTimeout         Kind = "timeout"
	// KindUnavailable means the call was refused because recent calls kept
	// failing.
	KindUnavailable Kind = "unavailable"
)

// Sentinels for errors.Is. They match any *Error of the same Kind.
var (
	ErrLaunchFailed    = &Error{Kind: KindLaunchFailed}
	ErrNonZeroExit     = &Error{Kind: KindNonZeroExit}
	ErrMalformedOutput = &Error{Kind: KindMalformedOutput}
	ErrTimeout         = &Error{Kind: KindTimeout}
	ErrUnavailable     = &Error{Kind: KindUnavailable}
)

// Error is a typed scorer failure. Detail carries the raw stderr or parse
// error text for diagnosis.
type Error struct {
	Kind     Kind
	Detail   string
	ExitCode int
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("scorer: %s", e.Kind)
	if e.Kind == KindNonZeroExit {
		msg = fmt.Sprintf("%s (exit code %d)", msg, e.ExitCode)
	}
	detail := strings.TrimSpace(e.Detail)
	if detail != "" {
		msg += ": " + detail
	}
	if e.Err != nil && detail == "" {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is a scorer error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of a scorer error in err's chain, or "" if none.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
