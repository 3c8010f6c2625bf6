package strategy

import (
	"errors"
	"fmt"
)

// FailureReason is the closed set of reasons a strategy construction can fail.
type FailureReason string

const (
	ReasonInvalidInput     FailureReason = "invalid_input"
	ReasonUnknownStrategy  FailureReason = "unknown_strategy"
	ReasonStrikeUnresolved FailureReason = "strike_unresolved"
	ReasonStrikeOrdering   FailureReason = "strike_ordering"
	ReasonNoNetCredit      FailureReason = "no_net_credit"
	ReasonNoNetDebit       FailureReason = "no_net_debit"
	ReasonLegMismatch      FailureReason = "leg_mismatch"
	ReasonTimeout          FailureReason = "timeout"
)

var (
	// ErrUnknownStrategy is returned for names missing from the registry
	ErrUnknownStrategy = errors.New("unknown strategy")
	// ErrDuplicateTemplate is returned when registering a name twice
	ErrDuplicateTemplate = errors.New("strategy template already registered")
	// ErrInvariant is wrapped by every invariant violation
	ErrInvariant = errors.New("strategy invariant violated")
)

// BuildError reports why one strategy could not be constructed for one symbol.
type BuildError struct {
	Strategy string
	Symbol   string
	Reason   FailureReason
	Detail   string
	Err      error
}

func (e *BuildError) Error() string {
	msg := fmt.Sprintf("build %s for %s: %s", e.Strategy, e.Symbol, e.Reason)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error.
func (e *BuildError) Unwrap() error {
	return e.Err
}

// ReasonOf extracts the failure reason from an error chain, or "" when err
// is not a *BuildError.
func ReasonOf(err error) FailureReason {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Reason
	}
	return ""
}

// invariantError is returned by template validators.
type invariantError struct {
	reason FailureReason
	detail string
}

func (e *invariantError) Error() string {
	return e.detail
}

func (e *invariantError) Unwrap() error {
	return ErrInvariant
}

func ordering(format string, args ...any) error {
	return &invariantError{reason: ReasonStrikeOrdering, detail: fmt.Sprintf(format, args...)}
}

func mismatch(format string, args ...any) error {
	return &invariantError{reason: ReasonLegMismatch, detail: fmt.Sprintf(format, args...)}
}
