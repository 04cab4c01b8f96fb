package challenge

import (
	"errors"
	"strings"
)

// Sentinel errors.  Every failure leaving the pipeline wraps exactly one of
// these so callers can tell format drift, misconfiguration and wrong answers
// apart with errors.Is.
var (
	// ErrClassificationAmbiguous is part of the taxonomy but is never
	// returned: Classify is total.
	ErrClassificationAmbiguous = errors.New("ambiguous challenge classification")

	// ErrExtraction means expected markup or script was missing from the
	// challenge page.  The vendor has most likely changed its format.
	ErrExtraction = errors.New("challenge extraction failed")

	// ErrSolve means the arithmetic challenge could not be parsed or
	// computed.
	ErrSolve = errors.New("challenge solve failed")

	// ErrUnsupported means a known but unsolvable challenge was served.
	ErrUnsupported = errors.New("unsupported challenge")

	// ErrMissingProviderConfig means a captcha was served and no proof
	// provider is configured.
	ErrMissingProviderConfig = errors.New("no proof provider configured")

	// ErrMissingParameter means a provider was configured without one of
	// its required credentials.
	ErrMissingParameter = errors.New("missing provider parameter")

	// ErrProviderTimeout means the proof provider did not produce a token
	// before its deadline.
	ErrProviderTimeout = errors.New("proof provider timed out")

	// ErrProvider is a remote provider API failure.
	ErrProvider = errors.New("proof provider error")

	// ErrServiceUnavailable means the provider service itself is down.
	ErrServiceUnavailable = errors.New("proof provider unavailable")

	// ErrSolveRejected means the proof was submitted and rejected with 400.
	ErrSolveRejected = errors.New("challenge proof rejected")

	// ErrLoopProtection means the solve depth ceiling was reached.
	ErrLoopProtection = errors.New("challenge loop protection triggered")

	// ErrBlocked means a firewall rule blocked the request outright.
	ErrBlocked = errors.New("blocked by firewall")

	// ErrUnknownEvaluator is returned for an unregistered evaluator name.
	ErrUnknownEvaluator = errors.New("unknown evaluator")

	// ErrUnknownProvider is returned for an unregistered provider name.
	ErrUnknownProvider = errors.New("unknown proof provider")
)

// Error is a terminal pipeline failure.  It records which classification
// fired and which step failed alongside the sentinel and the underlying
// cause.
type Error struct {
	// Err is one of the package sentinels.
	Err error

	// Kind is the classification that was being handled.
	Kind Kind

	// Step names the stage that failed, e.g. "extract form" or "submit".
	Step string

	// Cause is the underlying error, if any.
	Cause error
}

// NewError builds an *Error.  cause may be nil.
func NewError(sentinel error, kind Kind, step string, cause error) *Error {
	return &Error{Err: sentinel, Kind: kind, Step: step, Cause: cause}
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("challenge ")
	b.WriteString(e.Kind.String())
	if e.Step != "" {
		b.WriteString(": ")
		b.WriteString(e.Step)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap exposes both the sentinel and the cause to errors.Is / errors.As.
func (e *Error) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Err != nil {
		errs = append(errs, e.Err)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}
