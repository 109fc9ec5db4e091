package diagnostic

import "fmt"

// Kind is one of the four error kinds §7 distinguishes, each with a fixed
// response from the orchestrator.
type Kind int

const (
	// SafeFallback leaves the include list untouched and runs the full
	// suite: unexpected host config shape, a multi-project workspace, an
	// empty test universe, an unknown cache version, a cache parse/
	// validation failure, a cold cache, or any uncaught orchestrator error.
	SafeFallback Kind = iota
	// ForceFullSuite is a SafeFallback triggered specifically by a changed
	// configuration-file basename or setup-file path.
	ForceFullSuite
	// Hard escapes the orchestrator's guard and is thrown up the host's
	// plugin chain: currently only a reference diff against a shallow
	// repository.
	Hard
	// BestEffort failures (stats-file write, cache save) are suppressed;
	// the run continues as if they had succeeded.
	BestEffort
)

func (k Kind) String() string {
	switch k {
	case SafeFallback:
		return "safe-fallback"
	case ForceFullSuite:
		return "force-full-suite"
	case Hard:
		return "hard"
	case BestEffort:
		return "best-effort"
	default:
		return "unknown"
	}
}

// FallbackError carries a Kind and a machine-readable reason (the same
// string recorded in the stats journal's "reason" field, e.g.
// "cache-miss", "config-change", "threshold-exceeded") alongside the
// wrapped cause, if any.
type FallbackError struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *FallbackError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Reason)
}

func (e *FallbackError) Unwrap() error {
	return e.Err
}

// NewFallback constructs a FallbackError with no wrapped cause.
func NewFallback(kind Kind, reason string) *FallbackError {
	return &FallbackError{Kind: kind, Reason: reason}
}

// Wrap constructs a FallbackError wrapping err.
func Wrap(kind Kind, reason string, err error) *FallbackError {
	return &FallbackError{Kind: kind, Reason: reason, Err: err}
}
