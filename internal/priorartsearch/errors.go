package priorartsearch

import (
	"errors"
	"fmt"
)

var ErrEmptyQuery = errors.New("query is required")

type StageError struct {
	Phase Phase
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s failed: %v", phaseLabel(e.Phase), e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func PhaseFromError(err error) Phase {
	var se *StageError
	if errors.As(err, &se) {
		return se.Phase
	}
	return ""
}

func phaseLabel(p Phase) string {
	switch p {
	case PhaseStrategize:
		return "strategy generation"
	case PhaseFanOut:
		return "patent search"
	case PhaseDedup:
		return "deduplication"
	case PhaseScore:
		return "relevance scoring"
	case PhaseSelect:
		return "result selection"
	case PhaseEnrich:
		return "claims enrichment"
	case PhaseReport:
		return "report generation"
	default:
		return string(p)
	}
}

// DecodeError is the single failure kind for turning model output into a
// typed payload.
type DecodeError struct {
	Target string
	Raw    string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Target, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

type statusError struct {
	Code int
	Body string
}

func (e *statusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("status code: %d", e.Code)
	}
	return fmt.Sprintf("status code: %d body=%s", e.Code, e.Body)
}

func (e *statusError) retryable() bool {
	return e.Code == 429 || e.Code >= 500
}
