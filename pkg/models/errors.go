package models

import "fmt"

// NotFoundError means the registry returned zero candidates for a query.
// It is surfaced directly and never retried.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no reports found for company: %s", e.Query)
}

// NetworkError wraps an upstream failure that survived the retry budget.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("upstream %s failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ChallengeUnsolvedError means the access challenge could not be resolved
// within the bounded attempt count.
type ChallengeUnsolvedError struct {
	Attempts int
	Err      error
}

func (e *ChallengeUnsolvedError) Error() string {
	return fmt.Sprintf("access challenge unsolved after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ChallengeUnsolvedError) Unwrap() error { return e.Err }

// ExtractionError means the AI response stayed malformed after retries.
// Callers downgrade it to an all-null record rather than failing the request.
type ExtractionError struct {
	Err error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed: %v", e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// CacheError means the durable store was unavailable. The pipeline degrades
// to direct fetch-and-extract without persisting (fail-open).
type CacheError struct {
	Op  string
	Err error
}

func (e *CacheError) Error() string {
	return fmt.Sprintf("cache %s failed: %v", e.Op, e.Err)
}

func (e *CacheError) Unwrap() error { return e.Err }

// InsufficientDataError means a timeline had fewer than two dated points for
// trend computation. The raw timeline is still returned alongside it.
type InsufficientDataError struct {
	Points int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for trend computation: %d dated point(s), need at least 2", e.Points)
}
