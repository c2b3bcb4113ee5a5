package core

import "errors"

const (
	// DefaultHistoryLimit applies when a query sets no limit.
	DefaultHistoryLimit = 50
	// MaxHistoryLimit caps a single history page.
	MaxHistoryLimit = 1000
)

var (
	// ErrInvalidLimit indicates a negative or oversized limit.
	ErrInvalidLimit = errors.New("invalid limit")
	// ErrInvalidRange indicates Until before Since.
	ErrInvalidRange = errors.New("invalid time range")
	// ErrInvalidSample indicates a sample without a timestamp.
	ErrInvalidSample = errors.New("invalid sample")
)

// ValidateQuery checks q and returns it with defaults applied.
func ValidateQuery(q HistoryQuery) (HistoryQuery, error) {
	if q.Limit < 0 || q.Limit > MaxHistoryLimit {
		return q, ErrInvalidLimit
	}
	if q.Limit == 0 {
		q.Limit = DefaultHistoryLimit
	}
	if !q.Since.IsZero() && !q.Until.IsZero() && q.Until.Before(q.Since) {
		return q, ErrInvalidRange
	}
	return q, nil
}

// ValidateSample checks a sample before it is stored.
func ValidateSample(s Sample) error {
	if s.Timestamp.IsZero() {
		return ErrInvalidSample
	}
	return nil
}
