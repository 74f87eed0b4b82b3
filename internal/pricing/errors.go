package pricing

import (
	"errors"
	"fmt"
)

var (
	// ErrNoData means the symbol has no usable quote right now.
	ErrNoData = errors.New("pricing: no price available")
	// ErrUnavailable means the lookup failed on infrastructure and may succeed on retry.
	ErrUnavailable = errors.New("pricing: price source unavailable")
)

// FetchError carries the classification of a failed lookup.
type FetchError struct {
	Symbol    string
	Transient bool
	Err       error
}

func (e *FetchError) Error() string {
	kind := "no data"
	if e.Transient {
		kind = "unavailable"
	}
	return fmt.Sprintf("quote %s %s: %v", e.Symbol, kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match the classification sentinels.
func (e *FetchError) Is(target error) bool {
	switch target {
	case ErrNoData:
		return !e.Transient
	case ErrUnavailable:
		return e.Transient
	}
	return false
}

// IsTransient reports whether err is a retryable lookup failure.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
