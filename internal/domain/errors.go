package domain

import (
	"errors"

	"github.com/TomkerDev/Al-Moussaid/internal/vector"
)

var (
	// ErrExtraction marks a failed or unusable skill extraction. It is recovered locally.
	ErrExtraction = errors.New("skill extraction failed")
	// ErrEmbedding marks a failed embedding call. There is no fallback.
	ErrEmbedding = errors.New("embedding failed")
	// ErrStoreUnavailable marks a failed store query or insert.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrDuplicateTitle is returned by posting stores on a title uniqueness violation.
	ErrDuplicateTitle = errors.New("posting with the same title already exists")
	// ErrNotification marks a failed alert delivery.
	ErrNotification = errors.New("notification failed")
	// ErrInvalidArgument marks caller input that cannot be processed.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrNotFound is returned by lookups that found nothing.
	ErrNotFound = errors.New("not found")

	// ErrModelMismatch and ErrDimensionMismatch are shared with the vector package.
	ErrModelMismatch     = vector.ErrModelMismatch
	ErrDimensionMismatch = vector.ErrDimensionMismatch
)

// IsUnavailable reports whether err means the request could not be completed,
// as opposed to a legitimate empty result.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) || errors.Is(err, ErrEmbedding)
}
