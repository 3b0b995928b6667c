package clients

import (
	"errors"
	"fmt"

	"catalog_ingest/internal/catalog/models"
)

// ErrNotFound marks an identifier that does not resolve to a product. It is an
// expected outcome of probing a sparse identifier space, not a failure.
var ErrNotFound = errors.New("product not found")

type FetchKind int

const (
	KindNotFound FetchKind = iota + 1
	// KindRetryable covers 429, 5xx, timeouts and connection failures. A
	// FetchError of this kind returned from Fetch means retries are exhausted.
	KindRetryable
	// KindFatal is any other status; the identifier is given up immediately.
	KindFatal
)

func (k FetchKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindRetryable:
		return "retryable"
	case KindFatal:
		return "fatal"
	}
	return "unknown"
}

type FetchError struct {
	ID         models.ProductIdentifier
	Kind       FetchKind
	StatusCode int
	Attempts   int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %s after %d attempt(s): status %d", e.ID, e.Kind, e.Attempts, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %s after %d attempt(s): %v", e.ID, e.Kind, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error {
	if e.Kind == KindNotFound {
		return ErrNotFound
	}
	return e.Err
}

// KindOf returns the classification of err, or 0 when err is not a FetchError.
func KindOf(err error) FetchKind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return 0
}
