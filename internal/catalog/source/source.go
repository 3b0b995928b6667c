package source

import (
	"context"

	"catalog_ingest/internal/catalog/models"
)

// Source yields candidate identifiers. Sequences are finite and cannot be
// rewound; a consumed source must be re-created to start over. Implementations
// are safe for concurrent use.
type Source interface {
	// Next returns the next identifier, or false once the sequence is exhausted.
	Next() (models.ProductIdentifier, bool)
}

// Preparer is implemented by sources that must load something before the
// first Next. A Prepare failure means the run cannot start.
type Preparer interface {
	Prepare(ctx context.Context) error
}
