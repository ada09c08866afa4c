// Package dedup records every accepted image durably so exact and
// near-duplicates are rejected across restarts and across concurrent workers.
package dedup

import (
	"context"

	"github.com/zombar/imagefinder/models"
)

// duplicateError is returned by Insert when a record with the same content
// hash already exists. The losing worker of an acceptance race sees this;
// callers detect it through IsDuplicate.
type duplicateError struct{ hash string }

func (e *duplicateError) Error() string {
	return "duplicate content hash: " + e.hash
}

// IsDuplicate reports whether err is the unique-violation result of Insert.
func IsDuplicate(err error) bool {
	_, ok := err.(*duplicateError)
	return ok
}

// NewDuplicateError is used by Store implementations.
func NewDuplicateError(hash string) error {
	return &duplicateError{hash: hash}
}

// Fingerprint is one stored perceptual hash, enough for the near-dup scan.
type Fingerprint struct {
	ContentHash    string
	PerceptualHash uint64
}

// Store is the durable dedup record keeper. Implementations synchronize
// internally; Insert must be atomic with respect to the content-hash
// uniqueness check so two workers racing to accept byte-identical images
// cannot both succeed.
type Store interface {
	// FindByContentHash returns the record with the given byte-content hash,
	// or nil when none exists.
	FindByContentHash(ctx context.Context, hash string) (*models.DedupRecord, error)
	// FindByURLHash returns the record with the given normalized-URL hash,
	// or nil when none exists.
	FindByURLHash(ctx context.Context, hash string) (*models.DedupRecord, error)
	// Insert persists a new record, failing with a duplicate error (see
	// IsDuplicate) when the content hash is already recorded.
	Insert(ctx context.Context, rec *models.DedupRecord) error
	// RecentFingerprints returns up to limit most recently accepted
	// fingerprints for the near-duplicate scan.
	RecentFingerprints(ctx context.Context, limit int) ([]Fingerprint, error)
	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)
}
