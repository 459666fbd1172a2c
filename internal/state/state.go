// Package state persists the per-source fingerprint baseline used by the
// diff engine.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfenderov/agenda-watch/internal/storage"
	"github.com/mfenderov/agenda-watch/pkg/models"
)

// ErrNotFound is returned when a source has no stored baseline.
var ErrNotFound = errors.New("fingerprint record not found")

// Store reads and writes FingerprintRecords. Writes for one source replace
// the previous record wholesale.
type Store interface {
	Load(ctx context.Context, sourceID string) (*models.FingerprintRecord, error)
	Save(ctx context.Context, rec models.FingerprintRecord) error
}

// BlobStore keeps one JSON object per source in a storage.Store.
type BlobStore struct {
	blobs  storage.Store
	prefix string
}

// NewBlobStore stores records under "fingerprints/".
func NewBlobStore(blobs storage.Store) *BlobStore {
	return &BlobStore{blobs: blobs, prefix: "fingerprints/"}
}

func (s *BlobStore) key(sourceID string) string {
	return s.prefix + storage.KeySegment(sourceID) + ".json"
}

// Load returns ErrNotFound when the source has never been compared.
func (s *BlobStore) Load(ctx context.Context, sourceID string) (*models.FingerprintRecord, error) {
	var rec models.FingerprintRecord
	err := storage.GetJSON(ctx, s.blobs, s.key(sourceID), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load fingerprint for %s: %w", sourceID, err)
	}
	return &rec, nil
}

func (s *BlobStore) Save(ctx context.Context, rec models.FingerprintRecord) error {
	if rec.SourceID == "" {
		return fmt.Errorf("source id is required")
	}
	if err := storage.PutJSON(ctx, s.blobs, s.key(rec.SourceID), rec); err != nil {
		return fmt.Errorf("failed to save fingerprint for %s: %w", rec.SourceID, err)
	}
	return nil
}
