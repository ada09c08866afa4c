package dedup

import (
	"context"
	"sync"

	"github.com/zombar/imagefinder/models"
)

// MemoryStore is an in-memory Store for tests and single-process development.
// Same semantics as PostgresStore, including the atomic insert-uniqueness.
type MemoryStore struct {
	mu        sync.Mutex
	byContent map[string]*models.DedupRecord
	byURL     map[string]*models.DedupRecord
	order     []*models.DedupRecord // insertion order, newest last
}

// NewMemory creates an empty MemoryStore.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		byContent: make(map[string]*models.DedupRecord),
		byURL:     make(map[string]*models.DedupRecord),
	}
}

// FindByContentHash returns the record for a byte-content hash, or nil.
func (s *MemoryStore) FindByContentHash(_ context.Context, hash string) (*models.DedupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byContent[hash]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

// FindByURLHash returns the record for a normalized-URL hash, or nil.
func (s *MemoryStore) FindByURLHash(_ context.Context, hash string) (*models.DedupRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.byURL[hash]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

// Insert persists a record, failing when the content hash is already known.
func (s *MemoryStore) Insert(_ context.Context, rec *models.DedupRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byContent[rec.ContentHash]; exists {
		return NewDuplicateError(rec.ContentHash)
	}
	cp := *rec
	s.byContent[cp.ContentHash] = &cp
	s.byURL[cp.URLHash] = &cp
	s.order = append(s.order, &cp)
	return nil
}

// RecentFingerprints returns up to limit most recently inserted fingerprints.
func (s *MemoryStore) RecentFingerprints(_ context.Context, limit int) ([]Fingerprint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var fps []Fingerprint
	for i := len(s.order) - 1; i >= 0 && len(fps) < limit; i-- {
		fps = append(fps, Fingerprint{
			ContentHash:    s.order[i].ContentHash,
			PerceptualHash: s.order[i].PerceptualHash,
		})
	}
	return fps, nil
}

// Count returns the number of stored records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order), nil
}
