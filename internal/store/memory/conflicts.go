package memory

import (
	"context"
	"sort"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

// SaveConflict creates a conflict record, enforcing the one-open-record
// per document invariant.
func (s *Store) SaveConflict(ctx context.Context, record *models.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.conflicts {
		if existing.DocumentID == record.DocumentID && existing.Open() {
			return store.ErrOpenConflictExists
		}
	}
	s.conflicts[record.ID] = record.Clone()
	return nil
}

// GetConflict retrieves a conflict record by id.
func (s *Store) GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.conflicts[id]
	if !ok {
		return nil, store.ErrConflictNotFound
	}
	return record.Clone(), nil
}

// GetOpenConflictByDocument returns the open record for a document id.
func (s *Store) GetOpenConflictByDocument(ctx context.Context, documentID string) (*models.ConflictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, record := range s.conflicts {
		if record.DocumentID == documentID && record.Open() {
			return record.Clone(), nil
		}
	}
	return nil, store.ErrConflictNotFound
}

// ListConflicts returns all conflict records, newest first.
func (s *Store) ListConflicts(ctx context.Context) ([]*models.ConflictRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]*models.ConflictRecord, 0, len(s.conflicts))
	for _, record := range s.conflicts {
		records = append(records, record.Clone())
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].DetectedAt.After(records[j].DetectedAt)
	})
	return records, nil
}

// UpdateConflict persists a status transition or resolution stamp.
func (s *Store) UpdateConflict(ctx context.Context, record *models.ConflictRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conflicts[record.ID]; !ok {
		return store.ErrConflictNotFound
	}
	s.conflicts[record.ID] = record.Clone()
	return nil
}

// ConflictStats aggregates totals per kind.
func (s *Store) ConflictStats(ctx context.Context) (*store.ConflictStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.ConflictStats{
		ByKind: make(map[models.ConflictKind]int),
	}
	for _, record := range s.conflicts {
		stats.Total++
		stats.ByKind[record.Kind]++
		if record.Open() {
			stats.RequiresManualResolution++
		}
	}
	return stats, nil
}
