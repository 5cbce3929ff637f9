// Package memory implements the store contracts in process memory.
// It backs engine and scanner tests; production nodes use the sqlite
// adapter.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

// Store is an in-memory implementation of store.Storage. Failure
// injection fields let tests simulate transport errors; call counters
// back the exactly-one-write idempotence checks.
type Store struct {
	mu        sync.RWMutex
	revisions map[string][]*models.Record       // document id -> sibling revisions
	conflicts map[string]*models.ConflictRecord // conflict record id -> record

	// Failure injection: when set, the corresponding operation fails
	PutErr   error
	PurgeErr error
	ScanErr  error

	// Call counters
	PutCalls   int
	PurgeCalls int
}

// New creates an empty in-memory store
func New() *Store {
	return &Store{
		revisions: make(map[string][]*models.Record),
		conflicts: make(map[string]*models.ConflictRecord),
	}
}

// Get returns the current winning revision of a document.
func (s *Store) Get(ctx context.Context, docType models.DocumentType, id string) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.typedRevisions(docType, id)
	if len(revs) == 0 {
		return nil, store.ErrRecordNotFound
	}
	return revs[0].Clone(), nil
}

// GetWithConflicts returns the winner plus every sibling revision.
func (s *Store) GetWithConflicts(ctx context.Context, docType models.DocumentType, id string) (*models.Record, []*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	revs := s.typedRevisions(docType, id)
	if len(revs) == 0 {
		return nil, nil, store.ErrRecordNotFound
	}

	siblings := make([]*models.Record, 0, len(revs)-1)
	for _, rev := range revs[1:] {
		siblings = append(siblings, rev.Clone())
	}
	return revs[0].Clone(), siblings, nil
}

// Put writes a new revision, superseding the expected one (optimistic)
// or the current winner (unconditional).
func (s *Store) Put(ctx context.Context, record *models.Record, expectedRevision string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PutCalls++
	if s.PutErr != nil {
		return "", s.PutErr
	}

	revs := s.revisions[record.ID]

	if expectedRevision != "" {
		idx := -1
		for i, rev := range revs {
			if rev.RevisionToken == expectedRevision {
				idx = i
				break
			}
		}
		if idx == -1 {
			return "", store.ErrRevisionMismatch
		}
		revs = append(revs[:idx], revs[idx+1:]...)
	} else if len(revs) > 0 {
		sortByWinner(revs)
		revs = revs[1:]
	}

	token := uuid.New().String()
	stored := record.Clone()
	stored.RevisionToken = token
	s.revisions[record.ID] = append(revs, stored)

	record.RevisionToken = token
	return token, nil
}

// ApplyReplicated ingests a revision keeping its token; an unseen token
// under an existing id becomes a sibling.
func (s *Store) ApplyReplicated(ctx context.Context, record *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rev := range s.revisions[record.ID] {
		if rev.RevisionToken == record.RevisionToken {
			return nil // уже применено
		}
	}
	s.revisions[record.ID] = append(s.revisions[record.ID], record.Clone())
	return nil
}

// PurgeRevisions removes the named revisions; missing ones are ignored.
func (s *Store) PurgeRevisions(ctx context.Context, docType models.DocumentType, id string, revisionTokens []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.PurgeCalls++
	if s.PurgeErr != nil {
		return s.PurgeErr
	}

	doomed := make(map[string]bool, len(revisionTokens))
	for _, token := range revisionTokens {
		doomed[token] = true
	}

	kept := s.revisions[id][:0]
	for _, rev := range s.revisions[id] {
		if !doomed[rev.RevisionToken] {
			kept = append(kept, rev)
		}
	}
	s.revisions[id] = kept
	return nil
}

// ScanConflicted streams documents holding more than one revision.
func (s *Store) ScanConflicted(ctx context.Context, docType models.DocumentType, fn store.ScanFunc) error {
	if s.ScanErr != nil {
		return s.ScanErr
	}

	s.mu.RLock()
	type hit struct {
		id string
		t  models.DocumentType
	}
	var hits []hit
	for id, revs := range s.revisions {
		if len(revs) < 2 {
			continue
		}
		if docType != "" && revs[0].Type != docType {
			continue
		}
		hits = append(hits, hit{id: id, t: revs[0].Type})
	}
	s.mu.RUnlock()

	// Детерминированный порядок упрощает тесты
	sort.Slice(hits, func(i, j int) bool { return hits[i].id < hits[j].id })

	for _, h := range hits {
		if err := fn(h.id, h.t); err != nil {
			return err
		}
	}
	return nil
}

// NodeStats reports document counts for the status endpoint.
func (s *Store) NodeStats(ctx context.Context) (*store.NodeStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &store.NodeStats{}
	for _, revs := range s.revisions {
		if len(revs) == 0 {
			continue
		}
		stats.TotalDocuments++
		if len(revs) > 1 {
			stats.ConflictedDocuments++
		}
	}
	return stats, nil
}

// typedRevisions returns the revisions of a document in winner order.
// Caller holds the lock.
func (s *Store) typedRevisions(docType models.DocumentType, id string) []*models.Record {
	revs := s.revisions[id]
	if len(revs) == 0 || (docType != "" && revs[0].Type != docType) {
		return nil
	}
	ordered := append([]*models.Record(nil), revs...)
	sortByWinner(ordered)
	return ordered
}

// sortByWinner orders revisions by the deterministic winner rule:
// highest version, latest modification, largest token.
func sortByWinner(revs []*models.Record) {
	sort.SliceStable(revs, func(i, j int) bool {
		pi, pj := revs[i].Provenance, revs[j].Provenance
		if pi.Version != pj.Version {
			return pi.Version > pj.Version
		}
		if !pi.LastModifiedAt.Equal(pj.LastModifiedAt) {
			return pi.LastModifiedAt.After(pj.LastModifiedAt)
		}
		return revs[i].RevisionToken > revs[j].RevisionToken
	})
}
