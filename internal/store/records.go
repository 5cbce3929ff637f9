package store

import (
	"context"

	"github.com/iudanet/authdir/internal/models"
)

// ScanFunc receives one conflicted document per call. Returning an error
// stops the scan and propagates the error to the ScanConflicted caller.
type ScanFunc func(id string, docType models.DocumentType) error

// RecordStorage is the typed contract against the replicated document
// store. It is the only path every other component reads and writes
// documents through, and must be safe for concurrent use.
type RecordStorage interface {
	// Get returns the current winning revision of a document.
	// Returns ErrRecordNotFound if no live revision exists.
	Get(ctx context.Context, docType models.DocumentType, id string) (*models.Record, error)

	// GetWithConflicts returns the winning revision plus every sibling
	// revision still stored. An empty sibling slice means no conflict.
	GetWithConflicts(ctx context.Context, docType models.DocumentType, id string) (*models.Record, []*models.Record, error)

	// Put writes a new revision and returns its revision token.
	// When expectedRevision is non-empty the write is optimistic:
	// ErrRevisionMismatch if that revision is no longer present.
	Put(ctx context.Context, record *models.Record, expectedRevision string) (string, error)

	// PurgeRevisions permanently removes the named sibling revisions.
	// Revisions already gone are treated as purged (idempotent).
	// Returns ErrPurgeFailed only when the store cannot comply.
	PurgeRevisions(ctx context.Context, docType models.DocumentType, id string, revisionTokens []string) error

	// ScanConflicted streams every document currently holding more than
	// one revision, optionally filtered by type (empty docType = all
	// tracked types). Ordering is unspecified; the sequence is finite
	// and restartable by calling again.
	ScanConflicted(ctx context.Context, docType models.DocumentType, fn ScanFunc) error
}

// NodeStats summarizes the local store for the peer-facing replication
// status endpoint.
type NodeStats struct {
	TotalDocuments      int64 `json:"total_documents"`
	ConflictedDocuments int64 `json:"conflicted_documents"`
	ReplicatedWrites    int64 `json:"replicated_writes"`
	ReplicationErrors   int64 `json:"replication_errors"`
}

// StatsProvider is implemented by adapters that can report node-level
// replication statistics.
type StatsProvider interface {
	NodeStats(ctx context.Context) (*NodeStats, error)
}
