package store

import (
	"context"

	"github.com/iudanet/authdir/internal/models"
)

// ConflictStats aggregates conflict records for the admin stats endpoint.
type ConflictStats struct {
	ByKind                   map[models.ConflictKind]int `json:"by_kind"`
	Total                    int                         `json:"total"`
	RequiresManualResolution int                         `json:"requires_manual_resolution"`
}

// ConflictStorage persists conflict records. Records are audited
// documents: they carry their own provenance.
type ConflictStorage interface {
	// SaveConflict creates a new conflict record. Returns
	// ErrOpenConflictExists if an open record already backs the same
	// document id (uniqueness invariant).
	SaveConflict(ctx context.Context, record *models.ConflictRecord) error

	// GetConflict retrieves a conflict record by its id.
	// Returns ErrConflictNotFound if it does not exist.
	GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error)

	// GetOpenConflictByDocument returns the open (unresolved or
	// resolving) record for a document id, or ErrConflictNotFound.
	GetOpenConflictByDocument(ctx context.Context, documentID string) (*models.ConflictRecord, error)

	// ListConflicts returns all conflict records, newest first.
	ListConflicts(ctx context.Context) ([]*models.ConflictRecord, error)

	// UpdateConflict persists a status transition or resolution stamp.
	// Returns ErrConflictNotFound if the record does not exist.
	UpdateConflict(ctx context.Context, record *models.ConflictRecord) error

	// ConflictStats aggregates totals per kind plus the number of
	// conflicts still awaiting manual resolution.
	ConflictStats(ctx context.Context) (*ConflictStats, error)
}

// Storage bundles the two persistence contracts the engine wires together.
type Storage interface {
	RecordStorage
	ConflictStorage
}
