// Package scanner discovers divergent documents in the local store and
// files conflict records for them. It never resolves anything itself:
// detection and resolution are separate so an operator (or policy) can
// inspect a conflict before a strategy runs.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/iudanet/authdir/internal/conflict"
	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/provenance"
	"github.com/iudanet/authdir/internal/store"
)

// Scanner walks the store for documents holding sibling revisions.
type Scanner struct {
	storage store.Storage
	tagger  *provenance.Tagger
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// New creates a scanner filing conflicts on behalf of the tagger's instance.
func New(storage store.Storage, tagger *provenance.Tagger, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		storage: storage,
		tagger:  tagger,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Result summarizes one scan pass.
type Result struct {
	Scanned  int // conflicted documents seen
	Detected int // new conflict records filed
	Skipped  int // documents already holding an open record
	Failed   int // documents that errored; scan continued past them
}

// Run performs one full detection pass over every tracked document type.
// A failure on one document is logged and does not abort the pass; only a
// store-level scan failure is returned.
func (s *Scanner) Run(ctx context.Context) (*Result, error) {
	result := &Result{}
	started := s.now()

	for _, docType := range models.TrackedTypes {
		err := s.storage.ScanConflicted(ctx, docType, func(id string, docType models.DocumentType) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			result.Scanned++
			switch err := s.inspect(ctx, docType, id); {
			case err == nil:
				result.Detected++
			case errors.Is(err, errAlreadyFiled):
				result.Skipped++
			default:
				// Изолируем сбой одного документа от остального скана
				result.Failed++
				s.logger.Error("Failed to file conflict",
					"document_type", docType,
					"document_id", id,
					"error", err,
				)
			}
			return nil
		})
		if err != nil {
			return result, fmt.Errorf("failed to scan %s documents: %w", docType, err)
		}
	}

	s.logger.Info("Conflict scan finished",
		"scanned", result.Scanned,
		"detected", result.Detected,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"duration", s.now().Sub(started),
	)
	return result, nil
}

// errAlreadyFiled marks a document that already has an open conflict record.
var errAlreadyFiled = errors.New("conflict already filed")

// inspect classifies one conflicted document and files a record for it.
func (s *Scanner) inspect(ctx context.Context, docType models.DocumentType, id string) error {
	// Открытая запись уже есть — не дублируем
	_, err := s.storage.GetOpenConflictByDocument(ctx, id)
	switch {
	case err == nil:
		return errAlreadyFiled
	case !errors.Is(err, store.ErrConflictNotFound):
		return fmt.Errorf("failed to check open conflicts: %w", err)
	}

	winner, siblings, err := s.storage.GetWithConflicts(ctx, docType, id)
	if err != nil {
		return fmt.Errorf("failed to load revisions: %w", err)
	}
	if len(siblings) == 0 {
		// Конфликт разрешился между сканом и чтением
		return errAlreadyFiled
	}

	revisions := make([]*models.Record, 0, len(siblings)+1)
	revisions = append(revisions, winner.Clone())
	for _, sib := range siblings {
		revisions = append(revisions, sib.Clone())
	}
	models.SortRevisions(revisions)

	kind, err := conflict.Classify(revisions)
	if err != nil {
		return fmt.Errorf("failed to classify revisions: %w", err)
	}

	record := &models.ConflictRecord{
		ID:           s.newID(),
		DocumentID:   id,
		DocumentType: docType,
		Kind:         kind,
		Status:       models.StatusUnresolved,
		DetectedAt:   s.now(),
		Revisions:    revisions,
	}
	s.tagger.Stamp(&record.Provenance)

	if err := s.storage.SaveConflict(ctx, record); err != nil {
		if errors.Is(err, store.ErrOpenConflictExists) {
			// Параллельный скан успел первым
			return errAlreadyFiled
		}
		return fmt.Errorf("failed to save conflict record: %w", err)
	}

	s.logger.Info("Conflict detected",
		"conflict_id", record.ID,
		"document_type", docType,
		"document_id", id,
		"kind", kind,
		"revisions", len(revisions),
	)
	return nil
}
