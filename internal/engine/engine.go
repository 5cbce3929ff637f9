// Package engine applies resolution strategies to detected conflicts:
// it writes the canonical revision, purges the losing siblings, and
// records the resolution for audit. At most one resolution runs per
// document id at a time.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/provenance"
	"github.com/iudanet/authdir/internal/store"
)

// ResolveParams carries strategy-specific arguments.
type ResolveParams struct {
	RevisionID string          // choose-winner: token of the revision to keep
	Fields     json.RawMessage // custom: operator-supplied field map
}

// Engine executes resolutions against the store.
type Engine struct {
	storage store.Storage
	tagger  *provenance.Tagger
	logger  *slog.Logger
	now     func() time.Time
	leases  leaseMap
}

// New creates a resolution engine
func New(storage store.Storage, tagger *provenance.Tagger, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		storage: storage,
		tagger:  tagger,
		logger:  logger,
		now:     time.Now,
	}
}

// Resolve applies a strategy to the conflict record. Replaying a resolve
// against an already-resolved record is a no-op returning the stored
// resolution; a record claimed by a concurrent resolution fails
// immediately with ErrConflictAlreadyResolving.
func (e *Engine) Resolve(ctx context.Context, conflictID, strategy string, params ResolveParams) (*models.ConflictRecord, error) {
	record, err := e.storage.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case models.StatusResolved:
		// Идемпотентный повтор: возвращаем сохраненный результат
		e.logger.Info("Resolve replayed on resolved conflict",
			"conflict_id", conflictID,
			"document_id", record.DocumentID,
		)
		return record, nil
	case models.StatusResolving:
		return nil, ErrConflictAlreadyResolving
	}

	// Claim: ровно одна резолюция на документ
	if !e.leases.TryAcquire(record.DocumentID) {
		return nil, ErrConflictAlreadyResolving
	}
	defer e.leases.Release(record.DocumentID)

	// Перечитываем запись под claim: статус мог измениться
	record, err = e.storage.GetConflict(ctx, conflictID)
	if err != nil {
		return nil, err
	}
	switch record.Status {
	case models.StatusResolved:
		return record, nil
	case models.StatusResolving:
		return nil, ErrConflictAlreadyResolving
	}

	record.Status = models.StatusResolving
	if err := e.storage.UpdateConflict(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to claim conflict: %w", err)
	}

	resolved, err := e.execute(ctx, record, strategy, params)
	if err != nil {
		e.rollback(ctx, record)
		return nil, err
	}
	return resolved, nil
}

// execute runs the strategy and finishes the lifecycle. The conflict is
// already claimed; any error leads to rollback by the caller.
func (e *Engine) execute(ctx context.Context, record *models.ConflictRecord, strategy string, params ResolveParams) (*models.ConflictRecord, error) {
	// Ревизии в детерминированном tie-break порядке
	revisions := make([]*models.Record, len(record.Revisions))
	for i, rev := range record.Revisions {
		revisions[i] = rev.Clone()
	}
	models.SortRevisions(revisions)

	var out *outcome
	var err error
	switch strategy {
	case models.StrategyChooseWinner:
		out, err = chooseWinner(revisions, params.RevisionID)
	case models.StrategyMergePermissions:
		out, err = mergePermissions(record, revisions)
	case models.StrategyCustom:
		out, err = customResolution(record, revisions, params.Fields)
	default:
		err = fmt.Errorf("%w: %q", ErrUnknownStrategy, strategy)
	}
	if err != nil {
		return nil, err
	}

	// Записываем каноническую ревизию поверх вытесняемой
	newToken, err := e.tagger.Put(ctx, out.canonical, out.supersedes)
	if err != nil {
		return nil, fmt.Errorf("failed to write canonical revision: %w", err)
	}

	// Удаляем проигравшие ревизии, чтобы следующий скан не нашел конфликт снова
	var losers []string
	for _, rev := range revisions {
		if rev.RevisionToken != out.supersedes {
			losers = append(losers, rev.RevisionToken)
		}
	}
	if err := e.storage.PurgeRevisions(ctx, record.DocumentType, record.DocumentID, losers); err != nil {
		return nil, fmt.Errorf("failed to purge losing revisions: %w", err)
	}

	record.Status = models.StatusResolved
	record.Resolution = &models.Resolution{
		ResolvedAt:            e.now(),
		Strategy:              strategy,
		ResolvingInstance:     e.tagger.InstanceID(),
		ResultingRevisionID:   newToken,
		ContributingInstances: out.contributing,
	}
	e.tagger.Stamp(&record.Provenance)

	if err := e.storage.UpdateConflict(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to record resolution: %w", err)
	}

	e.logger.Info("Conflict resolved",
		"conflict_id", record.ID,
		"document_id", record.DocumentID,
		"kind", record.Kind,
		"strategy", strategy,
		"resulting_revision", newToken,
		"purged_revisions", len(losers),
	)
	return record, nil
}

// rollback releases the persisted claim so the operator can retry.
func (e *Engine) rollback(ctx context.Context, record *models.ConflictRecord) {
	record.Status = models.StatusUnresolved
	record.Resolution = nil
	if err := e.storage.UpdateConflict(ctx, record); err != nil {
		// Запись осталась в resolving: следующий рестарт или повторный
		// UpdateConflict оператора снимет claim
		e.logger.Error("Failed to roll conflict back to unresolved",
			"conflict_id", record.ID,
			"document_id", record.DocumentID,
			"error", err,
		)
	}
}
