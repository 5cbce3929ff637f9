package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/iudanet/authdir/internal/models"
)

// RetryPolicy controls the centralized transient-retry behavior applied
// uniformly to every record-store operation. Business errors (not found,
// revision mismatch, purge failure) are never retried.
type RetryPolicy struct {
	MaxRetries uint64        // количество повторов после первой попытки
	BaseDelay  time.Duration // базовая задержка fibonacci backoff
}

// DefaultRetryPolicy returns the reference policy: a small fixed number
// of retries with backoff.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  100 * time.Millisecond,
	}
}

// retryingStorage decorates a Storage with the retry policy.
type retryingStorage struct {
	inner  Storage
	logger *slog.Logger
	policy RetryPolicy
}

// WithRetry wraps a Storage so that operations failing with a
// transient error are re-attempted per the policy. The wrapped adapter
// decides what counts as transient via Transient().
func WithRetry(inner Storage, policy RetryPolicy, logger *slog.Logger) Storage {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryingStorage{
		inner:  inner,
		logger: logger,
		policy: policy,
	}
}

// do runs op under the retry policy, surfacing the last error unchanged.
func (s *retryingStorage) do(ctx context.Context, name string, op func(ctx context.Context) error) error {
	backoff := retry.WithMaxRetries(s.policy.MaxRetries, retry.NewFibonacci(s.policy.BaseDelay))

	attempts := 0
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		err := op(ctx)
		if err == nil {
			return nil
		}
		if IsTransient(err) {
			s.logger.Warn("Transient storage error, will retry",
				"op", name,
				"attempt", attempts,
				"error", err,
			)
			return retry.RetryableError(err)
		}
		return err
	})

	return err
}

func (s *retryingStorage) Get(ctx context.Context, docType models.DocumentType, id string) (*models.Record, error) {
	var record *models.Record
	err := s.do(ctx, "get", func(ctx context.Context) error {
		var opErr error
		record, opErr = s.inner.Get(ctx, docType, id)
		return opErr
	})
	return record, err
}

func (s *retryingStorage) GetWithConflicts(ctx context.Context, docType models.DocumentType, id string) (*models.Record, []*models.Record, error) {
	var winner *models.Record
	var siblings []*models.Record
	err := s.do(ctx, "get_with_conflicts", func(ctx context.Context) error {
		var opErr error
		winner, siblings, opErr = s.inner.GetWithConflicts(ctx, docType, id)
		return opErr
	})
	return winner, siblings, err
}

func (s *retryingStorage) Put(ctx context.Context, record *models.Record, expectedRevision string) (string, error) {
	var token string
	err := s.do(ctx, "put", func(ctx context.Context) error {
		var opErr error
		token, opErr = s.inner.Put(ctx, record, expectedRevision)
		return opErr
	})
	return token, err
}

func (s *retryingStorage) PurgeRevisions(ctx context.Context, docType models.DocumentType, id string, revisionTokens []string) error {
	return s.do(ctx, "purge_revisions", func(ctx context.Context) error {
		return s.inner.PurgeRevisions(ctx, docType, id, revisionTokens)
	})
}

func (s *retryingStorage) ScanConflicted(ctx context.Context, docType models.DocumentType, fn ScanFunc) error {
	// Скан перезапускается целиком: частичный прогон не кешируется
	return s.do(ctx, "scan_conflicted", func(ctx context.Context) error {
		return s.inner.ScanConflicted(ctx, docType, fn)
	})
}

func (s *retryingStorage) SaveConflict(ctx context.Context, record *models.ConflictRecord) error {
	return s.do(ctx, "save_conflict", func(ctx context.Context) error {
		return s.inner.SaveConflict(ctx, record)
	})
}

func (s *retryingStorage) GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error) {
	var record *models.ConflictRecord
	err := s.do(ctx, "get_conflict", func(ctx context.Context) error {
		var opErr error
		record, opErr = s.inner.GetConflict(ctx, id)
		return opErr
	})
	return record, err
}

func (s *retryingStorage) GetOpenConflictByDocument(ctx context.Context, documentID string) (*models.ConflictRecord, error) {
	var record *models.ConflictRecord
	err := s.do(ctx, "get_open_conflict", func(ctx context.Context) error {
		var opErr error
		record, opErr = s.inner.GetOpenConflictByDocument(ctx, documentID)
		return opErr
	})
	return record, err
}

func (s *retryingStorage) ListConflicts(ctx context.Context) ([]*models.ConflictRecord, error) {
	var records []*models.ConflictRecord
	err := s.do(ctx, "list_conflicts", func(ctx context.Context) error {
		var opErr error
		records, opErr = s.inner.ListConflicts(ctx)
		return opErr
	})
	return records, err
}

func (s *retryingStorage) UpdateConflict(ctx context.Context, record *models.ConflictRecord) error {
	return s.do(ctx, "update_conflict", func(ctx context.Context) error {
		return s.inner.UpdateConflict(ctx, record)
	})
}

func (s *retryingStorage) ConflictStats(ctx context.Context) (*ConflictStats, error) {
	var stats *ConflictStats
	err := s.do(ctx, "conflict_stats", func(ctx context.Context) error {
		var opErr error
		stats, opErr = s.inner.ConflictStats(ctx)
		return opErr
	})
	return stats, err
}
