package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

// SaveConflict creates a new conflict record. The partial unique index on
// open records backs the at-most-one-open-conflict-per-document invariant
// even if two scanners race.
func (s *Storage) SaveConflict(ctx context.Context, record *models.ConflictRecord) error {
	// Проверяем нет ли уже открытой записи для этого документа
	existing, err := s.GetOpenConflictByDocument(ctx, record.DocumentID)
	if err != nil && !errors.Is(err, store.ErrConflictNotFound) {
		return fmt.Errorf("failed to check open conflict: %w", err)
	}
	if existing != nil {
		return store.ErrOpenConflictExists
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict record: %w", err)
	}

	query := `
		INSERT INTO conflict_records (
			id, document_id, document_type, kind, status, detected_at, body
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = s.db.ExecContext(ctx, query,
		record.ID,
		record.DocumentID,
		string(record.DocumentType),
		string(record.Kind),
		string(record.Status),
		record.DetectedAt.UnixNano(),
		string(body),
	)
	if err != nil {
		// Уникальный индекс сработал при гонке двух сканов
		if isUniqueViolation(err) {
			return store.ErrOpenConflictExists
		}
		return wrapTransient(fmt.Errorf("failed to insert conflict record: %w", err))
	}
	return nil
}

// GetConflict retrieves a conflict record by its id.
func (s *Storage) GetConflict(ctx context.Context, id string) (*models.ConflictRecord, error) {
	var body string
	err := s.db.QueryRowContext(ctx,
		`SELECT body FROM conflict_records WHERE id = ?`, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrConflictNotFound
	}
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to query conflict record: %w", err))
	}

	return decodeConflict(body)
}

// GetOpenConflictByDocument returns the open record for a document id.
func (s *Storage) GetOpenConflictByDocument(ctx context.Context, documentID string) (*models.ConflictRecord, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `
		SELECT body FROM conflict_records
		WHERE document_id = ? AND status IN ('unresolved', 'resolving')
	`, documentID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrConflictNotFound
	}
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to query open conflict: %w", err))
	}

	return decodeConflict(body)
}

// ListConflicts returns all conflict records, newest first.
func (s *Storage) ListConflicts(ctx context.Context) ([]*models.ConflictRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT body FROM conflict_records ORDER BY detected_at DESC`,
	)
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to list conflict records: %w", err))
	}
	defer rows.Close()

	var records []*models.ConflictRecord
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("failed to scan conflict record: %w", err)
		}
		record, err := decodeConflict(body)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to iterate conflict records: %w", err))
	}
	return records, nil
}

// UpdateConflict persists a status transition or resolution stamp.
func (s *Storage) UpdateConflict(ctx context.Context, record *models.ConflictRecord) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal conflict record: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE conflict_records
		SET status = ?, kind = ?, body = ?
		WHERE id = ?
	`, string(record.Status), string(record.Kind), string(body), record.ID)
	if err != nil {
		return wrapTransient(fmt.Errorf("failed to update conflict record: %w", err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check updated conflict record: %w", err)
	}
	if affected == 0 {
		return store.ErrConflictNotFound
	}
	return nil
}

// ConflictStats aggregates totals per kind plus the number of open conflicts.
func (s *Storage) ConflictStats(ctx context.Context) (*store.ConflictStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, status, COUNT(*) FROM conflict_records
		GROUP BY kind, status
	`)
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to aggregate conflict stats: %w", err))
	}
	defer rows.Close()

	stats := &store.ConflictStats{
		ByKind: make(map[models.ConflictKind]int),
	}

	for rows.Next() {
		var kind, status string
		var count int
		if err := rows.Scan(&kind, &status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan conflict stats: %w", err)
		}
		stats.Total += count
		stats.ByKind[models.ConflictKind(kind)] += count
		if models.ConflictStatus(status) != models.StatusResolved {
			stats.RequiresManualResolution += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to iterate conflict stats: %w", err))
	}
	return stats, nil
}

// decodeConflict разбирает JSON тела записи конфликта
func decodeConflict(body string) (*models.ConflictRecord, error) {
	var record models.ConflictRecord
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal conflict record: %w", err)
	}
	return &record, nil
}

// isUniqueViolation определяет нарушение уникального индекса
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
