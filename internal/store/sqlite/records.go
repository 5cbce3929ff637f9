package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

// Winner determination is deterministic: highest provenance version,
// then latest modification time, then largest revision token. The same
// revision wins on every node regardless of arrival order.
const winnerOrder = "ORDER BY version DESC, last_modified_at DESC, revision_token DESC"

// Get returns the current winning revision of a document.
// Returns ErrRecordNotFound if no live revision exists.
func (s *Storage) Get(ctx context.Context, docType models.DocumentType, id string) (*models.Record, error) {
	query := `
		SELECT body FROM revisions
		WHERE doc_type = ? AND document_id = ?
		` + winnerOrder + `
		LIMIT 1
	`

	var body string
	err := s.db.QueryRowContext(ctx, query, string(docType), id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrRecordNotFound
	}
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to query revision: %w", err))
	}

	return decodeRecord(body)
}

// GetWithConflicts returns the winning revision plus every sibling
// revision still stored.
func (s *Storage) GetWithConflicts(ctx context.Context, docType models.DocumentType, id string) (*models.Record, []*models.Record, error) {
	query := `
		SELECT body FROM revisions
		WHERE doc_type = ? AND document_id = ?
		` + winnerOrder

	rows, err := s.db.QueryContext(ctx, query, string(docType), id)
	if err != nil {
		return nil, nil, wrapTransient(fmt.Errorf("failed to query revisions: %w", err))
	}
	defer rows.Close()

	var revisions []*models.Record
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, nil, fmt.Errorf("failed to scan revision: %w", err)
		}
		record, err := decodeRecord(body)
		if err != nil {
			return nil, nil, err
		}
		revisions = append(revisions, record)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, wrapTransient(fmt.Errorf("failed to iterate revisions: %w", err))
	}

	if len(revisions) == 0 {
		return nil, nil, store.ErrRecordNotFound
	}

	// Первая строка — победитель, остальные sibling-ревизии
	return revisions[0], revisions[1:], nil
}

// Put writes a new revision. With a non-empty expectedRevision the write
// is optimistic: it replaces exactly that revision or fails with
// ErrRevisionMismatch. An unconditional put replaces the current winner.
func (s *Storage) Put(ctx context.Context, record *models.Record, expectedRevision string) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", wrapTransient(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() { _ = tx.Rollback() }()

	if expectedRevision != "" {
		// Оптимистичная запись: вытесняем ровно ожидаемую ревизию
		res, err := tx.ExecContext(ctx,
			`DELETE FROM revisions WHERE document_id = ? AND revision_token = ?`,
			record.ID, expectedRevision,
		)
		if err != nil {
			return "", wrapTransient(fmt.Errorf("failed to supersede revision: %w", err))
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return "", fmt.Errorf("failed to check superseded revision: %w", err)
		}
		if affected == 0 {
			return "", store.ErrRevisionMismatch
		}
	} else {
		// Безусловная запись вытесняет текущего победителя, если он есть
		query := `
			DELETE FROM revisions
			WHERE document_id = ? AND revision_token IN (
				SELECT revision_token FROM revisions
				WHERE document_id = ?
				` + winnerOrder + `
				LIMIT 1
			)
		`
		if _, err := tx.ExecContext(ctx, query, record.ID, record.ID); err != nil {
			return "", wrapTransient(fmt.Errorf("failed to supersede winner: %w", err))
		}
	}

	token := uuid.New().String()
	stored := record.Clone()
	stored.RevisionToken = token

	if err := insertRevision(ctx, tx, stored); err != nil {
		return "", err
	}

	if err := tx.Commit(); err != nil {
		return "", wrapTransient(fmt.Errorf("failed to commit revision: %w", err))
	}

	record.RevisionToken = token
	return token, nil
}

// ApplyReplicated ingests a revision received from a peer. The revision
// keeps its token: an unseen token under an existing id becomes a sibling
// revision, a token already present is a no-op. This is the write path
// the store's own replication lands on.
func (s *Storage) ApplyReplicated(ctx context.Context, record *models.Record) error {
	if record.RevisionToken == "" {
		s.replicationErrors.Add(1)
		return fmt.Errorf("replicated revision of %s has no token", record.ID)
	}

	body, err := json.Marshal(record)
	if err != nil {
		s.replicationErrors.Add(1)
		return fmt.Errorf("failed to marshal replicated revision: %w", err)
	}

	query := `
		INSERT OR IGNORE INTO revisions (
			document_id, doc_type, revision_token,
			version, last_modified_at, last_modified_by, body
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		record.ID,
		string(record.Type),
		record.RevisionToken,
		record.Provenance.Version,
		record.Provenance.LastModifiedAt.UnixNano(),
		record.Provenance.LastModifiedBy,
		string(body),
	)
	if err != nil {
		s.replicationErrors.Add(1)
		return wrapTransient(fmt.Errorf("failed to apply replicated revision: %w", err))
	}

	if affected, err := res.RowsAffected(); err == nil && affected > 0 {
		s.replicatedWrites.Add(1)
	}
	return nil
}

// PurgeRevisions permanently removes the named sibling revisions.
// Revisions already gone count as purged (idempotent).
func (s *Storage) PurgeRevisions(ctx context.Context, docType models.DocumentType, id string, revisionTokens []string) error {
	if len(revisionTokens) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(revisionTokens))
	placeholders = placeholders[:len(placeholders)-1]

	query := `
		DELETE FROM revisions
		WHERE doc_type = ? AND document_id = ? AND revision_token IN (` + placeholders + `)`

	args := make([]interface{}, 0, len(revisionTokens)+2)
	args = append(args, string(docType), id)
	for _, token := range revisionTokens {
		args = append(args, token)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return wrapTransient(fmt.Errorf("%w: %w", store.ErrPurgeFailed, err))
	}
	return nil
}

// ScanConflicted invokes fn for every document holding more than one
// revision. The conflicted set is collected and the cursor closed before
// the first callback: callbacks issue their own queries, and an open
// cursor would hold the pool's only connection.
func (s *Storage) ScanConflicted(ctx context.Context, docType models.DocumentType, fn store.ScanFunc) error {
	query := `
		SELECT document_id, doc_type FROM revisions
	`
	args := []interface{}{}
	if docType != "" {
		query += ` WHERE doc_type = ?`
		args = append(args, string(docType))
	}
	query += `
		GROUP BY document_id, doc_type
		HAVING COUNT(*) > 1
	`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return wrapTransient(fmt.Errorf("failed to scan conflicted documents: %w", err))
	}
	defer rows.Close()

	type conflicted struct {
		id      string
		docType models.DocumentType
	}
	var docs []conflicted
	for rows.Next() {
		var id, t string
		if err := rows.Scan(&id, &t); err != nil {
			return fmt.Errorf("failed to scan conflicted row: %w", err)
		}
		docs = append(docs, conflicted{id: id, docType: models.DocumentType(t)})
	}
	if err := rows.Err(); err != nil {
		return wrapTransient(err)
	}
	if err := rows.Close(); err != nil {
		return wrapTransient(fmt.Errorf("failed to close conflicted cursor: %w", err))
	}

	for _, doc := range docs {
		if err := fn(doc.id, doc.docType); err != nil {
			return err
		}
	}
	return nil
}

// NodeStats reports local document and replication counters for the
// peer-facing status endpoint.
func (s *Storage) NodeStats(ctx context.Context) (*store.NodeStats, error) {
	stats := &store.NodeStats{
		ReplicatedWrites:  s.replicatedWrites.Load(),
		ReplicationErrors: s.replicationErrors.Load(),
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(DISTINCT document_id) FROM revisions`,
	).Scan(&stats.TotalDocuments)
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to count documents: %w", err))
	}

	err = s.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM (
			SELECT document_id FROM revisions
			GROUP BY document_id HAVING COUNT(*) > 1
		)
	`).Scan(&stats.ConflictedDocuments)
	if err != nil {
		return nil, wrapTransient(fmt.Errorf("failed to count conflicted documents: %w", err))
	}

	return stats, nil
}

// insertRevision записывает одну ревизию внутри транзакции
func insertRevision(ctx context.Context, tx *sql.Tx, record *models.Record) error {
	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal revision: %w", err)
	}

	query := `
		INSERT INTO revisions (
			document_id, doc_type, revision_token,
			version, last_modified_at, last_modified_by, body
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = tx.ExecContext(ctx, query,
		record.ID,
		string(record.Type),
		record.RevisionToken,
		record.Provenance.Version,
		record.Provenance.LastModifiedAt.UnixNano(),
		record.Provenance.LastModifiedBy,
		string(body),
	)
	if err != nil {
		return wrapTransient(fmt.Errorf("failed to insert revision: %w", err))
	}
	return nil
}

// decodeRecord разбирает JSON тела ревизии
func decodeRecord(body string) (*models.Record, error) {
	var record models.Record
	if err := json.Unmarshal([]byte(body), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal revision body: %w", err)
	}
	return &record, nil
}
