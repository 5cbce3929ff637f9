package scanner

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/provenance"
	"github.com/iudanet/authdir/internal/store"
	"github.com/iudanet/authdir/internal/store/memory"
	"github.com/iudanet/authdir/internal/store/sqlite"
)

var scanBase = time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)

// seedStorage is the storage surface the seed helpers need: the engine
// contracts plus the replication ingest path both concrete stores expose.
type seedStorage interface {
	store.Storage
	ApplyReplicated(ctx context.Context, record *models.Record) error
}

func newTestScanner(storage *memory.Store) *Scanner {
	tagger := provenance.NewTagger("dc-scan", storage)
	s := New(storage, tagger, nil)
	s.now = func() time.Time { return scanBase }
	s.newID = func() string { return "conflict-test" }
	return s
}

func seedUserRevision(t *testing.T, storage seedStorage, id, token, instance string, age time.Duration, groups []string) {
	t.Helper()

	record := &models.Record{
		ID:            id,
		Type:          models.TypeUser,
		RevisionToken: token,
		User: &models.UserFields{
			Username: "alice",
			Email:    "alice@example.com",
			Groups:   groups,
			Enabled:  true,
		},
		Provenance: models.Provenance{
			CreatedAt:      scanBase.Add(-24 * time.Hour),
			CreatedBy:      "dc1",
			LastModifiedAt: scanBase.Add(-age),
			LastModifiedBy: instance,
			Version:        2,
		},
	}
	require.NoError(t, storage.ApplyReplicated(context.Background(), record))
}

func seedClientRevision(t *testing.T, storage seedStorage, id, token, instance string, age time.Duration, redirectURIs []string) {
	t.Helper()

	record := &models.Record{
		ID:            id,
		Type:          models.TypeClient,
		RevisionToken: token,
		Client: &models.ClientFields{
			Name:         "webapp",
			RedirectURIs: redirectURIs,
			GrantTypes:   []string{"authorization_code"},
			Scopes:       []string{"openid"},
		},
		Provenance: models.Provenance{
			CreatedAt:      scanBase.Add(-24 * time.Hour),
			CreatedBy:      "dc1",
			LastModifiedAt: scanBase.Add(-age),
			LastModifiedBy: instance,
			Version:        2,
		},
	}
	require.NoError(t, storage.ApplyReplicated(context.Background(), record))
}

func TestRun_FilesConflict(t *testing.T) {
	storage := memory.New()
	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", 2*time.Hour, []string{"engineering"})
	seedUserRevision(t, storage, "user-1", "rev-b", "dc2", time.Hour, []string{"engineering", "oncall"})

	s := newTestScanner(storage)
	result, err := s.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Detected)
	assert.Equal(t, 0, result.Skipped)
	assert.Equal(t, 0, result.Failed)

	record, err := storage.GetOpenConflictByDocument(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "conflict-test", record.ID)
	assert.Equal(t, models.TypeUser, record.DocumentType)
	assert.Equal(t, models.KindGroupConflict, record.Kind)
	assert.Equal(t, models.StatusUnresolved, record.Status)
	assert.Equal(t, scanBase, record.DetectedAt)
	assert.Equal(t, "dc-scan", record.Provenance.LastModifiedBy)

	// Ревизии сохранены в tie-break порядке: свежая первой
	require.Len(t, record.Revisions, 2)
	assert.Equal(t, "rev-b", record.Revisions[0].RevisionToken)
	assert.Equal(t, "rev-a", record.Revisions[1].RevisionToken)
}

func TestRun_ClassifiesClientConfig(t *testing.T) {
	storage := memory.New()
	seedClientRevision(t, storage, "client-1", "rev-a", "dc1", 2*time.Hour, []string{"https://app.example.com/callback"})
	seedClientRevision(t, storage, "client-1", "rev-b", "dc2", time.Hour, []string{"https://other.example.com/cb"})

	s := newTestScanner(storage)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Detected)

	record, err := storage.GetOpenConflictByDocument(context.Background(), "client-1")
	require.NoError(t, err)
	assert.Equal(t, models.KindClientConfigConflict, record.Kind)
}

func TestRun_SkipsAlreadyFiled(t *testing.T) {
	storage := memory.New()
	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", 2*time.Hour, []string{"engineering"})
	seedUserRevision(t, storage, "user-1", "rev-b", "dc2", time.Hour, []string{"oncall"})

	s := newTestScanner(storage)
	_, err := s.Run(context.Background())
	require.NoError(t, err)

	// Повторный проход видит открытую запись и не заводит дубликат
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 0, result.Detected)
	assert.Equal(t, 1, result.Skipped)

	records, err := storage.ListConflicts(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestRun_IgnoresSingleRevision(t *testing.T) {
	storage := memory.New()
	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", time.Hour, []string{"engineering"})

	s := newTestScanner(storage)
	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Scanned)
	assert.Equal(t, 0, result.Detected)

	_, err = storage.GetOpenConflictByDocument(context.Background(), "user-1")
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestRun_MultipleDocuments(t *testing.T) {
	storage := memory.New()
	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", 2*time.Hour, []string{"engineering"})
	seedUserRevision(t, storage, "user-1", "rev-b", "dc2", time.Hour, []string{"oncall"})
	seedClientRevision(t, storage, "client-1", "rev-c", "dc1", 2*time.Hour, []string{"https://app.example.com/callback"})
	seedClientRevision(t, storage, "client-1", "rev-d", "dc2", time.Hour, []string{"https://other.example.com/cb"})

	s := newTestScanner(storage)
	ids := []string{"conflict-1", "conflict-2"}
	s.newID = func() string {
		id := ids[0]
		ids = ids[1:]
		return id
	}

	result, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Scanned)
	assert.Equal(t, 2, result.Detected)

	records, err := storage.ListConflicts(context.Background())
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestRun_SQLiteStorage(t *testing.T) {
	// Таймаут превращает зависание скана в ошибку теста: callback выполняет
	// вложенные запросы на пуле из одного соединения
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	storage, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "authdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close() })

	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", 2*time.Hour, []string{"engineering"})
	seedUserRevision(t, storage, "user-1", "rev-b", "dc2", time.Hour, []string{"engineering", "oncall"})

	tagger := provenance.NewTagger("dc-scan", storage)
	s := New(storage, tagger, nil)
	s.now = func() time.Time { return scanBase }
	s.newID = func() string { return "conflict-sqlite" }

	result, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Scanned)
	assert.Equal(t, 1, result.Detected)
	assert.Equal(t, 0, result.Failed)

	record, err := storage.GetOpenConflictByDocument(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, models.KindGroupConflict, record.Kind)
	require.Len(t, record.Revisions, 2)
	assert.Equal(t, "rev-b", record.Revisions[0].RevisionToken)

	// Повторный проход видит открытую запись и не заводит дубликат
	again, err := s.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, again.Detected)
	assert.Equal(t, 1, again.Skipped)
}

func TestRun_StoreScanError(t *testing.T) {
	storage := memory.New()
	storage.ScanErr = assert.AnError

	s := newTestScanner(storage)
	_, err := s.Run(context.Background())
	assert.ErrorIs(t, err, assert.AnError)
}

func TestRun_ContextCancelled(t *testing.T) {
	storage := memory.New()
	seedUserRevision(t, storage, "user-1", "rev-a", "dc1", 2*time.Hour, []string{"engineering"})
	seedUserRevision(t, storage, "user-1", "rev-b", "dc2", time.Hour, []string{"oncall"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := newTestScanner(storage)
	_, err := s.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
