package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

var dbBase = time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()

	s, err := New(context.Background(), filepath.Join(t.TempDir(), "authdir.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func userRecord(id, token, instance string, version int64, age time.Duration) *models.Record {
	return &models.Record{
		ID:            id,
		Type:          models.TypeUser,
		RevisionToken: token,
		User: &models.UserFields{
			Username: "alice",
			Email:    "alice@example.com",
			Groups:   []string{"engineering"},
			Enabled:  true,
		},
		Provenance: models.Provenance{
			CreatedAt:      dbBase.Add(-24 * time.Hour),
			CreatedBy:      "dc1",
			LastModifiedAt: dbBase.Add(-age),
			LastModifiedBy: instance,
			Version:        version,
		},
	}
}

func TestPutAndGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := userRecord("user-1", "", "dc1", 1, time.Hour)
	token, err := s.Put(ctx, record, "")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, token, record.RevisionToken)

	got, err := s.Get(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	assert.Equal(t, token, got.RevisionToken)
	assert.Equal(t, "alice", got.User.Username)
	assert.Equal(t, "dc1", got.Provenance.LastModifiedBy)
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.Get(context.Background(), models.TypeUser, "missing")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestPut_SupersedesExpected(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	first := userRecord("user-1", "", "dc1", 1, 2*time.Hour)
	firstToken, err := s.Put(ctx, first, "")
	require.NoError(t, err)

	second := userRecord("user-1", "", "dc1", 2, time.Hour)
	second.User.Email = "alice@corp.example.com"
	secondToken, err := s.Put(ctx, second, firstToken)
	require.NoError(t, err)
	assert.NotEqual(t, firstToken, secondToken)

	winner, siblings, err := s.GetWithConflicts(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	assert.Empty(t, siblings)
	assert.Equal(t, secondToken, winner.RevisionToken)
	assert.Equal(t, "alice@corp.example.com", winner.User.Email)
}

func TestPut_RevisionMismatch(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.Put(ctx, userRecord("user-1", "", "dc1", 1, time.Hour), "")
	require.NoError(t, err)

	_, err = s.Put(ctx, userRecord("user-1", "", "dc1", 2, time.Hour), "stale-token")
	assert.ErrorIs(t, err, store.ErrRevisionMismatch)
}

func TestApplyReplicated_CreatesSibling(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 2, 2*time.Hour)))

	divergent := userRecord("user-1", "rev-b", "dc2", 2, time.Hour)
	divergent.User.Groups = []string{"engineering", "oncall"}
	require.NoError(t, s.ApplyReplicated(ctx, divergent))

	winner, siblings, err := s.GetWithConflicts(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	require.Len(t, siblings, 1)

	// Победитель детерминирован: при равных версиях выигрывает свежая
	assert.Equal(t, "rev-b", winner.RevisionToken)
	assert.Equal(t, "rev-a", siblings[0].RevisionToken)
}

func TestApplyReplicated_WinnerByVersion(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	// Старшая версия побеждает даже при более раннем времени правки
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 5, 3*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-b", "dc2", 3, time.Hour)))

	winner, _, err := s.GetWithConflicts(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "rev-a", winner.RevisionToken)
}

func TestApplyReplicated_IdempotentByToken(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := userRecord("user-1", "rev-a", "dc1", 2, time.Hour)
	require.NoError(t, s.ApplyReplicated(ctx, record))
	require.NoError(t, s.ApplyReplicated(ctx, record))

	_, siblings, err := s.GetWithConflicts(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	assert.Empty(t, siblings)

	stats, err := s.NodeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ReplicatedWrites)
}

func TestApplyReplicated_NoToken(t *testing.T) {
	s := newTestStorage(t)

	err := s.ApplyReplicated(context.Background(), userRecord("user-1", "", "dc1", 1, time.Hour))
	require.Error(t, err)

	stats, err := s.NodeStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.ReplicationErrors)
}

func TestPurgeRevisions(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 2, 2*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-b", "dc2", 2, time.Hour)))

	// Отсутствующий токен не ошибка: purge идемпотентен
	err := s.PurgeRevisions(ctx, models.TypeUser, "user-1", []string{"rev-a", "rev-gone"})
	require.NoError(t, err)

	winner, siblings, err := s.GetWithConflicts(ctx, models.TypeUser, "user-1")
	require.NoError(t, err)
	assert.Empty(t, siblings)
	assert.Equal(t, "rev-b", winner.RevisionToken)
}

func TestScanConflicted(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 2, 2*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-b", "dc2", 2, time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-2", "rev-c", "dc1", 1, time.Hour)))

	var hits []string
	err := s.ScanConflicted(ctx, models.TypeUser, func(id string, docType models.DocumentType) error {
		hits = append(hits, id)
		assert.Equal(t, models.TypeUser, docType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"user-1"}, hits)
}

func TestScanConflicted_NestedQueriesInCallback(t *testing.T) {
	s := newTestStorage(t)

	// Таймаут превращает зависание вложенного запроса в ошибку теста:
	// пул ограничен одним соединением, и курсор скана не должен держать
	// его во время callback
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 2, 2*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-b", "dc2", 2, time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-2", "rev-c", "dc1", 2, 2*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-2", "rev-d", "dc2", 2, time.Hour)))

	var seen []string
	err := s.ScanConflicted(ctx, "", func(id string, docType models.DocumentType) error {
		winner, siblings, err := s.GetWithConflicts(ctx, docType, id)
		if err != nil {
			return err
		}
		require.Len(t, siblings, 1)
		require.NotNil(t, winner)
		seen = append(seen, id)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"user-1", "user-2"}, seen)
}

func TestNodeStats(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-a", "dc1", 2, 2*time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-1", "rev-b", "dc2", 2, time.Hour)))
	require.NoError(t, s.ApplyReplicated(ctx, userRecord("user-2", "rev-c", "dc1", 1, time.Hour)))

	stats, err := s.NodeStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalDocuments)
	assert.Equal(t, int64(1), stats.ConflictedDocuments)
	assert.Equal(t, int64(3), stats.ReplicatedWrites)
}

func conflictRecord(id, documentID string, detected time.Time) *models.ConflictRecord {
	return &models.ConflictRecord{
		ID:           id,
		DocumentID:   documentID,
		DocumentType: models.TypeUser,
		Kind:         models.KindGroupConflict,
		Status:       models.StatusUnresolved,
		DetectedAt:   detected,
		Revisions: []*models.Record{
			userRecord(documentID, "rev-a", "dc1", 2, 2*time.Hour),
			userRecord(documentID, "rev-b", "dc2", 2, time.Hour),
		},
	}
}

func TestSaveAndGetConflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := conflictRecord("conflict-1", "user-1", dbBase)
	require.NoError(t, s.SaveConflict(ctx, record))

	got, err := s.GetConflict(ctx, "conflict-1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.DocumentID)
	assert.Equal(t, models.KindGroupConflict, got.Kind)
	assert.Equal(t, models.StatusUnresolved, got.Status)
	require.Len(t, got.Revisions, 2)
	assert.Equal(t, "rev-a", got.Revisions[0].RevisionToken)
}

func TestGetConflict_NotFound(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetConflict(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestSaveConflict_OpenUniqueness(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-1", "user-1", dbBase)))

	// Вторая открытая запись для того же документа запрещена
	err := s.SaveConflict(ctx, conflictRecord("conflict-2", "user-1", dbBase.Add(time.Minute)))
	assert.ErrorIs(t, err, store.ErrOpenConflictExists)

	// После резолюции документ снова может получить запись
	resolved := conflictRecord("conflict-1", "user-1", dbBase)
	resolved.Status = models.StatusResolved
	require.NoError(t, s.UpdateConflict(ctx, resolved))
	assert.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-3", "user-1", dbBase.Add(2*time.Minute))))
}

func TestGetOpenConflictByDocument(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	_, err := s.GetOpenConflictByDocument(ctx, "user-1")
	assert.ErrorIs(t, err, store.ErrConflictNotFound)

	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-1", "user-1", dbBase)))

	got, err := s.GetOpenConflictByDocument(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "conflict-1", got.ID)
}

func TestUpdateConflict(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	record := conflictRecord("conflict-1", "user-1", dbBase)
	require.NoError(t, s.SaveConflict(ctx, record))

	record.Status = models.StatusResolved
	record.Resolution = &models.Resolution{
		ResolvedAt:          dbBase.Add(time.Hour),
		Strategy:            models.StrategyChooseWinner,
		ResolvingInstance:   "dc1",
		ResultingRevisionID: "rev-new",
	}
	require.NoError(t, s.UpdateConflict(ctx, record))

	got, err := s.GetConflict(ctx, "conflict-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusResolved, got.Status)
	require.NotNil(t, got.Resolution)
	assert.Equal(t, "rev-new", got.Resolution.ResultingRevisionID)
}

func TestUpdateConflict_NotFound(t *testing.T) {
	s := newTestStorage(t)

	err := s.UpdateConflict(context.Background(), conflictRecord("missing", "user-1", dbBase))
	assert.ErrorIs(t, err, store.ErrConflictNotFound)
}

func TestListConflicts(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-1", "user-1", dbBase)))
	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-2", "user-2", dbBase.Add(time.Minute))))

	records, err := s.ListConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, records, 2)
	// Свежие записи первыми
	assert.Equal(t, "conflict-2", records[0].ID)
	assert.Equal(t, "conflict-1", records[1].ID)
}

func TestConflictStats(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-1", "user-1", dbBase)))
	require.NoError(t, s.SaveConflict(ctx, conflictRecord("conflict-2", "user-2", dbBase.Add(time.Minute))))

	resolved := conflictRecord("conflict-2", "user-2", dbBase.Add(time.Minute))
	resolved.Status = models.StatusResolved
	require.NoError(t, s.UpdateConflict(ctx, resolved))

	stats, err := s.ConflictStats(ctx)
	require.NoError(t, err)
	// Total и ByKind считают все записи, включая разрешенные
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 2, stats.ByKind[models.KindGroupConflict])
	// Открытой осталась одна
	assert.Equal(t, 1, stats.RequiresManualResolution)
}
