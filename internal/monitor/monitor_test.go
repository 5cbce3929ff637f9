package monitor

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/pkg/api"
)

var pollBase = time.Date(2026, 8, 1, 11, 0, 0, 0, time.UTC)

// fakePeerClient serves canned responses per base URL.
type fakePeerClient struct {
	statuses map[string]*api.NodeStatusResponse
	errs     map[string]error
}

func (c *fakePeerClient) NodeStatus(ctx context.Context, baseURL string) (*api.NodeStatusResponse, error) {
	if err := c.errs[baseURL]; err != nil {
		return nil, err
	}
	if status, ok := c.statuses[baseURL]; ok {
		return status, nil
	}
	return nil, errors.New("no canned response")
}

func selfInstance() models.Instance {
	return models.Instance{ID: "dc1", BaseURL: "http://dc1.local"}
}

func peerInstance(id string) models.Instance {
	return models.Instance{ID: id, BaseURL: "http://" + id + ".local"}
}

func healthyStatus(instance string) *api.NodeStatusResponse {
	return &api.NodeStatusResponse{
		InstanceID:       instance,
		TotalDocuments:   100,
		ReplicatedWrites: 40,
	}
}

func newTestMonitor(t *testing.T, client PeerClient, peers ...models.Instance) *Monitor {
	t.Helper()

	m, err := New(selfInstance(), peers, client, nil, DefaultConfig(), nil)
	require.NoError(t, err)
	m.now = func() time.Time { return pollBase }
	return m
}

func TestPoll_SuccessActivatesLink(t *testing.T) {
	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{
			"http://dc2.local": healthyStatus("dc2"),
		},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))

	require.NoError(t, m.Poll(context.Background()))

	links := m.Links()
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkActive, links[0].State)
	assert.Equal(t, "dc1", links[0].SourceInstance)
	assert.Equal(t, "dc2", links[0].TargetInstance)
	assert.Equal(t, int64(40), links[0].DocsWritten)
	assert.Equal(t, int64(100), links[0].DocsRead)
	assert.Equal(t, pollBase, links[0].LastObservedAt)
	assert.Equal(t, 0, links[0].ConsecutiveFailures)
}

func TestPoll_UnreachableAfterThreshold(t *testing.T) {
	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{
			"http://dc2.local": healthyStatus("dc2"),
		},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))
	require.NoError(t, m.Poll(context.Background()))
	require.Equal(t, models.LinkActive, m.Links()[0].State)

	client.errs = map[string]error{"http://dc2.local": errors.New("connection refused")}

	// Две неудачи подряд еще не unreachable
	require.NoError(t, m.Poll(context.Background()))
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkActive, m.Links()[0].State)
	assert.Equal(t, 2, m.Links()[0].ConsecutiveFailures)

	// Третья переводит связь в unreachable
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkUnreachable, m.Links()[0].State)
}

func TestPoll_SuccessResetsFailures(t *testing.T) {
	client := &fakePeerClient{
		errs: map[string]error{"http://dc2.local": errors.New("connection refused")},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.Poll(context.Background()))
	}
	require.Equal(t, models.LinkUnreachable, m.Links()[0].State)

	// Один успешный опрос возвращает связь в active
	client.errs = nil
	client.statuses = map[string]*api.NodeStatusResponse{
		"http://dc2.local": healthyStatus("dc2"),
	}
	require.NoError(t, m.Poll(context.Background()))

	link := m.Links()[0]
	assert.Equal(t, models.LinkActive, link.State)
	assert.Equal(t, 0, link.ConsecutiveFailures)
}

func TestPoll_ErrorDeltaDegradesLink(t *testing.T) {
	status := healthyStatus("dc2")
	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{"http://dc2.local": status},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))

	require.NoError(t, m.Poll(context.Background()))
	require.Equal(t, models.LinkActive, m.Links()[0].State)

	// Пир отчитался о новых ошибках репликации с прошлого опроса
	status.ReplicationErrors = 2
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkDegraded, m.Links()[0].State)

	// Ошибки не растут: связь снова active
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkActive, m.Links()[0].State)
}

func TestPoll_FirstPollSeedsErrorBaseline(t *testing.T) {
	// Пир прожил долгую жизнь и накопил ошибки задолго до нашего старта
	status := healthyStatus("dc2")
	status.ReplicationErrors = 1000
	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{"http://dc2.local": status},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))

	// Первый опрос фиксирует базу, накопленный счетчик не деградирует связь
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkActive, m.Links()[0].State)

	// Без новых ошибок связь остается active
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkActive, m.Links()[0].State)

	// Прирост относительно базы деградирует связь
	status.ReplicationErrors = 1001
	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkDegraded, m.Links()[0].State)
}

func TestPoll_ConflictBacklogDegradesLink(t *testing.T) {
	status := healthyStatus("dc2")
	status.OpenConflicts = 50
	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{"http://dc2.local": status},
	}
	m := newTestMonitor(t, client, peerInstance("dc2"))

	require.NoError(t, m.Poll(context.Background()))
	assert.Equal(t, models.LinkDegraded, m.Links()[0].State)
}

func TestAggregateState(t *testing.T) {
	tests := []struct {
		name   string
		states map[string]models.LinkState
		want   models.LinkState
	}{
		{
			name:   "all active",
			states: map[string]models.LinkState{"dc2": models.LinkActive, "dc3": models.LinkActive},
			want:   models.LinkActive,
		},
		{
			name:   "all unreachable",
			states: map[string]models.LinkState{"dc2": models.LinkUnreachable, "dc3": models.LinkUnreachable},
			want:   models.LinkUnreachable,
		},
		{
			name:   "mixed",
			states: map[string]models.LinkState{"dc2": models.LinkActive, "dc3": models.LinkUnreachable},
			want:   models.LinkDegraded,
		},
		{
			name:   "one degraded",
			states: map[string]models.LinkState{"dc2": models.LinkActive, "dc3": models.LinkDegraded},
			want:   models.LinkDegraded,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMonitor(t, &fakePeerClient{}, peerInstance("dc2"), peerInstance("dc3"))
			m.mu.Lock()
			for id, state := range tt.states {
				m.links[id].State = state
			}
			m.mu.Unlock()

			assert.Equal(t, tt.want, m.AggregateState())
		})
	}
}

func TestAggregateState_NoPeers(t *testing.T) {
	m := newTestMonitor(t, &fakePeerClient{})
	assert.Equal(t, models.LinkActive, m.AggregateState())
}

func TestMonitor_RestoresSnapshots(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "links.db")

	snapshots, err := NewSnapshotStore(ctx, dbPath)
	require.NoError(t, err)

	client := &fakePeerClient{
		statuses: map[string]*api.NodeStatusResponse{
			"http://dc2.local": healthyStatus("dc2"),
		},
	}
	m, err := New(selfInstance(), []models.Instance{peerInstance("dc2")}, client, snapshots, DefaultConfig(), nil)
	require.NoError(t, err)
	require.NoError(t, m.Poll(ctx))
	require.NoError(t, snapshots.Close())

	// Перезапуск: состояние связи восстанавливается из снапшота
	snapshots, err = NewSnapshotStore(ctx, dbPath)
	require.NoError(t, err)
	defer snapshots.Close()

	restarted, err := New(selfInstance(), []models.Instance{peerInstance("dc2")}, client, snapshots, DefaultConfig(), nil)
	require.NoError(t, err)

	links := restarted.Links()
	require.Len(t, links, 1)
	assert.Equal(t, models.LinkActive, links[0].State)
	assert.Equal(t, int64(40), links[0].DocsWritten)
}

func TestSnapshotStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewSnapshotStore(ctx, filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	defer s.Close()

	missing, err := s.GetLink(ctx, "dc2")
	require.NoError(t, err)
	assert.Nil(t, missing)

	link := &models.ReplicationLink{
		SourceInstance: "dc1",
		TargetInstance: "dc2",
		State:          models.LinkDegraded,
		DocsWritten:    7,
		LastObservedAt: pollBase,
	}
	require.NoError(t, s.SaveLink(ctx, link))

	got, err := s.GetLink(ctx, "dc2")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.LinkDegraded, got.State)
	assert.Equal(t, int64(7), got.DocsWritten)

	all, err := s.ListLinks(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
