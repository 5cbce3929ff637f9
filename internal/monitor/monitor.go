// Package monitor tracks the health of replication towards every
// configured peer. It polls each peer's node-status endpoint on a fixed
// interval and maintains one ReplicationLink per peer: three consecutive
// poll failures mark a link unreachable, a single success brings it back.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iudanet/authdir/internal/models"
)

// DefaultFailureThreshold is the number of consecutive poll failures
// after which a link is declared unreachable.
const DefaultFailureThreshold = 3

// Config tunes link state transitions.
type Config struct {
	// FailureThreshold: столько подряд неудачных опросов переводят
	// связь в unreachable
	FailureThreshold int
	// ErrorDelta: прирост ошибок репликации пира между опросами,
	// начиная с которого связь считается degraded
	ErrorDelta int64
	// ConflictBacklog: открытых конфликтов у пира, начиная с которого
	// связь считается degraded
	ConflictBacklog int64
}

// DefaultConfig returns the thresholds used when none are configured.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		ErrorDelta:       1,
		ConflictBacklog:  50,
	}
}

// Monitor polls peers and owns the per-peer link state.
type Monitor struct {
	client    PeerClient
	snapshots *SnapshotStore
	logger    *slog.Logger
	now       func() time.Time
	cfg       Config
	self      models.Instance
	peers     []models.Instance

	mu         sync.RWMutex
	links      map[string]*models.ReplicationLink
	lastErrors map[string]int64 // последний отчет пира об ошибках репликации
}

// New creates a monitor for the given peer set. Previously persisted
// link snapshots, if any, seed the initial state.
func New(self models.Instance, peers []models.Instance, client PeerClient, snapshots *SnapshotStore, cfg Config, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}

	m := &Monitor{
		client:     client,
		snapshots:  snapshots,
		logger:     logger,
		now:        time.Now,
		cfg:        cfg,
		self:       self,
		peers:      peers,
		links:      make(map[string]*models.ReplicationLink, len(peers)),
		lastErrors: make(map[string]int64, len(peers)),
	}

	for _, peer := range peers {
		link, err := m.restoreLink(peer.ID)
		if err != nil {
			return nil, err
		}
		m.links[peer.ID] = link
	}
	return m, nil
}

// restoreLink loads the persisted snapshot for one peer, or starts fresh.
func (m *Monitor) restoreLink(peerID string) (*models.ReplicationLink, error) {
	if m.snapshots != nil {
		link, err := m.snapshots.GetLink(context.Background(), peerID)
		if err != nil {
			return nil, fmt.Errorf("failed to restore link snapshot: %w", err)
		}
		if link != nil {
			return link, nil
		}
	}
	// Пир еще ни разу не опрашивался: считаем связь недоступной,
	// первый успешный опрос переведет ее в active
	return &models.ReplicationLink{
		SourceInstance: m.self.ID,
		TargetInstance: peerID,
		State:          models.LinkUnreachable,
	}, nil
}

// Poll runs one polling pass over every configured peer. Peer failures
// are recorded in link state, not returned: the pass always completes.
func (m *Monitor) Poll(ctx context.Context) error {
	for _, peer := range m.peers {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.pollPeer(ctx, peer)
	}
	return nil
}

func (m *Monitor) pollPeer(ctx context.Context, peer models.Instance) {
	status, err := m.client.NodeStatus(ctx, peer.BaseURL)

	m.mu.Lock()
	link := m.links[peer.ID]
	if err != nil {
		link.ConsecutiveFailures++
		if link.ConsecutiveFailures >= m.cfg.FailureThreshold {
			if link.State != models.LinkUnreachable {
				m.logger.Warn("Replication link unreachable",
					"peer", peer.ID,
					"consecutive_failures", link.ConsecutiveFailures,
				)
			}
			link.State = models.LinkUnreachable
		}
		link.LastObservedAt = m.now()
		m.logger.Debug("Peer poll failed", "peer", peer.ID, "error", err)
	} else {
		prevState := link.State
		link.ConsecutiveFailures = 0
		link.LastObservedAt = m.now()
		link.DocsWritten = status.ReplicatedWrites
		link.DocsRead = status.TotalDocuments

		link.State = models.LinkActive
		// Пир доступен, но сам сообщает о проблемах репликации. Деградацию
		// определяет прирост счетчика между опросами: первый успешный опрос
		// лишь фиксирует базу, накопленные за все время ошибки не в счет
		if last, seen := m.lastErrors[peer.ID]; seen {
			if delta := status.ReplicationErrors - last; m.cfg.ErrorDelta > 0 && delta >= m.cfg.ErrorDelta {
				link.State = models.LinkDegraded
			}
		}
		if m.cfg.ConflictBacklog > 0 && status.OpenConflicts >= m.cfg.ConflictBacklog {
			link.State = models.LinkDegraded
		}
		m.lastErrors[peer.ID] = status.ReplicationErrors

		if prevState != link.State {
			m.logger.Info("Replication link state changed",
				"peer", peer.ID,
				"from", prevState,
				"to", link.State,
			)
		}
	}
	snapshot := link.Clone()
	m.mu.Unlock()

	if m.snapshots != nil {
		if err := m.snapshots.SaveLink(ctx, snapshot); err != nil {
			m.logger.Error("Failed to persist link snapshot", "peer", peer.ID, "error", err)
		}
	}
}

// Links returns a copy of every link's current state, ordered as the
// peers are configured.
func (m *Monitor) Links() []*models.ReplicationLink {
	m.mu.RLock()
	defer m.mu.RUnlock()

	links := make([]*models.ReplicationLink, 0, len(m.peers))
	for _, peer := range m.peers {
		links = append(links, m.links[peer.ID].Clone())
	}
	return links
}

// AggregateState collapses the per-link states into one node-level
// replication state: active only when every link is active, unreachable
// only when every link is unreachable, degraded otherwise. A node
// without peers is trivially active.
func (m *Monitor) AggregateState() models.LinkState {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.peers) == 0 {
		return models.LinkActive
	}

	active, unreachable := 0, 0
	for _, peer := range m.peers {
		switch m.links[peer.ID].State {
		case models.LinkActive:
			active++
		case models.LinkUnreachable:
			unreachable++
		}
	}
	switch {
	case active == len(m.peers):
		return models.LinkActive
	case unreachable == len(m.peers):
		return models.LinkUnreachable
	default:
		return models.LinkDegraded
	}
}
