package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
	"github.com/iudanet/authdir/pkg/api"
)

// LinkProvider exposes the monitor's current view of the peer links.
type LinkProvider interface {
	Links() []*models.ReplicationLink
	AggregateState() models.LinkState
}

// ReplicationIngest accepts revisions replicated from a peer, keeping
// their provenance and revision tokens intact.
type ReplicationIngest interface {
	ApplyReplicated(ctx context.Context, record *models.Record) error
}

// ReplicationHandler обрабатывает запросы статуса и приема репликации
type ReplicationHandler struct {
	logger     *slog.Logger
	instanceID string
	links      LinkProvider
	stats      store.StatsProvider
	conflicts  store.ConflictStorage
	ingest     ReplicationIngest
	now        func() time.Time
}

// NewReplicationHandler создает новый handler для репликации
func NewReplicationHandler(logger *slog.Logger, instanceID string, links LinkProvider, stats store.StatsProvider, conflicts store.ConflictStorage, ingest ReplicationIngest) *ReplicationHandler {
	return &ReplicationHandler{
		logger:     logger,
		instanceID: instanceID,
		links:      links,
		stats:      stats,
		conflicts:  conflicts,
		ingest:     ingest,
		now:        time.Now,
	}
}

// Status обрабатывает GET /api/v1/replication/status
// Агрегированный статус репликации для admin API
func (h *ReplicationHandler) Status(w http.ResponseWriter, r *http.Request) {
	resp := api.ReplicationStatusResponse{
		Instance: h.instanceID,
		State:    string(h.links.AggregateState()),
		Links:    []api.LinkView{},
	}
	for _, link := range h.links.Links() {
		resp.Links = append(resp.Links, api.LinkView{
			SourceInstance:      link.SourceInstance,
			TargetInstance:      link.TargetInstance,
			State:               string(link.State),
			ConsecutiveFailures: link.ConsecutiveFailures,
			DocsRead:            link.DocsRead,
			DocsWritten:         link.DocsWritten,
			LastObservedAt:      link.LastObservedAt,
		})
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Node обрабатывает GET /api/v1/replication/node
// Статус локального узла: этот endpoint опрашивают мониторы пиров
func (h *ReplicationHandler) Node(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.stats.NodeStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to collect node stats", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	conflictStats, err := h.conflicts.ConflictStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to aggregate conflict stats", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.NodeStatusResponse{
		InstanceID:          h.instanceID,
		Timestamp:           h.now(),
		TotalDocuments:      stats.TotalDocuments,
		ConflictedDocuments: stats.ConflictedDocuments,
		OpenConflicts:       int64(conflictStats.RequiresManualResolution),
		ReplicatedWrites:    stats.ReplicatedWrites,
		ReplicationErrors:   stats.ReplicationErrors,
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Apply обрабатывает POST /api/v1/replication/apply
// Прием пакета ревизий от пира; существующие ревизии игнорируются
func (h *ReplicationHandler) Apply(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req api.ReplicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode replicate request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}

	resp := api.ReplicateResponse{}
	for _, wire := range req.Revisions {
		record, err := decodeReplicatedRevision(wire)
		if err != nil {
			h.logger.WarnContext(ctx, "rejected replicated revision",
				slog.String("document_id", wire.DocumentID),
				slog.String("source", req.SourceInstance),
				slog.Any("error", err))
			resp.Failed++
			continue
		}
		if err := h.ingest.ApplyReplicated(ctx, record); err != nil {
			h.logger.ErrorContext(ctx, "failed to apply replicated revision",
				slog.String("document_id", wire.DocumentID),
				slog.String("source", req.SourceInstance),
				slog.Any("error", err))
			resp.Failed++
			continue
		}
		resp.Accepted++
	}

	h.logger.InfoContext(ctx, "replication batch applied",
		slog.String("source", req.SourceInstance),
		slog.Int("accepted", resp.Accepted),
		slog.Int("failed", resp.Failed))
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// decodeReplicatedRevision converts one wire revision to a model record.
func decodeReplicatedRevision(wire api.ReplicatedRevision) (*models.Record, error) {
	env := struct {
		ID            string            `json:"id"`
		Type          string            `json:"type"`
		RevisionToken string            `json:"revision_token"`
		Provenance    models.Provenance `json:"provenance"`
		Fields        json.RawMessage   `json:"fields"`
	}{
		ID:            wire.DocumentID,
		Type:          wire.DocumentType,
		RevisionToken: wire.RevisionToken,
		Provenance: models.Provenance{
			CreatedAt:      wire.CreatedAt,
			LastModifiedAt: wire.LastModifiedAt,
			CreatedBy:      wire.CreatedBy,
			LastModifiedBy: wire.LastModifiedBy,
			Version:        wire.Version,
		},
		Fields: wire.Fields,
	}

	data, err := json.Marshal(env)
	if err != nil {
		return nil, err
	}
	record := &models.Record{}
	if err := record.UnmarshalJSON(data); err != nil {
		return nil, err
	}
	return record, nil
}
