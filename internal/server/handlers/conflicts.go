package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/iudanet/authdir/internal/engine"
	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/scanner"
	"github.com/iudanet/authdir/internal/store"
	"github.com/iudanet/authdir/pkg/api"
)

// Resolver applies a resolution strategy to a conflict record.
type Resolver interface {
	Resolve(ctx context.Context, conflictID, strategy string, params engine.ResolveParams) (*models.ConflictRecord, error)
}

// DetectionRunner triggers one out-of-schedule detection pass.
type DetectionRunner interface {
	Run(ctx context.Context) (*scanner.Result, error)
}

// ConflictsHandler обрабатывает запросы admin API по конфликтам
type ConflictsHandler struct {
	logger   *slog.Logger
	storage  store.ConflictStorage
	resolver Resolver
	detector DetectionRunner
}

// NewConflictsHandler создает новый handler для конфликтов
func NewConflictsHandler(logger *slog.Logger, storage store.ConflictStorage, resolver Resolver, detector DetectionRunner) *ConflictsHandler {
	return &ConflictsHandler{
		logger:   logger,
		storage:  storage,
		resolver: resolver,
		detector: detector,
	}
}

// Stats обрабатывает GET /api/v1/conflicts/stats
// Сводка по конфликтам для дашборда
func (h *ConflictsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stats, err := h.storage.ConflictStats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to aggregate conflict stats", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ConflictStatsResponse{
		ByKind:                   make(map[string]int, len(stats.ByKind)),
		Total:                    stats.Total,
		RequiresManualResolution: stats.RequiresManualResolution,
	}
	for kind, count := range stats.ByKind {
		resp.ByKind[string(kind)] = count
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// List обрабатывает GET /api/v1/conflicts
// Список конфликтов, опционально отфильтрованный по status и kind
func (h *ConflictsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	records, err := h.storage.ListConflicts(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list conflicts", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	status := r.URL.Query().Get("status")
	kind := r.URL.Query().Get("kind")

	resp := api.ConflictListResponse{Conflicts: []api.ConflictSummary{}}
	for _, rec := range records {
		if status != "" && string(rec.Status) != status {
			continue
		}
		if kind != "" && string(rec.Kind) != kind {
			continue
		}
		resp.Conflicts = append(resp.Conflicts, api.ConflictSummary{
			ID:           rec.ID,
			DocumentID:   rec.DocumentID,
			DocumentType: string(rec.DocumentType),
			Kind:         string(rec.Kind),
			Status:       string(rec.Status),
			DetectedAt:   rec.DetectedAt,
			Revisions:    len(rec.Revisions),
		})
	}
	resp.Total = len(resp.Conflicts)
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// Get обрабатывает GET /api/v1/conflicts/{id}
// Полная запись конфликта со всеми ревизиями
func (h *ConflictsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if id == "" {
		sendError(h.logger, w, "conflict id is required", http.StatusBadRequest)
		return
	}

	record, err := h.storage.GetConflict(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrConflictNotFound) {
			sendError(h.logger, w, "conflict not found", http.StatusNotFound)
			return
		}
		h.logger.ErrorContext(ctx, "failed to get conflict", slog.String("conflict_id", id), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	detail, err := conflictDetail(record)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render conflict", slog.String("conflict_id", id), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	sendJSON(h.logger, w, detail, http.StatusOK)
}

// Resolve обрабатывает POST /api/v1/conflicts/{id}/resolve
// Применение стратегии разрешения к конфликту
func (h *ConflictsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	id := r.PathValue("id")
	if id == "" {
		sendError(h.logger, w, "conflict id is required", http.StatusBadRequest)
		return
	}

	var req api.ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.ErrorContext(ctx, "failed to decode resolve request", slog.Any("error", err))
		sendError(h.logger, w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Strategy == "" {
		sendError(h.logger, w, "strategy is required", http.StatusBadRequest)
		return
	}

	record, err := h.resolver.Resolve(ctx, id, req.Strategy, engine.ResolveParams{
		RevisionID: req.RevisionID,
		Fields:     req.Fields,
	})
	if err != nil {
		h.sendResolveError(ctx, w, id, err)
		return
	}

	detail, err := conflictDetail(record)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to render conflict", slog.String("conflict_id", id), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}
	sendJSON(h.logger, w, detail, http.StatusOK)
}

// sendResolveError maps engine errors onto HTTP statuses.
func (h *ConflictsHandler) sendResolveError(ctx context.Context, w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, store.ErrConflictNotFound):
		sendError(h.logger, w, "conflict not found", http.StatusNotFound)
	case errors.Is(err, engine.ErrConflictAlreadyResolving):
		sendError(h.logger, w, "conflict is already being resolved", http.StatusConflict)
	case errors.Is(err, engine.ErrUnknownStrategy),
		errors.Is(err, engine.ErrUnknownRevision),
		errors.Is(err, engine.ErrStrategyNotApplicable),
		errors.Is(err, engine.ErrIncompleteCustomResolution):
		sendError(h.logger, w, err.Error(), http.StatusBadRequest)
	default:
		h.logger.ErrorContext(ctx, "failed to resolve conflict", slog.String("conflict_id", id), slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
	}
}

// Scan обрабатывает POST /api/v1/conflicts/scan
// Внеплановый проход детектора
func (h *ConflictsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	result, err := h.detector.Run(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "manual scan failed", slog.Any("error", err))
		sendError(h.logger, w, "internal server error", http.StatusInternalServerError)
		return
	}

	resp := api.ScanResponse{
		Scanned:  result.Scanned,
		Detected: result.Detected,
		Skipped:  result.Skipped,
		Failed:   result.Failed,
	}
	sendJSON(h.logger, w, resp, http.StatusOK)
}

// conflictDetail converts a stored record to its wire form.
func conflictDetail(record *models.ConflictRecord) (*api.ConflictDetail, error) {
	detail := &api.ConflictDetail{
		ID:           record.ID,
		DocumentID:   record.DocumentID,
		DocumentType: string(record.DocumentType),
		Kind:         string(record.Kind),
		Status:       string(record.Status),
		DetectedAt:   record.DetectedAt,
		Revisions:    make([]api.RevisionView, 0, len(record.Revisions)),
	}
	for _, rev := range record.Revisions {
		fields, err := rev.FieldsJSON()
		if err != nil {
			return nil, err
		}
		detail.Revisions = append(detail.Revisions, api.RevisionView{
			RevisionToken:  rev.RevisionToken,
			Version:        rev.Provenance.Version,
			CreatedBy:      rev.Provenance.CreatedBy,
			CreatedAt:      rev.Provenance.CreatedAt,
			LastModifiedBy: rev.Provenance.LastModifiedBy,
			LastModifiedAt: rev.Provenance.LastModifiedAt,
			Fields:         fields,
		})
	}
	if record.Resolution != nil {
		detail.Resolution = &api.ResolutionView{
			ResolvedAt:            record.Resolution.ResolvedAt,
			Strategy:              record.Resolution.Strategy,
			ResolvingInstance:     record.Resolution.ResolvingInstance,
			ResultingRevisionID:   record.Resolution.ResultingRevisionID,
			ContributingInstances: record.Resolution.ContributingInstances,
		}
	}
	return detail, nil
}
