package api

import (
	"encoding/json"
	"time"
)

// RevisionView представляет одну ревизию документа в ответе API
type RevisionView struct {
	RevisionToken  string          `json:"revision_token"`
	Version        int64           `json:"version"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	LastModifiedBy string          `json:"last_modified_by"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
	Fields         json.RawMessage `json:"fields"`
}

// ResolutionView представляет результат разрешения конфликта
type ResolutionView struct {
	ResolvedAt            time.Time `json:"resolved_at"`
	Strategy              string    `json:"strategy"`
	ResolvingInstance     string    `json:"resolving_instance"`
	ResultingRevisionID   string    `json:"resulting_revision_id"`
	ContributingInstances []string  `json:"contributing_instances"`
}

// ConflictSummary представляет конфликт в списке (без тел ревизий)
type ConflictSummary struct {
	ID           string    `json:"id"`
	DocumentID   string    `json:"document_id"`
	DocumentType string    `json:"document_type"`
	Kind         string    `json:"kind"`
	Status       string    `json:"status"`
	DetectedAt   time.Time `json:"detected_at"`
	Revisions    int       `json:"revisions"` // количество расходящихся ревизий
}

// ConflictDetail представляет полную запись конфликта
type ConflictDetail struct {
	ID           string          `json:"id"`
	DocumentID   string          `json:"document_id"`
	DocumentType string          `json:"document_type"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	DetectedAt   time.Time       `json:"detected_at"`
	Revisions    []RevisionView  `json:"revisions"`
	Resolution   *ResolutionView `json:"resolution,omitempty"`
}

// ConflictListResponse представляет ответ со списком конфликтов
type ConflictListResponse struct {
	Conflicts []ConflictSummary `json:"conflicts"`
	Total     int               `json:"total"`
}

// ConflictStatsResponse представляет сводку по открытым конфликтам
type ConflictStatsResponse struct {
	ByKind                   map[string]int `json:"by_kind"`
	Total                    int            `json:"total"`
	RequiresManualResolution int            `json:"requires_manual_resolution"`
}

// ResolveRequest представляет запрос на разрешение конфликта
type ResolveRequest struct {
	Strategy   string          `json:"strategy"`              // choose-winner, merge-permissions или custom
	RevisionID string          `json:"revision_id,omitempty"` // для choose-winner: токен победителя
	Fields     json.RawMessage `json:"fields,omitempty"`      // для custom: карта полей результата
}

// ScanResponse представляет итог внепланового прохода сканера
type ScanResponse struct {
	Scanned  int `json:"scanned"`
	Detected int `json:"detected"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}
