package api

import (
	"encoding/json"
	"time"
)

// NodeStatusResponse представляет ответ инстанса на опрос монитора пира
type NodeStatusResponse struct {
	InstanceID          string    `json:"instance_id"`          // id отвечающего инстанса
	Timestamp           time.Time `json:"timestamp"`            // время формирования ответа
	TotalDocuments      int64     `json:"total_documents"`      // всего живых документов
	ConflictedDocuments int64     `json:"conflicted_documents"` // документов с sibling-ревизиями
	OpenConflicts       int64     `json:"open_conflicts"`       // открытых записей конфликтов
	ReplicatedWrites    int64     `json:"replicated_writes"`    // принятых реплицированных записей
	ReplicationErrors   int64     `json:"replication_errors"`   // ошибок приема репликации
}

// LinkView представляет состояние одной связи репликации
type LinkView struct {
	SourceInstance      string    `json:"source_instance"`
	TargetInstance      string    `json:"target_instance"`
	State               string    `json:"state"` // active, degraded или unreachable
	ConsecutiveFailures int       `json:"consecutive_failures"`
	DocsRead            int64     `json:"docs_read"`
	DocsWritten         int64     `json:"docs_written"`
	LastObservedAt      time.Time `json:"last_observed_at"`
}

// ReplicationStatusResponse представляет агрегированный статус репликации
type ReplicationStatusResponse struct {
	Instance string     `json:"instance"` // id локального инстанса
	State    string     `json:"state"`    // агрегат по всем связям
	Links    []LinkView `json:"links"`
}

// ReplicatedRevision представляет одну ревизию во входящей репликации
type ReplicatedRevision struct {
	DocumentID     string          `json:"document_id"`
	DocumentType   string          `json:"document_type"`
	RevisionToken  string          `json:"revision_token"`
	Version        int64           `json:"version"`
	CreatedBy      string          `json:"created_by"`
	CreatedAt      time.Time       `json:"created_at"`
	LastModifiedBy string          `json:"last_modified_by"`
	LastModifiedAt time.Time       `json:"last_modified_at"`
	Fields         json.RawMessage `json:"fields"`
}

// ReplicateRequest представляет пакет ревизий от пира
type ReplicateRequest struct {
	SourceInstance string               `json:"source_instance"`
	Revisions      []ReplicatedRevision `json:"revisions"`
}

// ReplicateResponse представляет итог приема пакета репликации
type ReplicateResponse struct {
	Accepted int `json:"accepted"` // принято ревизий (включая уже известные)
	Failed   int `json:"failed"`   // отклонено с ошибкой
}
