package models

import "time"

// LinkState представляет состояние связи репликации с пиром
type LinkState string

const (
	LinkActive      LinkState = "active"
	LinkDegraded    LinkState = "degraded"
	LinkUnreachable LinkState = "unreachable"
)

// ReplicationLink is the current best-known state of replication towards
// one configured peer. Created at monitor startup, mutated on every poll,
// never deleted: it is current state, not history.
type ReplicationLink struct {
	LastObservedAt      time.Time `json:"last_observed_at"`
	SourceInstance      string    `json:"source_instance"`
	TargetInstance      string    `json:"target_instance"`
	State               LinkState `json:"state"`
	DocsRead            int64     `json:"docs_read"`
	DocsWritten         int64     `json:"docs_written"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Clone создает копию связи репликации
func (l *ReplicationLink) Clone() *ReplicationLink {
	clone := *l
	return &clone
}

// Instance is the static identity of one directory node, loaded from
// configuration at startup and immutable for the process lifetime.
type Instance struct {
	ID          string   `json:"id"`           // уникальный id инстанса (например "dc1")
	DisplayName string   `json:"display_name"` // человекочитаемое имя
	BaseURL     string   `json:"base_url"`     // базовый URL HTTP API инстанса
	PeerIDs     []string `json:"peer_ids"`     // id настроенных пиров
}
