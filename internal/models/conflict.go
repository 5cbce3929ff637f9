package models

import (
	"sort"
	"time"
)

// ConflictKind классифицирует набор расходящихся ревизий
type ConflictKind string

// Conflict kinds, ordered by classification precedence
const (
	KindGroupConflict        ConflictKind = "group_conflict"
	KindRoleConflict         ConflictKind = "role_conflict"
	KindProfileConflict      ConflictKind = "profile_conflict"
	KindClientConfigConflict ConflictKind = "client_config_conflict"
	KindGenericConflict      ConflictKind = "generic_conflict"
)

// ConflictKinds lists every kind, for stats aggregation.
var ConflictKinds = []ConflictKind{
	KindGroupConflict,
	KindRoleConflict,
	KindProfileConflict,
	KindClientConfigConflict,
	KindGenericConflict,
}

// ConflictStatus представляет состояние жизненного цикла конфликта
type ConflictStatus string

// Lifecycle: unresolved -> resolving -> resolved (terminal),
// or resolving -> unresolved on failure/rollback.
const (
	StatusUnresolved ConflictStatus = "unresolved"
	StatusResolving  ConflictStatus = "resolving"
	StatusResolved   ConflictStatus = "resolved"
)

// Resolution strategies accepted by the engine
const (
	StrategyChooseWinner     = "choose-winner"
	StrategyMergePermissions = "merge-permissions"
	StrategyCustom           = "custom"
)

// Resolution records how a conflict was closed. Present only on resolved
// records; replaying the same resolve command returns it unchanged.
type Resolution struct {
	ResolvedAt            time.Time `json:"resolved_at"`
	Strategy              string    `json:"strategy"`
	ResolvingInstance     string    `json:"resolving_instance"`
	ResultingRevisionID   string    `json:"resulting_revision_id"`
	ContributingInstances []string  `json:"contributing_instances"`
}

// ConflictRecord is the persisted account of one detected divergence.
// Revisions holds the full snapshot of every sibling revision present at
// detection time, already in tie-break order. At most one record per
// document id may be open (unresolved or resolving) at a time; the
// scanner enforces this on creation.
type ConflictRecord struct {
	DetectedAt   time.Time      `json:"detected_at"`
	Provenance   Provenance     `json:"provenance"`
	Resolution   *Resolution    `json:"resolution,omitempty"`
	ID           string         `json:"id"`
	DocumentID   string         `json:"document_id"`
	DocumentType DocumentType   `json:"document_type"`
	Kind         ConflictKind   `json:"kind"`
	Status       ConflictStatus `json:"status"`
	Revisions    []*Record      `json:"revisions"`
}

// Open reports whether the record still needs (or is undergoing) resolution.
func (c *ConflictRecord) Open() bool {
	return c.Status == StatusUnresolved || c.Status == StatusResolving
}

// Clone создает глубокую копию записи конфликта
func (c *ConflictRecord) Clone() *ConflictRecord {
	clone := *c
	if c.Resolution != nil {
		res := *c.Resolution
		res.ContributingInstances = append([]string(nil), c.Resolution.ContributingInstances...)
		clone.Resolution = &res
	}
	clone.Revisions = make([]*Record, len(c.Revisions))
	for i, rev := range c.Revisions {
		clone.Revisions[i] = rev.Clone()
	}
	return &clone
}

// SortRevisions orders sibling revisions for display and tie-breaking:
// latest last_modified_at first, ties broken by last_modified_by instance
// id ascending. Deterministic regardless of store-reported order.
func SortRevisions(revisions []*Record) {
	sort.SliceStable(revisions, func(i, j int) bool {
		pi, pj := revisions[i].Provenance, revisions[j].Provenance
		if !pi.LastModifiedAt.Equal(pj.LastModifiedAt) {
			return pi.LastModifiedAt.After(pj.LastModifiedAt)
		}
		return pi.LastModifiedBy < pj.LastModifiedBy
	})
}
