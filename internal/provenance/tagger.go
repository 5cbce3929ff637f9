// Package provenance stamps every accepted write with the identity of
// the writing instance and a monotonic edit counter, so that divergent
// revisions discovered later are always attributable.
package provenance

import (
	"context"
	"time"

	"github.com/iudanet/authdir/internal/models"
	"github.com/iudanet/authdir/internal/store"
)

// Tagger wraps the record-store Put. All application writes must go
// through it: direct writes would leave conflicts unattributable. It
// performs no I/O of its own and no retries (those belong to the
// adapter's transport layer).
type Tagger struct {
	storage    store.RecordStorage
	now        func() time.Time
	instanceID string
}

// NewTagger creates a tagger writing on behalf of the given instance.
func NewTagger(instanceID string, storage store.RecordStorage) *Tagger {
	return &Tagger{
		storage:    storage,
		now:        time.Now,
		instanceID: instanceID,
	}
}

// InstanceID returns the id the tagger stamps writes with.
func (t *Tagger) InstanceID() string {
	return t.instanceID
}

// Stamp updates provenance in place for one accepted write: last writer,
// wall-clock time, version+1. The first write of a document also sets
// its creator.
func (t *Tagger) Stamp(p *models.Provenance) {
	now := t.now()

	p.LastModifiedBy = t.instanceID
	p.LastModifiedAt = now
	p.Version++

	if p.CreatedBy == "" {
		p.CreatedBy = t.instanceID
		p.CreatedAt = now
	}
}

// Put stamps the record's provenance and delegates to the adapter.
func (t *Tagger) Put(ctx context.Context, record *models.Record, expectedRevision string) (string, error) {
	t.Stamp(&record.Provenance)
	return t.storage.Put(ctx, record, expectedRevision)
}
