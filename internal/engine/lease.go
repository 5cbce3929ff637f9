package engine

import "sync"

// leaseMap serializes resolutions per document id. Claims are process
// local: resolution is a local-node administrative act, and the store's
// replication propagates the result. Unrelated ids proceed in parallel,
// no global lock.
type leaseMap struct {
	leases sync.Map // document id -> struct{}
}

// TryAcquire claims the id. Returns false if another resolution holds it.
func (m *leaseMap) TryAcquire(id string) bool {
	_, loaded := m.leases.LoadOrStore(id, struct{}{})
	return !loaded
}

// Release frees the claim. Safe to call for an unheld id.
func (m *leaseMap) Release(id string) {
	m.leases.Delete(id)
}
