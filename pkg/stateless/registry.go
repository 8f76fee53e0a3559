package stateless

import (
	"sort"
	"sync"

	"github.com/ajitpratap0/beanpool/pkg/bean"
)

// Registry maps deployment identifiers to their pools. Lookups take a read
// lock; the write lock is taken only to deploy or undeploy.
type Registry struct {
	mu          sync.RWMutex
	deployments map[bean.DeploymentID]*deployment
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{deployments: make(map[bean.DeploymentID]*deployment)}
}

func (r *Registry) lookup(id bean.DeploymentID) (*deployment, bool) {
	r.mu.RLock()
	d, ok := r.deployments[id]
	r.mu.RUnlock()
	return d, ok
}

// insert stores d unless the id is taken, returning whichever deployment
// ends up registered.
func (r *Registry) insert(d *deployment) (*deployment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.deployments[d.id]; ok {
		return existing, false
	}
	r.deployments[d.id] = d
	return d, true
}

// remove unregisters id and runs detach on the removed deployment before
// the write lock is released, so a lazy re-install of the same id cannot
// interleave with it.
func (r *Registry) remove(id bean.DeploymentID, detach func(*deployment)) (*deployment, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deployments[id]
	if !ok {
		return nil, false
	}
	delete(r.deployments, id)
	if detach != nil {
		detach(d)
	}
	return d, true
}

// IDs returns the registered deployment identifiers in sorted order.
func (r *Registry) IDs() []bean.DeploymentID {
	r.mu.RLock()
	ids := make([]bean.DeploymentID, 0, len(r.deployments))
	for id := range r.deployments {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of registered deployments.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.deployments)
}
