package check

import (
	"slices"
	"sort"
	"sync"

	"github.com/jacobarthurs/pginsights/internal/db"
)

// Registry maps backend kinds to their check descriptors. A process holds
// one registry, filled once at startup and read by every run afterwards.
type Registry struct {
	mu            sync.RWMutex
	kinds         map[string][]Descriptor
	prerequisites map[string]Prerequisite
}

func NewRegistry() *Registry {
	return &Registry{
		kinds:         make(map[string][]Descriptor),
		prerequisites: make(map[string]Prerequisite),
	}
}

// RegisterPrerequisite sets the probe run before the checks of kind.
func (r *Registry) RegisterPrerequisite(kind string, p Prerequisite) {
	kind = db.NormalizeKind(kind)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.prerequisites[kind] = p
}

// Prerequisite returns the probe registered for kind, if any.
func (r *Registry) Prerequisite(kind string) (Prerequisite, bool) {
	kind = db.NormalizeKind(kind)

	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.prerequisites[kind]
	return p, ok && p != nil
}

// Register adds d under kind. A descriptor with the same ID replaces the
// existing one in place. It panics if d has no ID or factory.
func (r *Registry) Register(kind string, d Descriptor) {
	if d.ID == "" {
		panic("check: Register descriptor without ID")
	}
	if d.New == nil {
		panic("check: Register descriptor " + d.ID + " without factory")
	}

	kind = db.NormalizeKind(kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.kinds[kind]
	for i := range list {
		if list[i].ID == d.ID {
			list[i] = d
			return
		}
	}
	r.kinds[kind] = append(list, d)
}

// Deregister removes the descriptor with id from kind. Unknown ids are ignored.
func (r *Registry) Deregister(kind, id string) {
	kind = db.NormalizeKind(kind)

	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.kinds[kind]
	for i := range list {
		if list[i].ID == id {
			r.kinds[kind] = slices.Delete(slices.Clone(list), i, i+1)
			return
		}
	}
}

// Resolve returns the descriptors for kind ordered by ascending weight.
// Equal weights keep registration order. Unknown kinds yield an empty list.
func (r *Registry) Resolve(kind string) []Descriptor {
	kind = db.NormalizeKind(kind)

	r.mu.RLock()
	out := slices.Clone(r.kinds[kind])
	r.mu.RUnlock()

	if out == nil {
		return []Descriptor{}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Weight < out[j].Weight
	})
	return out
}

// Kinds returns every kind with at least one descriptor, sorted.
func (r *Registry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var kinds []string
	for k, list := range r.kinds {
		if len(list) > 0 {
			kinds = append(kinds, k)
		}
	}
	sort.Strings(kinds)
	return kinds
}
