package hydrate

import (
	"github.com/shrek82/jormx/model"
)

// IdentityRegistry maps (alias or alias path, identifier tuple) to the slot
// an entity occupies in the result or in its parent's collection. It lives
// for one hydration run.
type IdentityRegistry struct {
	slots map[string]map[string]any
}

func NewIdentityRegistry() *IdentityRegistry {
	return &IdentityRegistry{slots: make(map[string]map[string]any)}
}

// Lookup returns the slot registered for id under path.
func (r *IdentityRegistry) Lookup(path string, id model.Identifier) (any, bool) {
	slot, ok := r.slots[path][id.Key()]
	return slot, ok
}

// Register records slot for id under path.
func (r *IdentityRegistry) Register(path string, id model.Identifier, slot any) {
	byID, ok := r.slots[path]
	if !ok {
		byID = make(map[string]any)
		r.slots[path] = byID
	}
	byID[id.Key()] = slot
}

// Len returns the number of registered keys.
func (r *IdentityRegistry) Len() int {
	n := 0
	for _, byID := range r.slots {
		n += len(byID)
	}
	return n
}
