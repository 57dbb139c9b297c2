package definition

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when a definition id cannot be resolved.
var ErrNotFound = errors.New("process definition not found")

// Repository resolves deployed definitions by id.
//
// Thread-safety: all methods are safe for concurrent use; batch workers share
// one repository.
type Repository struct {
	mu   sync.RWMutex
	byID map[string]*ProcessDefinition
}

// NewRepository creates a repository holding the given definitions.
// Later duplicates replace earlier ones.
func NewRepository(defs ...*ProcessDefinition) *Repository {
	r := &Repository{byID: make(map[string]*ProcessDefinition, len(defs))}
	for _, def := range defs {
		r.byID[def.ID] = def
	}
	return r
}

// Add registers a definition. Deploying the same id twice is an error.
func (r *Repository) Add(def *ProcessDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[def.ID]; exists {
		return fmt.Errorf("process definition %s already deployed", def.ID)
	}
	r.byID[def.ID] = def
	return nil
}

// Get returns the definition with the given id.
func (r *Repository) Get(id string) (*ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return def, nil
}

// Latest returns the highest version deployed under key.
func (r *Repository) Latest(key string) (*ProcessDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *ProcessDefinition
	for _, def := range r.byID {
		if def.Key == key && (latest == nil || def.Version > latest.Version) {
			latest = def
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("%w: key %s", ErrNotFound, key)
	}
	return latest, nil
}

// All returns every definition ordered by key, then version.
func (r *Repository) All() []*ProcessDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*ProcessDefinition, 0, len(r.byID))
	for _, def := range r.byID {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Key != out[j].Key {
			return out[i].Key < out[j].Key
		}
		return out[i].Version < out[j].Version
	})
	return out
}
