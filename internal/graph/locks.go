package graph

import (
	"sync"

	"github.com/Esoteriker/openTree/internal/domain"
)

// scopeState is one session scope's graph plus the lock guarding it.
type scopeState struct {
	lock      sync.RWMutex
	concepts  map[string]*domain.Concept  // normalized canonical name -> concept
	relations map[string]*domain.Relation // dedup key -> relation
}

// scopeTable is a lock table keyed by (tenant_id, session_id): every mutation
// for a scope takes that scope's exclusive lock, so cross-scope upserts never
// contend with each other. A single structural mutex protects only the
// creation of new scope entries in the table itself — never the graph
// mutations within a scope, which use that scope's own RWMutex. Entries are
// created lazily and never removed; session counts are small enough that
// this does not need eviction.
type scopeTable struct {
	structural sync.Mutex
	scopes     map[string]*scopeState
}

func newScopeTable() *scopeTable {
	return &scopeTable{scopes: make(map[string]*scopeState)}
}

func (t *scopeTable) get(key string) *scopeState {
	t.structural.Lock()
	defer t.structural.Unlock()
	state, ok := t.scopes[key]
	if !ok {
		state = &scopeState{
			concepts:  make(map[string]*domain.Concept),
			relations: make(map[string]*domain.Relation),
		}
		t.scopes[key] = state
	}
	return state
}
