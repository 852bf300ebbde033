// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package entityregistry implements the Entity Registry (C1): the single
// lookup table every other component resolves corestate.Handle references
// through. Follows the ref-resolution pattern common to the reference
// corpus, reshaped around a concrete concurrency-safe map instead of a
// generic typed reference, since this core never needs cross-process
// reference serialization.
package entityregistry

import (
	"sync"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/engerr"
)

// CascadeFunc is invoked with the id of an entity being unregistered, so
// that dependent per-entity state in other components (status effects,
// skill cooldowns, combo progress, threat entries) can be torn down too.
// Registered cascades run in registration order.
type CascadeFunc func(id corestate.EntityID)

// Registry is the concurrency-safe entity lookup table. Zero value is not
// usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	entities map[corestate.EntityID]corestate.Handle

	cascades []CascadeFunc

	// pendingRemoval holds ids unregistered mid-phase: removal during iteration is deferred to the
	// next phase boundary rather than mutating the map in place.
	pendingRemoval []corestate.EntityID
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		entities: make(map[corestate.EntityID]corestate.Handle),
	}
}

// OnUnregister appends fn to the list of cascades run when an entity is
// removed (immediately, via Unregister, or deferred, via FlushRemovals).
func (r *Registry) OnUnregister(fn CascadeFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cascades = append(r.cascades, fn)
}

// Register adds handle under its own id, overwriting any prior registration
// for that id.
func (r *Registry) Register(handle corestate.Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[handle.ID()] = handle
}

// Lookup returns the handle registered for id. Returns engerr.NotFound if no
// such entity is registered.
func (r *Registry) Lookup(id corestate.EntityID) (corestate.Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, ok := r.entities[id]
	if !ok {
		return nil, engerr.NotFoundf("entity %d is not registered", id)
	}
	return handle, nil
}

// Exists reports whether id currently resolves to a registered entity.
func (r *Registry) Exists(id corestate.EntityID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[id]
	return ok
}

// Unregister removes id immediately and runs every registered cascade for
// it. Safe to call outside of phase iteration; callers iterating the
// registry mid-phase should use DeferRemoval instead.
func (r *Registry) Unregister(id corestate.EntityID) {
	r.mu.Lock()
	_, existed := r.entities[id]
	delete(r.entities, id)
	cascades := append([]CascadeFunc(nil), r.cascades...)
	r.mu.Unlock()

	if !existed {
		return
	}
	for _, cascade := range cascades {
		cascade(id)
	}
}

// DeferRemoval marks id for removal at the next FlushRemovals call, instead
// of mutating the map immediately. Use this from within a phase that is
// actively ranging over Snapshot().
func (r *Registry) DeferRemoval(id corestate.EntityID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pendingRemoval = append(r.pendingRemoval, id)
}

// FlushRemovals applies every deferred removal queued since the last flush,
// in the order they were deferred. Called at phase boundaries by the world
// orchestrator.
func (r *Registry) FlushRemovals() {
	r.mu.Lock()
	pending := r.pendingRemoval
	r.pendingRemoval = nil
	r.mu.Unlock()

	for _, id := range pending {
		r.Unregister(id)
	}
}

// Snapshot returns a stable point-in-time copy of every registered handle,
// safe to range over even while other goroutines mutate the registry.
func (r *Registry) Snapshot() []corestate.Handle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]corestate.Handle, 0, len(r.entities))
	for _, h := range r.entities {
		out = append(out, h)
	}
	return out
}

// Count returns the number of currently registered entities.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entities)
}
