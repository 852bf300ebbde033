// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package corestate

import "sync"

// SimpleHandle is a minimal, concurrency-safe Handle implementation used by
// the bundled test suites and by callers that don't need a richer entity
// representation: a plain-struct, two-field identity type extended here
// with the combat capability set Handle requires.
type SimpleHandle struct {
	mu sync.Mutex

	id    EntityID
	stats CombatStats

	resources map[ResourceKind]float64
	maxRes    map[ResourceKind]float64

	pos    Point
	facing float64

	dead bool

	onDamageDealt func(DamageRecord)
	onDamageTaken func(DamageRecord)
	onDeath       func(killer EntityID, hasKiller bool)
	onKill        func(victim EntityID)
}

// NewSimpleHandle constructs a SimpleHandle with the given id and starting
// stats. Resource pools are registered with RegisterResource;
// ConsumeResource and RestoreResource act only on registered pools and never
// read or change CombatStats.Resource.
func NewSimpleHandle(id EntityID, stats CombatStats) *SimpleHandle {
	return &SimpleHandle{
		id:        id,
		stats:     stats,
		resources: make(map[ResourceKind]float64),
		maxRes:    make(map[ResourceKind]float64),
	}
}

// RegisterResource adds a named resource pool with the given starting and
// max values, independent of the primary CombatStats.Resource field.
func (h *SimpleHandle) RegisterResource(kind ResourceKind, current, max float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resources[kind] = current
	h.maxRes[kind] = max
}

// SetPosition updates the entity's world position and facing angle.
func (h *SimpleHandle) SetPosition(pos Point, facing float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pos = pos
	h.facing = facing
}

// OnDamageDealtFunc registers a callback fired from OnDamageDealt.
func (h *SimpleHandle) OnDamageDealtFunc(fn func(DamageRecord)) { h.onDamageDealt = fn }

// OnDamageTakenFunc registers a callback fired from OnDamageTaken.
func (h *SimpleHandle) OnDamageTakenFunc(fn func(DamageRecord)) { h.onDamageTaken = fn }

// OnDeathFunc registers a callback fired from OnDeath.
func (h *SimpleHandle) OnDeathFunc(fn func(killer EntityID, hasKiller bool)) { h.onDeath = fn }

// OnKillFunc registers a callback fired from OnKill.
func (h *SimpleHandle) OnKillFunc(fn func(victim EntityID)) { h.onKill = fn }

// ID returns the entity's stable identifier.
func (h *SimpleHandle) ID() EntityID { return h.id }

// Snapshot returns a copy of the entity's current combat stats.
func (h *SimpleHandle) Snapshot() CombatStats {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

// SetSnapshot replaces the entity's combat stats wholesale, the mechanism a
// status-effect recompute uses to push modifier results back onto the entity.
func (h *SimpleHandle) SetSnapshot(stats CombatStats) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats = stats
}

// TakeDamage applies amount to current health, floored at 0.
func (h *SimpleHandle) TakeDamage(amount float64) {
	h.mu.Lock()
	h.stats.Health -= amount
	if h.stats.Health < 0 {
		h.stats.Health = 0
	}
	dead := h.stats.Health == 0 && !h.dead
	if dead {
		h.dead = true
	}
	h.mu.Unlock()
}

// Heal restores amount to current health, capped at max health.
func (h *SimpleHandle) Heal(amount float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stats.Health += amount
	if h.stats.Health > h.stats.MaxHealth {
		h.stats.Health = h.stats.MaxHealth
	}
}

// ConsumeResource attempts to deduct amount from the named resource pool.
func (h *SimpleHandle) ConsumeResource(kind ResourceKind, amount float64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.resources[kind]
	if !ok {
		return false
	}
	if current < amount {
		return false
	}
	h.resources[kind] = current - amount
	return true
}

// RestoreResource adds amount to the named resource pool, capped at its max.
func (h *SimpleHandle) RestoreResource(kind ResourceKind, amount float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	current, ok := h.resources[kind]
	if !ok {
		return
	}
	current += amount
	if max, ok := h.maxRes[kind]; ok && current > max {
		current = max
	}
	h.resources[kind] = current
}

// IsAlive reports whether current health is above 0.
func (h *SimpleHandle) IsAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats.Health > 0
}

// CanAttack reports whether the entity may currently initiate an attack.
func (h *SimpleHandle) CanAttack() bool {
	return h.IsAlive()
}

// CanBeTargeted reports whether the entity may be selected as a target.
func (h *SimpleHandle) CanBeTargeted() bool {
	return h.IsAlive()
}

// Position returns the entity's current world position and facing angle.
func (h *SimpleHandle) Position() (Point, float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pos, h.facing
}

// OnDamageDealt invokes the registered callback, if any.
func (h *SimpleHandle) OnDamageDealt(record DamageRecord) {
	if h.onDamageDealt != nil {
		h.onDamageDealt(record)
	}
}

// OnDamageTaken invokes the registered callback, if any.
func (h *SimpleHandle) OnDamageTaken(record DamageRecord) {
	if h.onDamageTaken != nil {
		h.onDamageTaken(record)
	}
}

// OnDeath invokes the registered callback, if any.
func (h *SimpleHandle) OnDeath(killer EntityID, hasKiller bool) {
	if h.onDeath != nil {
		h.onDeath(killer, hasKiller)
	}
}

// OnKill invokes the registered callback, if any.
func (h *SimpleHandle) OnKill(victim EntityID) {
	if h.onKill != nil {
		h.onKill(victim)
	}
}
