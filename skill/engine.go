// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package skill

import (
	"sync"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/damage"
	"github.com/forgewatch/combat-core/engerr"
	"github.com/forgewatch/combat-core/gevents"
	"github.com/forgewatch/combat-core/roll"
	"github.com/forgewatch/combat-core/statuseffect"
)

// TargetQuery is the spatial-lookup collaborator the Skill Engine consumes
// to resolve AoE/cone/line payloads. Supplied by the
// out-of-scope world/zoning layer; no type in this module implements it.
type TargetQuery interface {
	InRange(center corestate.Point, radius float64, filter func(corestate.EntityID) bool) []corestate.EntityID
}

// EntitySource resolves an entity id to its capability handle and current
// snapshot. entityregistry.Registry satisfies this directly.
type EntitySource interface {
	Lookup(id corestate.EntityID) (corestate.Handle, error)
}

// ControlSource is the subset of statuseffect.Engine the Skill Engine gates
// casts against.
type ControlSource interface {
	ControlFlags(target corestate.EntityID) statuseffect.ControlFlag
	Apply(target corestate.EntityID, effectID uint64, caster corestate.EntityID, durationScale, now float64) (bool, error)
	RemoveOnAction(target corestate.EntityID) int
}

// RollSource mints a per-actor PRNG for one skill resolution, so every roll
// is reproducible from (caster, timestamp) alone. Mirrors combat.RollSource.
type RollSource func(caster corestate.EntityID, timestamp float64) roll.Source

// Engine is the Skill Engine (C4). One Engine instance serves every entity
// in the World; per-entity state is held in maps keyed by entity id.
type Engine struct {
	mu sync.Mutex

	definitions map[uint64]Definition

	instances map[corestate.EntityID]map[uint64]*Instance
	active    map[corestate.EntityID]*ActiveCast
	gcdEnd    map[corestate.EntityID]float64

	entities TargetQueryEntities
	effects  ControlSource
	rollSrc  RollSource
	sink     gevents.Sink
}

// TargetQueryEntities bundles the two read-only collaborators Advance/
// resolution needs: entity lookup and spatial query.
type TargetQueryEntities struct {
	Entities EntitySource
	Targets  TargetQuery
}

// New constructs an Engine over the given immutable skill catalog. A nil
// rollSrc defaults to a deterministic source seeded from world seed 0.
func New(definitions map[uint64]Definition, entities TargetQueryEntities, effects ControlSource, sink gevents.Sink) *Engine {
	return NewWithRollSource(definitions, entities, effects, nil, sink)
}

// NewWithRollSource is New, but lets the caller supply the per-resolution
// roll.Source factory (the World orchestrator wires this to its configured
// world seed).
func NewWithRollSource(definitions map[uint64]Definition, entities TargetQueryEntities, effects ControlSource, rollSrc RollSource, sink gevents.Sink) *Engine {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	if rollSrc == nil {
		rollSrc = func(caster corestate.EntityID, timestamp float64) roll.Source {
			return roll.NewDeterministic(0, uint64(timestamp*1000), uint64(caster))
		}
	}
	cloned := make(map[uint64]Definition, len(definitions))
	for id, def := range definitions {
		cloned[id] = def
	}
	return &Engine{
		definitions: cloned,
		instances:   make(map[corestate.EntityID]map[uint64]*Instance),
		active:      make(map[corestate.EntityID]*ActiveCast),
		gcdEnd:      make(map[corestate.EntityID]float64),
		entities:    entities,
		effects:     effects,
		rollSrc:     rollSrc,
		sink:        sink,
	}
}

// LearnSkill grants caster rank ≥ 1 of skillID, creating its Instance row.
func (e *Engine) LearnSkill(caster corestate.EntityID, skillID uint64, rank int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if rank < 1 {
		rank = 1
	}
	row := e.instanceRowLocked(caster)
	row[skillID] = &Instance{SkillID: skillID, Rank: rank}
}

func (e *Engine) instanceRowLocked(entity corestate.EntityID) map[uint64]*Instance {
	row, ok := e.instances[entity]
	if !ok {
		row = make(map[uint64]*Instance)
		e.instances[entity] = row
	}
	return row
}

// Unregister drops every row owned by entity: cooldown table, active cast,
// GCD state. Registered with entityregistry.Registry.OnUnregister.
func (e *Engine) Unregister(entity corestate.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.instances, entity)
	delete(e.active, entity)
	delete(e.gcdEnd, entity)
}

// IsOnCooldown reports whether skillID is currently on cooldown for entity.
func (e *Engine) IsOnCooldown(entity corestate.EntityID, skillID uint64, now float64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[entity][skillID]
	if inst == nil {
		return false
	}
	return now < inst.CooldownEnd
}

// Remaining returns the seconds left on skillID's cooldown for entity, or 0.
func (e *Engine) Remaining(entity corestate.EntityID, skillID uint64, now float64) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	inst := e.instances[entity][skillID]
	if inst == nil || inst.CooldownEnd <= now {
		return 0
	}
	return inst.CooldownEnd - now
}

// Reset clears the cooldown of skillID for entity. If skillID is nil,
// clears every skill's cooldown for entity.
func (e *Engine) Reset(entity corestate.EntityID, skillID *uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	row := e.instances[entity]
	if skillID == nil {
		for _, inst := range row {
			inst.OnCooldown = false
			inst.CooldownEnd = 0
		}
		return
	}
	if inst, ok := row[*skillID]; ok {
		inst.OnCooldown = false
		inst.CooldownEnd = 0
	}
}

// IsCasting reports whether entity currently has an active non-channel cast.
func (e *Engine) IsCasting(entity corestate.EntityID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cast := e.active[entity]
	return cast != nil && !cast.IsChannel
}

// IsChanneling reports whether entity currently has an active channel.
func (e *Engine) IsChanneling(entity corestate.EntityID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cast := e.active[entity]
	return cast != nil && cast.IsChannel
}

// StartCast validates and begins a cast of skillID by caster against eight
// ordered preconditions. No state is mutated unless every
// precondition passes.
func (e *Engine) StartCast(caster corestate.EntityID, skillID uint64, target *corestate.EntityID, point corestate.Point, now float64, cdr float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, ok := e.definitions[skillID]
	if !ok {
		return engerr.NotFoundf("skill %d", skillID)
	}

	row := e.instanceRowLocked(caster)
	inst, known := row[skillID]
	if !known || inst.Rank < 1 {
		return engerr.InvalidStatef("entity %d does not know skill %d", caster, skillID)
	}

	if now < inst.CooldownEnd {
		return engerr.OnCooldownf("skill %d", skillID)
	}

	if cast := e.active[caster]; cast != nil {
		return engerr.InvalidStatef("entity %d is already casting or channeling", caster)
	}

	handle, err := e.entities.Entities.Lookup(caster)
	if err != nil {
		return err
	}

	// Handle.ConsumeResource is specified to leave the pool untouched on a
	// false return (corestate.Handle doc), so attempting it here doubles as
	// precondition 5's non-mutating check: a failed attempt commits nothing.
	cost := def.ResourceCost
	if cost > 0 && !handle.ConsumeResource(def.ResourceKind, cost) {
		return engerr.InsufficientResourcef("resource for skill %d", skillID)
	}
	paidUpfront := cost > 0

	if err := e.checkTargetRequirement(def, caster, target); err != nil {
		if paidUpfront {
			handle.RestoreResource(def.ResourceKind, cost)
		}
		return err
	}

	if now < e.gcdEnd[caster] {
		if paidUpfront {
			handle.RestoreResource(def.ResourceKind, cost)
		}
		return engerr.OnCooldownf("global cooldown")
	}

	flags := e.effects.ControlFlags(caster)
	if err := checkControlGate(def, flags); err != nil {
		if paidUpfront {
			handle.RestoreResource(def.ResourceKind, cost)
		}
		return err
	}

	inst.LastUsed = now
	if target != nil {
		inst.TargetID = *target
		inst.HasTarget = true
	} else {
		inst.HasTarget = false
	}
	inst.TargetPoint = point

	e.gcdEnd[caster] = now + def.GlobalCooldown
	e.effects.RemoveOnAction(caster)

	switch def.Category {
	case CategoryInstant:
		e.resolveLocked(def, caster, inst, now)
		inst.CooldownEnd = now + def.Cooldown*(1-cdr)
		inst.OnCooldown = def.Cooldown > 0
	case CategoryCastTime:
		inst.Casting = true
		inst.CastProgress = 0
		e.active[caster] = &ActiveCast{
			SkillID: skillID, TargetID: inst.TargetID, HasTarget: inst.HasTarget,
			TargetPoint: point, StartTime: now, TotalCast: def.CastTime,
		}
	case CategoryChanneling:
		inst.Channeling = true
		inst.ChannelProgress = 0
		e.active[caster] = &ActiveCast{
			SkillID: skillID, TargetID: inst.TargetID, HasTarget: inst.HasTarget,
			TargetPoint: point, StartTime: now, ChannelLeft: def.ChannelDuration, IsChannel: true,
		}
	case CategoryToggle:
		inst.Toggled = !inst.Toggled
	case CategoryPassive:
		return engerr.InvalidStatef("skill %d is passive and cannot be cast", skillID)
	}

	return nil
}

func (e *Engine) checkTargetRequirement(def Definition, caster corestate.EntityID, target *corestate.EntityID) error {
	switch def.TargetRequirement {
	case TargetNone, TargetGround, TargetSelf:
		return nil
	case TargetEnemy, TargetAlly:
		if target == nil {
			return engerr.InvalidTargetf("skill %d requires a target", def.ID)
		}
		h, err := e.entities.Entities.Lookup(*target)
		if err != nil {
			return engerr.InvalidTargetf("target %d not found", *target)
		}
		if !h.IsAlive() || !h.CanBeTargeted() {
			return engerr.InvalidTargetf("target %d cannot be targeted", *target)
		}
		if def.Range > 0 {
			if err := e.checkRangeLocked(def, caster, *target); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

// checkRangeLocked rejects a cast whose target lies beyond the skill's
// declared range. Casters/targets whose Handle doesn't track a meaningful
// position (e.g. test doubles) are never out of range.
func (e *Engine) checkRangeLocked(def Definition, caster, target corestate.EntityID) error {
	casterHandle, err := e.entities.Entities.Lookup(caster)
	if err != nil {
		return nil
	}
	targetHandle, err := e.entities.Entities.Lookup(target)
	if err != nil {
		return nil
	}
	casterPos, _ := casterHandle.Position()
	targetPos, _ := targetHandle.Position()
	dx, dy := targetPos.X-casterPos.X, targetPos.Y-casterPos.Y
	if dx*dx+dy*dy > def.Range*def.Range {
		return engerr.InvalidTargetf("target %d out of range for skill %d", target, def.ID)
	}
	return nil
}

// checkControlGate implements the control-flag → skill gating table.
func checkControlGate(def Definition, flags statuseffect.ControlFlag) error {
	switch {
	case statuseffect.FlagStun.Has(flags):
		return engerr.Blockedf("stunned")
	case statuseffect.FlagSleep.Has(flags), statuseffect.FlagFreeze.Has(flags):
		return engerr.Blockedf("incapacitated")
	case statuseffect.FlagSilence.Has(flags) && def.IsMagical():
		return engerr.Blockedf("silenced")
	case statuseffect.FlagDisarm.Has(flags) && def.DamageType == corestate.Physical && def.Category != CategoryPassive:
		return engerr.Blockedf("disarmed")
	}
	return nil
}

// Interrupt cancels caster's active cast iff its interrupt flags intersect
// the skill's declared vulnerability.
func (e *Engine) Interrupt(caster corestate.EntityID, cause InterruptFlag) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	cast := e.active[caster]
	if cast == nil {
		return false
	}
	def, ok := e.definitions[cast.SkillID]
	if !ok || def.InterruptFlags&cause == 0 {
		return false
	}
	e.clearCastLocked(caster, cast.SkillID)
	return true
}

// CancelSkill cancels caster's active cast unconditionally (a MANUAL
// interrupt that bypasses the skill's declared interrupt-flags filter,
// matching the command queue's CancelSkill{caster}.
func (e *Engine) CancelSkill(caster corestate.EntityID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	cast := e.active[caster]
	if cast == nil {
		return false
	}
	e.clearCastLocked(caster, cast.SkillID)
	return true
}

func (e *Engine) clearCastLocked(caster corestate.EntityID, skillID uint64) {
	delete(e.active, caster)
	if inst, ok := e.instances[caster][skillID]; ok {
		inst.Casting = false
		inst.Channeling = false
		inst.CastProgress = 0
		inst.ChannelProgress = 0
	}
}

// Advance drives CASTING/CHANNELING/TOGGLE progress for every entity with
// in-flight skill state. now is the
// current tick's monotonic timestamp, cdrOf resolves an entity's current
// cooldown-reduction fraction.
func (e *Engine) Advance(dt, now float64, cdrOf func(corestate.EntityID) float64) {
	e.mu.Lock()
	entities := make([]corestate.EntityID, 0, len(e.active))
	for id := range e.active {
		entities = append(entities, id)
	}
	e.mu.Unlock()

	for _, id := range entities {
		e.advanceOne(id, dt, now, cdrOf)
	}

	e.mu.Lock()
	toggled := make([]corestate.EntityID, 0)
	for id, row := range e.instances {
		for _, inst := range row {
			if inst.Toggled {
				toggled = append(toggled, id)
			}
		}
	}
	e.mu.Unlock()
	for _, id := range toggled {
		e.advanceToggles(id, dt)
	}
}

func (e *Engine) advanceOne(caster corestate.EntityID, dt, now float64, cdrOf func(corestate.EntityID) float64) {
	e.mu.Lock()
	cast := e.active[caster]
	if cast == nil {
		e.mu.Unlock()
		return
	}
	def, ok := e.definitions[cast.SkillID]
	if !ok {
		delete(e.active, caster)
		e.mu.Unlock()
		return
	}
	inst := e.instances[caster][cast.SkillID]

	if !cast.IsChannel {
		elapsed := now - cast.StartTime
		progress := 1.0
		if cast.TotalCast > 0 {
			progress = elapsed / cast.TotalCast
		}
		if inst != nil {
			inst.CastProgress = progress
		}
		if progress < 1.0 {
			e.mu.Unlock()
			return
		}
		cdr := 0.0
		if cdrOf != nil {
			cdr = cdrOf(caster)
		}
		e.resolveLocked(def, caster, inst, now)
		if inst != nil {
			inst.OnCooldown = def.Cooldown > 0
			inst.CooldownEnd = now + def.Cooldown*(1-cdr)
		}
		delete(e.active, caster)
		if inst != nil {
			inst.Casting = false
		}
		e.mu.Unlock()
		return
	}

	// Channel: deduct per-second cost, apply the periodic payload, and once the
	// channel time has elapsed clear it and start its cooldown (no further
	// payload runs at the end).
	handle, err := e.entities.Entities.Lookup(caster)
	if err != nil {
		delete(e.active, caster)
		if inst != nil {
			inst.Channeling = false
		}
		e.mu.Unlock()
		return
	}
	cost := def.PerSecondCost * dt
	if cost > 0 && !handle.ConsumeResource(def.ResourceKind, cost) {
		delete(e.active, caster)
		if inst != nil {
			inst.Channeling = false
		}
		e.mu.Unlock()
		return
	}

	elapsedSinceStart := now - cast.StartTime
	if def.TickInterval > 0 {
		prevTicks := int(elapsedSinceStart / def.TickInterval)
		nowTicks := int((elapsedSinceStart + dt) / def.TickInterval)
		if nowTicks > prevTicks {
			e.resolveLocked(def, caster, inst, now)
		}
	}

	cast.ChannelLeft -= dt
	if inst != nil && def.ChannelDuration > 0 {
		inst.ChannelProgress = 1 - cast.ChannelLeft/def.ChannelDuration
	}
	if cast.ChannelLeft <= 0 {
		cdr := 0.0
		if cdrOf != nil {
			cdr = cdrOf(caster)
		}
		delete(e.active, caster)
		if inst != nil {
			inst.Channeling = false
			inst.OnCooldown = def.Cooldown > 0
			inst.CooldownEnd = now + def.Cooldown*(1-cdr)
		}
	}
	e.mu.Unlock()
}

func (e *Engine) advanceToggles(caster corestate.EntityID, dt float64) {
	e.mu.Lock()
	handle, err := e.entities.Entities.Lookup(caster)
	if err != nil {
		e.mu.Unlock()
		return
	}
	for skillID, inst := range e.instances[caster] {
		if !inst.Toggled {
			continue
		}
		def, ok := e.definitions[skillID]
		if !ok {
			continue
		}
		cost := def.PerSecondCost * dt
		if cost > 0 && !handle.ConsumeResource(def.ResourceKind, cost) {
			inst.Toggled = false
		}
	}
	e.mu.Unlock()
}

// resolveLocked implements the Resolution Payload of : a direct
// damage application through damage.Calculate, a status-effect application
// per listed effect id, and AoE fan-out via TargetQuery for non-single
// shapes. Caller must already hold e.mu.
func (e *Engine) resolveLocked(def Definition, caster corestate.EntityID, inst *Instance, now float64) {
	attackerHandle, err := e.entities.Entities.Lookup(caster)
	if err != nil {
		return
	}
	attackerSnap := attackerHandle.Snapshot()

	var targets []corestate.EntityID
	switch def.TargetShape {
	case ShapeSingle:
		if inst != nil && inst.HasTarget {
			targets = []corestate.EntityID{inst.TargetID}
		} else if def.TargetRequirement == TargetSelf {
			targets = []corestate.EntityID{caster}
		}
	default:
		if e.entities.Targets != nil {
			center := corestate.Point{}
			if inst != nil {
				center = inst.TargetPoint
			}
			targets = e.entities.Targets.InRange(center, def.Radius, func(corestate.EntityID) bool { return true })
		}
	}

	source := e.rollSrc(caster, now)

	for _, targetID := range targets {
		targetHandle, err := e.entities.Entities.Lookup(targetID)
		if err != nil {
			continue
		}
		targetSnap := targetHandle.Snapshot()

		if def.BaseDamage > 0 || def.PerRankDamage > 0 {
			rank := 1
			if inst != nil {
				rank = inst.Rank
			}
			base := def.BaseDamage + def.PerRankDamage*float64(rank-1) +
				def.APCoefficient*attackerSnap.AttackPower + def.SPCoefficient*attackerSnap.SpellPower
			record := damage.Calculate(source, caster, targetID, attackerSnap, targetSnap, base, def.DamageType, true, def.ID, now)
			targetHandle.TakeDamage(record.Final)
			targetHandle.OnDamageTaken(record)
			attackerHandle.OnDamageDealt(record)
			e.sink.Publish(gevents.DamageResolved{Record: record})
		}

		for _, effectID := range def.EffectIDs {
			_, _ = e.effects.Apply(targetID, effectID, caster, 1.0, now)
		}
	}
}
