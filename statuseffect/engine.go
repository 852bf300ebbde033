// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package statuseffect

import (
	"sync"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/engerr"
	"github.com/forgewatch/combat-core/gevents"
)

// Engine is the Status-Effect Engine (C3): owns every effect instance in
// the simulation, keyed by target, and the derived immunity/control-flag
// state those instances imply.
type Engine struct {
	mu sync.Mutex

	definitions map[uint64]Definition
	instances   map[corestate.EntityID][]*Instance
	immunities  map[corestate.EntityID]*immunityInfo

	sink gevents.Sink
}

// New constructs an Engine over the given immutable definition catalog.
// A nil sink defaults to discarding every published event.
func New(definitions map[uint64]Definition, sink gevents.Sink) *Engine {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	cloned := make(map[uint64]Definition, len(definitions))
	for id, def := range definitions {
		cloned[id] = def
	}
	return &Engine{
		definitions: cloned,
		instances:   make(map[corestate.EntityID][]*Instance),
		immunities:  make(map[corestate.EntityID]*immunityInfo),
		sink:        sink,
	}
}

func (e *Engine) definition(id uint64) (Definition, error) {
	def, ok := e.definitions[id]
	if !ok {
		return Definition{}, engerr.NotFoundf("status effect definition %d", id)
	}
	return def, nil
}

func (e *Engine) immunityFor(target corestate.EntityID) *immunityInfo {
	info, ok := e.immunities[target]
	if !ok {
		info = newImmunityInfo()
		e.immunities[target] = info
	}
	return info
}

// ImmuneTo reports whether target is currently immune to the given effect,
// either by definition id or by the definition's dispel category.
func (e *Engine) ImmuneTo(target corestate.EntityID, effectID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.immuneToLocked(target, effectID)
}

func (e *Engine) immuneToLocked(target corestate.EntityID, effectID uint64) bool {
	info, ok := e.immunities[target]
	if !ok {
		return false
	}
	if info.immuneToID(effectID) {
		return true
	}
	def, ok := e.definitions[effectID]
	if !ok {
		return false
	}
	return info.immuneToCategory(def.DispelCategory)
}

// Apply applies effectID to target, sourced from caster, with the
// definition's base duration scaled by durationScale, including its
// stack-behavior switch.
func (e *Engine) Apply(target corestate.EntityID, effectID uint64, caster corestate.EntityID, durationScale, now float64) (bool, error) {
	return e.applyStacked(target, effectID, caster, durationScale, 1, now)
}

// ApplyStacks applies n stacks of effectID to target in one call, used by
// effects that grant multiple stacks atomically (e.g. a finisher reward).
func (e *Engine) ApplyStacks(target corestate.EntityID, effectID uint64, caster corestate.EntityID, n int, now float64) (bool, error) {
	return e.applyStacked(target, effectID, caster, 1.0, n, now)
}

func (e *Engine) applyStacked(target corestate.EntityID, effectID uint64, caster corestate.EntityID, durationScale float64, n int, now float64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def, err := e.definition(effectID)
	if err != nil {
		return false, err
	}

	if e.immuneToLocked(target, effectID) {
		return false, engerr.Immunef("entity %d is immune to effect %d", target, effectID)
	}

	existing := e.findInstanceLocked(target, effectID, caster, def.StackBehavior)
	if existing != nil {
		e.restackLocked(existing, def, durationScale, n, now)
	} else {
		inst := &Instance{
			DefinitionID:     effectID,
			CasterID:         caster,
			ApplyTime:        now,
			LastTick:         now,
			Stacks:           clampStacks(n, def.MaxStacks),
			StackMultiplier:  1,
			Active:           true,
			PowerCoefficient: 1,
		}
		if !def.NoExpiry() {
			inst.ExpireTime = now + def.BaseDuration*durationScale
		}
		e.instances[target] = append(e.instances[target], inst)
		e.immunityFor(target).grant(def)
	}

	e.sink.Publish(gevents.EffectApplied{Target: target, Effect: def.Name, Caster: caster, Stacks: n})
	return true, nil
}

// findInstanceLocked locates an existing instance of effectID on target,
// scoped to caster when stack behavior is UNIQUE_SOURCE.
func (e *Engine) findInstanceLocked(target corestate.EntityID, effectID uint64, caster corestate.EntityID, behavior StackBehavior) *Instance {
	for _, inst := range e.instances[target] {
		if inst.DefinitionID != effectID || !inst.Active {
			continue
		}
		if behavior == StackUniqueSource && inst.CasterID != caster {
			continue
		}
		return inst
	}
	return nil
}

func (e *Engine) restackLocked(inst *Instance, def Definition, durationScale float64, n int, now float64) {
	switch def.StackBehavior {
	case StackDuration:
		if !def.NoExpiry() {
			inst.ExpireTime += def.BaseDuration * durationScale
		}
	case StackIntensity:
		inst.Stacks = clampStacks(inst.Stacks+n, def.MaxStacks)
	case StackRefresh:
		inst.Stacks = clampStacks(inst.Stacks+n, def.MaxStacks)
		if !def.NoExpiry() {
			inst.ExpireTime = now + def.BaseDuration*durationScale
		}
	case StackUniqueSource:
		inst.Stacks = clampStacks(inst.Stacks+n, def.MaxStacks)
	default: // NONE
		if !def.NoExpiry() {
			inst.ExpireTime = now + def.BaseDuration*durationScale
		}
	}
}

func clampStacks(n, max int) int {
	if max > 0 && n > max {
		return max
	}
	if n < 1 {
		return 1
	}
	return n
}

// Remove removes every instance of effectID on target. If casterFilter is
// non-nil, only instances sourced from that caster are removed.
func (e *Engine) Remove(target corestate.EntityID, effectID uint64, casterFilter *corestate.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	def := e.definitions[effectID]
	kept := e.instances[target][:0]
	for _, inst := range e.instances[target] {
		if inst.DefinitionID == effectID && (casterFilter == nil || inst.CasterID == *casterFilter) {
			e.immunityFor(target).withdraw(def)
			e.sink.Publish(gevents.EffectExpired{Target: target, Effect: def.Name})
			continue
		}
		kept = append(kept, inst)
	}
	e.instances[target] = kept
}

// RemoveAll removes every effect instance on target.
func (e *Engine) RemoveAll(target corestate.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, inst := range e.instances[target] {
		if def, ok := e.definitions[inst.DefinitionID]; ok {
			e.sink.Publish(gevents.EffectExpired{Target: target, Effect: def.Name})
		}
	}
	delete(e.instances, target)
	delete(e.immunities, target)
}

// RemoveAllOnDeath clears every instance on target whose definition does
// not carry PersistThroughDeath, called by the Combat Manager when target
// dies. Instances flagged PersistThroughDeath (e.g. a soul-link debuff
// meant to carry into a rez) survive.
func (e *Engine) RemoveAllOnDeath(target corestate.EntityID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	kept := e.instances[target][:0:0]
	for _, inst := range e.instances[target] {
		def, ok := e.definitions[inst.DefinitionID]
		if ok && def.PersistThroughDeath {
			kept = append(kept, inst)
			continue
		}
		if ok {
			e.immunityFor(target).withdraw(def)
			e.sink.Publish(gevents.EffectExpired{Target: target, Effect: def.Name})
		}
	}
	if len(kept) == 0 {
		delete(e.instances, target)
	} else {
		e.instances[target] = kept
	}
	if info, ok := e.immunities[target]; ok && info.empty() {
		delete(e.immunities, target)
	}
}

// RemoveOnAction clears every active instance on target flagged
// RemoveOnAction, called whenever target performs an action (auto-attack,
// skill cast) that should strip such effects — e.g. a defensive buff that
// breaks the moment its holder swings back.
func (e *Engine) RemoveOnAction(target corestate.EntityID) int {
	return e.removeMatching(target, -1, func(def Definition) bool {
		return def.RemoveOnAction
	})
}

// RemoveByCategory removes every active instance on target whose
// definition's dispel category matches category.
func (e *Engine) RemoveByCategory(target corestate.EntityID, category DispelCategory) int {
	return e.removeMatching(target, -1, func(def Definition) bool {
		return def.DispelCategory == category
	})
}

// RemoveDebuffs removes up to n debuff instances on target.
func (e *Engine) RemoveDebuffs(target corestate.EntityID, n int) int {
	return e.removeMatching(target, n, func(def Definition) bool {
		return def.Kind == KindDebuff
	})
}

// DispelMagic removes up to n effects of category MAGIC on target. When
// friendly is true it strips debuffs (a self/ally cleanse); when false it
// strips buffs (an offensive dispel). It never crosses that line: a
// friendly dispel never touches a buff and vice versa.
func (e *Engine) DispelMagic(target corestate.EntityID, friendly bool, n int) int {
	wantKind := KindBuff
	if friendly {
		wantKind = KindDebuff
	}
	return e.removeMatching(target, n, func(def Definition) bool {
		return def.DispelCategory == CategoryMagic && def.Kind == wantKind
	})
}

// CleansePoisonDisease removes every instance on target categorized as
// POISON or DISEASE.
func (e *Engine) CleansePoisonDisease(target corestate.EntityID) int {
	return e.removeMatching(target, -1, func(def Definition) bool {
		return def.DispelCategory == CategoryPoison || def.DispelCategory == CategoryDisease
	})
}

// RemoveCurse removes every instance on target categorized as CURSE.
func (e *Engine) RemoveCurse(target corestate.EntityID) int {
	return e.removeMatching(target, -1, func(def Definition) bool {
		return def.DispelCategory == CategoryCurse
	})
}

func (e *Engine) removeMatching(target corestate.EntityID, limit int, match func(Definition) bool) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	removed := 0
	kept := e.instances[target][:0]
	for _, inst := range e.instances[target] {
		def, ok := e.definitions[inst.DefinitionID]
		if !ok || !match(def) || (limit >= 0 && removed >= limit) {
			kept = append(kept, inst)
			continue
		}
		e.immunityFor(target).withdraw(def)
		e.sink.Publish(gevents.EffectExpired{Target: target, Effect: def.Name})
		removed++
	}
	e.instances[target] = kept
	return removed
}

// Active returns a snapshot of every active instance on target.
func (e *Engine) Active(target corestate.EntityID) []Instance {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]Instance, 0, len(e.instances[target]))
	for _, inst := range e.instances[target] {
		out = append(out, *inst)
	}
	return out
}

// Has reports whether target has any active instance of effectID.
func (e *Engine) Has(target corestate.EntityID, effectID uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.findInstanceLocked(target, effectID, 0, StackNone) != nil
}

// Stacks returns the current stack count of effectID on target, or 0.
func (e *Engine) Stacks(target corestate.EntityID, effectID uint64) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, inst := range e.instances[target] {
		if inst.DefinitionID == effectID && inst.Active {
			return inst.Stacks
		}
	}
	return 0
}

// ControlFlags returns the bitwise OR of control flags of every active
// effect on target.
func (e *Engine) ControlFlags(target corestate.EntityID) ControlFlag {
	e.mu.Lock()
	defer e.mu.Unlock()

	var flags ControlFlag
	for _, inst := range e.instances[target] {
		if def, ok := e.definitions[inst.DefinitionID]; ok {
			flags |= def.ControlFlags
		}
	}
	return flags
}

// IsStunned reports whether target currently carries the STUN flag.
func (e *Engine) IsStunned(target corestate.EntityID) bool {
	return FlagStun.Has(e.ControlFlags(target))
}

// IsSilenced reports whether target currently carries the SILENCE flag.
func (e *Engine) IsSilenced(target corestate.EntityID) bool {
	return FlagSilence.Has(e.ControlFlags(target))
}

// IsRooted reports whether target currently carries the ROOT flag.
func (e *Engine) IsRooted(target corestate.EntityID) bool {
	return FlagRoot.Has(e.ControlFlags(target))
}

// TotalStatModifier computes the combined delta for statName across every
// active instance on target, using the composition rule:
// delta = flat + (percent/100) * multiplier.
func (e *Engine) TotalStatModifier(target corestate.EntityID, statName string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()

	var flat, percent, multiplier float64 = 0, 0, 1
	for _, inst := range e.instances[target] {
		def, ok := e.definitions[inst.DefinitionID]
		if !ok {
			continue
		}
		for _, mod := range def.Modifiers {
			if mod.Stat != statName {
				continue
			}
			scaled := mod.Value * float64(inst.Stacks) * inst.StackMultiplier
			switch mod.Kind {
			case ModifierFlat:
				flat += scaled
			case ModifierPercent:
				percent += scaled
			case ModifierMultiplier:
				multiplier *= mod.Value
			}
		}
	}
	return flat + (percent/100)*multiplier
}

// OnDamageTaken notifies the engine that target took damage, so that
// remove_on_damage effects (e.g. SLEEP) can be withdrawn.
func (e *Engine) OnDamageTaken(target corestate.EntityID) {
	e.removeMatching(target, -1, func(def Definition) bool {
		return def.RemoveOnDamage
	})
}

// Tick advances every active instance by dt using a two-phase
// tick algorithm: expiry/periodic-payload evaluation first, then a single
// post-iteration removal fixup so the instance slice is never mutated
// mid-range.
func (e *Engine) Tick(dt float64, now float64, handles map[corestate.EntityID]corestate.Handle) {
	e.mu.Lock()
	targets := make([]corestate.EntityID, 0, len(e.instances))
	for target := range e.instances {
		targets = append(targets, target)
	}
	e.mu.Unlock()

	for _, target := range targets {
		e.tickTarget(target, now, handles[target])
	}
}

func (e *Engine) tickTarget(target corestate.EntityID, now float64, handle corestate.Handle) {
	e.mu.Lock()
	instances := e.instances[target]

	var expired []*Instance
	var payloads []func()

	for _, inst := range instances {
		if !e.definitionExistsLocked(inst.DefinitionID) {
			continue
		}
		def := e.definitions[inst.DefinitionID]

		if !def.NoExpiry() && inst.ExpireTime <= now {
			expired = append(expired, inst)
			continue
		}

		if def.TickInterval > 0 && now-inst.LastTick >= def.TickInterval {
			inst.LastTick = now
			if handle != nil {
				amount := float64(inst.Stacks) * inst.PowerCoefficient
				if def.TickDamage > 0 {
					dmg := def.TickDamage * amount
					payloads = append(payloads, func() { handle.TakeDamage(dmg) })
				}
				if def.TickHealing > 0 {
					heal := def.TickHealing * amount
					payloads = append(payloads, func() { handle.Heal(heal) })
				}
			}
		}
	}

	if len(expired) > 0 {
		kept := instances[:0]
		expiredSet := make(map[*Instance]bool, len(expired))
		for _, inst := range expired {
			expiredSet[inst] = true
		}
		for _, inst := range instances {
			if expiredSet[inst] {
				continue
			}
			kept = append(kept, inst)
		}
		e.instances[target] = kept

		for _, inst := range expired {
			def := e.definitions[inst.DefinitionID]
			e.immunityFor(target).withdraw(def)
			e.sink.Publish(gevents.EffectExpired{Target: target, Effect: def.Name})
		}
	}
	e.mu.Unlock()

	for _, payload := range payloads {
		payload()
	}
}

func (e *Engine) definitionExistsLocked(id uint64) bool {
	_, ok := e.definitions[id]
	return ok
}
