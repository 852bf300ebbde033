// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package combo

import (
	"sync"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/gevents"
)

// EffectGranter is the subset of statuseffect.Engine the Combo Controller
// consumes to grant a finisher's bonus effect.
type EffectGranter interface {
	Apply(target corestate.EntityID, effectID uint64, caster corestate.EntityID, durationScale, now float64) (bool, error)
}

// ResourceAccessor is the subset of corestate.Handle the Combo Controller
// consumes to refund resources via a node's ResourceRefund field, resolved
// through an EntitySource keyed by entity id (entityregistry.Registry
// satisfies EntitySource directly).
type ResourceAccessor interface {
	RestoreResource(kind corestate.ResourceKind, amount float64)
}

// EntitySource resolves an entity id to its ResourceAccessor capability.
type EntitySource interface {
	Lookup(id corestate.EntityID) (corestate.Handle, error)
}

// Manager owns every entity's combo Progress against one shared Trie, per
// shared-definition / owned-instance split.
type Manager struct {
	mu sync.Mutex

	trie      *Trie
	progress  map[corestate.EntityID]*Progress
	pendingDM map[corestate.EntityID]float64
	effects   EffectGranter
	entities  EntitySource
	sink      gevents.Sink
}

// NewManager constructs a Manager over the given shared trie. A nil sink
// discards every published ComboCompleted event. entities is optional: when
// nil, nodes carrying a ResourceRefund simply refund nothing.
func NewManager(trie *Trie, effects EffectGranter, entities EntitySource, sink gevents.Sink) *Manager {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	return &Manager{
		trie:      trie,
		progress:  make(map[corestate.EntityID]*Progress),
		pendingDM: make(map[corestate.EntityID]float64),
		effects:   effects,
		entities:  entities,
		sink:      sink,
	}
}

// Unregister drops entity's combo progress row.
func (m *Manager) Unregister(entity corestate.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, entity)
	delete(m.pendingDM, entity)
}

func (m *Manager) progressFor(entity corestate.EntityID) *Progress {
	p, ok := m.progress[entity]
	if !ok {
		p = &Progress{State: StateIdle}
		m.progress[entity] = p
	}
	return p
}

// Current returns a snapshot of entity's combo progress.
func (m *Manager) Current(entity corestate.EntityID) Progress {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.progressFor(entity)
}

// ProcessInput implements ProcessInput operation: starts a
// new combo from idle, cancels on timeout or invalid input, and advances
// toward (and potentially completing) the trie's next node.
func (m *Manager) ProcessInput(entity corestate.EntityID, symbol Symbol, now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.progressFor(entity)

	if p.State == StateCancelled || p.State == StateInterrupted {
		*p = Progress{State: StateIdle}
	}

	if p.State == StateIdle {
		p.State = StateInProgress
		p.CurrentNode = m.trie.Root
		p.HasNode = true
		p.StartTime = now
		p.InputHistory = nil
		p.AccumulatedDamage = 0
		p.HitCount = 0
		p.CurrentComboID = ""
	} else {
		current := m.trie.node(p.CurrentNode)
		if current != nil && now-p.LastInputTime > current.Window {
			m.cancelLocked(p)
			return
		}
	}

	current := m.trie.node(p.CurrentNode)
	if current == nil {
		m.cancelLocked(p)
		return
	}

	nextID, ok := current.Next[symbol]
	if !ok {
		m.cancelLocked(p)
		return
	}

	next := m.trie.node(nextID)
	if next == nil {
		m.cancelLocked(p)
		return
	}

	p.CurrentNode = nextID
	p.InputHistory = append(p.InputHistory, symbol)
	p.LastInputTime = now

	if next.ResourceRefund > 0 && next.ResourceKind != "" && m.entities != nil {
		if handle, err := m.entities.Lookup(entity); err == nil {
			handle.RestoreResource(next.ResourceKind, next.ResourceRefund)
		}
	}

	if next.ComboID != "" {
		p.CurrentComboID = next.ComboID
	}
	if next.IsFinisher {
		m.finishLocked(entity, p, next, now)
	}
}

// NotifyOutcome feeds a combat-resolution outcome into entity's combo
// progress as a synthetic symbol (SymbolCritical, SymbolDodgeSuccess, ...),
// so combo trees can branch on crit/dodge/block/parry the same way they
// branch on raw inputs. Outcomes with no corresponding synthetic symbol are
// ignored rather than treated as an invalid input that cancels the combo.
func (m *Manager) NotifyOutcome(entity corestate.EntityID, outcome corestate.Outcome, now float64) {
	symbol, ok := outcomeSymbol(outcome)
	if !ok {
		return
	}
	m.ProcessInput(entity, symbol, now)
}

func outcomeSymbol(outcome corestate.Outcome) (Symbol, bool) {
	switch outcome {
	case corestate.OutcomeCritical:
		return SymbolCritical, true
	case corestate.OutcomeDodge:
		return SymbolDodgeSuccess, true
	case corestate.OutcomeBlock:
		return SymbolBlockSuccess, true
	case corestate.OutcomeParry:
		return SymbolParrySuccess, true
	default:
		return "", false
	}
}

func (m *Manager) cancelLocked(p *Progress) {
	*p = Progress{State: StateCancelled}
}

// Interrupt transitions entity's combo progress to the distinct INTERRUPTED
// terminal state (external stimulus: stun, death), separate from ordinary
// cancellation. Reset to IDLE happens lazily on the next input.
func (m *Manager) Interrupt(entity corestate.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.progressFor(entity)
	if p.State == StateInProgress {
		p.State = StateInterrupted
	}
}

// RegisterHit is called by combat.Manager when entity lands damage while
// mid-combo: accumulates hit count and damage for the eventual finisher
// event.
func (m *Manager) RegisterHit(entity corestate.EntityID, damage float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.progressFor(entity)
	if p.State != StateInProgress {
		return
	}
	p.HitCount++
	p.AccumulatedDamage += damage
}

// finishLocked runs the combo's completion effects and returns the entity
// to idle. Caller must hold m.mu.
func (m *Manager) finishLocked(entity corestate.EntityID, p *Progress, finisher *Node, now float64) {
	comboID := p.CurrentComboID
	hits := p.HitCount
	damage := p.AccumulatedDamage

	if finisher.BonusEffectID != 0 && m.effects != nil {
		_, _ = m.effects.Apply(entity, finisher.BonusEffectID, entity, 1.0, now)
	}
	if finisher.DamageMultiplier > 0 {
		m.pendingDM[entity] = finisher.DamageMultiplier
	}

	m.sink.Publish(gevents.ComboCompleted{Entity: entity, Combo: comboID, Hits: hits, Damage: damage})

	*p = Progress{State: StateIdle}
}

// ConsumeDamageMultiplier returns and clears the damage multiplier granted
// by entity's most recently completed finisher, so the Combat Manager can
// apply it to the very next attack the finisher empowers. Returns 0 (no
// multiplier pending) if the entity hasn't just finished a combo granting
// one.
func (m *Manager) ConsumeDamageMultiplier(entity corestate.EntityID) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	dm := m.pendingDM[entity]
	delete(m.pendingDM, entity)
	return dm
}

// Update implements Update(dt): cancels any combo whose
// total elapsed time has exceeded the trie's overall time cap, or whose time
// since its last input has exceeded the current node's timing window.
func (m *Manager) Update(dt, now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.progress {
		if p.State != StateInProgress {
			continue
		}
		if m.trie.OverallTimeCap > 0 && now-p.StartTime > m.trie.OverallTimeCap {
			m.cancelLocked(p)
			continue
		}
		if node := m.trie.node(p.CurrentNode); node != nil && now-p.LastInputTime > node.Window {
			m.cancelLocked(p)
		}
	}
}
