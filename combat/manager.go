// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package combat

import (
	"math"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/damage"
	"github.com/forgewatch/combat-core/engerr"
	"github.com/forgewatch/combat-core/gevents"
	"github.com/forgewatch/combat-core/roll"
	"github.com/forgewatch/combat-core/skill"
	"github.com/forgewatch/combat-core/statuseffect"
)

// EntitySource resolves an entity id to its capability handle.
// entityregistry.Registry satisfies this.
type EntitySource interface {
	Lookup(id corestate.EntityID) (corestate.Handle, error)
}

// ComboHitRegistrar is the subset of combo.Manager the Combat Manager
// notifies when an entity lands damage mid-combo, when that damage resolves
// to an outcome a combo tree can branch on (crit, dodge, block, parry), and
// when an entity's combo must be interrupted by an external stimulus (death)
// rather than ordinary cancellation.
type ComboHitRegistrar interface {
	RegisterHit(entity corestate.EntityID, damage float64)
	NotifyOutcome(entity corestate.EntityID, outcome corestate.Outcome, now float64)
	ConsumeDamageMultiplier(entity corestate.EntityID) float64
	Interrupt(entity corestate.EntityID)
}

// RollSource mints a per-actor PRNG for one damage resolution, so every
// roll is reproducible from (attacker, timestamp) alone.
type RollSource func(attacker corestate.EntityID, timestamp float64) roll.Source

// EffectRemover is the subset of statuseffect.Engine the Combat Manager
// consumes to strip action-breaking effects whenever an entity acts, and to
// clear non-persistent effects the instant an entity dies.
type EffectRemover interface {
	RemoveOnAction(entity corestate.EntityID) int
	RemoveAllOnDeath(entity corestate.EntityID)
}

// Manager is the Combat Manager (C6).
type Manager struct {
	mu sync.Mutex

	entities EntitySource
	policy   PolicyOracle
	control  ControlSource
	combo    ComboHitRegistrar
	effects  EffectRemover
	casts    CastInterrupter
	pvp      PvPNotifier
	rollSrc  RollSource
	sink     gevents.Sink

	threat     map[corestate.EntityID]map[corestate.EntityID]*ThreatEdge
	logs       map[corestate.EntityID][]LogEntry
	logSize    int
	autoAttack map[corestate.EntityID]*AutoAttackState
}

// New constructs a Manager. control, combo, effects, casts, pvp, and policy
// may all be nil (control-flag gating, auto-attack combo notification,
// action-break/death effect cleanup, damage-interrupt notification, kill
// notification, and attackability gating are then skipped / always
// allowed).
func New(entities EntitySource, policy PolicyOracle, control ControlSource, combo ComboHitRegistrar, effects EffectRemover, casts CastInterrupter, pvp PvPNotifier, rollSrc RollSource, sink gevents.Sink) *Manager {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	if rollSrc == nil {
		rollSrc = func(attacker corestate.EntityID, timestamp float64) roll.Source {
			return roll.NewDeterministic(0, uint64(timestamp*1000), uint64(attacker))
		}
	}
	return &Manager{
		entities:   entities,
		policy:     policy,
		control:    control,
		combo:      combo,
		effects:    effects,
		casts:      casts,
		pvp:        pvp,
		rollSrc:    rollSrc,
		sink:       sink,
		threat:     make(map[corestate.EntityID]map[corestate.EntityID]*ThreatEdge),
		logs:       make(map[corestate.EntityID][]LogEntry),
		logSize:    DefaultCombatLogSize,
		autoAttack: make(map[corestate.EntityID]*AutoAttackState),
	}
}

// Unregister removes every threat edge referencing entity (either as target
// or attacker), its combat log, and its auto-attack row.
func (m *Manager) Unregister(entity corestate.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.threat, entity)
	for target, attackers := range m.threat {
		delete(attackers, entity)
		if len(attackers) == 0 {
			delete(m.threat, target)
		}
	}
	delete(m.logs, entity)
	delete(m.autoAttack, entity)
	for attacker, state := range m.autoAttack {
		if state.TargetID == entity {
			delete(m.autoAttack, attacker)
		}
	}
}

func (m *Manager) canAttack(attacker, target corestate.EntityID) bool {
	if attacker == target {
		return false
	}
	if m.control != nil && blocksAutoAttack(m.control.ControlFlags(attacker)) {
		return false
	}
	if m.policy == nil {
		return true
	}
	return m.policy.CanAttack(attacker, target)
}

// blocksAutoAttack reports whether flags prevent the physical auto-attack:
// STUN, SLEEP, and FREEZE block every action, DISARM blocks the physical
// auto-attack specifically, mirroring skill.checkControlGate's handling of
// the same flags on the cast side.
func blocksAutoAttack(flags statuseffect.ControlFlag) bool {
	return statuseffect.FlagStun.Has(flags) ||
		statuseffect.FlagSleep.Has(flags) ||
		statuseffect.FlagFreeze.Has(flags) ||
		statuseffect.FlagDisarm.Has(flags)
}

// ExecuteAttack implements execute_attack operation: hit
// resolution, life steal, threat, combat log, event hooks, and death
// handling.
func (m *Manager) ExecuteAttack(attackerID, targetID corestate.EntityID, now float64) (corestate.DamageRecord, error) {
	attacker, err := m.entities.Lookup(attackerID)
	if err != nil {
		return corestate.DamageRecord{}, err
	}
	target, err := m.entities.Lookup(targetID)
	if err != nil {
		return corestate.DamageRecord{}, err
	}
	if !attacker.IsAlive() || !target.IsAlive() {
		return corestate.DamageRecord{}, engerr.InvalidStatef("attacker or target is dead")
	}
	if !m.canAttack(attackerID, targetID) {
		return corestate.DamageRecord{}, engerr.Rejectedf("attack denied by policy")
	}

	attackerSnap := attacker.Snapshot()
	targetSnap := target.Snapshot()
	source := m.rollSrc(attackerID, now)

	base := attackerSnap.AttackPower
	if m.combo != nil {
		if dm := m.combo.ConsumeDamageMultiplier(attackerID); dm > 0 {
			base *= dm
		}
	}

	record := damage.Calculate(source, attackerID, targetID, attackerSnap, targetSnap, base, corestate.Physical, false, 0, now)

	if m.effects != nil {
		m.effects.RemoveOnAction(attackerID)
	}

	m.apply(attacker, target, record, now, 1.0)

	if m.combo != nil {
		m.combo.RegisterHit(attackerID, record.Final)
		m.combo.NotifyOutcome(attackerID, record.Outcome, now)
	}

	if !target.IsAlive() {
		m.onDeath(attacker, target, now)
	}

	return record, nil
}

// apply commits the shared post-resolution bookkeeping every damage path
// (single-target and area) performs: target mutation, life steal, threat,
// combat log, hooks, and the DamageResolved publish.
func (m *Manager) apply(attacker, target corestate.Handle, record corestate.DamageRecord, now float64, threatMultiplier float64) {
	target.TakeDamage(record.Final)

	if record.Final > 0 {
		lifeSteal := attacker.Snapshot().LifeStealFraction
		if lifeSteal > 0 {
			attacker.Heal(record.Final * lifeSteal)
		}
		m.addThreat(target.ID(), attacker.ID(), record.Final*threatMultiplier, now)

		if m.casts != nil {
			m.casts.Interrupt(target.ID(), skill.InterruptDamage)
		}
	}

	m.appendLog(attacker.ID(), LogEntry{Record: record, Timestamp: now})
	m.appendLog(target.ID(), LogEntry{Record: record, Timestamp: now})

	attacker.OnDamageDealt(record)
	target.OnDamageTaken(record)

	m.sink.Publish(gevents.DamageResolved{Record: record})
}

func (m *Manager) onDeath(attacker, target corestate.Handle, now float64) {
	targetID, attackerID := target.ID(), attacker.ID()
	target.OnDeath(attackerID, true)
	if m.effects != nil {
		m.effects.RemoveAllOnDeath(targetID)
	}
	if m.combo != nil {
		m.combo.Interrupt(targetID)
	}
	attacker.OnKill(targetID)
	m.sink.Publish(gevents.EntityDied{Entity: targetID, Killer: attackerID, HasKiller: true})
	m.StopAutoAttack(attackerID)
	if m.pvp != nil {
		m.pvp.OnKill(attackerID, targetID)
	}

	m.mu.Lock()
	delete(m.threat, targetID)
	for _, attackers := range m.threat {
		delete(attackers, targetID)
	}
	m.mu.Unlock()
}

// ExecuteAreaDamage implements execute_area_damage: queries
// TargetQuery for entities within radius matching filter, resolves each
// target's damage independently, and credits half threat per hit. Per-
// target resolution is fanned out via a bounded errgroup — every goroutine completes before the call
// returns, so the tick's single-writer contract is preserved; only the
// read-only Calculate step runs concurrently, and results are merged back
// by this goroutine alone.
func (m *Manager) ExecuteAreaDamage(attackerID corestate.EntityID, center corestate.Point, radius, base float64, dtype corestate.DamageType, query TargetQuery, filter func(corestate.EntityID) bool, now float64) ([]corestate.DamageRecord, error) {
	attacker, err := m.entities.Lookup(attackerID)
	if err != nil {
		return nil, err
	}
	if query == nil {
		return nil, nil
	}

	targetIDs := query.InRange(center, radius, filter)
	records := make([]corestate.DamageRecord, len(targetIDs))
	resolved := make([]bool, len(targetIDs))

	if m.effects != nil {
		m.effects.RemoveOnAction(attackerID)
	}

	attackerSnap := attacker.Snapshot()

	var group errgroup.Group
	for i, targetID := range targetIDs {
		i, targetID := i, targetID
		group.Go(func() error {
			target, err := m.entities.Lookup(targetID)
			if err != nil {
				return nil
			}
			if !target.IsAlive() || !m.canAttack(attackerID, targetID) {
				return nil
			}
			source := m.rollSrc(attackerID, now+float64(i)*1e-6)
			records[i] = damage.Calculate(source, attackerID, targetID, attackerSnap, target.Snapshot(), base, dtype, true, 0, now)
			resolved[i] = true
			return nil
		})
	}
	_ = group.Wait()

	out := make([]corestate.DamageRecord, 0, len(targetIDs))
	for i, targetID := range targetIDs {
		if !resolved[i] {
			continue
		}
		target, err := m.entities.Lookup(targetID)
		if err != nil {
			continue
		}
		m.apply(attacker, target, records[i], now, AoEThreatMultiplier)
		if !target.IsAlive() {
			m.onDeath(attacker, target, now)
		}
		out = append(out, records[i])
	}

	return out, nil
}

func (m *Manager) addThreat(target, attacker corestate.EntityID, amount, now float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.threat[target]
	if !ok {
		row = make(map[corestate.EntityID]*ThreatEdge)
		m.threat[target] = row
	}
	edge, ok := row[attacker]
	if !ok {
		edge = &ThreatEdge{}
		row[attacker] = edge
	}
	edge.Value += amount
	edge.LastUpdate = now
}

// HighestThreat returns the attacker id with maximum threat value against
// target, ties broken by most recent update.6.
func (m *Manager) HighestThreat(target corestate.EntityID) (corestate.EntityID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row := m.threat[target]
	var best corestate.EntityID
	var bestEdge *ThreatEdge
	for attacker, edge := range row {
		if bestEdge == nil || edge.Value > bestEdge.Value ||
			(edge.Value == bestEdge.Value && edge.LastUpdate > bestEdge.LastUpdate) {
			best = attacker
			bestEdge = edge
		}
	}
	return best, bestEdge != nil
}

func (m *Manager) appendLog(entity corestate.EntityID, entry LogEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[entity]
	log = append(log, entry)
	if len(log) > m.logSize {
		log = log[len(log)-m.logSize:]
	}
	m.logs[entity] = log
}

// RecentLog returns at most the last k entries of entity's combat log.
func (m *Manager) RecentLog(entity corestate.EntityID, k int) []LogEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	log := m.logs[entity]
	if k <= 0 || k > len(log) {
		k = len(log)
	}
	out := make([]LogEntry, k)
	copy(out, log[len(log)-k:])
	return out
}

// StartAutoAttack begins (or retargets) attacker's auto-attack scheduler
// entry.
func (m *Manager) StartAutoAttack(attacker, target corestate.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.autoAttack[attacker] = &AutoAttackState{TargetID: target, Active: true}
}

// StopAutoAttack clears attacker's auto-attack scheduler entry.
func (m *Manager) StopAutoAttack(attacker corestate.EntityID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.autoAttack, attacker)
}

// AdvanceAutoAttacks implements auto-attack scheduler
// update(dt): advances every active entry's timer and fires ExecuteAttack
// when the attack-speed interval elapses. Stopping an entry never mutates
// the map mid-iteration; removals are collected and applied after.
func (m *Manager) AdvanceAutoAttacks(dt, now float64) {
	m.mu.Lock()
	type row struct {
		attacker corestate.EntityID
		state    *AutoAttackState
	}
	rows := make([]row, 0, len(m.autoAttack))
	for attacker, state := range m.autoAttack {
		rows = append(rows, row{attacker, state})
	}
	m.mu.Unlock()

	var toStop []corestate.EntityID
	for _, r := range rows {
		attackerHandle, err := m.entities.Lookup(r.attacker)
		if err != nil || !attackerHandle.CanAttack() {
			toStop = append(toStop, r.attacker)
			continue
		}
		if m.control != nil && blocksAutoAttack(m.control.ControlFlags(r.attacker)) {
			toStop = append(toStop, r.attacker)
			continue
		}
		targetHandle, err := m.entities.Lookup(r.state.TargetID)
		if err != nil || !targetHandle.IsAlive() || !targetHandle.CanBeTargeted() {
			toStop = append(toStop, r.attacker)
			continue
		}

		r.state.TimeSinceLast += dt
		speed := attackerHandle.Snapshot().AttackSpeed
		if speed <= 0 {
			continue
		}
		interval := 1.0 / speed
		if r.state.TimeSinceLast >= interval {
			if _, err := m.ExecuteAttack(r.attacker, r.state.TargetID, now); err != nil {
				toStop = append(toStop, r.attacker)
				continue
			}
			r.state.TimeSinceLast = 0
		}
	}

	if len(toStop) > 0 {
		m.mu.Lock()
		for _, attacker := range toStop {
			delete(m.autoAttack, attacker)
		}
		m.mu.Unlock()
	}
}

// IsBehindTarget reports true iff the angle between the target-to-attacker
// vector and the target's back vector is less than π/2.
func IsBehindTarget(attackerXY, targetXY corestate.Point, facing float64) bool {
	return angleWithin(attackerXY, targetXY, facing, math.Pi/2)
}

// IsBesideTarget is the side-positional analogue supplemented from
// the source POSITION_SIDE combo trigger: true iff
// the attacker is within a band around the target's flank (between the back
// half-plane and directly-in-front), used only by the supplemented combo
// triggers.
func IsBesideTarget(attackerXY, targetXY corestate.Point, facing float64) bool {
	return !angleWithin(attackerXY, targetXY, facing, math.Pi/4) && angleWithin(attackerXY, targetXY, facing, 3*math.Pi/4)
}

// angleWithin reports whether the angle between the target-to-attacker
// vector and the target's back vector (facing + π) is less than maxAngle.
func angleWithin(attackerXY, targetXY corestate.Point, facing, maxAngle float64) bool {
	dx := attackerXY.X - targetXY.X
	dy := attackerXY.Y - targetXY.Y
	toAttacker := math.Atan2(dy, dx)

	back := facing + math.Pi
	diff := normalizeAngle(toAttacker - back)
	return math.Abs(diff) < maxAngle
}

func normalizeAngle(a float64) float64 {
	for a > math.Pi {
		a -= 2 * math.Pi
	}
	for a < -math.Pi {
		a += 2 * math.Pi
	}
	return a
}
