// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package combat implements the Combat Manager (C6): auto-attack
// scheduling, the threat table, the combat log, and area-damage dispatch,
// orchestrating the Damage Calculator, Status-Effect Engine, and Combo
// Controller. Built on the plain-struct, mutex-guarded-map component shape
// used throughout this module; the threat table and ring-buffer combat
// log have no direct upstream equivalent and are authored fresh against
// the data model, in the same idiom.
package combat

import (
	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/skill"
	"github.com/forgewatch/combat-core/statuseffect"
)

// TargetQuery is the spatial-lookup collaborator consumed by
// ExecuteAreaDamage. Supplied by the out-of-scope world/zoning layer.
type TargetQuery interface {
	InRange(center corestate.Point, radius float64, filter func(corestate.EntityID) bool) []corestate.EntityID
}

// PolicyOracle gates attackability between two entities, consumed from the
// PvP Coordinator (C7).
type PolicyOracle interface {
	CanAttack(attacker, target corestate.EntityID) bool
}

// ControlSource is the subset of statuseffect.Engine the Combat Manager
// gates execute_attack/auto-attacks against, mirroring
// skill.checkControlGate's handling of the same control flags on the cast
// side: STUN, SLEEP, and FREEZE block all auto-attacks, and DISARM blocks
// the physical auto-attack specifically.
type ControlSource interface {
	ControlFlags(target corestate.EntityID) statuseffect.ControlFlag
}

// CastInterrupter is the subset of skill.Engine the Combat Manager notifies
// whenever an attack lands non-zero damage, so a damage-interruptible cast
// breaks the instant its caster is hit — "taking damage during a
// damage-interruptible cast" mapped onto skill.Engine.Interrupt by the
// collaborator that observes combat damage.
type CastInterrupter interface {
	Interrupt(caster corestate.EntityID, cause skill.InterruptFlag) bool
}

// PvPNotifier is the subset of pvp.Coordinator the Combat Manager notifies
// whenever an attack it resolves kills its target (ExecuteAttack, including
// auto-attacks, and ExecuteAreaDamage), so such a kill can end a match and
// update ratings the same way an explicit duel-end command does. Skill damage
// is applied by skill.Engine directly and does not reach this hook.
type PvPNotifier interface {
	OnKill(killer, victim corestate.EntityID)
}

// ThreatEdge is one (target, attacker) relation in the threat table.
type ThreatEdge struct {
	Value      float64
	LastUpdate float64
}

// AutoAttackState is the per-attacker auto-attack scheduler row.
type AutoAttackState struct {
	TargetID      corestate.EntityID
	TimeSinceLast float64
	Active        bool
}

// LogEntry is one record in an entity's combat log ring buffer.
type LogEntry struct {
	Record    corestate.DamageRecord
	Timestamp float64
}

// DefaultCombatLogSize is the ring-buffer capacity for an entity's combat log.
const DefaultCombatLogSize = 1000

// AoEThreatMultiplier is the fraction of final damage credited to threat
// for area-damage hits.
const AoEThreatMultiplier = 0.5
