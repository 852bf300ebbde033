// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package damage implements the Damage Calculator (C2): a pure,
// side-effect-free resolution function over attacker/target snapshots.
// Damage types and stats come from corestate's snapshot types; the
// mitigation pipeline itself is authored
// fresh as a pure function that never mutates either snapshot and never
// reaches for a package-global random source.
package damage

import (
	"math"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/roll"
)

// defensiveConstant and elementalConstant are the denominators of the
// diminishing-returns mitigation curves from step 4.
const (
	defensiveConstant = 100.0
	elementalConstant = 150.0
	minimumDamage     = 1.0
)

// Calculate resolves one damage application into a DamageRecord, following
// procedure exactly: outcome determination in fixed priority
// order, a pre-mitigation base by outcome, then offensive/defensive/
// elemental modifiers in a fixed pipeline. Neither snapshot is mutated.
func Calculate(
	source roll.Source,
	attackerID, targetID corestate.EntityID,
	attacker, target corestate.CombatStats,
	base float64,
	dtype corestate.DamageType,
	isSkill bool,
	skillID uint64,
	timestamp float64,
) corestate.DamageRecord {
	outcome := determineOutcome(source, attacker, target, isSkill)
	pre := preMitigation(outcome, attacker, base)

	final := pre
	if final > 0 {
		final = applyModifiers(final, dtype, attacker, target)
	}

	return corestate.DamageRecord{
		AttackerID: attackerID,
		TargetID:   targetID,
		DamageType: dtype,
		Base:       base,
		Final:      final,
		Outcome:    outcome,
		IsSkill:    isSkill,
		SkillID:    skillID,
		Timestamp:  timestamp,
	}
}

// determineOutcome implements step 2: a short-circuiting
// priority chain of uniform[0,1) draws. Dodge and parry only apply to
// non-skill (auto-attack) damage.
func determineOutcome(source roll.Source, attacker, target corestate.CombatStats, isSkill bool) corestate.Outcome {
	if !isSkill && source.Uniform() < target.DodgeChance {
		return corestate.OutcomeDodge
	}
	if !isSkill && source.Uniform() < target.ParryChance {
		return corestate.OutcomeParry
	}
	if source.Uniform() < target.BlockChance {
		return corestate.OutcomeBlock
	}
	if source.Uniform() < attacker.CritChance {
		return corestate.OutcomeCritical
	}
	return corestate.OutcomeHit
}

// preMitigation implements step 3.
func preMitigation(outcome corestate.Outcome, attacker corestate.CombatStats, base float64) float64 {
	switch outcome {
	case corestate.OutcomeMiss, corestate.OutcomeDodge, corestate.OutcomeImmune:
		return 0
	case corestate.OutcomeBlock:
		return 0.5 * base
	case corestate.OutcomeParry:
		return 0.25 * base
	case corestate.OutcomeCritical:
		return attacker.CritMultiplier * base
	default: // HIT
		return base
	}
}

// applyModifiers implements step 4's fixed modifier pipeline:
// offensive scaling, defensive reduction, elemental-resistance-table
// reduction, then a floor of 1. TRUE_DAMAGE exits after its own floor,
// skipping every other step.
func applyModifiers(damage float64, dtype corestate.DamageType, attacker, target corestate.CombatStats) float64 {
	if dtype == corestate.TrueDamage {
		return math.Max(damage, minimumDamage)
	}

	switch dtype {
	case corestate.Physical:
		damage *= 1 + attacker.AttackPower/100
		damage *= 1 - mitigationFraction(target.PhysicalArmor, defensiveConstant)
	default:
		// MAGICAL and every elemental sub-type (fire/frost/nature/shadow/
		// holy/poison) scale with spell power and mitigate against magic
		// resistance the same way.
		damage *= 1 + attacker.SpellPower/100
		damage *= 1 - mitigationFraction(target.MagicalResistance, defensiveConstant)
	}

	damage *= 1 - mitigationFraction(target.Resistance(dtype), elementalConstant)

	return math.Max(damage, minimumDamage)
}

// mitigationFraction implements the diminishing-returns curve shared by
// both the armor/resist step and the elemental-resistance step:
// fraction = value / (value + constant).
func mitigationFraction(value, constant float64) float64 {
	if value <= 0 {
		return 0
	}
	return value / (value + constant)
}
