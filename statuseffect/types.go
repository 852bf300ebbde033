// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package statuseffect implements the Status-Effect Engine (C3): applies,
// ticks, stacks, dispels, and expires buffs/debuffs, and is the sole source
// of truth for an entity's current control flags and stat-modifier totals.
// Grounded on the the source material status-effect system's ImmunityInfo
// bookkeeping and ControlFlags bitset, reshaped onto corestate.Handle and
// authored in a plain-struct, mutex-guarded-map idiom.
package statuseffect

import "github.com/forgewatch/combat-core/corestate"

// Kind classifies the broad behavior family of a status-effect definition.
type Kind int

// Kind values.
const (
	KindBuff Kind = iota
	KindDebuff
	KindDOT
	KindHOT
	KindCrowdControl
	KindAura
	KindShield
	KindTransform
)

// DispelCategory groups effects for category-scoped removal (dispel_magic,
// cleanse_poison_disease, remove_curse, remove_by_category).
type DispelCategory int

// DispelCategory values.
const (
	CategoryNone DispelCategory = iota
	CategoryMagic
	CategoryPhysical
	CategoryPoison
	CategoryDisease
	CategoryCurse
	CategoryBlessing
)

// StackBehavior governs what happens when an effect is re-applied to a
// target that already holds an active instance of it.
type StackBehavior int

// StackBehavior values.
const (
	StackNone StackBehavior = iota
	StackDuration
	StackIntensity
	StackRefresh
	StackUniqueSource
)

// ControlFlag is a single bit in the control-flag bitset an effect can
// impose on its target.
type ControlFlag uint16

// ControlFlag bits.
const (
	FlagStun ControlFlag = 1 << iota
	FlagSilence
	FlagRoot
	FlagSlow
	FlagDisarm
	FlagBlind
	FlagFear
	FlagCharm
	FlagSleep
	FlagFreeze
)

// Has reports whether set contains flag.
func (flag ControlFlag) Has(set ControlFlag) bool { return set&flag != 0 }

// ModifierKind identifies how a stat modifier combines with others of the
// same kind.
type ModifierKind int

// ModifierKind values.
const (
	ModifierFlat ModifierKind = iota
	ModifierPercent
	ModifierMultiplier
)

// StatModifier is one entry in a status-effect definition's modifier list.
type StatModifier struct {
	Stat  string
	Value float64
	Kind  ModifierKind
}

// PermanentDuration is the sentinel BaseDuration value meaning an effect
// never expires on its own.
const PermanentDuration = 0

// Definition is the static, immutable description of one status effect,
// shared across every instance applied from it.
type Definition struct {
	ID             uint64
	Name           string
	Kind           Kind
	DispelCategory DispelCategory
	MaxStacks      int
	StackBehavior  StackBehavior

	BaseDuration float64 // seconds; PermanentDuration = never expires
	TickInterval float64 // seconds; 0 = no periodic payload
	TickDamage   float64
	TickHealing  float64

	ControlFlags ControlFlag

	Modifiers []StatModifier

	GrantedImmunityCategories []DispelCategory
	GrantedImmunityIDs        []uint64

	RemoveOnDamage      bool
	RemoveOnAction      bool
	PersistThroughDeath bool
}

// NoExpiry reports whether the definition's base duration means permanent.
func (d Definition) NoExpiry() bool { return d.BaseDuration == PermanentDuration }

// Instance is one live application of a Definition on a target.
type Instance struct {
	DefinitionID uint64
	CasterID     corestate.EntityID

	ApplyTime  float64
	ExpireTime float64 // meaningless if the definition has no expiry
	LastTick   float64

	Stacks          int
	StackMultiplier float64

	Active bool

	PowerCoefficient float64
	CustomValues     map[string]any
}
