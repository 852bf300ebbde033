// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package combo implements the Combo Controller (C5): a per-entity input
// state machine walking a shared trie of input sequences, granting damage/
// resource bonuses on valid completions. The trie is a DAG of shared nodes
// keyed by a stable id, authored fresh in Go since no repo in the reference
// corpus carries an equivalent input-sequence state machine. Manager.Update
// cancels timed-out combos in place and never adds or removes map entries
// while ranging.
package combo

import "github.com/forgewatch/combat-core/corestate"

// Symbol is one input in the combo alphabet. Beyond the raw input symbols
// (LIGHT_ATTACK, HEAVY_ATTACK, SKILL_1, ...), combo nodes can also be
// driven off combat outcomes; those are modeled as synthetic symbols fed in
// by combat.Manager through Manager.NotifyOutcome.
type Symbol string

// Symbol constants for the base input alphabet and the outcome-derived
// synthetic symbols supplementing it.
const (
	LightAttack Symbol = "light_attack"
	HeavyAttack Symbol = "heavy_attack"
	Skill1      Symbol = "skill_1"
	Skill2      Symbol = "skill_2"
	Skill3      Symbol = "skill_3"
	Skill4      Symbol = "skill_4"

	SymbolCritical     Symbol = "outcome_critical"
	SymbolDodgeSuccess Symbol = "outcome_dodge"
	SymbolBlockSuccess Symbol = "outcome_block"
	SymbolParrySuccess Symbol = "outcome_parry"
	SymbolBehind       Symbol = "position_behind"
	SymbolSide         Symbol = "position_side"
)

// NodeID is the stable identifier of one combo trie node, shared across
// every entity walking the trie.
type NodeID uint32

// Node is one node of the shared combo trie. The root node (NodeID 0 by
// convention) carries no combo id and is never itself a finisher.
type Node struct {
	ID     NodeID
	Symbol Symbol

	// Window is the timing window, in seconds, within which the next input
	// must arrive measured from this node's own arrival.5
	// step 2.
	Window float64

	Next map[Symbol]NodeID

	ComboID    string
	IsFinisher bool

	// DamageMultiplier, when set on a finisher node, is latched by Manager
	// and handed to the Combat Manager via ConsumeDamageMultiplier so it can
	// scale the base damage of the very next attack the finisher empowers.
	DamageMultiplier float64

	// BonusEffectID, when non-zero, is applied to the entity via the
	// Status-Effect Engine when this node's combo finishes.
	BonusEffectID uint64

	// ResourceRefund is the amount of ResourceKind refunded to the acting
	// entity on reaching this node, supplemented from the original's
	// ComboNode.resource_refund. Zero (the default) refunds nothing.
	ResourceRefund float64
	ResourceKind   corestate.ResourceKind
}

// Trie is the shared, immutable combo graph every entity's Progress walks.
// Built once and referenced by Manager for every entity.
type Trie struct {
	Root NodeID
	// OverallTimeCap bounds total combo elapsed time.
	OverallTimeCap float64

	nodes map[NodeID]*Node
}

// NewTrie constructs a Trie from a flat node table. root must be present in
// nodes.
func NewTrie(root NodeID, overallTimeCap float64, nodes map[NodeID]*Node) *Trie {
	cloned := make(map[NodeID]*Node, len(nodes))
	for id, n := range nodes {
		cloned[id] = n
	}
	return &Trie{Root: root, OverallTimeCap: overallTimeCap, nodes: cloned}
}

func (t *Trie) node(id NodeID) *Node { return t.nodes[id] }

// State is the terminal/active state of a per-entity combo progress.
type State int

// State values.
const (
	StateIdle State = iota
	StateInProgress
	StateCancelled
	StateInterrupted
)

// Progress is the per-entity combo progress record.
type Progress struct {
	State State

	CurrentNode NodeID
	HasNode     bool

	InputHistory []Symbol

	StartTime     float64
	LastInputTime float64

	AccumulatedDamage float64
	HitCount          int

	CurrentComboID string
}

// Event is published when a combo chain reaches a finisher and resolves
// (ComboCompleted in gevents, carried here before translation to the
// published event shape).
type Event struct {
	Entity    corestate.EntityID
	ComboID   string
	Hits      int
	Damage    float64
	Timestamp float64
}
