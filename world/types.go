// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package world ties every component into a single authoritative tick
// loop. World is constructed once per test/process and passed explicitly
// rather than held in package-level globals: it owns one instance of each
// component and the command queues external collaborators deposit between
// ticks. Config follows the plain-struct-of-named-constants pattern used
// throughout this module; no third-party config library fits a tick-local
// simulation core with no external config surface (see DESIGN.md).
package world

import "github.com/forgewatch/combat-core/corestate"

// Config bundles the tunables exposed at the boundary. Zero value is
// usable: DefaultConfig returns sane defaults.
type Config struct {
	TickRate int // ticks per second, informational only (dt is caller-supplied)

	CombatLogSize int

	WorldSeed uint64
}

// DefaultConfig returns a Config populated with reasonable default values.
func DefaultConfig() Config {
	return Config{
		TickRate:      20,
		CombatLogSize: 1000,
		WorldSeed:     1,
	}
}

// Command is the marker interface for every action produced by external
// collaborators and queued between ticks.
type Command interface{ isCommand() }

type baseCommand struct{}

func (baseCommand) isCommand() {}

// Attack requests an auto-attack from attacker against target.
type Attack struct {
	baseCommand
	Attacker, Target corestate.EntityID
}

// StartSkill requests caster begin casting skillID, optionally aimed at a
// target entity and/or a ground point.
type StartSkill struct {
	baseCommand
	Caster   corestate.EntityID
	SkillID  uint64
	Target   *corestate.EntityID
	Point    corestate.Point
}

// CancelSkill requests caster's active cast be cancelled unconditionally.
type CancelSkill struct {
	baseCommand
	Caster corestate.EntityID
}

// ToggleSkill requests caster's toggle skill flip on/off.
type ToggleSkill struct {
	baseCommand
	Caster  corestate.EntityID
	SkillID uint64
}

// ComboInput feeds one input symbol into entity's combo controller.
type ComboInput struct {
	baseCommand
	Entity corestate.EntityID
	Symbol string
}

// RequestDuel requests a duel challenge from A to B.
type RequestDuel struct {
	baseCommand
	A, B corestate.EntityID
}

// AcceptDuel accepts a pending duel request from A directed at B (the
// acceptor).
type AcceptDuel struct {
	baseCommand
	A, B corestate.EntityID
}

// DeclineDuel declines a pending duel request from A directed at B.
type DeclineDuel struct {
	baseCommand
	A, B corestate.EntityID
}

// QueuePvP enqueues player into the matchmaking queue for the given match
// type ordinal (pvp.MatchType).
type QueuePvP struct {
	baseCommand
	Player    corestate.EntityID
	MatchType int
}

// LeaveQueue dequeues player from the matchmaking queue for the given match
// type ordinal.
type LeaveQueue struct {
	baseCommand
	Player    corestate.EntityID
	MatchType int
}
