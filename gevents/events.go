// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package gevents defines the domain events the combat core publishes and
// the fire-and-forget sink that carries them out of the core. It follows
// the typed-event-struct-plus-bus-interface shape common across the
// reference corpus, but carries no priority/modifier machinery, since
// nothing downstream of this core subscribes to cancel or rewrite an
// event in flight — outbound notification only.
package gevents

import "github.com/forgewatch/combat-core/corestate"

// DamageResolved is published whenever the damage calculator (C2) produces
// a DamageRecord, win or miss.
type DamageResolved struct {
	Record corestate.DamageRecord
}

// EntityDied is published the first time an entity's health reaches 0,
// matching exactly-once death notification.
type EntityDied struct {
	Entity     corestate.EntityID
	Killer     corestate.EntityID
	HasKiller  bool
}

// EffectApplied is published when a status effect is newly applied or
// re-stacked onto a target.
type EffectApplied struct {
	Target corestate.EntityID
	Effect string
	Caster corestate.EntityID
	Stacks int
}

// EffectExpired is published when a status effect's duration elapses or it
// is otherwise removed from a target.
type EffectExpired struct {
	Target corestate.EntityID
	Effect string
}

// ComboCompleted is published when a combo chain reaches a finisher and
// resolves.
type ComboCompleted struct {
	Entity corestate.EntityID
	Combo  string
	Hits   int
	Damage float64
}

// MatchStarted is published when a PvP match transitions into its
// in-progress phase.
type MatchStarted struct {
	Match string
}

// MatchEnded is published when a PvP match completes.
type MatchEnded struct {
	Match      string
	WinnerTeam int
}

// RatingChanged is published when a player's matchmaking rating is updated
// following a completed match.
type RatingChanged struct {
	Player    corestate.EntityID
	Delta     int
	NewRating int
}
