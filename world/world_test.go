// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package world_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/pvp"
	"github.com/forgewatch/combat-core/world"
)

func newStats() corestate.CombatStats {
	return corestate.CombatStats{
		Health: 1000, MaxHealth: 1000,
		Resource: 100, MaxResource: 100,
		AttackPower: 50, AttackSpeed: 1, CritChance: 0,
	}
}

func registerFighter(w *world.World, id corestate.EntityID) *corestate.SimpleHandle {
	h := corestate.NewSimpleHandle(id, newStats())
	w.RegisterEntity(h)
	return h
}

// sameFactionZone puts every entity in one faction with no safe zones, so
// CanAttack falls back to "only when sharing a match on opposing teams".
type sameFactionZone struct{}

func (sameFactionZone) IsSafeZone(corestate.EntityID) bool  { return false }
func (sameFactionZone) FactionOf(corestate.EntityID) string { return "blue" }

func TestWorldDuelFlowCreatesMatchAndGatesAttack(t *testing.T) {
	w := world.New(world.DefaultConfig(), world.Dependencies{Zone: sameFactionZone{}}, nil)

	registerFighter(w, 1)
	registerFighter(w, 2)
	registerFighter(w, 3)

	require.False(t, w.PvP.CanAttack(1, 2), "no duel yet and same faction")

	w.Enqueue(world.RequestDuel{A: 1, B: 2})
	w.Tick(0.05)
	w.Enqueue(world.AcceptDuel{A: 1, B: 2})
	w.Tick(0.05)

	matchForA, ok := w.PvP.CurrentMatch(1)
	require.True(t, ok)
	matchForB, ok := w.PvP.CurrentMatch(2)
	require.True(t, ok)
	require.Equal(t, matchForA.ID, matchForB.ID)
	require.Equal(t, pvp.StateInProgress, matchForA.State)

	require.True(t, w.PvP.CanAttack(1, 2), "opposing duelists may fight")
	require.False(t, w.PvP.CanAttack(1, 3), "non-participant stays gated by faction")
}

func TestWorldAttackCommandDealsDamageInOneTick(t *testing.T) {
	w := world.New(world.DefaultConfig(), world.Dependencies{}, nil)

	registerFighter(w, 10)
	target := registerFighter(w, 11)

	w.Enqueue(world.Attack{Attacker: 10, Target: 11})
	w.Tick(0.05)

	require.Less(t, target.Snapshot().Health, 1000.0)
}

func TestWorldDeterministicReplayProducesIdenticalHealth(t *testing.T) {
	run := func() float64 {
		w := world.New(world.DefaultConfig(), world.Dependencies{}, nil)
		registerFighter(w, 20)
		target := registerFighter(w, 21)

		for i := 0; i < 10; i++ {
			w.Enqueue(world.Attack{Attacker: 20, Target: 21})
			w.Tick(0.1)
		}
		return target.Snapshot().Health
	}

	require.Equal(t, run(), run())
}

func TestWorldCancelSkillIsSafeWithNoActiveCast(t *testing.T) {
	w := world.New(world.DefaultConfig(), world.Dependencies{}, nil)
	registerFighter(w, 30)

	w.Skills.LearnSkill(30, 1, 1)
	w.Enqueue(world.CancelSkill{Caster: 30})

	require.NotPanics(t, func() { w.Tick(0.05) })
	require.False(t, w.Skills.IsCasting(30))
}

func TestWorldQueuePvPMatchmakesWhenEnoughPlayers(t *testing.T) {
	w := world.New(world.DefaultConfig(), world.Dependencies{}, nil)
	for i := corestate.EntityID(1); i <= 2; i++ {
		registerFighter(w, i)
		w.Enqueue(world.QueuePvP{Player: i, MatchType: int(pvp.MatchDuel)})
	}

	w.Tick(0.05)

	_, ok := w.PvP.CurrentMatch(1)
	require.True(t, ok)
}
