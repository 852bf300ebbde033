// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package pvp_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/gevents"
	"github.com/forgewatch/combat-core/pvp"
)

type openZone struct{}

func (openZone) IsSafeZone(corestate.EntityID) bool { return false }
func (openZone) FactionOf(corestate.EntityID) string { return "neutral" }

func newCoordinator() *pvp.Coordinator {
	return pvp.New(openZone{}, gevents.NoopSink{}, nil)
}

func TestDuelFlowCreatesMatchAndUpdatesRatings(t *testing.T) {
	c := newCoordinator()
	c.SetPvPEnabled(1, true)
	c.SetPvPEnabled(2, true)

	require.NoError(t, c.SendDuelRequest(1, 2, 0))

	match, err := c.AcceptDuel(2, 1, 1)
	require.NoError(t, err)
	require.Equal(t, pvp.StateInProgress, match.State)

	before := c.Rating(1)
	delta := c.EndDuel(1, 2)
	require.GreaterOrEqual(t, delta, 1)
	require.Equal(t, before+delta, c.Rating(1))
	require.Equal(t, pvp.InitialRating-delta, c.Rating(2))
}

func TestDuelRequestDeniedWhileAlreadyInMatch(t *testing.T) {
	c := newCoordinator()
	c.SetPvPEnabled(1, true)
	c.SetPvPEnabled(2, true)
	c.SetPvPEnabled(3, true)
	require.NoError(t, c.SendDuelRequest(1, 2, 0))
	_, err := c.AcceptDuel(2, 1, 1)
	require.NoError(t, err)

	err = c.SendDuelRequest(1, 3, 2)
	require.Error(t, err)
}

func TestEloConservation(t *testing.T) {
	delta := pvp.EloUpdate(1500, 1600)
	winnerNew := 1500 + delta
	loserNew := 1600 - delta
	require.Equal(t, 1500+1600, winnerNew+loserNew)
	require.GreaterOrEqual(t, delta, 1)
}

func TestMatchmakingFairnessConsumesExactRoster(t *testing.T) {
	c := newCoordinator()
	for i := 1; i <= 4; i++ {
		c.AddPlayer(pvp.MatchArena2v2, corestate.EntityID(i), 1500, 0)
	}

	match, ok := c.TryCreateMatch(pvp.MatchArena2v2, 0)
	require.True(t, ok)
	require.Len(t, match.TeamA, 2)
	require.Len(t, match.TeamB, 2)

	_, ok = c.TryCreateMatch(pvp.MatchArena2v2, 0)
	require.False(t, ok)
}

func TestMatchmakingRespectsRatingToleranceUntilWaitRelaxesIt(t *testing.T) {
	c := newCoordinator()
	c.AddPlayer(pvp.MatchDuel, 1, 1000, 0)
	c.AddPlayer(pvp.MatchDuel, 2, 1300, 0)

	_, ok := c.TryCreateMatch(pvp.MatchDuel, 1)
	require.False(t, ok, "300-point spread exceeds the base 100 tolerance")

	_, ok = c.TryCreateMatch(pvp.MatchDuel, 601)
	require.True(t, ok, "long wait should relax the tolerance enough to match")
}

func TestCanAttackDeniesSelfAndSameTeam(t *testing.T) {
	c := newCoordinator()
	c.SetPvPEnabled(1, true)
	c.SetPvPEnabled(2, true)
	c.SetPvPEnabled(3, true)
	c.SetPvPEnabled(4, true)

	require.False(t, c.CanAttack(1, 1))

	c.AddPlayer(pvp.MatchArena2v2, 1, 1500, 0)
	c.AddPlayer(pvp.MatchArena2v2, 2, 1500, 0)
	c.AddPlayer(pvp.MatchArena2v2, 3, 1500, 0)
	c.AddPlayer(pvp.MatchArena2v2, 4, 1500, 0)
	match, ok := c.TryCreateMatch(pvp.MatchArena2v2, 0)
	require.True(t, ok)

	require.False(t, c.CanAttack(match.TeamA[0], match.TeamA[1]))
	require.True(t, c.CanAttack(match.TeamA[0], match.TeamB[0]))
}

func TestLeaveQueueAlwaysPossible(t *testing.T) {
	c := newCoordinator()
	c.AddPlayer(pvp.MatchDuel, 1, 1500, 0)
	c.LeaveQueue(pvp.MatchDuel, 1)
	c.AddPlayer(pvp.MatchDuel, 2, 1500, 0)
	_, ok := c.TryCreateMatch(pvp.MatchDuel, 0)
	require.False(t, ok)
}
