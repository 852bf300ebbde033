// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

// Package pvp implements the PvP Coordinator (C7): duel requests, match
// instances, matchmaking queues, rating updates, and attackability rules.
// Authored fresh as a state machine, since no repo in the reference corpus
// carries an equivalent match/queue system, in the plain-struct,
// mutex-guarded-map idiom used throughout this module. Match ids are
// minted via github.com/google/uuid, and state transitions
// are logged via github.com/sirupsen/logrus, since this is the component
// most adjacent to the out-of-scope network layer and therefore worth
// giving an operator-visible trail.
package pvp

import "github.com/forgewatch/combat-core/corestate"

// MatchType enumerates the supported match formats.
type MatchType int

// MatchType values.
const (
	MatchDuel MatchType = iota
	MatchArena2v2
	MatchArena3v3
	MatchArena5v5
	MatchBattleground10v10
	MatchBattleground20v20
)

// TeamSize returns the number of players per team for this match type.
func (t MatchType) TeamSize() int {
	switch t {
	case MatchDuel:
		return 1
	case MatchArena2v2:
		return 2
	case MatchArena3v3:
		return 3
	case MatchArena5v5:
		return 5
	case MatchBattleground10v10:
		return 10
	case MatchBattleground20v20:
		return 20
	default:
		return 0
	}
}

// DurationCap returns the match's time cap in seconds.
func (t MatchType) DurationCap() float64 {
	switch t {
	case MatchDuel:
		return 5 * 60
	case MatchArena2v2, MatchArena3v3, MatchArena5v5:
		return 10 * 60
	case MatchBattleground10v10, MatchBattleground20v20:
		return 20 * 60
	default:
		return 0
	}
}

// ScoreCap returns the match's score cap, 0 meaning none.
func (t MatchType) ScoreCap() int {
	switch t {
	case MatchBattleground10v10, MatchBattleground20v20:
		return 1000
	default:
		return 0
	}
}

// KillCap returns the match's kill cap, 0 meaning none.
func (t MatchType) KillCap() int {
	if t == MatchDuel {
		return 1
	}
	return 0
}

// State is a match's lifecycle state.
type State int

// State values.
const (
	StateNone State = iota
	StateQueued
	StatePreparation
	StateInProgress
	StateEnding
	StateCompleted
)

// Match is one PvP match instance.
type Match struct {
	ID   string
	Type MatchType

	State State

	TeamA []corestate.EntityID
	TeamB []corestate.EntityID

	StartTime float64
	EndTime   float64
	Elapsed   float64

	DurationCap float64
	ScoreCap    int
	KillCap     int

	ScoreA, ScoreB int
	KillsA, KillsB int
}

// OnTeam reports which team entity belongs to: 0 = team A, 1 = team B,
// -1 = not a participant.
func (m *Match) OnTeam(entity corestate.EntityID) int {
	for _, id := range m.TeamA {
		if id == entity {
			return 0
		}
	}
	for _, id := range m.TeamB {
		if id == entity {
			return 1
		}
	}
	return -1
}

// QueueEntry is one waiting player in a matchmaking queue.
type QueueEntry struct {
	EntityID       corestate.EntityID
	Rating         int
	EnqueueTime    float64
}

// DuelRequest is a pending duel challenge awaiting accept/decline/timeout.
type DuelRequest struct {
	Challenger corestate.EntityID
	Target     corestate.EntityID
	ExpireTime float64
}

// PlayerStats is an entity's lifetime PvP record, credited whenever a match
// it participated in completes with a winning side (scenario 7's
// "A.wins += 1"). Kept across Unregister the same way rating is, since both
// are earned, persistent stats rather than per-match state.
type PlayerStats struct {
	Wins   int
	Losses int
}

// Numeric constants exposed at the boundary.
const (
	EloK              = 32
	RatingFloor       = 0
	InitialRating     = 1500
	DuelTimeoutSeconds = 30
	MatchmakingBaseTolerance = 100
	MatchmakingToleranceStep = 10
	MatchmakingToleranceInterval = 30
)
