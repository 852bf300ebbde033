// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package pvp

import (
	"math"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/engerr"
	"github.com/forgewatch/combat-core/gevents"
)

// ZonePolicy resolves safe-zone and faction state for an entity, the
// collaborator CanAttack consults once match membership is decided.
type ZonePolicy interface {
	IsSafeZone(entity corestate.EntityID) bool
	FactionOf(entity corestate.EntityID) string
}

// Coordinator is the PvP Coordinator (C7).
type Coordinator struct {
	mu sync.Mutex

	zone ZonePolicy
	sink gevents.Sink
	log  *logrus.Logger

	ratings  map[corestate.EntityID]int
	stats    map[corestate.EntityID]*PlayerStats
	pvpOn    map[corestate.EntityID]bool
	inMatch  map[corestate.EntityID]string
	matches  map[string]*Match
	requests map[[2]corestate.EntityID]*DuelRequest
	queues   map[MatchType][]QueueEntry
}

// New constructs a Coordinator. A nil logger defaults to a discard logger,
// matching a components that accept an optional *logrus.Logger.
func New(zone ZonePolicy, sink gevents.Sink, log *logrus.Logger) *Coordinator {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	if log == nil {
		log = logrus.New()
		log.SetOutput(discardWriter{})
	}
	return &Coordinator{
		zone:     zone,
		sink:     sink,
		log:      log,
		ratings:  make(map[corestate.EntityID]int),
		stats:    make(map[corestate.EntityID]*PlayerStats),
		pvpOn:    make(map[corestate.EntityID]bool),
		inMatch:  make(map[corestate.EntityID]string),
		matches:  make(map[string]*Match),
		requests: make(map[[2]corestate.EntityID]*DuelRequest),
		queues:   make(map[MatchType][]QueueEntry),
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// SetPvPEnabled toggles entity's PvP-participation flag, consumed by
// CanAttack.7.
func (c *Coordinator) SetPvPEnabled(entity corestate.EntityID, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pvpOn[entity] = enabled
}

// Rating returns entity's current matchmaking rating, defaulting to
// InitialRating if never set.
func (c *Coordinator) Rating(entity corestate.EntityID) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ratingLocked(entity)
}

func (c *Coordinator) ratingLocked(entity corestate.EntityID) int {
	if r, ok := c.ratings[entity]; ok {
		return r
	}
	return InitialRating
}

// Stats returns entity's lifetime PvP win/loss record, zero-valued if it has
// never finished a match.
func (c *Coordinator) Stats(entity corestate.EntityID) PlayerStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.stats[entity]; ok {
		return *s
	}
	return PlayerStats{}
}

func (c *Coordinator) statsForLocked(entity corestate.EntityID) *PlayerStats {
	s, ok := c.stats[entity]
	if !ok {
		s = &PlayerStats{}
		c.stats[entity] = s
	}
	return s
}

// Unregister clears every per-entity row except rating and lifetime stats
// (an unregistered entity's earned rating and win/loss record are kept) but
// drops match membership, queue rows,
// and pending duel requests.
func (c *Coordinator) Unregister(entity corestate.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.pvpOn, entity)
	delete(c.inMatch, entity)
	for t, q := range c.queues {
		c.queues[t] = removeEntity(q, entity)
	}
	for key := range c.requests {
		if key[0] == entity || key[1] == entity {
			delete(c.requests, key)
		}
	}
}

func removeEntity(q []QueueEntry, entity corestate.EntityID) []QueueEntry {
	out := q[:0]
	for _, e := range q {
		if e.EntityID != entity {
			out = append(out, e)
		}
	}
	return out
}

// --- Duel flow ---

func requestKey(a, b corestate.EntityID) [2]corestate.EntityID { return [2]corestate.EntityID{a, b} }

// SendDuelRequest implements send_duel_request: denied if either party is
// already in a match, in a safe zone, or already the subject of a pending
// request between the same pair.
func (c *Coordinator) SendDuelRequest(challenger, target corestate.EntityID, now float64) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.inMatch[challenger] != "" || c.inMatch[target] != "" {
		return engerr.Rejectedf("already in a match")
	}
	if c.zone != nil && (c.zone.IsSafeZone(challenger) || c.zone.IsSafeZone(target)) {
		return engerr.Rejectedf("safe zone")
	}
	if _, exists := c.requests[requestKey(challenger, target)]; exists {
		return engerr.InvalidStatef("duel request already pending")
	}

	c.requests[requestKey(challenger, target)] = &DuelRequest{
		Challenger: challenger, Target: target, ExpireTime: now + DuelTimeoutSeconds,
	}
	c.log.WithFields(logrus.Fields{"challenger": challenger, "target": target}).Info("duel requested")
	return nil
}

// AcceptDuel consumes a pending request and creates a DUEL match between
// the two entities.
func (c *Coordinator) AcceptDuel(target, challenger corestate.EntityID, now float64) (*Match, error) {
	c.mu.Lock()
	key := requestKey(challenger, target)
	req, ok := c.requests[key]
	if !ok || req.ExpireTime < now {
		delete(c.requests, key)
		c.mu.Unlock()
		return nil, engerr.NotFoundf("no pending duel request")
	}
	delete(c.requests, key)
	c.mu.Unlock()

	match := c.createMatch(MatchDuel, []corestate.EntityID{challenger}, []corestate.EntityID{target}, now)
	c.startMatch(match, now)
	c.log.WithFields(logrus.Fields{"match_id": match.ID, "a": challenger, "b": target}).Info("duel accepted")
	return match, nil
}

// DeclineDuel discards a pending request.
func (c *Coordinator) DeclineDuel(target, challenger corestate.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.requests, requestKey(challenger, target))
	c.log.WithFields(logrus.Fields{"challenger": challenger, "target": target}).Info("duel declined")
}

// EndDuel implements end_duel: updates ratings, resets both entities to
// NONE, and removes the match.
func (c *Coordinator) EndDuel(winner, loser corestate.EntityID) (winnerDelta int) {
	c.mu.Lock()
	matchID := c.inMatch[winner]
	match := c.matches[matchID]
	c.mu.Unlock()

	delta := c.updateRatings(winner, loser)
	if match != nil {
		c.completeMatch(match, match.OnTeam(winner))
	} else {
		c.mu.Lock()
		delete(c.inMatch, winner)
		delete(c.inMatch, loser)
		c.mu.Unlock()
	}
	return delta
}

// --- Match lifecycle ---

func (c *Coordinator) createMatch(matchType MatchType, teamA, teamB []corestate.EntityID, now float64) *Match {
	c.mu.Lock()
	defer c.mu.Unlock()

	match := &Match{
		ID:          uuid.NewString(),
		Type:        matchType,
		State:       StatePreparation,
		TeamA:       teamA,
		TeamB:       teamB,
		StartTime:   now,
		DurationCap: matchType.DurationCap(),
		ScoreCap:    matchType.ScoreCap(),
		KillCap:     matchType.KillCap(),
	}
	c.matches[match.ID] = match
	for _, id := range teamA {
		c.inMatch[id] = match.ID
	}
	for _, id := range teamB {
		c.inMatch[id] = match.ID
	}
	return match
}

func (c *Coordinator) startMatch(match *Match, now float64) {
	c.mu.Lock()
	match.State = StateInProgress
	match.StartTime = now
	c.mu.Unlock()
	c.sink.Publish(gevents.MatchStarted{Match: match.ID})
}

// CurrentMatch returns the match entity currently belongs to, if any.
func (c *Coordinator) CurrentMatch(entity corestate.EntityID) (*Match, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.inMatch[entity]
	if id == "" {
		return nil, false
	}
	return c.matches[id], true
}

// Update ticks every active match's timer, ending matches whose duration
// cap, score cap, or kill cap has been reached).
func (c *Coordinator) Update(dt, now float64) {
	c.mu.Lock()
	var active []*Match
	for _, m := range c.matches {
		if m.State == StateInProgress {
			m.Elapsed += dt
			active = append(active, m)
		}
	}
	c.mu.Unlock()

	for _, m := range active {
		if winner, done := matchWinCondition(m); done {
			c.completeMatch(m, winner)
		}
	}
}

// matchWinCondition evaluates duration cap, score cap, and kill cap. Returns
// the winning team (0 = A, 1 = B, -1 = draw/none) and whether the match is
// over.
func matchWinCondition(m *Match) (int, bool) {
	if m.DurationCap > 0 && m.Elapsed >= m.DurationCap {
		if m.ScoreA == m.ScoreB {
			return -1, true
		}
		if m.ScoreA > m.ScoreB {
			return 0, true
		}
		return 1, true
	}
	if m.ScoreCap > 0 {
		if m.ScoreA >= m.ScoreCap {
			return 0, true
		}
		if m.ScoreB >= m.ScoreCap {
			return 1, true
		}
	}
	if m.KillCap > 0 {
		if m.KillsA >= m.KillCap {
			return 0, true
		}
		if m.KillsB >= m.KillCap {
			return 1, true
		}
	}
	return -1, false
}

// RecordKill credits a kill to the killer's team (0 = team A, any other
// value = team B). It does not evaluate win conditions; OnKill does that
// after calling it.
func (c *Coordinator) RecordKill(match *Match, killerTeam int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if killerTeam == 0 {
		match.KillsA++
	} else {
		match.KillsB++
	}
}

// OnKill is the kill hook combat.Manager calls whenever an attack reduces
// its target to 0 HP, so a kill landed through ordinary combat (attack,
// auto-attack, area damage) ends a match and updates ratings the same
// way an explicit duel-end command does: scenario 7's
// "C6.execute_attack(A, B) reduces B to 0 HP ⇒ match ends; A.wins += 1,
// A.rating += Δ, B.rating −= Δ". A no-op if killer and victim don't share an
// active match.
func (c *Coordinator) OnKill(killer, victim corestate.EntityID) {
	c.mu.Lock()
	matchID := c.inMatch[victim]
	match := c.matches[matchID]
	c.mu.Unlock()
	if match == nil {
		return
	}

	killerTeam := match.OnTeam(killer)
	if killerTeam == -1 {
		return
	}
	c.RecordKill(match, killerTeam)

	winnerTeam, done := matchWinCondition(match)
	if !done {
		return
	}

	if match.Type == MatchDuel {
		winner, loser := killer, victim
		if match.OnTeam(killer) != winnerTeam {
			winner, loser = victim, killer
		}
		c.updateRatings(winner, loser)
	}
	c.completeMatch(match, winnerTeam)
}

// EndMatch implements end_match: distributes the outcome
// (via MatchEnded), updates membership, and removes the match. winnerTeam
// is 0 (team A), 1 (team B), or -1 for a draw/no-contest ending.
func (c *Coordinator) EndMatch(match *Match, winnerTeam int) {
	c.completeMatch(match, winnerTeam)
}

func (c *Coordinator) completeMatch(match *Match, winnerTeam int) {
	c.mu.Lock()
	match.State = StateCompleted
	if winnerTeam == 0 || winnerTeam == 1 {
		c.creditStatsLocked(match, winnerTeam)
	}
	for _, id := range match.TeamA {
		delete(c.inMatch, id)
	}
	for _, id := range match.TeamB {
		delete(c.inMatch, id)
	}
	delete(c.matches, match.ID)
	c.mu.Unlock()

	c.sink.Publish(gevents.MatchEnded{Match: match.ID, WinnerTeam: winnerTeam})
	c.log.WithFields(logrus.Fields{"match_id": match.ID, "winner_team": winnerTeam}).Info("match ended")
}

// creditStatsLocked records a win for winnerTeam's roster and a loss for the
// other roster. Caller must hold c.mu.
func (c *Coordinator) creditStatsLocked(match *Match, winnerTeam int) {
	winners, losers := match.TeamA, match.TeamB
	if winnerTeam == 1 {
		winners, losers = match.TeamB, match.TeamA
	}
	for _, id := range winners {
		c.statsForLocked(id).Wins++
	}
	for _, id := range losers {
		c.statsForLocked(id).Losses++
	}
}

// --- Matchmaking ---

// AddPlayer enqueues entity at rating into matchType's queue, sorted by
// rating.
func (c *Coordinator) AddPlayer(matchType MatchType, entity corestate.EntityID, rating int, now float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	q := append(c.queues[matchType], QueueEntry{EntityID: entity, Rating: rating, EnqueueTime: now})
	sort.Slice(q, func(i, j int) bool { return q[i].Rating < q[j].Rating })
	c.queues[matchType] = q
}

// LeaveQueue removes entity from matchType's queue, unconditionally.
func (c *Coordinator) LeaveQueue(matchType MatchType, entity corestate.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queues[matchType] = removeEntity(c.queues[matchType], entity)
}

// TryCreateMatch implements try_create_match: if the queue holds at least
// 2*teamSize players, consumes the top 2*teamSize (by the optional
// compatibility-window tightening) and splits them into two teams.
func (c *Coordinator) TryCreateMatch(matchType MatchType, now float64) (*Match, bool) {
	teamSize := matchType.TeamSize()
	need := 2 * teamSize

	c.mu.Lock()
	q := c.queues[matchType]
	if len(q) < need {
		c.mu.Unlock()
		return nil, false
	}

	group := selectCompatibleGroup(q, need, now)
	if group == nil {
		c.mu.Unlock()
		return nil, false
	}

	remaining := make([]QueueEntry, 0, len(q)-len(group))
	taken := make(map[corestate.EntityID]bool, len(group))
	for _, e := range group {
		taken[e.EntityID] = true
	}
	for _, e := range q {
		if !taken[e.EntityID] {
			remaining = append(remaining, e)
		}
	}
	c.queues[matchType] = remaining
	c.mu.Unlock()

	teamA := make([]corestate.EntityID, teamSize)
	teamB := make([]corestate.EntityID, teamSize)
	for i := 0; i < teamSize; i++ {
		teamA[i] = group[i].EntityID
		teamB[i] = group[i+teamSize].EntityID
	}

	match := c.createMatch(matchType, teamA, teamB, now)
	c.startMatch(match, now)
	c.log.WithFields(logrus.Fields{"match_id": match.ID, "type": matchType}).Info("matchmaking created match")
	return match, true
}

// selectCompatibleGroup walks the rating-sorted queue for a contiguous
// window of `need` entries whose rating spread satisfies the tolerance
// defines (relaxed by how long the oldest member has waited).
// Returns nil if no such window exists.
func selectCompatibleGroup(q []QueueEntry, need int, now float64) []QueueEntry {
	for start := 0; start+need <= len(q); start++ {
		window := q[start : start+need]
		oldestWait := 0.0
		for _, e := range window {
			if w := now - e.EnqueueTime; w > oldestWait {
				oldestWait = w
			}
		}
		tolerance := float64(MatchmakingBaseTolerance) + float64(MatchmakingToleranceStep)*math.Floor(oldestWait/MatchmakingToleranceInterval)
		spread := float64(window[len(window)-1].Rating - window[0].Rating)
		if spread <= tolerance {
			return window
		}
	}
	return nil
}

// --- Rating ---

// updateRatings applies the Elo-style update and returns winner's delta.
func (c *Coordinator) updateRatings(winner, loser corestate.EntityID) int {
	c.mu.Lock()
	winnerRating := c.ratingLocked(winner)
	loserRating := c.ratingLocked(loser)
	c.mu.Unlock()

	delta := EloUpdate(winnerRating, loserRating)

	newWinner := clampRating(winnerRating + delta)
	newLoser := clampRating(loserRating - delta)

	c.mu.Lock()
	c.ratings[winner] = newWinner
	c.ratings[loser] = newLoser
	c.mu.Unlock()

	c.sink.Publish(gevents.RatingChanged{Player: winner, Delta: delta, NewRating: newWinner})
	c.sink.Publish(gevents.RatingChanged{Player: loser, Delta: -delta, NewRating: newLoser})
	return delta
}

// EloUpdate computes the Elo-style rating delta applied to the winner
// (subtracted from the loser): Δ = max(1, floor(K * (1 - expected))).
func EloUpdate(winnerRating, loserRating int) int {
	expected := 1.0 / (1.0 + math.Pow(10, float64(loserRating-winnerRating)/400.0))
	delta := int(math.Floor(EloK * (1 - expected)))
	if delta < 1 {
		delta = 1
	}
	return delta
}

func clampRating(r int) int {
	if r < RatingFloor {
		return RatingFloor
	}
	return r
}

// CanAttack is the authoritative PvP attackability gate every other
// component defers to before applying damage between two entities.
func (c *Coordinator) CanAttack(attacker, target corestate.EntityID) bool {
	if attacker == target {
		return false
	}

	c.mu.Lock()
	attackerPvP := c.pvpOn[attacker]
	targetPvP := c.pvpOn[target]
	attackerMatch := c.inMatch[attacker]
	targetMatch := c.inMatch[target]
	c.mu.Unlock()

	if !attackerPvP || !targetPvP {
		return false
	}
	if c.zone != nil && c.zone.IsSafeZone(attacker) {
		return false
	}

	if attackerMatch != "" && attackerMatch == targetMatch {
		c.mu.Lock()
		match := c.matches[attackerMatch]
		c.mu.Unlock()
		if match == nil {
			return false
		}
		return match.OnTeam(attacker) != match.OnTeam(target)
	}

	if c.zone != nil {
		return c.zone.FactionOf(attacker) != c.zone.FactionOf(target)
	}
	return true
}
