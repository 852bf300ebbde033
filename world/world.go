// Copyright (C) 2024 Kirk Diggler
// SPDX-License-Identifier: GPL-3.0-or-later

package world

import (
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/forgewatch/combat-core/combat"
	"github.com/forgewatch/combat-core/combo"
	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/entityregistry"
	"github.com/forgewatch/combat-core/gevents"
	"github.com/forgewatch/combat-core/pvp"
	"github.com/forgewatch/combat-core/roll"
	"github.com/forgewatch/combat-core/skill"
	"github.com/forgewatch/combat-core/statuseffect"
)

// World owns one instance of every component (C1-C7) and drives the fixed
// five-phase tick: (1) status-effect tick, (2) skill advance, (3) combo
// update, (4) auto-attacks and queued actions, (5) PvP match/queue
// update. It is constructed once per test/process and passed explicitly —
// there is no package-level mutable state anywhere in this module.
type World struct {
	Config Config

	Registry *entityregistry.Registry
	Effects  *statuseffect.Engine
	Skills   *skill.Engine
	Combos   *combo.Manager
	Combat   *combat.Manager
	PvP      *pvp.Coordinator

	Sink gevents.Sink
	log  *logrus.Logger

	mu        sync.Mutex
	queue     []Command
	now       float64
	tickIndex uint64
}

// Dependencies bundles the immutable catalogs and optional collaborators a
// World is built from.
type Dependencies struct {
	SkillDefinitions  map[uint64]skill.Definition
	EffectDefinitions map[uint64]statuseffect.Definition
	ComboTrie         *combo.Trie

	SkillTargetQuery  skill.TargetQuery
	CombatTargetQuery combat.TargetQuery
	Zone              pvp.ZonePolicy

	Logger *logrus.Logger
}

// New constructs a World with the given Config and Dependencies, wiring
// every component's cross-references: the
// entity registry satisfies every component's EntitySource, the
// status-effect engine satisfies the skill engine's ControlSource, the
// combat manager's ControlSource/EffectRemover, and the combo manager's
// EffectGranter, the combo manager satisfies the combat manager's
// ComboHitRegistrar, the skill engine satisfies the combat manager's
// CastInterrupter (so a damage-interruptible cast breaks the instant its
// caster is hit mid-combat), and the PvP coordinator satisfies both the
// combat manager's PolicyOracle and its PvPNotifier (so a kill landed in
// ordinary combat can end a match and update ratings).
func New(cfg Config, deps Dependencies, sink gevents.Sink) *World {
	if sink == nil {
		sink = gevents.NoopSink{}
	}
	log := deps.Logger
	if log == nil {
		log = logrus.New()
		log.SetOutput(discardWriter{})
	}

	registry := entityregistry.New()
	effects := statuseffect.New(deps.EffectDefinitions, sink)

	seed := cfg.WorldSeed
	skillEngine := skill.NewWithRollSource(deps.SkillDefinitions, skill.TargetQueryEntities{
		Entities: registry,
		Targets:  deps.SkillTargetQuery,
	}, effects, func(caster corestate.EntityID, timestamp float64) roll.Source {
		return roll.NewDeterministic(seed, uint64(timestamp*1000), uint64(caster))
	}, sink)

	trie := deps.ComboTrie
	if trie == nil {
		trie = combo.NewTrie(0, 0, map[combo.NodeID]*combo.Node{0: {ID: 0}})
	}
	combos := combo.NewManager(trie, effects, registry, sink)

	pvpCoord := pvp.New(deps.Zone, sink, log)
	combatMgr := combat.New(registry, pvpCoord, effects, combos, effects, skillEngine, pvpCoord, func(attacker corestate.EntityID, timestamp float64) roll.Source {
		return roll.NewDeterministic(seed, uint64(timestamp*1000), uint64(attacker))
	}, sink)

	w := &World{
		Config:   cfg,
		Registry: registry,
		Effects:  effects,
		Skills:   skillEngine,
		Combos:   combos,
		Combat:   combatMgr,
		PvP:      pvpCoord,
		Sink:     sink,
		log:      log,
	}

	registry.OnUnregister(effects.RemoveAll)
	registry.OnUnregister(skillEngine.Unregister)
	registry.OnUnregister(combos.Unregister)
	registry.OnUnregister(combatMgr.Unregister)
	registry.OnUnregister(pvpCoord.Unregister)

	return w
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

// Now returns the world's current tick timestamp.
func (w *World) Now() float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.now
}

// Enqueue deposits cmd into the command queue drained at the next relevant
// tick phase.
func (w *World) Enqueue(cmd Command) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.queue = append(w.queue, cmd)
}

// drain removes and returns every currently queued command, leaving the
// queue empty. Called once per Tick so every command is handled exactly
// once, in FIFO order, regardless of which phase ends up processing it.
func (w *World) drain() []Command {
	w.mu.Lock()
	defer w.mu.Unlock()
	cmds := w.queue
	w.queue = nil
	return cmds
}

// handles returns a stable snapshot of every registered entity's handle,
// keyed by id, for collaborators (statuseffect.Engine.Tick) that need
// random access during a phase.
func (w *World) handles() map[corestate.EntityID]corestate.Handle {
	snapshot := w.Registry.Snapshot()
	out := make(map[corestate.EntityID]corestate.Handle, len(snapshot))
	for _, h := range snapshot {
		out[h.ID()] = h
	}
	return out
}

func (w *World) cdrOf(handles map[corestate.EntityID]corestate.Handle) func(corestate.EntityID) float64 {
	return func(id corestate.EntityID) float64 {
		h, ok := handles[id]
		if !ok {
			return 0
		}
		return h.Snapshot().CooldownReductionFraction
	}
}

// Tick advances the simulation by dt, draining queued commands at the
// phase that owns them and running the five fixed phases in order. Events
// emitted in an earlier phase are visible to later phases within the same
// call because every phase reads the same World state synchronously —
// there is no cross-goroutine handoff between phases.
func (w *World) Tick(dt float64) {
	w.mu.Lock()
	w.now += dt
	now := w.now
	w.tickIndex++
	w.mu.Unlock()

	cmds := w.drain()
	handleSet := w.handles()

	// Phase 1: C3 tick.
	w.Effects.Tick(dt, now, handleSet)

	// Phase 2: C4 tick.
	w.Skills.Advance(dt, now, w.cdrOf(handleSet))

	// Phase 3: C5 update, plus ComboInput commands (owned by C5).
	for _, cmd := range cmds {
		if ci, ok := cmd.(ComboInput); ok {
			w.Combos.ProcessInput(ci.Entity, combo.Symbol(ci.Symbol), now)
		}
	}
	w.Combos.Update(dt, now)

	// Phase 4: C6 auto-attacks and queued actions (Attack, StartSkill,
	// CancelSkill, ToggleSkill).
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case Attack:
			_, _ = w.Combat.ExecuteAttack(c.Attacker, c.Target, now)
		case StartSkill:
			cdr := 0.0
			if h, ok := handleSet[c.Caster]; ok {
				cdr = h.Snapshot().CooldownReductionFraction
			}
			_ = w.Skills.StartCast(c.Caster, c.SkillID, c.Target, c.Point, now, cdr)
		case CancelSkill:
			w.Skills.CancelSkill(c.Caster)
		case ToggleSkill:
			cdr := 0.0
			_ = w.Skills.StartCast(c.Caster, c.SkillID, nil, corestate.Point{}, now, cdr)
		}
	}
	w.Combat.AdvanceAutoAttacks(dt, now)

	// Phase 5: C7 match and queue update, plus PvP commands.
	touchedQueues := make(map[pvp.MatchType]bool)
	for _, cmd := range cmds {
		switch c := cmd.(type) {
		case RequestDuel:
			_ = w.PvP.SendDuelRequest(c.A, c.B, now)
		case AcceptDuel:
			_, _ = w.PvP.AcceptDuel(c.B, c.A, now)
		case DeclineDuel:
			w.PvP.DeclineDuel(c.B, c.A)
		case QueuePvP:
			mt := pvp.MatchType(c.MatchType)
			w.PvP.AddPlayer(mt, c.Player, w.PvP.Rating(c.Player), now)
			touchedQueues[mt] = true
		case LeaveQueue:
			w.PvP.LeaveQueue(pvp.MatchType(c.MatchType), c.Player)
		}
	}
	for mt := range touchedQueues {
		for {
			if _, ok := w.PvP.TryCreateMatch(mt, now); !ok {
				break
			}
		}
	}
	w.PvP.Update(dt, now)

	w.Registry.FlushRemovals()
}

// RegisterEntity registers handle and enables its PvP flag by default
// (tests and simple callers opt out via w.PvP.SetPvPEnabled(id, false)).
func (w *World) RegisterEntity(handle corestate.Handle) {
	w.Registry.Register(handle)
	w.PvP.SetPvPEnabled(handle.ID(), true)
}

// UnregisterEntity removes handle.ID() from every per-entity table across
// every component, so no dangling cooldowns, threat edges, or effects
// reference a removed entity.
func (w *World) UnregisterEntity(id corestate.EntityID) {
	w.Registry.Unregister(id)
}
