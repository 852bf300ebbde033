// Package roll provides the per-actor randomness source consumed by the
// combat core's probability checks (dodge/parry/block/crit rolls) without
// implementing any game-specific rule that interprets the result.
//
// Purpose:
// Every probability check in the core (damage outcome determination)
// consumes a single uniform [0,1) draw. This package supplies
// that draw through two interchangeable implementations: a deterministic,
// seedable source for reproducible simulation and replay, and a
// cryptographically secure source for callers that have no seed to recover.
//
// Scope:
//   - A minimal Source interface: Uniform() and Roll(size)
//   - Deterministic generation seeded from (world seed, tick index, entity id)
//   - Cryptographically secure generation for non-deterministic callers
//   - Mockable construction for unit tests
//
// Non-Goals:
//   - Dice notation parsing: no "3d6+2" strings anywhere in this core
//   - Roll result interpretation: crit/dodge/block thresholds are game rules
//   - Probability math beyond generating the draw
//
// Integration:
// The Damage Calculator (damage package) is the only component that draws
// from a Source. The Combat Manager, Skill Engine, and World construct
// DeterministicSources to hand to damage.Calculate; the PvP Coordinator uses
// no randomness. No package holds a
// package-level mutable generator; every caller is handed its own Source.
package roll
