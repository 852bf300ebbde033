package damage_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/damage"
)

// fixedSource returns the same sequence of draws every call, letting tests
// pin down exactly which outcome branch step 2 takes.
type fixedSource struct {
	draws []float64
	i     int
}

func (f *fixedSource) Uniform() float64 {
	v := f.draws[f.i]
	if f.i < len(f.draws)-1 {
		f.i++
	}
	return v
}

func (f *fixedSource) Roll(size int) (int, error) { return 1, nil }

func alwaysMiss() *fixedSource { return &fixedSource{draws: []float64{0.999}} }

func TestCalculate_PlainHitNoMitigation(t *testing.T) {
	attacker := corestate.CombatStats{AttackPower: 0, CritChance: 0}
	target := corestate.CombatStats{PhysicalArmor: 0}

	rec := damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 100, corestate.Physical, true, 7, 0)

	require.Equal(t, corestate.OutcomeHit, rec.Outcome)
	require.Equal(t, 100.0, rec.Final)
}

func TestCalculate_ArmorHalvesDamage(t *testing.T) {
	attacker := corestate.CombatStats{AttackPower: 0, CritChance: 0}
	target := corestate.CombatStats{PhysicalArmor: 100}

	rec := damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 100, corestate.Physical, true, 7, 0)

	require.Equal(t, 50.0, rec.Final)
}

func TestCalculate_CriticalDoublesDamage(t *testing.T) {
	// First draw (block check) misses, second draw (crit check) hits.
	source := &fixedSource{draws: []float64{0.999, 0.0}}
	attacker := corestate.CombatStats{AttackPower: 0, CritChance: 1, CritMultiplier: 2}
	target := corestate.CombatStats{}

	rec := damage.Calculate(source, 1, 2, attacker, target, 80, corestate.Physical, true, 7, 0)

	require.Equal(t, corestate.OutcomeCritical, rec.Outcome)
	require.Equal(t, 160.0, rec.Final)
}

func TestCalculate_BlockHalvesBase(t *testing.T) {
	source := &fixedSource{draws: []float64{0.0}}
	attacker := corestate.CombatStats{}
	target := corestate.CombatStats{BlockChance: 1}

	rec := damage.Calculate(source, 1, 2, attacker, target, 100, corestate.Physical, true, 7, 0)

	require.Equal(t, corestate.OutcomeBlock, rec.Outcome)
	require.Equal(t, 50.0, rec.Final)
}

func TestCalculate_ParryQuartersBase(t *testing.T) {
	// Non-skill damage: dodge check misses, parry check hits.
	source := &fixedSource{draws: []float64{0.999, 0.0}}
	attacker := corestate.CombatStats{}
	target := corestate.CombatStats{ParryChance: 1}

	rec := damage.Calculate(source, 1, 2, attacker, target, 100, corestate.Physical, false, 0, 0)

	require.Equal(t, corestate.OutcomeParry, rec.Outcome)
	require.Equal(t, 25.0, rec.Final)
}

func TestCalculate_DodgeAndParryOnlyApplyToAutoAttacks(t *testing.T) {
	source := &fixedSource{draws: []float64{0.0}}
	attacker := corestate.CombatStats{}
	target := corestate.CombatStats{DodgeChance: 1}

	rec := damage.Calculate(source, 1, 2, attacker, target, 100, corestate.Physical, true, 7, 0)

	require.NotEqual(t, corestate.OutcomeDodge, rec.Outcome)
}

func TestCalculate_TrueDamageSkipsMitigation(t *testing.T) {
	attacker := corestate.CombatStats{AttackPower: 500}
	target := corestate.CombatStats{PhysicalArmor: 500, MagicalResistance: 500}

	rec := damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 50, corestate.TrueDamage, true, 7, 0)

	require.Equal(t, 50.0, rec.Final)
}

func TestCalculate_FloorsAtMinimumOne(t *testing.T) {
	attacker := corestate.CombatStats{}
	target := corestate.CombatStats{PhysicalArmor: 100000}

	rec := damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 10, corestate.Physical, true, 7, 0)

	require.Equal(t, 1.0, rec.Final)
}

func TestCalculate_ElementalResistanceAppliesOnTopOfMagicResist(t *testing.T) {
	attacker := corestate.CombatStats{}
	target := corestate.CombatStats{
		MagicalResistance: 0,
		ResistanceByType:  map[corestate.DamageType]float64{corestate.Fire: 150},
	}

	rec := damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 100, corestate.Fire, true, 7, 0)

	require.Equal(t, 50.0, rec.Final)
}

func TestCalculate_DoesNotMutateInputSnapshots(t *testing.T) {
	attacker := corestate.CombatStats{AttackPower: 10}
	target := corestate.CombatStats{PhysicalArmor: 20}
	attackerCopy, targetCopy := attacker, target

	damage.Calculate(alwaysMiss(), 1, 2, attacker, target, 100, corestate.Physical, true, 7, 0)

	require.Equal(t, attackerCopy, attacker)
	require.Equal(t, targetCopy, target)
}
