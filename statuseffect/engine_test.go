package statuseffect_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/gevents"
	"github.com/forgewatch/combat-core/statuseffect"
)

const (
	magicDebuff  = 1
	poisonDebuff = 2
	magicBuff    = 3
	soulLink     = 4
	onActionBuff = 5
)

func testDefinitions() map[uint64]statuseffect.Definition {
	return map[uint64]statuseffect.Definition{
		magicDebuff: {
			ID: magicDebuff, Name: "curse_of_weakness", Kind: statuseffect.KindDebuff,
			DispelCategory: statuseffect.CategoryMagic, BaseDuration: 10,
		},
		poisonDebuff: {
			ID: poisonDebuff, Name: "venom", Kind: statuseffect.KindDebuff,
			DispelCategory: statuseffect.CategoryPoison, BaseDuration: 10,
			TickInterval: 1, TickDamage: 5,
		},
		magicBuff: {
			ID: magicBuff, Name: "arcane_shield", Kind: statuseffect.KindBuff,
			DispelCategory: statuseffect.CategoryMagic, BaseDuration: 10,
		},
		soulLink: {
			ID: soulLink, Name: "soul_link", Kind: statuseffect.KindDebuff,
			BaseDuration: 10, PersistThroughDeath: true,
		},
		onActionBuff: {
			ID: onActionBuff, Name: "ambush_stance", Kind: statuseffect.KindBuff,
			BaseDuration: 10, RemoveOnAction: true,
		},
	}
}

func TestEngine_ApplyAndQuery(t *testing.T) {
	e := statuseffect.New(testDefinitions(), nil)
	ok, err := e.Apply(1, magicDebuff, 2, 1.0, 0)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, e.Has(1, magicDebuff))
}

func TestEngine_DispelMagicRemovesOnlyDebuffs(t *testing.T) {
	e := statuseffect.New(testDefinitions(), nil)
	_, _ = e.Apply(1, magicDebuff, 2, 1.0, 0)
	_, _ = e.Apply(1, poisonDebuff, 2, 1.0, 0)
	_, _ = e.Apply(1, magicBuff, 1, 1.0, 0)

	removed := e.DispelMagic(1, true, 1)

	require.Equal(t, 1, removed)
	require.False(t, e.Has(1, magicDebuff))
	require.True(t, e.Has(1, poisonDebuff))
	require.True(t, e.Has(1, magicBuff))
}

func TestEngine_ImmunityBlocksApply(t *testing.T) {
	defs := testDefinitions()
	immunizer := uint64(50)
	defs[immunizer] = statuseffect.Definition{
		ID: immunizer, Name: "magic_ward", BaseDuration: statuseffect.PermanentDuration,
		GrantedImmunityCategories: []statuseffect.DispelCategory{statuseffect.CategoryMagic},
	}
	e := statuseffect.New(defs, nil)

	_, _ = e.Apply(1, immunizer, 1, 1.0, 0)
	ok, err := e.Apply(1, magicDebuff, 2, 1.0, 0)

	require.False(t, ok)
	require.Error(t, err)
}

func TestEngine_ControlFlagsAreBitwiseOrOfActiveEffects(t *testing.T) {
	defs := map[uint64]statuseffect.Definition{
		1: {ID: 1, BaseDuration: 10, ControlFlags: statuseffect.FlagStun},
		2: {ID: 2, BaseDuration: 10, ControlFlags: statuseffect.FlagSilence},
	}
	e := statuseffect.New(defs, nil)
	_, _ = e.Apply(1, 1, 9, 1.0, 0)
	_, _ = e.Apply(1, 2, 9, 1.0, 0)

	require.True(t, e.IsStunned(1))
	require.True(t, e.IsSilenced(1))
}

func TestEngine_StackIntensityIncrementsUpToMax(t *testing.T) {
	defs := map[uint64]statuseffect.Definition{
		1: {ID: 1, BaseDuration: 10, MaxStacks: 3, StackBehavior: statuseffect.StackIntensity},
	}
	e := statuseffect.New(defs, nil)
	for i := 0; i < 5; i++ {
		_, _ = e.Apply(1, 1, 9, 1.0, 0)
	}

	require.Equal(t, 3, e.Stacks(1, 1))
}

func TestEngine_TickExpiresAndAppliesPeriodicDamage(t *testing.T) {
	sink := gevents.NewChannelSink(8)
	e := statuseffect.New(testDefinitions(), sink)
	_, _ = e.Apply(1, poisonDebuff, 2, 1.0, 0)

	h := corestate.NewSimpleHandle(1, corestate.CombatStats{Health: 100, MaxHealth: 100})
	handles := map[corestate.EntityID]corestate.Handle{1: h}

	e.Tick(1, 1, handles)
	require.Equal(t, 95.0, h.Snapshot().Health)

	e.Tick(1, 11, handles)
	require.False(t, e.Has(1, poisonDebuff))
}

func TestEngine_TotalStatModifierComposition(t *testing.T) {
	defs := map[uint64]statuseffect.Definition{
		1: {ID: 1, BaseDuration: 10, Modifiers: []statuseffect.StatModifier{
			{Stat: "attack_power", Value: 10, Kind: statuseffect.ModifierFlat},
			{Stat: "attack_power", Value: 20, Kind: statuseffect.ModifierPercent},
		}},
	}
	e := statuseffect.New(defs, nil)
	_, _ = e.Apply(1, 1, 9, 1.0, 0)

	require.InDelta(t, 10+0.2, e.TotalStatModifier(1, "attack_power"), 0.0001)
}

func TestEngine_RemoveAllClearsTarget(t *testing.T) {
	e := statuseffect.New(testDefinitions(), nil)
	_, _ = e.Apply(1, magicDebuff, 2, 1.0, 0)
	e.RemoveAll(1)

	require.Empty(t, e.Active(1))
}

func TestEngine_RemoveAllOnDeathKeepsOnlyPersistThroughDeath(t *testing.T) {
	e := statuseffect.New(testDefinitions(), nil)
	_, _ = e.Apply(1, magicDebuff, 2, 1.0, 0)
	_, _ = e.Apply(1, soulLink, 2, 1.0, 0)

	e.RemoveAllOnDeath(1)

	require.False(t, e.Has(1, magicDebuff))
	require.True(t, e.Has(1, soulLink))
}

func TestEngine_RemoveOnActionOnlyRemovesFlaggedEffects(t *testing.T) {
	e := statuseffect.New(testDefinitions(), nil)
	_, _ = e.Apply(1, magicDebuff, 2, 1.0, 0)
	_, _ = e.Apply(1, onActionBuff, 1, 1.0, 0)

	removed := e.RemoveOnAction(1)

	require.Equal(t, 1, removed)
	require.True(t, e.Has(1, magicDebuff))
	require.False(t, e.Has(1, onActionBuff))
}
