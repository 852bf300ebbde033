package corestate_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
)

func TestSimpleHandle_DamageAndHeal(t *testing.T) {
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{Health: 100, MaxHealth: 100})

	h.TakeDamage(40)
	require.Equal(t, 60.0, h.Snapshot().Health)

	h.Heal(1000)
	require.Equal(t, 100.0, h.Snapshot().Health)

	h.TakeDamage(1000)
	require.Equal(t, 0.0, h.Snapshot().Health)
	require.False(t, h.IsAlive())
	require.False(t, h.CanAttack())
	require.False(t, h.CanBeTargeted())
}

func TestSimpleHandle_ResourcePool(t *testing.T) {
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{Health: 100, MaxHealth: 100})
	h.RegisterResource(corestate.ResourceMana, 50, 100)

	require.True(t, h.ConsumeResource(corestate.ResourceMana, 30))
	require.False(t, h.ConsumeResource(corestate.ResourceMana, 30))

	h.RestoreResource(corestate.ResourceMana, 1000)
	require.True(t, h.ConsumeResource(corestate.ResourceMana, 100))

	require.False(t, h.ConsumeResource(corestate.ResourceRage, 1))
}

func TestSimpleHandle_Callbacks(t *testing.T) {
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{Health: 100, MaxHealth: 100})

	var deathKiller corestate.EntityID
	var deathHasKiller bool
	h.OnDeathFunc(func(killer corestate.EntityID, hasKiller bool) {
		deathKiller = killer
		deathHasKiller = hasKiller
	})

	var killedVictim corestate.EntityID
	h.OnKillFunc(func(victim corestate.EntityID) { killedVictim = victim })

	h.OnDeath(99, true)
	require.Equal(t, corestate.EntityID(99), deathKiller)
	require.True(t, deathHasKiller)

	h.OnKill(7)
	require.Equal(t, corestate.EntityID(7), killedVictim)
}

func TestSimpleHandle_Position(t *testing.T) {
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{})
	h.SetPosition(corestate.Point{X: 1, Y: 2}, 3.14)

	pos, facing := h.Position()
	require.Equal(t, corestate.Point{X: 1, Y: 2}, pos)
	require.Equal(t, 3.14, facing)
}
