package entityregistry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/forgewatch/combat-core/corestate"
	"github.com/forgewatch/combat-core/engerr"
	"github.com/forgewatch/combat-core/entityregistry"
)

func TestRegistry_RegisterAndLookup(t *testing.T) {
	reg := entityregistry.New()
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{Health: 100, MaxHealth: 100})
	reg.Register(h)

	got, err := reg.Lookup(1)
	require.NoError(t, err)
	require.Equal(t, corestate.EntityID(1), got.ID())
}

func TestRegistry_LookupMissingReturnsNotFound(t *testing.T) {
	reg := entityregistry.New()
	_, err := reg.Lookup(999)
	require.Error(t, err)
	require.True(t, engerr.IsNotFound(err))
}

func TestRegistry_UnregisterRunsCascades(t *testing.T) {
	reg := entityregistry.New()
	h := corestate.NewSimpleHandle(5, corestate.CombatStats{})
	reg.Register(h)

	var cascaded corestate.EntityID
	reg.OnUnregister(func(id corestate.EntityID) { cascaded = id })

	reg.Unregister(5)
	require.Equal(t, corestate.EntityID(5), cascaded)
	require.False(t, reg.Exists(5))
}

func TestRegistry_DeferredRemovalAppliesOnFlush(t *testing.T) {
	reg := entityregistry.New()
	h := corestate.NewSimpleHandle(1, corestate.CombatStats{})
	reg.Register(h)

	reg.DeferRemoval(1)
	require.True(t, reg.Exists(1), "deferred removal must not apply immediately")

	reg.FlushRemovals()
	require.False(t, reg.Exists(1))
}

func TestRegistry_SnapshotIsStableDuringMutation(t *testing.T) {
	reg := entityregistry.New()
	reg.Register(corestate.NewSimpleHandle(1, corestate.CombatStats{}))
	reg.Register(corestate.NewSimpleHandle(2, corestate.CombatStats{}))

	snap := reg.Snapshot()
	reg.Register(corestate.NewSimpleHandle(3, corestate.CombatStats{}))

	require.Len(t, snap, 2)
	require.Equal(t, 3, reg.Count())
}
