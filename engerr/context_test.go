package engerr_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/forgewatch/combat-core/engerr"
)

type ContextTestSuite struct {
	suite.Suite
}

func TestContextSuite(t *testing.T) {
	suite.Run(t, new(ContextTestSuite))
}

func (s *ContextTestSuite) TestContextMetadataAccumulation() {
	ctx := context.Background()

	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("world_seed", uint64(99)),
		engerr.Meta("tick", 5),
	)

	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("entity_id", uint64(1001)),
		engerr.Meta("skill_id", uint64(7)),
	)

	err := engerr.ResourceExhaustedCtx(ctx, "mana")

	meta := engerr.GetMeta(err)
	s.Equal(uint64(99), meta["world_seed"])
	s.Equal(5, meta["tick"])
	s.Equal(uint64(1001), meta["entity_id"])
	s.Equal(uint64(7), meta["skill_id"])
}

func (s *ContextTestSuite) TestContextMetadataOverwrite() {
	ctx := context.Background()

	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("phase", "skill_tick"),
		engerr.Meta("priority", "normal"),
	)

	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("phase", "combat_tick"),
		engerr.Meta("priority", "urgent"),
	)

	err := engerr.NewCtx(ctx, engerr.CodeTimingRestriction, "wrong phase")

	meta := engerr.GetMeta(err)
	s.Equal("combat_tick", meta["phase"])
	s.Equal("urgent", meta["priority"])
}

func (s *ContextTestSuite) TestWrapCtx() {
	ctx := context.Background()
	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("pipeline", "ExecuteAttack"),
		engerr.Meta("attacker_id", uint64(1)),
	)

	baseErr := engerr.OutOfRange("melee attack",
		engerr.WithMeta("distance", 30.0),
		engerr.WithMeta("weapon_range", 5.0),
	)

	wrapped := engerr.WrapCtx(ctx, baseErr, "attack failed")

	meta := engerr.GetMeta(wrapped)
	s.Equal("ExecuteAttack", meta["pipeline"])
	s.Equal(uint64(1), meta["attacker_id"])
	s.Equal(30.0, meta["distance"])
	s.Equal(5.0, meta["weapon_range"])
}

func (s *ContextTestSuite) TestNestedPipelineContext() {
	ctx := context.Background()
	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("pipeline", "StartCast"),
		engerr.Meta("skill_id", uint64(42)),
		engerr.Meta("caster_id", uint64(1)),
	)

	innerCtx := engerr.WithMetadata(ctx,
		engerr.Meta("pipeline", "DamageCalculate"),
		engerr.Meta("damage_type", "fire"),
		engerr.Meta("base_damage", 240.0),
	)

	resistCtx := engerr.WithMetadata(innerCtx,
		engerr.Meta("stage", "ImmunityCheck"),
		engerr.Meta("target_id", uint64(2)),
		engerr.Meta("immunity", "fire"),
	)

	err := engerr.ImmuneCtx(resistCtx, "fire damage")

	meta := engerr.GetMeta(err)
	s.Equal(uint64(42), meta["skill_id"])
	s.Equal(uint64(1), meta["caster_id"])
	s.Equal("ImmunityCheck", meta["stage"])
	s.Equal(uint64(2), meta["target_id"])
	s.Equal("fire", meta["immunity"])
}

func (s *ContextTestSuite) TestAllContextConstructors() {
	ctx := context.Background()
	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("test_id", "test-123"),
	)

	tests := []struct {
		name        string
		constructor func() *engerr.Error
		code        engerr.Code
	}{
		{"NotAllowedCtx", func() *engerr.Error { return engerr.NotAllowedCtx(ctx, "action") }, engerr.CodeNotAllowed},
		{"PrerequisiteNotMetCtx", func() *engerr.Error { return engerr.PrerequisiteNotMetCtx(ctx, "rank 1") }, engerr.CodePrerequisiteNotMet},
		{"ResourceExhaustedCtx", func() *engerr.Error { return engerr.ResourceExhaustedCtx(ctx, "mana") }, engerr.CodeResourceExhausted},
		{"OutOfRangeCtx", func() *engerr.Error { return engerr.OutOfRangeCtx(ctx, "attack") }, engerr.CodeOutOfRange},
		{"InvalidTargetCtx", func() *engerr.Error { return engerr.InvalidTargetCtx(ctx, "self") }, engerr.CodeInvalidTarget},
		{"ConflictingStateCtx", func() *engerr.Error { return engerr.ConflictingStateCtx(ctx, "already casting") }, engerr.CodeConflictingState},
		{"TimingRestrictionCtx", func() *engerr.Error { return engerr.TimingRestrictionCtx(ctx, "not this tick") }, engerr.CodeTimingRestriction},
		{"CooldownActiveCtx", func() *engerr.Error { return engerr.CooldownActiveCtx(ctx, "ability") }, engerr.CodeCooldownActive},
		{"ImmuneCtx", func() *engerr.Error { return engerr.ImmuneCtx(ctx, "poison") }, engerr.CodeImmune},
		{"BlockedCtx", func() *engerr.Error { return engerr.BlockedCtx(ctx, "global cooldown") }, engerr.CodeBlocked},
		{"InterruptedCtx", func() *engerr.Error { return engerr.InterruptedCtx(ctx, "stun") }, engerr.CodeInterrupted},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			err := tt.constructor()
			s.Equal(tt.code, engerr.GetCode(err))

			meta := engerr.GetMeta(err)
			s.Equal("test-123", meta["test_id"], "context metadata should be preserved")
		})
	}
}

func (s *ContextTestSuite) TestFormattedContextErrors() {
	ctx := context.Background()
	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("entity_id", uint64(9)),
		engerr.Meta("skill_id", uint64(3)),
	)

	err := engerr.NotAllowedfCtx(ctx, "cannot use %s without rank", "frost_nova")
	s.Contains(err.Error(), "cannot use frost_nova without rank")

	meta := engerr.GetMeta(err)
	s.Equal(uint64(9), meta["entity_id"])
	s.Equal(uint64(3), meta["skill_id"])
}

func (s *ContextTestSuite) TestWrapWithCodeCtx() {
	ctx := context.Background()
	ctx = engerr.WithMetadata(ctx,
		engerr.Meta("match_id", "match-789"),
	)

	baseErr := engerr.New(engerr.CodeUnknown, "something failed")
	wrapped := engerr.WrapWithCodeCtx(ctx, baseErr, engerr.CodeInternal, "system error")

	s.Equal(engerr.CodeInternal, engerr.GetCode(wrapped))
	meta := engerr.GetMeta(wrapped)
	s.Equal("match-789", meta["match_id"])
}
