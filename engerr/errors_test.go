package engerr_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/forgewatch/combat-core/engerr"
)

type ErrorsTestSuite struct {
	suite.Suite
}

func TestErrorsSuite(t *testing.T) {
	suite.Run(t, new(ErrorsTestSuite))
}

func (s *ErrorsTestSuite) TestBasicError() {
	err := engerr.ResourceExhausted("mana",
		engerr.WithMeta("current", 20),
		engerr.WithMeta("required", 50),
	)

	s.Equal(engerr.CodeResourceExhausted, engerr.GetCode(err))
	s.Equal("insufficient mana", err.Error())

	meta := engerr.GetMeta(err)
	s.Equal(20, meta["current"])
	s.Equal(50, meta["required"])
}

func (s *ErrorsTestSuite) TestErrorWrapping() {
	original := errors.New("registry lookup failed")
	wrapped := engerr.Wrap(original, "failed to resolve attacker",
		engerr.WithMeta("entity_id", uint64(42)),
	)

	s.Equal(engerr.CodeUnknown, engerr.GetCode(wrapped))
	s.Contains(wrapped.Error(), "failed to resolve attacker")
	s.Contains(wrapped.Error(), "registry lookup failed")
	s.Equal(uint64(42), engerr.GetMeta(wrapped)["entity_id"])
	s.Equal(original, wrapped.Unwrap())
}

func (s *ErrorsTestSuite) TestWrapWithCode() {
	original := errors.New("handle missing")
	wrapped := engerr.WrapWithCode(original, engerr.CodeNotFound, "target not found",
		engerr.WithMeta("entity_id", uint64(7)),
	)

	s.Equal(engerr.CodeNotFound, engerr.GetCode(wrapped))
	s.Contains(wrapped.Error(), "target not found")
}

func (s *ErrorsTestSuite) TestCallStack() {
	err := engerr.New(engerr.CodeInvalidTarget, "cannot target ally",
		engerr.WithCallStack([]string{"skill.StartCast", "targeting.Validate"}),
	)

	stack := engerr.GetCallStack(err)
	s.Len(stack, 2)
	s.Equal("skill.StartCast", stack[0])
	s.Equal("targeting.Validate", stack[1])

	err2 := engerr.Wrap(err, "cast failed",
		engerr.AddToCallStack("combat.ExecuteAttack"),
	)

	stack2 := engerr.GetCallStack(err2)
	s.Len(stack2, 3)
	s.Equal("combat.ExecuteAttack", stack2[2])
}

func (s *ErrorsTestSuite) TestErrorCodeHelpers() {
	tests := []struct {
		name     string
		err      *engerr.Error
		checkFn  func(error) bool
		expected bool
	}{
		{"IsResourceExhausted true", engerr.ResourceExhausted("mana"), engerr.IsResourceExhausted, true},
		{"IsResourceExhausted false", engerr.OutOfRange("area damage"), engerr.IsResourceExhausted, false},
		{"IsNotAllowed", engerr.NotAllowed("cast while silenced"), engerr.IsNotAllowed, true},
		{"IsPrerequisiteNotMet", engerr.PrerequisiteNotMet("rank 1 required"), engerr.IsPrerequisiteNotMet, true},
		{"IsOutOfRange", engerr.OutOfRange("melee attack"), engerr.IsOutOfRange, true},
		{"IsInvalidTarget", engerr.InvalidTarget("cannot target self"), engerr.IsInvalidTarget, true},
		{"IsConflictingState", engerr.ConflictingState("already casting"), engerr.IsConflictingState, true},
		{"IsTimingRestriction", engerr.TimingRestriction("not this tick"), engerr.IsTimingRestriction, true},
		{"IsCooldownActive", engerr.CooldownActive("fireball"), engerr.IsCooldownActive, true},
		{"IsImmune", engerr.Immune("fire damage"), engerr.IsImmune, true},
		{"IsBlocked", engerr.Blocked("global cooldown"), engerr.IsBlocked, true},
		{"IsInterrupted", engerr.Interrupted("stun"), engerr.IsInterrupted, true},
		{"IsRejected", engerr.Rejected("safe zone"), engerr.IsRejected, true},
		{"IsNotFound", engerr.NotFound("entity 42"), engerr.IsNotFound, true},
		{"IsInvalidState", engerr.InvalidState("already dead"), engerr.IsInvalidState, true},
		{"IsInsufficientResource", engerr.InsufficientResource("mana"), engerr.IsInsufficientResource, true},
		{"IsOnCooldown", engerr.OnCooldown("fireball"), engerr.IsOnCooldown, true},
	}

	for _, tt := range tests {
		s.Run(tt.name, func() {
			s.Equal(tt.expected, tt.checkFn(tt.err))
		})
	}
}

func (s *ErrorsTestSuite) TestMetadataPreservation() {
	err1 := engerr.ResourceExhausted("rage",
		engerr.WithMeta("skill_id", uint64(12)),
		engerr.WithMeta("caster", "entity-7"),
	)

	err2 := engerr.Wrap(err1, "cannot start cast",
		engerr.WithMeta("target_count", 5),
	)

	meta := engerr.GetMeta(err2)
	s.Equal(uint64(12), meta["skill_id"])
	s.Equal("entity-7", meta["caster"])
	s.Equal(5, meta["target_count"])
}

func (s *ErrorsTestSuite) TestWrapNilProducesInternalError() {
	err := engerr.Wrap(nil, "something went wrong")
	s.Equal(engerr.CodeInternal, engerr.GetCode(err))
	s.Contains(err.Error(), "nil")

	err2 := engerr.WrapWithCode(nil, engerr.CodeNotFound, "not found")
	s.Equal(engerr.CodeInternal, engerr.GetCode(err2))
}

func (s *ErrorsTestSuite) TestFormattedErrors() {
	err := engerr.ResourceExhaustedf("insufficient %s: need %d, have %d", "mana", 50, 20)
	s.Equal("insufficient mana: need 50, have 20", err.Error())

	err2 := engerr.NotAllowedf("cannot %s while %s", "attack", "stunned")
	s.Equal("cannot attack while stunned", err2.Error())
}
