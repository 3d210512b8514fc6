package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPairKey_Canonical(t *testing.T) {
	ab := NewPairKey("sulfuric-acid", "acetone")
	ba := NewPairKey("acetone", "sulfuric-acid")
	assert.Equal(t, ab, ba)
	assert.Equal(t, "acetone|sulfuric-acid", ab.String())
}

func TestTierFromConfidence_Bands(t *testing.T) {
	assert.Equal(t, TierExcellent, TierFromConfidence(0.95))
	assert.Equal(t, TierExcellent, TierFromConfidence(0.90))
	assert.Equal(t, TierGood, TierFromConfidence(0.89))
	assert.Equal(t, TierAcceptable, TierFromConfidence(0.50))
	assert.Equal(t, TierPoor, TierFromConfidence(0.30))
	assert.Equal(t, TierUnreliable, TierFromConfidence(0.29))
}

func TestDecisionElevate(t *testing.T) {
	assert.Equal(t, DecisionConditional, DecisionCompatible.Elevate())
	assert.Equal(t, DecisionConditional, DecisionUnknown.Elevate())
	assert.Equal(t, DecisionIncompatible, DecisionConditional.Elevate())
	// Already at the ceiling: no change.
	assert.Equal(t, DecisionIncompatible, DecisionIncompatible.Elevate())
}

func TestRuleTypeRestrictiveness(t *testing.T) {
	assert.True(t, RuleIncompatible.MoreRestrictiveThan(RuleConditional))
	assert.True(t, RuleReactive.MoreRestrictiveThan(RuleConditional))
	assert.False(t, RuleConditional.MoreRestrictiveThan(RuleIncompatible))
}

func TestDeriveHazardProfile(t *testing.T) {
	fields := []ReconciledField{
		{ChemicalID: "c1", FieldName: FieldIsOxidizer, Value: "true"},
		{ChemicalID: "c1", FieldName: FieldIsFlammable, Value: "no"},
		{ChemicalID: "c1", FieldName: FieldIDLH, Value: "10.5"},
		{ChemicalID: "c1", FieldName: FieldIsAcid, Value: "yes", NotFound: true},
		{ChemicalID: "c2", FieldName: FieldIsBase, Value: "true"},
	}

	p := DeriveHazardProfile("c1", fields)
	assert.True(t, p.IsOxidizer)
	assert.False(t, p.IsFlammable)
	assert.False(t, p.IsAcid, "NOT_FOUND fields contribute nothing")
	assert.False(t, p.IsBase, "other chemicals' fields are ignored")
	if assert.NotNil(t, p.IDLHppm) {
		assert.InDelta(t, 10.5, *p.IDLHppm, 1e-9)
	}
}

func TestDeriveHazardProfile_BadIDLH(t *testing.T) {
	p := DeriveHazardProfile("c1", []ReconciledField{
		{ChemicalID: "c1", FieldName: FieldIDLH, Value: "not-a-number"},
	})
	assert.Nil(t, p.IDLHppm)
}

func TestSourcePriorityOrdering(t *testing.T) {
	assert.Greater(t, SourceLLMConsensus.Priority(), SourceExternalValidation.Priority())
	assert.Greater(t, SourceExternalValidation.Priority(), SourceHeuristic.Priority())
	assert.Greater(t, SourceHeuristic.Priority(), SourceLLM.Priority())
}
