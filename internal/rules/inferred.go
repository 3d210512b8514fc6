package rules

import (
	"fmt"
	"sort"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// hazardCombination is one row of the fixed inference table.
type hazardCombination struct {
	matchA        func(model.HazardProfile) bool
	matchB        func(model.HazardProfile) bool
	ruleType      model.RuleType
	justification string
}

// inferenceTable encodes the hazard-class combinations that imply a
// relationship even without an explicit dataset rule. Inferred rules
// always carry the lowest priority so any explicit source overrides
// them.
var inferenceTable = []hazardCombination{
	{
		matchA:        func(p model.HazardProfile) bool { return p.IsOxidizer },
		matchB:        func(p model.HazardProfile) bool { return p.IsFlammable },
		ruleType:      model.RuleIncompatible,
		justification: "inferred: oxidizer stored with flammable material",
	},
	{
		matchA:        func(p model.HazardProfile) bool { return p.IsAcid },
		matchB:        func(p model.HazardProfile) bool { return p.IsBase },
		ruleType:      model.RuleIncompatible,
		justification: "inferred: acid stored with base",
	},
	{
		matchA:        func(p model.HazardProfile) bool { return p.IsWaterReactive },
		matchB:        func(p model.HazardProfile) bool { return true },
		ruleType:      model.RuleConditional,
		justification: "inferred: water-reactive material requires dry-segregated storage",
	},
}

// InferFromHazards applies the inference table to every ordered
// combination of profiles and emits one rule per matching pair per
// table row. Output order is deterministic.
func InferFromHazards(profiles []model.HazardProfile, priority int) []model.IncompatibilityRule {
	sorted := make([]model.HazardProfile, len(profiles))
	copy(sorted, profiles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChemicalID < sorted[j].ChemicalID })

	seen := make(map[string]bool)
	var out []model.IncompatibilityRule

	for _, a := range sorted {
		for _, b := range sorted {
			if a.ChemicalID == b.ChemicalID {
				continue
			}
			for ti, combo := range inferenceTable {
				if !combo.matchA(a) || !combo.matchB(b) {
					continue
				}
				pair := model.NewPairKey(a.ChemicalID, b.ChemicalID)
				key := fmt.Sprintf("%d:%s", ti, pair.String())
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, model.IncompatibilityRule{
					ID:            "inferred:" + key,
					Pair:          pair,
					Type:          combo.ruleType,
					Origin:        model.OriginInferred,
					Justification: combo.justification,
					Priority:      priority,
				})
			}
		}
	}
	return out
}
