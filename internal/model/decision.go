package model

import "time"

// Decision is the final compatibility verdict for a pair.
type Decision string

const (
	DecisionCompatible   Decision = "Compatible"
	DecisionIncompatible Decision = "Incompatible"
	DecisionConditional  Decision = "Conditional"
	DecisionUnknown      Decision = "Unknown"
)

// Elevate raises the decision by one severity step. Absence of data
// elevates to Conditional: an unknown pair near a dangerous chemical is
// not treated as safe.
func (d Decision) Elevate() Decision {
	switch d {
	case DecisionCompatible, DecisionUnknown:
		return DecisionConditional
	case DecisionConditional:
		return DecisionIncompatible
	default:
		return d
	}
}

// MatrixDecision is one row of the pairwise decision log. Rows are
// append-only; the latest row for a pair is the current decision and
// older rows are retained for audit.
type MatrixDecision struct {
	ID                  string    `json:"id"`
	Pair                PairKey   `json:"pair"`
	ChemicalA           string    `json:"chemical_a"`
	ChemicalB           string    `json:"chemical_b"`
	Decision            Decision  `json:"decision"`
	Confidence          float64   `json:"confidence"`
	Justification       string    `json:"justification"`
	ContributingRuleIDs []string  `json:"contributing_rule_ids,omitempty"`
	Elevated            bool      `json:"elevated,omitempty"`
	ElevationReason     string    `json:"elevation_reason,omitempty"`
	DecidedAt           time.Time `json:"decided_at"`
}
