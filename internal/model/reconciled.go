package model

import "time"

// ReconciledField is the single canonical value for one (chemical, field)
// pair, produced by the reconciliation engine. There is exactly one per
// pair at any point in time; a newer reconciliation overwrites the row
// but never deletes it from the store's history.
type ReconciledField struct {
	ChemicalID      string      `json:"chemical_id"`
	FieldName       string      `json:"field_name"`
	Value           string      `json:"value"`
	Confidence      float64     `json:"confidence"`
	Tier            QualityTier `json:"quality_tier"`
	ContributingIDs []string    `json:"contributing_sources"`
	Validated       bool        `json:"validated"`
	NotFound        bool        `json:"not_found,omitempty"`
	// TierDisagreement is set when the learned classifier's tier and the
	// canonical band for the regressed confidence disagree. Surfaced to
	// the caller rather than silently resolved.
	TierDisagreement bool      `json:"tier_disagreement,omitempty"`
	ReconciledAt     time.Time `json:"reconciled_at"`
}

// IdentifierFields lists field names whose values are compared with
// normalized (case/whitespace-insensitive) equality during
// reconciliation. Everything else compares exact.
var IdentifierFields = map[string]bool{
	"cas_number":   true,
	"un_number":    true,
	"ec_number":    true,
	"formula":      true,
	"storage_code": true,
}

// IsIdentifierField reports whether the field holds an identifier-like
// value (registry numbers, codes) rather than free text.
func IsIdentifierField(name string) bool {
	return IdentifierFields[name]
}
