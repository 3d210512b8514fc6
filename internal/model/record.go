package model

import "time"

// Source identifies which extraction mechanism produced an observation.
type Source string

const (
	SourceHeuristic          Source = "heuristic"
	SourceLLM                Source = "llm"
	SourceLLMConsensus       Source = "llm_consensus"
	SourceExternalValidation Source = "external_validation"
	SourceUserCorrection     Source = "user_correction"
)

// reconcilePriority orders sources for tie-breaking during reconciliation.
// Higher wins. User corrections never reach tie-breaking; they are terminal.
var reconcilePriority = map[Source]int{
	SourceLLMConsensus:       4,
	SourceExternalValidation: 3,
	SourceHeuristic:          2,
	SourceLLM:                1,
}

// Priority returns the reconciliation tie-break rank of the source.
// Unknown sources rank below every known one.
func (s Source) Priority() int {
	return reconcilePriority[s]
}

// Deterministic reports whether the source is a fully deterministic
// extractor (no model in the loop), usable as a rollback fallback.
func (s Source) Deterministic() bool {
	return s == SourceHeuristic
}

// ExtractionRecord is one source's reported value for one field of one
// chemical. Records are immutable once written; later records for the
// same (chemical_id, field_name) supersede rather than mutate them.
type ExtractionRecord struct {
	ID         string  `json:"id"`
	ChemicalID string  `json:"chemical_id"`
	FieldName  string  `json:"field_name"`
	RawValue   string  `json:"raw_value"`
	Source     Source  `json:"source"`
	Confidence float64 `json:"confidence"`
	// ScoredTier is the confidence scorer's tier for this observation.
	// When the learned classifier is active it may deviate from the
	// canonical bands; it is kept on the record so the deviation stays
	// visible in the audit trail.
	ScoredTier      QualityTier `json:"scored_tier,omitempty"`
	ContextSnippet  string      `json:"context_snippet,omitempty"`
	PatternStrength float64     `json:"pattern_strength,omitempty"`
	CrossValidated  bool        `json:"cross_validated"`
	ExtractedAt     time.Time   `json:"extracted_at"`
}

// QualityTier is the discrete quality band for a scored observation or
// reconciled field.
type QualityTier string

const (
	TierExcellent  QualityTier = "excellent"
	TierGood       QualityTier = "good"
	TierAcceptable QualityTier = "acceptable"
	TierPoor       QualityTier = "poor"
	TierUnreliable QualityTier = "unreliable"
)

// TierFromConfidence maps a confidence to the canonical tier bands.
// A learned classifier may deviate from these bands; callers holding a
// classifier tier must not re-derive it from the confidence.
func TierFromConfidence(c float64) QualityTier {
	switch {
	case c >= 0.90:
		return TierExcellent
	case c >= 0.70:
		return TierGood
	case c >= 0.50:
		return TierAcceptable
	case c >= 0.30:
		return TierPoor
	default:
		return TierUnreliable
	}
}
