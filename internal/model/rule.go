package model

// RuleType classifies the severity of a pairwise relationship.
type RuleType string

const (
	RuleIncompatible RuleType = "Incompatible"
	RuleReactive     RuleType = "Reactive"
	RuleConditional  RuleType = "Conditional"
)

// restrictiveness orders rule types for equal-priority tie-breaks.
// The most restrictive type wins.
var restrictiveness = map[RuleType]int{
	RuleIncompatible: 3,
	RuleReactive:     2,
	RuleConditional:  1,
}

// MoreRestrictiveThan reports whether t outranks other when two rules
// for the same pair carry equal source priority.
func (t RuleType) MoreRestrictiveThan(other RuleType) bool {
	return restrictiveness[t] > restrictiveness[other]
}

// RuleOrigin identifies which rule source asserted a relationship.
type RuleOrigin string

const (
	OriginManual   RuleOrigin = "manual"
	OriginDatasetA RuleOrigin = "dataset_a"
	OriginDatasetB RuleOrigin = "dataset_b"
	OriginInferred RuleOrigin = "inferred"
)

// PairKey is the canonical unordered identifier for a chemical pair.
// (A,B) and (B,A) always collide to the same key.
type PairKey struct {
	Low  string `json:"low"`
	High string `json:"high"`
}

// NewPairKey canonicalizes two chemical ids into a PairKey.
func NewPairKey(a, b string) PairKey {
	if a > b {
		a, b = b, a
	}
	return PairKey{Low: a, High: b}
}

// String renders the key as "low|high" for use as a store key.
func (k PairKey) String() string {
	return k.Low + "|" + k.High
}

// IncompatibilityRule is one source's opinion about one unordered pair.
// Sources may disagree on the same pair; the repository keeps all
// opinions and the matrix builder resolves them by priority.
type IncompatibilityRule struct {
	ID            string     `json:"id"`
	Pair          PairKey    `json:"pair"`
	Type          RuleType   `json:"rule_type"`
	Origin        RuleOrigin `json:"source"`
	Justification string     `json:"justification"`
	Priority      int        `json:"source_priority"`
}
