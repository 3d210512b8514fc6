package scorer

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// sourcePrior is the reliability prior per extraction source. A regex
// heuristic outranks a single LLM pass, but multi-model consensus
// outranks the heuristic.
var sourcePrior = map[model.Source]float64{
	model.SourceUserCorrection:     1.0,
	model.SourceLLMConsensus:       0.95,
	model.SourceExternalValidation: 0.9,
	model.SourceHeuristic:          0.8,
	model.SourceLLM:                0.6,
}

// identifierFormats holds exact-format patterns for identifier fields.
// An exact match earns the full field-type prior.
var identifierFormats = map[string]*regexp.Regexp{
	"cas_number": regexp.MustCompile(`^\d{2,7}-\d{2}-\d$`),
	"un_number":  regexp.MustCompile(`^(UN)?\d{4}$`),
	"ec_number":  regexp.MustCompile(`^\d{3}-\d{3}-\d$`),
}

// RuleBasedScorer is the always-available deterministic strategy: a
// weighted sum of normalized features, clipped to [0,1].
type RuleBasedScorer struct {
	cfg config.ScorerConfig
}

// NewRuleBasedScorer creates a RuleBasedScorer with the given weights.
func NewRuleBasedScorer(cfg config.ScorerConfig) *RuleBasedScorer {
	return &RuleBasedScorer{cfg: cfg}
}

// Score computes the weighted feature sum. Tier is derived from the
// canonical confidence bands; the rule-based path never disagrees with
// itself.
func (rb *RuleBasedScorer) Score(rec model.ExtractionRecord, sctx ScoringContext) Result {
	w := rb.cfg

	conf := w.PatternWeight*rec.PatternStrength +
		w.SourceWeight*sourcePrior[rec.Source] +
		w.ProximityWeight*contextProximity(rec, sctx) +
		w.FieldTypeWeight*fieldTypePrior(rec.FieldName, rec.RawValue)

	if rec.CrossValidated {
		conf += w.CrossValidationBonus
	}

	conf = clip01(conf)
	return Result{Confidence: conf, Tier: model.TierFromConfidence(conf)}
}

// contextProximity returns a score in [0,1] that is inverse-weighted by
// the character distance between the extracted value and its field
// label inside the context snippet. When either is absent the feature
// is neutral.
func contextProximity(rec model.ExtractionRecord, sctx ScoringContext) float64 {
	snippet := strings.ToLower(rec.ContextSnippet)
	if snippet == "" || sctx.FieldLabel == "" {
		return 0.5
	}
	labelIdx := strings.Index(snippet, strings.ToLower(sctx.FieldLabel))
	valueIdx := strings.Index(snippet, strings.ToLower(rec.RawValue))
	if labelIdx < 0 || valueIdx < 0 {
		return 0.5
	}
	dist := labelIdx - valueIdx
	if dist < 0 {
		dist = -dist
	}
	return 1.0 / (1.0 + float64(dist)/32.0)
}

// fieldTypePrior rewards identifier-like fields whose values match the
// exact expected format, scores parseable numerics and booleans above
// neutral, and leaves free text at the neutral midpoint.
func fieldTypePrior(fieldName, value string) float64 {
	value = strings.TrimSpace(value)

	if re, ok := identifierFormats[fieldName]; ok {
		if re.MatchString(value) {
			return 1.0
		}
		return 0.2
	}

	switch {
	case strings.HasPrefix(fieldName, "is_"):
		switch strings.ToLower(value) {
		case "true", "false", "yes", "no", "1", "0":
			return 0.9
		}
		return 0.3
	case fieldName == model.FieldIDLH:
		if _, err := strconv.ParseFloat(value, 64); err == nil {
			return 0.9
		}
		return 0.3
	default:
		return 0.5
	}
}
