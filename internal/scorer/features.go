package scorer

import (
	"strings"
	"unicode"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// FeatureDim is the fixed length of the learned model's input vector.
// The order below is load-bearing: a persisted model is only valid for
// the vectorization it was trained with.
const FeatureDim = 17

// FeatureNames documents the vector layout, persisted alongside trained
// models so mismatches are detectable at load time.
var FeatureNames = []string{
	"pattern_strength",
	"value_length",
	"digit_ratio",
	"upper_ratio",
	"source_heuristic",
	"source_llm",
	"source_llm_consensus",
	"source_external_validation",
	"source_user_correction",
	"field_identifier",
	"field_numeric",
	"field_boolean",
	"field_freetext",
	"context_keyword_count",
	"context_proximity",
	"cross_validated",
	"snippet_length",
}

// contextKeywords are domain terms whose presence in the snippet
// correlates with an on-topic extraction.
var contextKeywords = []string{
	"cas", "hazard", "flammable", "oxidizer", "reactive", "idlh",
	"acid", "base", "storage", "incompatib", "msds", "sds", "ghs",
}

// Features converts one observation into the fixed-order numeric vector
// consumed by the learned regressor and classifier.
func Features(rec model.ExtractionRecord, sctx ScoringContext) []float64 {
	v := make([]float64, FeatureDim)

	value := strings.TrimSpace(rec.RawValue)
	snippet := strings.ToLower(rec.ContextSnippet)

	v[0] = rec.PatternStrength
	v[1] = capRatio(float64(len(value)), 64)
	v[2], v[3] = charShape(value)

	switch rec.Source {
	case model.SourceHeuristic:
		v[4] = 1
	case model.SourceLLM:
		v[5] = 1
	case model.SourceLLMConsensus:
		v[6] = 1
	case model.SourceExternalValidation:
		v[7] = 1
	case model.SourceUserCorrection:
		v[8] = 1
	}

	switch {
	case model.IsIdentifierField(rec.FieldName):
		v[9] = 1
	case rec.FieldName == model.FieldIDLH:
		v[10] = 1
	case strings.HasPrefix(rec.FieldName, "is_"):
		v[11] = 1
	default:
		v[12] = 1
	}

	var keywords float64
	for _, kw := range contextKeywords {
		if strings.Contains(snippet, kw) {
			keywords++
		}
	}
	v[13] = capRatio(keywords, 6)
	v[14] = contextProximity(rec, sctx)
	if rec.CrossValidated {
		v[15] = 1
	}
	v[16] = capRatio(float64(len(snippet)), 512)

	return v
}

// charShape returns the digit ratio and the uppercase ratio of s.
func charShape(s string) (digitRatio, upperRatio float64) {
	if s == "" {
		return 0, 0
	}
	var digits, uppers, letters int
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsUpper(r):
			uppers++
			letters++
		case unicode.IsLetter(r):
			letters++
		}
	}
	digitRatio = float64(digits) / float64(len([]rune(s)))
	if letters > 0 {
		upperRatio = float64(uppers) / float64(letters)
	}
	return digitRatio, upperRatio
}

func capRatio(v, max float64) float64 {
	if v >= max {
		return 1
	}
	return v / max
}
