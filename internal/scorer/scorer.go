// Package scorer computes calibrated confidence scores and quality tiers
// for extraction observations. Two strategies coexist behind a single
// facade: a rule-based scorer that is always available, and a learned
// scorer used when a trained model file is present.
package scorer

import (
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/config"
	"github.com/sells-group/chemsafe-cli/internal/model"
)

// ScoringContext carries per-observation hints that are not part of the
// record itself.
type ScoringContext struct {
	// FieldLabel is the human-readable label the value was extracted
	// near (e.g. "CAS No." for cas_number). Used for context proximity.
	FieldLabel string
}

// Result is what a scoring strategy reports for one observation.
type Result struct {
	Confidence float64
	Tier       model.QualityTier
	// TierDisagreement is set when the tier was produced by a classifier
	// and disagrees with the canonical band for the confidence. Callers
	// must keep the classifier tier; the flag is informational.
	TierDisagreement bool
}

// Scorer is one scoring strategy.
type Scorer interface {
	Score(rec model.ExtractionRecord, sctx ScoringContext) Result
}

// ConfidenceScorer selects between the learned and rule-based
// strategies. A missing or untrained model is never an error; scoring
// falls back to rules.
type ConfidenceScorer struct {
	rules   *RuleBasedScorer
	learned *LearnedScorer
}

// New builds the facade. When cfg.ModelPath names a loadable model the
// learned scorer is preferred; otherwise only the rule-based scorer is
// installed.
func New(cfg config.ScorerConfig) *ConfidenceScorer {
	cs := &ConfidenceScorer{rules: NewRuleBasedScorer(cfg)}

	if cfg.ModelPath == "" {
		return cs
	}
	m, err := LoadModel(cfg.ModelPath)
	if err != nil {
		zap.L().Warn("scorer: learned model unavailable, using rule-based scoring",
			zap.String("model_path", cfg.ModelPath),
			zap.Error(err),
		)
		return cs
	}
	cs.learned = NewLearnedScorer(m)
	zap.L().Info("scorer: learned model loaded",
		zap.String("model_path", cfg.ModelPath),
		zap.Int("training_samples", m.Samples),
	)
	return cs
}

// Score scores one observation with the best available strategy.
func (cs *ConfidenceScorer) Score(rec model.ExtractionRecord, sctx ScoringContext) Result {
	if cs.learned != nil {
		return cs.learned.Score(rec, sctx)
	}
	return cs.rules.Score(rec, sctx)
}

// Learned reports whether the learned strategy is active.
func (cs *ConfidenceScorer) Learned() bool {
	return cs.learned != nil
}

func clip01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
