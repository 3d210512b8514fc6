package scorer

import (
	"math"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// tierOrder fixes the classifier output layout.
var tierOrder = []model.QualityTier{
	model.TierExcellent,
	model.TierGood,
	model.TierAcceptable,
	model.TierPoor,
	model.TierUnreliable,
}

// LearnedScorer scores with a trained model: a linear regressor for the
// continuous confidence and an independent one-vs-rest logistic
// classifier for the tier. The classifier is allowed to deviate from
// the canonical confidence bands; disagreement is surfaced, never
// resolved here.
type LearnedScorer struct {
	model *Model
}

// NewLearnedScorer wraps a loaded model.
func NewLearnedScorer(m *Model) *LearnedScorer {
	return &LearnedScorer{model: m}
}

// Score predicts confidence and tier from the feature vector.
func (ls *LearnedScorer) Score(rec model.ExtractionRecord, sctx ScoringContext) Result {
	x := Features(rec, sctx)

	conf := clip01(dot(ls.model.Regressor.Weights, x) + ls.model.Regressor.Bias)

	tier := ls.classify(x)

	return Result{
		Confidence:       conf,
		Tier:             tier,
		TierDisagreement: tier != model.TierFromConfidence(conf),
	}
}

// classify picks the tier with the highest one-vs-rest logistic score.
func (ls *LearnedScorer) classify(x []float64) model.QualityTier {
	best := tierOrder[len(tierOrder)-1]
	bestScore := math.Inf(-1)
	for _, tier := range tierOrder {
		head, ok := ls.model.Classifier[string(tier)]
		if !ok {
			continue
		}
		s := sigmoid(dot(head.Weights, x) + head.Bias)
		if s > bestScore {
			bestScore = s
			best = tier
		}
	}
	return best
}

func dot(w, x []float64) float64 {
	var s float64
	for i := range w {
		if i >= len(x) {
			break
		}
		s += w[i] * x[i]
	}
	return s
}

func sigmoid(z float64) float64 {
	return 1.0 / (1.0 + math.Exp(-z))
}
