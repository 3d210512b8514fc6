package scorer

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/chemsafe-cli/internal/model"
)

// Sample is one labeled training example: an observation plus the
// reviewer-assigned confidence and tier.
type Sample struct {
	Record     model.ExtractionRecord `json:"record"`
	FieldLabel string                 `json:"field_label,omitempty"`
	Confidence float64                `json:"confidence"`
	Tier       model.QualityTier      `json:"tier"`
}

// TrainOptions tunes gradient descent. Zero values take defaults.
type TrainOptions struct {
	Epochs       int
	LearningRate float64
	L2           float64
}

func (o TrainOptions) withDefaults() TrainOptions {
	if o.Epochs == 0 {
		o.Epochs = 400
	}
	if o.LearningRate == 0 {
		o.LearningRate = 0.05
	}
	if o.L2 == 0 {
		o.L2 = 0.001
	}
	return o
}

// Train fits the regressor (ridge-regularized least squares) and the
// per-tier logistic heads by gradient descent. The two heads are fit
// independently: the classifier captures interaction effects the
// confidence bands miss, and is allowed to disagree with them.
func Train(samples []Sample, opts TrainOptions) (*Model, error) {
	if len(samples) < 10 {
		return nil, eris.Errorf("scorer: need at least 10 training samples, got %d", len(samples))
	}
	opts = opts.withDefaults()

	xs := make([][]float64, len(samples))
	for i, s := range samples {
		xs[i] = Features(s.Record, ScoringContext{FieldLabel: s.FieldLabel})
	}

	m := &Model{
		FeatureNames: FeatureNames,
		Classifier:   make(map[string]LinearHead, len(tierOrder)),
		Samples:      len(samples),
		TrainedAt:    time.Now().UTC(),
	}

	// Regressor: squared loss on the labeled confidence.
	reg := LinearHead{Weights: make([]float64, FeatureDim)}
	for epoch := 0; epoch < opts.Epochs; epoch++ {
		gradW := make([]float64, FeatureDim)
		var gradB float64
		for i, x := range xs {
			pred := dot(reg.Weights, x) + reg.Bias
			diff := pred - samples[i].Confidence
			for j := range x {
				gradW[j] += diff * x[j]
			}
			gradB += diff
		}
		n := float64(len(xs))
		for j := range reg.Weights {
			reg.Weights[j] -= opts.LearningRate * (gradW[j]/n + opts.L2*reg.Weights[j])
		}
		reg.Bias -= opts.LearningRate * gradB / n
	}
	m.Regressor = reg

	// Classifier: one-vs-rest logistic head per tier.
	for _, tier := range tierOrder {
		head := LinearHead{Weights: make([]float64, FeatureDim)}
		for epoch := 0; epoch < opts.Epochs; epoch++ {
			gradW := make([]float64, FeatureDim)
			var gradB float64
			for i, x := range xs {
				var y float64
				if samples[i].Tier == tier {
					y = 1
				}
				pred := sigmoid(dot(head.Weights, x) + head.Bias)
				diff := pred - y
				for j := range x {
					gradW[j] += diff * x[j]
				}
				gradB += diff
			}
			n := float64(len(xs))
			for j := range head.Weights {
				head.Weights[j] -= opts.LearningRate * (gradW[j]/n + opts.L2*head.Weights[j])
			}
			head.Bias -= opts.LearningRate * gradB / n
		}
		m.Classifier[string(tier)] = head
	}

	zap.L().Info("scorer: model trained",
		zap.Int("samples", len(samples)),
		zap.Int("epochs", opts.Epochs),
	)

	return m, nil
}
