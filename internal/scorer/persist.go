package scorer

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rotisserie/eris"
)

// LinearHead is one linear output: weights over the feature vector plus
// a bias term.
type LinearHead struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// Model is the persisted learned scorer: an independent regressor and
// per-tier classifier heads, stored as JSON so a trained model is
// auditable with ordinary tools.
type Model struct {
	FeatureNames []string              `json:"feature_names"`
	Regressor    LinearHead            `json:"regressor"`
	Classifier   map[string]LinearHead `json:"classifier"`
	Samples      int                   `json:"training_samples"`
	TrainedAt    time.Time             `json:"trained_at"`
}

// LoadModel reads and validates a model file. A vectorization mismatch
// is an error: the model was trained against a different feature order.
func LoadModel(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "scorer: read model %s", path)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "scorer: unmarshal model")
	}

	if len(m.Regressor.Weights) != FeatureDim {
		return nil, eris.Errorf("scorer: model regressor has %d weights, expected %d",
			len(m.Regressor.Weights), FeatureDim)
	}
	if len(m.FeatureNames) != FeatureDim {
		return nil, eris.Errorf("scorer: model has %d feature names, expected %d",
			len(m.FeatureNames), FeatureDim)
	}
	for i, name := range m.FeatureNames {
		if name != FeatureNames[i] {
			return nil, eris.Errorf("scorer: feature %d is %q in model but %q here", i, name, FeatureNames[i])
		}
	}
	for tier, head := range m.Classifier {
		if len(head.Weights) != FeatureDim {
			return nil, eris.Errorf("scorer: classifier head %q has %d weights, expected %d",
				tier, len(head.Weights), FeatureDim)
		}
	}

	return &m, nil
}

// SaveModel writes the model as indented JSON.
func SaveModel(m *Model, path string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "scorer: marshal model")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return eris.Wrapf(err, "scorer: write model %s", path)
	}
	return nil
}
