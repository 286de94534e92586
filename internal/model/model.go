// Package model loads the pre-trained churn classifier and scores feature
// rows. The artifact is a JSON export of a fitted logistic regression: an
// intercept plus weights keyed by feature name, with categorical levels
// flattened to "column=value" keys during training.
package model

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"

	"github.com/dvloznov/churn-scorer/internal/gcs"
	"github.com/dvloznov/churn-scorer/internal/pipeline"
)

const artifactType = "logistic_regression"

// artifact is the on-disk model format.
type artifact struct {
	ModelType string             `json:"model_type"`
	Version   string             `json:"version"`
	Bias      float64            `json:"bias"`
	Weights   map[string]float64 `json:"weights"`
}

// LogisticModel scores feature rows with a fitted logistic regression.
// Features without a weight contribute nothing, which is how a categorical
// level unseen at training time behaves.
type LogisticModel struct {
	version string
	bias    float64
	weights map[string]float64
}

// Parse decodes a model artifact from JSON bytes.
func Parse(data []byte) (*LogisticModel, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("Parse: decoding artifact: %w", err)
	}
	if a.ModelType != artifactType {
		return nil, fmt.Errorf("Parse: unsupported model_type %q, want %q", a.ModelType, artifactType)
	}
	if len(a.Weights) == 0 {
		return nil, fmt.Errorf("Parse: artifact has no weights")
	}
	for name, w := range a.Weights {
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("Parse: weight %q is %v", name, w)
		}
	}
	return &LogisticModel{version: a.Version, bias: a.Bias, weights: a.Weights}, nil
}

// Load reads a model artifact from a local path or a gs:// URI.
func Load(ctx context.Context, storage gcs.StorageService, uri string) (*LogisticModel, error) {
	var data []byte
	var err error
	if gcs.IsURI(uri) {
		data, err = storage.Fetch(ctx, uri)
	} else {
		data, err = os.ReadFile(uri)
	}
	if err != nil {
		return nil, fmt.Errorf("Load: reading artifact %s: %w", uri, err)
	}
	return Parse(data)
}

// Version returns the artifact's version string.
func (m *LogisticModel) Version() string {
	return m.version
}

// PredictProba returns the churn probability for each feature row, in input
// order: sigmoid of the intercept plus the dot product of weights and the
// row's encoded features. Features are summed in sorted name order so that
// identical inputs always round to identical probabilities.
func (m *LogisticModel) PredictProba(ctx context.Context, rows []pipeline.FeatureRow) ([]float64, error) {
	probs := make([]float64, len(rows))
	for i, row := range rows {
		feats := row.Features()
		names := make([]string, 0, len(feats))
		for name := range feats {
			names = append(names, name)
		}
		sort.Strings(names)

		z := m.bias
		for _, name := range names {
			z += m.weights[name] * feats[name]
		}
		probs[i] = sigmoid(z)
	}
	return probs, nil
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}
