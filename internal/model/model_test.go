package model

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/churn-scorer/internal/gcs"
	"github.com/dvloznov/churn-scorer/internal/pipeline"
)

const validArtifact = `{
	"model_type": "logistic_regression",
	"version": "2017-q1",
	"bias": -1.0,
	"weights": {
		"amount_sum": -0.001,
		"num_payments": -0.05,
		"pct_scheme_bacs": 0.2,
		"has_logo": -0.3,
		"merchant_type=retail": 0.1
	}
}`

func TestParse(t *testing.T) {
	m, err := Parse([]byte(validArtifact))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	if m.Version() != "2017-q1" {
		t.Errorf("Version = %q, want 2017-q1", m.Version())
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not json", `{"model_type":`},
		{"wrong model type", `{"model_type": "gradient_boosting", "weights": {"x": 1}}`},
		{"no weights", `{"model_type": "logistic_regression", "weights": {}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.data)); err == nil {
				t.Error("Expected parse error")
			}
		})
	}
}

func TestLoad_LocalFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "churn_model.json")
	if err := os.WriteFile(path, []byte(validArtifact), 0o644); err != nil {
		t.Fatalf("writing artifact: %v", err)
	}

	m, err := Load(context.Background(), gcs.NewService(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if m.Version() != "2017-q1" {
		t.Errorf("Version = %q, want 2017-q1", m.Version())
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(context.Background(), gcs.NewService(), filepath.Join(t.TempDir(), "absent.json"))
	if err == nil {
		t.Error("Expected error for a missing artifact")
	}
}

func TestPredictProba_Range(t *testing.T) {
	m, err := Parse([]byte(validArtifact))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	rows := []pipeline.FeatureRow{
		{CreditorID: "CR1", AmountSum: 1e6, NumPayments: 10000},
		{CreditorID: "CR2", AmountSum: -1e6},
		{CreditorID: "CR3"},
	}

	probs, err := m.PredictProba(context.Background(), rows)
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	if len(probs) != len(rows) {
		t.Fatalf("Expected %d probabilities, got %d", len(rows), len(probs))
	}
	for i, p := range probs {
		if p < 0 || p > 1 || math.IsNaN(p) {
			t.Errorf("Probability %d = %v, want within [0,1]", i, p)
		}
	}
}

func TestPredictProba_ZeroFeatures(t *testing.T) {
	// With every feature at zero only the bias acts: sigmoid(-1).
	m, err := Parse([]byte(validArtifact))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	probs, err := m.PredictProba(context.Background(), []pipeline.FeatureRow{{CreditorID: "CR1"}})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}

	want := 1 / (1 + math.Exp(1))
	// merchant_type="" has no weight, has_logo/refunds are 0, so only bias.
	if math.Abs(probs[0]-want) > 1e-9 {
		t.Errorf("Probability = %v, want sigmoid(bias) = %v", probs[0], want)
	}
}

func TestPredictProba_MonotoneInWeightedFeature(t *testing.T) {
	// pct_scheme_bacs carries a positive weight, so raising it alone must
	// raise the churn probability.
	m, err := Parse([]byte(validArtifact))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	low := pipeline.FeatureRow{CreditorID: "CR1", PctSchemeBacs: 0.1}
	high := pipeline.FeatureRow{CreditorID: "CR1", PctSchemeBacs: 0.9}

	probs, err := m.PredictProba(context.Background(), []pipeline.FeatureRow{low, high})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	if probs[1] <= probs[0] {
		t.Errorf("Expected probability to rise with pct_scheme_bacs: %v vs %v", probs[0], probs[1])
	}
}

func TestPredictProba_Deterministic(t *testing.T) {
	// Weights with cancelling magnitudes make the sum sensitive to addition
	// order; repeated calls on the same row must still agree to the last bit.
	m, err := Parse([]byte(`{
		"model_type": "logistic_regression",
		"version": "2017-q1",
		"bias": 0.25,
		"weights": {
			"amount_sum": 1e8,
			"num_payments": -1.25e7,
			"active_aging": 0.375,
			"pct_source_api": -1e-9
		}
	}`))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	row := pipeline.FeatureRow{
		CreditorID:   "CR1",
		AmountSum:    1,
		NumPayments:  8,
		ActiveAging:  3,
		PctSourceAPI: 0.123456789,
	}

	first, err := m.PredictProba(context.Background(), []pipeline.FeatureRow{row})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	for i := 0; i < 500; i++ {
		probs, err := m.PredictProba(context.Background(), []pipeline.FeatureRow{row})
		if err != nil {
			t.Fatalf("PredictProba failed: %v", err)
		}
		if probs[0] != first[0] {
			t.Fatalf("Run %d returned %v, first run returned %v", i, probs[0], first[0])
		}
	}
}

func TestPredictProba_UnseenCategoricalLevel(t *testing.T) {
	m, err := Parse([]byte(validArtifact))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	known := pipeline.FeatureRow{CreditorID: "CR1", MerchantType: "retail"}
	unseen := pipeline.FeatureRow{CreditorID: "CR2", MerchantType: "dog_grooming"}

	probs, err := m.PredictProba(context.Background(), []pipeline.FeatureRow{known, unseen})
	if err != nil {
		t.Fatalf("PredictProba failed: %v", err)
	}
	// retail carries weight 0.1, an unseen level contributes nothing.
	if probs[0] <= probs[1] {
		t.Errorf("Expected retail weight to act: %v vs %v", probs[0], probs[1])
	}
}
