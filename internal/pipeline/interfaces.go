package pipeline

import (
	"context"

	"github.com/dvloznov/churn-scorer/internal/table"
)

// TableLoader fetches one named source table from the warehouse. Loader
// failures surface to the caller unchanged and abort the run.
type TableLoader interface {
	LoadTable(ctx context.Context, name string) (*table.Table, error)
}

// Scorer is the pre-trained binary classifier. It returns one churn
// probability per feature row, in the same order. The pipeline treats it as
// a black box and never retrains or validates the model itself.
type Scorer interface {
	PredictProba(ctx context.Context, rows []FeatureRow) ([]float64, error)
}

// RunRecorder writes scoring-run audit rows.
// This interface enables mocking and testing, and lets local runs skip the
// warehouse with NopRecorder.
type RunRecorder interface {
	StartRun(ctx context.Context, modelURI string) (string, error)
	MarkRunSucceeded(ctx context.Context, runID string, creditorsScored int) error
	MarkRunFailed(ctx context.Context, runID string, runErr error) error
}

// NopRecorder is a RunRecorder that records nothing.
type NopRecorder struct{}

func (NopRecorder) StartRun(ctx context.Context, modelURI string) (string, error) {
	return "", nil
}

func (NopRecorder) MarkRunSucceeded(ctx context.Context, runID string, creditorsScored int) error {
	return nil
}

func (NopRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) error {
	return nil
}
