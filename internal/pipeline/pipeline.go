package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/churn-scorer/internal/infra/bigquery"
	"github.com/dvloznov/churn-scorer/internal/logger"
)

// ErrScorerMismatch reports that the model returned a different number of
// probabilities than feature rows. Silent misalignment between ids and
// probabilities would corrupt the output, so the run aborts.
var ErrScorerMismatch = errors.New("scorer output mismatch")

// Prediction pairs one creditor id with its churn probability.
type Prediction struct {
	ID          string
	Probability float64
}

// Pipeline wires the scoring batch job's collaborators.
type Pipeline struct {
	loader   TableLoader
	scorer   Scorer
	recorder RunRecorder
	window   Window
	modelURI string
}

// New creates a Pipeline. A nil recorder disables run auditing.
func New(loader TableLoader, scorer Scorer, recorder RunRecorder, window Window, modelURI string) *Pipeline {
	if recorder == nil {
		recorder = NopRecorder{}
	}
	return &Pipeline{
		loader:   loader,
		scorer:   scorer,
		recorder: recorder,
		window:   window,
		modelURI: modelURI,
	}
}

// Run executes one scoring batch and returns the predictions, one per
// creditor surviving population selection. An empty population returns an
// empty slice and no error; every scoring failure is fatal and recorded
// against the audit run. If scoring succeeds but the audit row cannot be
// marked, the predictions are returned alongside the error so the caller
// can still write them.
func (p *Pipeline) Run(ctx context.Context) ([]Prediction, error) {
	log := logger.FromContext(ctx)

	runID, err := p.recorder.StartRun(ctx, p.modelURI)
	if err != nil {
		return nil, fmt.Errorf("Run: starting audit run: %w", err)
	}

	preds, err := p.score(ctx)
	if err != nil {
		if markErr := p.recorder.MarkRunFailed(ctx, runID, err); markErr != nil {
			log.Error().Err(markErr).Str("scoring_run_id", runID).Msg("Failed to mark audit run failed")
		}
		return nil, err
	}

	if err := p.recorder.MarkRunSucceeded(ctx, runID, len(preds)); err != nil {
		// Scoring already succeeded; the work is not discarded over an
		// audit write.
		log.Error().Err(err).Str("scoring_run_id", runID).Msg("Failed to mark audit run succeeded")
		return preds, fmt.Errorf("Run: marking audit run succeeded: %w", err)
	}

	return preds, nil
}

func (p *Pipeline) score(ctx context.Context) ([]Prediction, error) {
	log := logger.FromContext(ctx)

	// 1. Fetch the three source tables from the warehouse.
	creditors, err := p.loader.LoadTable(ctx, bigquery.CreditorsTable)
	if err != nil {
		return nil, fmt.Errorf("Run: loading creditors: %w", err)
	}
	mandates, err := p.loader.LoadTable(ctx, bigquery.MandatesTable)
	if err != nil {
		return nil, fmt.Errorf("Run: loading mandates: %w", err)
	}
	payments, err := p.loader.LoadTable(ctx, bigquery.PaymentsTable)
	if err != nil {
		return nil, fmt.Errorf("Run: loading payments: %w", err)
	}
	log.Info().
		Int("creditors", creditors.Len()).
		Int("mandates", mandates.Len()).
		Int("payments", payments.Len()).
		Msg("Loaded source tables")

	// 2. Join them into one row per payment.
	merged, err := MergeTables(creditors, mandates, payments)
	if err != nil {
		return nil, err
	}
	log.Info().Int("rows", merged.Len()).Msg("Merged source tables")

	// 3. Restrict to the prediction population.
	selected, err := SelectPopulation(merged, p.window)
	if err != nil {
		return nil, err
	}
	if selected.Len() == 0 {
		// Not a failure: every creditor churned before the recency window.
		// The caller still writes a header-only output file.
		log.Warn().Msg("Population selection yielded zero rows; emitting empty prediction set")
		return []Prediction{}, nil
	}
	log.Info().Int("rows", selected.Len()).Msg("Selected prediction population")

	// 4. Derive one feature row per creditor.
	features, err := AggregateFeatures(selected)
	if err != nil {
		return nil, err
	}
	log.Info().Int("creditors", len(features)).Msg("Aggregated features")

	// 5. Score and pair each creditor id with its probability.
	probs, err := p.scorer.PredictProba(ctx, features)
	if err != nil {
		return nil, fmt.Errorf("Run: scoring: %w", err)
	}
	if len(probs) != len(features) {
		return nil, fmt.Errorf("%w: %d probabilities for %d feature rows",
			ErrScorerMismatch, len(probs), len(features))
	}

	preds := make([]Prediction, len(features))
	for i, f := range features {
		if probs[i] < 0 || probs[i] > 1 {
			return nil, fmt.Errorf("%w: probability %g for creditor %s outside [0,1]",
				ErrScorerMismatch, probs[i], f.CreditorID)
		}
		preds[i] = Prediction{ID: f.CreditorID, Probability: probs[i]}
	}

	log.Info().Int("creditors", len(preds)).Msg("Scored creditors")
	return preds, nil
}
