package bigquery

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
)

const scoringRunsTable = "scoring_runs"

// maxErrorMessageLen bounds the error_message column so one giant wrapped
// error cannot bloat the audit table.
const maxErrorMessageLen = 2000

// RunRecorder writes scoring-run audit rows. Kept behind the same Loader
// client so one batch job holds a single BigQuery connection.
//
// All three operations go through DML queries. StartRun deliberately avoids
// the streaming inserter: rows in the streaming buffer cannot be touched by
// UPDATE for up to 90 minutes, which would make the later MarkRun* calls
// fail on every run.
type RunRecorder struct {
	client  *bigquery.Client
	dataset string
}

// NewRunRecorder creates a recorder writing to dataset.scoring_runs.
func NewRunRecorder(client *bigquery.Client, dataset string) *RunRecorder {
	return &RunRecorder{client: client, dataset: dataset}
}

// StartRun inserts a RUNNING row and returns its run id.
func (r *RunRecorder) StartRun(ctx context.Context, modelURI string) (string, error) {
	runID := uuid.NewString()

	stmt, params := startRunStatement(r.dataset, runID, modelURI, time.Now().UTC())
	q := r.client.Query(stmt)
	q.Parameters = params

	if err := runDML(ctx, q); err != nil {
		return "", fmt.Errorf("StartRun: %w", err)
	}
	return runID, nil
}

// MarkRunSucceeded updates a run to SUCCESS with the scored creditor count.
func (r *RunRecorder) MarkRunSucceeded(ctx context.Context, runID string, creditorsScored int) error {
	stmt, params := markSucceededStatement(r.dataset, runID, creditorsScored, time.Now().UTC())
	q := r.client.Query(stmt)
	q.Parameters = params

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkRunSucceeded: %w", err)
	}
	return nil
}

// MarkRunFailed updates a run to FAILED. It logs nothing itself and returns
// the update error so the caller can decide; the original scoring error
// always takes precedence over an audit-write failure.
func (r *RunRecorder) MarkRunFailed(ctx context.Context, runID string, runErr error) error {
	errMsg := ""
	if runErr != nil {
		errMsg = truncateErrorMessage(runErr.Error())
	}

	stmt, params := markFailedStatement(r.dataset, runID, errMsg, time.Now().UTC())
	q := r.client.Query(stmt)
	q.Parameters = params

	if err := runDML(ctx, q); err != nil {
		return fmt.Errorf("MarkRunFailed: %w", err)
	}
	return nil
}

func startRunStatement(dataset, runID, modelURI string, started time.Time) (string, []bigquery.QueryParameter) {
	stmt := fmt.Sprintf(`
		INSERT %s.%s (
			scoring_run_id,
			started_ts,
			model_uri,
			status
		)
		VALUES (
			@scoring_run_id,
			@started_ts,
			@model_uri,
			@status
		)
	`, dataset, scoringRunsTable)

	params := []bigquery.QueryParameter{
		{Name: "scoring_run_id", Value: runID},
		{Name: "started_ts", Value: started},
		{Name: "model_uri", Value: modelURI},
		{Name: "status", Value: "RUNNING"},
	}
	return stmt, params
}

func markSucceededStatement(dataset, runID string, creditorsScored int, finished time.Time) (string, []bigquery.QueryParameter) {
	stmt := fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    creditors_scored = @creditors_scored,
		    error_message = ""
		WHERE scoring_run_id = @scoring_run_id
	`, dataset, scoringRunsTable)

	params := []bigquery.QueryParameter{
		{Name: "status", Value: "SUCCESS"},
		{Name: "finished_ts", Value: finished},
		{Name: "creditors_scored", Value: int64(creditorsScored)},
		{Name: "scoring_run_id", Value: runID},
	}
	return stmt, params
}

func markFailedStatement(dataset, runID, errMsg string, finished time.Time) (string, []bigquery.QueryParameter) {
	stmt := fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE scoring_run_id = @scoring_run_id
	`, dataset, scoringRunsTable)

	params := []bigquery.QueryParameter{
		{Name: "status", Value: "FAILED"},
		{Name: "finished_ts", Value: finished},
		{Name: "error_message", Value: errMsg},
		{Name: "scoring_run_id", Value: runID},
	}
	return stmt, params
}

// truncateErrorMessage caps msg at maxErrorMessageLen bytes without cutting
// through a multi-byte rune.
func truncateErrorMessage(msg string) string {
	if len(msg) <= maxErrorMessageLen {
		return msg
	}
	cut := maxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}

func runDML(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
