// Package bigquery fetches the churn pipeline's source tables from the
// warehouse and records scoring runs. Query failures surface to the caller
// unchanged; the pipeline never retries a warehouse read.
package bigquery

import (
	"context"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/churn-scorer/internal/schema"
	"github.com/dvloznov/churn-scorer/internal/table"
)

// Source table names accepted by LoadTable.
const (
	CreditorsTable = "creditors"
	MandatesTable  = "mandates"
	PaymentsTable  = "payments"
)

// sourceColumns maps each table name to the columns the Schema Registry
// expects on it. Selecting columns explicitly (rather than SELECT *) keeps
// the warehouse free to grow columns without touching the pipeline.
var sourceColumns = map[string][]string{
	CreditorsTable: schema.Creditor.SourceColumns(),
	MandatesTable:  schema.Mandate.SourceColumns(),
	PaymentsTable:  schema.Payment.SourceColumns(),
}

// Loader wraps a BigQuery client scoped to one project and dataset.
type Loader struct {
	client  *bigquery.Client
	dataset string
}

// NewLoader creates a Loader with its own BigQuery client.
func NewLoader(ctx context.Context, projectID, dataset string) (*Loader, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewLoader: bigquery client: %w", err)
	}
	return &Loader{client: client, dataset: dataset}, nil
}

// NewLoaderWithClient creates a Loader around an existing client.
func NewLoaderWithClient(client *bigquery.Client, dataset string) *Loader {
	return &Loader{client: client, dataset: dataset}
}

// Client exposes the underlying BigQuery client so the run recorder can
// share one connection with the loader.
func (l *Loader) Client() *bigquery.Client {
	return l.client
}

// Close closes the underlying BigQuery client.
func (l *Loader) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}

// LoadTable fetches one source table as a generic in-memory table. Column
// presence is guaranteed by the explicit select list; a column missing from
// the warehouse fails the query itself rather than producing NULLs.
func (l *Loader) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	cols, ok := sourceColumns[name]
	if !ok {
		return nil, fmt.Errorf("LoadTable: unknown table %q", name)
	}

	q := l.client.Query(fmt.Sprintf("SELECT %s FROM `%s.%s`", strings.Join(cols, ", "), l.dataset, name))

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("LoadTable %s: query read: %w", name, err)
	}

	out := table.New(cols...)
	for {
		var values map[string]bigquery.Value
		err := it.Next(&values)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("LoadTable %s: iter next: %w", name, err)
		}
		row := make(table.Row, len(values))
		for k, v := range values {
			row[k] = v
		}
		out.Append(row)
	}

	return out, nil
}
