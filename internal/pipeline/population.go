package pipeline

import (
	"fmt"
	"time"

	"github.com/dvloznov/churn-scorer/internal/schema"
	"github.com/dvloznov/churn-scorer/internal/table"
)

// Window defines the population selection instants. A creditor with no
// payment at or after RecencyCutoff is presumed churned and excluded from
// scoring; only rows at or after WindowStart feed feature aggregation.
type Window struct {
	RecencyCutoff time.Time
	WindowStart   time.Time
}

// DefaultWindow scores Q1 2017 churn: recently active means a payment in or
// after Q4 2016, observed over the trailing window from July 2016.
func DefaultWindow() Window {
	return Window{
		RecencyCutoff: time.Date(2016, 10, 1, 0, 0, 0, 0, time.UTC),
		WindowStart:   time.Date(2016, 7, 1, 0, 0, 0, 0, time.UTC),
	}
}

// SelectPopulation restricts the merged table to the rows eligible for
// prediction: payments at or after the window start, for creditors that were
// still active at the recency cutoff. A creditor whose payments all predate
// the window contributes zero rows and never reaches the output file.
func SelectPopulation(merged *table.Table, w Window) (*table.Table, error) {
	creditorCol := schema.Creditor.CreditorID
	createdCol := schema.Payment.PaymentCreatedAt
	if err := merged.RequireColumns(creditorCol, createdCol); err != nil {
		return nil, fmt.Errorf("SelectPopulation: %w", err)
	}

	// Creditors with at least one payment at or after the recency cutoff.
	recentlyActive := make(map[string]struct{})
	for i := 0; i < merged.Len(); i++ {
		row := merged.Row(i)
		ts, err := table.AsTime(row[createdCol])
		if err != nil {
			return nil, fmt.Errorf("SelectPopulation: row %d: %s: %w", i, createdCol, err)
		}
		if !ts.Before(w.RecencyCutoff) {
			recentlyActive[idString(row[creditorCol])] = struct{}{}
		}
	}

	// Everyone else in the merged table churned before the recency window.
	churned := make(map[string]struct{})
	for i := 0; i < merged.Len(); i++ {
		id := idString(merged.Row(i)[creditorCol])
		if _, ok := recentlyActive[id]; !ok {
			churned[id] = struct{}{}
		}
	}

	out := merged.Filter(func(row table.Row) bool {
		ts, err := table.AsTime(row[createdCol])
		if err != nil {
			return false
		}
		if ts.Before(w.WindowStart) {
			return false
		}
		_, isChurned := churned[idString(row[creditorCol])]
		return !isChurned
	})

	return out, nil
}
