package bigquery

import (
	"context"
	"errors"
	"testing"

	"github.com/dvloznov/churn-scorer/internal/table"
)

// fakeLoader counts fetches and can be made to fail per table name.
type fakeLoader struct {
	calls map[string]int
	fail  map[string]error
}

func (f *fakeLoader) LoadTable(ctx context.Context, name string) (*table.Table, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
	if err := f.fail[name]; err != nil {
		return nil, err
	}
	return table.New("id"), nil
}

func TestCachedLoader_FetchesOnce(t *testing.T) {
	inner := &fakeLoader{}
	loader := NewCachedLoader(inner)
	ctx := context.Background()

	first, err := loader.LoadTable(ctx, CreditorsTable)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}
	second, err := loader.LoadTable(ctx, CreditorsTable)
	if err != nil {
		t.Fatalf("LoadTable failed: %v", err)
	}

	if inner.calls[CreditorsTable] != 1 {
		t.Errorf("Expected 1 warehouse fetch, got %d", inner.calls[CreditorsTable])
	}
	if first != second {
		t.Error("Expected the cached table instance on the second load")
	}
}

func TestCachedLoader_DistinctTables(t *testing.T) {
	inner := &fakeLoader{}
	loader := NewCachedLoader(inner)
	ctx := context.Background()

	for _, name := range []string{CreditorsTable, MandatesTable, PaymentsTable} {
		if _, err := loader.LoadTable(ctx, name); err != nil {
			t.Fatalf("LoadTable(%s) failed: %v", name, err)
		}
	}

	for _, name := range []string{CreditorsTable, MandatesTable, PaymentsTable} {
		if inner.calls[name] != 1 {
			t.Errorf("Expected 1 fetch for %s, got %d", name, inner.calls[name])
		}
	}
}

func TestCachedLoader_DoesNotCacheFailures(t *testing.T) {
	fetchErr := errors.New("connection reset")
	inner := &fakeLoader{fail: map[string]error{PaymentsTable: fetchErr}}
	loader := NewCachedLoader(inner)
	ctx := context.Background()

	if _, err := loader.LoadTable(ctx, PaymentsTable); !errors.Is(err, fetchErr) {
		t.Fatalf("Expected fetch error, got: %v", err)
	}

	// Clear the failure and retry; the loader must go back to the warehouse.
	inner.fail = nil
	if _, err := loader.LoadTable(ctx, PaymentsTable); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if inner.calls[PaymentsTable] != 2 {
		t.Errorf("Expected 2 fetch attempts, got %d", inner.calls[PaymentsTable])
	}
}
