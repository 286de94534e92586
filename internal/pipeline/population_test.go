package pipeline

import (
	"testing"

	"github.com/dvloznov/churn-scorer/internal/table"
)

// mergedFixture builds a merged table from (creditor, payment time) pairs,
// running the real joiner so selection tests see production column names.
func mergedFixture(t *testing.T, payments *table.Table, creditorIDs ...string) *table.Table {
	t.Helper()

	var cRows, mRows []table.Row
	for _, id := range creditorIDs {
		cRows = append(cRows, creditorRow(id))
		mRows = append(mRows, mandateRow("MD-"+id, id, "bacs"))
	}
	merged, err := MergeTables(creditorTable(t, cRows...), mandateTable(t, mRows...), payments)
	if err != nil {
		t.Fatalf("MergeTables failed: %v", err)
	}
	return merged
}

func TestSelectPopulation_ExcludesChurnedBeforeWindow(t *testing.T) {
	// Creditor X's only payment predates the window; no activity after the
	// recency cutoff either. It must contribute zero rows.
	payments := paymentTable(t,
		paymentRow("PM1", "X", "MD-X", ts(2016, 6, 15), 10),
		paymentRow("PM2", "Y", "MD-Y", ts(2016, 11, 5), 20),
	)
	merged := mergedFixture(t, payments, "X", "Y")

	selected, err := SelectPopulation(merged, DefaultWindow())
	if err != nil {
		t.Fatalf("SelectPopulation failed: %v", err)
	}

	for i := 0; i < selected.Len(); i++ {
		if selected.Row(i)["creditor_id"] == "X" {
			t.Error("Expected creditor X to be absent from the filtered output")
		}
	}
	if selected.Len() != 1 {
		t.Errorf("Expected only Y's payment, got %d rows", selected.Len())
	}
}

func TestSelectPopulation_RetainsWindowRowsOfActiveCreditors(t *testing.T) {
	// A creditor active after the cutoff keeps every payment inside the
	// window, including ones before the cutoff.
	payments := paymentTable(t,
		paymentRow("PM1", "CR1", "MD-CR1", ts(2016, 8, 1), 10),
		paymentRow("PM2", "CR1", "MD-CR1", ts(2016, 11, 1), 20),
	)
	merged := mergedFixture(t, payments, "CR1")

	selected, err := SelectPopulation(merged, DefaultWindow())
	if err != nil {
		t.Fatalf("SelectPopulation failed: %v", err)
	}

	if selected.Len() != 2 {
		t.Fatalf("Expected both payments retained, got %d rows", selected.Len())
	}
}

func TestSelectPopulation_DropsPreWindowRows(t *testing.T) {
	// Active creditor, but its pre-window payment does not feed features.
	payments := paymentTable(t,
		paymentRow("PM1", "CR1", "MD-CR1", ts(2016, 5, 1), 10),
		paymentRow("PM2", "CR1", "MD-CR1", ts(2016, 10, 15), 20),
	)
	merged := mergedFixture(t, payments, "CR1")

	selected, err := SelectPopulation(merged, DefaultWindow())
	if err != nil {
		t.Fatalf("SelectPopulation failed: %v", err)
	}

	if selected.Len() != 1 {
		t.Fatalf("Expected 1 row, got %d", selected.Len())
	}
	if selected.Row(0)["payment_id"] != "PM2" {
		t.Errorf("Expected only the in-window payment, got %v", selected.Row(0)["payment_id"])
	}
}

func TestSelectPopulation_BoundaryInstants(t *testing.T) {
	w := DefaultWindow()
	// Payments exactly at the window start and the recency cutoff are both
	// inclusive.
	payments := paymentTable(t,
		paymentRow("PM1", "CR1", "MD-CR1", w.WindowStart, 10),
		paymentRow("PM2", "CR1", "MD-CR1", w.RecencyCutoff, 20),
	)
	merged := mergedFixture(t, payments, "CR1")

	selected, err := SelectPopulation(merged, w)
	if err != nil {
		t.Fatalf("SelectPopulation failed: %v", err)
	}
	if selected.Len() != 2 {
		t.Errorf("Expected boundary payments retained, got %d rows", selected.Len())
	}
}

func TestSelectPopulation_EmptyPopulation(t *testing.T) {
	// Everyone churned before the recency window.
	payments := paymentTable(t,
		paymentRow("PM1", "CR1", "MD-CR1", ts(2016, 8, 1), 10),
		paymentRow("PM2", "CR2", "MD-CR2", ts(2016, 9, 1), 20),
	)
	merged := mergedFixture(t, payments, "CR1", "CR2")

	selected, err := SelectPopulation(merged, DefaultWindow())
	if err != nil {
		t.Fatalf("SelectPopulation failed: %v", err)
	}
	if selected.Len() != 0 {
		t.Errorf("Expected empty population, got %d rows", selected.Len())
	}
}
