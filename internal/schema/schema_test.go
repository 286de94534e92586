package schema

import "testing"

func TestSourceColumnSets(t *testing.T) {
	tests := []struct {
		name string
		cols []string
		want int
	}{
		{"creditors", Creditor.SourceColumns(), 5},
		{"mandates", Mandate.SourceColumns(), 6},
		{"payments", Payment.SourceColumns(), 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if len(tt.cols) != tt.want {
				t.Fatalf("Expected %d source columns, got %v", tt.want, tt.cols)
			}
			seen := map[string]bool{}
			for _, c := range tt.cols {
				if c == "" {
					t.Error("Empty column name in registry")
				}
				if seen[c] {
					t.Errorf("Duplicate column %s", c)
				}
				seen[c] = true
			}
		})
	}
}

func TestPaymentSourceColumnListed(t *testing.T) {
	// The source column name must come from the Source field and appear in
	// the loaded-column list alongside it.
	if Payment.Source != "source" {
		t.Fatalf("Expected payment source column %q, got %q", "source", Payment.Source)
	}
	found := false
	for _, c := range Payment.SourceColumns() {
		if c == Payment.Source {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected %q among payment source columns %v", Payment.Source, Payment.SourceColumns())
	}
}

func TestDisambiguatedNames(t *testing.T) {
	// The joiner relies on the renamed id/created_at columns being distinct
	// across the three tables.
	renamed := []string{
		Creditor.CreditorID, Creditor.CreditorCreatedAt,
		Mandate.MandateID, Mandate.MandateCreatedAt,
		Payment.PaymentID, Payment.PaymentCreatedAt,
	}
	seen := map[string]bool{}
	for _, c := range renamed {
		if seen[c] {
			t.Errorf("Disambiguated column %s collides", c)
		}
		seen[c] = true
	}
}
