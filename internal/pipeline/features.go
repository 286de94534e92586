package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/churn-scorer/internal/schema"
	"github.com/dvloznov/churn-scorer/internal/table"
)

// ErrAttributeDrift reports that a creditor id carries more than one distinct
// static attribute tuple. Deduplication would silently fan out extra feature
// rows, so the run fails loudly instead.
var ErrAttributeDrift = errors.New("creditor attribute drift")

const (
	sourceAPI   = "api"
	sourceApp   = "app"
	schemeBacs  = "bacs"
	hoursPerDay = 24
)

// FeatureRow is the flat per-creditor feature vector consumed by the model.
type FeatureRow struct {
	CreditorID string

	// Payment statistics over the selected window.
	AmountSum    float64
	NumPayments  int
	ActiveAging  int // days between first and last payment, inclusive
	PctHasRef    float64
	PctSourceAPI float64
	PctSourceApp float64

	// Mandate statistics over distinct mandates, not payments.
	PctPaymentsRequireApproval float64
	PctIsBusinessCustomerType  float64
	NumMandates                int
	PctSchemeBacs              float64

	// Static creditor attributes.
	HasLogo        bool
	MerchantType   string
	RefundsEnabled bool
}

// Features encodes the row as the named numeric vector the model scores:
// booleans as 0/1 and merchant_type one-hot under "merchant_type=<value>".
// The creditor id is deliberately absent.
func (f FeatureRow) Features() map[string]float64 {
	feats := map[string]float64{
		"amount_sum":                    f.AmountSum,
		"num_payments":                  float64(f.NumPayments),
		"active_aging":                  float64(f.ActiveAging),
		"pct_has_ref":                   f.PctHasRef,
		"pct_source_api":                f.PctSourceAPI,
		"pct_source_app":                f.PctSourceApp,
		"pct_payments_require_approval": f.PctPaymentsRequireApproval,
		"pct_is_business_customer_type": f.PctIsBusinessCustomerType,
		"num_mandates":                  float64(f.NumMandates),
		"pct_scheme_bacs":               f.PctSchemeBacs,
		"has_logo":                      boolToFloat(f.HasLogo),
		"refunds_enabled":               boolToFloat(f.RefundsEnabled),
	}
	feats["merchant_type="+f.MerchantType] = 1
	return feats
}

// paymentAccum collects payment-level statistics for one creditor.
type paymentAccum struct {
	amountSum  float64
	count      int
	numHasRef  int
	numAPI     int
	numApp     int
	minCreated time.Time
	maxCreated time.Time
}

// mandateAccum collects distinct-mandate statistics for one creditor.
type mandateAccum struct {
	seen        map[string]struct{}
	numApproval int
	numBusiness int
	numBacs     int
}

// creditorAttrs is one static attribute tuple.
type creditorAttrs struct {
	hasLogo        bool
	merchantType   string
	refundsEnabled bool
}

// AggregateFeatures groups the selected rows by creditor id and derives the
// feature table: payment statistics over all rows, mandate statistics over
// distinct mandate tuples, and the deduplicated static creditor attributes.
// Output order follows first appearance in the input, one row per creditor.
func AggregateFeatures(selected *table.Table) ([]FeatureRow, error) {
	cCols, mCols, pCols := schema.Creditor, schema.Mandate, schema.Payment

	required := []string{
		cCols.CreditorID, cCols.HasLogo, cCols.MerchantType, cCols.RefundsEnabled,
		mCols.MandateID, mCols.PaymentsRequireApproval, mCols.IsBusinessCustomerType, mCols.Scheme,
		pCols.AmountGBP, pCols.PaymentCreatedAt, pCols.HasReference, pCols.Source,
	}
	if err := selected.RequireColumns(required...); err != nil {
		return nil, fmt.Errorf("AggregateFeatures: %w", err)
	}

	var order []string
	payments := make(map[string]*paymentAccum)
	mandates := make(map[string]*mandateAccum)
	attrs := make(map[string]creditorAttrs)

	for i := 0; i < selected.Len(); i++ {
		row := selected.Row(i)
		id := idString(row[cCols.CreditorID])

		amount, err := table.AsFloat(row[pCols.AmountGBP])
		if err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %s: %w", i, pCols.AmountGBP, err)
		}
		created, err := table.AsTime(row[pCols.PaymentCreatedAt])
		if err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %s: %w", i, pCols.PaymentCreatedAt, err)
		}
		hasRef, err := table.AsBool(row[pCols.HasReference])
		if err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %s: %w", i, pCols.HasReference, err)
		}
		source, err := table.AsString(row[pCols.Source])
		if err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %s: %w", i, pCols.Source, err)
		}

		pa, ok := payments[id]
		if !ok {
			pa = &paymentAccum{minCreated: created, maxCreated: created}
			payments[id] = pa
			order = append(order, id)
		}
		pa.amountSum += amount
		pa.count++
		if hasRef {
			pa.numHasRef++
		}
		switch source {
		case sourceAPI:
			pa.numAPI++
		case sourceApp:
			pa.numApp++
		}
		if created.Before(pa.minCreated) {
			pa.minCreated = created
		}
		if created.After(pa.maxCreated) {
			pa.maxCreated = created
		}

		if err := accumulateMandate(mandates, id, row); err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %w", i, err)
		}

		if err := recordAttrs(attrs, id, row); err != nil {
			return nil, fmt.Errorf("AggregateFeatures: row %d: %w", i, err)
		}
	}

	out := make([]FeatureRow, 0, len(order))
	for _, id := range order {
		pa := payments[id]
		ma := mandates[id]
		at := attrs[id]

		n := float64(pa.count)
		m := float64(len(ma.seen))

		out = append(out, FeatureRow{
			CreditorID: id,

			AmountSum:   pa.amountSum,
			NumPayments: pa.count,
			// Whole days between first and last payment, floored at 1 so a
			// single-payment creditor still ages one day.
			ActiveAging:  int(pa.maxCreated.Sub(pa.minCreated).Hours()/hoursPerDay) + 1,
			PctHasRef:    float64(pa.numHasRef) / n,
			PctSourceAPI: float64(pa.numAPI) / n,
			PctSourceApp: float64(pa.numApp) / n,

			PctPaymentsRequireApproval: float64(ma.numApproval) / m,
			PctIsBusinessCustomerType:  float64(ma.numBusiness) / m,
			NumMandates:                len(ma.seen),
			PctSchemeBacs:              float64(ma.numBacs) / m,

			HasLogo:        at.hasLogo,
			MerchantType:   at.merchantType,
			RefundsEnabled: at.refundsEnabled,
		})
	}

	return out, nil
}

// accumulateMandate folds a row's mandate tuple into the per-creditor
// accumulator, counting each distinct tuple once regardless of how many
// payments reference it.
func accumulateMandate(mandates map[string]*mandateAccum, id string, row table.Row) error {
	mCols := schema.Mandate

	mandateID := idString(row[mCols.MandateID])
	approval, err := table.AsBool(row[mCols.PaymentsRequireApproval])
	if err != nil {
		return fmt.Errorf("%s: %w", mCols.PaymentsRequireApproval, err)
	}
	business, err := table.AsBool(row[mCols.IsBusinessCustomerType])
	if err != nil {
		return fmt.Errorf("%s: %w", mCols.IsBusinessCustomerType, err)
	}
	scheme, err := table.AsString(row[mCols.Scheme])
	if err != nil {
		return fmt.Errorf("%s: %w", mCols.Scheme, err)
	}

	ma, ok := mandates[id]
	if !ok {
		ma = &mandateAccum{seen: make(map[string]struct{})}
		mandates[id] = ma
	}

	key := fmt.Sprintf("%s\x1f%t\x1f%t\x1f%s", mandateID, approval, business, scheme)
	if _, dup := ma.seen[key]; dup {
		return nil
	}
	ma.seen[key] = struct{}{}

	if approval {
		ma.numApproval++
	}
	if business {
		ma.numBusiness++
	}
	if scheme == schemeBacs {
		ma.numBacs++
	}
	return nil
}

// recordAttrs captures the creditor's static attributes and fails with
// ErrAttributeDrift if a later row disagrees with the first.
func recordAttrs(attrs map[string]creditorAttrs, id string, row table.Row) error {
	cCols := schema.Creditor

	hasLogo, err := table.AsBool(row[cCols.HasLogo])
	if err != nil {
		return fmt.Errorf("%s: %w", cCols.HasLogo, err)
	}
	merchantType, err := table.AsString(row[cCols.MerchantType])
	if err != nil {
		return fmt.Errorf("%s: %w", cCols.MerchantType, err)
	}
	refunds, err := table.AsBool(row[cCols.RefundsEnabled])
	if err != nil {
		return fmt.Errorf("%s: %w", cCols.RefundsEnabled, err)
	}

	got := creditorAttrs{hasLogo: hasLogo, merchantType: merchantType, refundsEnabled: refunds}
	if prev, ok := attrs[id]; ok {
		if prev != got {
			return fmt.Errorf("%w: creditor %s has conflicting attribute tuples", ErrAttributeDrift, id)
		}
		return nil
	}
	attrs[id] = got
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// idString renders a warehouse identifier cell for grouping and output.
// Warehouse ids are strings, but an integer-keyed snapshot still groups and
// emits consistently.
func idString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
