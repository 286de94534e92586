// Package schema is the registry of warehouse column names used by the
// churn scoring pipeline. Every other component refers to columns through
// these structs rather than by literal string, so a schema change is a
// one-file edit. A mismatch between this registry and the warehouse is a
// configuration error, not something the pipeline recovers from.
package schema

// CreditorColumns names the columns of the creditors source table, plus the
// disambiguated names the joiner assigns before merging.
type CreditorColumns struct {
	ID                string
	CreditorID        string
	CreatedAt         string
	CreditorCreatedAt string
	HasLogo           string
	MerchantType      string
	RefundsEnabled    string
}

// MandateColumns names the columns of the mandates source table.
type MandateColumns struct {
	ID                      string
	MandateID               string
	CreatedAt               string
	MandateCreatedAt        string
	CreditorID              string
	PaymentsRequireApproval string
	IsBusinessCustomerType  string
	Scheme                  string
}

// PaymentColumns names the columns of the payments source table.
type PaymentColumns struct {
	ID               string
	PaymentID        string
	CreatedAt        string
	PaymentCreatedAt string
	CreditorID       string
	MandateID        string
	AmountGBP        string
	HasReference     string
	HasDescription   string
	Source           string
}

var Creditor = CreditorColumns{
	ID:                "id",
	CreditorID:        "creditor_id",
	CreatedAt:         "created_at",
	CreditorCreatedAt: "creditor_created_at",
	HasLogo:           "has_logo",
	MerchantType:      "merchant_type",
	RefundsEnabled:    "refunds_enabled",
}

var Mandate = MandateColumns{
	ID:                      "id",
	MandateID:               "mandate_id",
	CreatedAt:               "created_at",
	MandateCreatedAt:        "mandate_created_at",
	CreditorID:              "creditor_id",
	PaymentsRequireApproval: "payments_require_approval",
	IsBusinessCustomerType:  "is_business_customer_type",
	Scheme:                  "scheme",
}

var Payment = PaymentColumns{
	ID:               "id",
	PaymentID:        "payment_id",
	CreatedAt:        "created_at",
	PaymentCreatedAt: "payment_created_at",
	CreditorID:       "creditor_id",
	MandateID:        "mandate_id",
	AmountGBP:        "amount_gbp",
	HasReference:     "has_reference",
	HasDescription:   "has_description",
	Source:           "source",
}

// SourceColumns lists the columns expected on the creditors table as loaded from
// the warehouse, before any rename.
func (c CreditorColumns) SourceColumns() []string {
	return []string{c.ID, c.CreatedAt, c.HasLogo, c.MerchantType, c.RefundsEnabled}
}

// SourceColumns lists the columns expected on the mandates table as loaded.
func (m MandateColumns) SourceColumns() []string {
	return []string{m.ID, m.CreditorID, m.CreatedAt, m.PaymentsRequireApproval, m.IsBusinessCustomerType, m.Scheme}
}

// SourceColumns lists the columns expected on the payments table as loaded.
func (p PaymentColumns) SourceColumns() []string {
	return []string{p.ID, p.CreditorID, p.MandateID, p.CreatedAt, p.AmountGBP, p.HasReference, p.HasDescription, p.Source}
}
