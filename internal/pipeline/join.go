package pipeline

import (
	"fmt"

	"github.com/dvloznov/churn-scorer/internal/schema"
	"github.com/dvloznov/churn-scorer/internal/table"
)

// MergeTables joins the three source tables into one denormalized table with
// one row per payment. Each table's id and created_at columns are renamed
// first (id -> creditor_id etc.) so nothing collides; creditors join to
// mandates on creditor_id and the result joins to payments on the compound
// (creditor_id, mandate_id) key. Inner joins only: a payment whose mandate
// carries a different creditor_id matches nothing and is dropped.
func MergeTables(creditors, mandates, payments *table.Table) (*table.Table, error) {
	if err := creditors.RequireColumns(schema.Creditor.SourceColumns()...); err != nil {
		return nil, fmt.Errorf("MergeTables: creditors: %w", err)
	}
	if err := mandates.RequireColumns(schema.Mandate.SourceColumns()...); err != nil {
		return nil, fmt.Errorf("MergeTables: mandates: %w", err)
	}
	if err := payments.RequireColumns(schema.Payment.SourceColumns()...); err != nil {
		return nil, fmt.Errorf("MergeTables: payments: %w", err)
	}

	c, err := renameAll(creditors, [][2]string{
		{schema.Creditor.ID, schema.Creditor.CreditorID},
		{schema.Creditor.CreatedAt, schema.Creditor.CreditorCreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("MergeTables: creditors: %w", err)
	}

	m, err := renameAll(mandates, [][2]string{
		{schema.Mandate.ID, schema.Mandate.MandateID},
		{schema.Mandate.CreatedAt, schema.Mandate.MandateCreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("MergeTables: mandates: %w", err)
	}

	p, err := renameAll(payments, [][2]string{
		{schema.Payment.ID, schema.Payment.PaymentID},
		{schema.Payment.CreatedAt, schema.Payment.PaymentCreatedAt},
	})
	if err != nil {
		return nil, fmt.Errorf("MergeTables: payments: %w", err)
	}

	cm, err := c.InnerJoin(m, schema.Creditor.CreditorID)
	if err != nil {
		return nil, fmt.Errorf("MergeTables: joining creditors to mandates: %w", err)
	}

	merged, err := cm.InnerJoin(p, schema.Creditor.CreditorID, schema.Mandate.MandateID)
	if err != nil {
		return nil, fmt.Errorf("MergeTables: joining to payments: %w", err)
	}

	return merged, nil
}

func renameAll(t *table.Table, renames [][2]string) (*table.Table, error) {
	out := t
	var err error
	for _, r := range renames {
		out, err = out.Rename(r[0], r[1])
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
