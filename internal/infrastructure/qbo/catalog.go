package qbo

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
)

func (c *Client) ListAccounts(ctx context.Context) ([]models.LedgerRef, error) {
	return c.list(ctx, "Account", "select * from Account where Active = true MAXRESULTS 1000")
}

func (c *Client) ListVendors(ctx context.Context) ([]models.LedgerRef, error) {
	return c.list(ctx, "Vendor", "select * from Vendor where Active = true MAXRESULTS 1000")
}

func (c *Client) ListTaxCodes(ctx context.Context) ([]models.LedgerRef, error) {
	return c.list(ctx, "TaxCode", "select * from TaxCode MAXRESULTS 1000")
}

func (c *Client) list(ctx context.Context, entity, q string) ([]models.LedgerRef, error) {
	var rows []record
	if err := c.query(ctx, entity, q, &rows); err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	refs := make([]models.LedgerRef, 0, len(rows))
	for _, row := range rows {
		name := row.Name
		if name == "" {
			name = row.DisplayName
		}
		refs = append(refs, models.LedgerRef{ID: row.ID, Name: name})
	}
	return refs, nil
}
