package qbo

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"strings"
	"time"
)

const (
	EntityInvoice  = "Invoice"
	EntityPayment  = "Payment"
	EntityPurchase = "Purchase"
	EntityTransfer = "Transfer"

	defaultCustomerName = "Stripe customer"
	salesItemName       = "Stripe sales"
)

// findByExternalRef looks for a record of entity dated on date whose private note
// carries the marker of externalRef. QuickBooks cannot filter on PrivateNote,
// so the rows of that day are scanned client side.
func (c *Client) findByExternalRef(ctx context.Context, entity string, date time.Time, externalRef string) (string, error) {
	q := fmt.Sprintf("select * from %s where TxnDate = %s MAXRESULTS 1000", entity, quote(txnDate(date)))
	var rows []record
	if err := c.query(ctx, entity, q, &rows); err != nil {
		return "", err
	}
	m := marker(externalRef)
	for _, row := range rows {
		if strings.Contains(row.PrivateNote, m) {
			return row.ID, nil
		}
	}
	return "", nil
}

// createOrGet creates a record only when no record for externalRef exists yet.
func (c *Client) createOrGet(ctx context.Context, entity string, date time.Time, externalRef string, build func() (interface{}, error)) (string, error) {
	id, err := c.findByExternalRef(ctx, entity, date, externalRef)
	if err != nil {
		return "", fmt.Errorf("find %s: %w", strings.ToLower(entity), err)
	}
	if id != "" {
		c.logger.Debug().Str("entity", entity).Str("external_ref", externalRef).Str("id", id).Msg("record already exists")
		return id, nil
	}

	payload, err := build()
	if err != nil {
		return "", err
	}
	id, err = c.create(ctx, entity, payload)
	if err != nil {
		return "", err
	}
	c.logger.Info().Str("entity", entity).Str("external_ref", externalRef).Str("id", id).Msg("record created")
	return id, nil
}

func (c *Client) CreateOrGetInvoice(ctx context.Context, req models.InvoiceRequest) (string, error) {
	return c.createOrGet(ctx, EntityInvoice, req.Date, req.ExternalRef, func() (interface{}, error) {
		customerID, err := c.customerID(ctx, req.CustomerName, req.Currency)
		if err != nil {
			return nil, err
		}
		itemID, err := c.itemID(ctx, req.IncomeAccountID)
		if err != nil {
			return nil, err
		}
		value := amount(req.Amount, req.Currency)
		return invoicePayload{
			CustomerRef:  ref{Value: customerID},
			CurrencyRef:  ref{Value: req.Currency},
			ExchangeRate: exchangeRate(req.ExchangeRate),
			TxnDate:      txnDate(req.Date),
			PrivateNote:  privateNote(req.Description, req.ExternalRef),
			Line: []salesLine{{
				Amount:      value,
				DetailType:  "SalesItemLineDetail",
				Description: req.Description,
				SalesItemLineDetail: salesItemDetail{
					ItemRef:    ref{Value: itemID},
					Qty:        "1",
					UnitPrice:  value,
					TaxCodeRef: taxCodeRef(req.TaxCodeID),
				},
			}},
		}, nil
	})
}

func (c *Client) CreateOrGetPayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	return c.createOrGet(ctx, EntityPayment, req.Date, req.ExternalRef, func() (interface{}, error) {
		customerID, err := c.customerID(ctx, req.CustomerName, req.Currency)
		if err != nil {
			return nil, err
		}
		value := amount(req.Amount, req.Currency)
		payload := paymentPayload{
			TotalAmt:            value,
			CustomerRef:         ref{Value: customerID},
			CurrencyRef:         ref{Value: req.Currency},
			ExchangeRate:        exchangeRate(req.ExchangeRate),
			DepositToAccountRef: ref{Value: req.DepositAccountID},
			TxnDate:             txnDate(req.Date),
			PrivateNote:         privateNote(req.Description, req.ExternalRef),
		}
		if req.InvoiceID != "" {
			payload.Line = []paymentLine{{
				Amount:    value,
				LinkedTxn: []linkedTxn{{TxnID: req.InvoiceID, TxnType: EntityInvoice}},
			}}
		}
		return payload, nil
	})
}

// CreateOrGetExpense records a Purchase paid from the payment account.
// A negative total is recorded as a credit with the line signs flipped.
func (c *Client) CreateOrGetExpense(ctx context.Context, req models.ExpenseRequest) (string, error) {
	return c.createOrGet(ctx, EntityPurchase, req.Date, req.ExternalRef, func() (interface{}, error) {
		credit := req.Total() < 0
		lines := make([]expenseLine, 0, len(req.Lines))
		for _, l := range req.Lines {
			value := l.Amount
			if credit {
				value = -value
			}
			lines = append(lines, expenseLine{
				Amount:      amount(value, req.Currency),
				DetailType:  "AccountBasedExpenseLineDetail",
				Description: l.Description,
				AccountBasedExpenseLineDetail: accountExpenseDetail{
					AccountRef: ref{Value: l.AccountID},
					TaxCodeRef: taxCodeRef(l.TaxCodeID),
				},
			})
		}

		note := req.Description
		if len(req.LinkedIDs) > 0 {
			note = strings.TrimSpace(fmt.Sprintf("%s\nLinked: %s", note, strings.Join(req.LinkedIDs, ", ")))
		}
		payload := purchasePayload{
			PaymentType:  "Cash",
			AccountRef:   ref{Value: req.PaymentAccountID},
			CurrencyRef:  ref{Value: req.Currency},
			ExchangeRate: exchangeRate(req.ExchangeRate),
			Credit:       credit,
			TxnDate:      txnDate(req.Date),
			PrivateNote:  privateNote(note, req.ExternalRef),
			Line:         lines,
		}
		if req.VendorID != "" {
			payload.EntityRef = &entityRef{Value: req.VendorID, Type: "Vendor"}
		}
		return payload, nil
	})
}

func (c *Client) CreateOrGetTransfer(ctx context.Context, req models.TransferRequest) (string, error) {
	return c.createOrGet(ctx, EntityTransfer, req.Date, req.ExternalRef, func() (interface{}, error) {
		return transferPayload{
			Amount:         amount(req.Amount, req.Currency),
			FromAccountRef: ref{Value: req.FromAccountID},
			ToAccountRef:   ref{Value: req.ToAccountID},
			CurrencyRef:    ref{Value: req.Currency},
			TxnDate:        txnDate(req.Date),
			PrivateNote:    privateNote(req.Description, req.ExternalRef),
		}, nil
	})
}

// customerID finds or creates the customer invoices are billed to. QuickBooks
// customers carry a single currency, so a name taken by a customer in another
// currency falls back to "name (CUR)".
func (c *Client) customerID(ctx context.Context, name, currency string) (string, error) {
	if name == "" {
		name = defaultCustomerName
	}
	key := "customer:" + name + ":" + currency
	if id, ok := c.cached(key); ok {
		return id, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		candidates := []string{name, fmt.Sprintf("%s (%s)", name, currency)}
		for _, displayName := range candidates {
			var rows []record
			q := fmt.Sprintf("select * from Customer where DisplayName = %s", quote(displayName))
			if err := c.query(ctx, "Customer", q, &rows); err != nil {
				return "", fmt.Errorf("find customer: %w", err)
			}
			if len(rows) == 0 {
				id, err := c.create(ctx, "Customer", map[string]interface{}{
					"DisplayName": displayName,
					"CurrencyRef": ref{Value: currency},
				})
				if err != nil {
					return "", fmt.Errorf("create customer: %w", err)
				}
				return id, nil
			}
			if rows[0].CurrencyRef == nil || strings.EqualFold(rows[0].CurrencyRef.Value, currency) {
				return rows[0].ID, nil
			}
		}
		return "", fmt.Errorf("no customer named %q in %s", name, currency)
	})
	if err != nil {
		return "", err
	}
	id := v.(string)
	c.remember(key, id)
	return id, nil
}

// itemID finds or creates the service item whose income account invoice lines post to.
func (c *Client) itemID(ctx context.Context, incomeAccountID string) (string, error) {
	key := "item:" + incomeAccountID
	if id, ok := c.cached(key); ok {
		return id, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		candidates := []string{salesItemName, fmt.Sprintf("%s (%s)", salesItemName, incomeAccountID)}
		for _, name := range candidates {
			var rows []record
			q := fmt.Sprintf("select * from Item where Name = %s", quote(name))
			if err := c.query(ctx, "Item", q, &rows); err != nil {
				return "", fmt.Errorf("find item: %w", err)
			}
			if len(rows) == 0 {
				id, err := c.create(ctx, "Item", map[string]interface{}{
					"Name":             name,
					"Type":             "Service",
					"IncomeAccountRef": ref{Value: incomeAccountID},
				})
				if err != nil {
					return "", fmt.Errorf("create item: %w", err)
				}
				return id, nil
			}
			if rows[0].IncomeRef == nil || rows[0].IncomeRef.Value == incomeAccountID {
				return rows[0].ID, nil
			}
		}
		return "", fmt.Errorf("no sales item for income account %s", incomeAccountID)
	})
	if err != nil {
		return "", err
	}
	id := v.(string)
	c.remember(key, id)
	return id, nil
}
