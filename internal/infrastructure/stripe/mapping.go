package stripe

import (
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/shopspring/decimal"
	stripeapi "github.com/stripe/stripe-go/v82"
	"strings"
)

var typeMapping = map[string]models.TransactionType{
	"charge":         models.TransactionTypeCharge,
	"payment":        models.TransactionTypeCharge,
	"refund":         models.TransactionTypeRefund,
	"payment_refund": models.TransactionTypeRefund,
	"payout":         models.TransactionTypePayout,
	"transfer":       models.TransactionTypeTransfer,
	"adjustment":     models.TransactionTypeAdjustment,
	"stripe_fee":     models.TransactionTypeAdjustment,
	"stripe_fx_fee":  models.TransactionTypeAdjustment,
	"tax_fee":        models.TransactionTypeAdjustment,
}

// FromBalanceTransaction maps a balance transaction with an expanded source.
// It reports false for types that have no target ledger counterpart.
func FromBalanceTransaction(bt *stripeapi.BalanceTransaction) (models.Transaction, bool) {
	if bt == nil {
		return models.Transaction{}, false
	}
	txType, ok := typeMapping[string(bt.Type)]
	if !ok {
		return models.Transaction{}, false
	}

	tx := models.Transaction{
		ID:           bt.ID,
		Type:         txType,
		Amount:       bt.Amount,
		Fee:          bt.Fee,
		Currency:     strings.ToUpper(string(bt.Currency)),
		Created:      bt.Created,
		Description:  bt.Description,
		Status:       models.StatusPending,
		ExchangeRate: decimal.NewFromInt(1),
	}
	if bt.ExchangeRate != 0 {
		tx.ExchangeRate = decimal.NewFromFloat(bt.ExchangeRate)
	}

	src := bt.Source
	if src == nil {
		return tx, true
	}
	tx.SourceID = src.ID

	switch txType {
	case models.TransactionTypeCharge:
		if src.Charge != nil {
			applyCustomer(&tx, src.Charge.Customer)
		}
	case models.TransactionTypeRefund:
		if src.Refund != nil && src.Refund.Charge != nil {
			tx.ChargeID = src.Refund.Charge.ID
			applyCustomer(&tx, src.Refund.Charge.Customer)
		}
	}
	return tx, true
}

func applyCustomer(tx *models.Transaction, customer *stripeapi.Customer) {
	if customer == nil {
		return
	}
	tx.CustomerName = customer.Name
	tx.TaxExempt = string(customer.TaxExempt) == "exempt"
}
