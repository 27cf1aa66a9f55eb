package models

import (
	"github.com/shopspring/decimal"
	"strings"
	"time"
)

// LedgerRef is an entry of a target ledger list (account, vendor or tax code).
type LedgerRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type InvoiceRequest struct {
	ExternalRef     string
	Date            time.Time
	Currency        string
	ExchangeRate    decimal.Decimal
	Amount          int64
	IncomeAccountID string
	TaxCodeID       string
	CustomerName    string
	Description     string
}

type PaymentRequest struct {
	ExternalRef      string
	Date             time.Time
	Currency         string
	ExchangeRate     decimal.Decimal
	Amount           int64
	InvoiceID        string
	DepositAccountID string
	CustomerName     string
	Description      string
}

type ExpenseLine struct {
	AccountID   string
	Amount      int64
	TaxCodeID   string
	Description string
}

// ExpenseRequest is paid from PaymentAccountID. A negative total is a credit back into it.
type ExpenseRequest struct {
	ExternalRef      string
	Date             time.Time
	Currency         string
	ExchangeRate     decimal.Decimal
	PaymentAccountID string
	VendorID         string
	Lines            []ExpenseLine
	LinkedIDs        []string
	Description      string
}

func (r ExpenseRequest) Total() int64 {
	var total int64
	for _, l := range r.Lines {
		total += l.Amount
	}
	return total
}

type TransferRequest struct {
	ExternalRef   string
	Date          time.Time
	Currency      string
	Amount        int64
	FromAccountID string
	ToAccountID   string
	Description   string
}

var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {}, "CLP": {}, "DJF": {}, "GNF": {}, "JPY": {}, "KMF": {}, "KRW": {}, "MGA": {},
	"PYG": {}, "RWF": {}, "UGX": {}, "VND": {}, "VUV": {}, "XAF": {}, "XOF": {}, "XPF": {},
}

// CurrencyExponent is the number of minor unit digits for an ISO 4217 code.
func CurrencyExponent(currency string) int32 {
	if _, ok := zeroDecimalCurrencies[strings.ToUpper(currency)]; ok {
		return 0
	}
	return 2
}

// MajorUnits converts an amount in minor units to major units, e.g. 1050 USD to 10.50.
func MajorUnits(amount int64, currency string) decimal.Decimal {
	return decimal.New(amount, -CurrencyExponent(currency))
}
