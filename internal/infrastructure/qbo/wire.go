package qbo

import (
	"encoding/json"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/shopspring/decimal"
	"time"
)

const dateLayout = "2006-01-02"

type ref struct {
	Value string `json:"value"`
	Name  string `json:"name,omitempty"`
}

type entityRef struct {
	Value string `json:"value"`
	Type  string `json:"type,omitempty"`
}

type record struct {
	ID          string `json:"Id"`
	Name        string `json:"Name"`
	DisplayName string `json:"DisplayName"`
	PrivateNote string `json:"PrivateNote"`
	CurrencyRef *ref   `json:"CurrencyRef"`
	IncomeRef   *ref   `json:"IncomeAccountRef"`
}

type linkedTxn struct {
	TxnID   string `json:"TxnId"`
	TxnType string `json:"TxnType"`
}

type salesItemDetail struct {
	ItemRef    ref         `json:"ItemRef"`
	Qty        json.Number `json:"Qty"`
	UnitPrice  json.Number `json:"UnitPrice"`
	TaxCodeRef *ref        `json:"TaxCodeRef,omitempty"`
}

type salesLine struct {
	Amount              json.Number     `json:"Amount"`
	DetailType          string          `json:"DetailType"`
	Description         string          `json:"Description,omitempty"`
	SalesItemLineDetail salesItemDetail `json:"SalesItemLineDetail"`
}

type invoicePayload struct {
	CustomerRef  ref         `json:"CustomerRef"`
	CurrencyRef  ref         `json:"CurrencyRef"`
	ExchangeRate json.Number `json:"ExchangeRate,omitempty"`
	TxnDate      string      `json:"TxnDate"`
	PrivateNote  string      `json:"PrivateNote"`
	Line         []salesLine `json:"Line"`
}

type paymentLine struct {
	Amount    json.Number `json:"Amount"`
	LinkedTxn []linkedTxn `json:"LinkedTxn"`
}

type paymentPayload struct {
	TotalAmt            json.Number   `json:"TotalAmt"`
	CustomerRef         ref           `json:"CustomerRef"`
	CurrencyRef         ref           `json:"CurrencyRef"`
	ExchangeRate        json.Number   `json:"ExchangeRate,omitempty"`
	DepositToAccountRef ref           `json:"DepositToAccountRef"`
	TxnDate             string        `json:"TxnDate"`
	PrivateNote         string        `json:"PrivateNote"`
	Line                []paymentLine `json:"Line,omitempty"`
}

type accountExpenseDetail struct {
	AccountRef ref  `json:"AccountRef"`
	TaxCodeRef *ref `json:"TaxCodeRef,omitempty"`
}

type expenseLine struct {
	Amount                        json.Number          `json:"Amount"`
	DetailType                    string               `json:"DetailType"`
	Description                   string               `json:"Description,omitempty"`
	AccountBasedExpenseLineDetail accountExpenseDetail `json:"AccountBasedExpenseLineDetail"`
}

type purchasePayload struct {
	PaymentType  string        `json:"PaymentType"`
	AccountRef   ref           `json:"AccountRef"`
	EntityRef    *entityRef    `json:"EntityRef,omitempty"`
	CurrencyRef  ref           `json:"CurrencyRef"`
	ExchangeRate json.Number   `json:"ExchangeRate,omitempty"`
	Credit       bool          `json:"Credit,omitempty"`
	TxnDate      string        `json:"TxnDate"`
	PrivateNote  string        `json:"PrivateNote"`
	Line         []expenseLine `json:"Line"`
}

type transferPayload struct {
	Amount         json.Number `json:"Amount"`
	FromAccountRef ref         `json:"FromAccountRef"`
	ToAccountRef   ref         `json:"ToAccountRef"`
	CurrencyRef    ref         `json:"CurrencyRef"`
	TxnDate        string      `json:"TxnDate"`
	PrivateNote    string      `json:"PrivateNote"`
}

// amount renders minor units as a fixed-point major unit number.
func amount(minor int64, currency string) json.Number {
	return json.Number(models.MajorUnits(minor, currency).StringFixed(models.CurrencyExponent(currency)))
}

func exchangeRate(rate decimal.Decimal) json.Number {
	if rate.IsZero() {
		return ""
	}
	return json.Number(rate.String())
}

func txnDate(t time.Time) string {
	return t.UTC().Format(dateLayout)
}

// privateNote renders the description followed by the marker the duplicate check looks for.
func privateNote(description, externalRef string) string {
	if description == "" {
		return marker(externalRef)
	}
	return description + "\n" + marker(externalRef)
}

func marker(externalRef string) string {
	return "[stripe2qbo:" + externalRef + "]"
}

func taxCodeRef(id string) *ref {
	if id == "" {
		return nil
	}
	return &ref{Value: id}
}
