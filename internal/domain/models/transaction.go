package models

import (
	"github.com/shopspring/decimal"
	"time"
)

type TransactionType string

const (
	TransactionTypeCharge     TransactionType = "charge"
	TransactionTypeRefund     TransactionType = "refund"
	TransactionTypePayout     TransactionType = "payout"
	TransactionTypeTransfer   TransactionType = "transfer"
	TransactionTypeAdjustment TransactionType = "adjustment"
)

func (t TransactionType) Valid() bool {
	switch t {
	case TransactionTypeCharge, TransactionTypeRefund, TransactionTypePayout,
		TransactionTypeTransfer, TransactionTypeAdjustment:
		return true
	}
	return false
}

type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSuccess SyncStatus = "success"
	StatusFailed  SyncStatus = "failed"
)

func (s SyncStatus) Valid() bool {
	switch s {
	case StatusPending, StatusSyncing, StatusSuccess, StatusFailed:
		return true
	}
	return false
}

// Claimable reports whether a sync attempt may start from s without a lease check.
func (s SyncStatus) Claimable() bool {
	return s == StatusPending || s == StatusFailed
}

// Linkage holds the ids of records created in the target ledger. Empty means not created.
type Linkage struct {
	InvoiceID  string `json:"invoice_id" db:"invoice_id"`
	PaymentID  string `json:"payment_id" db:"payment_id"`
	ExpenseID  string `json:"expense_id" db:"expense_id"`
	TransferID string `json:"transfer_id" db:"transfer_id"`
}

// Merge returns l with empty ids filled in from other. Ids already set are kept.
func (l Linkage) Merge(other Linkage) Linkage {
	if l.InvoiceID == "" {
		l.InvoiceID = other.InvoiceID
	}
	if l.PaymentID == "" {
		l.PaymentID = other.PaymentID
	}
	if l.ExpenseID == "" {
		l.ExpenseID = other.ExpenseID
	}
	if l.TransferID == "" {
		l.TransferID = other.TransferID
	}
	return l
}

func (l Linkage) IsZero() bool {
	return l == Linkage{}
}

// Complete reports whether every record a transaction of type t with the given fee needs exists.
func (l Linkage) Complete(t TransactionType, fee int64) bool {
	switch t {
	case TransactionTypeCharge:
		return l.InvoiceID != "" && l.PaymentID != "" && (fee == 0 || l.ExpenseID != "")
	case TransactionTypeRefund, TransactionTypeAdjustment:
		return l.ExpenseID != ""
	case TransactionTypePayout, TransactionTypeTransfer:
		return l.TransferID != ""
	}
	return false
}

type Transaction struct {
	ID            string          `json:"id" db:"id"`
	Type          TransactionType `json:"type" db:"type"`
	Amount        int64           `json:"amount" db:"amount"`
	Fee           int64           `json:"fee" db:"fee"`
	Currency      string          `json:"currency" db:"currency"`
	Created       int64           `json:"created" db:"created"`
	Description   string          `json:"description" db:"description"`
	FailureReason string          `json:"failure_reason" db:"failure_reason"`
	Status        SyncStatus      `json:"status" db:"status"`
	Linkage
	SourceID     string          `json:"source_id" db:"source_id"`
	ChargeID     string          `json:"charge_id,omitempty" db:"charge_id"`
	CustomerName string          `json:"customer_name,omitempty" db:"customer_name"`
	TaxExempt    bool            `json:"tax_exempt" db:"tax_exempt"`
	ExchangeRate decimal.Decimal `json:"exchange_rate" db:"exchange_rate"`
	UpdatedAt    time.Time       `json:"updated_at" db:"updated_at"`
}

// Net is the movement of the clearing account.
func (t *Transaction) Net() int64 {
	return t.Amount - t.Fee
}

func (t *Transaction) CreatedAt() time.Time {
	return time.Unix(t.Created, 0).UTC()
}

// Outcome is the terminal result of one sync attempt.
type Outcome struct {
	Status        SyncStatus
	Linkage       Linkage
	FailureReason string
}

func Succeeded(linkage Linkage) Outcome {
	return Outcome{Status: StatusSuccess, Linkage: linkage}
}

func Failed(reason string, linkage Linkage) Outcome {
	return Outcome{Status: StatusFailed, Linkage: linkage, FailureReason: reason}
}

type TransactionFilter struct {
	Status SyncStatus
	IDs    []string
}
