package gateways

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"time"
)

// TargetLedger creates accounting records. Every call is keyed by the request's
// ExternalRef and returns the id of an existing record instead of creating a second one.
type TargetLedger interface {
	CreateOrGetInvoice(ctx context.Context, req models.InvoiceRequest) (string, error)
	CreateOrGetPayment(ctx context.Context, req models.PaymentRequest) (string, error)
	CreateOrGetExpense(ctx context.Context, req models.ExpenseRequest) (string, error)
	CreateOrGetTransfer(ctx context.Context, req models.TransferRequest) (string, error)
}

// Catalog lists the target ledger entities settings may point at.
type Catalog interface {
	ListAccounts(ctx context.Context) ([]models.LedgerRef, error)
	ListVendors(ctx context.Context) ([]models.LedgerRef, error)
	ListTaxCodes(ctx context.Context) ([]models.LedgerRef, error)
}

// SourceLedger reads balance activity from the payments provider.
type SourceLedger interface {
	ListTransactions(ctx context.Context, from, to time.Time) ([]models.Transaction, error)
}

type ProgressPublisher interface {
	Publish(ctx context.Context, msg models.ProgressMessage) error
}
