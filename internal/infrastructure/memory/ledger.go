package memory

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"sync"
)

const (
	EntityInvoice  = "Invoice"
	EntityPayment  = "Payment"
	EntityExpense  = "Purchase"
	EntityTransfer = "Transfer"
)

// LedgerCall records one CreateOrGet request.
type LedgerCall struct {
	Entity      string
	ExternalRef string
	Request     interface{}
	ID          string
	Created     bool
	Err         error
}

// Ledger is a target ledger kept in memory. It backs the dry-run driver and tests.
// Hook, when set, runs before every CreateOrGet call outside of the ledger lock and
// its error is returned instead of touching the ledger.
type Ledger struct {
	mu       sync.Mutex
	seq      int
	records  map[string]map[string]string
	calls    []LedgerCall
	Accounts []models.LedgerRef
	Vendors  []models.LedgerRef
	TaxCodes []models.LedgerRef
	Hook     func(ctx context.Context, entity, externalRef string) error
}

func NewLedger() *Ledger {
	return &Ledger{records: make(map[string]map[string]string)}
}

// NewDemoLedger returns a ledger with a small chart of accounts for dry runs.
func NewDemoLedger() *Ledger {
	l := NewLedger()
	l.Accounts = []models.LedgerRef{
		{ID: "1", Name: "Stripe clearing"},
		{ID: "2", Name: "Checking"},
		{ID: "3", Name: "Stripe fees"},
		{ID: "4", Name: "Sales"},
	}
	l.Vendors = []models.LedgerRef{{ID: "1", Name: "Stripe"}}
	return l
}

func (l *Ledger) CreateOrGetInvoice(ctx context.Context, req models.InvoiceRequest) (string, error) {
	return l.createOrGet(ctx, EntityInvoice, req.ExternalRef, req)
}

func (l *Ledger) CreateOrGetPayment(ctx context.Context, req models.PaymentRequest) (string, error) {
	return l.createOrGet(ctx, EntityPayment, req.ExternalRef, req)
}

func (l *Ledger) CreateOrGetExpense(ctx context.Context, req models.ExpenseRequest) (string, error) {
	return l.createOrGet(ctx, EntityExpense, req.ExternalRef, req)
}

func (l *Ledger) CreateOrGetTransfer(ctx context.Context, req models.TransferRequest) (string, error) {
	return l.createOrGet(ctx, EntityTransfer, req.ExternalRef, req)
}

func (l *Ledger) ListAccounts(ctx context.Context) ([]models.LedgerRef, error) {
	return l.list(ctx, func() []models.LedgerRef { return l.Accounts })
}

func (l *Ledger) ListVendors(ctx context.Context) ([]models.LedgerRef, error) {
	return l.list(ctx, func() []models.LedgerRef { return l.Vendors })
}

func (l *Ledger) ListTaxCodes(ctx context.Context) ([]models.LedgerRef, error) {
	return l.list(ctx, func() []models.LedgerRef { return l.TaxCodes })
}

// Calls returns the recorded calls for entity, or all calls when entity is empty.
func (l *Ledger) Calls(entity string) []LedgerCall {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LedgerCall, 0, len(l.calls))
	for _, c := range l.calls {
		if entity == "" || c.Entity == entity {
			out = append(out, c)
		}
	}
	return out
}

// Records returns how many distinct records of entity exist.
func (l *Ledger) Records(entity string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records[entity])
}

func (l *Ledger) createOrGet(ctx context.Context, entity, externalRef string, req interface{}) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if l.Hook != nil {
		if err := l.Hook(ctx, entity, externalRef); err != nil {
			l.record(LedgerCall{Entity: entity, ExternalRef: externalRef, Request: req, Err: err})
			return "", err
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	byRef, ok := l.records[entity]
	if !ok {
		byRef = make(map[string]string)
		l.records[entity] = byRef
	}
	if id, ok := byRef[externalRef]; ok {
		l.calls = append(l.calls, LedgerCall{Entity: entity, ExternalRef: externalRef, Request: req, ID: id})
		return id, nil
	}

	l.seq++
	id := fmt.Sprintf("%s-%d", entity, l.seq)
	byRef[externalRef] = id
	l.calls = append(l.calls, LedgerCall{Entity: entity, ExternalRef: externalRef, Request: req, ID: id, Created: true})
	return id, nil
}

func (l *Ledger) record(call LedgerCall) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *Ledger) list(ctx context.Context, get func() []models.LedgerRef) ([]models.LedgerRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.LedgerRef(nil), get()...), nil
}
