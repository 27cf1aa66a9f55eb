package interactor

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/internal/infrastructure/memory"
	"github.com/mufasadev/stripe2qbo/pkg/util/repeat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

var testKey = models.ConnectionKey{StripeAccountID: "acct_1", RealmID: "realm-1"}

var testSettings = models.Settings{
	ClearingAccountID: "1",
	PayoutAccountID:   "2",
	VendorID:          "1",
	FeeAccountID:      "3",
	IncomeAccountID:   "4",
	DefaultTaxCodeID:  "TAX",
	ExemptTaxCodeID:   "NON",
}

var created = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC).Unix()

type recorder struct {
	mu   sync.Mutex
	msgs []models.ProgressMessage
}

func (r *recorder) Publish(_ context.Context, msg models.ProgressMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) statuses(jobID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0)
	for _, m := range r.msgs {
		if m.JobID == jobID && m.Status != "" {
			out = append(out, m.Status)
		}
	}
	return out
}

func (r *recorder) transactionStatuses(id string) []models.SyncStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.SyncStatus, 0)
	for _, m := range r.msgs {
		if m.Transaction != nil && m.Transaction.ID == id {
			out = append(out, m.Transaction.Status)
		}
	}
	return out
}

type harness struct {
	store    *memory.TransactionRepository
	ledger   *memory.Ledger
	settings *memory.SettingsRepository
	progress *recorder
	engine   *SyncEngine
}

func newHarness(t *testing.T, workers int) *harness {
	t.Helper()
	h := &harness{
		store:    memory.NewTransactionRepository(time.Minute),
		ledger:   memory.NewDemoLedger(),
		settings: memory.NewSettingsRepository(),
		progress: &recorder{},
	}
	require.NoError(t, h.settings.Save(context.Background(), testKey, &testSettings))
	h.engine = h.newEngine(workers)
	return h
}

// newEngine builds an engine sharing the harness store and ledger, as a second process would.
func (h *harness) newEngine(workers int) *SyncEngine {
	return h.engineWith(h.store, NewMappingResolver(h.settings, h.ledger, testKey, 0), h.ledger, workers)
}

func (h *harness) engineWith(store repositories.TransactionRepository, resolver SettingsResolver, ledger gateways.TargetLedger, workers int) *SyncEngine {
	observed := NewObservedTransactionRepository(store, h.progress)
	return NewSyncEngine(observed, resolver, ledger, h.progress, SyncOptions{
		Workers:     workers,
		Retry:       repeat.Policy{Attempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond},
		CallTimeout: time.Second,
	})
}

func (h *harness) add(t *testing.T, txs ...models.Transaction) {
	t.Helper()
	for i := range txs {
		if txs[i].Currency == "" {
			txs[i].Currency = "USD"
		}
		if txs[i].Created == 0 {
			txs[i].Created = created
		}
		_, err := h.store.UpsertImported(context.Background(), &txs[i])
		require.NoError(t, err)
	}
}

func chargeTx(id string, amount, fee int64) models.Transaction {
	return models.Transaction{
		ID:           id,
		Type:         models.TransactionTypeCharge,
		Amount:       amount,
		Fee:          fee,
		SourceID:     "ch_" + id,
		CustomerName: "Ada",
	}
}

func TestSyncEngine_ChargeWithFee(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))

	result := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.False(t, result.AlreadySyncing)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.NotEmpty(t, result.Transaction.InvoiceID)
	assert.NotEmpty(t, result.Transaction.PaymentID)
	assert.NotEmpty(t, result.Transaction.ExpenseID)
	assert.Empty(t, result.Transaction.TransferID)

	invoices := h.ledger.Calls(memory.EntityInvoice)
	require.Len(t, invoices, 1)
	invoice := invoices[0].Request.(models.InvoiceRequest)
	assert.Equal(t, int64(100000), invoice.Amount)
	assert.Equal(t, "4", invoice.IncomeAccountID)
	assert.Equal(t, "TAX", invoice.TaxCodeID)
	assert.Equal(t, "Ada", invoice.CustomerName)
	assert.Equal(t, time.Unix(created, 0).UTC(), invoice.Date)

	payments := h.ledger.Calls(memory.EntityPayment)
	require.Len(t, payments, 1)
	payment := payments[0].Request.(models.PaymentRequest)
	assert.Equal(t, int64(97000), payment.Amount)
	assert.Equal(t, "1", payment.DepositAccountID)
	assert.Equal(t, result.Transaction.InvoiceID, payment.InvoiceID)

	expenses := h.ledger.Calls(memory.EntityExpense)
	require.Len(t, expenses, 1)
	expense := expenses[0].Request.(models.ExpenseRequest)
	assert.Equal(t, "1", expense.PaymentAccountID)
	assert.Equal(t, "1", expense.VendorID)
	assert.Equal(t, int64(3000), expense.Total())
	assert.Equal(t, "3", expense.Lines[0].AccountID)
	assert.Equal(t, []string{result.Transaction.InvoiceID}, expense.LinkedIDs)

	assert.Equal(t, []models.SyncStatus{models.StatusSyncing, models.StatusSuccess}, h.progress.transactionStatuses("txn_1"))
}

func TestSyncEngine_ChargeWithoutFeeSkipsExpense(t *testing.T) {
	h := newHarness(t, 1)
	tx := chargeTx("txn_1", 5000, 0)
	tx.TaxExempt = true
	h.add(t, tx)

	result := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.Empty(t, result.Transaction.ExpenseID)
	assert.Empty(t, h.ledger.Calls(memory.EntityExpense))
	assert.Equal(t, "NON", h.ledger.Calls(memory.EntityInvoice)[0].Request.(models.InvoiceRequest).TaxCodeID)
}

func TestSyncEngine_SyncOneIsIdempotent(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))

	first := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, first.Err)
	second := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, second.Err)

	assert.True(t, second.AlreadyDone)
	assert.Equal(t, first.Transaction.Linkage, second.Transaction.Linkage)
	assert.Len(t, h.ledger.Calls(""), 3)
}

func TestSyncEngine_ConcurrentCallersShareOneAttempt(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))

	n := 20
	results := make([]SyncResult, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()
			results[i] = h.engine.SyncOne(context.Background(), "txn_1")
		}(i)
	}
	wg.Wait()

	fresh := 0
	for _, r := range results {
		require.NoError(t, r.Err)
		if !r.AlreadySyncing && !r.AlreadyDone {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, h.ledger.Records(memory.EntityInvoice))
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 1)
}

func TestSyncEngine_AtMostOneAttemptAcrossEngines(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))
	other := h.newEngine(1)

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		if entity == memory.EntityInvoice {
			once.Do(func() { close(entered) })
			<-release
		}
		return nil
	}

	done := make(chan SyncResult)
	go func() {
		done <- h.engine.SyncOne(context.Background(), "txn_1")
	}()
	<-entered

	busy := other.SyncOne(context.Background(), "txn_1")
	require.NoError(t, busy.Err)
	assert.True(t, busy.AlreadySyncing)
	assert.Equal(t, models.StatusSyncing, busy.Transaction.Status)

	close(release)
	result := <-done
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 1)
}

func TestSyncEngine_ResumesAfterPartialFailure(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))

	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		if entity == memory.EntityPayment {
			return apperrors.NewValidationError("deposit account is inactive")
		}
		return nil
	}
	failed := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, failed.Err)
	assert.Equal(t, models.StatusFailed, failed.Transaction.Status)
	assert.Contains(t, failed.Transaction.FailureReason, "create payment")
	assert.Contains(t, failed.Transaction.FailureReason, "deposit account is inactive")
	assert.NotEmpty(t, failed.Transaction.InvoiceID)
	assert.Empty(t, failed.Transaction.PaymentID)
	assert.Len(t, h.ledger.Calls(memory.EntityPayment), 1, "validation errors are not retried")

	h.ledger.Hook = nil
	result := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.Empty(t, result.Transaction.FailureReason)
	assert.Equal(t, failed.Transaction.InvoiceID, result.Transaction.InvoiceID)
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 1, "the invoice leg is not repeated")
}

func TestSyncEngine_ResumesAfterCrash(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)

	crashed := func(t *testing.T) *harness {
		h := newHarness(t, 1)
		h.store = memory.NewTransactionRepository(time.Minute, memory.WithClock(func() time.Time { return now }))
		h.engine = h.newEngine(1)
		h.add(t, chargeTx("txn_1", 100000, 3000))

		// the invoice was created and checkpointed, then the process died
		_, err := h.store.SetSyncing(ctx, "txn_1")
		require.NoError(t, err)
		require.NoError(t, h.store.Checkpoint(ctx, "txn_1", models.Linkage{InvoiceID: "Invoice-crashed"}))
		return h
	}

	assertResumed := func(t *testing.T, h *harness, result SyncResult) {
		require.NoError(t, result.Err)
		assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
		assert.Equal(t, "Invoice-crashed", result.Transaction.InvoiceID)
		assert.Empty(t, h.ledger.Calls(memory.EntityInvoice))

		payments := h.ledger.Calls(memory.EntityPayment)
		require.Len(t, payments, 1)
		assert.Equal(t, "Invoice-crashed", payments[0].Request.(models.PaymentRequest).InvoiceID)
		assert.Len(t, h.ledger.Calls(memory.EntityExpense), 1)
	}

	t.Run("lease takeover", func(t *testing.T) {
		h := crashed(t)

		busy := h.engine.SyncOne(ctx, "txn_1")
		assert.True(t, busy.AlreadySyncing)
		assert.Empty(t, h.ledger.Calls(""))

		now = now.Add(2 * time.Minute)
		assertResumed(t, h, h.engine.SyncOne(ctx, "txn_1"))
	})

	t.Run("released by the sweep", func(t *testing.T) {
		h := crashed(t)

		now = now.Add(11 * time.Minute)
		require.NoError(t, NewReleaseStaleInteractor(NewObservedTransactionRepository(h.store, h.progress), 10*time.Minute).Execute(ctx))
		released, err := h.store.Get(ctx, "txn_1")
		require.NoError(t, err)
		assert.Equal(t, models.StatusFailed, released.Status)
		assert.Equal(t, "Invoice-crashed", released.InvoiceID)

		assertResumed(t, h, h.engine.SyncOne(ctx, "txn_1"))
	})
}

func TestSyncEngine_RetriesTransientErrors(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 0))

	var failures atomic.Int32
	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		if entity == memory.EntityInvoice && failures.Add(1) <= 2 {
			return apperrors.NewTransientError("quickbooks unavailable", nil)
		}
		return nil
	}

	result := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 3)
	assert.Equal(t, 1, h.ledger.Records(memory.EntityInvoice))
}

func TestSyncEngine_GivesUpAfterAttempts(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 0))

	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		return apperrors.NewRateLimitedError(time.Millisecond)
	}

	result := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusFailed, result.Transaction.Status)
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 3)
	assert.Empty(t, h.ledger.Calls(memory.EntityPayment))
}

func TestSyncEngine_SettingsGate(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))

	t.Run("not configured", func(t *testing.T) {
		engine := NewSyncEngine(h.store, NewMappingResolver(memory.NewSettingsRepository(), h.ledger, testKey, 0), h.ledger, nil, SyncOptions{})
		result := engine.SyncOne(context.Background(), "txn_1")
		require.NoError(t, result.Err)
		assert.Equal(t, models.StatusFailed, result.Transaction.Status)
		assert.Contains(t, result.Transaction.FailureReason, apperrors.ProblemNotConfigured)
	})

	t.Run("stale account", func(t *testing.T) {
		stale := testSettings
		stale.FeeAccountID = "99"
		require.NoError(t, h.settings.Save(context.Background(), testKey, &stale))

		result := h.engine.SyncOne(context.Background(), "txn_1")
		require.NoError(t, result.Err)
		assert.Equal(t, models.StatusFailed, result.Transaction.Status)
		assert.Contains(t, result.Transaction.FailureReason, "stripe_fee_account_id")
	})

	assert.Empty(t, h.ledger.Calls(""))
}

func TestSyncEngine_Refund(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))
	charge := h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, charge.Err)

	h.add(t, models.Transaction{
		ID:       "txn_2",
		Type:     models.TransactionTypeRefund,
		Amount:   -50000,
		SourceID: "re_1",
		ChargeID: "ch_txn_1",
	})
	result := h.engine.SyncOne(context.Background(), "txn_2")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.NotEmpty(t, result.Transaction.ExpenseID)

	expenses := h.ledger.Calls(memory.EntityExpense)
	require.Len(t, expenses, 2)
	refund := expenses[1].Request.(models.ExpenseRequest)
	assert.Equal(t, "txn_2", refund.ExternalRef)
	assert.Equal(t, int64(50000), refund.Total())
	require.Len(t, refund.Lines, 1)
	assert.Equal(t, "4", refund.Lines[0].AccountID)
	assert.Equal(t, "TAX", refund.Lines[0].TaxCodeID)
	assert.Equal(t, []string{charge.Transaction.InvoiceID, charge.Transaction.PaymentID}, refund.LinkedIDs)
}

func TestSyncEngine_RefundOfExemptCharge(t *testing.T) {
	h := newHarness(t, 1)
	exempt := chargeTx("txn_1", 100000, 0)
	exempt.TaxExempt = true
	h.add(t, exempt)
	require.NoError(t, h.engine.SyncOne(context.Background(), "txn_1").Err)

	// the refund's customer came back unexpanded so its own flag is unset
	h.add(t, models.Transaction{
		ID:       "txn_2",
		Type:     models.TransactionTypeRefund,
		Amount:   -50000,
		SourceID: "re_1",
		ChargeID: "ch_txn_1",
	})
	result := h.engine.SyncOne(context.Background(), "txn_2")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)

	invoice := h.ledger.Calls(memory.EntityInvoice)[0].Request.(models.InvoiceRequest)
	assert.Equal(t, "NON", invoice.TaxCodeID)

	expenses := h.ledger.Calls(memory.EntityExpense)
	require.Len(t, expenses, 1)
	refund := expenses[0].Request.(models.ExpenseRequest)
	require.Len(t, refund.Lines, 1)
	assert.Equal(t, "NON", refund.Lines[0].TaxCodeID)
	assert.Equal(t, "Stripe refund re_1 (Ada)", refund.Description)
}

type blankTransfers struct {
	*memory.Ledger
}

func (b blankTransfers) CreateOrGetTransfer(context.Context, models.TransferRequest) (string, error) {
	return "", nil
}

func TestSyncEngine_EmptyRecordIDFails(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, models.Transaction{ID: "txn_po", Type: models.TransactionTypePayout, Amount: -97000})
	engine := h.engineWith(h.store, NewMappingResolver(h.settings, h.ledger, testKey, 0), blankTransfers{h.ledger}, 1)

	results := engine.SyncMany(context.Background(), "job-1", []string{"txn_po"})
	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.Equal(t, models.StatusFailed, results[0].Transaction.Status)
	assert.Contains(t, results[0].Transaction.FailureReason, "returned no record id")
	assert.Empty(t, results[0].Transaction.TransferID)

	stored, err := h.store.Get(context.Background(), "txn_po")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, []models.SyncStatus{models.StatusSyncing, models.StatusFailed}, h.progress.transactionStatuses("txn_po"))
	assert.Equal(t, "Sync finished: 0 succeeded, 1 failed", h.progress.statuses("job-1")[1])
}

type unrecordedSuccess struct {
	*memory.TransactionRepository
}

func (s unrecordedSuccess) SetResult(ctx context.Context, id string, outcome models.Outcome) (*models.Transaction, error) {
	if outcome.Status == models.StatusSuccess {
		return nil, apperrors.NewTransientError("connection reset", nil)
	}
	return s.TransactionRepository.SetResult(ctx, id, outcome)
}

func TestSyncEngine_UnrecordedSuccessIsFailed(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 100000, 3000))
	engine := h.engineWith(unrecordedSuccess{h.store}, NewMappingResolver(h.settings, h.ledger, testKey, 0), h.ledger, 1)

	result := engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusFailed, result.Transaction.Status)
	assert.Contains(t, result.Transaction.FailureReason, "connection reset")
	assert.NotEmpty(t, result.Transaction.ExpenseID)

	stored, err := h.store.Get(context.Background(), "txn_1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusFailed, stored.Status)
	assert.Equal(t, result.Transaction.InvoiceID, stored.InvoiceID)
	assert.Equal(t, []models.SyncStatus{models.StatusSyncing, models.StatusFailed}, h.progress.transactionStatuses("txn_1"))

	// a retry finds every record linked and only records the result
	result = h.engine.SyncOne(context.Background(), "txn_1")
	require.NoError(t, result.Err)
	assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	assert.Len(t, h.ledger.Calls(memory.EntityInvoice), 1)
}

func TestSyncEngine_ValidationFailureDropsCachedSettings(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_1", 1000, 0), chargeTx("txn_2", 1000, 0), chargeTx("txn_3", 1000, 0))
	catalog := &countingCatalog{Ledger: h.ledger}
	engine := h.engineWith(h.store, NewMappingResolver(h.settings, catalog, testKey, time.Hour), h.ledger, 1)

	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		if externalRef == "txn_1" && entity == memory.EntityPayment {
			return apperrors.NewValidationError("deposit account is inactive")
		}
		return nil
	}

	failed := engine.SyncOne(context.Background(), "txn_1")
	assert.Equal(t, models.StatusFailed, failed.Transaction.Status)
	assert.Equal(t, int32(1), catalog.lists.Load())

	require.Equal(t, models.StatusSuccess, engine.SyncOne(context.Background(), "txn_2").Transaction.Status)
	assert.Equal(t, int32(2), catalog.lists.Load(), "settings are re-read after a rejected write")

	require.Equal(t, models.StatusSuccess, engine.SyncOne(context.Background(), "txn_3").Transaction.Status)
	assert.Equal(t, int32(2), catalog.lists.Load())
}

func TestSyncEngine_PayoutAndTransfer(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t,
		models.Transaction{ID: "txn_po", Type: models.TransactionTypePayout, Amount: -97000},
		models.Transaction{ID: "txn_tr", Type: models.TransactionTypeTransfer, Amount: 2500},
	)

	payout := h.engine.SyncOne(context.Background(), "txn_po")
	require.NoError(t, payout.Err)
	assert.Equal(t, models.StatusSuccess, payout.Transaction.Status)
	assert.NotEmpty(t, payout.Transaction.TransferID)

	transfer := h.engine.SyncOne(context.Background(), "txn_tr")
	require.NoError(t, transfer.Err)

	calls := h.ledger.Calls(memory.EntityTransfer)
	require.Len(t, calls, 2)
	out := calls[0].Request.(models.TransferRequest)
	assert.Equal(t, int64(97000), out.Amount)
	assert.Equal(t, "1", out.FromAccountID)
	assert.Equal(t, "2", out.ToAccountID)

	in := calls[1].Request.(models.TransferRequest)
	assert.Equal(t, int64(2500), in.Amount)
	assert.Equal(t, "2", in.FromAccountID)
	assert.Equal(t, "1", in.ToAccountID)
}

func TestSyncEngine_Adjustment(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t,
		models.Transaction{ID: "txn_fee", Type: models.TransactionTypeAdjustment, Amount: -500, Description: "Radar fee"},
		models.Transaction{ID: "txn_credit", Type: models.TransactionTypeAdjustment, Amount: 200},
	)

	for _, id := range []string{"txn_fee", "txn_credit"} {
		result := h.engine.SyncOne(context.Background(), id)
		require.NoError(t, result.Err)
		assert.Equal(t, models.StatusSuccess, result.Transaction.Status)
	}

	calls := h.ledger.Calls(memory.EntityExpense)
	require.Len(t, calls, 2)
	fee := calls[0].Request.(models.ExpenseRequest)
	assert.Equal(t, int64(500), fee.Total())
	assert.Equal(t, "3", fee.Lines[0].AccountID)
	assert.Equal(t, "Radar fee", fee.Description)
	assert.Equal(t, int64(-200), calls[1].Request.(models.ExpenseRequest).Total())
}

func TestSyncEngine_SyncMany(t *testing.T) {
	h := newHarness(t, 1)
	h.add(t, chargeTx("txn_a", 1000, 30), chargeTx("txn_b", 2000, 60), chargeTx("txn_c", 3000, 90))

	h.ledger.Hook = func(ctx context.Context, entity, externalRef string) error {
		if externalRef == "txn_b" {
			return apperrors.NewValidationError("customer is inactive")
		}
		return nil
	}

	results := h.engine.SyncMany(context.Background(), "job-1", []string{"txn_a", "txn_b", "txn_a", "", "txn_c"})
	require.Len(t, results, 3)
	assert.Equal(t, "txn_a", results[0].Transaction.ID)
	assert.Equal(t, models.StatusSuccess, results[0].Transaction.Status)
	assert.Equal(t, "txn_b", results[1].Transaction.ID)
	assert.Equal(t, models.StatusFailed, results[1].Transaction.Status)
	assert.Equal(t, "txn_c", results[2].Transaction.ID)
	assert.Equal(t, models.StatusSuccess, results[2].Transaction.Status)

	assert.Equal(t, []string{
		"Syncing 1 of 3",
		"Syncing 2 of 3",
		"Syncing 3 of 3",
		"Sync finished: 2 succeeded, 1 failed",
	}, h.progress.statuses("job-1"))

	missing := h.engine.SyncMany(context.Background(), "job-2", []string{"txn_missing"})
	require.Len(t, missing, 1)
	assert.Error(t, missing[0].Err)
	assert.Equal(t, "Sync finished: 0 succeeded, 0 failed, 1 skipped", h.progress.statuses("job-2")[1])

	assert.Empty(t, h.engine.SyncMany(context.Background(), "job-3", nil))
	assert.Equal(t, []string{"Nothing to sync"}, h.progress.statuses("job-3"))
}

func TestSyncEngine_SubmitAndWait(t *testing.T) {
	h := newHarness(t, 4)
	ids := make([]string, 0, 10)
	for _, id := range []string{"txn_0", "txn_1", "txn_2", "txn_3", "txn_4", "txn_5", "txn_6", "txn_7", "txn_8", "txn_9"} {
		h.add(t, chargeTx(id, 1000, 30))
		ids = append(ids, id)
	}

	jobID, count := h.engine.Submit(append(ids, "txn_0"))
	assert.NotEmpty(t, jobID)
	assert.Equal(t, 10, count)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Wait(ctx))

	synced, err := h.store.List(context.Background(), models.TransactionFilter{Status: models.StatusSuccess})
	require.NoError(t, err)
	assert.Len(t, synced, 10)
	statuses := h.progress.statuses(jobID)
	require.NotEmpty(t, statuses)
	assert.Equal(t, "Sync finished: 10 succeeded, 0 failed", statuses[len(statuses)-1])
}
