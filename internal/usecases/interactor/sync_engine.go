package interactor

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/mufasadev/stripe2qbo/pkg/util/repeat"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"sync"
	"sync/atomic"
	"time"
)

type SettingsResolver interface {
	Resolve(ctx context.Context) (*models.Settings, error)
	// Invalidate drops any cached settings so the next Resolve re-reads the catalog.
	Invalidate()
}

type SyncOptions struct {
	Workers     int
	Retry       repeat.Policy
	CallTimeout time.Duration
}

// SyncResult is the outcome of one SyncOne call.
type SyncResult struct {
	Transaction    models.Transaction `json:"transaction"`
	AlreadySyncing bool               `json:"already_syncing,omitempty"`
	AlreadyDone    bool               `json:"already_done,omitempty"`
	Err            error              `json:"-"`
}

// SyncEngine turns imported transactions into target ledger records.
//
// Amounts follow the Stripe balance convention: Net() is the change of the
// clearing account, so a negative net leaves it and a positive one enters it.
type SyncEngine struct {
	transactions repositories.TransactionRepository
	resolver     SettingsResolver
	ledger       gateways.TargetLedger
	progress     gateways.ProgressPublisher
	options      SyncOptions
	inflight     singleflight.Group
	batches      sync.WaitGroup
	logger       *zerolog.Logger
}

func NewSyncEngine(
	transactions repositories.TransactionRepository,
	resolver SettingsResolver,
	ledger gateways.TargetLedger,
	progress gateways.ProgressPublisher,
	options SyncOptions,
) *SyncEngine {
	l := log.GetLogger()
	if options.Workers < 1 {
		options.Workers = 1
	}
	return &SyncEngine{
		transactions: transactions,
		resolver:     resolver,
		ledger:       ledger,
		progress:     progress,
		options:      options,
		logger:       &l,
	}
}

// SyncOne brings one transaction to a terminal state. Callers arriving while the
// same id is in flight in this process share its result, flagged AlreadySyncing.
// The work is detached from ctx cancellation.
func (e *SyncEngine) SyncOne(ctx context.Context, id string) SyncResult {
	ctx = context.WithoutCancel(ctx)

	leader := false
	v, _, _ := e.inflight.Do(id, func() (interface{}, error) {
		leader = true
		return e.syncOne(ctx, id), nil
	})

	result := v.(SyncResult)
	if !leader {
		result.AlreadySyncing = true
	}
	return result
}

// SyncMany runs SyncOne over ids on the worker pool. Duplicate ids are dropped and
// results keep the order of first appearance. It never fails as a whole.
func (e *SyncEngine) SyncMany(ctx context.Context, jobID string, ids []string) []SyncResult {
	ctx = context.WithoutCancel(ctx)
	ids = dedupe(ids)
	results := make([]SyncResult, len(ids))
	if len(ids) == 0 {
		e.publishStatus(ctx, jobID, "Nothing to sync")
		return results
	}

	workers := e.options.Workers
	if workers > len(ids) {
		workers = len(ids)
	}

	var started atomic.Int64
	jobs := make(chan int)
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			for i := range jobs {
				n := started.Add(1)
				e.publishStatus(ctx, jobID, fmt.Sprintf("Syncing %d of %d", n, len(ids)))
				results[i] = e.SyncOne(ctx, ids[i])
			}
		}()
	}
	for i := range ids {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	e.publishStatus(ctx, jobID, summarize(results))
	return results
}

// Submit starts SyncMany in the background and returns its job id and batch size.
func (e *SyncEngine) Submit(ids []string) (string, int) {
	jobID := uuid.NewString()
	ids = dedupe(ids)

	e.batches.Add(1)
	go func() {
		defer e.batches.Done()
		results := e.SyncMany(context.Background(), jobID, ids)
		e.logger.Info().Str("job_id", jobID).Msg(summarize(results))
	}()

	return jobID, len(ids)
}

// Wait blocks until every submitted batch finished or ctx is done.
func (e *SyncEngine) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		e.batches.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *SyncEngine) syncOne(ctx context.Context, id string) SyncResult {
	logger := e.logger.With().Str("transaction_id", id).Logger()

	tx, err := e.transactions.SetSyncing(ctx, id)
	switch {
	case apperrors.Is(err, apperrors.ErrAlreadyDone):
		e.publishTransaction(ctx, tx)
		return SyncResult{Transaction: *tx, AlreadyDone: true}
	case apperrors.Is(err, apperrors.ErrAlreadySyncing):
		e.publishTransaction(ctx, tx)
		return SyncResult{Transaction: *tx, AlreadySyncing: true}
	case err != nil:
		logger.Error().Err(err).Msg(apperrors.ErrFailedSyncTransaction)
		return SyncResult{Transaction: models.Transaction{ID: id}, Err: err}
	}

	settings, err := e.resolveSettings(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("settings are not usable")
		return e.finish(ctx, tx, models.Failed(err.Error(), tx.Linkage))
	}

	linkage, err := e.dispatch(ctx, tx, settings)
	if err != nil {
		logger.Warn().Err(err).Msg(apperrors.ErrFailedSyncTransaction)
		var validation *apperrors.ValidationError
		if apperrors.As(err, &validation) {
			e.resolver.Invalidate()
		}
		return e.finish(ctx, tx, models.Failed(err.Error(), linkage))
	}

	logger.Info().Str("type", string(tx.Type)).Msg("transaction synced")
	return e.finish(ctx, tx, models.Succeeded(linkage))
}

func (e *SyncEngine) finish(ctx context.Context, tx *models.Transaction, outcome models.Outcome) SyncResult {
	updated, err := e.transactions.SetResult(ctx, tx.ID, outcome)
	switch {
	case apperrors.Is(err, apperrors.ErrAlreadyDone):
		return SyncResult{Transaction: *updated, AlreadyDone: true}
	case err != nil:
		e.logger.Error().Err(err).Str("transaction_id", tx.ID).Msg("failed to record sync result")
		if outcome.Status == models.StatusSuccess {
			failed, ferr := e.transactions.SetResult(ctx, tx.ID, models.Failed("record sync result: "+err.Error(), outcome.Linkage))
			if ferr == nil {
				return SyncResult{Transaction: *failed}
			}
			e.logger.Error().Err(ferr).Str("transaction_id", tx.ID).Msg("failed to record sync failure")
			err = ferr
		}
		// the stored row is still syncing; the lease sweep will release it
		cp := *tx
		cp.Linkage = cp.Linkage.Merge(outcome.Linkage)
		return SyncResult{Transaction: cp, Err: err}
	}
	return SyncResult{Transaction: *updated}
}

func (e *SyncEngine) resolveSettings(ctx context.Context) (*models.Settings, error) {
	var settings *models.Settings
	err := repeat.Do(ctx, e.options.Retry, apperrors.IsRetryable, func(ctx context.Context) error {
		s, err := e.resolver.Resolve(ctx)
		if err != nil {
			return err
		}
		settings = s
		return nil
	}, nil)
	return settings, err
}

func (e *SyncEngine) dispatch(ctx context.Context, tx *models.Transaction, s *models.Settings) (models.Linkage, error) {
	switch tx.Type {
	case models.TransactionTypeCharge:
		return e.syncCharge(ctx, tx, s)
	case models.TransactionTypeRefund:
		return e.syncRefund(ctx, tx, s)
	case models.TransactionTypePayout, models.TransactionTypeTransfer:
		return e.syncTransfer(ctx, tx, s)
	case models.TransactionTypeAdjustment:
		return e.syncAdjustment(ctx, tx, s)
	}
	return tx.Linkage, apperrors.NewValidationError(fmt.Sprintf("unsupported transaction type %q", tx.Type))
}

func (e *SyncEngine) syncCharge(ctx context.Context, tx *models.Transaction, s *models.Settings) (models.Linkage, error) {
	l := tx.Linkage
	date := tx.CreatedAt()
	desc := describe(tx)

	err := e.leg(ctx, tx, "create invoice", &l, &l.InvoiceID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetInvoice(ctx, models.InvoiceRequest{
			ExternalRef:     tx.ID,
			Date:            date,
			Currency:        tx.Currency,
			ExchangeRate:    tx.ExchangeRate,
			Amount:          tx.Amount,
			IncomeAccountID: s.IncomeAccountID,
			TaxCodeID:       s.TaxCodeFor(tx.TaxExempt),
			CustomerName:    tx.CustomerName,
			Description:     desc,
		})
	})
	if err != nil {
		return l, err
	}

	err = e.leg(ctx, tx, "create payment", &l, &l.PaymentID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetPayment(ctx, models.PaymentRequest{
			ExternalRef:      tx.ID,
			Date:             date,
			Currency:         tx.Currency,
			ExchangeRate:     tx.ExchangeRate,
			Amount:           tx.Net(),
			InvoiceID:        l.InvoiceID,
			DepositAccountID: s.ClearingAccountID,
			CustomerName:     tx.CustomerName,
			Description:      desc,
		})
	})
	if err != nil {
		return l, err
	}

	if tx.Fee == 0 {
		return l, nil
	}
	err = e.leg(ctx, tx, "create fee expense", &l, &l.ExpenseID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetExpense(ctx, models.ExpenseRequest{
			ExternalRef:      tx.ID,
			Date:             date,
			Currency:         tx.Currency,
			ExchangeRate:     tx.ExchangeRate,
			PaymentAccountID: s.ClearingAccountID,
			VendorID:         s.VendorID,
			Lines: []models.ExpenseLine{
				{AccountID: s.FeeAccountID, Amount: tx.Fee, Description: "Stripe fee"},
			},
			LinkedIDs:   []string{l.InvoiceID},
			Description: desc,
		})
	})
	return l, err
}

func (e *SyncEngine) syncRefund(ctx context.Context, tx *models.Transaction, s *models.Settings) (models.Linkage, error) {
	l := tx.Linkage
	refund := *tx

	var linked []string
	if tx.ChargeID != "" {
		original, err := e.transactions.GetBySourceID(ctx, tx.ChargeID)
		if err != nil {
			return l, fmt.Errorf("find refunded charge: %w", err)
		}
		if original != nil {
			refund.TaxExempt = refund.TaxExempt || original.TaxExempt
			if refund.CustomerName == "" {
				refund.CustomerName = original.CustomerName
			}
			for _, id := range []string{original.InvoiceID, original.PaymentID} {
				if id != "" {
					linked = append(linked, id)
				}
			}
		}
	}

	desc := describe(&refund)
	lines := []models.ExpenseLine{
		{AccountID: s.IncomeAccountID, Amount: -tx.Amount, TaxCodeID: s.TaxCodeFor(refund.TaxExempt), Description: desc},
	}
	if tx.Fee != 0 {
		lines = append(lines, models.ExpenseLine{AccountID: s.FeeAccountID, Amount: tx.Fee, Description: "Stripe fee"})
	}

	err := e.leg(ctx, tx, "create refund expense", &l, &l.ExpenseID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetExpense(ctx, models.ExpenseRequest{
			ExternalRef:      tx.ID,
			Date:             tx.CreatedAt(),
			Currency:         tx.Currency,
			ExchangeRate:     tx.ExchangeRate,
			PaymentAccountID: s.ClearingAccountID,
			VendorID:         s.VendorID,
			Lines:            lines,
			LinkedIDs:        linked,
			Description:      desc,
		})
	})
	return l, err
}

func (e *SyncEngine) syncTransfer(ctx context.Context, tx *models.Transaction, s *models.Settings) (models.Linkage, error) {
	l := tx.Linkage

	from, to := s.ClearingAccountID, s.PayoutAccountID
	amount := -tx.Net()
	if amount < 0 {
		from, to = to, from
		amount = -amount
	}

	err := e.leg(ctx, tx, "create transfer", &l, &l.TransferID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetTransfer(ctx, models.TransferRequest{
			ExternalRef:   tx.ID,
			Date:          tx.CreatedAt(),
			Currency:      tx.Currency,
			Amount:        amount,
			FromAccountID: from,
			ToAccountID:   to,
			Description:   describe(tx),
		})
	})
	return l, err
}

func (e *SyncEngine) syncAdjustment(ctx context.Context, tx *models.Transaction, s *models.Settings) (models.Linkage, error) {
	l := tx.Linkage
	desc := describe(tx)

	err := e.leg(ctx, tx, "create adjustment expense", &l, &l.ExpenseID, func(ctx context.Context) (string, error) {
		return e.ledger.CreateOrGetExpense(ctx, models.ExpenseRequest{
			ExternalRef:      tx.ID,
			Date:             tx.CreatedAt(),
			Currency:         tx.Currency,
			ExchangeRate:     tx.ExchangeRate,
			PaymentAccountID: s.ClearingAccountID,
			VendorID:         s.VendorID,
			Lines: []models.ExpenseLine{
				{AccountID: s.FeeAccountID, Amount: -tx.Net(), Description: desc},
			},
			Description: desc,
		})
	})
	return l, err
}

// leg creates one target record unless slot already holds its id, then checkpoints
// the linkage so a later attempt resumes after it.
func (e *SyncEngine) leg(ctx context.Context, tx *models.Transaction, name string, linkage *models.Linkage, slot *string, create func(context.Context) (string, error)) error {
	if *slot != "" {
		return nil
	}

	var id string
	err := repeat.Do(ctx, e.options.Retry, apperrors.IsRetryable, func(ctx context.Context) error {
		callCtx, cancel := e.callContext(ctx)
		defer cancel()

		ref, err := create(callCtx)
		if err != nil {
			var transient *apperrors.TransientError
			if apperrors.Is(err, context.DeadlineExceeded) && !apperrors.As(err, &transient) {
				return apperrors.NewTransientError(name+" timed out", err)
			}
			return err
		}
		if ref == "" {
			return apperrors.NewValidationError("target ledger returned no record id")
		}
		id = ref
		return nil
	}, func(err error, wait time.Duration) {
		e.logger.Warn().Err(err).Str("transaction_id", tx.ID).Str("leg", name).Dur("wait", wait).Msg("retrying target ledger call")
	})
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	*slot = id
	if err := e.transactions.Checkpoint(ctx, tx.ID, *linkage); err != nil {
		e.logger.Warn().Err(err).Str("transaction_id", tx.ID).Str("leg", name).Msg("failed to checkpoint linkage")
	}
	return nil
}

func (e *SyncEngine) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if e.options.CallTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, e.options.CallTimeout)
}

func (e *SyncEngine) publishStatus(ctx context.Context, jobID, status string) {
	e.publish(ctx, models.ProgressMessage{JobID: jobID, Status: status})
}

func (e *SyncEngine) publishTransaction(ctx context.Context, tx *models.Transaction) {
	cp := *tx
	e.publish(ctx, models.ProgressMessage{Transaction: &cp})
}

func (e *SyncEngine) publish(ctx context.Context, msg models.ProgressMessage) {
	if e.progress == nil {
		return
	}
	if err := e.progress.Publish(ctx, msg); err != nil {
		e.logger.Warn().Err(err).Msg(apperrors.ErrFailedPublishProgress)
	}
}

func describe(tx *models.Transaction) string {
	if tx.Description != "" {
		return tx.Description
	}
	if tx.CustomerName != "" {
		return fmt.Sprintf("Stripe %s %s (%s)", tx.Type, tx.SourceID, tx.CustomerName)
	}
	return fmt.Sprintf("Stripe %s %s", tx.Type, tx.ID)
}

func summarize(results []SyncResult) string {
	var succeeded, failed, skipped int
	for _, r := range results {
		switch r.Transaction.Status {
		case models.StatusSuccess:
			succeeded++
		case models.StatusFailed:
			failed++
		default:
			skipped++
		}
	}
	if skipped > 0 {
		return fmt.Sprintf("Sync finished: %d succeeded, %d failed, %d skipped", succeeded, failed, skipped)
	}
	return fmt.Sprintf("Sync finished: %d succeeded, %d failed", succeeded, failed)
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
