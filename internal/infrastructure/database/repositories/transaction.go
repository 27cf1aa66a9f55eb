package repositories

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"time"
)

const maxSerializationRetries = 5

type TransactionRepositoryImpl struct {
	db     *pgxpool.Pool
	lease  time.Duration
	logger *zerolog.Logger
}

// NewTransactionRepositoryImpl creates new instance of TransactionRepositoryImpl.
// A syncing row whose updated_at is older than lease may be claimed again.
func NewTransactionRepositoryImpl(db *pgxpool.Pool, lease time.Duration) repositories.TransactionRepository {
	l := log.GetLogger()
	return &TransactionRepositoryImpl{
		db:     db,
		lease:  lease,
		logger: &l,
	}
}

const transactionColumns = `id, type, amount, fee, currency, created, description, source_id,
  COALESCE(charge_id, ''), COALESCE(customer_name, ''), tax_exempt, COALESCE(exchange_rate, 1),
  status, COALESCE(failure_reason, ''),
  COALESCE(invoice_id, ''), COALESCE(payment_id, ''), COALESCE(expense_id, ''), COALESCE(transfer_id, ''),
  updated_at`

const upsertImported = `
INSERT INTO transactions (id, type, amount, fee, currency, created, description, source_id,
                          charge_id, customer_name, tax_exempt, exchange_rate, status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), NULLIF($10, ''), $11, $12, 'pending')
ON CONFLICT (id) DO NOTHING
RETURNING status, updated_at;`

// UpsertImported inserts the transaction as pending. Known ids are left untouched.
func (r *TransactionRepositoryImpl) UpsertImported(ctx context.Context, transaction *models.Transaction) (bool, error) {
	var rate interface{}
	if !transaction.ExchangeRate.IsZero() {
		rate = transaction.ExchangeRate
	}

	var status string
	var updatedAt time.Time
	err := r.db.QueryRow(ctx, upsertImported,
		transaction.ID,
		transaction.Type,
		transaction.Amount,
		transaction.Fee,
		transaction.Currency,
		transaction.Created,
		transaction.Description,
		transaction.SourceID,
		transaction.ChargeID,
		transaction.CustomerName,
		transaction.TaxExempt,
		rate,
	).Scan(&status, &updatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("upsert transaction: %w", err)
	}

	transaction.Status = models.SyncStatus(status)
	transaction.UpdatedAt = updatedAt
	return true, nil
}

// Get returns transaction by id.
func (r *TransactionRepositoryImpl) Get(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, apperrors.NewNotFoundError("transaction", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return tx, nil
}

// GetBySourceID returns the earliest transaction created by a source object, or nil.
func (r *TransactionRepositoryImpl) GetBySourceID(ctx context.Context, sourceID string) (*models.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx,
		"SELECT "+transactionColumns+" FROM transactions WHERE source_id = $1 ORDER BY created, id LIMIT 1", sourceID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction by source id: %w", err)
	}
	return tx, nil
}

const listTransactions = `
SELECT ` + transactionColumns + `
FROM transactions
WHERE ($1 = '' OR status = $1)
  AND ($2::text[] IS NULL OR id = ANY($2))
ORDER BY created DESC, id;`

func (r *TransactionRepositoryImpl) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	var ids []string
	if len(filter.IDs) > 0 {
		ids = filter.IDs
	}

	rows, err := r.db.Query(ctx, listTransactions, string(filter.Status), ids)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

const claimTransaction = `
UPDATE transactions
SET status = 'syncing', failure_reason = NULL, updated_at = now()
WHERE id = $1
  AND (status IN ('pending', 'failed')
       OR (status = 'syncing' AND $2::double precision > 0
           AND updated_at < now() - make_interval(secs => $2::double precision)))
RETURNING ` + transactionColumns + `;`

// SetSyncing claims the transaction with a single conditional update.
func (r *TransactionRepositoryImpl) SetSyncing(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := scanTransaction(r.db.QueryRow(ctx, claimTransaction, id, r.lease.Seconds()))
	if err == nil {
		return tx, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("claim transaction: %w", err)
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == models.StatusSuccess {
		return current, apperrors.ErrAlreadyDone
	}
	return current, apperrors.ErrAlreadySyncing
}

const checkpointTransaction = `
UPDATE transactions
SET invoice_id  = COALESCE(invoice_id, NULLIF($2, '')),
    payment_id  = COALESCE(payment_id, NULLIF($3, '')),
    expense_id  = COALESCE(expense_id, NULLIF($4, '')),
    transfer_id = COALESCE(transfer_id, NULLIF($5, '')),
    updated_at  = CASE WHEN status = 'syncing' THEN now() ELSE updated_at END
WHERE id = $1 AND status <> 'success';`

// Checkpoint merges linkage ids and refreshes the lease of a syncing row.
func (r *TransactionRepositoryImpl) Checkpoint(ctx context.Context, id string, linkage models.Linkage) error {
	tag, err := r.db.Exec(ctx, checkpointTransaction, id,
		linkage.InvoiceID, linkage.PaymentID, linkage.ExpenseID, linkage.TransferID)
	if err != nil {
		return fmt.Errorf("checkpoint transaction: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if _, err = r.Get(ctx, id); err != nil {
		return err
	}
	return apperrors.ErrAlreadyDone
}

const selectForResult = "SELECT " + transactionColumns + " FROM transactions WHERE id = $1 FOR UPDATE"

const updateResult = `
UPDATE transactions
SET status = $2,
    failure_reason = NULLIF($3, ''),
    invoice_id = NULLIF($4, ''),
    payment_id = NULLIF($5, ''),
    expense_id = NULLIF($6, ''),
    transfer_id = NULLIF($7, ''),
    updated_at = now()
WHERE id = $1
RETURNING ` + transactionColumns + `;`

// SetResult records the outcome of a sync attempt. Linkage ids are merged, and a
// success row is returned unchanged with ErrAlreadyDone.
func (r *TransactionRepositoryImpl) SetResult(ctx context.Context, id string, outcome models.Outcome) (*models.Transaction, error) {
	var result *models.Transaction
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		current, err := scanTransaction(tx.QueryRow(ctx, selectForResult, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NewNotFoundError("transaction", id)
		}
		if err != nil {
			return err
		}
		if current.Status == models.StatusSuccess {
			result = current
			return apperrors.ErrAlreadyDone
		}

		linkage := current.Linkage.Merge(outcome.Linkage)
		if outcome.Status == models.StatusSuccess && !linkage.Complete(current.Type, current.Fee) {
			return apperrors.NewValidationError("success requires the target records of the transaction type")
		}
		reason := ""
		if outcome.Status == models.StatusFailed {
			reason = outcome.FailureReason
		}

		result, err = scanTransaction(tx.QueryRow(ctx, updateResult, id, outcome.Status, reason,
			linkage.InvoiceID, linkage.PaymentID, linkage.ExpenseID, linkage.TransferID))
		return err
	})

	if apperrors.Is(err, apperrors.ErrAlreadyDone) {
		return result, err
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

const releaseStale = `
UPDATE transactions
SET status = 'failed', failure_reason = $2, updated_at = now()
WHERE status = 'syncing' AND updated_at <= now() - make_interval(secs => $1::double precision)
RETURNING ` + transactionColumns + `;`

// ReleaseStale fails syncing rows whose lease is older than olderThan.
func (r *TransactionRepositoryImpl) ReleaseStale(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	rows, err := r.db.Query(ctx, releaseStale, olderThan.Seconds(), repositories.StaleSyncReason)
	if err != nil {
		return nil, fmt.Errorf("release stale syncs: %w", err)
	}
	return collectTransactions(rows)
}

// inTx runs f in a read committed transaction, retrying on serialization failures.
func (r *TransactionRepositoryImpl) inTx(ctx context.Context, f func(tx pgx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxSerializationRetries; attempt++ {
		var tx pgx.Tx
		tx, err = r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if err = f(tx); err != nil {
			tx.Rollback(ctx)
		} else if err = tx.Commit(ctx); err == nil {
			return nil
		}

		if !isSerializationError(err) {
			return err
		}
		r.logger.Debug().Err(err).Int("attempt", attempt+1).Msg("retrying serialization failure")
	}
	return err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTransaction(row rowScanner) (*models.Transaction, error) {
	tx := &models.Transaction{}
	var rate decimal.Decimal
	err := row.Scan(
		&tx.ID, &tx.Type, &tx.Amount, &tx.Fee, &tx.Currency, &tx.Created, &tx.Description, &tx.SourceID,
		&tx.ChargeID, &tx.CustomerName, &tx.TaxExempt, &rate,
		&tx.Status, &tx.FailureReason,
		&tx.InvoiceID, &tx.PaymentID, &tx.ExpenseID, &tx.TransferID,
		&tx.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	tx.ExchangeRate = rate
	return tx, nil
}

func collectTransactions(rows pgx.Rows) ([]models.Transaction, error) {
	defer rows.Close()

	result := make([]models.Transaction, 0)
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *tx)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func isSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.SQLState() == repositories.SerializationError
}
