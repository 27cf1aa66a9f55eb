package interactor

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"time"
)

// ObservedTransactionRepository publishes every row a mutation changed.
// Checkpoint only refreshes the lease and linkage of a syncing row and stays silent.
type ObservedTransactionRepository struct {
	repositories.TransactionRepository
	progress gateways.ProgressPublisher
	logger   *zerolog.Logger
}

func NewObservedTransactionRepository(inner repositories.TransactionRepository, progress gateways.ProgressPublisher) *ObservedTransactionRepository {
	l := log.GetLogger()
	return &ObservedTransactionRepository{TransactionRepository: inner, progress: progress, logger: &l}
}

func (r *ObservedTransactionRepository) UpsertImported(ctx context.Context, transaction *models.Transaction) (bool, error) {
	inserted, err := r.TransactionRepository.UpsertImported(ctx, transaction)
	if err == nil && inserted {
		r.publish(ctx, transaction)
	}
	return inserted, err
}

func (r *ObservedTransactionRepository) SetSyncing(ctx context.Context, id string) (*models.Transaction, error) {
	tx, err := r.TransactionRepository.SetSyncing(ctx, id)
	if err == nil {
		r.publish(ctx, tx)
	}
	return tx, err
}

func (r *ObservedTransactionRepository) SetResult(ctx context.Context, id string, outcome models.Outcome) (*models.Transaction, error) {
	tx, err := r.TransactionRepository.SetResult(ctx, id, outcome)
	if err == nil {
		r.publish(ctx, tx)
	}
	return tx, err
}

func (r *ObservedTransactionRepository) ReleaseStale(ctx context.Context, olderThan time.Duration) ([]models.Transaction, error) {
	released, err := r.TransactionRepository.ReleaseStale(ctx, olderThan)
	for i := range released {
		r.publish(ctx, &released[i])
	}
	return released, err
}

func (r *ObservedTransactionRepository) publish(ctx context.Context, tx *models.Transaction) {
	cp := *tx
	if err := r.progress.Publish(ctx, models.ProgressMessage{Transaction: &cp}); err != nil {
		r.logger.Warn().Err(err).Str("transaction_id", tx.ID).Msg(apperrors.ErrFailedPublishProgress)
	}
}
