package interactor

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"time"
)

type ReleaseStaleInteractor struct {
	transactionRepository repositories.TransactionRepository
	lease                 time.Duration
	logger                *zerolog.Logger
}

// NewReleaseStaleInteractor creates a new ReleaseStaleInteractor
func NewReleaseStaleInteractor(transactionRepository repositories.TransactionRepository, lease time.Duration) *ReleaseStaleInteractor {
	l := log.GetLogger()
	return &ReleaseStaleInteractor{
		transactionRepository: transactionRepository,
		lease:                 lease,
		logger:                &l,
	}
}

// Execute fails every sync attempt that stopped refreshing its lease, so it can be retried.
func (c *ReleaseStaleInteractor) Execute(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	released, err := c.transactionRepository.ReleaseStale(ctx, c.lease)
	if err != nil {
		c.logger.Error().Err(err).Msg(errors.ErrFailedReleaseStaleSyncs)
		return err
	}

	for _, tx := range released {
		c.logger.Warn().Str("transaction_id", tx.ID).Msg("stale sync released")
	}
	return nil
}
