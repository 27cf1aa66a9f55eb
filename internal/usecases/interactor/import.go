package interactor

import (
	"context"
	"fmt"
	"github.com/mufasadev/stripe2qbo/internal/domain/gateways"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"time"
)

type ImportInteractor struct {
	source       gateways.SourceLedger
	transactions repositories.TransactionRepository
	logger       *zerolog.Logger
}

func NewImportInteractor(source gateways.SourceLedger, transactions repositories.TransactionRepository) *ImportInteractor {
	l := log.GetLogger()
	return &ImportInteractor{source: source, transactions: transactions, logger: &l}
}

// ImportRange pulls source transactions created between from and the end of the day of to
// and stores the unknown ones as pending. It returns how many rows were new.
func (i *ImportInteractor) ImportRange(ctx context.Context, from, to time.Time) (int, error) {
	from = from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24*time.Hour).AddDate(0, 0, 1).Add(-time.Second)
	if end.Before(from) {
		return 0, apperrors.NewBadRequestError(apperrors.ErrInvalidDateRange)
	}

	transactions, err := i.source.ListTransactions(ctx, from, end)
	if err != nil {
		i.logger.Error().Err(err).Msg(apperrors.ErrFailedImportTransactions)
		return 0, err
	}

	imported := 0
	for idx := range transactions {
		inserted, err := i.transactions.UpsertImported(ctx, &transactions[idx])
		if err != nil {
			return imported, fmt.Errorf("upsert %s: %w", transactions[idx].ID, err)
		}
		if inserted {
			imported++
		}
	}

	i.logger.Info().
		Time("from", from).
		Time("to", end).
		Int("fetched", len(transactions)).
		Int("imported", imported).
		Msg("import finished")
	return imported, nil
}
