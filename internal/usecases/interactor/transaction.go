package interactor

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
)

type TransactionInteractor struct {
	transactionRepository repositories.TransactionRepository
	logger                *zerolog.Logger
}

func NewTransactionInteractor(transactionRepository repositories.TransactionRepository) *TransactionInteractor {
	l := log.GetLogger()
	return &TransactionInteractor{
		transactionRepository: transactionRepository,
		logger:                &l,
	}
}

func (i *TransactionInteractor) List(ctx context.Context, status string) ([]models.Transaction, error) {
	filter := models.TransactionFilter{Status: models.SyncStatus(status)}
	if status != "" && !filter.Status.Valid() {
		return nil, apperrors.NewBadRequestError(apperrors.ErrInvalidTransactionStatus)
	}
	return i.transactionRepository.List(ctx, filter)
}

func (i *TransactionInteractor) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return i.transactionRepository.Get(ctx, id)
}

func (i *TransactionInteractor) ExistsByID(ctx context.Context, id string) (bool, error) {
	_, err := i.transactionRepository.Get(ctx, id)
	var notFound *apperrors.NotFoundError
	if apperrors.As(err, &notFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
