package middlewares

import (
	"context"
	"github.com/go-chi/chi/v5"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"net/http"
)

// TransactionValidationMiddleware rejects requests for unknown transaction ids.
func TransactionValidationMiddleware(transactionInt *interactor.TransactionInteractor) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := log.GetLogger()
			id := chi.URLParam(r, http2.TransactionIDParam)
			if id == "" {
				logger.Error().Msg(errors.ErrTransactionIDRequired)
				errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrTransactionIDRequired))
				return
			}

			ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
			defer cancel()
			exists, err := transactionInt.ExistsByID(ctx, id)
			if err != nil {
				logger.Error().Err(err).Str("transaction_id", id).Msg(errors.ErrFailedListTransactions)
				errors.HandleHTTPError(w, err)
				return
			}
			if !exists {
				errors.HandleHTTPError(w, errors.NewNotFoundError("transaction", id))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
