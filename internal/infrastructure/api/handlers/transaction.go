package handlers

import (
	"context"
	"encoding/json"
	"github.com/go-chi/chi/v5"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"net/http"
)

type TransactionHandler struct {
	interactor *interactor.TransactionInteractor
	logger     *zerolog.Logger
}

func NewTransactionHandler(interactor *interactor.TransactionInteractor) *TransactionHandler {
	logger := log.GetLogger()
	return &TransactionHandler{interactor: interactor, logger: &logger}
}

func (h *TransactionHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
	defer cancel()

	transactions, err := h.interactor.List(ctx, r.URL.Query().Get(http2.StatusQuery))
	if err != nil {
		h.logger.Error().Err(err).Msg(errors.ErrFailedListTransactions)
		errors.HandleHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transactions)
}

func (h *TransactionHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
	defer cancel()

	transaction, err := h.interactor.Get(ctx, chi.URLParam(r, http2.TransactionIDParam))
	if err != nil {
		h.logger.Error().Err(err).Msg(errors.ErrFailedListTransactions)
		errors.HandleHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, transaction)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
