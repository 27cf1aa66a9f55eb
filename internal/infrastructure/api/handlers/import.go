package handlers

import (
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"net/http"
)

type ImportHandler struct {
	interactor *interactor.ImportInteractor
	logger     *zerolog.Logger
}

func NewImportHandler(interactor *interactor.ImportInteractor) *ImportHandler {
	logger := log.GetLogger()
	return &ImportHandler{interactor: interactor, logger: &logger}
}

// ImportTransactions pulls the source ledger activity of the requested days into the store.
func (h *ImportHandler) ImportTransactions(w http.ResponseWriter, r *http.Request) {
	dr, ok := http2.DateRangeFrom(r.Context())
	if !ok {
		errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrDateRangeRequired))
		return
	}

	imported, err := h.interactor.ImportRange(r.Context(), dr.From, dr.To)
	if err != nil {
		h.logger.Error().Err(err).Msg(errors.ErrFailedImportTransactions)
		errors.HandleHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, struct {
		Imported int `json:"imported"`
	}{Imported: imported})
}
