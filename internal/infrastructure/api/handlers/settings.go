package handlers

import (
	"context"
	"encoding/json"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/errors"
	http2 "github.com/mufasadev/stripe2qbo/internal/infrastructure/api/http"
	"github.com/mufasadev/stripe2qbo/internal/usecases/interactor"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
	"net/http"
)

type SettingsHandler struct {
	interactor *interactor.SettingsInteractor
	logger     *zerolog.Logger
}

func NewSettingsHandler(interactor *interactor.SettingsInteractor) *SettingsHandler {
	logger := log.GetLogger()
	return &SettingsHandler{interactor: interactor, logger: &logger}
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
	defer cancel()

	settings, err := h.interactor.Get(ctx)
	if err != nil {
		errors.HandleHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var settings models.Settings
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&settings); err != nil {
		h.logger.Error().Err(err).Msg(errors.ErrFailedDecodeRequestBody)
		errors.HandleHTTPError(w, errors.NewBadRequestError(errors.ErrInvalidRequestBody))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
	defer cancel()

	saved, err := h.interactor.Save(ctx, &settings)
	if err != nil {
		errors.HandleHTTPError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, saved)
}

// CheckSettings lists the settings fields that are unset or no longer exist in the target ledger.
func (h *SettingsHandler) CheckSettings(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), http2.RequestTimeout)
	defer cancel()

	problems, err := h.interactor.Check(ctx)
	if err != nil {
		errors.HandleHTTPError(w, err)
		return
	}
	if problems == nil {
		problems = []errors.FieldProblem{}
	}

	writeJSON(w, http.StatusOK, struct {
		Problems []errors.FieldProblem `json:"problems"`
	}{Problems: problems})
}
