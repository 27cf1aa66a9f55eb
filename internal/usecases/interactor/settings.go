package interactor

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
	apperrors "github.com/mufasadev/stripe2qbo/internal/errors"
	"github.com/mufasadev/stripe2qbo/pkg/log"
	"github.com/rs/zerolog"
)

type SettingsInteractor struct {
	settingsRepository repositories.SettingsRepository
	resolver           *MappingResolver
	key                models.ConnectionKey
	logger             *zerolog.Logger
}

func NewSettingsInteractor(settingsRepository repositories.SettingsRepository, resolver *MappingResolver, key models.ConnectionKey) *SettingsInteractor {
	l := log.GetLogger()
	return &SettingsInteractor{
		settingsRepository: settingsRepository,
		resolver:           resolver,
		key:                key,
		logger:             &l,
	}
}

// Get returns the saved mapping, or an empty one when nothing was saved yet.
func (i *SettingsInteractor) Get(ctx context.Context) (*models.Settings, error) {
	s, err := i.settingsRepository.Get(ctx, i.key)
	if err != nil {
		i.logger.Error().Err(err).Msg(apperrors.ErrFailedLoadSettings)
		return nil, err
	}
	if s == nil {
		s = &models.Settings{}
	}
	return s, nil
}

func (i *SettingsInteractor) Save(ctx context.Context, settings *models.Settings) (*models.Settings, error) {
	if err := i.settingsRepository.Save(ctx, i.key, settings); err != nil {
		i.logger.Error().Err(err).Msg(apperrors.ErrFailedSaveSettings)
		return nil, err
	}
	i.resolver.Invalidate()
	i.logger.Info().
		Str("stripe_account_id", i.key.StripeAccountID).
		Str("realm_id", i.key.RealmID).
		Msg("settings saved")
	return settings, nil
}

func (i *SettingsInteractor) Check(ctx context.Context) ([]apperrors.FieldProblem, error) {
	problems, err := i.resolver.Check(ctx)
	if err != nil {
		i.logger.Error().Err(err).Msg(apperrors.ErrFailedCheckSettings)
		return nil, err
	}
	return problems, nil
}
