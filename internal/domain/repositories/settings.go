package repositories

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
)

type SettingsRepository interface {
	// Get returns nil without error when nothing was saved for key.
	Get(ctx context.Context, key models.ConnectionKey) (*models.Settings, error)
	Save(ctx context.Context, key models.ConnectionKey, settings *models.Settings) error
}
