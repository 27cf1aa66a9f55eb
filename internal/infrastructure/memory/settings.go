package memory

import (
	"context"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"sync"
)

type SettingsRepository struct {
	mu       sync.RWMutex
	settings map[models.ConnectionKey]models.Settings
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{settings: make(map[models.ConnectionKey]models.Settings)}
}

func (r *SettingsRepository) Get(ctx context.Context, key models.ConnectionKey) (*models.Settings, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.settings[key]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, key models.ConnectionKey, settings *models.Settings) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.settings[key] = *settings
	return nil
}
