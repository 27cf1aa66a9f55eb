package repositories

import (
	"context"
	"errors"
	"fmt"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mufasadev/stripe2qbo/internal/domain/models"
	"github.com/mufasadev/stripe2qbo/internal/domain/repositories"
)

type SettingsRepositoryImpl struct {
	db *pgxpool.Pool
}

func NewSettingsRepositoryImpl(db *pgxpool.Pool) repositories.SettingsRepository {
	return &SettingsRepositoryImpl{
		db: db,
	}
}

const selectSettings = `
SELECT stripe_clearing_account_id, stripe_payout_account_id, stripe_vendor_id, stripe_fee_account_id,
       default_income_account_id, default_tax_code_id, exempt_tax_code_id
FROM sync_settings
WHERE stripe_account_id = $1 AND qbo_realm_id = $2;`

func (r *SettingsRepositoryImpl) Get(ctx context.Context, key models.ConnectionKey) (*models.Settings, error) {
	s := &models.Settings{}
	err := r.db.QueryRow(ctx, selectSettings, key.StripeAccountID, key.RealmID).Scan(
		&s.ClearingAccountID,
		&s.PayoutAccountID,
		&s.VendorID,
		&s.FeeAccountID,
		&s.IncomeAccountID,
		&s.DefaultTaxCodeID,
		&s.ExemptTaxCodeID,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	return s, nil
}

const upsertSettings = `
INSERT INTO sync_settings (stripe_account_id, qbo_realm_id,
                           stripe_clearing_account_id, stripe_payout_account_id, stripe_vendor_id,
                           stripe_fee_account_id, default_income_account_id, default_tax_code_id,
                           exempt_tax_code_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (stripe_account_id, qbo_realm_id) DO UPDATE
SET stripe_clearing_account_id = EXCLUDED.stripe_clearing_account_id,
    stripe_payout_account_id   = EXCLUDED.stripe_payout_account_id,
    stripe_vendor_id           = EXCLUDED.stripe_vendor_id,
    stripe_fee_account_id      = EXCLUDED.stripe_fee_account_id,
    default_income_account_id  = EXCLUDED.default_income_account_id,
    default_tax_code_id        = EXCLUDED.default_tax_code_id,
    exempt_tax_code_id         = EXCLUDED.exempt_tax_code_id,
    updated_at                 = now();`

func (r *SettingsRepositoryImpl) Save(ctx context.Context, key models.ConnectionKey, settings *models.Settings) error {
	_, err := r.db.Exec(ctx, upsertSettings,
		key.StripeAccountID,
		key.RealmID,
		settings.ClearingAccountID,
		settings.PayoutAccountID,
		settings.VendorID,
		settings.FeeAccountID,
		settings.IncomeAccountID,
		settings.DefaultTaxCodeID,
		settings.ExemptTaxCodeID,
	)
	if err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	return nil
}
