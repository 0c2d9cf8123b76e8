package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/leadpulse/backend/internal/models"
)

type accountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new account settings repository
func NewAccountRepository(db *sql.DB) *accountRepository {
	return &accountRepository{db: db}
}

// GetByAccountID retrieves the settings of an upstream account
func (r *accountRepository) GetByAccountID(ctx context.Context, accountID string) (*models.AccountSettings, error) {
	query := `
		SELECT account_id, brand_id, COALESCE(encrypted_api_key, '')
		FROM account_settings
		WHERE account_id = ?
		LIMIT 1
	`
	return r.getOne(ctx, query, accountID)
}

// GetByBrandID retrieves the first account settings row of a brand
func (r *accountRepository) GetByBrandID(ctx context.Context, brandID int) (*models.AccountSettings, error) {
	query := `
		SELECT account_id, brand_id, COALESCE(encrypted_api_key, '')
		FROM account_settings
		WHERE brand_id = ?
		ORDER BY created_at ASC
		LIMIT 1
	`
	return r.getOne(ctx, query, brandID)
}

func (r *accountRepository) getOne(ctx context.Context, query string, arg any) (*models.AccountSettings, error) {
	settings := &models.AccountSettings{}
	err := r.db.QueryRowContext(ctx, query, arg).Scan(&settings.AccountID, &settings.BrandID, &settings.EncryptedAPIKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account settings: %w", err)
	}
	return settings, nil
}
