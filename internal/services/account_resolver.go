package services

import (
	"context"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/leadpulse/backend/internal/models"
	"go.uber.org/zap"
	"golang.org/x/crypto/chacha20poly1305"
)

// AccountSettingsRepository is the settings store mapping upstream accounts to brands
type AccountSettingsRepository interface {
	GetByAccountID(ctx context.Context, accountID string) (*models.AccountSettings, error)
	GetByBrandID(ctx context.Context, brandID int) (*models.AccountSettings, error)
}

// ResolvedAccount is an upstream account with its brand and decrypted credential.
// APIKey is empty when no usable credential is stored.
type ResolvedAccount struct {
	AccountID string
	BrandID   int
	APIKey    string
}

type accountResolver struct {
	repo   AccountSettingsRepository
	aead   cipher.AEAD
	logger *zap.Logger
}

// NewAccountResolver creates a resolver. keyHex is the 32-byte credential key in hex; an
// empty key disables decryption and every stored credential is treated as absent.
func NewAccountResolver(repo AccountSettingsRepository, keyHex string, logger *zap.Logger) (*accountResolver, error) {
	r := &accountResolver{repo: repo, logger: logger}
	if keyHex == "" {
		return r, nil
	}

	aead, err := newCredentialAEAD(keyHex)
	if err != nil {
		return nil, err
	}
	r.aead = aead
	return r, nil
}

func newCredentialAEAD(keyHex string) (cipher.AEAD, error) {
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("credential key must be hex encoded: %w", err)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("invalid credential key: %w", err)
	}
	return aead, nil
}

// Resolve maps an upstream account id to its brand and credential
func (r *accountResolver) Resolve(ctx context.Context, accountID string) (*ResolvedAccount, error) {
	settings, err := r.repo.GetByAccountID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return r.resolved(settings), nil
}

// ResolveBrand returns the first account configured for a brand
func (r *accountResolver) ResolveBrand(ctx context.Context, brandID int) (*ResolvedAccount, error) {
	settings, err := r.repo.GetByBrandID(ctx, brandID)
	if err != nil {
		return nil, err
	}
	return r.resolved(settings), nil
}

func (r *accountResolver) resolved(settings *models.AccountSettings) *ResolvedAccount {
	account := &ResolvedAccount{AccountID: settings.AccountID, BrandID: settings.BrandID}
	if settings.EncryptedAPIKey == "" {
		return account
	}

	key, err := r.decrypt(settings.EncryptedAPIKey)
	if err != nil {
		r.logger.Warn("failed to decrypt account credential",
			zap.String("account_id", settings.AccountID),
			zap.Error(err),
		)
		return account
	}
	account.APIKey = key
	return account
}

func (r *accountResolver) decrypt(encoded string) (string, error) {
	if r.aead == nil {
		return "", errors.New("credential key is not configured")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode credential: %w", err)
	}
	if len(data) < r.aead.NonceSize()+r.aead.Overhead() {
		return "", errors.New("credential ciphertext is too short")
	}

	nonce, ciphertext := data[:r.aead.NonceSize()], data[r.aead.NonceSize():]
	plaintext, err := r.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to open credential: %w", err)
	}
	return string(plaintext), nil
}

// EncryptCredential seals a credential in the format stored in account_settings:
// base64 of nonce followed by the XChaCha20-Poly1305 ciphertext
func EncryptCredential(keyHex, plaintext string) (string, error) {
	aead, err := newCredentialAEAD(keyHex)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}
