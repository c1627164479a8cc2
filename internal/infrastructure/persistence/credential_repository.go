package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oms/backend/internal/domain/integration"
	"github.com/oms/backend/internal/infrastructure/persistence/models"
	"github.com/oms/backend/internal/infrastructure/vault"
)

// GormCredentialRepository implements the integration.CredentialRepository
// interface. Credential maps are sealed through the vault on the way in and
// opened on the way out; the database only ever sees ciphertext.
type GormCredentialRepository struct {
	db    *gorm.DB
	vault *vault.CredentialVault
}

// NewGormCredentialRepository creates a new credential repository
func NewGormCredentialRepository(db *gorm.DB, v *vault.CredentialVault) *GormCredentialRepository {
	return &GormCredentialRepository{db: db, vault: v}
}

var _ integration.CredentialRepository = (*GormCredentialRepository)(nil)

// Save upserts the credential set for (type, code).
func (r *GormCredentialRepository) Save(ctx context.Context, cred *integration.ProviderCredential) error {
	if cred.Code == "" {
		return fmt.Errorf("%w: provider code is required", integration.ErrProviderNotConfigured)
	}
	ciphertext, err := r.vault.EncryptToString(cred.Credentials)
	if err != nil {
		return fmt.Errorf("failed to seal credentials for %s/%s: %w", cred.Type, cred.Code, err)
	}

	model := &models.ProviderCredentialModel{
		ProviderType: string(cred.Type),
		ProviderCode: cred.Code,
		Ciphertext:   ciphertext,
		Active:       cred.Active,
	}
	model.ID = uuid.New()

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_type"}, {Name: "provider_code"}},
		DoUpdates: clause.AssignmentColumns([]string{"ciphertext", "active", "updated_at"}),
	}).Create(model).Error
}

// Get returns the decrypted credential set for (type, code).
func (r *GormCredentialRepository) Get(ctx context.Context, typ integration.ProviderType, code string) (*integration.ProviderCredential, error) {
	var model models.ProviderCredentialModel
	err := r.db.WithContext(ctx).
		Where("provider_type = ? AND provider_code = ?", string(typ), code).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: no credentials for %s/%s", integration.ErrProviderNotConfigured, typ, code)
		}
		return nil, fmt.Errorf("failed to load credentials for %s/%s: %w", typ, code, err)
	}
	return r.open(&model)
}

// List returns all credentials of the given type, decrypted.
func (r *GormCredentialRepository) List(ctx context.Context, typ integration.ProviderType) ([]*integration.ProviderCredential, error) {
	var rows []models.ProviderCredentialModel
	err := r.db.WithContext(ctx).
		Where("provider_type = ?", string(typ)).
		Order("provider_code ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s credentials: %w", typ, err)
	}

	creds := make([]*integration.ProviderCredential, 0, len(rows))
	for i := range rows {
		cred, err := r.open(&rows[i])
		if err != nil {
			return nil, err
		}
		creds = append(creds, cred)
	}
	return creds, nil
}

// Delete removes the credential set for (type, code).
func (r *GormCredentialRepository) Delete(ctx context.Context, typ integration.ProviderType, code string) error {
	result := r.db.WithContext(ctx).
		Where("provider_type = ? AND provider_code = ?", string(typ), code).
		Delete(&models.ProviderCredentialModel{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete credentials for %s/%s: %w", typ, code, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: no credentials for %s/%s", integration.ErrProviderNotConfigured, typ, code)
	}
	return nil
}

// RotateKey re-seals every stored row under newKey in one transaction, then
// swaps the vault's bound key. A row that fails to re-seal rolls back the
// whole rotation and leaves the current key in place, so the table is never
// split across two keys. Returns the number of rows rotated.
func (r *GormCredentialRepository) RotateKey(ctx context.Context, newKey []byte) (int, error) {
	rotated := 0
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var rows []models.ProviderCredentialModel
		if err := tx.Find(&rows).Error; err != nil {
			return fmt.Errorf("failed to list credentials for rotation: %w", err)
		}
		for i := range rows {
			row := &rows[i]
			var blob vault.EncryptedBlob
			if err := json.Unmarshal([]byte(row.Ciphertext), &blob); err != nil {
				return fmt.Errorf("malformed ciphertext for %s/%s: %w", row.ProviderType, row.ProviderCode, err)
			}
			resealed, err := r.vault.ReEncrypt(&blob, newKey)
			if err != nil {
				return fmt.Errorf("failed to re-seal credentials for %s/%s: %w", row.ProviderType, row.ProviderCode, err)
			}
			raw, err := json.Marshal(resealed)
			if err != nil {
				return fmt.Errorf("failed to marshal re-sealed blob for %s/%s: %w", row.ProviderType, row.ProviderCode, err)
			}
			if err := tx.Model(&models.ProviderCredentialModel{}).
				Where("id = ?", row.ID).
				Update("ciphertext", string(raw)).Error; err != nil {
				return fmt.Errorf("failed to store re-sealed credentials for %s/%s: %w", row.ProviderType, row.ProviderCode, err)
			}
			rotated++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if err := r.vault.RotateKey(newKey); err != nil {
		return 0, err
	}
	return rotated, nil
}

func (r *GormCredentialRepository) open(model *models.ProviderCredentialModel) (*integration.ProviderCredential, error) {
	var secrets integration.Credentials
	if err := r.vault.DecryptFromString(model.Ciphertext, &secrets); err != nil {
		return nil, fmt.Errorf("failed to open credentials for %s/%s: %w", model.ProviderType, model.ProviderCode, err)
	}
	return &integration.ProviderCredential{
		Type:        integration.ProviderType(model.ProviderType),
		Code:        model.ProviderCode,
		Credentials: secrets,
		Active:      model.Active,
		UpdatedAt:   model.UpdatedAt,
	}, nil
}
