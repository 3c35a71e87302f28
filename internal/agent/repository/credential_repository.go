package repository

import (
	"context"
	"errors"
	"strings"

	"mailagent-backend/internal/agent/domain"

	"gorm.io/gorm"
)

// credentialRepository implements CredentialRepository interface
type credentialRepository struct {
	db *gorm.DB
}

// NewCredentialRepository creates a new instance of credentialRepository
func NewCredentialRepository(db *gorm.DB) CredentialRepository {
	return &credentialRepository{
		db: db,
	}
}

func (r *credentialRepository) Get(ctx context.Context, userID string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) Upsert(ctx context.Context, userID string, update domain.CredentialUpdate) (*domain.Credential, error) {
	if userID == "" {
		return nil, errors.New("user id is required")
	}

	var cred domain.Credential
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Where("user_id = ?", userID).First(&cred).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			cred = domain.Credential{UserID: userID}
			update.Apply(&cred)
			return tx.Create(&cred).Error
		}
		if err != nil {
			return err
		}
		update.Apply(&cred)
		return tx.Save(&cred).Error
	})
	if err != nil {
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) FindByEmail(ctx context.Context, email string) (*domain.Credential, error) {
	var cred domain.Credential
	err := r.db.WithContext(ctx).Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).First(&cred).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &cred, nil
}

func (r *credentialRepository) ListActive(ctx context.Context) ([]*domain.Credential, error) {
	var creds []*domain.Credential
	err := r.db.WithContext(ctx).Where("agent_active = ?", true).Order("user_id").Find(&creds).Error
	if err != nil {
		return nil, err
	}
	return creds, nil
}
