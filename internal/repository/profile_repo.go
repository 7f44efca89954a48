package repository

import (
	"context"

	"adcert/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProfileRepository defines data access for actors of the workflow
type ProfileRepository interface {
	Create(ctx context.Context, profile *model.Profile) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error)
	GetByEmail(ctx context.Context, email string) (*model.Profile, error)
}

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) Create(ctx context.Context, profile *model.Profile) error {
	return GetDB(ctx, r.db).Create(profile).Error
}

func (r *profileRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Profile, error) {
	var profile model.Profile
	if err := GetDB(ctx, r.db).First(&profile, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepository) GetByEmail(ctx context.Context, email string) (*model.Profile, error) {
	var profile model.Profile
	if err := GetDB(ctx, r.db).First(&profile, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}
