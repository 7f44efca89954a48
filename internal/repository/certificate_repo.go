package repository

import (
	"context"

	"adcert/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CertificateRepository interface {
	Create(ctx context.Context, cert *model.Certificate) error
	NumberExists(ctx context.Context, number string) (bool, error)
	FindByNumber(ctx context.Context, number string) (*model.Certificate, error)
	FindBySubmissionID(ctx context.Context, submissionID uuid.UUID) (*model.Certificate, error)
	Deactivate(ctx context.Context, number string) (int64, error)
}

type certificateRepository struct {
	db *gorm.DB
}

func NewCertificateRepository(db *gorm.DB) CertificateRepository {
	return &certificateRepository{db: db}
}

func (r *certificateRepository) Create(ctx context.Context, cert *model.Certificate) error {
	return GetDB(ctx, r.db).Create(cert).Error
}

func (r *certificateRepository) NumberExists(ctx context.Context, number string) (bool, error) {
	var count int64
	if err := GetDB(ctx, r.db).Model(&model.Certificate{}).
		Where("certificate_number = ?", number).
		Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindByNumber loads the certificate with its submission and advertiser,
// which together form the public verification details.
func (r *certificateRepository) FindByNumber(ctx context.Context, number string) (*model.Certificate, error) {
	var cert model.Certificate
	if err := GetDB(ctx, r.db).
		Preload("Submission").
		Preload("Submission.Advertiser").
		First(&cert, "certificate_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) FindBySubmissionID(ctx context.Context, submissionID uuid.UUID) (*model.Certificate, error) {
	var cert model.Certificate
	if err := GetDB(ctx, r.db).
		Preload("Submission").
		Preload("Submission.Advertiser").
		First(&cert, "submission_id = ?", submissionID).Error; err != nil {
		return nil, err
	}
	return &cert, nil
}

func (r *certificateRepository) Deactivate(ctx context.Context, number string) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Certificate{}).
		Where("certificate_number = ?", number).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}
