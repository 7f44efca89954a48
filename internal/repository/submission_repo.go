package repository

import (
	"context"
	"time"

	"adcert/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SubmissionFilter narrows List. Zero values mean "any".
type SubmissionFilter struct {
	AdvertiserID *uuid.UUID
	Status       model.SubmissionStatus
}

type SubmissionRepository interface {
	Create(ctx context.Context, submission *model.Submission) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)
	// UpdateStatusIf moves the submission to target only while its status
	// still equals expected. It returns the number of rows changed.
	UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target model.SubmissionStatus, reviewerID uuid.UUID, at time.Time) (int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Create(ctx context.Context, submission *model.Submission) error {
	return GetDB(ctx, r.db).Create(submission).Error
}

func (r *submissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var submission model.Submission
	if err := GetDB(ctx, r.db).First(&submission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var submission model.Submission
	if err := GetDB(ctx, r.db).Preload("Advertiser").Preload("Reviewer").First(&submission, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &submission, nil
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error) {
	query := GetDB(ctx, r.db).Preload("Advertiser").Preload("Reviewer")
	if filter.AdvertiserID != nil {
		query = query.Where("advertiser_id = ?", *filter.AdvertiserID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var submissions []model.Submission
	if err := query.Order("submitted_at DESC").Order("created_at DESC").Find(&submissions).Error; err != nil {
		return nil, err
	}
	return submissions, nil
}

func (r *submissionRepository) UpdateStatusIf(ctx context.Context, id uuid.UUID, expected, target model.SubmissionStatus, reviewerID uuid.UUID, at time.Time) (int64, error) {
	res := GetDB(ctx, r.db).Model(&model.Submission{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(map[string]interface{}{
			"status":      target,
			"reviewed_by": reviewerID,
			"reviewed_at": at,
			"updated_at":  at,
		})
	return res.RowsAffected, res.Error
}
