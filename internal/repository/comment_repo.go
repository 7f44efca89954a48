package repository

import (
	"context"

	"adcert/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	ListBySubmission(ctx context.Context, submissionID uuid.UUID, includeInternal bool) ([]model.Comment, error)
}

type commentRepository struct {
	db *gorm.DB
}

func NewCommentRepository(db *gorm.DB) CommentRepository {
	return &commentRepository{db: db}
}

func (r *commentRepository) Create(ctx context.Context, comment *model.Comment) error {
	return GetDB(ctx, r.db).Create(comment).Error
}

func (r *commentRepository) ListBySubmission(ctx context.Context, submissionID uuid.UUID, includeInternal bool) ([]model.Comment, error) {
	query := GetDB(ctx, r.db).Preload("Reviewer").Where("submission_id = ?", submissionID)
	if !includeInternal {
		query = query.Where("is_internal = ?", false)
	}

	var comments []model.Comment
	if err := query.Order("created_at ASC").Find(&comments).Error; err != nil {
		return nil, err
	}
	return comments, nil
}
