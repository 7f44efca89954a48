package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Comment is a reviewer note attached to a submission by a transition.
// Internal comments are never shown to the advertiser.
type Comment struct {
	ID           uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SubmissionID uuid.UUID `gorm:"type:uuid;not null;index" json:"submission_id"`
	ReviewerID   uuid.UUID `gorm:"type:uuid;not null;index" json:"reviewer_id"`
	Reviewer     *Profile  `gorm:"foreignKey:ReviewerID" json:"reviewer,omitempty"`
	Body         string    `gorm:"type:text;not null" json:"comment"`
	IsInternal   bool      `gorm:"not null;default:false" json:"is_internal"`
	CreatedAt    time.Time `gorm:"index" json:"created_at"`
}

func (Comment) TableName() string {
	return "submission_comments"
}

func (c *Comment) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
