package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateSubmission       = "CREATE_SUBMISSION"
	ActionTransitionSubmission   = "TRANSITION_SUBMISSION"
	ActionCommentDropped         = "COMMENT_DROPPED"
	ActionIssueCertificate       = "ISSUE_CERTIFICATE"
	ActionCertificateIssueFailed = "CERTIFICATE_ISSUE_FAILED"
	ActionRevokeCertificate      = "REVOKE_CERTIFICATE"
	ActionRegisterProfile        = "REGISTER_PROFILE"
)

// AuditLog tracks Who, What, and When for workflow changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system actions
	User       *Profile   `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
