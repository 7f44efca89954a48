package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CertificatePrefix starts every certificate number: ARCON-YYYY-NNNNNN.
const CertificatePrefix = "ARCON"

// Certificate is the proof of approval handed to the advertiser. Number,
// payload and validity window never change after creation; only IsActive
// may be cleared by a revocation.
type Certificate struct {
	ID                uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	CertificateNumber string      `gorm:"type:varchar(20);uniqueIndex;not null" json:"certificate_number"`
	SubmissionID      uuid.UUID   `gorm:"type:uuid;uniqueIndex;not null" json:"submission_id"`
	Submission        *Submission `gorm:"foreignKey:SubmissionID" json:"submission,omitempty"`
	QRCodeData        string      `gorm:"type:text;not null" json:"qr_code_data"`
	IssuedAt          time.Time   `gorm:"not null" json:"issued_at"`
	ValidFrom         time.Time   `gorm:"not null" json:"valid_from"`
	ValidUntil        time.Time   `gorm:"not null" json:"valid_until"`
	IsActive          bool        `gorm:"not null;default:true" json:"is_active"`
	CreatedAt         time.Time   `json:"created_at"`
}

func (c *Certificate) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
