package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is the capability an actor holds in the certification workflow.
type Role string

const (
	RoleAdvertiser Role = "advertiser"
	RoleReviewer   Role = "reviewer"
	RoleAdmin      Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleAdvertiser, RoleReviewer, RoleAdmin:
		return true
	}
	return false
}

// CanReview reports whether the role may move submissions through review.
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// Profile is an actor of the portal: an advertiser submitting campaigns,
// a reviewer working the queue, or an administrator.
type Profile struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Email       string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	FullName    string    `gorm:"type:varchar(255);not null" json:"full_name"`
	CompanyName string    `gorm:"type:varchar(255)" json:"company_name"`
	Phone       string    `gorm:"type:varchar(20)" json:"phone"`
	Password    string    `gorm:"type:varchar(255);not null" json:"-"`
	Role        Role      `gorm:"type:varchar(20);not null;index" json:"role"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *Profile) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
