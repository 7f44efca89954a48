package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmissionStatus is the review state of a submission.
type SubmissionStatus string

const (
	StatusPending         SubmissionStatus = "pending"
	StatusUnderReview     SubmissionStatus = "under_review"
	StatusApproved        SubmissionStatus = "approved"
	StatusRejected        SubmissionStatus = "rejected"
	StatusRequiresChanges SubmissionStatus = "requires_changes"
)

// transitions lists, per state, the states a reviewer may move to.
// Terminal states have no entry.
var transitions = map[SubmissionStatus][]SubmissionStatus{
	StatusPending:         {StatusUnderReview, StatusApproved, StatusRejected, StatusRequiresChanges},
	StatusUnderReview:     {StatusApproved, StatusRejected, StatusRequiresChanges},
	StatusRequiresChanges: {StatusUnderReview, StatusApproved, StatusRejected},
}

func (s SubmissionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusUnderReview, StatusApproved, StatusRejected, StatusRequiresChanges:
		return true
	}
	return false
}

func (s SubmissionStatus) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo reports whether a reviewer may move from s to target.
func (s SubmissionStatus) CanTransitionTo(target SubmissionStatus) bool {
	for _, next := range transitions[s] {
		if next == target {
			return true
		}
	}
	return false
}

// AllowedTargets returns a copy of the states reachable from s.
func (s SubmissionStatus) AllowedTargets() []SubmissionStatus {
	return append([]SubmissionStatus(nil), transitions[s]...)
}

// AdCategory is the medium a campaign runs on.
type AdCategory string

const (
	CategoryTV        AdCategory = "tv"
	CategoryRadio     AdCategory = "radio"
	CategoryBillboard AdCategory = "billboard"
	CategoryDigital   AdCategory = "digital"
	CategoryPrint     AdCategory = "print"
	CategoryOnline    AdCategory = "online"
)

func (c AdCategory) Valid() bool {
	switch c {
	case CategoryTV, CategoryRadio, CategoryBillboard, CategoryDigital, CategoryPrint, CategoryOnline:
		return true
	}
	return false
}

// GeographicScope is how far a campaign reaches.
type GeographicScope string

const (
	ScopeNational GeographicScope = "national"
	ScopeState    GeographicScope = "state"
	ScopeLGA      GeographicScope = "lga"
	ScopeRegional GeographicScope = "regional"
)

func (g GeographicScope) Valid() bool {
	switch g {
	case ScopeNational, ScopeState, ScopeLGA, ScopeRegional:
		return true
	}
	return false
}

// Submission is an advertiser's request for campaign approval. Rows are
// never deleted; they are the audit record of the review.
type Submission struct {
	ID                  uuid.UUID                   `gorm:"type:uuid;primaryKey" json:"id"`
	AdvertiserID        uuid.UUID                   `gorm:"type:uuid;not null;index" json:"advertiser_id"`
	Advertiser          *Profile                    `gorm:"foreignKey:AdvertiserID" json:"advertiser,omitempty"`
	BrandName           string                      `gorm:"type:varchar(255);not null" json:"brand_name"`
	CampaignTitle       string                      `gorm:"type:varchar(255);not null" json:"campaign_title"`
	Category            AdCategory                  `gorm:"type:varchar(20);not null;index" json:"advert_category"`
	GeographicScope     GeographicScope             `gorm:"type:varchar(20);not null" json:"geographic_scope"`
	GeographicDetails   string                      `gorm:"type:text" json:"geographic_details"`
	CampaignStartDate   time.Time                   `gorm:"not null" json:"campaign_start_date"`
	CampaignEndDate     time.Time                   `gorm:"not null" json:"campaign_end_date"`
	CreativeMaterials   datatypes.JSONSlice[string] `json:"creative_materials_urls"`
	SupportingDocuments datatypes.JSONSlice[string] `json:"supporting_documents_urls"`
	Notes               string                      `gorm:"type:text" json:"notes"`
	PaymentConfirmed    bool                        `gorm:"not null;default:false" json:"payment_confirmed"`
	Status              SubmissionStatus            `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ReviewedBy          *uuid.UUID                  `gorm:"type:uuid" json:"reviewed_by"`
	Reviewer            *Profile                    `gorm:"foreignKey:ReviewedBy" json:"reviewer,omitempty"`
	ReviewedAt          *time.Time                  `json:"reviewed_at"`
	SubmittedAt         time.Time                   `gorm:"not null;index" json:"submitted_at"`
	CreatedAt           time.Time                   `json:"created_at"`
	UpdatedAt           time.Time                   `json:"updated_at"`
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
