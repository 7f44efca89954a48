package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/logging"
	"adcert/internal/metrics"
	"adcert/internal/model"
	"adcert/internal/repository"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// --- DTOs ---

type CreateSubmissionRequest struct {
	BrandName           string   `json:"brand_name" validate:"required,max=255"`
	CampaignTitle       string   `json:"campaign_title" validate:"required,max=255"`
	Category            string   `json:"advert_category" validate:"required,oneof=tv radio billboard digital print online"`
	GeographicScope     string   `json:"geographic_scope" validate:"required,oneof=national state lga regional"`
	GeographicDetails   string   `json:"geographic_details" validate:"max=2000"`
	CampaignStartDate   string   `json:"campaign_start_date" validate:"required,datetime=2006-01-02"`
	CampaignEndDate     string   `json:"campaign_end_date" validate:"required,datetime=2006-01-02"`
	CreativeMaterials   []string `json:"creative_materials_urls" validate:"dive,required"`
	SupportingDocuments []string `json:"supporting_documents_urls" validate:"dive,required"`
	Notes               string   `json:"notes"`
	PaymentConfirmed    bool     `json:"payment_confirmed"`
}

type TransitionRequest struct {
	Status     string `json:"status" binding:"required"`
	Comment    string `json:"comment"`
	IsInternal bool   `json:"is_internal"`
}

type SubmissionResponse struct {
	ID                  string   `json:"id"`
	AdvertiserID        string   `json:"advertiser_id"`
	AdvertiserName      string   `json:"advertiser_name"`
	CompanyName         string   `json:"company_name,omitempty"`
	BrandName           string   `json:"brand_name"`
	CampaignTitle       string   `json:"campaign_title"`
	Category            string   `json:"advert_category"`
	GeographicScope     string   `json:"geographic_scope"`
	GeographicDetails   string   `json:"geographic_details"`
	CampaignStartDate   string   `json:"campaign_start_date"`
	CampaignEndDate     string   `json:"campaign_end_date"`
	CreativeMaterials   []string `json:"creative_materials_urls"`
	SupportingDocuments []string `json:"supporting_documents_urls"`
	Notes               string   `json:"notes"`
	PaymentConfirmed    bool     `json:"payment_confirmed"`
	Status              string   `json:"status"`
	ReviewedBy          *string  `json:"reviewed_by"`
	ReviewerName        string   `json:"reviewer_name,omitempty"`
	ReviewedAt          *string  `json:"reviewed_at"`
	SubmittedAt         string   `json:"submitted_at"`
}

type CommentResponse struct {
	ID           string `json:"id"`
	SubmissionID string `json:"submission_id"`
	ReviewerID   string `json:"reviewer_id"`
	ReviewerName string `json:"reviewer_name,omitempty"`
	Comment      string `json:"comment"`
	IsInternal   bool   `json:"is_internal"`
	CreatedAt    string `json:"created_at"`
}

// TransitionResult is what a reviewer sees after moving a submission.
// CommentError is set when the status changed but the comment could not
// be stored.
type TransitionResult struct {
	Submission   SubmissionResponse   `json:"submission"`
	FromStatus   string               `json:"from_status"`
	Comment      *CommentResponse     `json:"comment,omitempty"`
	CommentError string               `json:"comment_error,omitempty"`
	Certificate  *CertificateResponse `json:"certificate,omitempty"`
}

// --- Interface ---

// SubmissionService is the lifecycle manager: it owns submission creation,
// the review state machine and the side effects of each transition.
type SubmissionService interface {
	CreateSubmission(ctx context.Context, advertiserID string, req CreateSubmissionRequest) (*SubmissionResponse, error)
	// Transition moves a submission to req.Status on behalf of a reviewer.
	// When the status change commits but certificate issuance fails, the
	// result is returned together with a CertificateIssuanceFailed error.
	Transition(ctx context.Context, submissionID, actorID string, req TransitionRequest) (*TransitionResult, error)
	ListSubmissions(ctx context.Context, actorID string, status string) ([]SubmissionResponse, error)
	GetSubmission(ctx context.Context, actorID, submissionID string) (*SubmissionResponse, error)
	ListComments(ctx context.Context, actorID, submissionID string) ([]CommentResponse, error)
}

type submissionService struct {
	submissions  repository.SubmissionRepository
	comments     repository.CommentRepository
	profiles     repository.ProfileRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	certificates CertificateService
	events       EventPublisher
	validate     *validator.Validate
	now          Clock
}

func NewSubmissionService(
	submissions repository.SubmissionRepository,
	comments repository.CommentRepository,
	profiles repository.ProfileRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	certificates CertificateService,
	events EventPublisher,
	clock Clock,
) SubmissionService {
	return &submissionService{
		submissions:  submissions,
		comments:     comments,
		profiles:     profiles,
		auditRepo:    auditRepo,
		txManager:    txManager,
		certificates: certificates,
		events:       publisherOrNoop(events),
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		now:          clockOrNow(clock),
	}
}

// --- Implementation ---

func (s *submissionService) CreateSubmission(ctx context.Context, advertiserID string, req CreateSubmissionRequest) (*SubmissionResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, advertiserID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdvertiser {
		return nil, apperr.Unauthorized("only advertisers may create submissions")
	}

	req.BrandName = strings.TrimSpace(req.BrandName)
	req.CampaignTitle = strings.TrimSpace(req.CampaignTitle)
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	start, _ := time.ParseInLocation(dateLayout, req.CampaignStartDate, time.UTC)
	end, _ := time.ParseInLocation(dateLayout, req.CampaignEndDate, time.UTC)
	if end.Before(start) {
		return nil, apperr.InvalidInput("campaign_end_date %s is before campaign_start_date %s", req.CampaignEndDate, req.CampaignStartDate)
	}

	submission := model.Submission{
		AdvertiserID:        actor.ID,
		BrandName:           req.BrandName,
		CampaignTitle:       req.CampaignTitle,
		Category:            model.AdCategory(req.Category),
		GeographicScope:     model.GeographicScope(req.GeographicScope),
		GeographicDetails:   req.GeographicDetails,
		CampaignStartDate:   start,
		CampaignEndDate:     end,
		CreativeMaterials:   datatypes.NewJSONSlice(nonNil(req.CreativeMaterials)),
		SupportingDocuments: datatypes.NewJSONSlice(nonNil(req.SupportingDocuments)),
		Notes:               req.Notes,
		PaymentConfirmed:    req.PaymentConfirmed,
		Status:              model.StatusPending,
		SubmittedAt:         s.now().UTC(),
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.submissions.Create(txCtx, &submission); err != nil {
			return fmt.Errorf("failed to create submission: %w", err)
		}
		return writeAudit(txCtx, s.auditRepo, &actor.ID, model.ActionCreateSubmission, submission.ID.String(), submission.CampaignTitle, map[string]interface{}{
			"brand_name":       submission.BrandName,
			"advert_category":  submission.Category,
			"geographic_scope": submission.GeographicScope,
		})
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordSubmissionCreated(string(submission.Category))
	s.events.Publish("submission.created", actor.ID.String(), map[string]interface{}{
		"submission_id": submission.ID.String(),
		"advertiser_id": actor.ID.String(),
		"status":        submission.Status,
	})

	submission.Advertiser = actor
	resp := toSubmissionResponse(submission)
	return &resp, nil
}

func (s *submissionService) Transition(ctx context.Context, submissionID, actorID string, req TransitionRequest) (*TransitionResult, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if !actor.Role.CanReview() {
		return nil, apperr.Unauthorized("role %s may not review submissions", actor.Role)
	}

	target := model.SubmissionStatus(strings.TrimSpace(req.Status))
	if !target.Valid() {
		return nil, apperr.InvalidInput("unknown status %q", req.Status)
	}

	id, err := parseSubmissionID(submissionID)
	if err != nil {
		return nil, err
	}

	logCtx := logging.WithAttrs(ctx,
		slog.String("submission_id", id.String()),
		slog.String("actor_id", actor.ID.String()),
		slog.String("target", string(target)))

	var (
		from       model.SubmissionStatus
		comment    *model.Comment
		commentErr error
	)
	now := s.now().UTC()
	body := strings.TrimSpace(req.Comment)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.submissions.FindByID(txCtx, id)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperr.NotFound("submission %s not found", id)
			}
			return fmt.Errorf("failed to load submission: %w", err)
		}
		from = current.Status

		if from.Terminal() {
			return apperr.InvalidTransition("submission is %s and can no longer change", from)
		}
		if !from.CanTransitionTo(target) {
			return apperr.InvalidTransition("cannot move submission from %s to %s", from, target)
		}

		changed, err := s.submissions.UpdateStatusIf(txCtx, id, from, target, actor.ID, now)
		if err != nil {
			return fmt.Errorf("failed to update submission status: %w", err)
		}
		if changed == 0 {
			return apperr.InvalidTransition("submission is no longer %s; refresh and retry", from)
		}

		if body != "" {
			c := &model.Comment{
				SubmissionID: id,
				ReviewerID:   actor.ID,
				Body:         body,
				IsInternal:   req.IsInternal,
				CreatedAt:    now,
			}
			commentErr = s.txManager.RunInSavepoint(txCtx, func(spCtx context.Context) error {
				return s.comments.Create(spCtx, c)
			})
			if commentErr == nil {
				comment = c
			}
		}

		if err := writeAudit(txCtx, s.auditRepo, &actor.ID, model.ActionTransitionSubmission, id.String(), string(target), map[string]interface{}{
			"from":             from,
			"to":               target,
			"comment_recorded": comment != nil,
		}); err != nil {
			return err
		}
		if commentErr != nil {
			if err := writeAudit(txCtx, s.auditRepo, &actor.ID, model.ActionCommentDropped, id.String(), string(target), map[string]interface{}{
				"error": commentErr.Error(),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		metrics.RecordTransition(string(from), string(target), strings.ToLower(string(apperr.KindOf(err))))
		return nil, err
	}
	metrics.RecordTransition(string(from), string(target), "success")

	if commentErr != nil {
		logging.Warn(logCtx, "status changed but comment was not recorded", slog.Any("err", commentErr))
	}
	logging.Info(logCtx, "submission transitioned", slog.String("from", string(from)))

	updated, err := s.submissions.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to reload submission: %w", err)
	}

	result := &TransitionResult{
		Submission: toSubmissionResponse(*updated),
		FromStatus: string(from),
	}
	if comment != nil {
		c := toCommentResponse(*comment)
		c.ReviewerName = actor.FullName
		result.Comment = &c
	}
	if commentErr != nil {
		result.CommentError = "comment was not recorded: " + commentErr.Error()
	}

	s.events.Publish("submission.transitioned", updated.AdvertiserID.String(), map[string]interface{}{
		"submission_id": id.String(),
		"advertiser_id": updated.AdvertiserID.String(),
		"from":          from,
		"to":            target,
	})

	if target != model.StatusApproved {
		return result, nil
	}

	cert, err := s.certificates.Issue(ctx, id)
	if err != nil {
		logging.Error(logCtx, "submission approved without certificate", slog.Any("err", err))
		switch apperr.KindOf(err) {
		case apperr.KindCertificateIssuanceFailed, apperr.KindDuplicateCertificate:
			return result, err
		default:
			return result, apperr.Wrap(apperr.KindCertificateIssuanceFailed, err, "submission approved but certificate issuance failed")
		}
	}
	result.Certificate = cert
	return result, nil
}

func (s *submissionService) ListSubmissions(ctx context.Context, actorID string, status string) ([]SubmissionResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}

	filter := repository.SubmissionFilter{}
	if status != "" {
		st := model.SubmissionStatus(status)
		if !st.Valid() {
			return nil, apperr.InvalidInput("unknown status %q", status)
		}
		filter.Status = st
	}
	if !actor.Role.CanReview() {
		filter.AdvertiserID = &actor.ID
	}

	submissions, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}

	result := make([]SubmissionResponse, 0, len(submissions))
	for _, sub := range submissions {
		result = append(result, toSubmissionResponse(sub))
	}
	return result, nil
}

func (s *submissionService) GetSubmission(ctx context.Context, actorID, submissionID string) (*SubmissionResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	sub, err := s.loadVisible(ctx, actor, submissionID)
	if err != nil {
		return nil, err
	}
	resp := toSubmissionResponse(*sub)
	return &resp, nil
}

func (s *submissionService) ListComments(ctx context.Context, actorID, submissionID string) ([]CommentResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	sub, err := s.loadVisible(ctx, actor, submissionID)
	if err != nil {
		return nil, err
	}

	comments, err := s.comments.ListBySubmission(ctx, sub.ID, actor.Role.CanReview())
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	result := make([]CommentResponse, 0, len(comments))
	for _, c := range comments {
		result = append(result, toCommentResponse(c))
	}
	return result, nil
}

// loadVisible hides other advertisers' submissions behind NotFound.
func (s *submissionService) loadVisible(ctx context.Context, actor *model.Profile, submissionID string) (*model.Submission, error) {
	id, err := parseSubmissionID(submissionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.submissions.FindByIDWithRelations(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.NotFound("submission %s not found", id)
		}
		return nil, fmt.Errorf("failed to load submission: %w", err)
	}
	if !canSee(actor, sub) {
		return nil, apperr.NotFound("submission %s not found", id)
	}
	return sub, nil
}

// --- Helpers ---

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperr.Wrap(apperr.KindInvalidInput, err, "invalid submission")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
		}
	}
	return apperr.InvalidInput("invalid submission: %s", strings.Join(msgs, "; "))
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func toSubmissionResponse(s model.Submission) SubmissionResponse {
	resp := SubmissionResponse{
		ID:                  s.ID.String(),
		AdvertiserID:        s.AdvertiserID.String(),
		BrandName:           s.BrandName,
		CampaignTitle:       s.CampaignTitle,
		Category:            string(s.Category),
		GeographicScope:     string(s.GeographicScope),
		GeographicDetails:   s.GeographicDetails,
		CampaignStartDate:   s.CampaignStartDate.UTC().Format(dateLayout),
		CampaignEndDate:     s.CampaignEndDate.UTC().Format(dateLayout),
		CreativeMaterials:   nonNil(s.CreativeMaterials),
		SupportingDocuments: nonNil(s.SupportingDocuments),
		Notes:               s.Notes,
		PaymentConfirmed:    s.PaymentConfirmed,
		Status:              string(s.Status),
		ReviewedAt:          formatTimePtr(s.ReviewedAt),
		SubmittedAt:         s.SubmittedAt.UTC().Format(time.RFC3339),
	}
	if s.Advertiser != nil {
		resp.AdvertiserName = s.Advertiser.FullName
		resp.CompanyName = s.Advertiser.CompanyName
	}
	if s.ReviewedBy != nil && *s.ReviewedBy != uuid.Nil {
		id := s.ReviewedBy.String()
		resp.ReviewedBy = &id
	}
	if s.Reviewer != nil {
		resp.ReviewerName = s.Reviewer.FullName
	}
	return resp
}

func toCommentResponse(c model.Comment) CommentResponse {
	resp := CommentResponse{
		ID:           c.ID.String(),
		SubmissionID: c.SubmissionID.String(),
		ReviewerID:   c.ReviewerID.String(),
		Comment:      c.Body,
		IsInternal:   c.IsInternal,
		CreatedAt:    c.CreatedAt.UTC().Format(time.RFC3339),
	}
	if c.Reviewer != nil {
		resp.ReviewerName = c.Reviewer.FullName
	}
	return resp
}
