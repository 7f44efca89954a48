package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/logging"
	"adcert/internal/metrics"
	"adcert/internal/model"
	"adcert/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

// VerificationStatus is the public classification of a certificate number.
type VerificationStatus string

const (
	VerificationValid   VerificationStatus = "VALID"
	VerificationExpired VerificationStatus = "EXPIRED"
	// VerificationInvalid covers unknown numbers, deactivated certificates
	// and certificates whose window has not started.
	VerificationInvalid VerificationStatus = "INVALID"
)

type CertificateResponse struct {
	ID                string `json:"id"`
	CertificateNumber string `json:"certificate_number"`
	SubmissionID      string `json:"submission_id"`
	QRCodeData        string `json:"qr_code_data"`
	IssuedAt          string `json:"issued_at"`
	ValidFrom         string `json:"valid_from"`
	ValidUntil        string `json:"valid_until"`
	IsActive          bool   `json:"is_active"`
}

// CertificateDetails are the fields any anonymous verifier may see.
type CertificateDetails struct {
	CertificateNumber string `json:"certificate_number"`
	CampaignTitle     string `json:"campaign_title"`
	BrandName         string `json:"brand_name"`
	Category          string `json:"advert_category"`
	GeographicScope   string `json:"geographic_scope"`
	AdvertiserName    string `json:"advertiser_name"`
	CompanyName       string `json:"company_name,omitempty"`
	IssuedAt          string `json:"issued_at"`
	ValidFrom         string `json:"valid_from"`
	ValidUntil        string `json:"valid_until"`
	IsActive          bool   `json:"is_active"`
}

type VerificationResult struct {
	Status  VerificationStatus  `json:"status"`
	Details *CertificateDetails `json:"details,omitempty"`
}

// CertificateOptions tunes issuance. Zero values fall back to defaults.
type CertificateOptions struct {
	VerifyBaseURL string
	MaxAttempts   int
	ValidityDays  int
	Clock         Clock
	// Draw returns a number in [0, 1000000) for the certificate sequence.
	Draw func() (int, error)
}

// --- Interface ---

type CertificateService interface {
	// Issue mints the certificate for an approved submission. It is called
	// by the lifecycle manager and by the operator retry, never by a route
	// an advertiser can reach.
	Issue(ctx context.Context, submissionID uuid.UUID) (*CertificateResponse, error)
	RetryIssuance(ctx context.Context, actorID, submissionID string) (*CertificateResponse, error)
	Verify(ctx context.Context, number string) (VerificationResult, error)
	Revoke(ctx context.Context, actorID, number string) (*CertificateResponse, error)
	GetForSubmission(ctx context.Context, actorID, submissionID string) (*CertificateResponse, error)
}

type certificateService struct {
	certificates repository.CertificateRepository
	submissions  repository.SubmissionRepository
	profiles     repository.ProfileRepository
	auditRepo    repository.AuditRepository
	txManager    repository.TransactionManager
	events       EventPublisher

	verifyBaseURL string
	maxAttempts   int
	validityDays  int
	now           Clock
	draw          func() (int, error)
}

func NewCertificateService(
	certificates repository.CertificateRepository,
	submissions repository.SubmissionRepository,
	profiles repository.ProfileRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	events EventPublisher,
	opts CertificateOptions,
) CertificateService {
	s := &certificateService{
		certificates:  certificates,
		submissions:   submissions,
		profiles:      profiles,
		auditRepo:     auditRepo,
		txManager:     txManager,
		events:        publisherOrNoop(events),
		verifyBaseURL: strings.TrimRight(opts.VerifyBaseURL, "/"),
		maxAttempts:   opts.MaxAttempts,
		validityDays:  opts.ValidityDays,
		now:           clockOrNow(opts.Clock),
		draw:          opts.Draw,
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 5
	}
	if s.validityDays <= 0 {
		s.validityDays = 365
	}
	if s.draw == nil {
		s.draw = randomSequence
	}
	return s
}

const sequenceSpace = 1_000_000

func randomSequence() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(sequenceSpace))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}

// FormatCertificateNumber renders ARCON-YYYY-NNNNNN.
func FormatCertificateNumber(year, seq int) string {
	return fmt.Sprintf("%s-%04d-%06d", model.CertificatePrefix, year, seq)
}

// errNumberTaken signals a collision on the drawn number; the caller draws again.
var errNumberTaken = errors.New("certificate number already taken")

// --- Implementation ---

func (s *certificateService) Issue(ctx context.Context, submissionID uuid.UUID) (*CertificateResponse, error) {
	start := time.Now()
	result := "failure"
	defer func() {
		metrics.RecordCertificateIssueDuration(result, time.Since(start).Seconds())
	}()

	logCtx := logging.WithAttrs(ctx, slog.String("submission_id", submissionID.String()))

	var lastErr error
	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		seq, err := s.draw()
		if err != nil {
			lastErr = fmt.Errorf("draw certificate sequence: %w", err)
			break
		}
		if seq < 0 || seq >= sequenceSpace {
			lastErr = fmt.Errorf("certificate sequence %d out of range", seq)
			break
		}

		number := FormatCertificateNumber(s.now().UTC().Year(), seq)
		cert, err := s.tryIssue(ctx, submissionID, number)
		if err == nil {
			result = "success"
			logging.Info(logCtx, "certificate issued",
				slog.String("certificate_number", cert.CertificateNumber),
				slog.Int("attempt", attempt))
			advertiserID := cert.Submission.AdvertiserID.String()
			s.events.Publish("certificate.issued", advertiserID, map[string]interface{}{
				"submission_id":      submissionID.String(),
				"advertiser_id":      advertiserID,
				"certificate_number": cert.CertificateNumber,
			})
			resp := toCertificateResponse(*cert)
			return &resp, nil
		}
		if !errors.Is(err, errNumberTaken) {
			return nil, err
		}

		metrics.RecordCertificateCollision()
		logging.Warn(logCtx, "certificate number collision, drawing again",
			slog.String("certificate_number", number),
			slog.Int("attempt", attempt))
		lastErr = err
	}

	failure := apperr.Wrap(apperr.KindCertificateIssuanceFailed, lastErr,
		"certificate issuance for submission %s failed after %d attempt(s)", submissionID, s.maxAttempts)
	logging.Error(logCtx, "certificate issuance failed", slog.Any("err", failure))
	if auditErr := writeAudit(ctx, s.auditRepo, nil, model.ActionCertificateIssueFailed, submissionID.String(), "", map[string]interface{}{
		"reason": failure.Error(),
	}); auditErr != nil {
		logging.Warn(logCtx, "audit of issuance failure not recorded", slog.Any("err", auditErr))
	}
	return nil, failure
}

// tryIssue makes one attempt with a fixed number inside its own
// transaction, so a unique-index rejection never poisons a later attempt.
func (s *certificateService) tryIssue(ctx context.Context, submissionID uuid.UUID, number string) (*model.Certificate, error) {
	var cert *model.Certificate
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		submission, err := s.submissions.FindByID(txCtx, submissionID)
		if err != nil {
			if repository.IsNotFound(err) {
				return apperr.NotFound("submission %s not found", submissionID)
			}
			return fmt.Errorf("failed to load submission: %w", err)
		}
		if submission.Status != model.StatusApproved {
			return apperr.NotFound("submission %s is %s, not approved", submissionID, submission.Status)
		}

		if _, err := s.certificates.FindBySubmissionID(txCtx, submissionID); err == nil {
			return &apperr.Error{Kind: apperr.KindDuplicateCertificate, Message: fmt.Sprintf("submission %s already has a certificate", submissionID)}
		} else if !repository.IsNotFound(err) {
			return fmt.Errorf("failed to check existing certificate: %w", err)
		}

		taken, err := s.certificates.NumberExists(txCtx, number)
		if err != nil {
			return fmt.Errorf("failed to check certificate number: %w", err)
		}
		if taken {
			return errNumberTaken
		}

		now := s.now().UTC()
		validFrom := startOfDay(now)
		candidate := &model.Certificate{
			CertificateNumber: number,
			SubmissionID:      submissionID,
			QRCodeData:        s.verificationURL(number),
			IssuedAt:          now,
			ValidFrom:         validFrom,
			ValidUntil:        validFrom.AddDate(0, 0, s.validityDays),
			IsActive:          true,
		}
		if err := s.certificates.Create(txCtx, candidate); err != nil {
			return err
		}

		if err := writeAudit(txCtx, s.auditRepo, submission.ReviewedBy, model.ActionIssueCertificate, candidate.ID.String(), number, map[string]interface{}{
			"submission_id": submissionID.String(),
			"valid_from":    candidate.ValidFrom.Format(dateLayout),
			"valid_until":   candidate.ValidUntil.Format(dateLayout),
		}); err != nil {
			return err
		}

		candidate.Submission = submission
		cert = candidate
		return nil
	})
	if err == nil {
		return cert, nil
	}
	if !repository.IsUniqueViolation(err) {
		return nil, err
	}

	// A concurrent writer beat us to one of the two unique indexes. Decide
	// which: another certificate for this submission, or our number.
	if _, findErr := s.certificates.FindBySubmissionID(ctx, submissionID); findErr == nil {
		return nil, &apperr.Error{Kind: apperr.KindDuplicateCertificate, Message: fmt.Sprintf("submission %s already has a certificate", submissionID), Cause: err}
	}
	return nil, errNumberTaken
}

func (s *certificateService) verificationURL(number string) string {
	return s.verifyBaseURL + "/verify/" + number
}

func (s *certificateService) RetryIssuance(ctx context.Context, actorID, submissionID string) (*CertificateResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Unauthorized("only administrators may retry certificate issuance")
	}
	id, err := parseSubmissionID(submissionID)
	if err != nil {
		return nil, err
	}
	return s.Issue(ctx, id)
}

func (s *certificateService) Verify(ctx context.Context, number string) (VerificationResult, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		metrics.RecordVerification(string(VerificationInvalid))
		return VerificationResult{Status: VerificationInvalid}, nil
	}

	cert, err := s.certificates.FindByNumber(ctx, number)
	if err != nil {
		if repository.IsNotFound(err) {
			metrics.RecordVerification(string(VerificationInvalid))
			return VerificationResult{Status: VerificationInvalid}, nil
		}
		return VerificationResult{}, fmt.Errorf("failed to look up certificate: %w", err)
	}

	status := classify(*cert, startOfDay(s.now()))
	metrics.RecordVerification(string(status))
	if !cert.IsActive {
		// A revoked number verifies exactly like an unknown one.
		return VerificationResult{Status: status}, nil
	}
	details := toCertificateDetails(*cert)
	return VerificationResult{Status: status, Details: &details}, nil
}

// classify applies is_active AND valid_from <= today <= valid_until.
func classify(cert model.Certificate, today time.Time) VerificationStatus {
	from := startOfDay(cert.ValidFrom)
	until := startOfDay(cert.ValidUntil)
	switch {
	case !cert.IsActive:
		return VerificationInvalid
	case today.After(until):
		return VerificationExpired
	case today.Before(from):
		return VerificationInvalid
	default:
		return VerificationValid
	}
}

func (s *certificateService) Revoke(ctx context.Context, actorID, number string) (*CertificateResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Unauthorized("only administrators may revoke certificates")
	}

	number = strings.TrimSpace(number)
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := s.certificates.Deactivate(txCtx, number)
		if err != nil {
			return fmt.Errorf("failed to deactivate certificate: %w", err)
		}
		if n == 0 {
			return apperr.NotFound("certificate %q not found", number)
		}
		return writeAudit(txCtx, s.auditRepo, &actor.ID, model.ActionRevokeCertificate, number, number, nil)
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordRevocation()

	cert, err := s.certificates.FindByNumber(ctx, number)
	if err != nil {
		return nil, fmt.Errorf("failed to reload certificate: %w", err)
	}
	var advertiserID string
	if cert.Submission != nil {
		advertiserID = cert.Submission.AdvertiserID.String()
	}
	s.events.Publish("certificate.revoked", advertiserID, map[string]interface{}{
		"submission_id":      cert.SubmissionID.String(),
		"advertiser_id":      advertiserID,
		"certificate_number": number,
	})

	resp := toCertificateResponse(*cert)
	return &resp, nil
}

func (s *certificateService) GetForSubmission(ctx context.Context, actorID, submissionID string) (*CertificateResponse, error) {
	actor, err := resolveActor(ctx, s.profiles, actorID)
	if err != nil {
		return nil, err
	}
	id, err := parseSubmissionID(submissionID)
	if err != nil {
		return nil, err
	}

	cert, err := s.certificates.FindBySubmissionID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.NotFound("no certificate for submission %s", submissionID)
		}
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}
	if cert.Submission == nil || !canSee(actor, cert.Submission) {
		return nil, apperr.NotFound("no certificate for submission %s", submissionID)
	}

	resp := toCertificateResponse(*cert)
	return &resp, nil
}

// --- Helpers ---

func toCertificateResponse(c model.Certificate) CertificateResponse {
	return CertificateResponse{
		ID:                c.ID.String(),
		CertificateNumber: c.CertificateNumber,
		SubmissionID:      c.SubmissionID.String(),
		QRCodeData:        c.QRCodeData,
		IssuedAt:          c.IssuedAt.UTC().Format(time.RFC3339),
		ValidFrom:         c.ValidFrom.UTC().Format(dateLayout),
		ValidUntil:        c.ValidUntil.UTC().Format(dateLayout),
		IsActive:          c.IsActive,
	}
}

func toCertificateDetails(c model.Certificate) CertificateDetails {
	d := CertificateDetails{
		CertificateNumber: c.CertificateNumber,
		IssuedAt:          c.IssuedAt.UTC().Format(dateLayout),
		ValidFrom:         c.ValidFrom.UTC().Format(dateLayout),
		ValidUntil:        c.ValidUntil.UTC().Format(dateLayout),
		IsActive:          c.IsActive,
	}
	if sub := c.Submission; sub != nil {
		d.CampaignTitle = sub.CampaignTitle
		d.BrandName = sub.BrandName
		d.Category = string(sub.Category)
		d.GeographicScope = string(sub.GeographicScope)
		if sub.Advertiser != nil {
			d.AdvertiserName = sub.Advertiser.FullName
			d.CompanyName = sub.Advertiser.CompanyName
		}
	}
	return d
}
