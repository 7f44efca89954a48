package service

import (
	"context"
	"reflect"
	"testing"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/model"

	"github.com/google/uuid"
)

func TestFormatCertificateNumber(t *testing.T) {
	cases := []struct {
		year, seq int
		want      string
	}{
		{2024, 0, "ARCON-2024-000000"},
		{2024, 42, "ARCON-2024-000042"},
		{2025, 999999, "ARCON-2025-999999"},
	}
	for _, tc := range cases {
		if got := FormatCertificateNumber(tc.year, tc.seq); got != tc.want {
			t.Fatalf("FormatCertificateNumber(%d, %d) = %q, want %q", tc.year, tc.seq, got, tc.want)
		}
	}
}

func TestIssueRetriesOnNumberCollision(t *testing.T) {
	f := setupFixture(t, CertificateOptions{Draw: drawSequence(42, 42, 7)})

	first := f.approve(t, f.createSubmission(t, f.advertiser).ID)
	if first.Certificate == nil || first.Certificate.CertificateNumber != "ARCON-2024-000042" {
		t.Fatalf("first certificate = %+v", first.Certificate)
	}

	second := f.approve(t, f.createSubmission(t, f.advertiser).ID)
	if second.Certificate == nil || second.Certificate.CertificateNumber != "ARCON-2024-000007" {
		t.Fatalf("second certificate = %+v, want ARCON-2024-000007 after a collision", second.Certificate)
	}
}

func TestIssueRetriesWhenStoreRejectsNumber(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	racing := &racingCertificates{CertificateRepository: f.certificates}
	certs := NewCertificateService(racing, f.submissions, f.profiles, f.audit, f.tx, f.events, CertificateOptions{
		Clock: f.clock.Now,
		Draw:  drawSequence(42, 42, 7),
	})
	subs := f.submissionService(f.comments, certs)

	approve := func(submissionID string) *TransitionResult {
		t.Helper()
		res, err := subs.Transition(ctx, submissionID, f.reviewer.ID.String(), TransitionRequest{Status: "approved"})
		if err != nil {
			t.Fatalf("approve %s: %v (kind %s)", submissionID, err, apperr.KindOf(err))
		}
		return res
	}

	first := approve(f.createSubmission(t, f.advertiser).ID)
	if first.Certificate == nil || first.Certificate.CertificateNumber != "ARCON-2024-000042" {
		t.Fatalf("first certificate = %+v", first.Certificate)
	}

	// The pre-check misses 000042, the insert hits the number index and
	// issuance draws again instead of failing.
	second := approve(f.createSubmission(t, f.other).ID)
	if second.Certificate == nil || second.Certificate.CertificateNumber != "ARCON-2024-000007" {
		t.Fatalf("second certificate = %+v, want ARCON-2024-000007 after the index rejected 000042", second.Certificate)
	}

	var count int64
	if err := f.db.Model(&model.Certificate{}).Where("certificate_number = ?", "ARCON-2024-000042").Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("certificates numbered ARCON-2024-000042 = %d, want 1", count)
	}
}

func TestIssueReportsDuplicateWhenStoreRejectsSubmission(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	racing := &racingCertificates{CertificateRepository: f.certificates}
	certs := NewCertificateService(racing, f.submissions, f.profiles, f.audit, f.tx, f.events, CertificateOptions{
		Clock: f.clock.Now,
		Draw:  drawSequence(42, 7),
	})
	subs := f.submissionService(f.comments, certs)

	sub := f.createSubmission(t, f.advertiser)
	if _, err := subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{Status: "approved"}); err != nil {
		t.Fatalf("approve: %v", err)
	}

	// A second issuer whose pre-check missed the committed certificate
	// must hit the submission index and report the duplicate.
	racing.hideExisting = 1
	_, err := certs.Issue(ctx, mustUUID(t, sub.ID))
	requireKind(t, err, apperr.KindDuplicateCertificate)

	var count int64
	if err := f.db.Model(&model.Certificate{}).Where("submission_id = ?", sub.ID).Count(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("certificates for submission = %d, want 1", count)
	}
}

func TestIssueExhaustedKeepsApproval(t *testing.T) {
	f := setupFixture(t, CertificateOptions{MaxAttempts: 3, Draw: drawSequence(42)})
	ctx := context.Background()

	f.approve(t, f.createSubmission(t, f.advertiser).ID)

	sub := f.createSubmission(t, f.advertiser)
	res, err := f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{Status: "approved"})
	requireKind(t, err, apperr.KindCertificateIssuanceFailed)
	if res == nil || res.Submission.Status != "approved" {
		t.Fatalf("expected approved submission alongside the error, got %+v", res)
	}
	if res.Certificate != nil {
		t.Fatalf("unexpected certificate %+v", res.Certificate)
	}

	stored, err := f.submissions.FindByID(ctx, mustUUID(t, sub.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != model.StatusApproved {
		t.Fatalf("status rolled back to %s", stored.Status)
	}

	_, err = f.certs.GetForSubmission(ctx, f.admin.ID.String(), sub.ID)
	requireKind(t, err, apperr.KindNotFound)

	// An operator retry with a fresh draw completes the approval.
	retry := f.certificateService(CertificateOptions{Clock: f.clock.Now, Draw: drawSequence(100)})
	_, err = retry.RetryIssuance(ctx, f.reviewer.ID.String(), sub.ID)
	requireKind(t, err, apperr.KindUnauthorized)

	cert, err := retry.RetryIssuance(ctx, f.admin.ID.String(), sub.ID)
	if err != nil {
		t.Fatalf("retry: %v", err)
	}
	if cert.CertificateNumber != "ARCON-2024-000100" {
		t.Fatalf("retried number = %s", cert.CertificateNumber)
	}

	_, err = retry.RetryIssuance(ctx, f.admin.ID.String(), sub.ID)
	requireKind(t, err, apperr.KindDuplicateCertificate)
}

func TestIssuePreconditions(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	_, err := f.certs.Issue(ctx, uuid.New())
	requireKind(t, err, apperr.KindNotFound)

	pending := f.createSubmission(t, f.advertiser)
	_, err = f.certs.Issue(ctx, mustUUID(t, pending.ID))
	requireKind(t, err, apperr.KindNotFound)

	approved := f.approve(t, f.createSubmission(t, f.advertiser).ID)
	_, err = f.certs.Issue(ctx, mustUUID(t, approved.Submission.ID))
	requireKind(t, err, apperr.KindDuplicateCertificate)
}

func TestVerifyClassifications(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	res := f.approve(t, f.createSubmission(t, f.advertiser).ID)
	number := res.Certificate.CertificateNumber

	t.Run("unknown number", func(t *testing.T) {
		got, err := f.certs.Verify(ctx, "ARCON-1999-999999")
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationInvalid || got.Details != nil {
			t.Fatalf("got %+v, want INVALID without details", got)
		}
	})

	t.Run("valid", func(t *testing.T) {
		got, err := f.certs.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationValid {
			t.Fatalf("status = %s, want VALID", got.Status)
		}
		d := got.Details
		if d == nil || d.CampaignTitle != "Breakfast in Five" || d.BrandName != "Sunrise Noodles" ||
			d.AdvertiserName != f.advertiser.FullName || d.CompanyName != f.advertiser.CompanyName ||
			d.ValidFrom != "2024-03-15" || d.ValidUntil != "2025-03-15" {
			t.Fatalf("details = %+v", d)
		}
	})

	t.Run("last valid day", func(t *testing.T) {
		later := f.certificateService(CertificateOptions{Clock: func() time.Time {
			return time.Date(2025, time.March, 15, 23, 59, 0, 0, time.UTC)
		}})
		got, err := later.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationValid {
			t.Fatalf("status = %s, want VALID on valid_until", got.Status)
		}
	})

	t.Run("expired", func(t *testing.T) {
		later := f.certificateService(CertificateOptions{Clock: func() time.Time {
			return time.Date(2025, time.March, 16, 0, 0, 1, 0, time.UTC)
		}})
		got, err := later.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationExpired || got.Details == nil {
			t.Fatalf("got %+v, want EXPIRED with details", got)
		}
	})

	t.Run("before validity window", func(t *testing.T) {
		earlier := f.certificateService(CertificateOptions{Clock: func() time.Time {
			return time.Date(2024, time.March, 14, 12, 0, 0, 0, time.UTC)
		}})
		got, err := earlier.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationInvalid || got.Details == nil {
			t.Fatalf("got %+v, want INVALID with details", got)
		}
	})

	t.Run("inactive within window", func(t *testing.T) {
		if err := f.db.Model(&model.Certificate{}).
			Where("certificate_number = ?", number).
			Update("is_active", false).Error; err != nil {
			t.Fatalf("deactivate: %v", err)
		}
		got, err := f.certs.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify: %v", err)
		}
		if got.Status != VerificationInvalid {
			t.Fatalf("status = %s, want INVALID for an inactive certificate", got.Status)
		}
		if got.Details != nil {
			t.Fatalf("details = %+v, want none for an inactive certificate", got.Details)
		}
	})
}

func TestVerifyIsIdempotent(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	number := f.approve(t, f.createSubmission(t, f.advertiser).ID).Certificate.CertificateNumber

	first, err := f.certs.Verify(ctx, number)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	for i := 0; i < 3; i++ {
		again, err := f.certs.Verify(ctx, number)
		if err != nil {
			t.Fatalf("verify #%d: %v", i, err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("verify #%d = %+v, want %+v", i, again, first)
		}
	}
}

func TestRevoke(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	number := f.approve(t, f.createSubmission(t, f.advertiser).ID).Certificate.CertificateNumber

	_, err := f.certs.Revoke(ctx, f.reviewer.ID.String(), number)
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = f.certs.Revoke(ctx, f.admin.ID.String(), "ARCON-1999-000000")
	requireKind(t, err, apperr.KindNotFound)

	cert, err := f.certs.Revoke(ctx, f.admin.ID.String(), number)
	if err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if cert.IsActive {
		t.Fatalf("certificate still active after revoke")
	}

	got, err := f.certs.Verify(ctx, number)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Status != VerificationInvalid || got.Details != nil {
		t.Fatalf("got %+v, want INVALID without details after revoke", got)
	}
	if owners := f.events.ownersOf("certificate.revoked"); len(owners) != 1 || owners[0] != f.advertiser.ID.String() {
		t.Fatalf("certificate.revoked addressed to %v, want [%s]", owners, f.advertiser.ID)
	}
}

func TestGetForSubmissionVisibility(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	sub := f.createSubmission(t, f.advertiser)
	f.approve(t, sub.ID)

	if _, err := f.certs.GetForSubmission(ctx, f.advertiser.ID.String(), sub.ID); err != nil {
		t.Fatalf("owner: %v", err)
	}
	if _, err := f.certs.GetForSubmission(ctx, f.reviewer.ID.String(), sub.ID); err != nil {
		t.Fatalf("reviewer: %v", err)
	}
	_, err := f.certs.GetForSubmission(ctx, f.other.ID.String(), sub.ID)
	requireKind(t, err, apperr.KindNotFound)
}
