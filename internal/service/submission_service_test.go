package service

import (
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/model"

	"github.com/google/uuid"
)

var certificateNumberPattern = regexp.MustCompile(`^ARCON-2024-\d{6}$`)

func TestCreateSubmissionStartsPending(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})

	sub := f.createSubmission(t, f.advertiser)

	if sub.Status != string(model.StatusPending) {
		t.Fatalf("status = %s, want pending", sub.Status)
	}
	if sub.ReviewedBy != nil || sub.ReviewedAt != nil {
		t.Fatalf("reviewed fields set on a new submission: %v %v", sub.ReviewedBy, sub.ReviewedAt)
	}
	if sub.SubmittedAt != fixedNow.Format(time.RFC3339) {
		t.Fatalf("submitted_at = %s, want %s", sub.SubmittedAt, fixedNow.Format(time.RFC3339))
	}
	if sub.Category != "tv" || sub.GeographicScope != "national" {
		t.Fatalf("unexpected category/scope: %s/%s", sub.Category, sub.GeographicScope)
	}
	if sub.CampaignStartDate != "2024-01-01" || sub.CampaignEndDate != "2024-02-01" {
		t.Fatalf("unexpected campaign window: %s..%s", sub.CampaignStartDate, sub.CampaignEndDate)
	}
	if f.events.count("submission.created") != 1 {
		t.Fatalf("expected one submission.created event")
	}

	stored, err := f.submissions.FindByID(context.Background(), mustUUID(t, sub.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.ReviewedBy != nil || stored.ReviewedAt != nil {
		t.Fatalf("stored submission has review fields set")
	}
}

func TestCreateSubmissionValidation(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*CreateSubmissionRequest)
	}{
		{"end before start", func(r *CreateSubmissionRequest) { r.CampaignEndDate = "2023-12-31" }},
		{"unknown category", func(r *CreateSubmissionRequest) { r.Category = "cinema" }},
		{"unknown scope", func(r *CreateSubmissionRequest) { r.GeographicScope = "galactic" }},
		{"missing brand", func(r *CreateSubmissionRequest) { r.BrandName = "   " }},
		{"malformed date", func(r *CreateSubmissionRequest) { r.CampaignStartDate = "01/01/2024" }},
		{"empty material reference", func(r *CreateSubmissionRequest) { r.CreativeMaterials = []string{""} }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := validSubmission()
			tc.mutate(&req)
			_, err := f.subs.CreateSubmission(ctx, f.advertiser.ID.String(), req)
			requireKind(t, err, apperr.KindInvalidInput)
		})
	}

	t.Run("same start and end", func(t *testing.T) {
		req := validSubmission()
		req.CampaignEndDate = req.CampaignStartDate
		if _, err := f.subs.CreateSubmission(ctx, f.advertiser.ID.String(), req); err != nil {
			t.Fatalf("single-day campaign rejected: %v", err)
		}
	})
}

func TestCreateSubmissionRequiresAdvertiser(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	_, err := f.subs.CreateSubmission(ctx, f.reviewer.ID.String(), validSubmission())
	requireKind(t, err, apperr.KindUnauthorized)

	_, err = f.subs.CreateSubmission(ctx, uuid.NewString(), validSubmission())
	requireKind(t, err, apperr.KindUnauthorized)
}

func TestApproveIssuesCertificate(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	sub := f.createSubmission(t, f.advertiser)

	res, err := f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{
		Status:  "approved",
		Comment: "Meets standards",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}

	if res.Submission.Status != "approved" || res.FromStatus != "pending" {
		t.Fatalf("status %s from %s, want approved from pending", res.Submission.Status, res.FromStatus)
	}
	if res.Submission.ReviewedBy == nil || *res.Submission.ReviewedBy != f.reviewer.ID.String() {
		t.Fatalf("reviewed_by = %v, want %s", res.Submission.ReviewedBy, f.reviewer.ID)
	}
	if res.Submission.ReviewedAt == nil {
		t.Fatalf("reviewed_at not set")
	}
	if res.Comment == nil || res.Comment.Comment != "Meets standards" || res.CommentError != "" {
		t.Fatalf("unexpected comment outcome: %+v %q", res.Comment, res.CommentError)
	}

	comments, err := f.subs.ListComments(ctx, f.reviewer.ID.String(), sub.ID)
	if err != nil {
		t.Fatalf("list comments: %v", err)
	}
	if len(comments) != 1 || comments[0].Comment != "Meets standards" {
		t.Fatalf("comments = %+v, want one 'Meets standards'", comments)
	}

	if res.Certificate == nil {
		t.Fatalf("no certificate in result")
	}
	if !certificateNumberPattern.MatchString(res.Certificate.CertificateNumber) {
		t.Fatalf("certificate number %q does not match format", res.Certificate.CertificateNumber)
	}
	if res.Certificate.QRCodeData != "https://verify.example.test/verify/"+res.Certificate.CertificateNumber {
		t.Fatalf("qr payload = %q", res.Certificate.QRCodeData)
	}

	var count int64
	if err := f.db.Model(&model.Certificate{}).Where("submission_id = ?", sub.ID).Count(&count).Error; err != nil {
		t.Fatalf("count certificates: %v", err)
	}
	if count != 1 {
		t.Fatalf("certificates for submission = %d, want 1", count)
	}

	cert, err := f.certificates.FindBySubmissionID(ctx, mustUUID(t, sub.ID))
	if err != nil {
		t.Fatalf("load certificate: %v", err)
	}
	if got := cert.ValidUntil.Sub(cert.ValidFrom); got != 365*24*time.Hour {
		t.Fatalf("validity window = %v, want 365 days", got)
	}
	if !cert.IsActive {
		t.Fatalf("new certificate is not active")
	}
	if f.events.count("certificate.issued") != 1 || f.events.count("submission.transitioned") != 1 {
		t.Fatalf("unexpected events: %v", f.events.events)
	}
	owner := f.advertiser.ID.String()
	for _, event := range []string{"submission.created", "submission.transitioned", "certificate.issued"} {
		if owners := f.events.ownersOf(event); len(owners) != 1 || owners[0] != owner {
			t.Fatalf("%s addressed to %v, want [%s]", event, owners, owner)
		}
	}
}

func TestTerminalStatesRejectFurtherTransitions(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	approved := f.createSubmission(t, f.advertiser)
	f.approve(t, approved.ID)

	rejected := f.createSubmission(t, f.advertiser)
	if _, err := f.subs.Transition(ctx, rejected.ID, f.reviewer.ID.String(), TransitionRequest{Status: "rejected"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	for _, id := range []string{approved.ID, rejected.ID} {
		for _, target := range []string{"pending", "under_review", "approved", "rejected", "requires_changes"} {
			for _, actor := range []*model.Profile{f.reviewer, f.admin} {
				_, err := f.subs.Transition(ctx, id, actor.ID.String(), TransitionRequest{Status: target})
				requireKind(t, err, apperr.KindInvalidTransition)
			}
		}
	}
}

func TestTransitionRules(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	reviewer := f.reviewer.ID.String()

	sub := f.createSubmission(t, f.advertiser)

	// pending -> pending is not in the allowed set.
	_, err := f.subs.Transition(ctx, sub.ID, reviewer, TransitionRequest{Status: "pending"})
	requireKind(t, err, apperr.KindInvalidTransition)

	steps := []string{"under_review", "requires_changes", "under_review", "requires_changes", "rejected"}
	for _, step := range steps {
		res, err := f.subs.Transition(ctx, sub.ID, reviewer, TransitionRequest{Status: step})
		if err != nil {
			t.Fatalf("transition to %s: %v", step, err)
		}
		if res.Submission.Status != step {
			t.Fatalf("status = %s, want %s", res.Submission.Status, step)
		}
		if res.Certificate != nil {
			t.Fatalf("certificate issued on %s", step)
		}
	}

	other := f.createSubmission(t, f.advertiser)
	if _, err := f.subs.Transition(ctx, other.ID, reviewer, TransitionRequest{Status: "under_review"}); err != nil {
		t.Fatalf("to under_review: %v", err)
	}
	_, err = f.subs.Transition(ctx, other.ID, reviewer, TransitionRequest{Status: "pending"})
	requireKind(t, err, apperr.KindInvalidTransition)
}

func TestTransitionErrors(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	sub := f.createSubmission(t, f.advertiser)

	t.Run("advertiser cannot review", func(t *testing.T) {
		_, err := f.subs.Transition(ctx, sub.ID, f.advertiser.ID.String(), TransitionRequest{Status: "approved"})
		requireKind(t, err, apperr.KindUnauthorized)
	})
	t.Run("unknown actor", func(t *testing.T) {
		_, err := f.subs.Transition(ctx, sub.ID, uuid.NewString(), TransitionRequest{Status: "approved"})
		requireKind(t, err, apperr.KindUnauthorized)
	})
	t.Run("missing submission", func(t *testing.T) {
		_, err := f.subs.Transition(ctx, uuid.NewString(), f.reviewer.ID.String(), TransitionRequest{Status: "approved"})
		requireKind(t, err, apperr.KindNotFound)
	})
	t.Run("malformed id", func(t *testing.T) {
		_, err := f.subs.Transition(ctx, "not-a-uuid", f.reviewer.ID.String(), TransitionRequest{Status: "approved"})
		requireKind(t, err, apperr.KindNotFound)
	})
	t.Run("unknown status", func(t *testing.T) {
		_, err := f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{Status: "archived"})
		requireKind(t, err, apperr.KindInvalidInput)
	})

	stored, err := f.submissions.FindByID(ctx, mustUUID(t, sub.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if stored.Status != model.StatusPending {
		t.Fatalf("failed transitions changed status to %s", stored.Status)
	}
}

func TestConcurrentTransitionsOneWins(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	sub := f.createSubmission(t, f.advertiser)

	targets := []string{"approved", "rejected"}
	errs := make([]error, len(targets))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			<-start
			_, errs[i] = f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{Status: target})
		}(i, target)
	}
	close(start)
	wg.Wait()

	winners := 0
	winner := ""
	for i, err := range errs {
		if err == nil {
			winners++
			winner = targets[i]
			continue
		}
		requireKind(t, err, apperr.KindInvalidTransition)
	}
	if winners != 1 {
		t.Fatalf("winners = %d, want exactly 1 (errs: %v)", winners, errs)
	}

	stored, err := f.submissions.FindByID(ctx, mustUUID(t, sub.ID))
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if string(stored.Status) != winner {
		t.Fatalf("stored status = %s, want winner %s", stored.Status, winner)
	}

	var certs int64
	f.db.Model(&model.Certificate{}).Where("submission_id = ?", sub.ID).Count(&certs)
	if winner == "approved" && certs != 1 {
		t.Fatalf("approved winner left %d certificates", certs)
	}
	if winner == "rejected" && certs != 0 {
		t.Fatalf("rejected winner left %d certificates", certs)
	}
}

func TestCommentFailureDoesNotUndoTransition(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	subs := f.submissionService(failingComments{f.comments}, f.certs)
	sub := f.createSubmission(t, f.advertiser)

	res, err := subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{
		Status:  "under_review",
		Comment: "Picking this up",
	})
	if err != nil {
		t.Fatalf("transition: %v", err)
	}
	if res.Submission.Status != "under_review" {
		t.Fatalf("status = %s, want under_review", res.Submission.Status)
	}
	if res.Comment != nil || res.CommentError == "" {
		t.Fatalf("expected a reported comment failure, got %+v %q", res.Comment, res.CommentError)
	}

	history, err := f.audit.ListByEntity(ctx, sub.ID)
	if err != nil {
		t.Fatalf("audit history: %v", err)
	}
	var dropped bool
	for _, entry := range history {
		if entry.Action == model.ActionCommentDropped {
			dropped = true
		}
	}
	if !dropped {
		t.Fatalf("no %s audit entry in %+v", model.ActionCommentDropped, history)
	}
}

func TestListSubmissionsVisibilityAndOrder(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()

	first := f.createSubmission(t, f.advertiser)
	f.clock.Advance(time.Minute)
	second := f.createSubmission(t, f.other)
	f.clock.Advance(time.Minute)
	third := f.createSubmission(t, f.advertiser)

	ids := func(list []SubmissionResponse) []string {
		out := make([]string, 0, len(list))
		for _, s := range list {
			out = append(out, s.ID)
		}
		return out
	}
	assertIDs := func(t *testing.T, got []SubmissionResponse, want ...string) {
		t.Helper()
		g := ids(got)
		if len(g) != len(want) {
			t.Fatalf("got %v, want %v", g, want)
		}
		for i := range want {
			if g[i] != want[i] {
				t.Fatalf("got %v, want %v", g, want)
			}
		}
	}

	own, err := f.subs.ListSubmissions(ctx, f.advertiser.ID.String(), "")
	if err != nil {
		t.Fatalf("advertiser list: %v", err)
	}
	assertIDs(t, own, third.ID, first.ID)

	all, err := f.subs.ListSubmissions(ctx, f.reviewer.ID.String(), "")
	if err != nil {
		t.Fatalf("reviewer list: %v", err)
	}
	assertIDs(t, all, third.ID, second.ID, first.ID)

	f.approve(t, first.ID)
	approved, err := f.subs.ListSubmissions(ctx, f.admin.ID.String(), "approved")
	if err != nil {
		t.Fatalf("filtered list: %v", err)
	}
	assertIDs(t, approved, first.ID)

	_, err = f.subs.ListSubmissions(ctx, f.reviewer.ID.String(), "archived")
	requireKind(t, err, apperr.KindInvalidInput)

	_, err = f.subs.GetSubmission(ctx, f.other.ID.String(), first.ID)
	requireKind(t, err, apperr.KindNotFound)

	got, err := f.subs.GetSubmission(ctx, f.advertiser.ID.String(), first.ID)
	if err != nil {
		t.Fatalf("owner get: %v", err)
	}
	if got.AdvertiserName != f.advertiser.FullName || got.ReviewerName != f.reviewer.FullName {
		t.Fatalf("relations not loaded: %+v", got)
	}
}

func TestInternalCommentsHiddenFromAdvertiser(t *testing.T) {
	f := setupFixture(t, CertificateOptions{})
	ctx := context.Background()
	sub := f.createSubmission(t, f.advertiser)

	if _, err := f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{
		Status: "requires_changes", Comment: "check claims with legal", IsInternal: true,
	}); err != nil {
		t.Fatalf("first transition: %v", err)
	}
	f.clock.Advance(time.Minute)
	if _, err := f.subs.Transition(ctx, sub.ID, f.reviewer.ID.String(), TransitionRequest{
		Status: "under_review", Comment: "Please resubmit the price disclaimer",
	}); err != nil {
		t.Fatalf("second transition: %v", err)
	}

	staff, err := f.subs.ListComments(ctx, f.reviewer.ID.String(), sub.ID)
	if err != nil {
		t.Fatalf("reviewer comments: %v", err)
	}
	if len(staff) != 2 || !staff[0].IsInternal {
		t.Fatalf("reviewer comments = %+v", staff)
	}

	public, err := f.subs.ListComments(ctx, f.advertiser.ID.String(), sub.ID)
	if err != nil {
		t.Fatalf("advertiser comments: %v", err)
	}
	if len(public) != 1 || public[0].Comment != "Please resubmit the price disclaimer" {
		t.Fatalf("advertiser comments = %+v", public)
	}

	_, err = f.subs.ListComments(ctx, f.other.ID.String(), sub.ID)
	requireKind(t, err, apperr.KindNotFound)
}
