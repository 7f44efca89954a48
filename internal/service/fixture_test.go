package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/database"
	"adcert/internal/model"
	"adcert/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock {
	return &testClock{now: t}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
	owners map[string][]string
}

func (p *recordingPublisher) Publish(event, advertiserID string, _ map[string]interface{}) {
	p.mu.Lock()
	p.events = append(p.events, event)
	if p.owners == nil {
		p.owners = make(map[string][]string)
	}
	p.owners[event] = append(p.owners[event], advertiserID)
	p.mu.Unlock()
}

// ownersOf returns the advertiser each publication of event was addressed to.
func (p *recordingPublisher) ownersOf(event string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.owners[event]...)
}

func (p *recordingPublisher) count(event string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.events {
		if e == event {
			n++
		}
	}
	return n
}

// failingComments rejects every write, standing in for a comment store
// that is unavailable after the status update went through.
type failingComments struct {
	repository.CommentRepository
}

func (failingComments) Create(context.Context, *model.Comment) error {
	return errors.New("comment store unavailable")
}

// racingCertificates answers the issuance pre-checks as if a concurrent
// writer had not committed yet, so inserts run into the unique indexes.
// NumberExists always reports a free number; the first hideExisting
// FindBySubmissionID calls report no certificate.
type racingCertificates struct {
	repository.CertificateRepository

	mu           sync.Mutex
	hideExisting int
}

func (r *racingCertificates) NumberExists(context.Context, string) (bool, error) {
	return false, nil
}

func (r *racingCertificates) FindBySubmissionID(ctx context.Context, submissionID uuid.UUID) (*model.Certificate, error) {
	r.mu.Lock()
	hide := r.hideExisting > 0
	if hide {
		r.hideExisting--
	}
	r.mu.Unlock()
	if hide {
		return nil, gorm.ErrRecordNotFound
	}
	return r.CertificateRepository.FindBySubmissionID(ctx, submissionID)
}

// drawSequence returns the given values in order and then repeats the last.
func drawSequence(values ...int) func() (int, error) {
	var mu sync.Mutex
	i := 0
	return func() (int, error) {
		mu.Lock()
		defer mu.Unlock()
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v, nil
	}
}

type fixture struct {
	db     *gorm.DB
	clock  *testClock
	events *recordingPublisher

	profiles     repository.ProfileRepository
	submissions  repository.SubmissionRepository
	comments     repository.CommentRepository
	certificates repository.CertificateRepository
	audit        repository.AuditRepository
	tx           repository.TransactionManager

	certs CertificateService
	subs  SubmissionService

	advertiser *model.Profile
	other      *model.Profile
	reviewer   *model.Profile
	admin      *model.Profile
}

var fixedNow = time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC)

func setupFixture(t *testing.T, opts CertificateOptions) *fixture {
	t.Helper()

	db := database.OpenTestDB(t)
	f := &fixture{
		db:           db,
		clock:        newTestClock(fixedNow),
		events:       &recordingPublisher{},
		profiles:     repository.NewProfileRepository(db),
		submissions:  repository.NewSubmissionRepository(db),
		comments:     repository.NewCommentRepository(db),
		certificates: repository.NewCertificateRepository(db),
		audit:        repository.NewAuditRepository(db),
		tx:           repository.NewTransactionManager(db),
	}

	if opts.Clock == nil {
		opts.Clock = f.clock.Now
	}
	if opts.VerifyBaseURL == "" {
		opts.VerifyBaseURL = "https://verify.example.test/"
	}
	f.certs = f.certificateService(opts)
	f.subs = f.submissionService(f.comments, f.certs)

	f.advertiser = f.addProfile(t, "ads@brand.test", "Ada Brand", model.RoleAdvertiser)
	f.other = f.addProfile(t, "other@brand.test", "Olu Other", model.RoleAdvertiser)
	f.reviewer = f.addProfile(t, "reviewer@arcon.test", "Rita Reviewer", model.RoleReviewer)
	f.admin = f.addProfile(t, "admin@arcon.test", "Ade Admin", model.RoleAdmin)
	return f
}

func (f *fixture) certificateService(opts CertificateOptions) CertificateService {
	return NewCertificateService(f.certificates, f.submissions, f.profiles, f.audit, f.tx, f.events, opts)
}

func (f *fixture) submissionService(comments repository.CommentRepository, certs CertificateService) SubmissionService {
	return NewSubmissionService(f.submissions, comments, f.profiles, f.audit, f.tx, certs, f.events, f.clock.Now)
}

func (f *fixture) addProfile(t *testing.T, email, name string, role model.Role) *model.Profile {
	t.Helper()
	p := &model.Profile{
		Email:       email,
		FullName:    name,
		CompanyName: name + " Ltd",
		Password:    "not-a-real-hash",
		Role:        role,
	}
	if err := f.profiles.Create(context.Background(), p); err != nil {
		t.Fatalf("create profile %s: %v", email, err)
	}
	return p
}

func validSubmission() CreateSubmissionRequest {
	return CreateSubmissionRequest{
		BrandName:         "Sunrise Noodles",
		CampaignTitle:     "Breakfast in Five",
		Category:          "tv",
		GeographicScope:   "national",
		CampaignStartDate: "2024-01-01",
		CampaignEndDate:   "2024-02-01",
		CreativeMaterials: []string{"https://files.test/spot.mp4"},
		PaymentConfirmed:  true,
	}
}

func (f *fixture) createSubmission(t *testing.T, owner *model.Profile) *SubmissionResponse {
	t.Helper()
	sub, err := f.subs.CreateSubmission(context.Background(), owner.ID.String(), validSubmission())
	if err != nil {
		t.Fatalf("create submission: %v", err)
	}
	return sub
}

func (f *fixture) approve(t *testing.T, submissionID string) *TransitionResult {
	t.Helper()
	res, err := f.subs.Transition(context.Background(), submissionID, f.reviewer.ID.String(), TransitionRequest{Status: "approved"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return res
}

func requireKind(t *testing.T, err error, want apperr.Kind) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s error, got nil", want)
	}
	if got := apperr.KindOf(err); got != want {
		t.Fatalf("error kind = %s, want %s (err: %v)", got, want, err)
	}
}

func mustUUID(t *testing.T, s string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(s)
	if err != nil {
		t.Fatalf("parse uuid %q: %v", s, err)
	}
	return id
}
