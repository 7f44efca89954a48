package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"adcert/internal/apperr"
	"adcert/internal/model"
	"adcert/internal/repository"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// Clock returns the current time. Services take one so tests can pin
// the certificate year and validity window.
type Clock func() time.Time

// EventPublisher fans workflow events out to connected clients.
// advertiserID names the owner of the submission the event is about, so
// advertisers are only told about their own work.
type EventPublisher interface {
	Publish(event, advertiserID string, data map[string]interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, map[string]interface{}) {}

func publisherOrNoop(p EventPublisher) EventPublisher {
	if p == nil {
		return noopPublisher{}
	}
	return p
}

func clockOrNow(c Clock) Clock {
	if c == nil {
		return time.Now
	}
	return c
}

// resolveActor loads the profile behind an authenticated id. An id that
// does not name a profile is treated as lacking every capability.
func resolveActor(ctx context.Context, profiles repository.ProfileRepository, actorID string) (*model.Profile, error) {
	id, err := uuid.Parse(actorID)
	if err != nil {
		return nil, apperr.Unauthorized("unknown actor %q", actorID)
	}
	actor, err := profiles.GetByID(ctx, id)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, apperr.Unauthorized("unknown actor %q", actorID)
		}
		return nil, fmt.Errorf("failed to load actor: %w", err)
	}
	return actor, nil
}

func parseSubmissionID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperr.NotFound("submission %q not found", id)
	}
	return parsed, nil
}

// canSee applies the visibility rule shared by every submission read:
// advertisers see their own submissions, reviewers and admins see all.
func canSee(actor *model.Profile, s *model.Submission) bool {
	return actor.Role.CanReview() || s.AdvertiserID == actor.ID
}

func writeAudit(ctx context.Context, repo repository.AuditRepository, userID *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := &model.AuditLog{
		UserID:     userID,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := repo.Log(ctx, entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}
