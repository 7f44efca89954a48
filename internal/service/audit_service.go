package service

import (
	"context"
	"fmt"
	"time"

	"adcert/internal/model"
	"adcert/internal/repository"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	UserName   string `json:"user_name"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
	// GetEntityHistory returns the trail of one submission or certificate, oldest first.
	GetEntityHistory(ctx context.Context, entityID string) ([]AuditLogResponse, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) GetAuditLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	logs, total, err := s.repo.List(ctx, (page-1)*limit, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return toAuditResponses(logs), total, nil
}

func (s *auditService) GetEntityHistory(ctx context.Context, entityID string) ([]AuditLogResponse, error) {
	logs, err := s.repo.ListByEntity(ctx, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list entity history: %w", err)
	}
	return toAuditResponses(logs), nil
}

func toAuditResponses(logs []model.AuditLog) []AuditLogResponse {
	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		userID := ""
		if l.User != nil {
			name = l.User.FullName
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}
		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   name,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return res
}
