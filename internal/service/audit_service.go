package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"
)

type AuditLogResponse struct {
	ID         string                 `json:"id"`
	UserID     string                 `json:"user_id"`
	Username   string                 `json:"username"`
	Action     string                 `json:"action"`
	EntityID   string                 `json:"entity_id"`
	EntityName string                 `json:"entity_name"`
	Details    map[string]interface{} `json:"details"`
	CreatedAt  time.Time              `json:"created_at"`
}

// AuditQuery selects audit rows. From and To are YYYY-MM-DD or RFC 3339; To is inclusive for dates.
type AuditQuery struct {
	Action   string
	EntityID string
	UserID   string
	From     string
	To       string
	Page     int
	Limit    int
}

type AuditService interface {
	GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// GetAuditLogs pages through the procurement audit trail, newest first.
func (s *auditService) GetAuditLogs(ctx context.Context, q AuditQuery) ([]AuditLogResponse, int64, error) {
	userID, err := parseOptionalID(q.UserID, "user_id")
	if err != nil {
		return nil, 0, err
	}
	from, err := parseDate(q.From, "from")
	if err != nil {
		return nil, 0, err
	}
	to, err := parseDate(q.To, "to")
	if err != nil {
		return nil, 0, err
	}
	if to != nil && len(q.To) == len("2006-01-02") {
		end := to.AddDate(0, 0, 1)
		to = &end
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, 0, workflow.Validationf("to must be after from")
	}

	page, limit := normalizePage(q.Page, q.Limit)
	logs, total, err := s.repo.List(ctx, repository.AuditFilter{
		Action:   q.Action,
		EntityID: q.EntityID,
		UserID:   userID,
		From:     from,
		To:       to,
		Page:     page,
		Limit:    limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		res = append(res, toAuditLogResponse(l))
	}
	return res, total, nil
}

func toAuditLogResponse(l model.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:         l.ID.String(),
		Username:   "System",
		Action:     l.Action,
		EntityID:   l.EntityID,
		EntityName: l.EntityName,
		CreatedAt:  l.CreatedAt,
	}
	if l.UserID != nil {
		resp.UserID = l.UserID.String()
	}
	if l.User != nil {
		resp.Username = l.User.Username
	}
	if l.Details != "" {
		// Rows written outside auditWriter may hold plain text.
		if err := json.Unmarshal([]byte(l.Details), &resp.Details); err != nil {
			resp.Details = map[string]interface{}{"text": l.Details}
		}
	}
	return resp
}
