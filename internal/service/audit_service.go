package service

import (
	"context"
	"encoding/json"

	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/pagination"
)

type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

type AuditService interface {
	// Record writes an entry in the caller's transaction, attributed to the ctx actor
	Record(ctx context.Context, action, entityID, entityName string, details interface{}) error
	GetAuditLogs(ctx context.Context, action string, page pagination.Params) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

// NewAuditService creates a new AuditService instance
func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) Record(ctx context.Context, action, entityID, entityName string, details interface{}) error {
	payload := ""
	if details != nil {
		raw, err := json.Marshal(details)
		if err != nil {
			return storeErr(err, "failed to encode audit details")
		}
		payload = string(raw)
	}

	entry := &model.AuditLog{
		UserID:     ActorFrom(ctx),
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    payload,
	}
	if err := s.repo.Log(ctx, entry); err != nil {
		return storeErr(err, "failed to write audit log")
	}
	return nil
}

// GetAuditLogs retrieves paginated entries with users pre-loaded
func (s *auditService) GetAuditLogs(ctx context.Context, action string, page pagination.Params) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, action, page.Offset, page.Limit)
	if err != nil {
		return nil, 0, storeErr(err, "failed to fetch audit logs")
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		username := "System"
		userID := ""
		if l.User != nil {
			username = l.User.Username
		}
		if l.UserID != nil {
			userID = l.UserID.String()
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			Username:   username,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	return res, total, nil
}
