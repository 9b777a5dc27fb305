package repository

import (
	"context"

	"fleetops/internal/model"

	"gorm.io/gorm"
)

type AuditRepository interface {
	Log(ctx context.Context, entry *model.AuditLog) error
	List(ctx context.Context, action string, offset, limit int) ([]model.AuditLog, int64, error)
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Log(ctx context.Context, entry *model.AuditLog) error {
	return GetDB(ctx, r.db).Omit("User").Create(entry).Error
}

// List returns entries newest first; an empty action matches every entry
func (r *auditRepository) List(ctx context.Context, action string, offset, limit int) ([]model.AuditLog, int64, error) {
	var logs []model.AuditLog
	var total int64

	filtered := func() *gorm.DB {
		query := GetDB(ctx, r.db).Model(&model.AuditLog{})
		if action != "" {
			query = query.Where("action = ?", action)
		}
		return query
	}
	if err := filtered().Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := filtered().Preload("User").Order("created_at desc").Offset(offset).Limit(limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}
