package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateRole         = "CREATE_ROLE"
	ActionUpdateRole         = "UPDATE_ROLE"
	ActionDeleteRole         = "DELETE_ROLE"
	ActionAssignPermissions  = "ASSIGN_PERMISSIONS"
	ActionCreatePermission   = "CREATE_PERMISSION"
	ActionDeletePermission   = "DELETE_PERMISSION"
	ActionRepairSuperadmin   = "REPAIR_SUPERADMIN"
	ActionImportLedger       = "IMPORT_LEDGER"
	ActionUpdateRecord       = "UPDATE_RECORD"
	ActionDeleteRecords      = "DELETE_RECORDS"
	ActionDeleteField        = "DELETE_FIELD"
	ActionDeletePartition    = "DELETE_PARTITION"
	ActionGeneratePayslips   = "GENERATE_PAYSLIPS"
	ActionUpdateFieldMeta    = "UPDATE_FIELD_METADATA"
	ActionAssignUserRole     = "ASSIGN_USER_ROLE"
	ActionCreateUser         = "CREATE_USER"
	ActionSeedRBAC           = "SEED_RBAC"
	ActionSuperadminAutoRole = "CREATE_SUPERADMIN_ROLE"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for scheduled jobs
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	return nil
}
