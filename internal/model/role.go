package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SuperadminRoleName identifies the role that must always hold every permission.
// It is a naming convention, not a column; resolve it through this constant only.
const (
	SuperadminRoleName        = "superadmin"
	SuperadminRoleDescription = "Super administrator - always holds every permission"
)

// ProtectedRoleNames are system roles that can never be deleted
var ProtectedRoleNames = []string{SuperadminRoleName, "admin", "manager", "employee", "driver"}

// IsProtectedRole reports whether name is one of the system role names
func IsProtectedRole(name string) bool {
	for _, n := range ProtectedRoleNames {
		if n == name {
			return true
		}
	}
	return false
}

// Role represents a user role with associated permissions
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsActive    bool         `gorm:"default:true" json:"is_active"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// Permission is an atomic resource+action grant, conventionally named "resource.action"
type Permission struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Resource    string    `gorm:"type:varchar(50);not null;index" json:"resource"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	Description string    `gorm:"type:text" json:"description"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// RolePermission is the role_permissions join row; the composite key keeps a grant unique
type RolePermission struct {
	RoleID       uuid.UUID  `gorm:"type:uuid;primaryKey;column:role_id"`
	PermissionID uuid.UUID  `gorm:"type:uuid;primaryKey;column:permission_id"`
	Role         Role       `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE" json:"-"`
	Permission   Permission `gorm:"foreignKey:PermissionID;constraint:OnDelete:CASCADE" json:"-"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
