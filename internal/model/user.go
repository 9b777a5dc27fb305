package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User holds exactly one role; its permissions are entirely those of the role
type User struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Username     string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone        string         `gorm:"type:varchar(20)" json:"phone"`
	Password     string         `gorm:"type:varchar(255);not null" json:"-"`
	EmployeeCode *string        `gorm:"type:varchar(50);uniqueIndex" json:"employee_code"` // matched by strict ledger imports
	RoleID       *uuid.UUID     `gorm:"type:uuid;index" json:"role_id"`                    // nullable only during migration
	Role         *Role          `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// RoleName returns the name of the loaded role, or "" when none is attached
func (u *User) RoleName() string {
	if u.Role == nil {
		return ""
	}
	return u.Role.Name
}
