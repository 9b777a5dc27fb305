package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RoleRepository interface {
	Create(ctx context.Context, role *model.Role) error
	Update(ctx context.Context, role *model.Role) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error)
	FindByName(ctx context.Context, name string) (*model.Role, error)
	// EnsureByName returns the named role, creating it from tmpl when absent.
	// Concurrent callers converge on the same row.
	EnsureByName(ctx context.Context, tmpl *model.Role) (*model.Role, bool, error)
	ListAll(ctx context.Context) ([]model.Role, error)
	CountUsers(ctx context.Context, roleID uuid.UUID) (int64, error)
	ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)
	RoleHasPermission(ctx context.Context, roleName, permissionName string) (bool, error)
}

type roleRepository struct {
	db *gorm.DB
}

func NewRoleRepository(db *gorm.DB) RoleRepository {
	return &roleRepository{db: db}
}

func (r *roleRepository) Create(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(role).Error
}

func (r *roleRepository) Update(ctx context.Context, role *model.Role) error {
	return GetDB(ctx, r.db).Model(&model.Role{}).Where("id = ?", role.ID).
		Select("name", "description", "is_active", "updated_at").
		Updates(role).Error
}

// Delete removes the role and its grants; the explicit association delete keeps the
// cascade independent of driver-level foreign key enforcement
func (r *roleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Role{}).Error
}

func (r *roleRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).First(&role, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByIDWithPermissions(ctx context.Context, id uuid.UUID) (*model.Role, error) {
	var role model.Role
	err := GetDB(ctx, r.db).
		Preload("Permissions", func(db *gorm.DB) *gorm.DB { return db.Order("resource asc, name asc") }).
		First(&role, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) FindByName(ctx context.Context, name string) (*model.Role, error) {
	var role model.Role
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&role).Error; err != nil {
		return nil, err
	}
	return &role, nil
}

func (r *roleRepository) EnsureByName(ctx context.Context, tmpl *model.Role) (*model.Role, bool, error) {
	db := GetDB(ctx, r.db)
	res := db.Omit(clause.Associations).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(tmpl)
	if res.Error != nil {
		return nil, false, res.Error
	}

	role, err := r.FindByName(ctx, tmpl.Name)
	if err != nil {
		return nil, false, err
	}
	return role, res.RowsAffected > 0, nil
}

func (r *roleRepository) ListAll(ctx context.Context) ([]model.Role, error) {
	var roles []model.Role
	if err := GetDB(ctx, r.db).Preload("Permissions").Order("name asc").Find(&roles).Error; err != nil {
		return nil, err
	}
	return roles, nil
}

func (r *roleRepository) CountUsers(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.User{}).Where("role_id = ?", roleID).Count(&count).Error
	return count, err
}

// ReplacePermissions swaps the role's whole grant set: delete all, then insert the selection
func (r *roleRepository) ReplacePermissions(ctx context.Context, roleID uuid.UUID, permissionIDs []uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("role_id = ?", roleID).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	if len(permissionIDs) == 0 {
		return nil
	}

	rows := make([]model.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		rows = append(rows, model.RolePermission{RoleID: roleID, PermissionID: pid})
	}
	return db.Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

func (r *roleRepository) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	var names []string
	err := GetDB(ctx, r.db).Raw(`
		SELECT p.name FROM permissions p
		INNER JOIN role_permissions rp ON rp.permission_id = p.id
		INNER JOIN roles r ON r.id = rp.role_id
		WHERE r.name = ? AND r.is_active = ?
		ORDER BY p.name
	`, roleName, true).Scan(&names).Error
	return names, err
}

func (r *roleRepository) RoleHasPermission(ctx context.Context, roleName, permissionName string) (bool, error) {
	var count int64
	err := GetDB(ctx, r.db).Table("role_permissions AS rp").
		Joins("INNER JOIN roles r ON r.id = rp.role_id").
		Joins("INNER JOIN permissions p ON p.id = rp.permission_id").
		Where("r.name = ? AND r.is_active = ? AND p.name = ?", roleName, true, permissionName).
		Count(&count).Error
	return count > 0, err
}
