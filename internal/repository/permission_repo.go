package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PermissionRepository interface {
	Create(ctx context.Context, perm *model.Permission) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error)
	FindByName(ctx context.Context, name string) (*model.Permission, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error)
	List(ctx context.Context) ([]model.Permission, error)
	Count(ctx context.Context) (int64, error)
	// Grant inserts (role, permission) pairs that are absent and reports how many were new
	Grant(ctx context.Context, roleID uuid.UUID, permissionIDs ...uuid.UUID) (int64, error)
	CountGranted(ctx context.Context, roleID uuid.UUID) (int64, error)
	ListMissing(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error)
}

type permissionRepository struct {
	db *gorm.DB
}

func NewPermissionRepository(db *gorm.DB) PermissionRepository {
	return &permissionRepository{db: db}
}

func (r *permissionRepository) Create(ctx context.Context, perm *model.Permission) error {
	return GetDB(ctx, r.db).Create(perm).Error
}

func (r *permissionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("permission_id = ?", id).Delete(&model.RolePermission{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Permission{}).Error
}

func (r *permissionRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).First(&perm, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByName(ctx context.Context, name string) (*model.Permission, error) {
	var perm model.Permission
	if err := GetDB(ctx, r.db).Where("name = ?", name).First(&perm).Error; err != nil {
		return nil, err
	}
	return &perm, nil
}

func (r *permissionRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	if len(ids) == 0 {
		return perms, nil
	}
	if err := GetDB(ctx, r.db).Where("id IN ?", ids).Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) List(ctx context.Context) ([]model.Permission, error) {
	var perms []model.Permission
	if err := GetDB(ctx, r.db).Order("resource asc, name asc").Find(&perms).Error; err != nil {
		return nil, err
	}
	return perms, nil
}

func (r *permissionRepository) Count(ctx context.Context) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Permission{}).Count(&count).Error
	return count, err
}

func (r *permissionRepository) Grant(ctx context.Context, roleID uuid.UUID, permissionIDs ...uuid.UUID) (int64, error) {
	if len(permissionIDs) == 0 {
		return 0, nil
	}
	rows := make([]model.RolePermission, 0, len(permissionIDs))
	for _, pid := range permissionIDs {
		rows = append(rows, model.RolePermission{RoleID: roleID, PermissionID: pid})
	}

	// ON CONFLICT DO NOTHING absorbs concurrent duplicate grants
	res := GetDB(ctx, r.db).Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows)
	return res.RowsAffected, res.Error
}

func (r *permissionRepository) CountGranted(ctx context.Context, roleID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.RolePermission{}).
		Joins("INNER JOIN permissions p ON p.id = role_permissions.permission_id").
		Where("role_permissions.role_id = ?", roleID).
		Count(&count).Error
	return count, err
}

func (r *permissionRepository) ListMissing(ctx context.Context, roleID uuid.UUID) ([]model.Permission, error) {
	var perms []model.Permission
	err := GetDB(ctx, r.db).
		Where("NOT EXISTS (SELECT 1 FROM role_permissions rp WHERE rp.permission_id = permissions.id AND rp.role_id = ?)", roleID).
		Order("name asc").
		Find(&perms).Error
	return perms, err
}
