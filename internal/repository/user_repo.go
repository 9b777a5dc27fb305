package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// UserRepository defines the interface for data access of User entities
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	UpdateRole(ctx context.Context, userID, roleID uuid.UUID) error
	// ExistingEmployeeCodes returns the subset of codes that belong to some user
	ExistingEmployeeCodes(ctx context.Context, codes []string) (map[string]bool, error)
}

type userRepository struct {
	db *gorm.DB
}

// NewUserRepository returns a new instance of UserRepository
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) Create(ctx context.Context, user *model.User) error {
	return GetDB(ctx, r.db).Omit("Role").Create(user).Error
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Role").First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).Preload("Role").First(&user, "email = ?", email).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	var user model.User
	if err := GetDB(ctx, r.db).First(&user, "username = ?", username).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) UpdateRole(ctx context.Context, userID, roleID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.User{}).Where("id = ?", userID).Update("role_id", roleID).Error
}

func (r *userRepository) ExistingEmployeeCodes(ctx context.Context, codes []string) (map[string]bool, error) {
	found := make(map[string]bool, len(codes))
	if len(codes) == 0 {
		return found, nil
	}
	var existing []string
	if err := GetDB(ctx, r.db).Model(&model.User{}).
		Where("employee_code IN ?", codes).
		Pluck("employee_code", &existing).Error; err != nil {
		return nil, err
	}
	for _, c := range existing {
		found[c] = true
	}
	return found, nil
}
