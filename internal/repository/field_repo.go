package repository

import (
	"context"

	"fleetops/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FieldRepository interface {
	List(ctx context.Context, category string) ([]model.FieldDescriptor, error)
	FindByKey(ctx context.Context, category, key string) (*model.FieldDescriptor, error)
	// CreateIfAbsent inserts desc unless (category, key) exists; reports whether it inserted
	CreateIfAbsent(ctx context.Context, desc *model.FieldDescriptor) (bool, error)
	// NextDisplayOrder is MAX+1 read without a lock; concurrent imports may share an
	// order, and List breaks such ties by id
	NextDisplayOrder(ctx context.Context, category string) (int, error)
	Update(ctx context.Context, desc *model.FieldDescriptor) error
	Delete(ctx context.Context, category, key string) (int64, error)
}

type fieldRepository struct {
	db *gorm.DB
}

func NewFieldRepository(db *gorm.DB) FieldRepository {
	return &fieldRepository{db: db}
}

func (r *fieldRepository) List(ctx context.Context, category string) ([]model.FieldDescriptor, error) {
	var fields []model.FieldDescriptor
	err := GetDB(ctx, r.db).Where("category = ?", category).
		Order("display_order asc, id asc").
		Find(&fields).Error
	return fields, err
}

func (r *fieldRepository) FindByKey(ctx context.Context, category, key string) (*model.FieldDescriptor, error) {
	var desc model.FieldDescriptor
	if err := GetDB(ctx, r.db).Where("category = ? AND key = ?", category, key).First(&desc).Error; err != nil {
		return nil, err
	}
	return &desc, nil
}

func (r *fieldRepository) CreateIfAbsent(ctx context.Context, desc *model.FieldDescriptor) (bool, error) {
	res := GetDB(ctx, r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "category"}, {Name: "key"}},
			DoNothing: true,
		}).
		Create(desc)
	return res.RowsAffected > 0, res.Error
}

func (r *fieldRepository) NextDisplayOrder(ctx context.Context, category string) (int, error) {
	var max int
	err := GetDB(ctx, r.db).Model(&model.FieldDescriptor{}).
		Where("category = ?", category).
		Select("COALESCE(MAX(display_order), -1)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	return max + 1, nil
}

func (r *fieldRepository) Update(ctx context.Context, desc *model.FieldDescriptor) error {
	return GetDB(ctx, r.db).Model(desc).
		Select("label", "type", "sortable", "highlight", "hidden", "display_order", "updated_at").
		Updates(desc).Error
}

func (r *fieldRepository) Delete(ctx context.Context, category, key string) (int64, error) {
	res := GetDB(ctx, r.db).Where("category = ? AND key = ?", category, key).Delete(&model.FieldDescriptor{})
	return res.RowsAffected, res.Error
}
