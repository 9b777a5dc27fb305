package repository

import (
	"context"
	"fmt"
	"strings"

	"fleetops/internal/model"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RecordColumns are the first-class columns a record list may be ordered by
var RecordColumns = map[string]string{
	"id":         "id",
	"year":       "year",
	"month_name": "month_name",
	"created_at": "created_at",
	"updated_at": "updated_at",
}

// RecordFilter narrows a record list. Zero values match everything.
type RecordFilter struct {
	Category string
	Year     int
	Month    string
	Search   string // case-insensitive substring of the display key
}

// RecordSort is a resolved ordering target: either a first-class column or a JSON key
type RecordSort struct {
	Column  string
	JSONKey string
	Numeric bool
	Desc    bool
}

// PartitionCount is one (year, month) group of a category
type PartitionCount struct {
	Year      int    `json:"year"`
	MonthName string `json:"month_name"`
	Count     int64  `json:"count"`
}

type RecordRepository interface {
	List(ctx context.Context, filter RecordFilter, sort RecordSort, offset, limit int) ([]model.DynamicRecord, int64, error)
	FindByID(ctx context.Context, category string, id uint) (*model.DynamicRecord, error)
	FindExistingIDs(ctx context.Context, category string, ids []uint) ([]uint, error)
	CreateBatch(ctx context.Context, records []*model.DynamicRecord) error
	UpdateFields(ctx context.Context, record *model.DynamicRecord) error
	DeleteByIDs(ctx context.Context, category string, ids []uint) (int64, error)
	CountPartition(ctx context.Context, category string, year int, month string) (int64, error)
	ListPartition(ctx context.Context, category string, year int, month string) ([]model.DynamicRecord, error)
	DeletePartition(ctx context.Context, category string, year int, month string) (int64, error)
	ListPartitions(ctx context.Context, category string) ([]PartitionCount, error)
	// RemoveKey strips key from the fields of every record of the category holding it
	RemoveKey(ctx context.Context, category, key string) (int64, error)
	// SourceIDs returns the source ids already referenced by records of the category
	SourceIDs(ctx context.Context, category string, sourceIDs []uint) (map[uint]bool, error)
}

type recordRepository struct {
	db *gorm.DB
}

func NewRecordRepository(db *gorm.DB) RecordRepository {
	return &recordRepository{db: db}
}

func (r *recordRepository) filtered(ctx context.Context, f RecordFilter) *gorm.DB {
	db := GetDB(ctx, r.db)
	query := db.Model(&model.DynamicRecord{}).Where("category = ?", f.Category)
	if f.Year != 0 {
		query = query.Where("year = ?", f.Year)
	}
	if f.Month != "" {
		query = query.Where("LOWER(month_name) = LOWER(?)", f.Month)
	}
	if f.Search != "" {
		query = query.Where(`LOWER(?) LIKE LOWER(?) ESCAPE '\'`, jsonTextExpr(db, model.DisplayKey), containsPattern(f.Search))
	}
	return query
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern matches term literally as a substring
func containsPattern(term string) string {
	return "%" + likeEscaper.Replace(term) + "%"
}

func (r *recordRepository) List(ctx context.Context, f RecordFilter, s RecordSort, offset, limit int) ([]model.DynamicRecord, int64, error) {
	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count records: %w", err)
	}

	query := r.filtered(ctx, f)
	switch {
	case s.JSONKey != "" && s.Numeric:
		query = query.Order(orderByExpr(jsonNumericExpr(query, s.JSONKey), s.Desc))
	case s.JSONKey != "":
		query = query.Order(orderByExpr(jsonTextExpr(query, s.JSONKey), s.Desc))
	default:
		col, ok := RecordColumns[s.Column]
		if !ok {
			return nil, 0, fmt.Errorf("unknown sort column %q", s.Column)
		}
		columns := []clause.OrderByColumn{{Column: clause.Column{Name: col}, Desc: s.Desc}}
		if col != "id" {
			// stable paging
			columns = append(columns, clause.OrderByColumn{Column: clause.Column{Name: "id"}})
		}
		query = query.Order(clause.OrderBy{Columns: columns})
	}

	var records []model.DynamicRecord
	if err := query.Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list records: %w", err)
	}
	return records, total, nil
}

func (r *recordRepository) FindByID(ctx context.Context, category string, id uint) (*model.DynamicRecord, error) {
	var record model.DynamicRecord
	if err := GetDB(ctx, r.db).Where("category = ?", category).First(&record, id).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *recordRepository) FindExistingIDs(ctx context.Context, category string, ids []uint) ([]uint, error) {
	var existing []uint
	if len(ids) == 0 {
		return existing, nil
	}
	err := GetDB(ctx, r.db).Model(&model.DynamicRecord{}).
		Where("category = ? AND id IN ?", category, ids).
		Order("id asc").
		Pluck("id", &existing).Error
	return existing, err
}

func (r *recordRepository) CreateBatch(ctx context.Context, records []*model.DynamicRecord) error {
	if len(records) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).CreateInBatches(records, 200).Error
}

func (r *recordRepository) UpdateFields(ctx context.Context, record *model.DynamicRecord) error {
	return GetDB(ctx, r.db).Model(record).Select("fields", "updated_at").Updates(record).Error
}

// DeleteByIDs removes records and their provenance rows
func (r *recordRepository) DeleteByIDs(ctx context.Context, category string, ids []uint) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	db := GetDB(ctx, r.db)
	owned := db.Model(&model.DynamicRecord{}).Select("id").Where("category = ? AND id IN ?", category, ids)
	if err := db.Where("record_id IN (?)", owned).Delete(&model.ImportProvenance{}).Error; err != nil {
		return 0, err
	}
	res := db.Where("category = ? AND id IN ?", category, ids).Delete(&model.DynamicRecord{})
	return res.RowsAffected, res.Error
}

func (r *recordRepository) partition(ctx context.Context, category string, year int, month string) *gorm.DB {
	return GetDB(ctx, r.db).Model(&model.DynamicRecord{}).
		Where("category = ? AND year = ? AND LOWER(month_name) = LOWER(?)", category, year, month)
}

func (r *recordRepository) CountPartition(ctx context.Context, category string, year int, month string) (int64, error) {
	var count int64
	err := r.partition(ctx, category, year, month).Count(&count).Error
	return count, err
}

func (r *recordRepository) ListPartition(ctx context.Context, category string, year int, month string) ([]model.DynamicRecord, error) {
	var records []model.DynamicRecord
	err := r.partition(ctx, category, year, month).Order("id asc").Find(&records).Error
	return records, err
}

func (r *recordRepository) DeletePartition(ctx context.Context, category string, year int, month string) (int64, error) {
	var ids []uint
	if err := r.partition(ctx, category, year, month).Pluck("id", &ids).Error; err != nil {
		return 0, err
	}
	return r.DeleteByIDs(ctx, category, ids)
}

func (r *recordRepository) ListPartitions(ctx context.Context, category string) ([]PartitionCount, error) {
	var parts []PartitionCount
	err := GetDB(ctx, r.db).Model(&model.DynamicRecord{}).
		Select("year, month_name, COUNT(*) AS count").
		Where("category = ?", category).
		Group("year, month_name").
		Order("year desc").
		Scan(&parts).Error
	return parts, err
}

func (r *recordRepository) RemoveKey(ctx context.Context, category, key string) (int64, error) {
	db := GetDB(ctx, r.db)
	res := db.Model(&model.DynamicRecord{}).
		Where("category = ?", category).
		Where(datatypes.JSONQuery("fields").HasKey(key)).
		Update("fields", jsonRemoveExpr(db, key))
	return res.RowsAffected, res.Error
}

func (r *recordRepository) SourceIDs(ctx context.Context, category string, sourceIDs []uint) (map[uint]bool, error) {
	found := make(map[uint]bool, len(sourceIDs))
	if len(sourceIDs) == 0 {
		return found, nil
	}
	var ids []uint
	if err := GetDB(ctx, r.db).Model(&model.DynamicRecord{}).
		Where("category = ? AND source_id IN ?", category, sourceIDs).
		Pluck("source_id", &ids).Error; err != nil {
		return nil, err
	}
	for _, id := range ids {
		found[id] = true
	}
	return found, nil
}
