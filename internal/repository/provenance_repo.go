package repository

import (
	"context"

	"fleetops/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProvenanceRepository interface {
	CreateBatch(ctx context.Context, rows []model.ImportProvenance) error
	FindByRecordIDs(ctx context.Context, ids []uint) (map[uint]model.ImportProvenance, error)
}

type provenanceRepository struct {
	db *gorm.DB
}

func NewProvenanceRepository(db *gorm.DB) ProvenanceRepository {
	return &provenanceRepository{db: db}
}

func (r *provenanceRepository) CreateBatch(ctx context.Context, rows []model.ImportProvenance) error {
	if len(rows) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Omit(clause.Associations).CreateInBatches(rows, 200).Error
}

func (r *provenanceRepository) FindByRecordIDs(ctx context.Context, ids []uint) (map[uint]model.ImportProvenance, error) {
	out := make(map[uint]model.ImportProvenance, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []model.ImportProvenance
	if err := GetDB(ctx, r.db).Where("record_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.RecordID] = row
	}
	return out, nil
}
