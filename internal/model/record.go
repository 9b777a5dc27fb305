package model

import (
	"time"

	"gorm.io/datatypes"
)

// Record categories. Each category keeps its own field catalog.
const (
	CategoryFinance = "finance"
	CategoryPayslip = "payslip"
)

// Keys with business meaning that may never be removed from the catalog
const (
	IdentifierKey = "employee_id"
	DisplayKey    = "name"
)

// Legacy reserved keys. Provenance lives in ImportProvenance; these names are only
// recognised so they can be stripped from inbound data.
const (
	ReservedRowKey     = "_excel_row"
	ReservedColumnsKey = "_excel_columns"
)

// IsReservedKey reports whether key is internal import metadata
func IsReservedKey(key string) bool {
	return key == ReservedRowKey || key == ReservedColumnsKey
}

// IsProtectedKey reports whether key identifies a record and cannot be deleted
func IsProtectedKey(key string) bool {
	return key == IdentifierKey || key == DisplayKey
}

// DynamicRecord is a ledger entry or payslip whose payload is an open set of fields
type DynamicRecord struct {
	ID        uint              `gorm:"primaryKey" json:"id"`
	Category  string            `gorm:"type:varchar(20);not null;index:idx_record_partition,priority:1" json:"category"`
	Year      int               `gorm:"not null;index:idx_record_partition,priority:2" json:"year"`
	MonthName string            `gorm:"type:varchar(20);not null;index:idx_record_partition,priority:3" json:"month_name"`
	SourceID  *uint             `gorm:"index" json:"source_id,omitempty"` // payslip -> ledger record it was generated from
	Fields    datatypes.JSONMap `json:"fields"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// ImportProvenance remembers where an imported record came from so the original
// sheet layout can be reconstructed for display
type ImportProvenance struct {
	RecordID    uint           `gorm:"primaryKey" json:"record_id"`
	Record      DynamicRecord  `gorm:"foreignKey:RecordID;constraint:OnDelete:CASCADE" json:"-"`
	RowOrdinal  int            `gorm:"not null" json:"row_ordinal"`
	ColumnOrder datatypes.JSON `json:"column_order"` // JSON array of field keys in sheet order
	CreatedAt   time.Time      `json:"created_at"`
}
