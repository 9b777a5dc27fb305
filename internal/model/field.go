package model

import "time"

// FieldType is the display/comparison type of a dynamic field
type FieldType string

const (
	FieldText     FieldType = "text"
	FieldNumber   FieldType = "number"
	FieldCurrency FieldType = "currency"
	FieldDate     FieldType = "date"
	FieldBoolean  FieldType = "boolean"
)

// Valid reports whether t is one of the known field types
func (t FieldType) Valid() bool {
	switch t {
	case FieldText, FieldNumber, FieldCurrency, FieldDate, FieldBoolean:
		return true
	}
	return false
}

// Numeric reports whether values of this type compare as numbers
func (t FieldType) Numeric() bool {
	return t == FieldNumber || t == FieldCurrency
}

// FieldDescriptor is a catalog entry describing one key of DynamicRecord.Fields
type FieldDescriptor struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Category     string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_field_category_key,priority:1" json:"category"`
	Key          string    `gorm:"type:varchar(100);not null;uniqueIndex:idx_field_category_key,priority:2" json:"key"`
	Label        string    `gorm:"type:varchar(255);not null" json:"label"`
	Type         FieldType `gorm:"type:varchar(20);not null;default:'text'" json:"type"`
	Sortable     bool      `json:"sortable"`
	Highlight    bool      `gorm:"default:false" json:"highlight"`
	Hidden       bool      `gorm:"default:false" json:"hidden"`
	DisplayOrder int       `gorm:"not null;default:0" json:"display_order"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
