package service

import (
	"context"
	"strings"

	"fleetops/internal/fieldmeta"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/apperror"
)

// CatalogMode says where a category's field descriptors come from
type CatalogMode string

const (
	// ModeExplicit categories persist descriptors, registered at import and editable
	ModeExplicit CatalogMode = "explicit"
	// ModeInferred categories derive descriptors from the records being shown
	ModeInferred CatalogMode = "inferred"
)

// ModeFor returns the fixed catalog mode of a category
func ModeFor(category string) CatalogMode {
	if category == model.CategoryFinance {
		return ModeExplicit
	}
	return ModeInferred
}

type UpdateFieldRequest struct {
	Label        *string          `json:"label"`
	Type         *model.FieldType `json:"type"`
	Sortable     *bool            `json:"sortable"`
	Highlight    *bool            `json:"highlight"`
	Hidden       *bool            `json:"hidden"`
	DisplayOrder *int             `json:"display_order"`
}

// CatalogService describes the dynamic fields of each record category
type CatalogService interface {
	// DescribeFields returns descriptors in display order. samples feed inference and
	// fill keys that explicit descriptors do not cover.
	DescribeFields(ctx context.Context, category string, samples []fieldmeta.Sample) ([]model.FieldDescriptor, error)
	// RegisterDiscovered catalogues a new key and returns nil when it is already known
	RegisterDiscovered(ctx context.Context, category, key, label string, fieldType model.FieldType) (*model.FieldDescriptor, error)
	UpdateDescriptor(ctx context.Context, category, key string, req UpdateFieldRequest) (*model.FieldDescriptor, error)
	RemoveDescriptor(ctx context.Context, category, key string) (bool, error)
	Known(ctx context.Context, category string) (map[string]model.FieldDescriptor, error)
}

type catalogService struct {
	fields repository.FieldRepository
	audit  AuditService
}

func NewCatalogService(fields repository.FieldRepository, audit AuditService) CatalogService {
	return &catalogService{fields: fields, audit: audit}
}

func (s *catalogService) DescribeFields(ctx context.Context, category string, samples []fieldmeta.Sample) ([]model.FieldDescriptor, error) {
	inferred := fieldmeta.InferDescriptors(category, samples)
	if ModeFor(category) == ModeInferred {
		return inferred, nil
	}

	declared, err := s.fields.List(ctx, category)
	if err != nil {
		return nil, storeErr(err, "failed to fetch %s fields", category)
	}
	known := make(map[string]bool, len(declared))
	next := 0
	for _, d := range declared {
		known[d.Key] = true
		if d.DisplayOrder >= next {
			next = d.DisplayOrder + 1
		}
	}
	// declared descriptors win; inference only covers keys nobody catalogued
	for _, d := range inferred {
		if known[d.Key] {
			continue
		}
		d.DisplayOrder = next
		next++
		declared = append(declared, d)
	}
	return declared, nil
}

func (s *catalogService) Known(ctx context.Context, category string) (map[string]model.FieldDescriptor, error) {
	declared, err := s.fields.List(ctx, category)
	if err != nil {
		return nil, storeErr(err, "failed to fetch %s fields", category)
	}
	out := make(map[string]model.FieldDescriptor, len(declared))
	for _, d := range declared {
		out[d.Key] = d
	}
	return out, nil
}

func (s *catalogService) RegisterDiscovered(ctx context.Context, category, key, label string, fieldType model.FieldType) (*model.FieldDescriptor, error) {
	if !fieldmeta.ValidKey(key) || model.IsReservedKey(key) {
		return nil, apperror.Validation("invalid field key '%s'", key)
	}
	if !fieldType.Valid() {
		fieldType = model.FieldText
	}
	if strings.TrimSpace(label) == "" {
		label = fieldmeta.DeriveLabel(key)
	}

	_, err := s.fields.FindByKey(ctx, category, key)
	switch {
	case err == nil:
		return nil, nil
	case !isNotFound(err):
		return nil, storeErr(err, "failed to look up field '%s'", key)
	}

	order, err := s.fields.NextDisplayOrder(ctx, category)
	if err != nil {
		return nil, storeErr(err, "failed to compute display order")
	}
	desc := &model.FieldDescriptor{
		Category:     category,
		Key:          key,
		Label:        label,
		Type:         fieldType,
		Sortable:     true,
		Highlight:    model.IsProtectedKey(key),
		DisplayOrder: order,
	}
	inserted, err := s.fields.CreateIfAbsent(ctx, desc)
	if err != nil {
		return nil, storeErr(err, "failed to register field '%s'", key)
	}
	if !inserted {
		return nil, nil
	}
	return desc, nil
}

func (s *catalogService) UpdateDescriptor(ctx context.Context, category, key string, req UpdateFieldRequest) (*model.FieldDescriptor, error) {
	if ModeFor(category) != ModeExplicit {
		return nil, apperror.Validation("%s fields are inferred and cannot be edited", category)
	}
	if req.Type != nil && !req.Type.Valid() {
		return nil, apperror.Validation("unknown field type '%s'", *req.Type)
	}
	if req.Label != nil && strings.TrimSpace(*req.Label) == "" {
		return nil, apperror.Validation("label cannot be empty")
	}

	desc, err := s.fields.FindByKey(ctx, category, key)
	if err != nil {
		return nil, storeErr(err, "field '%s' not found", key)
	}
	if req.Label != nil {
		desc.Label = strings.TrimSpace(*req.Label)
	}
	if req.Type != nil {
		desc.Type = *req.Type
	}
	if req.Sortable != nil {
		desc.Sortable = *req.Sortable
	}
	if req.Highlight != nil {
		desc.Highlight = *req.Highlight
	}
	if req.Hidden != nil {
		desc.Hidden = *req.Hidden
	}
	if req.DisplayOrder != nil {
		desc.DisplayOrder = *req.DisplayOrder
	}

	if err := s.fields.Update(ctx, desc); err != nil {
		return nil, storeErr(err, "failed to update field '%s'", key)
	}
	if err := s.audit.Record(ctx, model.ActionUpdateFieldMeta, key, category, req); err != nil {
		return nil, err
	}
	return desc, nil
}

func (s *catalogService) RemoveDescriptor(ctx context.Context, category, key string) (bool, error) {
	if ModeFor(category) != ModeExplicit {
		return false, nil
	}
	n, err := s.fields.Delete(ctx, category, key)
	if err != nil {
		return false, storeErr(err, "failed to remove field '%s'", key)
	}
	return n > 0, nil
}
