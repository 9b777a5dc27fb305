package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"fleetops/internal/fieldmeta"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/apperror"
	"fleetops/pkg/pagination"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// inferenceWindow bounds how many records are sampled when a category's fields are
// inferred outside a listed page
const inferenceWindow = 50

type ListRecordsQuery struct {
	Year      int
	Month     string
	Search    string
	SortBy    string
	SortOrder string
}

type RecordResponse struct {
	ID          uint                   `json:"id"`
	Category    string                 `json:"category"`
	Year        int                    `json:"year"`
	MonthName   string                 `json:"month_name"`
	SourceID    *uint                  `json:"source_id,omitempty"`
	Fields      map[string]interface{} `json:"fields"`
	RowOrdinal  *int                   `json:"row_ordinal,omitempty"`
	ColumnOrder []string               `json:"column_order,omitempty"`
	CreatedAt   string                 `json:"created_at"`
	UpdatedAt   string                 `json:"updated_at"`
}

type RecordListResponse struct {
	Records    []RecordResponse        `json:"records"`
	Fields     []model.FieldDescriptor `json:"fields"`
	Pagination pagination.Meta         `json:"pagination"`
}

type BulkDeleteResult struct {
	DeletedIDs  []uint `json:"deleted_ids"`
	NotFoundIDs []uint `json:"not_found_ids"`
}

type DeleteFieldResult struct {
	Key               string `json:"key"`
	RecordsUpdated    int64  `json:"records_updated"`
	DescriptorRemoved bool   `json:"descriptor_removed"`
}

type PartitionSummary struct {
	Year      int               `json:"year"`
	MonthName string            `json:"month_name"`
	Count     int64             `json:"count"`
	Totals    map[string]string `json:"totals"` // currency key -> sum, two decimals
}

// RecordService is the dynamic record store of one category
type RecordService interface {
	Category() string
	List(ctx context.Context, q ListRecordsQuery, page pagination.Params) (*RecordListResponse, error)
	Get(ctx context.Context, id uint) (*RecordResponse, error)
	// Update shallow-merges patch into the record's fields; import metadata keys are dropped
	Update(ctx context.Context, id uint, patch map[string]interface{}) (*RecordResponse, error)
	Delete(ctx context.Context, id uint) error
	BulkDelete(ctx context.Context, ids []uint) (*BulkDeleteResult, error)
	Fields(ctx context.Context) ([]model.FieldDescriptor, error)
	DeleteField(ctx context.Context, key string) (*DeleteFieldResult, error)
	ListPartitions(ctx context.Context) ([]PartitionSummary, error)
	DeletePartition(ctx context.Context, year int, month string) (int64, error)
}

type recordService struct {
	category   string
	tx         repository.TransactionManager
	records    repository.RecordRepository
	provenance repository.ProvenanceRepository
	catalog    CatalogService
	audit      AuditService
	log        logrus.FieldLogger
}

func NewRecordService(
	category string,
	tx repository.TransactionManager,
	records repository.RecordRepository,
	provenance repository.ProvenanceRepository,
	catalog CatalogService,
	audit AuditService,
	log logrus.FieldLogger,
) RecordService {
	return &recordService{
		category:   category,
		tx:         tx,
		records:    records,
		provenance: provenance,
		catalog:    catalog,
		audit:      audit,
		log:        log.WithField("category", category),
	}
}

func (s *recordService) Category() string {
	return s.category
}

func (s *recordService) List(ctx context.Context, q ListRecordsQuery, page pagination.Params) (*RecordListResponse, error) {
	filter := repository.RecordFilter{
		Category: s.category,
		Year:     q.Year,
		Search:   strings.TrimSpace(q.Search),
	}
	if strings.TrimSpace(q.Month) != "" {
		month, err := normalizeMonth(q.Month)
		if err != nil {
			return nil, err
		}
		filter.Month = month
	}

	order, err := s.resolveSort(ctx, filter, q)
	if err != nil {
		return nil, err
	}

	records, total, err := s.records.List(ctx, filter, order, page.Offset, page.Limit)
	if err != nil {
		return nil, storeErr(err, "failed to list %s records", s.category)
	}
	responses, samples, err := s.present(ctx, records)
	if err != nil {
		return nil, err
	}
	fields, err := s.catalog.DescribeFields(ctx, s.category, samples)
	if err != nil {
		return nil, err
	}

	return &RecordListResponse{
		Records:    responses,
		Fields:     fields,
		Pagination: page.MetaFor(total),
	}, nil
}

// resolveSort maps the requested sort onto a first-class column or a catalogued
// sortable key. Anything else is rejected before a query is built.
func (s *recordService) resolveSort(ctx context.Context, filter repository.RecordFilter, q ListRecordsQuery) (repository.RecordSort, error) {
	var order repository.RecordSort
	switch strings.ToLower(strings.TrimSpace(q.SortOrder)) {
	case "", "asc":
	case "desc":
		order.Desc = true
	default:
		return order, apperror.Validation("sort order must be asc or desc")
	}

	by := strings.TrimSpace(q.SortBy)
	if by == "" {
		order.Column = "id"
		return order, nil
	}
	if _, ok := repository.RecordColumns[by]; ok {
		order.Column = by
		return order, nil
	}

	var fields []model.FieldDescriptor
	var err error
	if ModeFor(s.category) == ModeInferred {
		fields, err = s.sampleFields(ctx, filter)
	} else {
		fields, err = s.catalog.DescribeFields(ctx, s.category, nil)
	}
	if err != nil {
		return order, err
	}
	for _, f := range fields {
		if f.Key == by && f.Sortable {
			order.JSONKey = f.Key
			order.Numeric = f.Type.Numeric()
			return order, nil
		}
	}
	return order, apperror.Validation("unknown sort key '%s'", by)
}

func (s *recordService) sampleFields(ctx context.Context, filter repository.RecordFilter) ([]model.FieldDescriptor, error) {
	records, _, err := s.records.List(ctx, filter, repository.RecordSort{Column: "id"}, 0, inferenceWindow)
	if err != nil {
		return nil, storeErr(err, "failed to sample %s records", s.category)
	}
	_, samples, err := s.present(ctx, records)
	if err != nil {
		return nil, err
	}
	return s.catalog.DescribeFields(ctx, s.category, samples)
}

func (s *recordService) Fields(ctx context.Context) ([]model.FieldDescriptor, error) {
	return s.sampleFields(ctx, repository.RecordFilter{Category: s.category})
}

func (s *recordService) Get(ctx context.Context, id uint) (*RecordResponse, error) {
	record, err := s.records.FindByID(ctx, s.category, id)
	if err != nil {
		return nil, storeErr(err, "%s record %d not found", s.category, id)
	}
	responses, _, err := s.present(ctx, []model.DynamicRecord{*record})
	if err != nil {
		return nil, err
	}
	return &responses[0], nil
}

func (s *recordService) Update(ctx context.Context, id uint, patch map[string]interface{}) (*RecordResponse, error) {
	clean := make(map[string]interface{}, len(patch))
	var invalid []string
	for k, v := range patch {
		if model.IsReservedKey(k) {
			continue
		}
		if !fieldmeta.ValidKey(k) {
			invalid = append(invalid, k)
			continue
		}
		clean[k] = v
	}
	if len(invalid) > 0 {
		sort.Strings(invalid)
		return nil, apperror.Validation("invalid field keys").
			WithDetails(map[string]interface{}{"invalid_keys": invalid})
	}

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		record, err := s.records.FindByID(txCtx, s.category, id)
		if err != nil {
			return storeErr(err, "%s record %d not found", s.category, id)
		}
		if len(clean) == 0 {
			return nil
		}

		known, err := s.catalog.Known(txCtx, s.category)
		if err != nil {
			return err
		}
		if record.Fields == nil {
			record.Fields = datatypes.JSONMap{}
		}
		keys := make([]string, 0, len(clean))
		for k, v := range clean {
			desc, ok := known[k]
			if ok {
				v = coerce(desc.Type, v)
			} else if ModeFor(s.category) == ModeExplicit {
				t := typeOfPatchValue(k, v)
				if _, err := s.catalog.RegisterDiscovered(txCtx, s.category, k, "", t); err != nil {
					return err
				}
				v = coerce(t, v)
			}
			record.Fields[k] = v
			keys = append(keys, k)
		}
		sort.Strings(keys)

		if err := s.records.UpdateFields(txCtx, record); err != nil {
			return storeErr(err, "failed to update %s record %d", s.category, id)
		}
		return s.audit.Record(txCtx, model.ActionUpdateRecord, uintString(id), s.category, map[string]interface{}{"keys": keys})
	})
	if err != nil {
		return nil, err
	}
	return s.Get(ctx, id)
}

// coerce normalises a patched value through the declared field type
func coerce(t model.FieldType, raw interface{}) interface{} {
	switch x := raw.(type) {
	case string:
		return fieldmeta.Parse(t, x).JSON()
	case float64, json.Number, int, int64:
		if !t.Numeric() {
			return raw
		}
		d, _ := fieldmeta.AsDecimal(x)
		if t == model.FieldCurrency {
			return fieldmeta.Currency(d).JSON()
		}
		return fieldmeta.Number(d).JSON()
	}
	return raw
}

func typeOfPatchValue(key string, v interface{}) model.FieldType {
	if t := fieldmeta.GuessTypeFromHeader(key); t != model.FieldText {
		return t
	}
	return fieldmeta.InferType([]interface{}{v})
}

func (s *recordService) Delete(ctx context.Context, id uint) error {
	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := s.records.DeleteByIDs(txCtx, s.category, []uint{id})
		if err != nil {
			return storeErr(err, "failed to delete %s record %d", s.category, id)
		}
		if n == 0 {
			return apperror.NotFound("%s record %d not found", s.category, id)
		}
		return s.audit.Record(txCtx, model.ActionDeleteRecords, uintString(id), s.category, map[string]interface{}{"ids": []uint{id}})
	})
}

// BulkDelete removes the ids that exist and reports the rest, never failing on a miss
func (s *recordService) BulkDelete(ctx context.Context, ids []uint) (*BulkDeleteResult, error) {
	if len(ids) == 0 {
		return nil, apperror.Validation("ids must not be empty")
	}
	unique := make([]uint, 0, len(ids))
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			unique = append(unique, id)
		}
	}

	res := &BulkDeleteResult{DeletedIDs: []uint{}, NotFoundIDs: []uint{}}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		existing, err := s.records.FindExistingIDs(txCtx, s.category, unique)
		if err != nil {
			return storeErr(err, "failed to look up %s records", s.category)
		}
		found := make(map[uint]bool, len(existing))
		for _, id := range existing {
			found[id] = true
		}
		for _, id := range unique {
			if found[id] {
				res.DeletedIDs = append(res.DeletedIDs, id)
			} else {
				res.NotFoundIDs = append(res.NotFoundIDs, id)
			}
		}
		if len(res.DeletedIDs) == 0 {
			return nil
		}

		if _, err := s.records.DeleteByIDs(txCtx, s.category, res.DeletedIDs); err != nil {
			return storeErr(err, "failed to delete %s records", s.category)
		}
		return s.audit.Record(txCtx, model.ActionDeleteRecords, "", s.category, res)
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// DeleteField strips key from every record of the category and drops its descriptor
func (s *recordService) DeleteField(ctx context.Context, key string) (*DeleteFieldResult, error) {
	key = strings.TrimSpace(key)
	if model.IsProtectedKey(key) {
		return nil, apperror.Forbidden("field '%s' identifies records and cannot be deleted", key)
	}
	if key == "" || model.IsReservedKey(key) {
		return nil, apperror.Validation("invalid field key '%s'", key)
	}

	res := &DeleteFieldResult{Key: key}
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if res.RecordsUpdated, err = s.records.RemoveKey(txCtx, s.category, key); err != nil {
			return storeErr(err, "failed to remove field '%s'", key)
		}
		if res.DescriptorRemoved, err = s.catalog.RemoveDescriptor(txCtx, s.category, key); err != nil {
			return err
		}
		if res.RecordsUpdated == 0 && !res.DescriptorRemoved {
			return apperror.NotFound("field '%s' not found", key)
		}
		return s.audit.Record(txCtx, model.ActionDeleteField, key, s.category, res)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"key": key, "records": res.RecordsUpdated}).Info("field deleted")
	return res, nil
}

func (s *recordService) ListPartitions(ctx context.Context) ([]PartitionSummary, error) {
	parts, err := s.records.ListPartitions(ctx, s.category)
	if err != nil {
		return nil, storeErr(err, "failed to list %s partitions", s.category)
	}
	known, err := s.catalog.Known(ctx, s.category)
	if err != nil {
		return nil, err
	}

	out := make([]PartitionSummary, 0, len(parts))
	for _, p := range parts {
		records, err := s.records.ListPartition(ctx, s.category, p.Year, p.MonthName)
		if err != nil {
			return nil, storeErr(err, "failed to load partition %s %d", p.MonthName, p.Year)
		}
		out = append(out, PartitionSummary{
			Year:      p.Year,
			MonthName: p.MonthName,
			Count:     p.Count,
			Totals:    currencyTotals(records, known),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year > out[j].Year
		}
		return monthIndex(out[i].MonthName) > monthIndex(out[j].MonthName)
	})
	return out, nil
}

// currencyTotals sums every currency-typed key; undeclared keys are typed by inference
func currencyTotals(records []model.DynamicRecord, known map[string]model.FieldDescriptor) map[string]string {
	samples := make([]fieldmeta.Sample, 0, len(records))
	for _, r := range records {
		samples = append(samples, fieldmeta.Sample{Fields: r.Fields})
	}
	types := map[string]model.FieldType{}
	for _, d := range fieldmeta.InferDescriptors("", samples) {
		types[d.Key] = d.Type
	}
	for k, d := range known {
		types[k] = d.Type
	}

	sums := map[string]decimal.Decimal{}
	for _, r := range records {
		for k, v := range r.Fields {
			if types[k] != model.FieldCurrency {
				continue
			}
			if d, ok := fieldmeta.AsDecimal(v); ok {
				sums[k] = sums[k].Add(d)
			}
		}
	}
	totals := make(map[string]string, len(sums))
	for k, d := range sums {
		totals[k] = d.StringFixed(2)
	}
	return totals
}

func (s *recordService) DeletePartition(ctx context.Context, year int, month string) (int64, error) {
	if err := validateYear(year); err != nil {
		return 0, err
	}
	monthName, err := normalizeMonth(month)
	if err != nil {
		return 0, err
	}

	var deleted int64
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if deleted, err = s.records.DeletePartition(txCtx, s.category, year, monthName); err != nil {
			return storeErr(err, "failed to delete partition %s %d", monthName, year)
		}
		return s.audit.Record(txCtx, model.ActionDeletePartition, "", s.category, map[string]interface{}{
			"year":    year,
			"month":   monthName,
			"deleted": deleted,
		})
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// present converts records to responses and samples, attaching import provenance
func (s *recordService) present(ctx context.Context, records []model.DynamicRecord) ([]RecordResponse, []fieldmeta.Sample, error) {
	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	prov, err := s.provenance.FindByRecordIDs(ctx, ids)
	if err != nil {
		return nil, nil, storeErr(err, "failed to load import provenance")
	}

	responses := make([]RecordResponse, 0, len(records))
	samples := make([]fieldmeta.Sample, 0, len(records))
	for _, r := range records {
		resp := RecordResponse{
			ID:        r.ID,
			Category:  r.Category,
			Year:      r.Year,
			MonthName: r.MonthName,
			SourceID:  r.SourceID,
			Fields:    map[string]interface{}(r.Fields),
			CreatedAt: r.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
			UpdatedAt: r.UpdatedAt.Format("2006-01-02T15:04:05Z07:00"),
		}
		if resp.Fields == nil {
			resp.Fields = map[string]interface{}{}
		}
		if p, ok := prov[r.ID]; ok {
			ordinal := p.RowOrdinal
			resp.RowOrdinal = &ordinal
			if len(p.ColumnOrder) > 0 {
				if err := json.Unmarshal(p.ColumnOrder, &resp.ColumnOrder); err != nil {
					s.log.WithError(err).WithField("record_id", r.ID).Warn("unreadable column order")
				}
			}
		}
		responses = append(responses, resp)
		samples = append(samples, fieldmeta.Sample{Fields: resp.Fields, ColumnOrder: resp.ColumnOrder})
	}
	return responses, samples, nil
}
