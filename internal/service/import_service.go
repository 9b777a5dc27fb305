package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"fleetops/internal/config"
	"fleetops/internal/fieldmeta"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/internal/spreadsheet"
	"fleetops/pkg/apperror"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

type ImportRequest struct {
	Year     int
	Month    string
	FileName string
	Sheet    *spreadsheet.Sheet
}

type RejectedRow struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

type ImportResult struct {
	Year          int                     `json:"year"`
	Month         string                  `json:"month"`
	ColdStart     bool                    `json:"cold_start"`
	TotalRows     int                     `json:"total_rows"`
	SkippedRows   int                     `json:"skipped_rows"`
	ValidRows     int                     `json:"valid_rows"`
	InsertedRows  int                     `json:"inserted_rows"`
	RejectedCount int                     `json:"rejected_count"`
	Rejected      []RejectedRow           `json:"rejected"`
	NewFields     []model.FieldDescriptor `json:"new_fields"`
}

// ImportRow is one non-empty sheet row after key mapping
type ImportRow struct {
	Ordinal int
	Fields  map[string]interface{}
}

// RowValidator decides which rows of a populated partition are rejected, keyed by ordinal
type RowValidator interface {
	Validate(ctx context.Context, rows []ImportRow) (map[int]string, error)
}

// requireIdentifier rejects rows without an identifying value
type requireIdentifier struct{}

func (requireIdentifier) Validate(_ context.Context, rows []ImportRow) (map[int]string, error) {
	rejected := map[int]string{}
	for _, r := range rows {
		if identifierOf(r.Fields) == "" {
			rejected[r.Ordinal] = fmt.Sprintf("missing required field '%s'", model.IdentifierKey)
		}
	}
	return rejected, nil
}

// matchEmployees additionally requires the identifier to match a user's employee code
type matchEmployees struct {
	users repository.UserRepository
}

func (v matchEmployees) Validate(ctx context.Context, rows []ImportRow) (map[int]string, error) {
	rejected, _ := requireIdentifier{}.Validate(ctx, rows)

	codes := make([]string, 0, len(rows))
	for _, r := range rows {
		if _, bad := rejected[r.Ordinal]; !bad {
			codes = append(codes, identifierOf(r.Fields))
		}
	}
	known, err := v.users.ExistingEmployeeCodes(ctx, codes)
	if err != nil {
		return nil, storeErr(err, "failed to match employee codes")
	}
	for _, r := range rows {
		if _, bad := rejected[r.Ordinal]; bad {
			continue
		}
		if id := identifierOf(r.Fields); !known[id] {
			rejected[r.Ordinal] = fmt.Sprintf("no employee with code '%s'", id)
		}
	}
	return rejected, nil
}

// NewRowValidator returns the validator for a configured policy name
func NewRowValidator(policy string, users repository.UserRepository) RowValidator {
	if policy == config.PolicyStrict {
		return matchEmployees{users: users}
	}
	return requireIdentifier{}
}

func identifierOf(fields map[string]interface{}) string {
	v, ok := fields[model.IdentifierKey]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// ImportService loads ledger spreadsheets into the finance category
type ImportService interface {
	Import(ctx context.Context, req ImportRequest) (*ImportResult, error)
}

type importService struct {
	tx         repository.TransactionManager
	records    repository.RecordRepository
	provenance repository.ProvenanceRepository
	catalog    CatalogService
	validator  RowValidator
	audit      AuditService
	events     Publisher
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

func NewImportService(
	tx repository.TransactionManager,
	records repository.RecordRepository,
	provenance repository.ProvenanceRepository,
	catalog CatalogService,
	validator RowValidator,
	audit AuditService,
	events Publisher,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) ImportService {
	return &importService{
		tx:         tx,
		records:    records,
		provenance: provenance,
		catalog:    catalog,
		validator:  validator,
		audit:      audit,
		events:     publisherOrNop(events),
		metrics:    m,
		log:        log.WithField("component", "import"),
	}
}

type importColumn struct {
	key    string // "" for ignored columns
	header string
	typ    model.FieldType
	known  bool
}

// Import always inserts; re-importing a populated partition duplicates its rows.
// Validation runs first and is not transactional; the write phase is all-or-nothing.
func (s *importService) Import(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	if err := validateYear(req.Year); err != nil {
		return nil, err
	}
	month, err := normalizeMonth(req.Month)
	if err != nil {
		return nil, err
	}
	if req.Sheet == nil || len(req.Sheet.Headers) == 0 {
		return nil, apperror.Validation("spreadsheet has no header row")
	}

	known, err := s.catalog.Known(ctx, model.CategoryFinance)
	if err != nil {
		return nil, err
	}
	columns, order := mapColumns(req.Sheet.Headers, known)
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, apperror.Internal(err, "failed to encode column order")
	}

	res := &ImportResult{
		Year:      req.Year,
		Month:     month,
		TotalRows: len(req.Sheet.Rows),
		Rejected:  []RejectedRow{},
		NewFields: []model.FieldDescriptor{},
	}

	rows := make([]ImportRow, 0, len(req.Sheet.Rows))
	for i, cells := range req.Sheet.Rows {
		fields := map[string]interface{}{}
		for j, col := range columns {
			if col.key == "" || j >= len(cells) {
				continue
			}
			v := fieldmeta.Parse(col.typ, cells[j])
			if v.IsEmpty() {
				continue
			}
			fields[col.key] = v.JSON()
		}
		if len(fields) == 0 {
			res.SkippedRows++
			continue
		}
		rows = append(rows, ImportRow{Ordinal: i + 1, Fields: fields})
	}

	existing, err := s.records.CountPartition(ctx, model.CategoryFinance, req.Year, month)
	if err != nil {
		return nil, storeErr(err, "failed to inspect partition")
	}
	// the first import into an empty partition is accepted as-is
	res.ColdStart = existing == 0

	rejected := map[int]string{}
	if !res.ColdStart {
		if rejected, err = s.validator.Validate(ctx, rows); err != nil {
			return nil, err
		}
	}

	accepted := make([]ImportRow, 0, len(rows))
	for _, r := range rows {
		if reason, bad := rejected[r.Ordinal]; bad {
			res.Rejected = append(res.Rejected, RejectedRow{Row: r.Ordinal, Reason: reason})
			continue
		}
		accepted = append(accepted, r)
	}
	res.ValidRows = len(accepted)
	res.RejectedCount = len(res.Rejected)

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		for _, col := range columns {
			if col.key == "" || col.known {
				continue
			}
			desc, err := s.catalog.RegisterDiscovered(txCtx, model.CategoryFinance, col.key, fieldmeta.DeriveLabel(col.key), col.typ)
			if err != nil {
				return err
			}
			if desc != nil {
				res.NewFields = append(res.NewFields, *desc)
			}
		}

		records := make([]*model.DynamicRecord, 0, len(accepted))
		for _, r := range accepted {
			records = append(records, &model.DynamicRecord{
				Category:  model.CategoryFinance,
				Year:      req.Year,
				MonthName: month,
				Fields:    datatypes.JSONMap(r.Fields),
			})
		}
		if err := s.records.CreateBatch(txCtx, records); err != nil {
			return storeErr(err, "failed to insert ledger rows")
		}

		prov := make([]model.ImportProvenance, 0, len(records))
		for i, rec := range records {
			prov = append(prov, model.ImportProvenance{
				RecordID:    rec.ID,
				RowOrdinal:  accepted[i].Ordinal,
				ColumnOrder: datatypes.JSON(orderJSON),
			})
		}
		if err := s.provenance.CreateBatch(txCtx, prov); err != nil {
			return storeErr(err, "failed to record import provenance")
		}

		res.InsertedRows = len(records)
		return s.audit.Record(txCtx, model.ActionImportLedger, "", req.FileName, map[string]interface{}{
			"year":       req.Year,
			"month":      month,
			"inserted":   res.InsertedRows,
			"rejected":   res.RejectedCount,
			"cold_start": res.ColdStart,
			"new_fields": len(res.NewFields),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveImport(res.InsertedRows, res.RejectedCount, res.SkippedRows)
	s.log.WithFields(logrus.Fields{
		"file":       req.FileName,
		"partition":  month + " " + strconv.Itoa(req.Year),
		"inserted":   res.InsertedRows,
		"rejected":   res.RejectedCount,
		"skipped":    res.SkippedRows,
		"cold_start": res.ColdStart,
	}).Info("ledger imported")
	s.events.Publish(EventLedgerImported, map[string]interface{}{
		"year":     req.Year,
		"month":    month,
		"inserted": res.InsertedRows,
		"rejected": res.RejectedCount,
	})
	return res, nil
}

// mapColumns sanitises headers into keys. Reserved and blank headers are ignored; a
// repeated key gets the first free numeric suffix so no cell is lost, even when a later
// header sanitises to an already issued suffixed key.
func mapColumns(headers []string, known map[string]model.FieldDescriptor) ([]importColumn, []string) {
	columns := make([]importColumn, len(headers))
	order := make([]string, 0, len(headers))
	used := map[string]bool{}

	for i, h := range headers {
		key := fieldmeta.SanitizeKey(h)
		if key == "" || model.IsReservedKey(key) || model.IsReservedKey(strings.TrimSpace(h)) {
			columns[i] = importColumn{header: h}
			continue
		}
		base := key
		for n := 2; used[key]; n++ {
			key = base + "_" + strconv.Itoa(n)
		}
		used[key] = true

		col := importColumn{key: key, header: h, typ: fieldmeta.GuessTypeFromHeader(h)}
		if desc, ok := known[key]; ok {
			col.known = true
			col.typ = desc.Type
		}
		columns[i] = col
		order = append(order, key)
	}
	return columns, order
}
