package service

import (
	"context"
	"encoding/json"
	"sort"
	"strconv"

	"fleetops/internal/fieldmeta"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/apperror"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// Computed payslip keys
const (
	GrossPayKey   = "gross_pay"
	DeductionsKey = "deductions"
	NetPayKey     = "net_pay"
)

type GeneratePayslipsRequest struct {
	Year  int    `json:"year" binding:"required"`
	Month string `json:"month" binding:"required"`
}

type GeneratePayslipsResult struct {
	Year       int    `json:"year"`
	Month      string `json:"month"`
	Generated  int    `json:"generated"`
	Skipped    int    `json:"skipped"` // ledger rows that already have a payslip
	PayslipIDs []uint `json:"payslip_ids"`
}

// PayslipService derives payslips from the finance ledger
type PayslipService interface {
	GeneratePayslips(ctx context.Context, req GeneratePayslipsRequest) (*GeneratePayslipsResult, error)
}

type payslipService struct {
	tx         repository.TransactionManager
	records    repository.RecordRepository
	provenance repository.ProvenanceRepository
	catalog    CatalogService
	audit      AuditService
	events     Publisher
	metrics    *metrics.Metrics
	log        logrus.FieldLogger
}

func NewPayslipService(
	tx repository.TransactionManager,
	records repository.RecordRepository,
	provenance repository.ProvenanceRepository,
	catalog CatalogService,
	audit AuditService,
	events Publisher,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) PayslipService {
	return &payslipService{
		tx:         tx,
		records:    records,
		provenance: provenance,
		catalog:    catalog,
		audit:      audit,
		events:     publisherOrNop(events),
		metrics:    m,
		log:        log.WithField("component", "payslips"),
	}
}

// GeneratePayslips creates one payslip per ledger row of the partition that has none yet
func (s *payslipService) GeneratePayslips(ctx context.Context, req GeneratePayslipsRequest) (*GeneratePayslipsResult, error) {
	if err := validateYear(req.Year); err != nil {
		return nil, err
	}
	month, err := normalizeMonth(req.Month)
	if err != nil {
		return nil, err
	}

	ledger, err := s.records.ListPartition(ctx, model.CategoryFinance, req.Year, month)
	if err != nil {
		return nil, storeErr(err, "failed to load ledger partition")
	}
	if len(ledger) == 0 {
		return nil, apperror.NotFound("no ledger records for %s %d", month, req.Year)
	}

	ids := make([]uint, 0, len(ledger))
	for _, r := range ledger {
		ids = append(ids, r.ID)
	}
	done, err := s.records.SourceIDs(ctx, model.CategoryPayslip, ids)
	if err != nil {
		return nil, storeErr(err, "failed to look up existing payslips")
	}

	currencyKeys, err := s.currencyKeys(ctx, ledger)
	if err != nil {
		return nil, err
	}

	res := &GeneratePayslipsResult{Year: req.Year, Month: month, PayslipIDs: []uint{}}
	slips := make([]*model.DynamicRecord, 0, len(ledger))
	orders := make([][]string, 0, len(ledger))
	for _, r := range ledger {
		if done[r.ID] {
			res.Skipped++
			continue
		}
		fields, order := buildPayslip(r.Fields, currencyKeys)
		sourceID := r.ID
		slips = append(slips, &model.DynamicRecord{
			Category:  model.CategoryPayslip,
			Year:      req.Year,
			MonthName: month,
			SourceID:  &sourceID,
			Fields:    datatypes.JSONMap(fields),
		})
		orders = append(orders, order)
	}
	if len(slips) == 0 {
		return res, nil
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.records.CreateBatch(txCtx, slips); err != nil {
			return storeErr(err, "failed to create payslips")
		}
		prov := make([]model.ImportProvenance, 0, len(slips))
		for i, slip := range slips {
			raw, err := json.Marshal(orders[i])
			if err != nil {
				return apperror.Internal(err, "failed to encode column order")
			}
			prov = append(prov, model.ImportProvenance{RecordID: slip.ID, RowOrdinal: i + 1, ColumnOrder: datatypes.JSON(raw)})
			res.PayslipIDs = append(res.PayslipIDs, slip.ID)
		}
		if err := s.provenance.CreateBatch(txCtx, prov); err != nil {
			return storeErr(err, "failed to record payslip layout")
		}
		res.Generated = len(slips)
		return s.audit.Record(txCtx, model.ActionGeneratePayslips, "", month+" "+strconv.Itoa(req.Year), map[string]interface{}{
			"generated": res.Generated,
			"skipped":   res.Skipped,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddPayslips(res.Generated)
	s.log.WithFields(logrus.Fields{"month": month, "year": req.Year, "generated": res.Generated}).Info("payslips generated")
	s.events.Publish(EventPayslipsGenerated, map[string]interface{}{
		"year":      req.Year,
		"month":     month,
		"generated": res.Generated,
	})
	return res, nil
}

// currencyKeys lists the ledger's currency keys in catalog order; keys without a
// descriptor are typed by inference over the partition
func (s *payslipService) currencyKeys(ctx context.Context, ledger []model.DynamicRecord) ([]string, error) {
	samples := make([]fieldmeta.Sample, 0, len(ledger))
	for _, r := range ledger {
		samples = append(samples, fieldmeta.Sample{Fields: r.Fields})
	}
	fields, err := s.catalog.DescribeFields(ctx, model.CategoryFinance, samples)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].DisplayOrder < fields[j].DisplayOrder })

	keys := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.Type == model.FieldCurrency && !isComputedKey(f.Key) {
			keys = append(keys, f.Key)
		}
	}
	return keys, nil
}

func isComputedKey(key string) bool {
	return key == GrossPayKey || key == DeductionsKey || key == NetPayKey
}

// buildPayslip copies identity and currency fields and totals them. Deduction-like keys
// reduce net pay whatever their sign in the ledger.
func buildPayslip(ledger map[string]interface{}, currencyKeys []string) (map[string]interface{}, []string) {
	fields := map[string]interface{}{}
	order := []string{}
	for _, k := range []string{model.IdentifierKey, model.DisplayKey} {
		if v, ok := ledger[k]; ok {
			fields[k] = v
			order = append(order, k)
		}
	}

	gross, deductions := decimal.Zero, decimal.Zero
	for _, k := range currencyKeys {
		raw, ok := ledger[k]
		if !ok {
			continue
		}
		d, ok := fieldmeta.AsDecimal(raw)
		if !ok {
			continue
		}
		fields[k] = fieldmeta.Currency(d).JSON()
		order = append(order, k)
		if fieldmeta.IsDeductionKey(k) {
			deductions = deductions.Add(d.Abs())
		} else {
			gross = gross.Add(d)
		}
	}

	fields[GrossPayKey] = fieldmeta.Currency(gross).JSON()
	fields[DeductionsKey] = fieldmeta.Currency(deductions).JSON()
	fields[NetPayKey] = fieldmeta.Currency(gross.Sub(deductions)).JSON()
	order = append(order, GrossPayKey, DeductionsKey, NetPayKey)
	return fields, order
}
