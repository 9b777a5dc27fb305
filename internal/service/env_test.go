package service

import (
	"context"
	"sync"
	"testing"

	"fleetops/internal/config"
	"fleetops/internal/logger"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/internal/testutil"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []string
}

func (p *recordingPublisher) Publish(event string, _ interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) Events() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.events...)
}

// testEnv wires every service over one sqlite database
type testEnv struct {
	db         *gorm.DB
	roles      repository.RoleRepository
	perms      repository.PermissionRepository
	users      repository.UserRepository
	records    repository.RecordRepository
	fields     repository.FieldRepository
	provenance repository.ProvenanceRepository
	audit      AuditService
	superadmin SuperadminService
	rbac       RoleService
	accounts   UserService
	catalog    CatalogService
	finance    RecordService
	payslips   RecordService
	importer   ImportService
	generator  PayslipService
	authz      Authorizer
	events     *recordingPublisher
	metrics    *metrics.Metrics
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithPolicy(t, config.PolicyPermissive)
}

func newTestEnvWithPolicy(t *testing.T, policy string) *testEnv {
	t.Helper()
	db := testutil.TestDB(t)
	log := logger.Discard()

	e := &testEnv{
		db:         db,
		roles:      repository.NewRoleRepository(db),
		perms:      repository.NewPermissionRepository(db),
		users:      repository.NewUserRepository(db),
		records:    repository.NewRecordRepository(db),
		fields:     repository.NewFieldRepository(db),
		provenance: repository.NewProvenanceRepository(db),
		events:     &recordingPublisher{},
		metrics:    metrics.NewMetrics(prometheus.NewRegistry()),
	}
	tx := repository.NewTransactionManager(db)
	e.audit = NewAuditService(repository.NewAuditRepository(db))
	e.superadmin = NewSuperadminService(tx, e.roles, e.perms, e.audit, e.events, e.metrics, log)
	e.rbac = NewRoleService(tx, e.roles, e.perms, e.superadmin, e.audit, e.events, log)
	e.accounts = NewUserService(tx, e.users, e.roles, e.audit, "test-secret")
	e.catalog = NewCatalogService(e.fields, e.audit)
	e.finance = NewRecordService(model.CategoryFinance, tx, e.records, e.provenance, e.catalog, e.audit, log)
	e.payslips = NewRecordService(model.CategoryPayslip, tx, e.records, e.provenance, e.catalog, e.audit, log)
	e.importer = NewImportService(tx, e.records, e.provenance, e.catalog, NewRowValidator(policy, e.users), e.audit, e.events, e.metrics, log)
	e.generator = NewPayslipService(tx, e.records, e.provenance, e.catalog, e.audit, e.events, e.metrics, log)
	e.authz = NewAuthorizer(e.roles, e.metrics)
	return e
}

// seedRecords inserts records of a category directly through the repository
func (e *testEnv) seedRecords(t *testing.T, category string, year int, month string, rows ...map[string]interface{}) []uint {
	t.Helper()
	records := make([]*model.DynamicRecord, 0, len(rows))
	for _, fields := range rows {
		records = append(records, &model.DynamicRecord{
			Category:  category,
			Year:      year,
			MonthName: month,
			Fields:    datatypes.JSONMap(fields),
		})
	}
	require.NoError(t, e.records.CreateBatch(context.Background(), records))

	ids := make([]uint, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	return ids
}

func (e *testEnv) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func (e *testEnv) createRole(t *testing.T, name string, permissionIDs ...string) *RoleResponse {
	t.Helper()
	role, err := e.rbac.CreateRole(context.Background(), CreateRoleRequest{Name: name, PermissionIDs: permissionIDs})
	require.NoError(t, err)
	return role
}

func (e *testEnv) createPermission(t *testing.T, name string) *PermissionResponse {
	t.Helper()
	perm, err := e.rbac.CreatePermission(context.Background(), CreatePermissionRequest{Name: name})
	require.NoError(t, err)
	return perm
}

func mustUUID(t *testing.T, raw string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(raw)
	require.NoError(t, err)
	return id
}
