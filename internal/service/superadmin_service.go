package service

import (
	"context"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Superadmin completeness states reported by Status
const (
	StatusComplete   = "COMPLETE"
	StatusIncomplete = "INCOMPLETE"
)

// Repair triggers, used as metric labels and in audit details
const (
	TriggerCreate   = "create"
	TriggerManual   = "manual"
	TriggerSchedule = "schedule"
	TriggerStartup  = "startup"
)

type SuperadminStatus struct {
	RoleID                string               `json:"role_id,omitempty"`
	TotalPermissions      int64                `json:"total_permissions"`
	SuperadminPermissions int64                `json:"superadmin_permissions"`
	MissingCount          int64                `json:"missing_count"`
	Missing               []PermissionResponse `json:"missing"`
	Status                string               `json:"status"`
}

type RepairResult struct {
	GrantedCount int64 `json:"granted_count"`
	RoleCreated  bool  `json:"role_created"`
}

// SuperadminService keeps the superadmin role holding every permission
type SuperadminService interface {
	// EnsureSuperadminRole resolves the superadmin role by name, creating it when absent
	EnsureSuperadminRole(ctx context.Context) (*model.Role, error)
	// GrantToSuperadmin grants one permission inside the caller's transaction; already held is a no-op
	GrantToSuperadmin(ctx context.Context, permissionID uuid.UUID) error
	Status(ctx context.Context) (*SuperadminStatus, error)
	Repair(ctx context.Context, trigger string) (*RepairResult, error)
}

type superadminService struct {
	tx      repository.TransactionManager
	roles   repository.RoleRepository
	perms   repository.PermissionRepository
	audit   AuditService
	events  Publisher
	metrics *metrics.Metrics
	log     logrus.FieldLogger
}

func NewSuperadminService(
	tx repository.TransactionManager,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	audit AuditService,
	events Publisher,
	m *metrics.Metrics,
	log logrus.FieldLogger,
) SuperadminService {
	return &superadminService{
		tx:      tx,
		roles:   roles,
		perms:   perms,
		audit:   audit,
		events:  publisherOrNop(events),
		metrics: m,
		log:     log.WithField("component", "superadmin"),
	}
}

func (s *superadminService) EnsureSuperadminRole(ctx context.Context) (*model.Role, error) {
	role, _, err := s.ensureRole(ctx)
	return role, err
}

func (s *superadminService) ensureRole(ctx context.Context) (*model.Role, bool, error) {
	role, created, err := s.roles.EnsureByName(ctx, &model.Role{
		Name:        model.SuperadminRoleName,
		Description: model.SuperadminRoleDescription,
		IsActive:    true,
		IsSystem:    true,
	})
	if err != nil {
		return nil, false, storeErr(err, "failed to resolve superadmin role")
	}
	if created {
		s.log.WithField("role_id", role.ID).Warn("superadmin role was missing and has been created")
		if err := s.audit.Record(ctx, model.ActionSuperadminAutoRole, role.ID.String(), role.Name, nil); err != nil {
			return nil, false, err
		}
	}
	return role, created, nil
}

func (s *superadminService) GrantToSuperadmin(ctx context.Context, permissionID uuid.UUID) error {
	role, err := s.EnsureSuperadminRole(ctx)
	if err != nil {
		return err
	}
	granted, err := s.perms.Grant(ctx, role.ID, permissionID)
	if err != nil {
		return storeErr(err, "failed to grant permission to superadmin")
	}
	s.metrics.AddSuperadminGrants(TriggerCreate, granted)
	return nil
}

// Status is a pure read; a missing superadmin role reports every permission as missing
func (s *superadminService) Status(ctx context.Context) (*SuperadminStatus, error) {
	total, err := s.perms.Count(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to count permissions")
	}

	st := &SuperadminStatus{TotalPermissions: total, Missing: []PermissionResponse{}}
	var missing []model.Permission

	role, err := s.roles.FindByName(ctx, model.SuperadminRoleName)
	switch {
	case err == nil:
		st.RoleID = role.ID.String()
		if st.SuperadminPermissions, err = s.perms.CountGranted(ctx, role.ID); err != nil {
			return nil, storeErr(err, "failed to count superadmin permissions")
		}
		if missing, err = s.perms.ListMissing(ctx, role.ID); err != nil {
			return nil, storeErr(err, "failed to list missing permissions")
		}
	case isNotFound(err):
		if missing, err = s.perms.List(ctx); err != nil {
			return nil, storeErr(err, "failed to list permissions")
		}
	default:
		return nil, storeErr(err, "failed to resolve superadmin role")
	}

	for _, p := range missing {
		st.Missing = append(st.Missing, toPermissionResponse(p))
	}
	st.MissingCount = int64(len(missing))
	st.Status = StatusComplete
	if st.MissingCount > 0 {
		st.Status = StatusIncomplete
	}

	s.metrics.ObserveConsistency(st.TotalPermissions, st.SuperadminPermissions)
	return st, nil
}

// Repair grants exactly the missing permissions. It never revokes anything and is safe
// to run concurrently with permission creation.
func (s *superadminService) Repair(ctx context.Context, trigger string) (*RepairResult, error) {
	res := &RepairResult{}
	var roleID uuid.UUID

	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		role, created, err := s.ensureRole(txCtx)
		if err != nil {
			return err
		}
		roleID = role.ID
		res.RoleCreated = created

		missing, err := s.perms.ListMissing(txCtx, role.ID)
		if err != nil {
			return storeErr(err, "failed to list missing permissions")
		}
		if len(missing) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, 0, len(missing))
		names := make([]string, 0, len(missing))
		for _, p := range missing {
			ids = append(ids, p.ID)
			names = append(names, p.Name)
		}
		if res.GrantedCount, err = s.perms.Grant(txCtx, role.ID, ids...); err != nil {
			return storeErr(err, "failed to grant missing permissions")
		}

		return s.audit.Record(txCtx, model.ActionRepairSuperadmin, role.ID.String(), role.Name, map[string]interface{}{
			"trigger":       trigger,
			"granted_count": res.GrantedCount,
			"permissions":   names,
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddSuperadminGrants(trigger, res.GrantedCount)
	if res.GrantedCount > 0 || res.RoleCreated {
		s.log.WithFields(logrus.Fields{
			"trigger":      trigger,
			"granted":      res.GrantedCount,
			"role_created": res.RoleCreated,
		}).Info("superadmin permissions repaired")
		s.events.Publish(EventSuperadminRepair, map[string]interface{}{
			"role_id":       roleID.String(),
			"granted_count": res.GrantedCount,
			"trigger":       trigger,
		})
	}
	// refresh gauges after the write
	if _, err := s.Status(ctx); err != nil {
		s.log.WithError(err).Warn("failed to refresh consistency gauges")
	}
	return res, nil
}
