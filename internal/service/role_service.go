package service

import (
	"context"
	"sort"
	"strings"

	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/pkg/apperror"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name          string   `json:"name" binding:"required"`
	Description   string   `json:"description"`
	PermissionIDs []string `json:"permission_ids"`
}

type UpdateRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	IsActive    *bool  `json:"is_active"`
}

type AssignPermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

type CreatePermissionRequest struct {
	Name        string `json:"name" binding:"required"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type RoleResponse struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsActive    bool                 `json:"is_active"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
	CreatedAt   string               `json:"created_at"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type PermissionGroup struct {
	Resource    string               `json:"resource"`
	Permissions []PermissionResponse `json:"permissions"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error)
	DeleteRole(ctx context.Context, id string) error
	AssignPermissions(ctx context.Context, roleID string, req AssignPermissionsRequest) (*RoleResponse, error)

	CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error)
	DeletePermission(ctx context.Context, id string) error
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	ListPermissionsGrouped(ctx context.Context) ([]PermissionGroup, error)
	GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error)

	SeedDefaults(ctx context.Context) error
}

type roleService struct {
	tx         repository.TransactionManager
	roles      repository.RoleRepository
	perms      repository.PermissionRepository
	superadmin SuperadminService
	audit      AuditService
	events     Publisher
	log        logrus.FieldLogger
}

func NewRoleService(
	tx repository.TransactionManager,
	roles repository.RoleRepository,
	perms repository.PermissionRepository,
	superadmin SuperadminService,
	audit AuditService,
	events Publisher,
	log logrus.FieldLogger,
) RoleService {
	return &roleService{
		tx:         tx,
		roles:      roles,
		perms:      perms,
		superadmin: superadmin,
		audit:      audit,
		events:     publisherOrNop(events),
		log:        log.WithField("component", "rbac"),
	}
}

// --- Roles ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.ListAll(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to fetch roles")
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseUUID(id, "role")
	if err != nil {
		return nil, err
	}
	return s.getRole(ctx, roleID)
}

func (s *roleService) getRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roles.FindByIDWithPermissions(ctx, id)
	if err != nil {
		return nil, storeErr(err, "role '%s' not found", id)
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, req CreateRoleRequest) (*RoleResponse, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("role name is required")
	}
	if name == model.SuperadminRoleName {
		return nil, apperror.Forbidden("the %s role is managed by the system", model.SuperadminRoleName)
	}
	if _, err := s.roles.FindByName(ctx, name); err == nil {
		return nil, apperror.DuplicateKey("role '%s' already exists", name)
	}

	permIDs, err := s.resolvePermissionIDs(ctx, req.PermissionIDs)
	if err != nil {
		return nil, err
	}

	role := &model.Role{Name: name, Description: req.Description, IsActive: true}
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Create(txCtx, role); err != nil {
			return storeErr(err, "failed to create role '%s'", name)
		}
		if len(permIDs) > 0 {
			if err := s.roles.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
				return storeErr(err, "failed to assign permissions")
			}
		}
		return s.audit.Record(txCtx, model.ActionCreateRole, role.ID.String(), role.Name, map[string]interface{}{
			"permission_count": len(permIDs),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.getRole(ctx, role.ID)
}

// UpdateRole changes description and activity. Renaming is refused for system roles and
// for roles users already hold.
func (s *roleService) UpdateRole(ctx context.Context, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := parseUUID(id, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return nil, storeErr(err, "role '%s' not found", id)
	}

	name := strings.TrimSpace(req.Name)
	if name != "" && name != role.Name {
		if model.IsProtectedRole(role.Name) || model.IsProtectedRole(name) {
			return nil, apperror.Forbidden("system role '%s' cannot be renamed", role.Name)
		}
		users, err := s.roles.CountUsers(ctx, role.ID)
		if err != nil {
			return nil, storeErr(err, "failed to count role users")
		}
		if users > 0 {
			return nil, apperror.Conflict("role '%s' is assigned to %d users and cannot be renamed", role.Name, users)
		}
		if _, err := s.roles.FindByName(ctx, name); err == nil {
			return nil, apperror.DuplicateKey("role '%s' already exists", name)
		}
		role.Name = name
	}
	if req.IsActive != nil {
		if role.Name == model.SuperadminRoleName && !*req.IsActive {
			return nil, apperror.Forbidden("the %s role cannot be deactivated", model.SuperadminRoleName)
		}
		role.IsActive = *req.IsActive
	}
	if req.Description != "" {
		role.Description = req.Description
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Update(txCtx, role); err != nil {
			return storeErr(err, "failed to update role")
		}
		return s.audit.Record(txCtx, model.ActionUpdateRole, role.ID.String(), role.Name, req)
	})
	if err != nil {
		return nil, err
	}

	return s.getRole(ctx, role.ID)
}

func (s *roleService) DeleteRole(ctx context.Context, id string) error {
	roleID, err := parseUUID(id, "role")
	if err != nil {
		return err
	}
	role, err := s.roles.FindByID(ctx, roleID)
	if err != nil {
		return storeErr(err, "role '%s' not found", id)
	}

	if model.IsProtectedRole(role.Name) {
		return apperror.Conflict("cannot delete system role '%s'", role.Name)
	}
	users, err := s.roles.CountUsers(ctx, role.ID)
	if err != nil {
		return storeErr(err, "failed to count role users")
	}
	if users > 0 {
		return apperror.Conflict("role '%s' is still assigned to %d users", role.Name, users)
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.Delete(txCtx, role.ID); err != nil {
			return storeErr(err, "failed to delete role")
		}
		return s.audit.Record(txCtx, model.ActionDeleteRole, role.ID.String(), role.Name, nil)
	})
}

// AssignPermissions replaces the role's whole permission set
func (s *roleService) AssignPermissions(ctx context.Context, roleID string, req AssignPermissionsRequest) (*RoleResponse, error) {
	id, err := parseUUID(roleID, "role")
	if err != nil {
		return nil, err
	}
	role, err := s.roles.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, "role '%s' not found", roleID)
	}
	if role.Name == model.SuperadminRoleName {
		return nil, apperror.Forbidden("permissions of the %s role are managed by the system", model.SuperadminRoleName)
	}

	permIDs, err := s.resolvePermissionIDs(ctx, req.PermissionIDs)
	if err != nil {
		return nil, err
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.roles.ReplacePermissions(txCtx, role.ID, permIDs); err != nil {
			return storeErr(err, "failed to update permissions")
		}
		return s.audit.Record(txCtx, model.ActionAssignPermissions, role.ID.String(), role.Name, map[string]interface{}{
			"permission_ids": req.PermissionIDs,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.getRole(ctx, role.ID)
}

// resolvePermissionIDs parses and dedupes ids, failing with every bad id listed
func (s *roleService) resolvePermissionIDs(ctx context.Context, raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	var malformed []string
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			malformed = append(malformed, r)
			continue
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(malformed) > 0 {
		return nil, apperror.Validation("malformed permission ids").
			WithDetails(map[string]interface{}{"invalid_ids": malformed})
	}

	found, err := s.perms.FindByIDs(ctx, ids)
	if err != nil {
		return nil, storeErr(err, "failed to fetch permissions")
	}
	if len(found) != len(ids) {
		known := make(map[uuid.UUID]bool, len(found))
		for _, p := range found {
			known[p.ID] = true
		}
		unknown := []string{}
		for _, id := range ids {
			if !known[id] {
				unknown = append(unknown, id.String())
			}
		}
		return nil, apperror.Validation("unknown permission ids").
			WithDetails(map[string]interface{}{"unknown_ids": unknown})
	}
	return ids, nil
}

// --- Permissions ---

// CreatePermission stores the permission and grants it to superadmin in the same
// transaction, so no committed state shows it ungranted.
func (s *roleService) CreatePermission(ctx context.Context, req CreatePermissionRequest) (*PermissionResponse, error) {
	perm, err := newPermission(req)
	if err != nil {
		return nil, err
	}
	if _, err := s.perms.FindByName(ctx, perm.Name); err == nil {
		return nil, apperror.DuplicateKey("permission '%s' already exists", perm.Name)
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.perms.Create(txCtx, perm); err != nil {
			return storeErr(err, "failed to create permission '%s'", perm.Name)
		}
		if err := s.superadmin.GrantToSuperadmin(txCtx, perm.ID); err != nil {
			return err
		}
		return s.audit.Record(txCtx, model.ActionCreatePermission, perm.ID.String(), perm.Name, nil)
	})
	if err != nil {
		return nil, err
	}

	resp := toPermissionResponse(*perm)
	s.log.WithField("permission", perm.Name).Info("permission created")
	s.events.Publish(EventPermissionCreated, resp)
	return &resp, nil
}

func newPermission(req CreatePermissionRequest) (*model.Permission, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, apperror.Validation("permission name is required")
	}
	resource, action := strings.TrimSpace(req.Resource), strings.TrimSpace(req.Action)
	if resource == "" || action == "" {
		// conventional resource.action naming fills what the caller left out
		parts := strings.SplitN(name, ".", 2)
		if resource == "" {
			resource = parts[0]
		}
		if action == "" && len(parts) == 2 {
			action = parts[1]
		}
	}
	if action == "" {
		return nil, apperror.Validation("permission '%s' needs an action", name)
	}
	return &model.Permission{
		Name:        name,
		Resource:    resource,
		Action:      action,
		Description: req.Description,
	}, nil
}

func (s *roleService) DeletePermission(ctx context.Context, id string) error {
	permID, err := parseUUID(id, "permission")
	if err != nil {
		return err
	}
	perm, err := s.perms.FindByID(ctx, permID)
	if err != nil {
		return storeErr(err, "permission '%s' not found", id)
	}

	return s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.perms.Delete(txCtx, perm.ID); err != nil {
			return storeErr(err, "failed to delete permission")
		}
		return s.audit.Record(txCtx, model.ActionDeletePermission, perm.ID.String(), perm.Name, nil)
	})
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.perms.List(ctx)
	if err != nil {
		return nil, storeErr(err, "failed to fetch permissions")
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

func (s *roleService) ListPermissionsGrouped(ctx context.Context) ([]PermissionGroup, error) {
	perms, err := s.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}

	byResource := map[string][]PermissionResponse{}
	for _, p := range perms {
		byResource[p.Resource] = append(byResource[p.Resource], p)
	}
	groups := make([]PermissionGroup, 0, len(byResource))
	for resource, list := range byResource {
		groups = append(groups, PermissionGroup{Resource: resource, Permissions: list})
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Resource < groups[j].Resource })
	return groups, nil
}

func (s *roleService) GetPermissionsByRoleName(ctx context.Context, roleName string) ([]string, error) {
	names, err := s.roles.GetPermissionsByRoleName(ctx, roleName)
	if err != nil {
		return nil, storeErr(err, "failed to fetch permissions of role '%s'", roleName)
	}
	return names, nil
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		IsSystem:    r.IsSystem,
		Permissions: perms,
		CreatedAt:   r.CreatedAt.Format("2006-01-02 15:04:05"),
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{
		ID:          p.ID.String(),
		Name:        p.Name,
		Resource:    p.Resource,
		Action:      p.Action,
		Description: p.Description,
	}
}
