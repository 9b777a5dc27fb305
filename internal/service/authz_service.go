package service

import (
	"context"

	"fleetops/internal/metrics"
	"fleetops/internal/repository"
)

// Authorizer decides whether a role holds a permission. Every call reads the store;
// grants made by another request are visible immediately.
type Authorizer interface {
	Allowed(ctx context.Context, roleName, permission string) (bool, error)
}

type authorizer struct {
	roles   repository.RoleRepository
	metrics *metrics.Metrics
}

func NewAuthorizer(roles repository.RoleRepository, m *metrics.Metrics) Authorizer {
	return &authorizer{roles: roles, metrics: m}
}

func (a *authorizer) Allowed(ctx context.Context, roleName, permission string) (bool, error) {
	if roleName == "" || permission == "" {
		a.metrics.ObserveDecision(false)
		return false, nil
	}
	ok, err := a.roles.RoleHasPermission(ctx, roleName, permission)
	if err != nil {
		return false, storeErr(err, "failed to check permission '%s'", permission)
	}
	a.metrics.ObserveDecision(ok)
	return ok, nil
}
