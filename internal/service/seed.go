package service

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
)

const superadminResource = "superadmin"

type permissionDef struct {
	Resource, Action, Description string
}

func (d permissionDef) name() string {
	return d.Resource + "." + d.Action
}

var defaultPermissions = []permissionDef{
	{"drivers", "view", "View drivers"},
	{"drivers", "create", "Create drivers"},
	{"drivers", "update", "Edit drivers"},
	{"drivers", "delete", "Delete drivers"},
	{"vehicles", "view", "View vehicles"},
	{"vehicles", "create", "Create vehicles"},
	{"vehicles", "update", "Edit vehicles"},
	{"vehicles", "delete", "Delete vehicles"},
	{"bookings", "view", "View bookings"},
	{"bookings", "create", "Create bookings"},
	{"bookings", "update", "Edit bookings"},
	{"bookings", "delete", "Delete bookings"},
	{"finance", "view", "View the finance ledger"},
	{"finance", "import", "Import ledger spreadsheets"},
	{"finance", "update", "Edit ledger records and field metadata"},
	{"finance", "delete", "Delete ledger records, fields and partitions"},
	{"payslips", "view", "View payslips"},
	{"payslips", "generate", "Generate payslips from the ledger"},
	{"payslips", "update", "Edit payslips"},
	{"payslips", "delete", "Delete payslips and payslip fields"},
	{"roles", "view", "View roles"},
	{"roles", "manage", "Create, edit and delete roles"},
	{"permissions", "view", "View permissions"},
	{"permissions", "manage", "Create and delete permissions"},
	{superadminResource, "view", "View superadmin consistency status"},
	{superadminResource, "repair", "Repair superadmin permissions"},
	{"users", "view", "View users"},
	{"users", "manage", "Create users and assign roles"},
	{"audit", "view", "View the audit log"},
	{"events", "subscribe", "Receive live events"},
}

type roleDef struct {
	Description string
	// Grants lists permission names; "*" grants every seeded permission outside superadmin.*
	Grants []string
}

var defaultRoles = map[string]roleDef{
	"admin": {
		Description: "Administrator - full access except superadmin maintenance",
		Grants:      []string{"*"},
	},
	"manager": {
		Description: "Manager - fleet operations, payroll runs and reports",
		Grants: []string{
			"drivers.view", "drivers.create", "drivers.update",
			"vehicles.view", "vehicles.create", "vehicles.update",
			"bookings.view", "bookings.create", "bookings.update", "bookings.delete",
			"finance.view", "finance.import", "finance.update",
			"payslips.view", "payslips.generate",
			"users.view", "audit.view", "events.subscribe",
		},
	},
	"employee": {
		Description: "Employee - bookings and own payslips",
		Grants:      []string{"bookings.view", "bookings.create", "payslips.view"},
	},
	"driver": {
		Description: "Driver - assigned bookings and vehicles",
		Grants:      []string{"bookings.view", "vehicles.view", "payslips.view"},
	},
}

// SeedDefaults creates the default permissions and system roles when absent. Existing
// roles keep whatever grants an administrator gave them. A repair runs last so the
// superadmin role also covers permissions that predate it.
func (s *roleService) SeedDefaults(ctx context.Context) error {
	created := 0
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		byName := make(map[string]model.Permission, len(defaultPermissions))
		for _, def := range defaultPermissions {
			perm, err := s.perms.FindByName(txCtx, def.name())
			switch {
			case err == nil:
			case isNotFound(err):
				perm = &model.Permission{
					Name:        def.name(),
					Resource:    def.Resource,
					Action:      def.Action,
					Description: def.Description,
				}
				if err := s.perms.Create(txCtx, perm); err != nil {
					return storeErr(err, "failed to seed permission '%s'", def.name())
				}
				if err := s.superadmin.GrantToSuperadmin(txCtx, perm.ID); err != nil {
					return err
				}
				created++
			default:
				return storeErr(err, "failed to look up permission '%s'", def.name())
			}
			byName[perm.Name] = *perm
		}

		for roleName, def := range defaultRoles {
			role, isNew, err := s.roles.EnsureByName(txCtx, &model.Role{
				Name:        roleName,
				Description: def.Description,
				IsActive:    true,
				IsSystem:    true,
			})
			if err != nil {
				return storeErr(err, "failed to seed role '%s'", roleName)
			}
			if !isNew {
				continue
			}
			created++
			if err := s.roles.ReplacePermissions(txCtx, role.ID, grantIDs(def.Grants, byName)); err != nil {
				return storeErr(err, "failed to assign permissions to role '%s'", roleName)
			}
		}

		if created == 0 {
			return nil
		}
		return s.audit.Record(txCtx, model.ActionSeedRBAC, "", "rbac", map[string]interface{}{"created": created})
	})
	if err != nil {
		return err
	}

	if created > 0 {
		s.log.WithField("created", created).Info("default roles and permissions seeded")
	}
	_, err = s.superadmin.Repair(ctx, TriggerStartup)
	return err
}

func grantIDs(grants []string, byName map[string]model.Permission) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(byName))
	for _, g := range grants {
		if g == "*" {
			for _, p := range byName {
				if p.Resource != superadminResource {
					ids = append(ids, p.ID)
				}
			}
			continue
		}
		if p, ok := byName[g]; ok {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
