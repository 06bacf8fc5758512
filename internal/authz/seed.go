package authz

import (
	"context"
	"errors"
	"fmt"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"
)

var defaultPermissions = []model.Permission{
	{Code: model.PermRequestsRead, Name: "View purchase requests", Group: "requests"},
	{Code: model.PermRequestsWrite, Name: "Create and edit purchase requests", Group: "requests"},
	{Code: model.PermRequestsApprove, Name: "Approve, reject and select quotations", Group: "requests"},
	{Code: model.PermSubmitOnBehalf, Name: "Submit requests on behalf of others", Group: "requests"},
	{Code: model.PermQuotationsRead, Name: "View quotations", Group: "quotations"},
	{Code: model.PermQuotationsWrite, Name: "Record quotations", Group: "quotations"},
	{Code: model.PermOrdersRead, Name: "View purchase orders", Group: "orders"},
	{Code: model.PermOrdersWrite, Name: "Manage purchase orders", Group: "orders"},
	{Code: model.PermRFQDispatch, Name: "Send requests for quotation", Group: "quotations"},
	{Code: model.PermSettingsManage, Name: "Manage procurement settings", Group: "settings"},
	{Code: model.PermAuditRead, Name: "View audit log", Group: "audit"},
	{Code: model.PermRolesManage, Name: "Manage roles and permissions", Group: "roles"},
}

var defaultRoles = []struct {
	Name        string
	Description string
	PermCodes   []string
}{
	{
		Name:        RoleAdmin,
		Description: "Full access",
		PermCodes: []string{
			model.PermRequestsRead, model.PermRequestsWrite, model.PermRequestsApprove, model.PermSubmitOnBehalf,
			model.PermQuotationsRead, model.PermQuotationsWrite, model.PermOrdersRead, model.PermOrdersWrite,
			model.PermRFQDispatch, model.PermSettingsManage, model.PermAuditRead, model.PermRolesManage,
		},
	},
	{
		Name:        "approver",
		Description: "Approves requests and chooses suppliers",
		PermCodes: []string{
			model.PermRequestsRead, model.PermRequestsApprove, model.PermQuotationsRead,
			model.PermOrdersRead, model.PermAuditRead,
		},
	},
	{
		Name:        "buyer",
		Description: "Runs quotations and purchase orders",
		PermCodes: []string{
			model.PermRequestsRead, model.PermRequestsWrite, model.PermSubmitOnBehalf,
			model.PermQuotationsRead, model.PermQuotationsWrite, model.PermOrdersRead, model.PermOrdersWrite,
			model.PermRFQDispatch,
		},
	},
	{
		Name:        "requester",
		Description: "Raises purchase requests",
		PermCodes:   []string{model.PermRequestsRead, model.PermRequestsWrite, model.PermQuotationsRead},
	},
}

// SeedDefaultRolesAndPermissions creates the procurement permissions and system roles if missing
// and resets each system role to its default grants.
func SeedDefaultRolesAndPermissions(ctx context.Context, roles repository.RoleRepository) error {
	byCode := make(map[string]model.Permission, len(defaultPermissions))
	for _, p := range defaultPermissions {
		perm := p
		if err := roles.FindOrCreatePermission(ctx, &perm); err != nil {
			return fmt.Errorf("failed to seed permission '%s': %w", p.Code, err)
		}
		byCode[perm.Code] = perm
	}

	for _, def := range defaultRoles {
		role, err := roles.FindByName(ctx, def.Name)
		if err != nil && !errors.Is(err, workflow.ErrNotFound) {
			return fmt.Errorf("failed to look up role '%s': %w", def.Name, err)
		}
		if role == nil {
			role = &model.Role{Name: def.Name, Description: def.Description, IsSystem: true}
			if err := roles.Create(ctx, role); err != nil {
				return fmt.Errorf("failed to seed role '%s': %w", def.Name, err)
			}
		}

		perms := make([]model.Permission, 0, len(def.PermCodes))
		for _, code := range def.PermCodes {
			perms = append(perms, byCode[code])
		}
		if err := roles.ReplacePermissions(ctx, role, perms); err != nil {
			return fmt.Errorf("failed to assign permissions to role '%s': %w", def.Name, err)
		}
	}
	return nil
}
