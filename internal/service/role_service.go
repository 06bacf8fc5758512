package service

import (
	"context"
	"fmt"
	"strings"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"go.uber.org/zap"
)

// --- DTOs ---

type UpdateRolePermissionsRequest struct {
	PermissionCodes []string `json:"permission_codes" binding:"required"`
}

type RoleResponse struct {
	Name        string               `json:"name"`
	Description string               `json:"description"`
	IsSystem    bool                 `json:"is_system"`
	Permissions []PermissionResponse `json:"permissions"`
}

type PermissionResponse struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Group string `json:"group"`
}

// PermissionCache is the part of the authorizer that must forget a role's grants.
type PermissionCache interface {
	Invalidate(ctx context.Context, role string) error
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	UpdateRolePermissions(ctx context.Context, roleName, userID string, req UpdateRolePermissionsRequest) (*RoleResponse, error)
}

type roleService struct {
	roles     repository.RoleRepository
	txManager repository.TransactionManager
	cache     PermissionCache
	audit     auditWriter
	log       *zap.Logger
}

func NewRoleService(roles repository.RoleRepository, auditRepo repository.AuditRepository, txManager repository.TransactionManager, cache PermissionCache, log *zap.Logger) RoleService {
	return &roleService{
		roles:     roles,
		txManager: txManager,
		cache:     cache,
		audit:     auditWriter{repo: auditRepo},
		log:       log,
	}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roles.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, toPermissionResponse(p))
	}
	return res, nil
}

// UpdateRolePermissions replaces the grants of a role and drops its cached permission set.
func (s *roleService) UpdateRolePermissions(ctx context.Context, roleName, userID string, req UpdateRolePermissionsRequest) (*RoleResponse, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(req.PermissionCodes))
	seen := make(map[string]bool, len(req.PermissionCodes))
	for _, c := range req.PermissionCodes {
		c = strings.TrimSpace(c)
		if c != "" && !seen[c] {
			seen[c] = true
			codes = append(codes, c)
		}
	}

	var role *model.Role
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err = s.roles.FindByName(txCtx, roleName)
		if err != nil {
			return err
		}
		perms, err := s.roles.FindPermissionsByCodes(txCtx, codes)
		if err != nil {
			return fmt.Errorf("failed to fetch permissions: %w", err)
		}
		if len(perms) != len(codes) {
			known := make(map[string]bool, len(perms))
			for _, p := range perms {
				known[p.Code] = true
			}
			for _, c := range codes {
				if !known[c] {
					return workflow.Validationf("unknown permission %q", c)
				}
			}
		}
		if err := s.roles.ReplacePermissions(txCtx, role, perms); err != nil {
			return fmt.Errorf("failed to update permissions: %w", err)
		}
		role.Permissions = perms
		return s.audit.write(txCtx, &actor, model.ActionUpdateRolePermissions, role.ID.String(), role.Name,
			map[string]interface{}{"permissions": codes})
	})
	if err != nil {
		return nil, err
	}

	if err := s.cache.Invalidate(ctx, role.Name); err != nil {
		s.log.Warn("failed to invalidate permission cache", zap.String("role", role.Name), zap.Error(err))
	}
	s.log.Info("role permissions updated", zap.String("role", role.Name), zap.Int("permissions", len(codes)), actorField(actor))
	resp := toRoleResponse(*role)
	return &resp, nil
}

func toRoleResponse(r model.Role) RoleResponse {
	perms := make([]PermissionResponse, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		perms = append(perms, toPermissionResponse(p))
	}
	return RoleResponse{
		Name:        r.Name,
		Description: r.Description,
		IsSystem:    r.IsSystem,
		Permissions: perms,
	}
}

func toPermissionResponse(p model.Permission) PermissionResponse {
	return PermissionResponse{Code: p.Code, Name: p.Name, Group: p.Group}
}
