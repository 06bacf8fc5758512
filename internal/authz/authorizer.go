// Package authz resolves what a user may do from the role_permissions tables.
package authz

import (
	"context"
	"fmt"
	"slices"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RoleAdmin passes every permission check.
const RoleAdmin = "admin"

type Authorizer struct {
	roles repository.RoleRepository
	cache Cache
	ttl   time.Duration
	log   *zap.Logger
}

func NewAuthorizer(roles repository.RoleRepository, cache Cache, ttl time.Duration, log *zap.Logger) *Authorizer {
	if cache == nil {
		cache = NewMemoryCache()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Authorizer{roles: roles, cache: cache, ttl: ttl, log: log}
}

// PermissionsForRole returns the permission codes of a role, served from cache when fresh.
func (a *Authorizer) PermissionsForRole(ctx context.Context, role string) ([]string, error) {
	codes, ok, err := a.cache.Get(ctx, role)
	if err != nil {
		// a broken cache must not block authorization
		a.log.Warn("permission cache read failed", zap.String("role", role), zap.Error(err))
	}
	if ok {
		return codes, nil
	}

	codes, err = a.roles.GetPermissionsByRoleName(ctx, role)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions for role %s: %w", role, err)
	}
	if err := a.cache.Set(ctx, role, codes, a.ttl); err != nil {
		a.log.Warn("permission cache write failed", zap.String("role", role), zap.Error(err))
	}
	return codes, nil
}

func (a *Authorizer) HasPermission(ctx context.Context, role, code string) (bool, error) {
	if role == RoleAdmin {
		return true, nil
	}
	codes, err := a.PermissionsForRole(ctx, role)
	if err != nil {
		return false, err
	}
	return slices.Contains(codes, code), nil
}

// UserRole returns the role stored on the user row, "" for unknown users.
// Route guards and service checks both resolve roles through it.
func (a *Authorizer) UserRole(ctx context.Context, userID string) (string, error) {
	id, err := uuid.Parse(userID)
	if err != nil {
		return "", nil
	}
	role, err := a.roles.GetRoleNameByUserID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to resolve role of user %s: %w", id, err)
	}
	return role, nil
}

func (a *Authorizer) userHas(ctx context.Context, userID uuid.UUID, code string) (bool, error) {
	role, err := a.UserRole(ctx, userID.String())
	if err != nil {
		return false, err
	}
	if role == "" {
		return false, nil
	}
	return a.HasPermission(ctx, role, code)
}

// CanApprove reports whether the user may approve, reject and select on purchase requests.
func (a *Authorizer) CanApprove(ctx context.Context, userID uuid.UUID) (bool, error) {
	return a.userHas(ctx, userID, model.PermRequestsApprove)
}

// CanSubmitOnBehalf reports whether the user may submit requests authored by others.
func (a *Authorizer) CanSubmitOnBehalf(ctx context.Context, userID uuid.UUID) (bool, error) {
	return a.userHas(ctx, userID, model.PermSubmitOnBehalf)
}

// Invalidate drops the cached permissions of a role after its grants change.
func (a *Authorizer) Invalidate(ctx context.Context, role string) error {
	return a.cache.Delete(ctx, role)
}
