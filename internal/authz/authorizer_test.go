package authz

import (
	"context"
	"testing"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/testutil"

	"go.uber.org/zap"
)

func TestAuthorizerRoles(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	roles := repository.NewRoleRepository(db)
	if err := SeedDefaultRolesAndPermissions(ctx, roles); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// seeding twice must be idempotent
	if err := SeedDefaultRolesAndPermissions(ctx, roles); err != nil {
		t.Fatalf("reseed: %v", err)
	}

	approver := testutil.SeedUser(t, db, "alice", "approver")
	requester := testutil.SeedUser(t, db, "bob", "requester")
	buyer := testutil.SeedUser(t, db, "carol", "buyer")
	admin := testutil.SeedUser(t, db, "root", RoleAdmin)

	a := NewAuthorizer(roles, NewMemoryCache(), time.Minute, zap.NewNop())

	cases := []struct {
		name     string
		check    func() (bool, error)
		expected bool
	}{
		{"approver can approve", func() (bool, error) { return a.CanApprove(ctx, approver.ID) }, true},
		{"requester cannot approve", func() (bool, error) { return a.CanApprove(ctx, requester.ID) }, false},
		{"buyer submits on behalf", func() (bool, error) { return a.CanSubmitOnBehalf(ctx, buyer.ID) }, true},
		{"approver cannot submit on behalf", func() (bool, error) { return a.CanSubmitOnBehalf(ctx, approver.ID) }, false},
		{"admin can do anything", func() (bool, error) { return a.CanApprove(ctx, admin.ID) }, true},
	}
	for _, tc := range cases {
		got, err := tc.check()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got != tc.expected {
			t.Fatalf("%s: expected %v got %v", tc.name, tc.expected, got)
		}
	}
}

func TestAuthorizerServesFromCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	roles := repository.NewRoleRepository(db)
	if err := SeedDefaultRolesAndPermissions(ctx, roles); err != nil {
		t.Fatalf("seed: %v", err)
	}
	a := NewAuthorizer(roles, NewMemoryCache(), time.Minute, zap.NewNop())

	ok, err := a.HasPermission(ctx, "approver", model.PermRequestsApprove)
	if err != nil || !ok {
		t.Fatalf("expected approver permission, got %v %v", ok, err)
	}

	if err := db.Exec("DELETE FROM role_permissions").Error; err != nil {
		t.Fatalf("clear grants: %v", err)
	}
	ok, _ = a.HasPermission(ctx, "approver", model.PermRequestsApprove)
	if !ok {
		t.Fatalf("cached grant should still apply before invalidation")
	}

	if err := a.Invalidate(ctx, "approver"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	ok, _ = a.HasPermission(ctx, "approver", model.PermRequestsApprove)
	if ok {
		t.Fatalf("grant must be gone after invalidation")
	}
}

func TestUnknownUserHasNoPermissions(t *testing.T) {
	db := testutil.SetupTestDB(t)
	a := NewAuthorizer(repository.NewRoleRepository(db), nil, 0, zap.NewNop())
	ok, err := a.CanApprove(context.Background(), testutil.SeedUser(t, db, "ghost", "").ID)
	if err != nil || ok {
		t.Fatalf("user without role must not approve: %v %v", ok, err)
	}
}

func TestUserRoleComesFromUserRow(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	a := NewAuthorizer(repository.NewRoleRepository(db), nil, 0, zap.NewNop())
	approver := testutil.SeedUser(t, db, "ana", "approver")

	role, err := a.UserRole(ctx, approver.ID.String())
	if err != nil || role != "approver" {
		t.Fatalf("expected approver, got %q %v", role, err)
	}
	for _, id := range []string{"not-a-uuid", "6f0b7c1e-0000-0000-0000-000000000000"} {
		if role, err := a.UserRole(ctx, id); err != nil || role != "" {
			t.Fatalf("%s: unknown users have no role, got %q %v", id, role, err)
		}
	}
}
