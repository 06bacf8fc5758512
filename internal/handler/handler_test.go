package handler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"procurement/internal/authz"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/testutil"
	"procurement/internal/workflow"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// openGuard admits every caller; permission checks are covered by the middleware tests.
type openGuard struct{}

func (openGuard) Require(...string) gin.HandlerFunc {
	return func(c *gin.Context) { c.Next() }
}

type harness struct {
	requests   service.RequestService
	quotations service.QuotationService
	orders     service.OrderService
	rfqs       service.RFQService
	settings   service.SettingsService
	audit      service.AuditService
	roles      service.RoleService
	suppliers  service.SupplierService

	requester model.User
	approver  model.User
	buyer     model.User
	supplier  model.Supplier
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	log := zap.NewNop()

	roleRepo := repository.NewRoleRepository(db)
	if err := authz.SeedDefaultRolesAndPermissions(ctx, roleRepo); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	authorizer := authz.NewAuthorizer(roleRepo, authz.NewMemoryCache(), time.Minute, log)

	requestRepo := repository.NewPurchaseRequestRepository(db)
	quotationRepo := repository.NewQuotationRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	rfqRepo := repository.NewRFQRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)
	settings := service.NewSettingsService(repository.NewSettingsRepository(db), auditRepo, txManager, workflow.DefaultPolicy(), log)
	opts := service.Options{}

	h := &harness{
		settings:   settings,
		requests:   service.NewRequestService(requestRepo, supplierRepo, auditRepo, txManager, authorizer, settings, nil, log, opts),
		quotations: service.NewQuotationService(quotationRepo, requestRepo, orderRepo, supplierRepo, rfqRepo, auditRepo, txManager, authorizer, settings, nil, log, opts),
		orders:     service.NewOrderService(orderRepo, requestRepo, quotationRepo, supplierRepo, auditRepo, txManager, nil, log, opts),
		rfqs:       service.NewRFQService(rfqRepo, requestRepo, supplierRepo, auditRepo, txManager, nil, nil, nil, nil, log, opts),
		audit:      service.NewAuditService(auditRepo),
		roles:      service.NewRoleService(roleRepo, auditRepo, txManager, authorizer, log),
		suppliers:  service.NewSupplierService(supplierRepo),
	}
	h.requester = testutil.SeedUser(t, db, "requester", "requester")
	h.approver = testutil.SeedUser(t, db, "approver", "approver")
	h.buyer = testutil.SeedUser(t, db, "buyer", "buyer")
	h.supplier = testutil.SeedSupplier(t, db, "Acme Ltda", "sales@acme.test", "+56911111111")
	return h
}

// router serves every handler as user.
func (h *harness) router(user model.User) *gin.Engine {
	r := testutil.SetupRouter()
	r.Use(testutil.AsUser(user.ID, user.Role))
	api := r.Group("")
	guard := openGuard{}
	NewRequestHandler(h.requests).RegisterRoutes(api, guard)
	NewQuotationHandler(h.quotations).RegisterRoutes(api, guard)
	NewOrderHandler(h.orders).RegisterRoutes(api, guard)
	NewRFQHandler(h.rfqs).RegisterRoutes(api, guard)
	NewSettingsHandler(h.settings).RegisterRoutes(api, guard)
	NewAuditHandler(h.audit).RegisterRoutes(api, guard)
	NewRoleHandler(h.roles).RegisterRoutes(api, guard)
	NewSupplierHandler(h.suppliers).RegisterRoutes(api, guard)
	return r
}

type errorBody struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func decodeError(t *testing.T, body []byte) errorBody {
	t.Helper()
	var e errorBody
	if err := json.Unmarshal(body, &e); err != nil {
		t.Fatalf("decode error body: %v (%s)", err, body)
	}
	return e
}

func expectStatus(t *testing.T, got, want int, body string) {
	t.Helper()
	if got != want {
		t.Fatalf("expected status %d, got %d: %s", want, got, body)
	}
}
