package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"procurement/internal/authz"
	"procurement/internal/delivery"
	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/testutil"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu     sync.Mutex
	events []ws.Event
}

func (n *recordingNotifier) Publish(evt ws.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) count(eventType string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, e := range n.events {
		if e.Type == eventType {
			c++
		}
	}
	return c
}

type fakeSender struct {
	method model.Channel
	fail   map[uuid.UUID]error
	block  map[uuid.UUID]bool

	mu   sync.Mutex
	sent []uuid.UUID
}

func (f *fakeSender) Method() model.Channel { return f.method }

func (f *fakeSender) Send(ctx context.Context, supplier model.Supplier, doc *delivery.Document, msg delivery.Message) error {
	if f.block[supplier.ID] {
		<-ctx.Done()
		return ctx.Err()
	}
	if err := f.fail[supplier.ID]; err != nil {
		return err
	}
	if doc == nil || len(doc.Content) == 0 || msg.Subject == "" {
		return errors.New("empty rfq delivery")
	}
	f.mu.Lock()
	f.sent = append(f.sent, supplier.ID)
	f.mu.Unlock()
	return nil
}

type env struct {
	db         *gorm.DB
	requests   RequestService
	quotations QuotationService
	orders     OrderService
	rfqs       RFQService
	settings   SettingsService
	notifier   *recordingNotifier

	requester model.User
	approver  model.User
	buyer     model.User
	other     model.User

	supplierA model.Supplier
	supplierB model.Supplier
	supplierC model.Supplier
}

func newEnv(t *testing.T, senders ...Sender) *env {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx := context.Background()
	log := zap.NewNop()

	roles := repository.NewRoleRepository(db)
	if err := authz.SeedDefaultRolesAndPermissions(ctx, roles); err != nil {
		t.Fatalf("seed roles: %v", err)
	}
	authorizer := authz.NewAuthorizer(roles, authz.NewMemoryCache(), time.Minute, log)

	requestRepo := repository.NewPurchaseRequestRepository(db)
	quotationRepo := repository.NewQuotationRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	rfqRepo := repository.NewRFQRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	opts := Options{DeliveryTimeout: 200 * time.Millisecond, Organization: "Test Org"}
	notifier := &recordingNotifier{}
	settings := NewSettingsService(repository.NewSettingsRepository(db), auditRepo, txManager, workflow.DefaultPolicy(), log)

	e := &env{
		db:       db,
		notifier: notifier,
		settings: settings,
		requests: NewRequestService(requestRepo, supplierRepo, auditRepo, txManager, authorizer, settings, notifier, log, opts),
		quotations: NewQuotationService(quotationRepo, requestRepo, orderRepo, supplierRepo, rfqRepo, auditRepo, txManager,
			authorizer, settings, notifier, log, opts),
		orders: NewOrderService(orderRepo, requestRepo, quotationRepo, supplierRepo, auditRepo, txManager, notifier, log, opts),
		rfqs: NewRFQService(rfqRepo, requestRepo, supplierRepo, auditRepo, txManager,
			delivery.NewSpreadsheetRenderer("Test Org"), senders, nil, notifier, log, opts),
	}
	e.requester = testutil.SeedUser(t, db, "requester", "requester")
	e.approver = testutil.SeedUser(t, db, "approver", "approver")
	e.buyer = testutil.SeedUser(t, db, "buyer", "buyer")
	e.other = testutil.SeedUser(t, db, "other", "requester")
	e.supplierA = testutil.SeedSupplier(t, db, "Acme Ltda", "sales@acme.test", "+56911111111")
	e.supplierB = testutil.SeedSupplier(t, db, "Beta SpA", "quotes@beta.test", "+56922222222")
	e.supplierC = testutil.SeedSupplier(t, db, "Gamma SA", "gamma@gamma.test", "")
	return e
}

func (e *env) createRequest(t *testing.T, purchaseType string, preferred *model.Supplier, items ...RequestItemInput) *model.PurchaseRequest {
	t.Helper()
	in := RequestInput{
		Title:        "Office chairs",
		Description:  "Replacement chairs for the second floor",
		PurchaseType: purchaseType,
		Items:        items,
	}
	if len(items) == 0 {
		in.Items = []RequestItemInput{{Description: "Ergonomic chair", Quantity: "10", Unit: "unit", EstimatedUnitPrice: "55"}}
	}
	if preferred != nil {
		in.PreferredSupplierID = preferred.ID.String()
	}
	req, err := e.requests.Create(context.Background(), e.requester.ID.String(), in)
	if err != nil {
		t.Fatalf("create request: %v", err)
	}
	return req
}

// approve submits and approves req and returns the approved request.
func (e *env) approve(t *testing.T, req *model.PurchaseRequest) *model.PurchaseRequest {
	t.Helper()
	ctx := context.Background()
	if _, err := e.requests.Submit(ctx, req.ID.String(), e.requester.ID.String(), ""); err != nil {
		t.Fatalf("submit: %v", err)
	}
	approved, err := e.requests.Approve(ctx, req.ID.String(), e.approver.ID.String(), "ok")
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	return approved
}

func (e *env) addQuotation(t *testing.T, req *model.PurchaseRequest, supplier model.Supplier, total string) *model.Quotation {
	t.Helper()
	q, err := e.quotations.Create(context.Background(), e.buyer.ID.String(), QuotationInput{
		PurchaseRequestID: req.ID.String(),
		SupplierID:        supplier.ID.String(),
		QuotationNumber:   "Q-" + supplier.BusinessName,
		TotalAmount:       total,
		Subtotal:          total,
		PaymentTerms:      "30 days",
		Items: []QuotationItemInput{
			{Description: "Chair lot", Quantity: "1", UnitPrice: total},
		},
	})
	if err != nil {
		t.Fatalf("add quotation: %v", err)
	}
	return q
}

func (e *env) status(t *testing.T, id uuid.UUID) model.RequestStatus {
	t.Helper()
	var req model.PurchaseRequest
	if err := e.db.First(&req, "id = ?", id).Error; err != nil {
		t.Fatalf("load request: %v", err)
	}
	return req.Status
}

func (e *env) history(t *testing.T, id uuid.UUID) []model.RequestHistory {
	t.Helper()
	entries, err := e.requests.History(context.Background(), id.String())
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	return entries
}

func (e *env) auditCount(t *testing.T, action string) int64 {
	t.Helper()
	var n int64
	if err := e.db.Model(&model.AuditLog{}).Where("action = ?", action).Count(&n).Error; err != nil {
		t.Fatalf("count audit: %v", err)
	}
	return n
}

// assertHistoryWalk checks that the history starts at draft and every status
// change is a legal step from the previous entry's status.
func assertHistoryWalk(t *testing.T, entries []model.RequestHistory) {
	t.Helper()
	if len(entries) == 0 || entries[0].Action != model.HistoryCreated || entries[0].ToStatus != model.RequestDraft {
		t.Fatalf("history must start with created -> draft, got %+v", entries)
	}
	current := entries[0].ToStatus
	for _, h := range entries[1:] {
		if h.FromStatus != current {
			t.Fatalf("history entry %s starts at %s, expected %s", h.Action, h.FromStatus, current)
		}
		if h.FromStatus != h.ToStatus {
			if err := workflow.CheckRequestTransition(h.FromStatus, h.ToStatus); err != nil {
				t.Fatalf("history entry %s: %v", h.Action, err)
			}
		}
		current = h.ToStatus
	}
}

func historyActions(entries []model.RequestHistory) []string {
	out := make([]string, 0, len(entries))
	for _, h := range entries {
		out = append(out, h.Action)
	}
	return out
}
