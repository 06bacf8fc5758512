package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type RequestItemInput struct {
	Description        string `json:"description" binding:"required"`
	Quantity           string `json:"quantity" binding:"required"` // Decimal string
	Unit               string `json:"unit"`
	EstimatedUnitPrice string `json:"estimated_unit_price"`
	Specifications     string `json:"specifications"`
}

type RequestInput struct {
	Title               string             `json:"title" binding:"required"`
	Description         string             `json:"description"`
	Justification       string             `json:"justification"`
	EstimatedAmount     string             `json:"estimated_amount"` // ignored when items are given
	Currency            string             `json:"currency"`
	Priority            string             `json:"priority"`
	PurchaseType        string             `json:"purchase_type"` // classified from the amount when empty
	CategoryID          string             `json:"category_id"`
	PreferredSupplierID string             `json:"preferred_supplier_id"`
	RequiredDate        string             `json:"required_date"`
	Notes               string             `json:"notes"`
	Items               []RequestItemInput `json:"items"`
	// Version, when set on update, must match the stored version.
	Version *int `json:"version"`
}

type RequestQuery struct {
	Status       string
	PurchaseType string
	Priority     string
	RequestedBy  string
	Search       string
	Page         int
	Limit        int
}

// ActionInput is the optional body of a lifecycle action.
type ActionInput struct {
	Comments string `json:"comments"`
	Reason   string `json:"reason"` // required to reject; recorded on cancel
}

// RequestDetail is a request with the actions its current status allows.
type RequestDetail struct {
	*model.PurchaseRequest
	AllowedActions []string `json:"allowed_actions"`
}

// --- Interface ---

type RequestService interface {
	Create(ctx context.Context, userID string, in RequestInput) (*model.PurchaseRequest, error)
	Update(ctx context.Context, id, userID string, in RequestInput) (*model.PurchaseRequest, error)
	Delete(ctx context.Context, id, userID string) error
	Get(ctx context.Context, id string) (RequestDetail, error)
	List(ctx context.Context, q RequestQuery) ([]model.PurchaseRequest, int64, error)
	ListPendingApproval(ctx context.Context, page, limit int) ([]model.PurchaseRequest, int64, error)
	History(ctx context.Context, id string) ([]model.RequestHistory, error)

	Submit(ctx context.Context, id, userID, comments string) (*model.PurchaseRequest, error)
	Approve(ctx context.Context, id, userID, comments string) (*model.PurchaseRequest, error)
	Reject(ctx context.Context, id, userID, reason string) (*model.PurchaseRequest, error)
	Cancel(ctx context.Context, id, userID, reason string) (*model.PurchaseRequest, error)
}

type requestService struct {
	requests  repository.PurchaseRequestRepository
	suppliers repository.SupplierRepository
	txManager repository.TransactionManager
	authz     Authorizer
	policy    PolicyProvider
	notifier  Notifier
	lifecycle lifecycle
	audit     auditWriter
	opts      Options
	log       *zap.Logger
}

func NewRequestService(
	requests repository.PurchaseRequestRepository,
	suppliers repository.SupplierRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	authz Authorizer,
	policy PolicyProvider,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) RequestService {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	audit := auditWriter{repo: auditRepo}
	return &requestService{
		requests:  requests,
		suppliers: suppliers,
		txManager: txManager,
		authz:     authz,
		policy:    policy,
		notifier:  notifier,
		lifecycle: lifecycle{requests: requests, audit: audit, now: opts.Now},
		audit:     audit,
		opts:      opts,
		log:       log,
	}
}

// --- Implementation ---

// requestFields is RequestInput after parsing and validation.
type requestFields struct {
	title, description, justification, currency, notes string
	amount                                             decimal.Decimal
	priority                                           model.Priority
	purchaseType                                       model.PurchaseType
	categoryID, preferredSupplierID                    *uuid.UUID
	requiredDate                                       *time.Time
	items                                              []model.RequestItem
}

func (s *requestService) parseInput(ctx context.Context, in RequestInput) (requestFields, error) {
	var f requestFields
	var err error

	f.title = strings.TrimSpace(in.Title)
	if f.title == "" {
		return f, workflow.Validationf("title is required")
	}
	f.description = in.Description
	f.justification = in.Justification
	f.notes = in.Notes

	f.currency = strings.ToUpper(strings.TrimSpace(in.Currency))
	if f.currency == "" {
		f.currency = s.opts.DefaultCurrency
	}
	if len(f.currency) != 3 {
		return f, workflow.Validationf("currency must be a 3-letter code")
	}

	f.priority = model.Priority(strings.TrimSpace(in.Priority))
	if f.priority == "" {
		f.priority = model.PriorityNormal
	}
	if !f.priority.Valid() {
		return f, workflow.Validationf("invalid priority %q", in.Priority)
	}

	if f.categoryID, err = parseOptionalID(in.CategoryID, "category_id"); err != nil {
		return f, err
	}
	if f.preferredSupplierID, err = parseOptionalID(in.PreferredSupplierID, "preferred_supplier_id"); err != nil {
		return f, err
	}
	if f.preferredSupplierID != nil {
		if _, err := s.suppliers.FindByID(ctx, *f.preferredSupplierID); err != nil {
			return f, err
		}
	}
	if f.requiredDate, err = parseDate(in.RequiredDate, "required_date"); err != nil {
		return f, err
	}

	for i, it := range in.Items {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			return f, workflow.Validationf("item %d: description is required", i+1)
		}
		qty, err := parseDecimal(it.Quantity, "quantity")
		if err != nil {
			return f, err
		}
		if !qty.IsPositive() {
			return f, workflow.Validationf("item %d: quantity must be greater than 0", i+1)
		}
		price, err := parseDecimal(it.EstimatedUnitPrice, "estimated_unit_price")
		if err != nil {
			return f, err
		}
		if price.IsNegative() {
			return f, workflow.Validationf("item %d: estimated_unit_price cannot be negative", i+1)
		}
		f.items = append(f.items, model.RequestItem{
			Description:        desc,
			Quantity:           qty,
			Unit:               it.Unit,
			EstimatedUnitPrice: price,
			Specifications:     it.Specifications,
			Position:           i,
		})
	}

	// Items are authoritative for the estimate.
	if len(f.items) > 0 {
		f.amount = (&model.PurchaseRequest{Items: f.items}).ItemsTotal()
	} else {
		if f.amount, err = parseDecimal(in.EstimatedAmount, "estimated_amount"); err != nil {
			return f, err
		}
		if f.amount.IsNegative() {
			return f, workflow.Validationf("estimated_amount cannot be negative")
		}
	}

	f.purchaseType = model.PurchaseType(strings.TrimSpace(in.PurchaseType))
	if f.purchaseType == "" {
		policy, err := s.policy.Policy(ctx)
		if err != nil {
			return f, err
		}
		f.purchaseType = policy.Classify(f.amount)
	}
	if !f.purchaseType.Valid() {
		return f, workflow.Validationf("invalid purchase_type %q", in.PurchaseType)
	}
	return f, nil
}

func (f requestFields) apply(req *model.PurchaseRequest) {
	req.Title = f.title
	req.Description = f.description
	req.Justification = f.justification
	req.EstimatedAmount = f.amount
	req.Currency = f.currency
	req.Priority = f.priority
	req.PurchaseType = f.purchaseType
	req.CategoryID = f.categoryID
	req.PreferredSupplierID = f.preferredSupplierID
	req.RequiredDate = f.requiredDate
	req.Notes = f.notes
}

func (s *requestService) Create(ctx context.Context, userID string, in RequestInput) (*model.PurchaseRequest, error) {
	requester, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	fields, err := s.parseInput(ctx, in)
	if err != nil {
		return nil, err
	}

	req := &model.PurchaseRequest{
		Status:      model.RequestDraft,
		RequestedBy: requester,
		Items:       fields.items,
	}
	fields.apply(req)

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.requests.NextNumber(txCtx, s.opts.Now())
		if err != nil {
			return err
		}
		req.RequestNumber = number

		if err := s.requests.Create(txCtx, req); err != nil {
			return fmt.Errorf("failed to create purchase request: %w", err)
		}
		if err := s.lifecycle.record(txCtx, req.ID, model.HistoryCreated, "", model.RequestDraft, &requester, ""); err != nil {
			return err
		}
		return s.audit.write(txCtx, &requester, model.ActionCreatePurchaseRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{
				"title":            req.Title,
				"estimated_amount": req.EstimatedAmount.String(),
				"purchase_type":    req.PurchaseType,
				"items":            len(req.Items),
			})
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("purchase request created",
		zap.String("request_number", req.RequestNumber),
		zap.String("purchase_type", string(req.PurchaseType)),
		actorField(requester))
	return req, nil
}

// canActOnBehalf reports whether actor may edit or submit a request authored by someone else.
func (s *requestService) canActOnBehalf(ctx context.Context, actor uuid.UUID) (bool, error) {
	ok, err := s.authz.CanSubmitOnBehalf(ctx, actor)
	if err != nil {
		return false, fmt.Errorf("failed to check permissions: %w", err)
	}
	return ok, nil
}

func (s *requestService) Update(ctx context.Context, id, userID string, in RequestInput) (*model.PurchaseRequest, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	onBehalf, err := s.canActOnBehalf(ctx, actor)
	if err != nil {
		return nil, err
	}
	fields, err := s.parseInput(ctx, in)
	if err != nil {
		return nil, err
	}

	var req *model.PurchaseRequest
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err = s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.RequestedBy != actor && !onBehalf {
			return fmt.Errorf("%w: only the author can edit this request", workflow.ErrUnauthorized)
		}
		if req.Status != model.RequestDraft {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionEdit}
		}
		if in.Version != nil && *in.Version != req.Version {
			return fmt.Errorf("%w: purchase request %s is at version %d", workflow.ErrConcurrentModification, req.ID, req.Version)
		}

		fields.apply(req)
		if err := s.requests.UpdateWithVersion(txCtx, req, req.Version); err != nil {
			return err
		}
		if err := s.requests.ReplaceItems(txCtx, req.ID, fields.items); err != nil {
			return fmt.Errorf("failed to replace request items: %w", err)
		}
		req.Items = fields.items
		if err := s.lifecycle.record(txCtx, req.ID, model.HistoryUpdated, req.Status, req.Status, &actor, ""); err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionUpdatePurchaseRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"estimated_amount": req.EstimatedAmount.String(), "items": len(req.Items)})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *requestService) Delete(ctx context.Context, id, userID string) error {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return err
	}
	onBehalf, err := s.canActOnBehalf(ctx, actor)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		req, err := s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.RequestedBy != actor && !onBehalf {
			return fmt.Errorf("%w: only the author can delete this request", workflow.ErrUnauthorized)
		}
		if req.Status != model.RequestDraft {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionDelete}
		}
		if err := s.requests.Delete(txCtx, req.ID); err != nil {
			return fmt.Errorf("failed to delete purchase request: %w", err)
		}
		return s.audit.write(txCtx, &actor, model.ActionDeletePurchaseRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"title": req.Title})
	})
}

func (s *requestService) Get(ctx context.Context, id string) (RequestDetail, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return RequestDetail{}, err
	}
	req, err := s.requests.FindDetail(ctx, requestID)
	if err != nil {
		return RequestDetail{}, err
	}
	return RequestDetail{PurchaseRequest: req, AllowedActions: workflow.AllowedActions(req.Status)}, nil
}

func (s *requestService) List(ctx context.Context, q RequestQuery) ([]model.PurchaseRequest, int64, error) {
	if q.Status != "" && !model.RequestStatus(q.Status).Valid() {
		return nil, 0, workflow.Validationf("invalid status %q", q.Status)
	}
	requestedBy, err := parseOptionalID(q.RequestedBy, "requested_by")
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(q.Page, q.Limit)
	requests, total, err := s.requests.List(ctx, repository.RequestFilter{
		Status:       q.Status,
		PurchaseType: q.PurchaseType,
		Priority:     q.Priority,
		RequestedBy:  requestedBy,
		Search:       q.Search,
		Page:         page,
		Limit:        limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase requests: %w", err)
	}
	return requests, total, nil
}

func (s *requestService) ListPendingApproval(ctx context.Context, page, limit int) ([]model.PurchaseRequest, int64, error) {
	return s.List(ctx, RequestQuery{Status: string(model.RequestPendingApproval), Page: page, Limit: limit})
}

func (s *requestService) History(ctx context.Context, id string) ([]model.RequestHistory, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	if _, err := s.requests.FindByID(ctx, requestID); err != nil {
		return nil, err
	}
	return s.requests.ListHistory(ctx, requestID)
}

// runTransition re-reads the request and applies step in a retried transaction,
// then publishes the new status.
func (s *requestService) runTransition(ctx context.Context, requestID uuid.UUID, actor uuid.UUID, step func(txCtx context.Context, req *model.PurchaseRequest) error) (*model.PurchaseRequest, error) {
	var req *model.PurchaseRequest
	err := s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		var err error
		req, err = s.requests.FindByID(txCtx, requestID)
		if err != nil {
			return err
		}
		return step(txCtx, req)
	})
	if err != nil {
		return nil, err
	}
	s.notifier.Publish(requestEvent(req, &actor))
	return req, nil
}

func (s *requestService) Submit(ctx context.Context, id, userID, comments string) (*model.PurchaseRequest, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	onBehalf, err := s.canActOnBehalf(ctx, actor)
	if err != nil {
		return nil, err
	}

	req, err := s.runTransition(ctx, requestID, actor, func(txCtx context.Context, req *model.PurchaseRequest) error {
		if req.RequestedBy != actor && !onBehalf {
			return fmt.Errorf("%w: only the author can submit this request", workflow.ErrUnauthorized)
		}
		if err := s.lifecycle.transition(txCtx, req, model.RequestPendingApproval, model.HistorySubmitted, &actor, comments, nil); err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionSubmitRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"estimated_amount": req.EstimatedAmount.String()})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase request submitted", zap.String("request_number", req.RequestNumber), actorField(actor))
	return req, nil
}

func (s *requestService) requireApprover(ctx context.Context, actor uuid.UUID) error {
	ok, err := s.authz.CanApprove(ctx, actor)
	if err != nil {
		return fmt.Errorf("failed to check permissions: %w", err)
	}
	if !ok {
		return fmt.Errorf("%w: approver capability required", workflow.ErrUnauthorized)
	}
	return nil
}

func (s *requestService) Approve(ctx context.Context, id, userID, comments string) (*model.PurchaseRequest, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, actor); err != nil {
		return nil, err
	}
	policy, err := s.policy.Policy(ctx)
	if err != nil {
		return nil, err
	}

	req, err := s.runTransition(ctx, requestID, actor, func(txCtx context.Context, req *model.PurchaseRequest) error {
		target := policy.ApprovalTarget(req.PurchaseType)
		now := s.opts.Now()
		err := s.lifecycle.transition(txCtx, req, target, model.HistoryApproved, &actor, comments, func() {
			req.ApprovedBy = &actor
			req.ApprovedAt = &now
		})
		if err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionApproveRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"status": req.Status, "comments": comments})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase request approved",
		zap.String("request_number", req.RequestNumber),
		zap.String("status", string(req.Status)),
		actorField(actor))
	return req, nil
}

func (s *requestService) Reject(ctx context.Context, id, userID, reason string) (*model.PurchaseRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, workflow.ErrMissingReason
	}
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	if err := s.requireApprover(ctx, actor); err != nil {
		return nil, err
	}

	req, err := s.runTransition(ctx, requestID, actor, func(txCtx context.Context, req *model.PurchaseRequest) error {
		err := s.lifecycle.transition(txCtx, req, model.RequestRejected, model.HistoryRejected, &actor, reason, func() {
			req.RejectionReason = reason
		})
		if err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionRejectRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase request rejected", zap.String("request_number", req.RequestNumber), actorField(actor))
	return req, nil
}

func (s *requestService) Cancel(ctx context.Context, id, userID, reason string) (*model.PurchaseRequest, error) {
	requestID, err := parseID(id, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	approver, err := s.authz.CanApprove(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to check permissions: %w", err)
	}
	reason = strings.TrimSpace(reason)

	req, err := s.runTransition(ctx, requestID, actor, func(txCtx context.Context, req *model.PurchaseRequest) error {
		if req.RequestedBy != actor && !approver {
			return fmt.Errorf("%w: only the author or an approver can cancel this request", workflow.ErrUnauthorized)
		}
		if err := s.lifecycle.transition(txCtx, req, model.RequestCancelled, model.HistoryCancelled, &actor, reason, nil); err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionCancelRequest, req.ID.String(), req.RequestNumber,
			map[string]interface{}{"reason": reason})
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("purchase request cancelled", zap.String("request_number", req.RequestNumber), actorField(actor))
	return req, nil
}

// loadRequest wraps repository failures other than NotFound.
func loadRequest(ctx context.Context, requests repository.PurchaseRequestRepository, id uuid.UUID) (*model.PurchaseRequest, error) {
	req, err := requests.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load purchase request: %w", err)
	}
	return req, nil
}
