package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"procurement/internal/comparison"
	"procurement/internal/model"
	"procurement/internal/repository"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// --- DTOs ---

type QuotationItemInput struct {
	RequestItemID string `json:"request_item_id"`
	Description   string `json:"description" binding:"required"`
	Quantity      string `json:"quantity" binding:"required"`
	Unit          string `json:"unit"`
	UnitPrice     string `json:"unit_price" binding:"required"`
	Notes         string `json:"notes"`
}

type QuotationInput struct {
	PurchaseRequestID  string               `json:"purchase_request_id" binding:"required"`
	SupplierID         string               `json:"supplier_id" binding:"required"`
	QuotationRequestID string               `json:"quotation_request_id"`
	QuotationNumber    string               `json:"quotation_number"`
	QuotationDate      string               `json:"quotation_date"`
	Subtotal           string               `json:"subtotal"`     // Σ items when empty
	TaxAmount          string               `json:"tax_amount"`   // 0 when empty
	TotalAmount        string               `json:"total_amount"` // subtotal + tax when empty
	PaymentTerms       string               `json:"payment_terms"`
	DeliveryTime       string               `json:"delivery_time"`
	ValidUntil         string               `json:"valid_until"`
	Notes              string               `json:"notes"`
	Items              []QuotationItemInput `json:"items"`
}

// UpdateQuotationInput corrects a quotation before one is selected. Empty fields
// keep their stored value; Items, when present, replace every line.
type UpdateQuotationInput struct {
	SupplierID      string               `json:"supplier_id"`
	QuotationNumber string               `json:"quotation_number"`
	QuotationDate   string               `json:"quotation_date"`
	Subtotal        string               `json:"subtotal"`
	TaxAmount       string               `json:"tax_amount"`
	TotalAmount     string               `json:"total_amount"`
	PaymentTerms    string               `json:"payment_terms"`
	DeliveryTime    string               `json:"delivery_time"`
	ValidUntil      string               `json:"valid_until"`
	Notes           string               `json:"notes"`
	Items           []QuotationItemInput `json:"items"`
	// Version, when set, must match the stored quotation version.
	Version *int `json:"version"`
}

type SelectQuotationInput struct {
	Reason string `json:"reason"`
}

// --- Interface ---

type QuotationService interface {
	Create(ctx context.Context, userID string, in QuotationInput) (*model.Quotation, error)
	Get(ctx context.Context, id string) (*model.Quotation, error)
	ListByRequest(ctx context.Context, requestID string) ([]model.Quotation, error)
	Compare(ctx context.Context, requestID string) (comparison.Result, error)
	Update(ctx context.Context, id, userID string, in UpdateQuotationInput) (*model.Quotation, error)
	Select(ctx context.Context, id, userID, reason string) (*model.Quotation, error)
	Delete(ctx context.Context, id, userID string) error
}

type quotationService struct {
	quotations repository.QuotationRepository
	requests   repository.PurchaseRequestRepository
	orders     repository.PurchaseOrderRepository
	suppliers  repository.SupplierRepository
	rfqs       repository.RFQRepository
	txManager  repository.TransactionManager
	authz      Authorizer
	policy     PolicyProvider
	notifier   Notifier
	lifecycle  lifecycle
	audit      auditWriter
	opts       Options
	log        *zap.Logger
}

func NewQuotationService(
	quotations repository.QuotationRepository,
	requests repository.PurchaseRequestRepository,
	orders repository.PurchaseOrderRepository,
	suppliers repository.SupplierRepository,
	rfqs repository.RFQRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	authz Authorizer,
	policy PolicyProvider,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) QuotationService {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	audit := auditWriter{repo: auditRepo}
	return &quotationService{
		quotations: quotations,
		requests:   requests,
		orders:     orders,
		suppliers:  suppliers,
		rfqs:       rfqs,
		txManager:  txManager,
		authz:      authz,
		policy:     policy,
		notifier:   notifier,
		lifecycle:  lifecycle{requests: requests, audit: audit, now: opts.Now},
		audit:      audit,
		opts:       opts,
		log:        log,
	}
}

// --- Implementation ---

func buildQuotation(in QuotationInput) (*model.Quotation, error) {
	supplierID, err := parseID(in.SupplierID, "supplier_id")
	if err != nil {
		return nil, err
	}
	rfqID, err := parseOptionalID(in.QuotationRequestID, "quotation_request_id")
	if err != nil {
		return nil, err
	}
	quotationDate, err := parseDate(in.QuotationDate, "quotation_date")
	if err != nil {
		return nil, err
	}
	validUntil, err := parseDate(in.ValidUntil, "valid_until")
	if err != nil {
		return nil, err
	}

	q := &model.Quotation{
		SupplierID:         supplierID,
		QuotationRequestID: rfqID,
		QuotationNumber:    strings.TrimSpace(in.QuotationNumber),
		QuotationDate:      quotationDate,
		PaymentTerms:       in.PaymentTerms,
		DeliveryTime:       in.DeliveryTime,
		ValidUntil:         validUntil,
		Notes:              in.Notes,
		Status:             model.QuotationReceived,
	}

	itemsTotal := decimal.Zero
	for i, it := range in.Items {
		desc := strings.TrimSpace(it.Description)
		if desc == "" {
			return nil, workflow.Validationf("item %d: description is required", i+1)
		}
		qty, err := parseDecimal(it.Quantity, "quantity")
		if err != nil {
			return nil, err
		}
		if !qty.IsPositive() {
			return nil, workflow.Validationf("item %d: quantity must be greater than 0", i+1)
		}
		price, err := parseDecimal(it.UnitPrice, "unit_price")
		if err != nil {
			return nil, err
		}
		if price.IsNegative() {
			return nil, workflow.Validationf("item %d: unit_price cannot be negative", i+1)
		}
		requestItemID, err := parseOptionalID(it.RequestItemID, "request_item_id")
		if err != nil {
			return nil, err
		}
		item := model.QuotationItem{
			RequestItemID: requestItemID,
			Description:   desc,
			Quantity:      qty,
			Unit:          it.Unit,
			UnitPrice:     price,
			Notes:         it.Notes,
			Position:      i,
		}
		itemsTotal = itemsTotal.Add(item.LineTotal())
		q.Items = append(q.Items, item)
	}

	if q.Subtotal, err = parseDecimal(in.Subtotal, "subtotal"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Subtotal) == "" {
		q.Subtotal = itemsTotal
	}
	if q.TaxAmount, err = parseDecimal(in.TaxAmount, "tax_amount"); err != nil {
		return nil, err
	}
	if q.TotalAmount, err = parseDecimal(in.TotalAmount, "total_amount"); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.TotalAmount) == "" {
		q.TotalAmount = q.Subtotal.Add(q.TaxAmount)
	}
	if q.Subtotal.IsNegative() || q.TaxAmount.IsNegative() || q.TotalAmount.IsNegative() {
		return nil, workflow.Validationf("quotation amounts cannot be negative")
	}
	if len(q.Items) == 0 && q.TotalAmount.IsZero() {
		return nil, workflow.Validationf("a quotation needs items or a total_amount")
	}
	return q, nil
}

func (s *quotationService) Create(ctx context.Context, userID string, in QuotationInput) (*model.Quotation, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	requestID, err := parseID(in.PurchaseRequestID, "purchase_request_id")
	if err != nil {
		return nil, err
	}
	q, err := buildQuotation(in)
	if err != nil {
		return nil, err
	}
	supplier, err := s.suppliers.FindByID(ctx, q.SupplierID)
	if err != nil {
		return nil, err
	}
	policy, err := s.policy.Policy(ctx)
	if err != nil {
		return nil, err
	}

	var req *model.PurchaseRequest
	var steps []model.RequestStatus
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		req, err = loadRequest(txCtx, s.requests, requestID)
		if err != nil {
			return err
		}
		if !workflow.IsEvaluable(req.Status) {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionAddQuotation}
		}
		if q.QuotationRequestID != nil {
			rfq, err := s.rfqs.FindByID(txCtx, *q.QuotationRequestID)
			if err != nil {
				return err
			}
			if rfq.PurchaseRequestID != req.ID {
				return workflow.Validationf("rfq %s belongs to another purchase request", rfq.RFQNumber)
			}
		}

		now := s.opts.Now()
		q.ID = uuid.Nil
		for i := range q.Items {
			q.Items[i].ID = uuid.Nil
		}
		q.PurchaseRequestID = req.ID
		q.ReceivedBy = &actor
		q.ReceivedAt = now
		if err := s.quotations.Create(txCtx, q); err != nil {
			return fmt.Errorf("failed to create quotation: %w", err)
		}
		if q.QuotationRequestID != nil {
			if err := s.rfqs.MarkResponded(txCtx, *q.QuotationRequestID, q.SupplierID, now); err != nil {
				return fmt.Errorf("failed to mark rfq response: %w", err)
			}
		}

		count, err := s.quotations.CountByRequest(txCtx, req.ID)
		if err != nil {
			return err
		}
		steps, err = s.lifecycle.recordQuotationReceived(txCtx, req, int(count), policy, &actor)
		if err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionCreateQuotation, q.ID.String(), req.RequestNumber,
			map[string]interface{}{
				"supplier":     supplier.DisplayName(),
				"total_amount": q.TotalAmount.String(),
				"count":        count,
			})
	})
	if err != nil {
		return nil, err
	}

	q.Supplier = supplier
	s.notifier.Publish(ws.Event{Type: ws.EventQuotationAdded, EntityID: q.ID.String(), Number: req.RequestNumber,
		Status: string(q.Status), ActorID: actor.String()})
	if len(steps) > 0 {
		s.notifier.Publish(requestEvent(req, &actor))
	}
	s.log.Info("quotation received",
		zap.String("request_number", req.RequestNumber),
		zap.String("supplier", supplier.DisplayName()),
		zap.String("request_status", string(req.Status)))
	return q, nil
}

func (s *quotationService) Get(ctx context.Context, id string) (*model.Quotation, error) {
	quotationID, err := parseID(id, "quotation id")
	if err != nil {
		return nil, err
	}
	return s.quotations.FindByID(ctx, quotationID)
}

func (s *quotationService) ListByRequest(ctx context.Context, requestID string) ([]model.Quotation, error) {
	rid, err := parseID(requestID, "purchase_request_id")
	if err != nil {
		return nil, err
	}
	quotes, err := s.quotations.ListByRequest(ctx, rid)
	if err != nil {
		return nil, fmt.Errorf("failed to list quotations: %w", err)
	}
	return quotes, nil
}

func (s *quotationService) Compare(ctx context.Context, requestID string) (comparison.Result, error) {
	rid, err := parseID(requestID, "purchase_request_id")
	if err != nil {
		return comparison.Result{}, err
	}
	if _, err := loadRequest(ctx, s.requests, rid); err != nil {
		return comparison.Result{}, err
	}
	quotes, err := s.quotations.ListByRequest(ctx, rid)
	if err != nil {
		return comparison.Result{}, fmt.Errorf("failed to list quotations: %w", err)
	}
	return comparison.Compare(quotes), nil
}

// mergeQuotationInput overlays the non-empty fields of in onto the stored quotation.
// Amounts left empty are recomputed when lines or other amounts change.
func mergeQuotationInput(q *model.Quotation, in UpdateQuotationInput) QuotationInput {
	pick := func(v, stored string) string {
		if strings.TrimSpace(v) != "" {
			return v
		}
		return stored
	}
	date := func(t *time.Time) string {
		if t == nil {
			return ""
		}
		return t.Format(time.RFC3339)
	}

	merged := QuotationInput{
		SupplierID:      pick(in.SupplierID, q.SupplierID.String()),
		QuotationNumber: pick(in.QuotationNumber, q.QuotationNumber),
		QuotationDate:   pick(in.QuotationDate, date(q.QuotationDate)),
		TaxAmount:       pick(in.TaxAmount, q.TaxAmount.String()),
		PaymentTerms:    pick(in.PaymentTerms, q.PaymentTerms),
		DeliveryTime:    pick(in.DeliveryTime, q.DeliveryTime),
		ValidUntil:      pick(in.ValidUntil, date(q.ValidUntil)),
		Notes:           pick(in.Notes, q.Notes),
		Items:           in.Items,
		Subtotal:        in.Subtotal,
		TotalAmount:     in.TotalAmount,
	}
	if q.QuotationRequestID != nil {
		merged.QuotationRequestID = q.QuotationRequestID.String()
	}

	linesChanged := in.Items != nil
	if !linesChanged {
		merged.Items = make([]QuotationItemInput, 0, len(q.Items))
		for _, it := range q.Items {
			item := QuotationItemInput{
				Description: it.Description,
				Quantity:    it.Quantity.String(),
				Unit:        it.Unit,
				UnitPrice:   it.UnitPrice.String(),
				Notes:       it.Notes,
			}
			if it.RequestItemID != nil {
				item.RequestItemID = it.RequestItemID.String()
			}
			merged.Items = append(merged.Items, item)
		}
		if merged.Subtotal == "" {
			merged.Subtotal = q.Subtotal.String()
		}
	}
	amountsChanged := linesChanged || in.Subtotal != "" || in.TaxAmount != ""
	if merged.TotalAmount == "" && !amountsChanged {
		merged.TotalAmount = q.TotalAmount.String()
	}
	return merged
}

func (s *quotationService) Update(ctx context.Context, id, userID string, in UpdateQuotationInput) (*model.Quotation, error) {
	quotationID, err := parseID(id, "quotation id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}

	var q *model.Quotation
	var supplier *model.Supplier
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		q, err = s.quotations.FindByID(txCtx, quotationID)
		if err != nil {
			return err
		}
		if in.Version != nil && *in.Version != q.Version {
			return fmt.Errorf("%w: quotation %s is at version %d", workflow.ErrConcurrentModification, q.ID, q.Version)
		}
		req, err := s.lockRequest(txCtx, q, workflow.ActionEdit)
		if err != nil {
			return err
		}
		if !workflow.IsEvaluable(req.Status) {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionEdit}
		}

		next, err := buildQuotation(mergeQuotationInput(q, in))
		if err != nil {
			return err
		}
		if supplier, err = s.suppliers.FindByID(txCtx, next.SupplierID); err != nil {
			return err
		}

		q.SupplierID = next.SupplierID
		q.Supplier = nil
		q.QuotationNumber = next.QuotationNumber
		q.QuotationDate = next.QuotationDate
		q.Subtotal = next.Subtotal
		q.TaxAmount = next.TaxAmount
		q.TotalAmount = next.TotalAmount
		q.PaymentTerms = next.PaymentTerms
		q.DeliveryTime = next.DeliveryTime
		q.ValidUntil = next.ValidUntil
		q.Notes = next.Notes
		if err := s.quotations.UpdateWithVersion(txCtx, q, q.Version); err != nil {
			return err
		}
		if in.Items != nil {
			if err := s.quotations.ReplaceItems(txCtx, q.ID, next.Items); err != nil {
				return fmt.Errorf("failed to replace quotation items: %w", err)
			}
			q.Items = next.Items
		}
		return s.audit.write(txCtx, &actor, model.ActionUpdateQuotation, q.ID.String(), req.RequestNumber,
			map[string]interface{}{
				"supplier":       supplier.DisplayName(),
				"total_amount":   q.TotalAmount.String(),
				"items_replaced": in.Items != nil,
			})
	})
	if err != nil {
		return nil, err
	}

	q.Supplier = supplier
	s.log.Info("quotation updated", zap.String("quotation_id", q.ID.String()), actorField(actor))
	return q, nil
}

func (s *quotationService) Select(ctx context.Context, id, userID, reason string) (*model.Quotation, error) {
	quotationID, err := parseID(id, "quotation id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	ok, err := s.authz.CanApprove(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to check permissions: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: approver capability required to select a quotation", workflow.ErrUnauthorized)
	}
	reason = strings.TrimSpace(reason)

	var q *model.Quotation
	var req *model.PurchaseRequest
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		q, err = s.quotations.FindByID(txCtx, quotationID)
		if err != nil {
			return err
		}
		req, err = loadRequest(txCtx, s.requests, q.PurchaseRequestID)
		if err != nil {
			return err
		}
		if !workflow.IsEvaluable(req.Status) {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionSelectQuotation}
		}
		if err := workflow.CheckQuotationTransition(q.Status, model.QuotationSelected); err != nil {
			return err
		}

		// Bumping the request version serializes concurrent selections on the same request.
		if err := s.requests.UpdateWithVersion(txCtx, req, req.Version); err != nil {
			return err
		}
		if err := s.quotations.RejectSiblings(txCtx, req.ID, q.ID); err != nil {
			return fmt.Errorf("failed to reject sibling quotations: %w", err)
		}
		q.Status = model.QuotationSelected
		q.IsSelected = true
		q.SelectionReason = reason
		if err := s.quotations.UpdateWithVersion(txCtx, q, q.Version); err != nil {
			return err
		}

		supplierName := ""
		if q.Supplier != nil {
			supplierName = q.Supplier.DisplayName()
		}
		comment := fmt.Sprintf("quotation from %s selected (%s)", supplierName, q.TotalAmount.StringFixed(2))
		if reason != "" {
			comment += ": " + reason
		}
		if err := s.lifecycle.record(txCtx, req.ID, model.HistoryQuotationSelected, req.Status, req.Status, &actor, comment); err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionSelectQuotation, q.ID.String(), req.RequestNumber,
			map[string]interface{}{
				"supplier_id":  q.SupplierID.String(),
				"total_amount": q.TotalAmount.String(),
				"reason":       reason,
			})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.Event{Type: ws.EventQuotationSelected, EntityID: q.ID.String(), Number: req.RequestNumber,
		Status: string(q.Status), ActorID: actor.String()})
	s.log.Info("quotation selected",
		zap.String("request_number", req.RequestNumber),
		zap.String("quotation_id", q.ID.String()),
		actorField(actor))
	return q, nil
}

func (s *quotationService) Delete(ctx context.Context, id, userID string) error {
	quotationID, err := parseID(id, "quotation id")
	if err != nil {
		return err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return err
	}

	return s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		q, err := s.quotations.FindByID(txCtx, quotationID)
		if err != nil {
			return err
		}
		req, err := s.lockRequest(txCtx, q, workflow.ActionDelete)
		if err != nil {
			return err
		}
		if err := s.quotations.Delete(txCtx, q.ID); err != nil {
			return fmt.Errorf("failed to delete quotation: %w", err)
		}
		return s.audit.write(txCtx, &actor, model.ActionDeleteQuotation, q.ID.String(), req.RequestNumber,
			map[string]interface{}{"quotation_number": q.QuotationNumber, "total_amount": q.TotalAmount.String()})
	})
}

// lockRequest checks that the quotations of q's request are still open for
// changes and bumps the request version. The version write is the point where
// edits and deletes serialize against Select and order creation.
func (s *quotationService) lockRequest(ctx context.Context, q *model.Quotation, action string) (*model.PurchaseRequest, error) {
	req, err := loadRequest(ctx, s.requests, q.PurchaseRequestID)
	if err != nil {
		return nil, err
	}
	locked := &workflow.TransitionError{Entity: workflow.EntityQuotation, From: string(q.Status), To: action}
	selected, err := s.quotations.FindSelected(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if selected != nil {
		return nil, locked
	}
	order, err := s.orders.FindActiveByRequest(ctx, req.ID)
	if err != nil {
		return nil, err
	}
	if order != nil {
		return nil, locked
	}
	if err := s.requests.UpdateWithVersion(ctx, req, req.Version); err != nil {
		return nil, err
	}
	return req, nil
}
