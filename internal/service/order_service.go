package service

import (
	"context"
	"fmt"
	"strings"

	"procurement/internal/model"
	"procurement/internal/repository"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// actionReceive names receipts in transition errors.
const actionReceive = "receive"

// --- DTOs ---

type CreateOrderInput struct {
	PurchaseRequestID    string `json:"purchase_request_id" binding:"required"`
	PaymentTerms         string `json:"payment_terms"`
	DeliveryAddress      string `json:"delivery_address"`
	DeliveryNotes        string `json:"delivery_notes"`
	ExpectedDeliveryDate string `json:"expected_delivery_date"`
	Notes                string `json:"notes"`
}

type OrderStatusInput struct {
	Status             string `json:"status" binding:"required"`
	Comments           string `json:"comments"`
	InvoiceNumber      string `json:"invoice_number"`       // required for invoiced
	InvoiceDate        string `json:"invoice_date"`         // defaults to today
	ActualDeliveryDate string `json:"actual_delivery_date"` // defaults to now for received
}

type ReceiveInput struct {
	Quantity string `json:"quantity" binding:"required"`
	Notes    string `json:"notes"`
}

type OrderQuery struct {
	Status            string
	SupplierID        string
	PurchaseRequestID string
	Search            string
	Page              int
	Limit             int
}

// OrderDetail is an order with the statuses it may move to next.
type OrderDetail struct {
	*model.PurchaseOrder
	NextStatuses []model.OrderStatus `json:"next_statuses"`
}

// --- Interface ---

type OrderService interface {
	CreateFromRequest(ctx context.Context, userID string, in CreateOrderInput) (*model.PurchaseOrder, error)
	Get(ctx context.Context, id string) (*OrderDetail, error)
	List(ctx context.Context, q OrderQuery) ([]model.PurchaseOrder, int64, error)
	UpdateStatus(ctx context.Context, id, userID string, in OrderStatusInput) (*model.PurchaseOrder, error)
	ReceiveItem(ctx context.Context, orderID, itemID, userID string, in ReceiveInput) (*model.PurchaseOrder, error)
	Delete(ctx context.Context, id, userID string) error
}

type orderService struct {
	orders     repository.PurchaseOrderRepository
	requests   repository.PurchaseRequestRepository
	quotations repository.QuotationRepository
	suppliers  repository.SupplierRepository
	txManager  repository.TransactionManager
	notifier   Notifier
	lifecycle  lifecycle
	audit      auditWriter
	opts       Options
	log        *zap.Logger
}

func NewOrderService(
	orders repository.PurchaseOrderRepository,
	requests repository.PurchaseRequestRepository,
	quotations repository.QuotationRepository,
	suppliers repository.SupplierRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) OrderService {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	audit := auditWriter{repo: auditRepo}
	return &orderService{
		orders:     orders,
		requests:   requests,
		quotations: quotations,
		suppliers:  suppliers,
		txManager:  txManager,
		notifier:   notifier,
		lifecycle:  lifecycle{requests: requests, audit: audit, now: opts.Now},
		audit:      audit,
		opts:       opts,
		log:        log,
	}
}

// --- Implementation ---

// orderLines derives the order lines and totals from the selected quotation,
// else from the request items, else from the request as a single line.
func orderLines(req *model.PurchaseRequest, selected *model.Quotation) (items []model.PurchaseOrderItem, subtotal, tax, total decimal.Decimal) {
	switch {
	case selected != nil && len(selected.Items) > 0:
		for i, it := range selected.Items {
			items = append(items, model.PurchaseOrderItem{
				RequestItemID: it.RequestItemID,
				Description:   it.Description,
				Quantity:      it.Quantity,
				Unit:          it.Unit,
				UnitPrice:     it.UnitPrice,
				TotalPrice:    it.LineTotal(),
				Notes:         it.Notes,
				Position:      i,
			})
		}
	case len(req.Items) > 0:
		for i, it := range req.Items {
			requestItemID := it.ID
			items = append(items, model.PurchaseOrderItem{
				RequestItemID: &requestItemID,
				Description:   it.Description,
				Quantity:      it.Quantity,
				Unit:          it.Unit,
				UnitPrice:     it.EstimatedUnitPrice,
				TotalPrice:    it.LineTotal(),
				Notes:         it.Specifications,
				Position:      i,
			})
		}
	default:
		amount := req.EstimatedAmount
		if selected != nil {
			amount = selected.Subtotal
		}
		items = append(items, model.PurchaseOrderItem{
			Description: req.Title,
			Quantity:    decimal.NewFromInt(1),
			UnitPrice:   amount,
			TotalPrice:  amount,
		})
	}
	for i := range items {
		items[i].ReceivedQuantity = decimal.Zero
	}

	if selected != nil {
		return items, selected.Subtotal, selected.TaxAmount, selected.TotalAmount
	}
	subtotal = decimal.Zero
	for _, it := range items {
		subtotal = subtotal.Add(it.TotalPrice)
	}
	return items, subtotal, decimal.Zero, subtotal
}

func (s *orderService) CreateFromRequest(ctx context.Context, userID string, in CreateOrderInput) (*model.PurchaseOrder, error) {
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	requestID, err := parseID(in.PurchaseRequestID, "purchase_request_id")
	if err != nil {
		return nil, err
	}
	expected, err := parseDate(in.ExpectedDeliveryDate, "expected_delivery_date")
	if err != nil {
		return nil, err
	}

	var order *model.PurchaseOrder
	var req *model.PurchaseRequest
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		req, err = loadRequest(txCtx, s.requests, requestID)
		if err != nil {
			return err
		}
		active, err := s.orders.FindActiveByRequest(txCtx, req.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionCreateOrder}
		}
		// A request whose order was cancelled or deleted keeps order_created and gets a replacement.
		replacement := req.Status == model.RequestOrderCreated
		if replacement {
			// no status change, but the version write orders concurrent replacements
			if err := s.requests.UpdateWithVersion(txCtx, req, req.Version); err != nil {
				return err
			}
		} else {
			if err := workflow.CheckRequestTransition(req.Status, model.RequestOrderCreated); err != nil {
				return err
			}
		}

		selected, err := s.quotations.FindSelected(txCtx, req.ID)
		if err != nil {
			return err
		}
		var supplierID uuid.UUID
		switch {
		case selected != nil:
			supplierID = selected.SupplierID
		case req.PreferredSupplierID != nil:
			supplierID = *req.PreferredSupplierID
		default:
			return workflow.ErrNoSelectableQuotation
		}
		supplier, err := s.suppliers.FindByID(txCtx, supplierID)
		if err != nil {
			return err
		}

		items, subtotal, tax, total := orderLines(req, selected)
		paymentTerms := strings.TrimSpace(in.PaymentTerms)
		if paymentTerms == "" && selected != nil {
			paymentTerms = selected.PaymentTerms
		}
		if paymentTerms == "" {
			paymentTerms = supplier.PaymentTerms
		}

		number, err := s.orders.NextNumber(txCtx, s.opts.Now())
		if err != nil {
			return err
		}
		order = &model.PurchaseOrder{
			OrderNumber:          number,
			PurchaseRequestID:    req.ID,
			SupplierID:           supplierID,
			Status:               model.OrderDraft,
			Subtotal:             subtotal,
			TaxAmount:            tax,
			TotalAmount:          total,
			Currency:             req.Currency,
			PaymentTerms:         paymentTerms,
			DeliveryAddress:      in.DeliveryAddress,
			DeliveryNotes:        in.DeliveryNotes,
			ExpectedDeliveryDate: expected,
			Notes:                in.Notes,
			CreatedBy:            actor,
			Items:                items,
		}
		if selected != nil {
			order.QuotationID = &selected.ID
		}
		if expected == nil {
			order.ExpectedDeliveryDate = req.RequiredDate
		}
		if err := s.orders.Create(txCtx, order); err != nil {
			return fmt.Errorf("failed to create purchase order: %w", err)
		}
		if err := s.appendHistory(txCtx, order.ID, model.OrderHistoryCreated, "", model.OrderDraft, &actor, "created from "+req.RequestNumber); err != nil {
			return err
		}
		if !replacement {
			if err := s.lifecycle.markOrderCreated(txCtx, req, &actor, number); err != nil {
				return err
			}
		}
		order.Supplier = supplier
		return s.audit.write(txCtx, &actor, model.ActionCreatePurchaseOrder, order.ID.String(), order.OrderNumber,
			map[string]interface{}{
				"request_number": req.RequestNumber,
				"supplier":       supplier.DisplayName(),
				"total_amount":   total.String(),
				"replacement":    replacement,
			})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.Event{Type: ws.EventOrderCreated, EntityID: order.ID.String(), Number: order.OrderNumber,
		Status: string(order.Status), ActorID: actor.String()})
	s.notifier.Publish(requestEvent(req, &actor))
	s.log.Info("purchase order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("request_number", req.RequestNumber),
		actorField(actor))
	return order, nil
}

func (s *orderService) appendHistory(ctx context.Context, orderID uuid.UUID, action string, from, to model.OrderStatus, actor *uuid.UUID, comments string) error {
	entry := model.PurchaseOrderHistory{
		PurchaseOrderID: orderID,
		Action:          action,
		FromStatus:      from,
		ToStatus:        to,
		UserID:          actor,
		Comments:        comments,
		CreatedAt:       s.opts.Now(),
	}
	if err := s.orders.AppendHistory(ctx, &entry); err != nil {
		return fmt.Errorf("failed to append order history: %w", err)
	}
	return nil
}

func (s *orderService) Get(ctx context.Context, id string) (*OrderDetail, error) {
	orderID, err := parseID(id, "purchase order id")
	if err != nil {
		return nil, err
	}
	order, err := s.orders.FindDetail(ctx, orderID)
	if err != nil {
		return nil, err
	}
	return &OrderDetail{PurchaseOrder: order, NextStatuses: workflow.OrderTargets(order.Status)}, nil
}

func (s *orderService) List(ctx context.Context, q OrderQuery) ([]model.PurchaseOrder, int64, error) {
	if q.Status != "" && !model.OrderStatus(q.Status).Valid() {
		return nil, 0, workflow.Validationf("invalid status %q", q.Status)
	}
	supplierID, err := parseOptionalID(q.SupplierID, "supplier_id")
	if err != nil {
		return nil, 0, err
	}
	requestID, err := parseOptionalID(q.PurchaseRequestID, "purchase_request_id")
	if err != nil {
		return nil, 0, err
	}
	page, limit := normalizePage(q.Page, q.Limit)
	orders, total, err := s.orders.List(ctx, repository.OrderFilter{
		Status:            q.Status,
		SupplierID:        supplierID,
		PurchaseRequestID: requestID,
		Search:            q.Search,
		Page:              page,
		Limit:             limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list purchase orders: %w", err)
	}
	return orders, total, nil
}

// bookOutstanding receives the remaining quantity of every line.
func (s *orderService) bookOutstanding(ctx context.Context, order *model.PurchaseOrder) error {
	for i := range order.Items {
		item := &order.Items[i]
		if item.Satisfied() {
			continue
		}
		item.ReceivedQuantity = item.Quantity
		if err := s.orders.UpdateItemReceipt(ctx, item, item.Version); err != nil {
			return err
		}
	}
	return nil
}

func (s *orderService) UpdateStatus(ctx context.Context, id, userID string, in OrderStatusInput) (*model.PurchaseOrder, error) {
	orderID, err := parseID(id, "purchase order id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	to := model.OrderStatus(strings.TrimSpace(in.Status))
	if !to.Valid() {
		return nil, workflow.Validationf("invalid status %q", in.Status)
	}
	invoiceDate, err := parseDate(in.InvoiceDate, "invoice_date")
	if err != nil {
		return nil, err
	}
	deliveryDate, err := parseDate(in.ActualDeliveryDate, "actual_delivery_date")
	if err != nil {
		return nil, err
	}

	var order *model.PurchaseOrder
	var req *model.PurchaseRequest
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		order, err = s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		from := order.Status
		if err := workflow.CheckOrderTransition(from, to); err != nil {
			return err
		}

		action := model.OrderHistoryStatus
		now := s.opts.Now()
		switch to {
		case model.OrderPartiallyReceived:
			// receipts drive this edge; a manual move only confirms what was booked
			if !order.AnyReceived() || order.FullyReceived() {
				return &workflow.TransitionError{Entity: workflow.EntityPurchaseOrder, From: string(from), To: string(to)}
			}
		case model.OrderReceived:
			if err := s.bookOutstanding(txCtx, order); err != nil {
				return err
			}
			if deliveryDate == nil {
				deliveryDate = &now
			}
			order.ActualDeliveryDate = deliveryDate
		case model.OrderInvoiced:
			number := strings.TrimSpace(in.InvoiceNumber)
			if number == "" {
				return workflow.Validationf("invoice_number is required to invoice an order")
			}
			if invoiceDate == nil {
				invoiceDate = &now
			}
			order.InvoiceNumber = number
			order.InvoiceDate = invoiceDate
			action = model.OrderHistoryInvoiced
		}

		order.Status = to
		if err := s.orders.UpdateWithVersion(txCtx, order, order.Version); err != nil {
			return err
		}
		if err := s.appendHistory(txCtx, order.ID, action, from, to, &actor, in.Comments); err != nil {
			return err
		}

		if to == model.OrderPaid {
			req, err = loadRequest(txCtx, s.requests, order.PurchaseRequestID)
			if err != nil {
				return err
			}
			if err := s.lifecycle.complete(txCtx, req, &actor, order.OrderNumber); err != nil {
				return err
			}
		}
		return s.audit.write(txCtx, &actor, model.ActionUpdateOrderStatus, order.ID.String(), order.OrderNumber,
			map[string]interface{}{"from": from, "to": to, "comments": in.Comments})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.Event{Type: ws.EventOrderStatus, EntityID: order.ID.String(), Number: order.OrderNumber,
		Status: string(order.Status), ActorID: actor.String()})
	if req != nil {
		s.notifier.Publish(requestEvent(req, &actor))
	}
	s.log.Info("purchase order status changed",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(order.Status)),
		actorField(actor))
	return order, nil
}

func (s *orderService) ReceiveItem(ctx context.Context, orderID, itemID, userID string, in ReceiveInput) (*model.PurchaseOrder, error) {
	oid, err := parseID(orderID, "purchase order id")
	if err != nil {
		return nil, err
	}
	iid, err := parseID(itemID, "order item id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	qty, err := parseDecimal(in.Quantity, "quantity")
	if err != nil {
		return nil, err
	}
	if !qty.IsPositive() {
		return nil, workflow.Validationf("quantity must be greater than 0")
	}

	var order *model.PurchaseOrder
	err = s.txManager.RunInTxRetry(ctx, s.opts.MaxRetries, func(txCtx context.Context) error {
		order, err = s.orders.FindByID(txCtx, oid)
		if err != nil {
			return err
		}
		from := order.Status
		// a received order still answers with the cap error for its items
		if !workflow.CanReceive(from) && from != model.OrderReceived {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseOrder, From: string(from), To: actionReceive}
		}

		var item *model.PurchaseOrderItem
		for i := range order.Items {
			if order.Items[i].ID == iid {
				item = &order.Items[i]
				break
			}
		}
		if item == nil {
			return workflow.NotFoundf("item %s on order %s", iid, order.OrderNumber)
		}

		received := item.ReceivedQuantity.Add(qty)
		if received.GreaterThan(item.Quantity) {
			return &workflow.OverReceiptError{ItemID: item.ID, Ordered: item.Quantity, Received: item.ReceivedQuantity, Requested: qty}
		}
		if !workflow.CanReceive(from) {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseOrder, From: string(from), To: actionReceive}
		}
		item.ReceivedQuantity = received
		if err := s.orders.UpdateItemReceipt(txCtx, item, item.Version); err != nil {
			return err
		}

		to := model.OrderPartiallyReceived
		if order.FullyReceived() {
			to = model.OrderReceived
		}
		if to != from {
			if err := workflow.CheckOrderTransition(from, to); err != nil {
				return err
			}
			order.Status = to
			if to == model.OrderReceived {
				now := s.opts.Now()
				order.ActualDeliveryDate = &now
			}
		}
		// The order version moves on every receipt so concurrent receipts serialize.
		if err := s.orders.UpdateWithVersion(txCtx, order, order.Version); err != nil {
			return err
		}

		comment := fmt.Sprintf("received %s %s of %s", qty.String(), item.Unit, item.Description)
		if notes := strings.TrimSpace(in.Notes); notes != "" {
			comment += ": " + notes
		}
		if err := s.appendHistory(txCtx, order.ID, model.OrderHistoryReceipt, from, to, &actor, comment); err != nil {
			return err
		}
		return s.audit.write(txCtx, &actor, model.ActionReceiveOrderItems, order.ID.String(), order.OrderNumber,
			map[string]interface{}{
				"item_id":           item.ID.String(),
				"quantity":          qty.String(),
				"received_quantity": received.String(),
				"status":            to,
			})
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Publish(ws.Event{Type: ws.EventOrderStatus, EntityID: order.ID.String(), Number: order.OrderNumber,
		Status: string(order.Status), ActorID: actor.String()})
	return order, nil
}

func (s *orderService) Delete(ctx context.Context, id, userID string) error {
	orderID, err := parseID(id, "purchase order id")
	if err != nil {
		return err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		order, err := s.orders.FindByID(txCtx, orderID)
		if err != nil {
			return err
		}
		if order.Status != model.OrderDraft {
			return &workflow.TransitionError{Entity: workflow.EntityPurchaseOrder, From: string(order.Status), To: workflow.ActionDelete}
		}
		if err := s.orders.Delete(txCtx, order.ID); err != nil {
			return fmt.Errorf("failed to delete purchase order: %w", err)
		}
		return s.audit.write(txCtx, &actor, model.ActionDeletePurchaseOrder, order.ID.String(), order.OrderNumber,
			map[string]interface{}{"purchase_request_id": order.PurchaseRequestID.String()})
	})
}
