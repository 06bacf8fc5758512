package service

import (
	"context"
	"errors"
	"testing"

	"procurement/internal/model"
	"procurement/internal/testutil"
	"procurement/internal/workflow"
)

// confirmedOrder returns a confirmed order of 10 units from supplier A.
func (e *env) confirmedOrder(t *testing.T) *model.PurchaseOrder {
	t.Helper()
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseDirect), &e.supplierA)
	e.approve(t, req)
	order, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	for _, s := range []string{"sent", "confirmed"} {
		if order, err = e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: s}); err != nil {
			t.Fatalf("order -> %s: %v", s, err)
		}
	}
	return order
}

func TestReceiptsProgressToReceived(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.confirmedOrder(t)
	itemID := order.Items[0].ID.String()

	order, err := e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "4"})
	if err != nil {
		t.Fatalf("receive 4: %v", err)
	}
	if order.Status != model.OrderPartiallyReceived || !order.Items[0].ReceivedQuantity.Equal(testutil.Dec("4")) {
		t.Fatalf("expected partially_received with 4 units, got %s %s", order.Status, order.Items[0].ReceivedQuantity)
	}

	order, err = e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "6"})
	if err != nil {
		t.Fatalf("receive 6: %v", err)
	}
	if order.Status != model.OrderReceived || order.ActualDeliveryDate == nil {
		t.Fatalf("all units in should mark the order received, got %s", order.Status)
	}

	if _, err := e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "1"}); !errors.Is(err, workflow.ErrOverReceipt) {
		t.Fatalf("receiving past the ordered quantity must be an over-receipt, got %v", err)
	}

	detail, err := e.orders.Get(ctx, order.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	receipts := 0
	for _, h := range detail.History {
		if h.Action == model.OrderHistoryReceipt {
			receipts++
		}
	}
	if receipts != 2 {
		t.Fatalf("each receipt should be in the order history, got %d", receipts)
	}
}

func TestOverReceiptIsRejected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	order := e.confirmedOrder(t)
	itemID := order.Items[0].ID.String()

	if _, err := e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "4"}); err != nil {
		t.Fatalf("receive 4: %v", err)
	}
	_, err := e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "7"})
	var over *workflow.OverReceiptError
	if !errors.As(err, &over) || !errors.Is(err, workflow.ErrOverReceipt) {
		t.Fatalf("expected OverReceiptError, got %v", err)
	}
	if !over.Ordered.Equal(testutil.Dec("10")) || !over.Received.Equal(testutil.Dec("4")) {
		t.Fatalf("unexpected over-receipt payload %+v", over)
	}

	detail, err := e.orders.Get(ctx, order.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !detail.Items[0].ReceivedQuantity.Equal(testutil.Dec("4")) || detail.Status != model.OrderPartiallyReceived {
		t.Fatalf("a rejected receipt must leave the order untouched")
	}

	if _, err := e.orders.ReceiveItem(ctx, order.ID.String(), itemID, e.buyer.ID.String(), ReceiveInput{Quantity: "0"}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("zero quantities are invalid, got %v", err)
	}
}

func TestOrderTransitionsFollowTable(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseDirect), &e.supplierA)
	e.approve(t, req)
	order, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}

	if _, err := e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: "received"}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("draft -> received must fail, got %v", err)
	}
	if _, err := e.orders.ReceiveItem(ctx, order.ID.String(), order.Items[0].ID.String(), e.buyer.ID.String(), ReceiveInput{Quantity: "1"}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("draft orders take no goods, got %v", err)
	}
	for _, s := range []string{"sent", "confirmed"} {
		if _, err := e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: s}); err != nil {
			t.Fatalf("-> %s: %v", s, err)
		}
	}
	if _, err := e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: "partially_received"}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("partially_received is reached by booking goods, got %v", err)
	}
	if _, err := e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: "received"}); err != nil {
		t.Fatalf("manual received: %v", err)
	}
	if _, err := e.orders.UpdateStatus(ctx, order.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: "invoiced"}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("invoicing needs an invoice number, got %v", err)
	}

	detail, err := e.orders.Get(ctx, order.ID.String())
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !detail.FullyReceived() {
		t.Fatalf("manual received must book every outstanding line")
	}
	if e.status(t, req.ID) != model.RequestOrderCreated {
		t.Fatalf("only payment completes the request")
	}
}

func TestCreateOrderNeedsSupplier(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseDirect), nil)

	if _, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("draft requests cannot be ordered, got %v", err)
	}
	e.approve(t, req)
	if _, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()}); !errors.Is(err, workflow.ErrNoSelectableQuotation) {
		t.Fatalf("expected ErrNoSelectableQuotation, got %v", err)
	}
	if e.status(t, req.ID) != model.RequestApproved {
		t.Fatalf("failed order creation must leave the request approved")
	}
}

func TestOneActiveOrderAndReplacement(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseDirect), &e.supplierA)
	e.approve(t, req)

	first, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if _, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("a request has one active order, got %v", err)
	}

	if _, err := e.orders.UpdateStatus(ctx, first.ID.String(), e.buyer.ID.String(), OrderStatusInput{Status: "cancelled"}); err != nil {
		t.Fatalf("cancel order: %v", err)
	}
	replacement, err := e.orders.CreateFromRequest(ctx, e.buyer.ID.String(), CreateOrderInput{PurchaseRequestID: req.ID.String()})
	if err != nil {
		t.Fatalf("replacement order: %v", err)
	}
	if replacement.OrderNumber == first.OrderNumber {
		t.Fatalf("replacement needs its own number")
	}
	if err := e.orders.Delete(ctx, replacement.ID.String(), e.buyer.ID.String()); err != nil {
		t.Fatalf("delete draft order: %v", err)
	}
	if err := e.orders.Delete(ctx, first.ID.String(), e.buyer.ID.String()); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("only draft orders can be deleted, got %v", err)
	}
	assertHistoryWalk(t, e.history(t, req.ID))
}
