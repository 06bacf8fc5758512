package workflow

import (
	"errors"
	"slices"
	"testing"

	"procurement/internal/model"
)

func TestRequestTableCoversEveryStatus(t *testing.T) {
	for _, s := range model.RequestStatuses {
		if _, ok := requestTransitions[s]; !ok {
			t.Fatalf("status %q missing from request transition table", s)
		}
	}
	for from, targets := range requestTransitions {
		for _, to := range targets {
			if !to.Valid() {
				t.Fatalf("%s -> %q targets an unknown status", from, to)
			}
		}
	}
}

func TestTerminalRequestStatuses(t *testing.T) {
	for _, s := range []model.RequestStatus{model.RequestCompleted, model.RequestRejected, model.RequestCancelled} {
		if !IsTerminalRequest(s) {
			t.Fatalf("expected %s to be terminal", s)
		}
		for _, to := range model.RequestStatuses {
			if CanTransitionRequest(s, to) {
				t.Fatalf("terminal %s must not move to %s", s, to)
			}
		}
	}
	if IsTerminalRequest(model.RequestDraft) {
		t.Fatalf("draft is not terminal")
	}
}

func TestCheckRequestTransition(t *testing.T) {
	cases := []struct {
		from, to model.RequestStatus
		ok       bool
	}{
		{model.RequestDraft, model.RequestPendingApproval, true},
		{model.RequestDraft, model.RequestApproved, false},
		{model.RequestPendingApproval, model.RequestInQuotation, true},
		{model.RequestPendingApproval, model.RequestRejected, true},
		{model.RequestApproved, model.RequestRejected, false},
		{model.RequestApproved, model.RequestCancelled, false},
		{model.RequestApproved, model.RequestOrderCreated, true},
		{model.RequestInQuotation, model.RequestOrderCreated, false},
		{model.RequestQuotationReceived, model.RequestInEvaluation, true},
		{model.RequestInEvaluation, model.RequestQuotationReceived, false},
		{model.RequestOrderCreated, model.RequestCompleted, true},
		{model.RequestRejected, model.RequestDraft, false},
	}
	for _, tc := range cases {
		err := CheckRequestTransition(tc.from, tc.to)
		if tc.ok && err != nil {
			t.Fatalf("%s -> %s: unexpected error %v", tc.from, tc.to, err)
		}
		if !tc.ok {
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s: expected ErrInvalidTransition, got %v", tc.from, tc.to, err)
			}
			var te *TransitionError
			if !errors.As(err, &te) || te.From != string(tc.from) || te.To != string(tc.to) || te.Entity != EntityPurchaseRequest {
				t.Fatalf("unexpected transition error payload: %#v", err)
			}
		}
	}
}

func TestOrderTransitions(t *testing.T) {
	for _, s := range model.OrderStatuses {
		if _, ok := orderTransitions[s]; !ok {
			t.Fatalf("order status %q missing from table", s)
		}
	}
	if err := CheckOrderTransition(model.OrderDraft, model.OrderReceived); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("draft -> received must be rejected, got %v", err)
	}
	if err := CheckOrderTransition(model.OrderPartiallyReceived, model.OrderCancelled); err == nil {
		t.Fatalf("partially_received orders cannot be cancelled")
	}
	if err := CheckOrderTransition(model.OrderInvoiced, model.OrderPaid); err != nil {
		t.Fatalf("invoiced -> paid: %v", err)
	}
	if !CanReceive(model.OrderConfirmed) || !CanReceive(model.OrderPartiallyReceived) || CanReceive(model.OrderSent) {
		t.Fatalf("receipts are only allowed on confirmed or partially received orders")
	}
}

func TestQuotationTransitions(t *testing.T) {
	if err := CheckQuotationTransition(model.QuotationSelected, model.QuotationSelected); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("re-selecting a selected quotation must fail, got %v", err)
	}
	if err := CheckQuotationTransition(model.QuotationRejected, model.QuotationSelected); err != nil {
		t.Fatalf("a previously rejected quotation can be selected: %v", err)
	}
}

func TestAllowedActions(t *testing.T) {
	draft := AllowedActions(model.RequestDraft)
	for _, a := range []string{ActionSubmit, ActionEdit, ActionDelete, ActionCancel} {
		if !slices.Contains(draft, a) {
			t.Fatalf("draft should allow %s, got %v", a, draft)
		}
	}
	if slices.Contains(draft, ActionApprove) {
		t.Fatalf("draft must not allow approve")
	}

	pending := AllowedActions(model.RequestPendingApproval)
	if !slices.Contains(pending, ActionApprove) || !slices.Contains(pending, ActionReject) {
		t.Fatalf("pending approval should allow approve and reject, got %v", pending)
	}

	inQuotation := AllowedActions(model.RequestInQuotation)
	if !slices.Contains(inQuotation, ActionAddQuotation) || slices.Contains(inQuotation, ActionCreateOrder) {
		t.Fatalf("unexpected in_quotation actions %v", inQuotation)
	}

	if got := AllowedActions(model.RequestCompleted); len(got) != 0 {
		t.Fatalf("completed requests allow nothing, got %v", got)
	}
}

func TestTargetsAreCopies(t *testing.T) {
	targets := OrderTargets(model.OrderConfirmed)
	if len(targets) != 3 {
		t.Fatalf("confirmed orders have three exits, got %v", targets)
	}
	targets[0] = model.OrderPaid
	if CanTransitionOrder(model.OrderConfirmed, model.OrderPaid) {
		t.Fatalf("mutating the returned slice must not change the table")
	}
	if got := RequestTargets(model.RequestCompleted); len(got) != 0 {
		t.Fatalf("completed requests have no exits, got %v", got)
	}
	if got := RequestTargets(model.RequestDraft); !slices.Contains(got, model.RequestPendingApproval) {
		t.Fatalf("draft must reach pending_approval, got %v", got)
	}
}
