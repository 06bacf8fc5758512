package workflow

import (
	"slices"

	"procurement/internal/model"
)

const (
	EntityPurchaseRequest = "purchase_request"
	EntityQuotation       = "quotation"
	EntityPurchaseOrder   = "purchase_order"
)

// requestTransitions is the only place legal request status changes are declared.
var requestTransitions = map[model.RequestStatus][]model.RequestStatus{
	model.RequestDraft:             {model.RequestPendingApproval, model.RequestCancelled},
	model.RequestPendingApproval:   {model.RequestApproved, model.RequestInQuotation, model.RequestRejected, model.RequestCancelled},
	model.RequestApproved:          {model.RequestQuotationReceived, model.RequestOrderCreated},
	model.RequestInQuotation:       {model.RequestQuotationReceived},
	model.RequestQuotationReceived: {model.RequestInEvaluation, model.RequestOrderCreated},
	model.RequestInEvaluation:      {model.RequestOrderCreated},
	model.RequestOrderCreated:      {model.RequestCompleted},
	model.RequestCompleted:         {},
	model.RequestRejected:          {},
	model.RequestCancelled:         {},
}

var orderTransitions = map[model.OrderStatus][]model.OrderStatus{
	model.OrderDraft:             {model.OrderSent, model.OrderCancelled},
	model.OrderSent:              {model.OrderConfirmed, model.OrderCancelled},
	model.OrderConfirmed:         {model.OrderPartiallyReceived, model.OrderReceived, model.OrderCancelled},
	model.OrderPartiallyReceived: {model.OrderReceived},
	model.OrderReceived:          {model.OrderInvoiced},
	model.OrderInvoiced:          {model.OrderPaid},
	model.OrderPaid:              {},
	model.OrderCancelled:         {},
}

var quotationTransitions = map[model.QuotationStatus][]model.QuotationStatus{
	model.QuotationReceived:    {model.QuotationUnderReview, model.QuotationSelected, model.QuotationRejected},
	model.QuotationUnderReview: {model.QuotationSelected, model.QuotationRejected},
	model.QuotationSelected:    {model.QuotationRejected},
	model.QuotationRejected:    {model.QuotationSelected},
}

// Requests in these statuses accept, compare and select quotations.
var evaluableStatuses = []model.RequestStatus{
	model.RequestApproved, model.RequestInQuotation, model.RequestQuotationReceived, model.RequestInEvaluation,
}

// RequestTargets returns the statuses reachable from s in one step.
func RequestTargets(s model.RequestStatus) []model.RequestStatus {
	return slices.Clone(requestTransitions[s])
}

func CanTransitionRequest(from, to model.RequestStatus) bool {
	return slices.Contains(requestTransitions[from], to)
}

// CheckRequestTransition returns a *TransitionError unless from→to is in the request table.
func CheckRequestTransition(from, to model.RequestStatus) error {
	if !CanTransitionRequest(from, to) {
		return &TransitionError{Entity: EntityPurchaseRequest, From: string(from), To: string(to)}
	}
	return nil
}

func IsTerminalRequest(s model.RequestStatus) bool {
	targets, ok := requestTransitions[s]
	return ok && len(targets) == 0
}

// IsEvaluable reports whether quotations may be added to or selected for a request in s.
func IsEvaluable(s model.RequestStatus) bool {
	return slices.Contains(evaluableStatuses, s)
}

func OrderTargets(s model.OrderStatus) []model.OrderStatus {
	return slices.Clone(orderTransitions[s])
}

func CanTransitionOrder(from, to model.OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

func CheckOrderTransition(from, to model.OrderStatus) error {
	if !CanTransitionOrder(from, to) {
		return &TransitionError{Entity: EntityPurchaseOrder, From: string(from), To: string(to)}
	}
	return nil
}

// CanReceive reports whether goods can be booked against an order in s.
func CanReceive(s model.OrderStatus) bool {
	return s == model.OrderConfirmed || s == model.OrderPartiallyReceived
}

func CheckQuotationTransition(from, to model.QuotationStatus) error {
	if !slices.Contains(quotationTransitions[from], to) {
		return &TransitionError{Entity: EntityQuotation, From: string(from), To: string(to)}
	}
	return nil
}

// Request actions exposed to clients as allowed_actions
const (
	ActionSubmit          = "submit"
	ActionEdit            = "edit"
	ActionDelete          = "delete"
	ActionApprove         = "approve"
	ActionReject          = "reject"
	ActionCancel          = "cancel"
	ActionAddQuotation    = "add_quotation"
	ActionSelectQuotation = "select_quotation"
	ActionDispatchRFQ     = "dispatch_rfq"
	ActionCreateOrder     = "create_order"
)

// AllowedActions derives the request actions available in status s from the
// transition table, so clients never duplicate the state machine.
func AllowedActions(s model.RequestStatus) []string {
	actions := []string{}
	if s == model.RequestDraft {
		actions = append(actions, ActionEdit, ActionDelete)
	}
	if CanTransitionRequest(s, model.RequestPendingApproval) {
		actions = append(actions, ActionSubmit)
	}
	if CanTransitionRequest(s, model.RequestApproved) {
		actions = append(actions, ActionApprove)
	}
	if CanTransitionRequest(s, model.RequestRejected) {
		actions = append(actions, ActionReject)
	}
	if CanTransitionRequest(s, model.RequestCancelled) {
		actions = append(actions, ActionCancel)
	}
	if IsEvaluable(s) {
		actions = append(actions, ActionAddQuotation, ActionSelectQuotation, ActionDispatchRFQ)
	}
	if CanTransitionRequest(s, model.RequestOrderCreated) {
		actions = append(actions, ActionCreateOrder)
	}
	return actions
}
