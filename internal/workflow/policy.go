package workflow

import (
	"procurement/internal/model"

	"github.com/shopspring/decimal"
)

const (
	DefaultEvaluationThreshold = 2
	DefaultDirectPurchaseLimit = 100000
)

// Policy holds the tunable parameters of the request lifecycle.
type Policy struct {
	// EvaluationThreshold is the quotation count that moves a request into evaluation.
	EvaluationThreshold int
	// ThresholdByType overrides EvaluationThreshold for specific purchase types.
	ThresholdByType map[model.PurchaseType]int
	// QuotingTypes are purchase types that go to in_quotation on approval.
	QuotingTypes map[model.PurchaseType]bool
	// DirectPurchaseLimit is the highest estimated amount still classified as direct.
	DirectPurchaseLimit decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		EvaluationThreshold: DefaultEvaluationThreshold,
		QuotingTypes: map[model.PurchaseType]bool{
			model.PurchaseQuoted: true,
			model.PurchaseTender: true,
		},
		DirectPurchaseLimit: decimal.NewFromInt(DefaultDirectPurchaseLimit),
	}
}

// ThresholdFor returns the evaluation threshold for a purchase type, never below 1.
func (p Policy) ThresholdFor(t model.PurchaseType) int {
	n := p.EvaluationThreshold
	if v, ok := p.ThresholdByType[t]; ok && v > 0 {
		n = v
	}
	if n < 1 {
		return 1
	}
	return n
}

func (p Policy) RequiresQuoting(t model.PurchaseType) bool {
	return p.QuotingTypes[t]
}

// Classify picks the purchase type for a request that did not state one.
func (p Policy) Classify(amount decimal.Decimal) model.PurchaseType {
	if amount.LessThanOrEqual(p.DirectPurchaseLimit) {
		return model.PurchaseDirect
	}
	return model.PurchaseQuoted
}

// ApprovalTarget is the status an approved request moves to.
func (p Policy) ApprovalTarget(t model.PurchaseType) model.RequestStatus {
	if p.RequiresQuoting(t) {
		return model.RequestInQuotation
	}
	return model.RequestApproved
}

// QuotationSteps returns the statuses a request walks through after a quotation
// arrives, given its current status and the quotation count including the new one.
// Each returned status is one legal step; an empty result means no change.
func (p Policy) QuotationSteps(current model.RequestStatus, count int, t model.PurchaseType) []model.RequestStatus {
	var steps []model.RequestStatus
	status := current
	if status == model.RequestApproved || status == model.RequestInQuotation {
		status = model.RequestQuotationReceived
		steps = append(steps, status)
	}
	if status == model.RequestQuotationReceived && count >= p.ThresholdFor(t) {
		steps = append(steps, model.RequestInEvaluation)
	}
	return steps
}
