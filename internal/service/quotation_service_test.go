package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"procurement/internal/model"
	"procurement/internal/testutil"
	"procurement/internal/workflow"
)

func TestSelectionIsUnique(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	qa := e.addQuotation(t, req, e.supplierA, "500")
	qb := e.addQuotation(t, req, e.supplierB, "650")
	qc := e.addQuotation(t, req, e.supplierC, "700")

	if _, err := e.quotations.Select(ctx, qa.ID.String(), e.approver.ID.String(), ""); err != nil {
		t.Fatalf("select a: %v", err)
	}
	if _, err := e.quotations.Select(ctx, qb.ID.String(), e.approver.ID.String(), "faster delivery"); err != nil {
		t.Fatalf("select b after a was rejected: %v", err)
	}

	quotes, err := e.quotations.ListByRequest(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	selected := 0
	for _, q := range quotes {
		if q.IsSelected {
			selected++
			if q.ID != qb.ID || q.Status != model.QuotationSelected || q.SelectionReason != "faster delivery" {
				t.Fatalf("unexpected selected quotation %+v", q)
			}
			continue
		}
		if q.Status != model.QuotationRejected {
			t.Fatalf("unselected quotation %s should be rejected, got %s", q.ID, q.Status)
		}
	}
	if selected != 1 {
		t.Fatalf("exactly one quotation must be selected, got %d", selected)
	}

	if _, err := e.quotations.Select(ctx, qb.ID.String(), e.approver.ID.String(), ""); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("re-selecting the selected quotation must fail, got %v", err)
	}
	if _, err := e.quotations.Select(ctx, qc.ID.String(), e.buyer.ID.String(), ""); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("buyers cannot select, got %v", err)
	}
	if e.auditCount(t, model.ActionSelectQuotation) != 2 {
		t.Fatalf("each selection must be audited")
	}
}

func TestQuotationNeedsEvaluableRequest(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)

	_, err := e.quotations.Create(ctx, e.buyer.ID.String(), QuotationInput{
		PurchaseRequestID: req.ID.String(),
		SupplierID:        e.supplierA.ID.String(),
		TotalAmount:       "100",
	})
	var te *workflow.TransitionError
	if !errors.As(err, &te) || te.From != string(model.RequestDraft) || te.To != workflow.ActionAddQuotation {
		t.Fatalf("draft requests do not take quotations, got %v", err)
	}

	e.approve(t, req)
	if _, err := e.quotations.Create(ctx, e.buyer.ID.String(), QuotationInput{
		PurchaseRequestID: req.ID.String(),
		SupplierID:        e.supplierA.ID.String(),
	}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("a quotation without items or total is invalid, got %v", err)
	}
}

func TestQuotationTotalsFromItems(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	q, err := e.quotations.Create(ctx, e.buyer.ID.String(), QuotationInput{
		PurchaseRequestID: req.ID.String(),
		SupplierID:        e.supplierA.ID.String(),
		TaxAmount:         "19",
		Items: []QuotationItemInput{
			{Description: "Chair", Quantity: "10", UnitPrice: "9.5"},
			{Description: "Delivery", Quantity: "1", UnitPrice: "5"},
		},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if q.Subtotal.String() != "100" || q.TotalAmount.String() != "119" {
		t.Fatalf("expected subtotal 100 and total 119, got %s %s", q.Subtotal, q.TotalAmount)
	}
	if q.Status != model.QuotationReceived || q.ReceivedBy == nil {
		t.Fatalf("new quotations are received by the caller: %+v", q)
	}
}

func TestQuotationDeletionRules(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	qa := e.addQuotation(t, req, e.supplierA, "500")
	qb := e.addQuotation(t, req, e.supplierB, "650")

	if err := e.quotations.Delete(ctx, qb.ID.String(), e.buyer.ID.String()); err != nil {
		t.Fatalf("delete before selection: %v", err)
	}
	if _, err := e.quotations.Get(ctx, qb.ID.String()); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("deleted quotation should be gone, got %v", err)
	}

	if _, err := e.quotations.Select(ctx, qa.ID.String(), e.approver.ID.String(), ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if err := e.quotations.Delete(ctx, qa.ID.String(), e.buyer.ID.String()); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("quotations are locked once one is selected, got %v", err)
	}
}

func TestCompareEmptyRequest(t *testing.T) {
	e := newEnv(t)
	req := e.createRequest(t, "", nil)
	cmp, err := e.quotations.Compare(context.Background(), req.ID.String())
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if cmp.Summary.Count != 0 || len(cmp.Quotations) != 0 {
		t.Fatalf("no quotations means an empty comparison, got %+v", cmp)
	}
}

func TestConcurrentSelectionKeepsOneSelected(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	quotes := []*model.Quotation{
		e.addQuotation(t, req, e.supplierA, "500"),
		e.addQuotation(t, req, e.supplierB, "650"),
		e.addQuotation(t, req, e.supplierC, "700"),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(quotes))
	for i, q := range quotes {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = e.quotations.Select(ctx, id, e.approver.ID.String(), "race")
		}(i, q.ID.String())
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil && !errors.Is(err, workflow.ErrInvalidTransition) && !errors.Is(err, workflow.ErrConcurrentModification) {
			t.Fatalf("select %d: unexpected error %v", i, err)
		}
	}

	stored, err := e.quotations.ListByRequest(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	selected := 0
	for _, q := range stored {
		if q.IsSelected {
			selected++
		}
	}
	if selected != 1 {
		t.Fatalf("exactly one quotation must end up selected, got %d", selected)
	}
}

func TestQuotationUpdateFeedsComparison(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	qa := e.addQuotation(t, req, e.supplierA, "500")
	qb := e.addQuotation(t, req, e.supplierB, "650")

	stale := qa.Version
	updated, err := e.quotations.Update(ctx, qa.ID.String(), e.buyer.ID.String(), UpdateQuotationInput{
		Items:   []QuotationItemInput{{Description: "Chair lot", Quantity: "2", UnitPrice: "400"}},
		Version: &stale,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.TotalAmount.Equal(testutil.Dec("800")) || updated.PaymentTerms != "30 days" {
		t.Fatalf("new lines should drive the total and keep other fields, got %s %q", updated.TotalAmount, updated.PaymentTerms)
	}
	if _, err := e.quotations.Update(ctx, qa.ID.String(), e.buyer.ID.String(), UpdateQuotationInput{Notes: "x", Version: &stale}); !errors.Is(err, workflow.ErrConcurrentModification) {
		t.Fatalf("stale version must be rejected, got %v", err)
	}

	res, err := e.quotations.Compare(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if !res.Summary.MinAmount.Equal(testutil.Dec("650")) || !res.Summary.MaxAmount.Equal(testutil.Dec("800")) {
		t.Fatalf("comparison should see the edited total, got min %s max %s", res.Summary.MinAmount, res.Summary.MaxAmount)
	}

	if _, err := e.quotations.Select(ctx, qb.ID.String(), e.approver.ID.String(), ""); err != nil {
		t.Fatalf("select: %v", err)
	}
	if _, err := e.quotations.Update(ctx, qa.ID.String(), e.buyer.ID.String(), UpdateQuotationInput{Notes: "late"}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("quotations are locked once one is selected, got %v", err)
	}
}
