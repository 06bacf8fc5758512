package service

import (
	"context"
	"errors"
	"testing"

	"procurement/internal/model"
	"procurement/internal/workflow"
)

func TestSettingsOverridePolicy(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()

	views, err := e.settings.List(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 2 || views[0].Source != "default" || views[1].Value != "2" {
		t.Fatalf("unexpected defaults %+v", views)
	}

	if _, err := e.settings.Update(ctx, model.SettingEvaluationThreshold, e.approver.ID.String(), UpdateSettingInput{Value: "0"}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("threshold below 1 must be rejected, got %v", err)
	}
	if _, err := e.settings.Update(ctx, "max_budget", e.approver.ID.String(), UpdateSettingInput{Value: "1"}); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("unknown keys must be rejected, got %v", err)
	}
	view, err := e.settings.Update(ctx, model.SettingEvaluationThreshold, e.approver.ID.String(), UpdateSettingInput{Value: "3"})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.Source != "override" || view.Value != "3" {
		t.Fatalf("unexpected view %+v", view)
	}
	if e.auditCount(t, model.ActionUpdateSetting) != 1 {
		t.Fatalf("setting changes must be audited")
	}

	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)
	e.addQuotation(t, req, e.supplierA, "500")
	e.addQuotation(t, req, e.supplierB, "600")
	if got := e.status(t, req.ID); got != model.RequestQuotationReceived {
		t.Fatalf("two of three quotations should stay in quotation_received, got %s", got)
	}
	e.addQuotation(t, req, e.supplierC, "700")
	if got := e.status(t, req.ID); got != model.RequestInEvaluation {
		t.Fatalf("third quotation should start evaluation, got %s", got)
	}
	assertHistoryWalk(t, e.history(t, req.ID))
}

func TestDirectPurchaseLimitClassifies(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	if _, err := e.settings.Update(ctx, model.SettingDirectPurchaseLimit, e.approver.ID.String(), UpdateSettingInput{Value: "500"}); err != nil {
		t.Fatalf("update: %v", err)
	}
	// 10 x 55 = 550 exceeds the new limit.
	req := e.createRequest(t, "", nil)
	if req.PurchaseType != model.PurchaseQuoted {
		t.Fatalf("expected quoted above the limit, got %s", req.PurchaseType)
	}
	small := e.createRequest(t, "", nil, RequestItemInput{Description: "Pens", Quantity: "100", EstimatedUnitPrice: "5"})
	if small.PurchaseType != model.PurchaseDirect {
		t.Fatalf("amount equal to the limit is direct, got %s", small.PurchaseType)
	}
}
