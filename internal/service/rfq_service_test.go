package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"procurement/internal/model"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
)

func deadline() string {
	return time.Now().AddDate(0, 0, 7).Format("2006-01-02")
}

func TestDispatchReportsPerSupplierOutcome(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail, fail: map[uuid.UUID]error{}}
	whatsapp := &fakeSender{method: model.ChannelWhatsApp}
	e := newEnv(t, email, whatsapp)
	email.fail[e.supplierB.ID] = errors.New("mailbox unavailable")

	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	res, err := e.rfqs.Dispatch(ctx, req.ID.String(), e.buyer.ID.String(), DispatchInput{
		SupplierIDs: []string{e.supplierA.ID.String(), e.supplierB.ID.String(), e.supplierA.ID.String()},
		Deadline:    deadline(),
		Channel:     "both",
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Results) != 4 || res.Sent != 3 || res.Failed != 1 {
		t.Fatalf("expected 4 results with 3 sent, got %d/%d/%d", len(res.Results), res.Sent, res.Failed)
	}
	for _, r := range res.Results {
		if !r.Success && (r.SupplierID != e.supplierB.ID.String() || r.Method != model.ChannelEmail) {
			t.Fatalf("unexpected failure %+v", r)
		}
	}
	if res.RFQ.RFQNumber == "" || len(res.RFQ.Suppliers) != 2 {
		t.Fatalf("duplicate supplier ids should collapse into one rfq row each: %+v", res.RFQ)
	}

	rfqs, err := e.rfqs.ListByRequest(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("list rfqs: %v", err)
	}
	if len(rfqs) != 1 {
		t.Fatalf("expected one rfq, got %d", len(rfqs))
	}
	for _, sp := range rfqs[0].Suppliers {
		if !sp.Notified || sp.NotifiedAt == nil {
			t.Fatalf("supplier %s reached on at least one method must be notified", sp.SupplierID)
		}
	}
	if e.status(t, req.ID) != model.RequestInQuotation {
		t.Fatalf("dispatch must not change the request status")
	}
	if e.notifier.count(ws.EventRFQDispatched) != 1 {
		t.Fatalf("dispatch should be published")
	}
}

func TestDispatchTimesOutSlowDelivery(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail, block: map[uuid.UUID]bool{}}
	e := newEnv(t, email)
	email.block[e.supplierA.ID] = true

	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	started := time.Now()
	res, err := e.rfqs.Dispatch(ctx, req.ID.String(), e.buyer.ID.String(), DispatchInput{
		SupplierIDs: []string{e.supplierA.ID.String(), e.supplierB.ID.String()},
		Deadline:    deadline(),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if time.Since(started) > 5*time.Second {
		t.Fatalf("a stuck delivery must not hold up the dispatch")
	}
	if res.Sent != 1 || res.Failed != 1 {
		t.Fatalf("expected one sent and one timed out, got %d/%d", res.Sent, res.Failed)
	}

	rfqs, err := e.rfqs.ListByRequest(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("list rfqs: %v", err)
	}
	for _, sp := range rfqs[0].Suppliers {
		switch sp.SupplierID {
		case e.supplierA.ID:
			if sp.Notified || sp.LastError == "" {
				t.Fatalf("timed out supplier must carry the failure: %+v", sp)
			}
		case e.supplierB.ID:
			if !sp.Notified {
				t.Fatalf("supplier B should be notified")
			}
		}
	}
}

func TestDispatchValidation(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail}
	e := newEnv(t, email)
	ctx := context.Background()

	draft := e.createRequest(t, string(model.PurchaseQuoted), nil)
	in := DispatchInput{SupplierIDs: []string{e.supplierA.ID.String()}, Deadline: deadline()}
	if _, err := e.rfqs.Dispatch(ctx, draft.ID.String(), e.buyer.ID.String(), in); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("draft requests cannot be quoted, got %v", err)
	}

	e.approve(t, draft)
	whatsapp := in
	whatsapp.Channel = "whatsapp"
	if _, err := e.rfqs.Dispatch(ctx, draft.ID.String(), e.buyer.ID.String(), whatsapp); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("unconfigured channel must be rejected, got %v", err)
	}
	past := in
	past.Deadline = time.Now().AddDate(0, 0, -1).Format("2006-01-02")
	if _, err := e.rfqs.Dispatch(ctx, draft.ID.String(), e.buyer.ID.String(), past); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("past deadlines must be rejected, got %v", err)
	}
	unknown := in
	unknown.SupplierIDs = []string{uuid.NewString()}
	if _, err := e.rfqs.Dispatch(ctx, draft.ID.String(), e.buyer.ID.String(), unknown); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("unknown suppliers must be rejected, got %v", err)
	}
	if e.auditCount(t, model.ActionDispatchRFQ) != 0 {
		t.Fatalf("rejected dispatches must leave no trace")
	}
}

func TestQuotationMarksRFQResponded(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail}
	e := newEnv(t, email)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	res, err := e.rfqs.Dispatch(ctx, req.ID.String(), e.buyer.ID.String(), DispatchInput{
		SupplierIDs: []string{e.supplierA.ID.String(), e.supplierB.ID.String()},
		Deadline:    deadline(),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if _, err := e.quotations.Create(ctx, e.buyer.ID.String(), QuotationInput{
		PurchaseRequestID:  req.ID.String(),
		SupplierID:         e.supplierA.ID.String(),
		QuotationRequestID: res.RFQ.ID.String(),
		TotalAmount:        "480",
	}); err != nil {
		t.Fatalf("quotation: %v", err)
	}

	rfqs, err := e.rfqs.ListByRequest(ctx, req.ID.String())
	if err != nil {
		t.Fatalf("list rfqs: %v", err)
	}
	for _, sp := range rfqs[0].Suppliers {
		if (sp.SupplierID == e.supplierA.ID) != sp.Responded {
			t.Fatalf("only supplier A responded: %+v", sp)
		}
	}
}

func TestRFQDocumentPreviewAndDownload(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail}
	e := newEnv(t, email)
	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)

	if _, err := e.rfqs.Preview(ctx, req.ID.String(), PreviewInput{Deadline: deadline()}); !errors.Is(err, workflow.ErrInvalidTransition) {
		t.Fatalf("draft requests cannot produce an rfq document, got %v", err)
	}
	e.approve(t, req)
	if _, err := e.rfqs.Preview(ctx, req.ID.String(), PreviewInput{}); !errors.Is(err, workflow.ErrValidation) {
		t.Fatalf("deadline is required, got %v", err)
	}
	doc, err := e.rfqs.Preview(ctx, req.ID.String(), PreviewInput{Deadline: deadline()})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if len(doc.Content) == 0 {
		t.Fatalf("preview should render a document")
	}
	if e.status(t, req.ID) != model.RequestInQuotation {
		t.Fatalf("previewing must not change the request status")
	}

	res, err := e.rfqs.Dispatch(ctx, req.ID.String(), e.buyer.ID.String(), DispatchInput{
		SupplierIDs: []string{e.supplierA.ID.String()},
		Deadline:    deadline(),
	})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	sent, err := e.rfqs.Document(ctx, req.ID.String(), res.RFQ.ID.String())
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(sent.Content) == 0 {
		t.Fatalf("download should return the rfq document")
	}
	if _, err := e.rfqs.Document(ctx, uuid.NewString(), res.RFQ.ID.String()); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("rfq of another request must not be found, got %v", err)
	}
}

func TestDispatchResultsFollowRequestedSupplierOrder(t *testing.T) {
	email := &fakeSender{method: model.ChannelEmail, fail: map[uuid.UUID]error{}}
	e := newEnv(t, email)
	email.fail[e.supplierA.ID] = errors.New("smtp timeout")

	ctx := context.Background()
	req := e.createRequest(t, string(model.PurchaseQuoted), nil)
	e.approve(t, req)

	want := []model.Supplier{e.supplierC, e.supplierA, e.supplierB}
	ids := make([]string, 0, len(want))
	for _, sp := range want {
		ids = append(ids, sp.ID.String())
	}
	res, err := e.rfqs.Dispatch(ctx, req.ID.String(), e.buyer.ID.String(), DispatchInput{SupplierIDs: ids, Deadline: deadline()})
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if len(res.Results) != 3 || res.Sent != 2 || res.Failed != 1 {
		t.Fatalf("expected 2 sent and 1 failed, got %d/%d/%d", len(res.Results), res.Sent, res.Failed)
	}
	for i, r := range res.Results {
		if r.SupplierID != want[i].ID.String() {
			t.Fatalf("result %d is for %s, want %s", i, r.SupplierName, want[i].DisplayName())
		}
		if r.Success == (r.SupplierID == e.supplierA.ID.String()) {
			t.Fatalf("only the second supplier should fail, got %+v", r)
		}
	}
}
