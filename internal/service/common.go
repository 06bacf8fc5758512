package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Authorizer answers the capability questions the lifecycle depends on.
type Authorizer interface {
	CanApprove(ctx context.Context, userID uuid.UUID) (bool, error)
	CanSubmitOnBehalf(ctx context.Context, userID uuid.UUID) (bool, error)
}

// PolicyProvider yields the workflow policy in force for the current call.
type PolicyProvider interface {
	Policy(ctx context.Context) (workflow.Policy, error)
}

// StaticPolicy serves a fixed policy.
type StaticPolicy workflow.Policy

func (p StaticPolicy) Policy(context.Context) (workflow.Policy, error) {
	return workflow.Policy(p), nil
}

// Notifier receives workflow events after their transaction commits.
type Notifier interface {
	Publish(evt ws.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(ws.Event) {}

// Options tunes the services.
type Options struct {
	// MaxRetries bounds re-runs of a transition after a version conflict.
	MaxRetries      int
	DefaultCurrency string
	Now             func() time.Time
	// DeliveryTimeout bounds each RFQ delivery attempt.
	DeliveryTimeout time.Duration
	// DeliveryConcurrency caps in-flight RFQ deliveries.
	DeliveryConcurrency int
	// Organization is printed on RFQ documents.
	Organization string
}

func (o Options) withDefaults() Options {
	if o.MaxRetries < 1 {
		o.MaxRetries = 3
	}
	if o.DefaultCurrency == "" {
		o.DefaultCurrency = "CLP"
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.DeliveryTimeout <= 0 {
		o.DeliveryTimeout = 20 * time.Second
	}
	if o.DeliveryConcurrency < 1 {
		o.DeliveryConcurrency = 8
	}
	if o.Organization == "" {
		o.Organization = "Procurement"
	}
	return o
}

func parseID(raw, field string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return uuid.Nil, workflow.Validationf("invalid %s", field)
	}
	return id, nil
}

func parseOptionalID(raw, field string) (*uuid.UUID, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	id, err := parseID(raw, field)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func parseDecimal(raw, field string) (decimal.Decimal, error) {
	if strings.TrimSpace(raw) == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, workflow.Validationf("invalid %s", field)
	}
	return d, nil
}

// parseDate accepts YYYY-MM-DD or RFC 3339.
func parseDate(raw, field string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, workflow.Validationf("invalid %s, expected YYYY-MM-DD", field)
}

func normalizePage(page, limit int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	return page, limit
}

// auditWriter writes audit rows through the caller's transaction.
type auditWriter struct {
	repo repository.AuditRepository
}

func (a auditWriter) write(ctx context.Context, actor *uuid.UUID, action, entityID, entityName string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	entry := model.AuditLog{
		UserID:     actor,
		Action:     action,
		EntityID:   entityID,
		EntityName: entityName,
		Details:    string(payload),
	}
	if err := a.repo.Log(ctx, &entry); err != nil {
		return fmt.Errorf("failed to write audit log: %w", err)
	}
	return nil
}

// lifecycle applies request transitions. Callers run it inside their own
// transaction so status, history and audit commit together.
type lifecycle struct {
	requests repository.PurchaseRequestRepository
	audit    auditWriter
	now      func() time.Time
}

// transition moves req to the target status. mutate runs after the table check
// and before the write, to set fields that travel with the status change.
func (l lifecycle) transition(ctx context.Context, req *model.PurchaseRequest, to model.RequestStatus, historyAction string, actor *uuid.UUID, comments string, mutate func()) error {
	from := req.Status
	if err := workflow.CheckRequestTransition(from, to); err != nil {
		return err
	}
	if mutate != nil {
		mutate()
	}
	req.Status = to
	if err := l.requests.UpdateWithVersion(ctx, req, req.Version); err != nil {
		return err
	}
	return l.record(ctx, req.ID, historyAction, from, to, actor, comments)
}

func (l lifecycle) record(ctx context.Context, requestID uuid.UUID, action string, from, to model.RequestStatus, actor *uuid.UUID, comments string) error {
	entry := model.RequestHistory{
		PurchaseRequestID: requestID,
		Action:            action,
		FromStatus:        from,
		ToStatus:          to,
		UserID:            actor,
		Comments:          comments,
		CreatedAt:         l.now(),
	}
	if err := l.requests.AppendHistory(ctx, &entry); err != nil {
		return fmt.Errorf("failed to append request history: %w", err)
	}
	return nil
}

// recordQuotationReceived walks the request forward after a quotation arrives.
// count includes the new quotation. It returns the statuses entered.
func (l lifecycle) recordQuotationReceived(ctx context.Context, req *model.PurchaseRequest, count int, policy workflow.Policy, actor *uuid.UUID) ([]model.RequestStatus, error) {
	steps := policy.QuotationSteps(req.Status, count, req.PurchaseType)
	for _, to := range steps {
		action := model.HistoryQuotationReceived
		comment := fmt.Sprintf("%d quotation(s) received", count)
		if to == model.RequestInEvaluation {
			action = model.HistoryInEvaluation
			comment = fmt.Sprintf("evaluation threshold of %d reached", policy.ThresholdFor(req.PurchaseType))
		}
		if err := l.transition(ctx, req, to, action, actor, comment, nil); err != nil {
			return nil, err
		}
	}
	return steps, nil
}

func (l lifecycle) markOrderCreated(ctx context.Context, req *model.PurchaseRequest, actor *uuid.UUID, orderNumber string) error {
	return l.transition(ctx, req, model.RequestOrderCreated, model.HistoryOrderCreated, actor,
		"purchase order "+orderNumber, nil)
}

func (l lifecycle) complete(ctx context.Context, req *model.PurchaseRequest, actor *uuid.UUID, orderNumber string) error {
	if err := l.transition(ctx, req, model.RequestCompleted, model.HistoryCompleted, actor,
		"purchase order "+orderNumber+" paid", nil); err != nil {
		return err
	}
	return l.audit.write(ctx, actor, model.ActionCompleteRequest, req.ID.String(), req.RequestNumber,
		map[string]interface{}{"order_number": orderNumber})
}

func requestEvent(req *model.PurchaseRequest, actor *uuid.UUID) ws.Event {
	evt := ws.Event{
		Type:     ws.EventRequestStatus,
		EntityID: req.ID.String(),
		Number:   req.RequestNumber,
		Status:   string(req.Status),
	}
	if actor != nil {
		evt.ActorID = actor.String()
	}
	return evt
}

func actorField(actor uuid.UUID) zap.Field {
	return zap.String("actor_id", actor.String())
}
