package service

import (
	"context"
	"fmt"
	"strings"

	"procurement/internal/delivery"
	"procurement/internal/model"
	"procurement/internal/repository"
	ws "procurement/internal/websocket"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DocumentRenderer turns an RFQ into the attachment sent to suppliers.
type DocumentRenderer interface {
	Render(ctx context.Context, rfq delivery.RFQ) (*delivery.Document, error)
}

// Sender delivers a document to one supplier over one method.
type Sender interface {
	Method() model.Channel
	Send(ctx context.Context, supplier model.Supplier, doc *delivery.Document, msg delivery.Message) error
}

// DocumentStore archives rendered documents.
type DocumentStore interface {
	Put(ctx context.Context, key string, doc *delivery.Document) (string, error)
	Get(ctx context.Context, key string) (*delivery.Document, error)
}

// --- DTOs ---

type DispatchInput struct {
	SupplierIDs []string `json:"supplier_ids" binding:"required,min=1"`
	Deadline    string   `json:"deadline" binding:"required"`
	Channel     string   `json:"channel"` // email, whatsapp or both; email when empty
	Title       string   `json:"title"`
}

// DeliveryResult is the outcome for one supplier on one method.
type DeliveryResult struct {
	SupplierID   string        `json:"supplier_id"`
	SupplierName string        `json:"supplier_name"`
	Method       model.Channel `json:"method"`
	Success      bool          `json:"success"`
	Message      string        `json:"message"`
}

// PreviewInput renders the RFQ document without sending or recording it.
type PreviewInput struct {
	Deadline string `json:"deadline" binding:"required"`
}

type DispatchResult struct {
	RFQ     *model.QuotationRequest `json:"rfq"`
	Results []DeliveryResult        `json:"results"`
	Sent    int                     `json:"sent"`
	Failed  int                     `json:"failed"`
}

// --- Interface ---

type RFQService interface {
	Dispatch(ctx context.Context, requestID, userID string, in DispatchInput) (*DispatchResult, error)
	ListByRequest(ctx context.Context, requestID string) ([]model.QuotationRequest, error)
	Preview(ctx context.Context, requestID string, in PreviewInput) (*delivery.Document, error)
	Document(ctx context.Context, requestID, rfqID string) (*delivery.Document, error)
}

type rfqService struct {
	rfqs      repository.RFQRepository
	requests  repository.PurchaseRequestRepository
	suppliers repository.SupplierRepository
	txManager repository.TransactionManager
	renderer  DocumentRenderer
	senders   map[model.Channel]Sender
	store     DocumentStore
	notifier  Notifier
	audit     auditWriter
	opts      Options
	log       *zap.Logger
}

// NewRFQService wires the coordinator. store may be nil to skip archiving.
func NewRFQService(
	rfqs repository.RFQRepository,
	requests repository.PurchaseRequestRepository,
	suppliers repository.SupplierRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	renderer DocumentRenderer,
	senders []Sender,
	store DocumentStore,
	notifier Notifier,
	log *zap.Logger,
	opts Options,
) RFQService {
	opts = opts.withDefaults()
	if notifier == nil {
		notifier = nopNotifier{}
	}
	byMethod := make(map[model.Channel]Sender, len(senders))
	for _, snd := range senders {
		byMethod[snd.Method()] = snd
	}
	return &rfqService{
		rfqs:      rfqs,
		requests:  requests,
		suppliers: suppliers,
		txManager: txManager,
		renderer:  renderer,
		senders:   byMethod,
		store:     store,
		notifier:  notifier,
		audit:     auditWriter{repo: auditRepo},
		opts:      opts,
		log:       log,
	}
}

// --- Implementation ---

func (s *rfqService) resolveSuppliers(ctx context.Context, raw []string) ([]model.Supplier, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := parseID(r, "supplier id")
		if err != nil {
			return nil, err
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, workflow.Validationf("at least one supplier is required")
	}
	suppliers, err := s.suppliers.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load suppliers: %w", err)
	}
	byID := make(map[uuid.UUID]model.Supplier, len(suppliers))
	for _, sp := range suppliers {
		byID[sp.ID] = sp
	}
	// results follow the caller's supplier order
	ordered := make([]model.Supplier, 0, len(ids))
	for _, id := range ids {
		sp, ok := byID[id]
		if !ok {
			return nil, workflow.NotFoundf("active supplier %s", id)
		}
		ordered = append(ordered, sp)
	}
	return ordered, nil
}

func (s *rfqService) Dispatch(ctx context.Context, requestID, userID string, in DispatchInput) (*DispatchResult, error) {
	rid, err := parseID(requestID, "purchase request id")
	if err != nil {
		return nil, err
	}
	actor, err := parseID(userID, "user id")
	if err != nil {
		return nil, err
	}
	deadline, err := parseDate(in.Deadline, "deadline")
	if err != nil {
		return nil, err
	}
	if deadline == nil || !deadline.After(s.opts.Now()) {
		return nil, workflow.Validationf("deadline must be in the future")
	}
	channel := model.Channel(strings.TrimSpace(in.Channel))
	if channel == "" {
		channel = model.ChannelEmail
	}
	if !channel.Valid() {
		return nil, workflow.Validationf("invalid channel %q", in.Channel)
	}
	for _, m := range channel.Methods() {
		if s.senders[m] == nil {
			return nil, workflow.Validationf("delivery method %s is not configured", m)
		}
	}
	suppliers, err := s.resolveSuppliers(ctx, in.SupplierIDs)
	if err != nil {
		return nil, err
	}

	req, err := s.requests.FindDetail(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !workflow.IsEvaluable(req.Status) {
		return nil, &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionDispatchRFQ}
	}

	contact := s.contact(req)
	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = req.Title
	}

	var rfq *model.QuotationRequest
	var doc *delivery.Document
	var spec delivery.RFQ
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		number, err := s.rfqs.NextNumber(txCtx, s.opts.Now())
		if err != nil {
			return err
		}
		spec = delivery.RFQ{Number: number, Request: req, Deadline: *deadline, Contact: contact}
		doc, err = s.renderer.Render(txCtx, spec)
		if err != nil {
			return fmt.Errorf("failed to render rfq document: %w", err)
		}

		rfq = &model.QuotationRequest{
			RFQNumber:         number,
			PurchaseRequestID: req.ID,
			Title:             title,
			Deadline:          *deadline,
			Channel:           channel,
			CreatedBy:         actor,
		}
		for _, sp := range suppliers {
			rfq.Suppliers = append(rfq.Suppliers, model.RfqSupplier{SupplierID: sp.ID})
		}
		if err := s.rfqs.Create(txCtx, rfq); err != nil {
			return fmt.Errorf("failed to record rfq: %w", err)
		}
		return s.audit.write(txCtx, &actor, model.ActionDispatchRFQ, rfq.ID.String(), number,
			map[string]interface{}{
				"request_number": req.RequestNumber,
				"channel":        channel,
				"suppliers":      len(suppliers),
			})
	})
	if err != nil {
		return nil, err
	}

	if s.store != nil {
		key := fmt.Sprintf("rfq/%d/%s", rfq.CreatedAt.Year(), doc.FileName)
		if _, err := s.store.Put(ctx, key, doc); err != nil {
			s.log.Warn("failed to archive rfq document", zap.String("rfq_number", rfq.RFQNumber), zap.Error(err))
		} else if err := s.rfqs.SetDocumentKey(ctx, rfq.ID, key); err != nil {
			s.log.Warn("failed to record rfq document key", zap.String("rfq_number", rfq.RFQNumber), zap.Error(err))
		} else {
			rfq.DocumentKey = key
		}
	}

	results := s.deliver(ctx, spec, doc, suppliers, channel.Methods())
	out := &DispatchResult{RFQ: rfq, Results: results}
	s.recordOutcomes(ctx, rfq, suppliers, results)
	for _, r := range results {
		if r.Success {
			out.Sent++
		} else {
			out.Failed++
		}
	}

	s.notifier.Publish(ws.Event{Type: ws.EventRFQDispatched, EntityID: rfq.ID.String(), Number: rfq.RFQNumber,
		Status: fmt.Sprintf("%d/%d", out.Sent, len(results)), ActorID: actor.String()})
	s.log.Info("rfq dispatched",
		zap.String("rfq_number", rfq.RFQNumber),
		zap.String("request_number", req.RequestNumber),
		zap.Int("sent", out.Sent),
		zap.Int("failed", out.Failed))
	return out, nil
}

func (s *rfqService) contact(req *model.PurchaseRequest) string {
	if req.Requester != nil {
		return req.Requester.Username + " <" + req.Requester.Email + ">"
	}
	return s.opts.Organization
}

// deliver sends the document to every supplier over every method concurrently.
// Each delivery gets its own timeout; failures are reported, never propagated.
func (s *rfqService) deliver(ctx context.Context, spec delivery.RFQ, doc *delivery.Document, suppliers []model.Supplier, methods []model.Channel) []DeliveryResult {
	results := make([]DeliveryResult, len(suppliers)*len(methods))
	var g errgroup.Group
	g.SetLimit(s.opts.DeliveryConcurrency)

	for i, sp := range suppliers {
		msg := delivery.NewRFQMessage(spec, sp)
		for j, m := range methods {
			idx := i*len(methods) + j
			sp, m, sender := sp, m, s.senders[m]
			g.Go(func() error {
				dctx, cancel := context.WithTimeout(ctx, s.opts.DeliveryTimeout)
				defer cancel()

				res := DeliveryResult{SupplierID: sp.ID.String(), SupplierName: sp.DisplayName(), Method: m}
				if err := sender.Send(dctx, sp, doc, msg); err != nil {
					res.Message = err.Error()
				} else {
					res.Success = true
					res.Message = "sent"
				}
				results[idx] = res
				return nil
			})
		}
	}
	_ = g.Wait()
	return results
}

// recordOutcomes marks each supplier notified when any method reached it.
func (s *rfqService) recordOutcomes(ctx context.Context, rfq *model.QuotationRequest, suppliers []model.Supplier, results []DeliveryResult) {
	now := s.opts.Now()
	for _, sp := range suppliers {
		var ok bool
		var failures []string
		for _, r := range results {
			if r.SupplierID != sp.ID.String() {
				continue
			}
			if r.Success {
				ok = true
			} else {
				failures = append(failures, string(r.Method)+": "+r.Message)
			}
		}

		var err error
		if ok {
			err = s.rfqs.MarkNotified(ctx, rfq.ID, sp.ID, now)
		} else {
			err = s.rfqs.MarkFailed(ctx, rfq.ID, sp.ID, strings.Join(failures, "; "))
		}
		if err != nil {
			s.log.Warn("failed to record rfq delivery outcome",
				zap.String("rfq_number", rfq.RFQNumber),
				zap.String("supplier_id", sp.ID.String()),
				zap.Error(err))
		}
		for i := range rfq.Suppliers {
			if rfq.Suppliers[i].SupplierID == sp.ID {
				rfq.Suppliers[i].Notified = ok
				if ok {
					rfq.Suppliers[i].NotifiedAt = &now
				} else {
					rfq.Suppliers[i].LastError = strings.Join(failures, "; ")
				}
			}
		}
	}
}

func (s *rfqService) ListByRequest(ctx context.Context, requestID string) ([]model.QuotationRequest, error) {
	rid, err := parseID(requestID, "purchase request id")
	if err != nil {
		return nil, err
	}
	if _, err := loadRequest(ctx, s.requests, rid); err != nil {
		return nil, err
	}
	rfqs, err := s.rfqs.ListByRequest(ctx, rid)
	if err != nil {
		return nil, fmt.Errorf("failed to list rfqs: %w", err)
	}
	return rfqs, nil
}

func (s *rfqService) Preview(ctx context.Context, requestID string, in PreviewInput) (*delivery.Document, error) {
	rid, err := parseID(requestID, "purchase request id")
	if err != nil {
		return nil, err
	}
	deadline, err := parseDate(in.Deadline, "deadline")
	if err != nil {
		return nil, err
	}
	if deadline == nil {
		return nil, workflow.Validationf("deadline is required")
	}
	req, err := s.requests.FindDetail(ctx, rid)
	if err != nil {
		return nil, err
	}
	if !workflow.IsEvaluable(req.Status) {
		return nil, &workflow.TransitionError{Entity: workflow.EntityPurchaseRequest, From: string(req.Status), To: workflow.ActionDispatchRFQ}
	}
	doc, err := s.renderer.Render(ctx, delivery.RFQ{Number: "RFQ-" + req.RequestNumber, Request: req, Deadline: *deadline, Contact: s.contact(req)})
	if err != nil {
		return nil, fmt.Errorf("failed to render rfq document: %w", err)
	}
	return doc, nil
}

// Document returns the archived document of a dispatched RFQ, rendering it
// again from the request when it was never archived or the archive fails.
func (s *rfqService) Document(ctx context.Context, requestID, rfqID string) (*delivery.Document, error) {
	rid, err := parseID(requestID, "purchase request id")
	if err != nil {
		return nil, err
	}
	id, err := parseID(rfqID, "rfq id")
	if err != nil {
		return nil, err
	}
	rfq, err := s.rfqs.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if rfq.PurchaseRequestID != rid {
		return nil, workflow.NotFoundf("rfq %s of purchase request %s", id, rid)
	}

	if s.store != nil && rfq.DocumentKey != "" {
		doc, err := s.store.Get(ctx, rfq.DocumentKey)
		if err == nil {
			return doc, nil
		}
		s.log.Warn("failed to load archived rfq document, rendering again",
			zap.String("rfq_number", rfq.RFQNumber), zap.Error(err))
	}

	req, err := s.requests.FindDetail(ctx, rid)
	if err != nil {
		return nil, err
	}
	doc, err := s.renderer.Render(ctx, delivery.RFQ{Number: rfq.RFQNumber, Request: req, Deadline: rfq.Deadline, Contact: s.contact(req)})
	if err != nil {
		return nil, fmt.Errorf("failed to render rfq document: %w", err)
	}
	return doc, nil
}
