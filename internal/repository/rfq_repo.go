package repository

import (
	"context"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type RFQRepository interface {
	Create(ctx context.Context, rfq *model.QuotationRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.QuotationRequest, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.QuotationRequest, error)
	MarkNotified(ctx context.Context, rfqID, supplierID uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, rfqID, supplierID uuid.UUID, reason string) error
	MarkResponded(ctx context.Context, rfqID, supplierID uuid.UUID, at time.Time) error
	SetDocumentKey(ctx context.Context, id uuid.UUID, key string) error
	NextNumber(ctx context.Context, now time.Time) (string, error)
}

type rfqRepository struct {
	db *gorm.DB
}

func NewRFQRepository(db *gorm.DB) RFQRepository {
	return &rfqRepository{db: db}
}

func (r *rfqRepository) Create(ctx context.Context, rfq *model.QuotationRequest) error {
	return GetDB(ctx, r.db).Create(rfq).Error
}

func (r *rfqRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.QuotationRequest, error) {
	var rfq model.QuotationRequest
	if err := GetDB(ctx, r.db).Preload("Suppliers.Supplier").First(&rfq, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "rfq", id)
	}
	return &rfq, nil
}

func (r *rfqRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.QuotationRequest, error) {
	var rfqs []model.QuotationRequest
	err := GetDB(ctx, r.db).
		Preload("Suppliers.Supplier").
		Where("purchase_request_id = ?", requestID).
		Order("created_at DESC").
		Find(&rfqs).Error
	return rfqs, err
}

func (r *rfqRepository) supplierRow(ctx context.Context, rfqID, supplierID uuid.UUID) *gorm.DB {
	return GetDB(ctx, r.db).
		Model(&model.RfqSupplier{}).
		Where("quotation_request_id = ? AND supplier_id = ?", rfqID, supplierID)
}

func (r *rfqRepository) MarkNotified(ctx context.Context, rfqID, supplierID uuid.UUID, at time.Time) error {
	return r.supplierRow(ctx, rfqID, supplierID).Updates(map[string]interface{}{
		"notified":    true,
		"notified_at": at,
		"last_error":  "",
	}).Error
}

func (r *rfqRepository) MarkFailed(ctx context.Context, rfqID, supplierID uuid.UUID, reason string) error {
	return r.supplierRow(ctx, rfqID, supplierID).Update("last_error", reason).Error
}

func (r *rfqRepository) MarkResponded(ctx context.Context, rfqID, supplierID uuid.UUID, at time.Time) error {
	return r.supplierRow(ctx, rfqID, supplierID).Updates(map[string]interface{}{
		"responded":    true,
		"responded_at": at,
	}).Error
}

func (r *rfqRepository) SetDocumentKey(ctx context.Context, id uuid.UUID, key string) error {
	return GetDB(ctx, r.db).Model(&model.QuotationRequest{}).Where("id = ?", id).Update("document_key", key).Error
}

func (r *rfqRepository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	return nextNumber(GetDB(ctx, r.db), "quotation_requests", "rfq_number", PrefixRFQ, now)
}
