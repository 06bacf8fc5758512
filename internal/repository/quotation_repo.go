package repository

import (
	"context"
	"fmt"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type QuotationRepository interface {
	Create(ctx context.Context, q *model.Quotation) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error)
	ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Quotation, error)
	CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error)
	FindSelected(ctx context.Context, requestID uuid.UUID) (*model.Quotation, error)
	UpdateWithVersion(ctx context.Context, q *model.Quotation, expected int) error
	ReplaceItems(ctx context.Context, quotationID uuid.UUID, items []model.QuotationItem) error
	// RejectSiblings clears the selection on every other quotation of the request.
	RejectSiblings(ctx context.Context, requestID, keepID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type quotationRepository struct {
	db *gorm.DB
}

func NewQuotationRepository(db *gorm.DB) QuotationRepository {
	return &quotationRepository{db: db}
}

func (r *quotationRepository) Create(ctx context.Context, q *model.Quotation) error {
	return GetDB(ctx, r.db).Omit("Supplier").Create(q).Error
}

func (r *quotationRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Quotation, error) {
	var q model.Quotation
	if err := GetDB(ctx, r.db).Preload("Items", orderedItems).Preload("Supplier").First(&q, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "quotation", id)
	}
	return &q, nil
}

func (r *quotationRepository) ListByRequest(ctx context.Context, requestID uuid.UUID) ([]model.Quotation, error) {
	var quotes []model.Quotation
	err := GetDB(ctx, r.db).
		Preload("Items", orderedItems).
		Preload("Supplier").
		Where("purchase_request_id = ?", requestID).
		Order("total_amount ASC, created_at ASC").
		Find(&quotes).Error
	return quotes, err
}

func (r *quotationRepository) CountByRequest(ctx context.Context, requestID uuid.UUID) (int64, error) {
	var count int64
	err := GetDB(ctx, r.db).Model(&model.Quotation{}).Where("purchase_request_id = ?", requestID).Count(&count).Error
	return count, err
}

// FindSelected returns nil without error when no quotation is selected.
func (r *quotationRepository) FindSelected(ctx context.Context, requestID uuid.UUID) (*model.Quotation, error) {
	var quotes []model.Quotation
	err := GetDB(ctx, r.db).
		Preload("Items", orderedItems).
		Preload("Supplier").
		Where("purchase_request_id = ? AND is_selected = ?", requestID, true).
		Limit(1).
		Find(&quotes).Error
	if err != nil {
		return nil, err
	}
	if len(quotes) == 0 {
		return nil, nil
	}
	return &quotes[0], nil
}

func (r *quotationRepository) UpdateWithVersion(ctx context.Context, q *model.Quotation, expected int) error {
	q.Version = expected + 1
	res := GetDB(ctx, r.db).
		Model(q).
		Where("version = ?", expected).
		Select("*").
		Omit(clause.Associations, "CreatedAt").
		Updates(q)
	if res.Error != nil {
		q.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		q.Version = expected
		return fmt.Errorf("%w: quotation %s at version %d", workflow.ErrConcurrentModification, q.ID, expected)
	}
	return nil
}

func (r *quotationRepository) ReplaceItems(ctx context.Context, quotationID uuid.UUID, items []model.QuotationItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("quotation_id = ?", quotationID).Delete(&model.QuotationItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].QuotationID = quotationID
	}
	return db.Create(&items).Error
}

func (r *quotationRepository) RejectSiblings(ctx context.Context, requestID, keepID uuid.UUID) error {
	return GetDB(ctx, r.db).
		Model(&model.Quotation{}).
		Where("purchase_request_id = ? AND id <> ?", requestID, keepID).
		Updates(map[string]interface{}{
			"is_selected": false,
			"status":      model.QuotationRejected,
			"version":     gorm.Expr("version + 1"),
		}).Error
}

func (r *quotationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("quotation_id = ?", id).Delete(&model.QuotationItem{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.Quotation{}).Error
}
