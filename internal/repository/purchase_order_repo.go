package repository

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/workflow"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderFilter struct {
	Status            string
	SupplierID        *uuid.UUID
	PurchaseRequestID *uuid.UUID
	Search            string
	Page              int
	Limit             int
}

type PurchaseOrderRepository interface {
	Create(ctx context.Context, order *model.PurchaseOrder) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error)
	// FindActiveByRequest returns the non-cancelled order of a request, or nil.
	FindActiveByRequest(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error)
	List(ctx context.Context, filter OrderFilter) ([]model.PurchaseOrder, int64, error)
	UpdateWithVersion(ctx context.Context, order *model.PurchaseOrder, expected int) error
	UpdateItemReceipt(ctx context.Context, item *model.PurchaseOrderItem, expected int) error
	AppendHistory(ctx context.Context, entry *model.PurchaseOrderHistory) error
	Delete(ctx context.Context, id uuid.UUID) error
	NextNumber(ctx context.Context, now time.Time) (string, error)
}

type purchaseOrderRepository struct {
	db *gorm.DB
}

func NewPurchaseOrderRepository(db *gorm.DB) PurchaseOrderRepository {
	return &purchaseOrderRepository{db: db}
}

func (r *purchaseOrderRepository) Create(ctx context.Context, order *model.PurchaseOrder) error {
	return GetDB(ctx, r.db).Omit("History", "Supplier", "PurchaseRequest", "Creator").Create(order).Error
}

func (r *purchaseOrderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	if err := GetDB(ctx, r.db).Preload("Items", orderedItems).First(&order, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	return &order, nil
}

func (r *purchaseOrderRepository) FindDetail(ctx context.Context, id uuid.UUID) (*model.PurchaseOrder, error) {
	var order model.PurchaseOrder
	err := GetDB(ctx, r.db).
		Preload("Items", orderedItems).
		Preload("History", orderedHistory).
		Preload("Supplier").
		Preload("PurchaseRequest").
		Preload("Creator").
		First(&order, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "purchase order", id)
	}
	return &order, nil
}

func (r *purchaseOrderRepository) FindActiveByRequest(ctx context.Context, requestID uuid.UUID) (*model.PurchaseOrder, error) {
	var orders []model.PurchaseOrder
	err := GetDB(ctx, r.db).
		Preload("Items", orderedItems).
		Where("purchase_request_id = ? AND status <> ?", requestID, model.OrderCancelled).
		Limit(1).
		Find(&orders).Error
	if err != nil {
		return nil, err
	}
	if len(orders) == 0 {
		return nil, nil
	}
	return &orders[0], nil
}

func (r *purchaseOrderRepository) applyFilter(query *gorm.DB, filter OrderFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.SupplierID != nil {
		query = query.Where("supplier_id = ?", *filter.SupplierID)
	}
	if filter.PurchaseRequestID != nil {
		query = query.Where("purchase_request_id = ?", *filter.PurchaseRequestID)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where("LOWER(order_number) LIKE ? OR LOWER(invoice_number) LIKE ?", p, p)
	}
	return query
}

func (r *purchaseOrderRepository) List(ctx context.Context, filter OrderFilter) ([]model.PurchaseOrder, int64, error) {
	var orders []model.PurchaseOrder
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.applyFilter(db.Model(&model.PurchaseOrder{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := r.applyFilter(db.Model(&model.PurchaseOrder{}), filter).
		Preload("Supplier").
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&orders).Error
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

func (r *purchaseOrderRepository) UpdateWithVersion(ctx context.Context, order *model.PurchaseOrder, expected int) error {
	order.Version = expected + 1
	res := GetDB(ctx, r.db).
		Model(order).
		Where("version = ?", expected).
		Select("*").
		Omit(clause.Associations, "CreatedAt").
		Updates(order)
	if res.Error != nil {
		order.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		order.Version = expected
		return fmt.Errorf("%w: purchase order %s at version %d", workflow.ErrConcurrentModification, order.ID, expected)
	}
	return nil
}

func (r *purchaseOrderRepository) UpdateItemReceipt(ctx context.Context, item *model.PurchaseOrderItem, expected int) error {
	res := GetDB(ctx, r.db).
		Model(&model.PurchaseOrderItem{}).
		Where("id = ? AND version = ?", item.ID, expected).
		Updates(map[string]interface{}{
			"received_quantity": item.ReceivedQuantity,
			"version":           expected + 1,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("%w: order item %s at version %d", workflow.ErrConcurrentModification, item.ID, expected)
	}
	item.Version = expected + 1
	return nil
}

func (r *purchaseOrderRepository) AppendHistory(ctx context.Context, entry *model.PurchaseOrderHistory) error {
	db := GetDB(ctx, r.db)
	seq, err := nextSeq(db, entry.TableName(), "purchase_order_id", entry.PurchaseOrderID)
	if err != nil {
		return err
	}
	entry.Seq = seq
	return db.Create(entry).Error
}

func (r *purchaseOrderRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("purchase_order_id = ?", id).Delete(&model.PurchaseOrderItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("purchase_order_id = ?", id).Delete(&model.PurchaseOrderHistory{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.PurchaseOrder{}).Error
}

func (r *purchaseOrderRepository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	return nextNumber(GetDB(ctx, r.db), "purchase_orders", "order_number", PrefixOrder, now)
}
