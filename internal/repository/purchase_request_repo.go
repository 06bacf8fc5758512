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

type RequestFilter struct {
	Status       string
	PurchaseType string
	Priority     string
	RequestedBy  *uuid.UUID
	Search       string
	Page         int
	Limit        int
}

type PurchaseRequestRepository interface {
	Create(ctx context.Context, req *model.PurchaseRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	FindDetail(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error)
	// UpdateWithVersion writes every column of req if the stored version still
	// equals expected, and bumps req.Version. A stale version yields
	// workflow.ErrConcurrentModification.
	UpdateWithVersion(ctx context.Context, req *model.PurchaseRequest, expected int) error
	ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error
	Delete(ctx context.Context, id uuid.UUID) error
	AppendHistory(ctx context.Context, entry *model.RequestHistory) error
	ListHistory(ctx context.Context, requestID uuid.UUID) ([]model.RequestHistory, error)
	NextNumber(ctx context.Context, now time.Time) (string, error)
}

type purchaseRequestRepository struct {
	db *gorm.DB
}

func NewPurchaseRequestRepository(db *gorm.DB) PurchaseRequestRepository {
	return &purchaseRequestRepository{db: db}
}

func orderedItems(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

// orderedHistory sorts by seq; created_at can tie for entries written in one transaction.
func orderedHistory(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC, created_at ASC")
}

func (r *purchaseRequestRepository) Create(ctx context.Context, req *model.PurchaseRequest) error {
	return GetDB(ctx, r.db).Omit("History").Create(req).Error
}

func (r *purchaseRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	if err := GetDB(ctx, r.db).Preload("Items", orderedItems).First(&req, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "purchase request", id)
	}
	return &req, nil
}

func (r *purchaseRequestRepository) FindDetail(ctx context.Context, id uuid.UUID) (*model.PurchaseRequest, error) {
	var req model.PurchaseRequest
	err := GetDB(ctx, r.db).
		Preload("Items", orderedItems).
		Preload("History", orderedHistory).
		Preload("History.User").
		Preload("Requester").
		Preload("Approver").
		Preload("PreferredSupplier").
		First(&req, "id = ?", id).Error
	if err != nil {
		return nil, notFound(err, "purchase request", id)
	}
	return &req, nil
}

func (r *purchaseRequestRepository) applyFilter(query *gorm.DB, filter RequestFilter) *gorm.DB {
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.PurchaseType != "" {
		query = query.Where("purchase_type = ?", filter.PurchaseType)
	}
	if filter.Priority != "" {
		query = query.Where("priority = ?", filter.Priority)
	}
	if filter.RequestedBy != nil {
		query = query.Where("requested_by = ?", *filter.RequestedBy)
	}
	if filter.Search != "" {
		p := likePattern(filter.Search)
		query = query.Where("LOWER(title) LIKE ? OR LOWER(request_number) LIKE ? OR LOWER(description) LIKE ?", p, p, p)
	}
	return query
}

func (r *purchaseRequestRepository) List(ctx context.Context, filter RequestFilter) ([]model.PurchaseRequest, int64, error) {
	var requests []model.PurchaseRequest
	var total int64

	db := GetDB(ctx, r.db)
	if err := r.applyFilter(db.Model(&model.PurchaseRequest{}), filter).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	err := r.applyFilter(db.Model(&model.PurchaseRequest{}), filter).
		Preload("Requester").
		Order("created_at DESC").
		Offset(offset).
		Limit(filter.Limit).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}
	return requests, total, nil
}

func (r *purchaseRequestRepository) UpdateWithVersion(ctx context.Context, req *model.PurchaseRequest, expected int) error {
	req.Version = expected + 1
	res := GetDB(ctx, r.db).
		Model(req).
		Where("version = ?", expected).
		Select("*").
		Omit(clause.Associations, "CreatedAt").
		Updates(req)
	if res.Error != nil {
		req.Version = expected
		return res.Error
	}
	if res.RowsAffected == 0 {
		req.Version = expected
		return fmt.Errorf("%w: purchase request %s at version %d", workflow.ErrConcurrentModification, req.ID, expected)
	}
	return nil
}

func (r *purchaseRequestRepository) ReplaceItems(ctx context.Context, requestID uuid.UUID, items []model.RequestItem) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("purchase_request_id = ?", requestID).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}
	for i := range items {
		items[i].PurchaseRequestID = requestID
	}
	return db.Create(&items).Error
}

func (r *purchaseRequestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("purchase_request_id = ?", id).Delete(&model.RequestItem{}).Error; err != nil {
		return err
	}
	if err := db.Where("purchase_request_id = ?", id).Delete(&model.RequestHistory{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&model.PurchaseRequest{}).Error
}

func (r *purchaseRequestRepository) AppendHistory(ctx context.Context, entry *model.RequestHistory) error {
	db := GetDB(ctx, r.db)
	seq, err := nextSeq(db, entry.TableName(), "purchase_request_id", entry.PurchaseRequestID)
	if err != nil {
		return err
	}
	entry.Seq = seq
	return db.Create(entry).Error
}

func (r *purchaseRequestRepository) ListHistory(ctx context.Context, requestID uuid.UUID) ([]model.RequestHistory, error) {
	var entries []model.RequestHistory
	err := GetDB(ctx, r.db).
		Preload("User").
		Where("purchase_request_id = ?", requestID).
		Scopes(orderedHistory).
		Find(&entries).Error
	return entries, err
}

func (r *purchaseRequestRepository) NextNumber(ctx context.Context, now time.Time) (string, error) {
	return nextNumber(GetDB(ctx, r.db), "purchase_requests", "request_number", PrefixRequest, now)
}
