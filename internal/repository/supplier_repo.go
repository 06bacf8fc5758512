package repository

import (
	"context"

	"procurement/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SupplierRepository interface {
	Create(ctx context.Context, supplier *model.Supplier) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Supplier, error)
	// FindByIDs returns the active suppliers among ids, in no particular order.
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Supplier, error)
	List(ctx context.Context, search string, page, limit int) ([]model.Supplier, int64, error)
}

type supplierRepository struct {
	db *gorm.DB
}

func NewSupplierRepository(db *gorm.DB) SupplierRepository {
	return &supplierRepository{db: db}
}

func (r *supplierRepository) Create(ctx context.Context, supplier *model.Supplier) error {
	return GetDB(ctx, r.db).Create(supplier).Error
}

func (r *supplierRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Supplier, error) {
	var supplier model.Supplier
	if err := GetDB(ctx, r.db).First(&supplier, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "supplier", id)
	}
	return &supplier, nil
}

func (r *supplierRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Supplier, error) {
	var suppliers []model.Supplier
	if len(ids) == 0 {
		return suppliers, nil
	}
	err := GetDB(ctx, r.db).Where("id IN ? AND is_active = ?", ids, true).Find(&suppliers).Error
	return suppliers, err
}

func (r *supplierRepository) List(ctx context.Context, search string, page, limit int) ([]model.Supplier, int64, error) {
	var suppliers []model.Supplier
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Supplier{}).Where("is_active = ?", true)
	if search != "" {
		p := likePattern(search)
		query = query.Where("LOWER(business_name) LIKE ? OR LOWER(trade_name) LIKE ? OR LOWER(tax_id) LIKE ? OR LOWER(email) LIKE ?", p, p, p, p)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("business_name ASC").Offset(offset).Limit(limit).Find(&suppliers).Error; err != nil {
		return nil, 0, err
	}
	return suppliers, total, nil
}
