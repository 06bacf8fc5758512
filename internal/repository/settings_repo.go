package repository

import (
	"context"

	"procurement/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SettingsRepository interface {
	List(ctx context.Context) ([]model.PurchaseSetting, error)
	// Get returns nil without error for an unknown key.
	Get(ctx context.Context, key string) (*model.PurchaseSetting, error)
	Upsert(ctx context.Context, setting *model.PurchaseSetting) error
}

type settingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository(db *gorm.DB) SettingsRepository {
	return &settingsRepository{db: db}
}

func (r *settingsRepository) List(ctx context.Context) ([]model.PurchaseSetting, error) {
	var settings []model.PurchaseSetting
	err := GetDB(ctx, r.db).Order("key ASC").Find(&settings).Error
	return settings, err
}

func (r *settingsRepository) Get(ctx context.Context, key string) (*model.PurchaseSetting, error) {
	var settings []model.PurchaseSetting
	if err := GetDB(ctx, r.db).Where("key = ?", key).Limit(1).Find(&settings).Error; err != nil {
		return nil, err
	}
	if len(settings) == 0 {
		return nil, nil
	}
	return &settings[0], nil
}

func (r *settingsRepository) Upsert(ctx context.Context, setting *model.PurchaseSetting) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_by", "updated_at"}),
	}).Create(setting).Error
}
