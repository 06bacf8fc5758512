package model

import (
	"time"

	"github.com/google/uuid"
)

// Setting keys understood by the workflow policy
const (
	SettingDirectPurchaseLimit = "direct_purchase_limit"
	SettingEvaluationThreshold = "evaluation_threshold"
)

// PurchaseSetting is a runtime-editable procurement parameter.
type PurchaseSetting struct {
	Key         string     `gorm:"type:varchar(100);primaryKey" json:"key"`
	Value       string     `gorm:"type:text;not null" json:"value"`
	Description string     `gorm:"type:text" json:"description"`
	UpdatedBy   *uuid.UUID `gorm:"type:uuid" json:"updated_by"`
	UpdatedAt   time.Time  `json:"updated_at"`
}
