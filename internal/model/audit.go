package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreatePurchaseRequest = "CREATE_PURCHASE_REQUEST"
	ActionUpdatePurchaseRequest = "UPDATE_PURCHASE_REQUEST"
	ActionDeletePurchaseRequest = "DELETE_PURCHASE_REQUEST"
	ActionSubmitRequest         = "SUBMIT_PURCHASE_REQUEST"
	ActionApproveRequest        = "APPROVE_PURCHASE_REQUEST"
	ActionRejectRequest         = "REJECT_PURCHASE_REQUEST"
	ActionCancelRequest         = "CANCEL_PURCHASE_REQUEST"
	ActionCompleteRequest       = "COMPLETE_PURCHASE_REQUEST"

	ActionCreateQuotation = "CREATE_QUOTATION"
	ActionUpdateQuotation = "UPDATE_QUOTATION"
	ActionSelectQuotation = "SELECT_QUOTATION"
	ActionDeleteQuotation = "DELETE_QUOTATION"

	ActionCreatePurchaseOrder = "CREATE_PURCHASE_ORDER"
	ActionUpdateOrderStatus   = "UPDATE_ORDER_STATUS"
	ActionReceiveOrderItems   = "RECEIVE_ORDER_ITEMS"
	ActionDeletePurchaseOrder = "DELETE_PURCHASE_ORDER"

	ActionDispatchRFQ   = "DISPATCH_RFQ"
	ActionUpdateSetting = "UPDATE_PURCHASE_SETTING"

	ActionUpdateRolePermissions = "UPDATE_ROLE_PERMISSIONS"
)

// AuditLog tracks Who, What, and When for every procurement mutation
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for system-triggered changes
	User       *User      `gorm:"foreignKey:UserID" json:"user"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // request/order number or title
	Details    string     `gorm:"type:text" json:"details"`                       // JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	assignID(&a.ID)
	return nil
}
