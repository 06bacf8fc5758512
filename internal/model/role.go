package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Permission codes used by the procurement API
const (
	PermRequestsRead    = "purchases.requests.read"
	PermRequestsWrite   = "purchases.requests.write"
	PermRequestsApprove = "purchases.requests.approve"
	PermSubmitOnBehalf  = "purchases.requests.submit_on_behalf"
	PermQuotationsRead  = "purchases.quotations.read"
	PermQuotationsWrite = "purchases.quotations.write"
	PermOrdersRead      = "purchases.orders.read"
	PermOrdersWrite     = "purchases.orders.write"
	PermRFQDispatch     = "purchases.rfq.dispatch"
	PermSettingsManage  = "purchases.settings.manage"
	PermAuditRead       = "audit.read"
	PermRolesManage     = "roles.manage"
)

// Role groups permissions; users carry the role name.
type Role struct {
	ID          uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsSystem    bool         `gorm:"default:false" json:"is_system"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (r *Role) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	return nil
}

type Permission struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Code  string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"code"`
	Name  string    `gorm:"type:varchar(255);not null" json:"name"`
	Group string    `gorm:"type:varchar(50);not null;index" json:"group"`
}

func (p *Permission) BeforeCreate(tx *gorm.DB) error {
	assignID(&p.ID)
	return nil
}
