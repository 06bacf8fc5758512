package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Supplier is a vendor that can be invited to quote and receive purchase orders.
// Supplier master data is maintained elsewhere; this service only reads it.
type Supplier struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	BusinessName string         `gorm:"type:varchar(255);not null" json:"business_name"`
	TradeName    string         `gorm:"type:varchar(255)" json:"trade_name"`
	TaxID        string         `gorm:"type:varchar(50);index" json:"tax_id"`
	ContactName  string         `gorm:"type:varchar(255)" json:"contact_name"`
	Email        string         `gorm:"type:varchar(255)" json:"email"`
	Phone        string         `gorm:"type:varchar(50)" json:"phone"`
	Mobile       string         `gorm:"type:varchar(50)" json:"mobile"`
	Address      string         `gorm:"type:text" json:"address"`
	PaymentTerms string         `gorm:"type:varchar(100)" json:"payment_terms"`
	IsActive     bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
}

func (s *Supplier) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}

// DisplayName prefers the trade name used on documents.
func (s Supplier) DisplayName() string {
	if s.TradeName != "" {
		return s.TradeName
	}
	return s.BusinessName
}

// MessagingNumber is the number used for WhatsApp delivery, mobile first.
func (s Supplier) MessagingNumber() string {
	if s.Mobile != "" {
		return s.Mobile
	}
	return s.Phone
}
