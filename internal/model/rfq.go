package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Channel selects how an RFQ document reaches suppliers.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelBoth     Channel = "both"
)

func (c Channel) Valid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp, ChannelBoth:
		return true
	}
	return false
}

// Methods expands the channel into the concrete delivery methods it uses.
func (c Channel) Methods() []Channel {
	switch c {
	case ChannelEmail:
		return []Channel{ChannelEmail}
	case ChannelWhatsApp:
		return []Channel{ChannelWhatsApp}
	case ChannelBoth:
		return []Channel{ChannelEmail, ChannelWhatsApp}
	}
	return nil
}

// QuotationRequest records one RFQ sent for a purchase request.
type QuotationRequest struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	RFQNumber         string        `gorm:"column:rfq_number;type:varchar(20);uniqueIndex;not null" json:"rfq_number"` // RFQ-YYYY-NNNN
	PurchaseRequestID uuid.UUID     `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	Title             string        `gorm:"type:varchar(255);not null" json:"title"`
	Deadline          time.Time     `gorm:"not null" json:"deadline"`
	Channel           Channel       `gorm:"type:varchar(20);not null" json:"channel"`
	DocumentKey       string        `gorm:"type:varchar(255)" json:"document_key"`
	CreatedBy         uuid.UUID     `gorm:"type:uuid;not null" json:"created_by"`
	Suppliers         []RfqSupplier `gorm:"foreignKey:QuotationRequestID;constraint:OnDelete:CASCADE" json:"suppliers"`
	CreatedAt         time.Time     `json:"created_at"`
}

func (q *QuotationRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&q.ID)
	return nil
}

// RfqSupplier tracks one invited supplier of an RFQ.
type RfqSupplier struct {
	ID                 uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	QuotationRequestID uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_rfq_supplier" json:"quotation_request_id"`
	SupplierID         uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_rfq_supplier" json:"supplier_id"`
	Supplier           *Supplier  `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Notified           bool       `gorm:"not null;default:false" json:"notified"`
	NotifiedAt         *time.Time `json:"notified_at"`
	LastError          string     `gorm:"type:text" json:"last_error,omitempty"`
	Responded          bool       `gorm:"not null;default:false" json:"responded"`
	RespondedAt        *time.Time `json:"responded_at"`
}

func (s *RfqSupplier) BeforeCreate(tx *gorm.DB) error {
	assignID(&s.ID)
	return nil
}
