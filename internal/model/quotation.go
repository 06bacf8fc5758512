package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type QuotationStatus string

const (
	QuotationReceived    QuotationStatus = "received"
	QuotationUnderReview QuotationStatus = "under_review"
	QuotationSelected    QuotationStatus = "selected"
	QuotationRejected    QuotationStatus = "rejected"
)

func (s QuotationStatus) Valid() bool {
	switch s {
	case QuotationReceived, QuotationUnderReview, QuotationSelected, QuotationRejected:
		return true
	}
	return false
}

// Quotation is a supplier's priced offer against one purchase request.
// At most one quotation per request carries IsSelected.
type Quotation struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	SupplierID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Supplier           *Supplier       `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	QuotationRequestID *uuid.UUID      `gorm:"type:uuid;index" json:"quotation_request_id"`
	QuotationNumber    string          `gorm:"type:varchar(50)" json:"quotation_number"`
	QuotationDate      *time.Time      `json:"quotation_date"`
	Subtotal           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	TaxAmount          decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"tax_amount"`
	TotalAmount        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	PaymentTerms       string          `gorm:"type:varchar(100)" json:"payment_terms"`
	DeliveryTime       string          `gorm:"type:varchar(100)" json:"delivery_time"`
	ValidUntil         *time.Time      `json:"valid_until"`
	Notes              string          `gorm:"type:text" json:"notes"`
	Status             QuotationStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	IsSelected         bool            `gorm:"not null" json:"is_selected"`
	SelectionReason    string          `gorm:"type:text" json:"selection_reason,omitempty"`
	ReceivedBy         *uuid.UUID      `gorm:"type:uuid" json:"received_by"`
	ReceivedAt         time.Time       `json:"received_at"`
	Version            int             `gorm:"not null" json:"version"`
	Items              []QuotationItem `gorm:"foreignKey:QuotationID;constraint:OnDelete:CASCADE" json:"items"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
}

func (q *Quotation) BeforeCreate(tx *gorm.DB) error {
	assignID(&q.ID)
	initVersion(&q.Version)
	return nil
}

type QuotationItem struct {
	ID            uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	QuotationID   uuid.UUID       `gorm:"type:uuid;not null;index" json:"quotation_id"`
	RequestItemID *uuid.UUID      `gorm:"type:uuid" json:"request_item_id"`
	Description   string          `gorm:"type:text;not null" json:"description"`
	Quantity      decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Unit          string          `gorm:"type:varchar(30)" json:"unit"`
	UnitPrice     decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	Notes         string          `gorm:"type:text" json:"notes"`
	Position      int             `gorm:"not null;default:0" json:"position"`
}

func (i *QuotationItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (i QuotationItem) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}
