package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderStatus is the fulfillment state of a purchase order.
type OrderStatus string

const (
	OrderDraft             OrderStatus = "draft"
	OrderSent              OrderStatus = "sent"
	OrderConfirmed         OrderStatus = "confirmed"
	OrderPartiallyReceived OrderStatus = "partially_received"
	OrderReceived          OrderStatus = "received"
	OrderInvoiced          OrderStatus = "invoiced"
	OrderPaid              OrderStatus = "paid"
	OrderCancelled         OrderStatus = "cancelled"
)

var OrderStatuses = []OrderStatus{
	OrderDraft, OrderSent, OrderConfirmed, OrderPartiallyReceived,
	OrderReceived, OrderInvoiced, OrderPaid, OrderCancelled,
}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if v == s {
			return true
		}
	}
	return false
}

// PurchaseOrder is the commitment to a supplier created from an approved request.
type PurchaseOrder struct {
	ID                   uuid.UUID              `gorm:"type:uuid;primaryKey" json:"id"`
	OrderNumber          string                 `gorm:"type:varchar(20);uniqueIndex;not null" json:"order_number"` // OC-YYYY-NNNN
	PurchaseRequestID    uuid.UUID              `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	PurchaseRequest      *PurchaseRequest       `gorm:"foreignKey:PurchaseRequestID" json:"purchase_request,omitempty"`
	QuotationID          *uuid.UUID             `gorm:"type:uuid;index" json:"quotation_id"`
	SupplierID           uuid.UUID              `gorm:"type:uuid;not null;index" json:"supplier_id"`
	Supplier             *Supplier              `gorm:"foreignKey:SupplierID" json:"supplier,omitempty"`
	Status               OrderStatus            `gorm:"type:varchar(30);not null;index" json:"status"`
	Subtotal             decimal.Decimal        `gorm:"type:decimal(18,4);not null" json:"subtotal"`
	TaxAmount            decimal.Decimal        `gorm:"type:decimal(18,4);not null" json:"tax_amount"`
	TotalAmount          decimal.Decimal        `gorm:"type:decimal(18,4);not null" json:"total_amount"`
	Currency             string                 `gorm:"type:varchar(3);not null" json:"currency"`
	PaymentTerms         string                 `gorm:"type:varchar(100)" json:"payment_terms"`
	DeliveryAddress      string                 `gorm:"type:text" json:"delivery_address"`
	DeliveryNotes        string                 `gorm:"type:text" json:"delivery_notes"`
	ExpectedDeliveryDate *time.Time             `json:"expected_delivery_date"`
	ActualDeliveryDate   *time.Time             `json:"actual_delivery_date"`
	InvoiceNumber        string                 `gorm:"type:varchar(50)" json:"invoice_number,omitempty"`
	InvoiceDate          *time.Time             `json:"invoice_date,omitempty"`
	Notes                string                 `gorm:"type:text" json:"notes"`
	CreatedBy            uuid.UUID              `gorm:"type:uuid;not null" json:"created_by"`
	Creator              *User                  `gorm:"foreignKey:CreatedBy" json:"creator,omitempty"`
	Version              int                    `gorm:"not null" json:"version"`
	Items                []PurchaseOrderItem    `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE" json:"items"`
	History              []PurchaseOrderHistory `gorm:"foreignKey:PurchaseOrderID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
	CreatedAt            time.Time              `json:"created_at"`
	UpdatedAt            time.Time              `json:"updated_at"`
}

func (o *PurchaseOrder) BeforeCreate(tx *gorm.DB) error {
	assignID(&o.ID)
	initVersion(&o.Version)
	return nil
}

// FullyReceived reports whether every line has received at least its ordered quantity.
func (o *PurchaseOrder) FullyReceived() bool {
	for _, it := range o.Items {
		if !it.Satisfied() {
			return false
		}
	}
	return true
}

// AnyReceived reports whether at least one unit has been booked on any line.
func (o *PurchaseOrder) AnyReceived() bool {
	for _, it := range o.Items {
		if it.ReceivedQuantity.IsPositive() {
			return true
		}
	}
	return false
}

type PurchaseOrderItem struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseOrderID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	RequestItemID    *uuid.UUID      `gorm:"type:uuid" json:"request_item_id"`
	Description      string          `gorm:"type:text;not null" json:"description"`
	Quantity         decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Unit             string          `gorm:"type:varchar(30)" json:"unit"`
	UnitPrice        decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"unit_price"`
	TotalPrice       decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"total_price"`
	ReceivedQuantity decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"received_quantity"`
	Notes            string          `gorm:"type:text" json:"notes"`
	Position         int             `gorm:"not null;default:0" json:"position"`
	Version          int             `gorm:"not null" json:"version"`
}

func (i *PurchaseOrderItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	initVersion(&i.Version)
	return nil
}

func (i PurchaseOrderItem) Satisfied() bool {
	return i.ReceivedQuantity.GreaterThanOrEqual(i.Quantity)
}

// Outstanding is the quantity still to be received, never negative.
func (i PurchaseOrderItem) Outstanding() decimal.Decimal {
	rest := i.Quantity.Sub(i.ReceivedQuantity)
	if rest.IsNegative() {
		return decimal.Zero
	}
	return rest
}

// History actions recorded against a purchase order
const (
	OrderHistoryCreated  = "created"
	OrderHistoryStatus   = "status_changed"
	OrderHistoryReceipt  = "items_received"
	OrderHistoryInvoiced = "invoiced"
)

type PurchaseOrderHistory struct {
	ID              uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseOrderID uuid.UUID   `gorm:"type:uuid;not null;index" json:"purchase_order_id"`
	Seq             int         `gorm:"not null;default:0" json:"seq"`
	Action          string      `gorm:"type:varchar(30);not null" json:"action"`
	FromStatus      OrderStatus `gorm:"type:varchar(30)" json:"from_status"`
	ToStatus        OrderStatus `gorm:"type:varchar(30)" json:"to_status"`
	UserID          *uuid.UUID  `gorm:"type:uuid;index" json:"user_id"`
	Comments        string      `gorm:"type:text" json:"comments"`
	CreatedAt       time.Time   `gorm:"index" json:"created_at"`
}

func (PurchaseOrderHistory) TableName() string {
	return "purchase_order_history"
}

func (h *PurchaseOrderHistory) BeforeCreate(tx *gorm.DB) error {
	assignID(&h.ID)
	return nil
}
