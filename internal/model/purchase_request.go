package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RequestStatus is the lifecycle state of a purchase request.
type RequestStatus string

const (
	RequestDraft             RequestStatus = "draft"
	RequestPendingApproval   RequestStatus = "pending_approval"
	RequestApproved          RequestStatus = "approved"
	RequestInQuotation       RequestStatus = "in_quotation"
	RequestQuotationReceived RequestStatus = "quotation_received"
	RequestInEvaluation      RequestStatus = "in_evaluation"
	RequestOrderCreated      RequestStatus = "order_created"
	RequestCompleted         RequestStatus = "completed"
	RequestRejected          RequestStatus = "rejected"
	RequestCancelled         RequestStatus = "cancelled"
)

// RequestStatuses lists every request status in lifecycle order.
var RequestStatuses = []RequestStatus{
	RequestDraft, RequestPendingApproval, RequestApproved, RequestInQuotation,
	RequestQuotationReceived, RequestInEvaluation, RequestOrderCreated,
	RequestCompleted, RequestRejected, RequestCancelled,
}

func (s RequestStatus) Valid() bool {
	for _, v := range RequestStatuses {
		if v == s {
			return true
		}
	}
	return false
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type PurchaseType string

const (
	PurchaseDirect PurchaseType = "direct"
	PurchaseQuoted PurchaseType = "quoted"
	PurchaseTender PurchaseType = "tender"
)

func (t PurchaseType) Valid() bool {
	switch t {
	case PurchaseDirect, PurchaseQuoted, PurchaseTender:
		return true
	}
	return false
}

// History actions recorded against a purchase request
const (
	HistoryCreated           = "created"
	HistoryUpdated           = "updated"
	HistorySubmitted         = "submitted"
	HistoryApproved          = "approved"
	HistoryRejected          = "rejected"
	HistoryCancelled         = "cancelled"
	HistoryQuotationReceived = "quotation_received"
	HistoryInEvaluation      = "in_evaluation"
	HistoryQuotationSelected = "quotation_selected"
	HistoryOrderCreated      = "order_created"
	HistoryCompleted         = "completed"
)

// PurchaseRequest is an internal request to buy goods or services.
// Status only changes through the lifecycle transitions; Version guards concurrent writers.
type PurchaseRequest struct {
	ID                  uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RequestNumber       string           `gorm:"type:varchar(20);uniqueIndex;not null" json:"request_number"` // SC-YYYY-NNNN
	Title               string           `gorm:"type:varchar(255);not null" json:"title"`
	Description         string           `gorm:"type:text" json:"description"`
	Justification       string           `gorm:"type:text" json:"justification"`
	EstimatedAmount     decimal.Decimal  `gorm:"type:decimal(18,4);not null" json:"estimated_amount"`
	Currency            string           `gorm:"type:varchar(3);not null" json:"currency"`
	Priority            Priority         `gorm:"type:varchar(10);not null;index" json:"priority"`
	PurchaseType        PurchaseType     `gorm:"type:varchar(10);not null;index" json:"purchase_type"`
	CategoryID          *uuid.UUID       `gorm:"type:uuid;index" json:"category_id"`
	PreferredSupplierID *uuid.UUID       `gorm:"type:uuid" json:"preferred_supplier_id"`
	PreferredSupplier   *Supplier        `gorm:"foreignKey:PreferredSupplierID" json:"preferred_supplier,omitempty"`
	RequiredDate        *time.Time       `json:"required_date"`
	Status              RequestStatus    `gorm:"type:varchar(30);not null;index" json:"status"`
	RequestedBy         uuid.UUID        `gorm:"type:uuid;not null;index" json:"requested_by"`
	Requester           *User            `gorm:"foreignKey:RequestedBy" json:"requester,omitempty"`
	ApprovedBy          *uuid.UUID       `gorm:"type:uuid" json:"approved_by"`
	Approver            *User            `gorm:"foreignKey:ApprovedBy" json:"approver,omitempty"`
	ApprovedAt          *time.Time       `json:"approved_at"`
	RejectionReason     string           `gorm:"type:text" json:"rejection_reason,omitempty"`
	Notes               string           `gorm:"type:text" json:"notes"`
	Version             int              `gorm:"not null" json:"version"`
	Items               []RequestItem    `gorm:"foreignKey:PurchaseRequestID;constraint:OnDelete:CASCADE" json:"items"`
	History             []RequestHistory `gorm:"foreignKey:PurchaseRequestID;constraint:OnDelete:CASCADE" json:"history,omitempty"`
	CreatedAt           time.Time        `json:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	assignID(&r.ID)
	initVersion(&r.Version)
	return nil
}

// ItemsTotal sums quantity × estimated unit price over all item lines.
func (r *PurchaseRequest) ItemsTotal() decimal.Decimal {
	total := decimal.Zero
	for _, it := range r.Items {
		total = total.Add(it.LineTotal())
	}
	return total
}

// RequestItem is one requested line. Position keeps the caller's ordering.
type RequestItem struct {
	ID                 uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID  uuid.UUID       `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	Description        string          `gorm:"type:text;not null" json:"description"`
	Quantity           decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"quantity"`
	Unit               string          `gorm:"type:varchar(30)" json:"unit"`
	EstimatedUnitPrice decimal.Decimal `gorm:"type:decimal(18,4);not null" json:"estimated_unit_price"`
	Specifications     string          `gorm:"type:text" json:"specifications"`
	Position           int             `gorm:"not null;default:0" json:"position"`
	CreatedAt          time.Time       `json:"created_at"`
}

func (i *RequestItem) BeforeCreate(tx *gorm.DB) error {
	assignID(&i.ID)
	return nil
}

func (i RequestItem) LineTotal() decimal.Decimal {
	return i.Quantity.Mul(i.EstimatedUnitPrice)
}

// RequestHistory is an append-only record of one action on a purchase request.
type RequestHistory struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	PurchaseRequestID uuid.UUID     `gorm:"type:uuid;not null;index" json:"purchase_request_id"`
	Seq               int           `gorm:"not null;default:0" json:"seq"` // position within the request's history
	Action            string        `gorm:"type:varchar(30);not null" json:"action"`
	FromStatus        RequestStatus `gorm:"type:varchar(30)" json:"from_status"`
	ToStatus          RequestStatus `gorm:"type:varchar(30)" json:"to_status"`
	UserID            *uuid.UUID    `gorm:"type:uuid;index" json:"user_id"`
	User              *User         `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Comments          string        `gorm:"type:text" json:"comments"`
	CreatedAt         time.Time     `gorm:"index" json:"created_at"`
}

func (RequestHistory) TableName() string {
	return "purchase_request_history"
}

func (h *RequestHistory) BeforeCreate(tx *gorm.DB) error {
	assignID(&h.ID)
	return nil
}
