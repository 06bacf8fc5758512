package service

import (
	"context"
	"fmt"
	"time"

	"procurement/internal/model"
	"procurement/internal/repository"

	"github.com/google/uuid"
)

// --- DTOs ---

type SupplierResponse struct {
	ID           uuid.UUID `json:"id"`
	BusinessName string    `json:"business_name"`
	TradeName    string    `json:"trade_name"`
	TaxID        string    `json:"tax_id"`
	ContactName  string    `json:"contact_name"`
	Email        string    `json:"email"`
	Mobile       string    `json:"mobile"`
	PaymentTerms string    `json:"payment_terms"`
	// Channels lists the RFQ delivery methods the supplier can be reached on.
	Channels  []model.Channel `json:"channels"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// --- Interface ---

// SupplierService is a read-only view of supplier master data, used to pick RFQ recipients.
type SupplierService interface {
	GetSuppliers(ctx context.Context, search string, page, limit int) ([]SupplierResponse, int64, error)
	GetSupplier(ctx context.Context, id string) (*SupplierResponse, error)
}

// --- Implementation ---

type supplierService struct {
	suppliers repository.SupplierRepository
}

func NewSupplierService(suppliers repository.SupplierRepository) SupplierService {
	return &supplierService{suppliers: suppliers}
}

func (s *supplierService) GetSuppliers(ctx context.Context, search string, page, limit int) ([]SupplierResponse, int64, error) {
	page, limit = normalizePage(page, limit)
	suppliers, total, err := s.suppliers.List(ctx, search, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch suppliers: %w", err)
	}

	res := make([]SupplierResponse, 0, len(suppliers))
	for _, sup := range suppliers {
		res = append(res, toSupplierResponse(sup))
	}
	return res, total, nil
}

func (s *supplierService) GetSupplier(ctx context.Context, id string) (*SupplierResponse, error) {
	supplierID, err := parseID(id, "supplier id")
	if err != nil {
		return nil, err
	}
	sup, err := s.suppliers.FindByID(ctx, supplierID)
	if err != nil {
		return nil, err
	}
	resp := toSupplierResponse(*sup)
	return &resp, nil
}

func toSupplierResponse(s model.Supplier) SupplierResponse {
	channels := []model.Channel{}
	if s.Email != "" {
		channels = append(channels, model.ChannelEmail)
	}
	if s.MessagingNumber() != "" {
		channels = append(channels, model.ChannelWhatsApp)
	}
	return SupplierResponse{
		ID:           s.ID,
		BusinessName: s.BusinessName,
		TradeName:    s.TradeName,
		TaxID:        s.TaxID,
		ContactName:  s.ContactName,
		Email:        s.Email,
		Mobile:       s.MessagingNumber(),
		PaymentTerms: s.PaymentTerms,
		Channels:     channels,
		UpdatedAt:    s.UpdatedAt,
	}
}
