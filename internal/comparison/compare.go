// Package comparison ranks the quotations received for one purchase request.
package comparison

import (
	"sort"
	"time"

	"procurement/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Entry is one quotation's position relative to the cheapest offer.
type Entry struct {
	QuotationID        uuid.UUID             `json:"quotation_id"`
	QuotationNumber    string                `json:"quotation_number"`
	SupplierID         uuid.UUID             `json:"supplier_id"`
	SupplierName       string                `json:"supplier_name"`
	TotalAmount        decimal.Decimal       `json:"total_amount"`
	PaymentTerms       string                `json:"payment_terms"`
	DeliveryTime       string                `json:"delivery_time"`
	ValidUntil         *time.Time            `json:"valid_until"`
	Status             model.QuotationStatus `json:"status"`
	IsSelected         bool                  `json:"is_selected"`
	IsLowest           bool                  `json:"is_lowest"`
	DifferenceFromMin  decimal.Decimal       `json:"difference_from_min"`
	PercentageAboveMin decimal.Decimal       `json:"percentage_above_min"`
}

type Summary struct {
	Count     int             `json:"count"`
	MinAmount decimal.Decimal `json:"min_amount"`
	MaxAmount decimal.Decimal `json:"max_amount"`
	AvgAmount decimal.Decimal `json:"avg_amount"`
	Spread    decimal.Decimal `json:"spread"`
}

type Result struct {
	Summary    Summary `json:"summary"`
	Quotations []Entry `json:"quotations"`
}

// Compare computes summary statistics and per-quotation deltas, sorted by total ascending.
// It does not touch storage and is safe to call with an empty slice.
func Compare(quotes []model.Quotation) Result {
	res := Result{Quotations: []Entry{}}
	if len(quotes) == 0 {
		return res
	}

	lo, hi, sum := quotes[0].TotalAmount, quotes[0].TotalAmount, decimal.Zero
	for _, q := range quotes {
		if q.TotalAmount.LessThan(lo) {
			lo = q.TotalAmount
		}
		if q.TotalAmount.GreaterThan(hi) {
			hi = q.TotalAmount
		}
		sum = sum.Add(q.TotalAmount)
	}

	res.Summary = Summary{
		Count:     len(quotes),
		MinAmount: lo,
		MaxAmount: hi,
		AvgAmount: sum.DivRound(decimal.NewFromInt(int64(len(quotes))), 4),
		Spread:    hi.Sub(lo),
	}

	for _, q := range quotes {
		diff := q.TotalAmount.Sub(lo)
		pct := decimal.Zero
		if !lo.IsZero() {
			pct = diff.Div(lo).Mul(hundred).Round(1)
		}
		e := Entry{
			QuotationID:        q.ID,
			QuotationNumber:    q.QuotationNumber,
			SupplierID:         q.SupplierID,
			TotalAmount:        q.TotalAmount,
			PaymentTerms:       q.PaymentTerms,
			DeliveryTime:       q.DeliveryTime,
			ValidUntil:         q.ValidUntil,
			Status:             q.Status,
			IsSelected:         q.IsSelected,
			IsLowest:           q.TotalAmount.Equal(lo),
			DifferenceFromMin:  diff,
			PercentageAboveMin: pct,
		}
		if q.Supplier != nil {
			e.SupplierName = q.Supplier.DisplayName()
		}
		res.Quotations = append(res.Quotations, e)
	}

	sort.SliceStable(res.Quotations, func(i, j int) bool {
		return res.Quotations[i].TotalAmount.LessThan(res.Quotations[j].TotalAmount)
	})
	return res
}
