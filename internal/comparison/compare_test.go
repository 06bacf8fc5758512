package comparison

import (
	"testing"

	"procurement/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func quote(total int64, name string) model.Quotation {
	return model.Quotation{
		ID:          uuid.New(),
		SupplierID:  uuid.New(),
		Supplier:    &model.Supplier{BusinessName: name},
		TotalAmount: decimal.NewFromInt(total),
		Status:      model.QuotationReceived,
	}
}

func TestCompareTwoQuotations(t *testing.T) {
	res := Compare([]model.Quotation{quote(650, "B"), quote(500, "A")})

	if res.Summary.Count != 2 {
		t.Fatalf("expected count 2, got %d", res.Summary.Count)
	}
	if !res.Summary.MinAmount.Equal(decimal.NewFromInt(500)) || !res.Summary.MaxAmount.Equal(decimal.NewFromInt(650)) {
		t.Fatalf("unexpected min/max %s/%s", res.Summary.MinAmount, res.Summary.MaxAmount)
	}
	if !res.Summary.Spread.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected spread 150, got %s", res.Summary.Spread)
	}
	if !res.Summary.AvgAmount.Equal(decimal.NewFromInt(575)) {
		t.Fatalf("expected avg 575, got %s", res.Summary.AvgAmount)
	}

	first, second := res.Quotations[0], res.Quotations[1]
	if first.SupplierName != "A" || !first.IsLowest || !first.PercentageAboveMin.IsZero() {
		t.Fatalf("cheapest quotation should be first and lowest: %+v", first)
	}
	if second.IsLowest {
		t.Fatalf("650 quotation must not be lowest")
	}
	if !second.PercentageAboveMin.Equal(decimal.NewFromInt(30)) {
		t.Fatalf("expected 30%% above min, got %s", second.PercentageAboveMin)
	}
	if !second.DifferenceFromMin.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected difference 150, got %s", second.DifferenceFromMin)
	}
}

func TestCompareEmpty(t *testing.T) {
	res := Compare(nil)
	if res.Summary.Count != 0 || len(res.Quotations) != 0 {
		t.Fatalf("empty input must produce an empty result: %+v", res)
	}
	if !res.Summary.Spread.IsZero() || !res.Summary.MinAmount.IsZero() {
		t.Fatalf("empty summary must be zero: %+v", res.Summary)
	}
}

func TestCompareTiesAndZeroMinimum(t *testing.T) {
	res := Compare([]model.Quotation{quote(0, "free"), quote(0, "also free"), quote(10, "paid")})
	lowest := 0
	for _, e := range res.Quotations {
		if e.IsLowest {
			lowest++
		}
		if !e.PercentageAboveMin.IsZero() {
			t.Fatalf("percentage must be 0 when the minimum is 0, got %s", e.PercentageAboveMin)
		}
	}
	if lowest != 2 {
		t.Fatalf("both zero quotations tie for lowest, got %d", lowest)
	}
}

func TestCompareRoundsPercentage(t *testing.T) {
	res := Compare([]model.Quotation{quote(300, "A"), quote(400, "B")})
	if got := res.Quotations[1].PercentageAboveMin; !got.Equal(decimal.RequireFromString("33.3")) {
		t.Fatalf("expected 33.3, got %s", got)
	}
}
