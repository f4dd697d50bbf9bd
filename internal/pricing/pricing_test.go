package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
)

func ptr(v float64) *float64 { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func equalDecimal(t *testing.T, name string, got, want decimal.Decimal) {
	t.Helper()
	if !got.Equal(want) {
		t.Fatalf("%s = %s, want %s", name, got, want)
	}
}

var (
	testFX        = FX{YuanRub: 12.5, UsdRub: 90}
	testOverheads = Overheads{LocalDeliveryPerKgRub: 30, MiscPerUnitRub: 2}
)

func bottleShipment(qty int64) Shipment {
	return Shipment{
		Quantity:     qty,
		UnitWeightKg: dec("0.3"),
		PriceYuan:    dec("12"),
		Markup:       dec("1.7"),
	}
}

func railParams() RouteParams {
	return RouteParams{Route: RouteRail, RatePerKgUsd: dec("3"), DutyPercent: dec("10"), VATPercent: dec("20")}
}

func TestResolveRoute_LineItems(t *testing.T) {
	result, err := ResolveRoute(bottleShipment(500), railParams(), testFX, testOverheads)
	if err != nil {
		t.Fatalf("ResolveRoute: %v", err)
	}

	equalDecimal(t, "price", result.Breakdown.PriceRub, dec("150"))
	equalDecimal(t, "logistics", result.Breakdown.Logistics, dec("81"))
	equalDecimal(t, "duty", result.Breakdown.Duty, dec("23.10"))
	equalDecimal(t, "vat", result.Breakdown.VAT, dec("50.82"))
	equalDecimal(t, "localDelivery", result.Breakdown.LocalDelivery, dec("9"))
	equalDecimal(t, "pickup", result.Breakdown.Pickup, dec("0"))
	equalDecimal(t, "misc", result.Breakdown.Misc, dec("2"))

	equalDecimal(t, "cost", result.CostPerUnit.Rub, dec("315.92"))
	equalDecimal(t, "sale", result.SalePerUnit.Rub, dec("537.06"))
	equalDecimal(t, "profit", result.ProfitPerUnit.Rub, dec("221.14"))
	equalDecimal(t, "totalCost", result.TotalCost.Rub, dec("157960"))
	equalDecimal(t, "totalSale", result.TotalSale.Rub, dec("268530"))
	equalDecimal(t, "totalProfit", result.TotalProfit.Rub, dec("110570"))
}

func TestResolveRoute_SourceCurrency(t *testing.T) {
	result, err := ResolveRoute(bottleShipment(500), railParams(), testFX, testOverheads)
	if err != nil {
		t.Fatalf("ResolveRoute: %v", err)
	}

	equalDecimal(t, "cost yuan", result.CostPerUnit.Yuan, dec("25.27"))
	equalDecimal(t, "sale yuan", result.SalePerUnit.Yuan, dec("42.96"))
	equalDecimal(t, "profit yuan", result.ProfitPerUnit.Yuan, dec("17.69"))
	equalDecimal(t, "total cost yuan", result.TotalCost.Yuan, dec("12635"))
}

func TestResolveRoute_TinyMarkupKeepsMinorUnitProfit(t *testing.T) {
	s := bottleShipment(500)
	s.Markup = dec("1.00001")

	result, err := ResolveRoute(s, railParams(), testFX, testOverheads)
	if err != nil {
		t.Fatalf("ResolveRoute: %v", err)
	}

	equalDecimal(t, "cost", result.CostPerUnit.Rub, dec("315.92"))
	equalDecimal(t, "sale", result.SalePerUnit.Rub, dec("315.93"))
	equalDecimal(t, "profit", result.ProfitPerUnit.Rub, dec("0.01"))
	equalDecimal(t, "cost yuan", result.CostPerUnit.Yuan, dec("25.27"))
	equalDecimal(t, "sale yuan", result.SalePerUnit.Yuan, dec("25.28"))
	equalDecimal(t, "profit yuan", result.ProfitPerUnit.Yuan, dec("0.01"))
	equalDecimal(t, "totalProfit", result.TotalProfit.Rub, dec("5"))
}

func TestResolveRoute_PickupPerKg(t *testing.T) {
	oh := testOverheads
	oh.PickupPerKgRub = 10

	result, err := ResolveRoute(bottleShipment(1), railParams(), testFX, oh)
	if err != nil {
		t.Fatalf("ResolveRoute: %v", err)
	}

	equalDecimal(t, "pickup", result.Breakdown.Pickup, dec("3"))
	equalDecimal(t, "cost", result.CostPerUnit.Rub, dec("318.92"))
}

func TestResolveRoute_ZeroDutyAndVAT(t *testing.T) {
	params := railParams()
	params.DutyPercent = decimal.Zero
	params.VATPercent = decimal.Zero

	result, err := ResolveRoute(bottleShipment(1), params, testFX, Overheads{})
	if err != nil {
		t.Fatalf("ResolveRoute: %v", err)
	}

	equalDecimal(t, "duty", result.Breakdown.Duty, decimal.Zero)
	equalDecimal(t, "vat", result.Breakdown.VAT, decimal.Zero)
	equalDecimal(t, "cost", result.CostPerUnit.Rub, dec("231"))
}

func TestResolveRoute_QuantityScalesTotalsOnly(t *testing.T) {
	r500, err := ResolveRoute(bottleShipment(500), railParams(), testFX, testOverheads)
	if err != nil {
		t.Fatalf("ResolveRoute 500: %v", err)
	}
	r1000, err := ResolveRoute(bottleShipment(1000), railParams(), testFX, testOverheads)
	if err != nil {
		t.Fatalf("ResolveRoute 1000: %v", err)
	}

	equalDecimal(t, "cost per unit", r1000.CostPerUnit.Rub, r500.CostPerUnit.Rub)
	equalDecimal(t, "total cost", r1000.TotalCost.Rub, r500.TotalCost.Rub.Mul(decimal.NewFromInt(2)))
}

func TestResolveRoute_NonPositiveCostIsDataError(t *testing.T) {
	s := bottleShipment(1)
	s.PriceYuan = dec("-100")

	if _, err := ResolveRoute(s, railParams(), testFX, testOverheads); err == nil {
		t.Fatalf("expected error for negative cost")
	}
}
