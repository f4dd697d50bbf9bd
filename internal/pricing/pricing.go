package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

const moneyPlaces = 2

var (
	hundred = decimal.NewFromInt(100)
	// minorUnit is the smallest money step, one kopeck or one fen.
	minorUnit = decimal.New(1, -moneyPlaces)
)

// above returns v, or floor plus one minor unit when rounding left v at or
// below floor.
func above(v, floor decimal.Decimal) decimal.Decimal {
	if v.GreaterThan(floor) {
		return v
	}
	return floor.Add(minorUnit)
}

// Shipment holds the per-unit inputs shared by every route of a calculation.
type Shipment struct {
	Quantity     int64
	UnitWeightKg decimal.Decimal
	PriceYuan    decimal.Decimal
	Markup       decimal.Decimal
}

// RouteParams are the tariff values applied on one route.
type RouteParams struct {
	Route        Route
	RatePerKgUsd decimal.Decimal
	DutyPercent  decimal.Decimal
	VATPercent   decimal.Decimal
	CustomRate   bool
}

// Breakdown contains the per-unit line items of the cost price, in RUB.
type Breakdown struct {
	PriceRub      decimal.Decimal `json:"price_rub"`
	Logistics     decimal.Decimal `json:"logistics_rub"`
	Duty          decimal.Decimal `json:"duty_rub"`
	VAT           decimal.Decimal `json:"vat_rub"`
	LocalDelivery decimal.Decimal `json:"local_delivery_rub"`
	Pickup        decimal.Decimal `json:"pickup_rub"`
	Misc          decimal.Decimal `json:"misc_rub"`
}

// Amount is a money value in the target and source currencies.
type Amount struct {
	Rub  decimal.Decimal `json:"rub"`
	Yuan decimal.Decimal `json:"yuan"`
}

// RouteResult groups the full pricing output of one route.
type RouteResult struct {
	Route        Route           `json:"route"`
	RatePerKgUsd decimal.Decimal `json:"rate_per_kg_usd"`
	DutyPercent  decimal.Decimal `json:"duty_percent"`
	VATPercent   decimal.Decimal `json:"vat_percent"`
	CustomRate   bool            `json:"custom_rate"`
	Breakdown    Breakdown       `json:"breakdown"`

	CostPerUnit   Amount `json:"cost_per_unit"`
	SalePerUnit   Amount `json:"sale_per_unit"`
	ProfitPerUnit Amount `json:"profit_per_unit"`
	TotalCost     Amount `json:"total_cost"`
	TotalSale     Amount `json:"total_sale"`
	TotalProfit   Amount `json:"total_profit"`
}

// ResolveRoute computes cost, sale and profit of a shipment sent through one
// route. Every line item is rounded to kopecks before it is summed, so
// profit and totals are exact on the rounded per-unit figures.
func ResolveRoute(s Shipment, p RouteParams, fx FX, oh Overheads) (RouteResult, error) {
	yuanRub := decimal.NewFromFloat(fx.YuanRub)
	usdRub := decimal.NewFromFloat(fx.UsdRub)
	qty := decimal.NewFromInt(s.Quantity)

	priceRub := s.PriceYuan.Mul(yuanRub).Round(moneyPlaces)
	logistics := s.UnitWeightKg.Mul(p.RatePerKgUsd).Mul(usdRub).Round(moneyPlaces)

	customsBase := priceRub.Add(logistics)
	duty := customsBase.Mul(p.DutyPercent).Div(hundred).Round(moneyPlaces)
	vat := customsBase.Add(duty).Mul(p.VATPercent).Div(hundred).Round(moneyPlaces)

	localDelivery := s.UnitWeightKg.Mul(decimal.NewFromFloat(oh.LocalDeliveryPerKgRub)).Round(moneyPlaces)
	pickup := s.UnitWeightKg.Mul(decimal.NewFromFloat(oh.PickupPerKgRub)).Round(moneyPlaces)
	misc := decimal.NewFromFloat(oh.MiscPerUnitRub).Round(moneyPlaces)

	cost := decimal.Sum(priceRub, logistics, duty, vat, localDelivery, pickup, misc)
	if !cost.IsPositive() {
		return RouteResult{}, apperr.Data("route %s: computed cost per unit %s is not positive", p.Route, cost)
	}

	// A markup above 1 always leaves at least one minor unit of profit,
	// in both currencies.
	sale := cost.Mul(s.Markup).Round(moneyPlaces)
	if s.Markup.GreaterThan(decimal.NewFromInt(1)) {
		sale = above(sale, cost)
	}
	profit := sale.Sub(cost)

	costYuan := cost.Div(yuanRub).Round(moneyPlaces)
	saleYuan := sale.Div(yuanRub).Round(moneyPlaces)
	if sale.GreaterThan(cost) {
		saleYuan = above(saleYuan, costYuan)
	}
	profitYuan := saleYuan.Sub(costYuan)

	return RouteResult{
		Route:        p.Route,
		RatePerKgUsd: p.RatePerKgUsd,
		DutyPercent:  p.DutyPercent,
		VATPercent:   p.VATPercent,
		CustomRate:   p.CustomRate,
		Breakdown: Breakdown{
			PriceRub:      priceRub,
			Logistics:     logistics,
			Duty:          duty,
			VAT:           vat,
			LocalDelivery: localDelivery,
			Pickup:        pickup,
			Misc:          misc,
		},
		CostPerUnit:   Amount{Rub: cost, Yuan: costYuan},
		SalePerUnit:   Amount{Rub: sale, Yuan: saleYuan},
		ProfitPerUnit: Amount{Rub: profit, Yuan: profitYuan},
		TotalCost:     Amount{Rub: cost.Mul(qty), Yuan: costYuan.Mul(qty)},
		TotalSale:     Amount{Rub: sale.Mul(qty), Yuan: saleYuan.Mul(qty)},
		TotalProfit:   Amount{Rub: profit.Mul(qty), Yuan: profitYuan.Mul(qty)},
	}, nil
}
