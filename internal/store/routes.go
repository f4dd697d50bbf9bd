package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/merchcalc/internal/pricing"
)

// LogisticsRoute is the stored result of pricing a calculation on one
// route. Rows are derived data: a recalculation overwrites them in place.
type LogisticsRoute struct {
	ID            int64         `db:"id" json:"id"`
	CalculationID int64         `db:"calculation_id" json:"calculation_id"`
	RouteName     pricing.Route `db:"route_name" json:"route_name"`

	RatePerKgUsd decimal.Decimal `db:"rate_per_kg_usd" json:"rate_per_kg_usd"`
	DutyPercent  decimal.Decimal `db:"duty_percent" json:"duty_percent"`
	VATPercent   decimal.Decimal `db:"vat_percent" json:"vat_percent"`
	CustomRate   bool            `db:"custom_rate" json:"custom_rate"`

	PriceRub         decimal.Decimal `db:"price_rub" json:"price_rub"`
	LogisticsRub     decimal.Decimal `db:"logistics_rub" json:"logistics_rub"`
	DutyRub          decimal.Decimal `db:"duty_rub" json:"duty_rub"`
	VATRub           decimal.Decimal `db:"vat_rub" json:"vat_rub"`
	LocalDeliveryRub decimal.Decimal `db:"local_delivery_rub" json:"local_delivery_rub"`
	PickupRub        decimal.Decimal `db:"pickup_rub" json:"pickup_rub"`
	MiscRub          decimal.Decimal `db:"misc_rub" json:"misc_rub"`

	CostPerUnitRub    decimal.Decimal `db:"cost_per_unit_rub" json:"cost_per_unit_rub"`
	CostPerUnitYuan   decimal.Decimal `db:"cost_per_unit_yuan" json:"cost_per_unit_yuan"`
	SalePerUnitRub    decimal.Decimal `db:"sale_per_unit_rub" json:"sale_per_unit_rub"`
	SalePerUnitYuan   decimal.Decimal `db:"sale_per_unit_yuan" json:"sale_per_unit_yuan"`
	ProfitPerUnitRub  decimal.Decimal `db:"profit_per_unit_rub" json:"profit_per_unit_rub"`
	ProfitPerUnitYuan decimal.Decimal `db:"profit_per_unit_yuan" json:"profit_per_unit_yuan"`
	TotalCostRub      decimal.Decimal `db:"total_cost_rub" json:"total_cost_rub"`
	TotalCostYuan     decimal.Decimal `db:"total_cost_yuan" json:"total_cost_yuan"`
	TotalSaleRub      decimal.Decimal `db:"total_sale_rub" json:"total_sale_rub"`
	TotalSaleYuan     decimal.Decimal `db:"total_sale_yuan" json:"total_sale_yuan"`
	TotalProfitRub    decimal.Decimal `db:"total_profit_rub" json:"total_profit_rub"`
	TotalProfitYuan   decimal.Decimal `db:"total_profit_yuan" json:"total_profit_yuan"`

	RunID        string `db:"run_id" json:"run_id"`
	CalculatedAt string `db:"calculated_at" json:"calculated_at"`
}

const routeColumns = `id, calculation_id, route_name, rate_per_kg_usd, duty_percent, vat_percent,
	custom_rate, price_rub, logistics_rub, duty_rub, vat_rub, local_delivery_rub, pickup_rub,
	misc_rub, cost_per_unit_rub, cost_per_unit_yuan, sale_per_unit_rub, sale_per_unit_yuan,
	profit_per_unit_rub, profit_per_unit_yuan, total_cost_rub, total_cost_yuan,
	total_sale_rub, total_sale_yuan, total_profit_rub, total_profit_yuan, run_id, calculated_at`

// RouteFromResult maps one priced route to its row.
func RouteFromResult(calculationID int64, runID string, r pricing.RouteResult) LogisticsRoute {
	return LogisticsRoute{
		CalculationID:     calculationID,
		RouteName:         r.Route,
		RatePerKgUsd:      r.RatePerKgUsd,
		DutyPercent:       r.DutyPercent,
		VATPercent:        r.VATPercent,
		CustomRate:        r.CustomRate,
		PriceRub:          r.Breakdown.PriceRub,
		LogisticsRub:      r.Breakdown.Logistics,
		DutyRub:           r.Breakdown.Duty,
		VATRub:            r.Breakdown.VAT,
		LocalDeliveryRub:  r.Breakdown.LocalDelivery,
		PickupRub:         r.Breakdown.Pickup,
		MiscRub:           r.Breakdown.Misc,
		CostPerUnitRub:    r.CostPerUnit.Rub,
		CostPerUnitYuan:   r.CostPerUnit.Yuan,
		SalePerUnitRub:    r.SalePerUnit.Rub,
		SalePerUnitYuan:   r.SalePerUnit.Yuan,
		ProfitPerUnitRub:  r.ProfitPerUnit.Rub,
		ProfitPerUnitYuan: r.ProfitPerUnit.Yuan,
		TotalCostRub:      r.TotalCost.Rub,
		TotalCostYuan:     r.TotalCost.Yuan,
		TotalSaleRub:      r.TotalSale.Rub,
		TotalSaleYuan:     r.TotalSale.Yuan,
		TotalProfitRub:    r.TotalProfit.Rub,
		TotalProfitYuan:   r.TotalProfit.Yuan,
		RunID:             runID,
	}
}

// ListRoutes returns the stored routes of a calculation in route order.
func (q queries) ListRoutes(ctx context.Context, calculationID int64) ([]LogisticsRoute, error) {
	routes := []LogisticsRoute{}
	if err := q.selectAll(ctx, &routes, `
		SELECT `+routeColumns+` FROM logistics_routes
		WHERE calculation_id = ?`, calculationID); err != nil {
		return nil, fmt.Errorf("list routes of calculation %d: %w", calculationID, err)
	}
	sortRoutes(routes)
	return routes, nil
}

// DeleteRoutes drops every route of a calculation.
func (q queries) DeleteRoutes(ctx context.Context, calculationID int64) error {
	if _, err := q.exec(ctx, `DELETE FROM logistics_routes WHERE calculation_id = ?`, calculationID); err != nil {
		return fmt.Errorf("delete routes of calculation %d: %w", calculationID, err)
	}
	return nil
}

// UpsertRoute writes r, replacing the row of the same calculation and route.
func (t *Tx) UpsertRoute(ctx context.Context, r LogisticsRoute) error {
	query, args, err := t.q.BindNamed(`
		INSERT INTO logistics_routes (
			calculation_id, route_name, rate_per_kg_usd, duty_percent, vat_percent, custom_rate,
			price_rub, logistics_rub, duty_rub, vat_rub, local_delivery_rub, pickup_rub, misc_rub,
			cost_per_unit_rub, cost_per_unit_yuan, sale_per_unit_rub, sale_per_unit_yuan,
			profit_per_unit_rub, profit_per_unit_yuan, total_cost_rub, total_cost_yuan,
			total_sale_rub, total_sale_yuan, total_profit_rub, total_profit_yuan, run_id
		) VALUES (
			:calculation_id, :route_name, :rate_per_kg_usd, :duty_percent, :vat_percent, :custom_rate,
			:price_rub, :logistics_rub, :duty_rub, :vat_rub, :local_delivery_rub, :pickup_rub, :misc_rub,
			:cost_per_unit_rub, :cost_per_unit_yuan, :sale_per_unit_rub, :sale_per_unit_yuan,
			:profit_per_unit_rub, :profit_per_unit_yuan, :total_cost_rub, :total_cost_yuan,
			:total_sale_rub, :total_sale_yuan, :total_profit_rub, :total_profit_yuan, :run_id
		)
		ON CONFLICT (calculation_id, route_name) DO UPDATE SET
			rate_per_kg_usd = excluded.rate_per_kg_usd,
			duty_percent = excluded.duty_percent,
			vat_percent = excluded.vat_percent,
			custom_rate = excluded.custom_rate,
			price_rub = excluded.price_rub,
			logistics_rub = excluded.logistics_rub,
			duty_rub = excluded.duty_rub,
			vat_rub = excluded.vat_rub,
			local_delivery_rub = excluded.local_delivery_rub,
			pickup_rub = excluded.pickup_rub,
			misc_rub = excluded.misc_rub,
			cost_per_unit_rub = excluded.cost_per_unit_rub,
			cost_per_unit_yuan = excluded.cost_per_unit_yuan,
			sale_per_unit_rub = excluded.sale_per_unit_rub,
			sale_per_unit_yuan = excluded.sale_per_unit_yuan,
			profit_per_unit_rub = excluded.profit_per_unit_rub,
			profit_per_unit_yuan = excluded.profit_per_unit_yuan,
			total_cost_rub = excluded.total_cost_rub,
			total_cost_yuan = excluded.total_cost_yuan,
			total_sale_rub = excluded.total_sale_rub,
			total_sale_yuan = excluded.total_sale_yuan,
			total_profit_rub = excluded.total_profit_rub,
			total_profit_yuan = excluded.total_profit_yuan,
			run_id = excluded.run_id,
			calculated_at = CURRENT_TIMESTAMP`, r)
	if err != nil {
		return fmt.Errorf("bind route upsert: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert route %s of calculation %d: %w", r.RouteName, r.CalculationID, err)
	}
	return nil
}

// DeleteStaleRoutes removes routes of a calculation that the run identified
// by runID did not write.
func (t *Tx) DeleteStaleRoutes(ctx context.Context, calculationID int64, runID string) (int64, error) {
	res, err := t.exec(ctx, `DELETE FROM logistics_routes WHERE calculation_id = ? AND run_id <> ?`, calculationID, runID)
	if err != nil {
		return 0, fmt.Errorf("delete stale routes of calculation %d: %w", calculationID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// sortRoutes orders rows like pricing.AllRoutes.
func sortRoutes(routes []LogisticsRoute) {
	rank := make(map[pricing.Route]int, len(pricing.AllRoutes))
	for i, r := range pricing.AllRoutes {
		rank[r] = i
	}
	sort.SliceStable(routes, func(i, j int) bool {
		return rank[routes[i].RouteName] < rank[routes[j].RouteName]
	})
}
