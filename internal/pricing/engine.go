package pricing

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

// Mode selects how the weight of a calculation is known.
type Mode string

const (
	// ModeSimple uses a per-unit weight.
	ModeSimple Mode = "simple"
	// ModePrecise derives weight and box count from the packing.
	ModePrecise Mode = "precise"
)

// Names of parameters a caller may be asked to supply.
const (
	FieldRouteRates  = "route_rates"
	FieldDutyPercent = "duty_percent"
	FieldVATPercent  = "vat_percent"
)

// Packing describes how goods are boxed by the factory.
type Packing struct {
	UnitsPerBox int64   `json:"units_per_box"`
	BoxWeightKg float64 `json:"box_weight_kg"`
	BoxLengthCm float64 `json:"box_length_cm,omitempty"`
	BoxWidthCm  float64 `json:"box_width_cm,omitempty"`
	BoxHeightCm float64 `json:"box_height_cm,omitempty"`
}

// CustomParams override the category tariffs for one calculation.
type CustomParams struct {
	Rates       map[Route]float64 `json:"rates,omitempty"`
	DutyPercent *float64          `json:"duty_percent,omitempty"`
	VATPercent  *float64          `json:"vat_percent,omitempty"`
}

// Merge returns p with every value set in other taking precedence.
func (p CustomParams) Merge(other CustomParams) CustomParams {
	out := CustomParams{DutyPercent: p.DutyPercent, VATPercent: p.VATPercent}
	if len(p.Rates)+len(other.Rates) > 0 {
		out.Rates = make(map[Route]float64, len(p.Rates)+len(other.Rates))
		for r, v := range p.Rates {
			out.Rates[r] = v
		}
		for r, v := range other.Rates {
			out.Rates[r] = v
		}
	}
	if other.DutyPercent != nil {
		out.DutyPercent = other.DutyPercent
	}
	if other.VATPercent != nil {
		out.VATPercent = other.VATPercent
	}
	return out
}

// IsZero reports whether no override is set.
func (p CustomParams) IsZero() bool {
	return len(p.Rates) == 0 && p.DutyPercent == nil && p.VATPercent == nil
}

// Request is one pricing run.
type Request struct {
	ProductName string
	Quantity    int64
	Mode        Mode
	WeightKg    *float64
	Packing     *Packing
	PriceYuan   float64
	Markup      float64
	Category    string
	SourceURL   string
	Params      CustomParams
}

// Totals summarizes the route set.
type Totals struct {
	CheapestRoute        Route           `json:"cheapest_route"`
	CheapestTotalCostRub decimal.Decimal `json:"cheapest_total_cost_rub"`
	BestProfitRoute      Route           `json:"best_profit_route"`
	BestTotalProfitRub   decimal.Decimal `json:"best_total_profit_rub"`
}

// Result is the outcome of Calculate. When NeedsInput is not empty the
// calculation is pending and Routes is empty.
type Result struct {
	Category      string          `json:"category"`
	Mode          Mode            `json:"mode"`
	Quantity      int64           `json:"quantity"`
	UnitWeightKg  decimal.Decimal `json:"unit_weight_kg"`
	TotalWeightKg decimal.Decimal `json:"total_weight_kg"`
	BoxCount      int64           `json:"box_count,omitempty"`
	VolumeM3      decimal.Decimal `json:"volume_m3"`
	SourceURL     string          `json:"source_url,omitempty"`
	NeedsInput    []string        `json:"needs_input,omitempty"`
	Routes        []RouteResult   `json:"routes"`
	Totals        *Totals         `json:"totals,omitempty"`
}

// Complete reports whether every route was priced.
func (r Result) Complete() bool { return len(r.NeedsInput) == 0 }

// Engine prices requests against a fixed tariff table.
type Engine struct {
	tariffs Tariffs
}

func NewEngine(tariffs Tariffs) *Engine {
	return &Engine{tariffs: tariffs}
}

func (e *Engine) Tariffs() Tariffs { return e.tariffs }

// Complete re-runs req with params merged over the ones it already carries.
// It is the second step after Calculate returned a pending Result.
func (e *Engine) Complete(req Request, params CustomParams) (Result, error) {
	req.Params = req.Params.Merge(params)
	return e.Calculate(req)
}

// Calculate validates req, resolves its category and prices it on every
// route that has a rate.
func (e *Engine) Calculate(req Request) (Result, error) {
	if err := ValidateInputs(req); err != nil {
		return Result{}, err
	}

	mode := req.Mode
	if mode == "" {
		mode = ModeSimple
		if req.Packing != nil {
			mode = ModePrecise
		}
	}

	category, err := e.resolveCategory(req)
	if err != nil {
		return Result{}, err
	}

	if err := validateParams(req.Params); err != nil {
		return Result{}, err
	}

	res := Result{
		Category:  category.Name,
		Mode:      mode,
		Quantity:  req.Quantity,
		SourceURL: req.SourceURL,
		Routes:    []RouteResult{},
	}
	if err := weigh(&res, req, category); err != nil {
		return Result{}, err
	}

	routes, duty, vat, missing := e.collectParams(category, req.Params)
	if len(missing) > 0 {
		res.NeedsInput = missing
		return res, nil
	}

	shipment := Shipment{
		Quantity:     req.Quantity,
		UnitWeightKg: res.UnitWeightKg,
		PriceYuan:    decimal.NewFromFloat(req.PriceYuan),
		Markup:       decimal.NewFromFloat(req.Markup),
	}
	for _, rp := range routes {
		rp.DutyPercent, rp.VATPercent = duty, vat
		rr, err := ResolveRoute(shipment, rp, e.tariffs.FX, e.tariffs.Overheads)
		if err != nil {
			return Result{}, err
		}
		res.Routes = append(res.Routes, rr)
	}
	res.Totals = summarize(res.Routes)
	return res, nil
}

// ValidateInputs checks quantity, price, markup and the weight or packing
// of the selected mode. Absent weight or packing is a MissingInput error,
// every present value that is not usable is InvalidInput.
func ValidateInputs(req Request) error {
	if req.Quantity <= 0 {
		return apperr.Invalid("quantity", "quantity must be positive, got %d", req.Quantity)
	}
	if req.PriceYuan <= 0 {
		return apperr.Invalid("price_yuan", "price must be positive, got %v", req.PriceYuan)
	}
	if req.Markup <= 1 {
		return apperr.Invalid("markup", "markup must be greater than 1, got %v", req.Markup)
	}

	switch {
	case req.Mode == ModePrecise || (req.Mode == "" && req.Packing != nil):
		if req.Packing == nil {
			return apperr.Missing("packing", "packing data is required in precise mode")
		}
		if req.Packing.UnitsPerBox <= 0 {
			return apperr.Invalid("units_per_box", "units per box must be positive, got %d", req.Packing.UnitsPerBox)
		}
		if req.Packing.BoxWeightKg <= 0 {
			return apperr.Invalid("box_weight_kg", "box weight must be positive, got %v", req.Packing.BoxWeightKg)
		}
		if req.Packing.BoxLengthCm < 0 || req.Packing.BoxWidthCm < 0 || req.Packing.BoxHeightCm < 0 {
			return apperr.Invalid("box_dimensions", "box dimensions must not be negative")
		}
	case req.Mode == ModeSimple || req.Mode == "":
		if req.WeightKg == nil {
			return apperr.Missing("weight_kg", "weight is required in simple mode")
		}
		if *req.WeightKg <= 0 {
			return apperr.Invalid("weight_kg", "weight must be positive, got %v", *req.WeightKg)
		}
	default:
		return apperr.Invalid("mode", "unknown calculation mode %q", req.Mode)
	}
	return nil
}

func validateParams(p CustomParams) error {
	for route, rate := range p.Rates {
		if !route.Valid() {
			return apperr.Invalid("rates", "unknown route %q", route)
		}
		if rate <= 0 {
			return apperr.Invalid("rates."+string(route), "rate for %s must be positive, got %v", route, rate)
		}
	}
	if p.DutyPercent != nil && *p.DutyPercent < 0 {
		return apperr.Invalid(FieldDutyPercent, "duty percent must not be negative")
	}
	if p.VATPercent != nil && *p.VATPercent < 0 {
		return apperr.Invalid(FieldVATPercent, "vat percent must not be negative")
	}
	return nil
}

func (e *Engine) resolveCategory(req Request) (Category, error) {
	if req.Category != "" {
		return e.tariffs.Lookup(req.Category)
	}
	return e.tariffs.Infer(req.ProductName)
}

// weigh fills the weight, box count and volume of res.
func weigh(res *Result, req Request, c Category) error {
	qty := decimal.NewFromInt(req.Quantity)

	if res.Mode == ModePrecise {
		p := req.Packing
		boxes := req.Quantity / p.UnitsPerBox
		if req.Quantity%p.UnitsPerBox != 0 {
			boxes++
		}
		res.BoxCount = boxes
		res.TotalWeightKg = decimal.NewFromFloat(p.BoxWeightKg).Mul(decimal.NewFromInt(boxes))
		res.UnitWeightKg = res.TotalWeightKg.Div(qty).Round(6)
		if p.BoxLengthCm > 0 && p.BoxWidthCm > 0 && p.BoxHeightCm > 0 {
			boxM3 := decimal.NewFromFloat(p.BoxLengthCm).
				Mul(decimal.NewFromFloat(p.BoxWidthCm)).
				Mul(decimal.NewFromFloat(p.BoxHeightCm)).
				Div(decimal.NewFromInt(1_000_000))
			res.VolumeM3 = boxM3.Mul(decimal.NewFromInt(boxes)).Round(4)
			return nil
		}
	} else {
		res.UnitWeightKg = decimal.NewFromFloat(*req.WeightKg)
		res.TotalWeightKg = res.UnitWeightKg.Mul(qty)
	}

	if c.DensityKgM3 > 0 {
		res.VolumeM3 = res.TotalWeightKg.Div(decimal.NewFromFloat(c.DensityKgM3)).Round(4)
	}
	if !res.UnitWeightKg.IsPositive() {
		return apperr.Data("unit weight %s is not positive", res.UnitWeightKg)
	}
	return nil
}

// collectParams merges category tariffs with overrides and names every
// mandatory parameter that is still unknown.
func (e *Engine) collectParams(c Category, p CustomParams) ([]RouteParams, decimal.Decimal, decimal.Decimal, []string) {
	var (
		routes  []RouteParams
		missing []string
		duty    decimal.Decimal
		vat     decimal.Decimal
	)

	for _, route := range AllRoutes {
		if rate, ok := p.Rates[route]; ok {
			routes = append(routes, RouteParams{Route: route, RatePerKgUsd: decimal.NewFromFloat(rate), CustomRate: true})
			continue
		}
		if rate, ok := c.Rates[route]; ok {
			routes = append(routes, RouteParams{Route: route, RatePerKgUsd: decimal.NewFromFloat(rate)})
		}
	}
	if len(routes) == 0 {
		missing = append(missing, FieldRouteRates)
	}

	switch {
	case p.DutyPercent != nil:
		duty = decimal.NewFromFloat(*p.DutyPercent)
	case c.DutyPercent != nil:
		duty = decimal.NewFromFloat(*c.DutyPercent)
	default:
		missing = append(missing, FieldDutyPercent)
	}

	switch {
	case p.VATPercent != nil:
		vat = decimal.NewFromFloat(*p.VATPercent)
	case c.VATPercent != nil:
		vat = decimal.NewFromFloat(*c.VATPercent)
	default:
		missing = append(missing, FieldVATPercent)
	}

	sort.Strings(missing)
	return routes, duty, vat, missing
}

func summarize(routes []RouteResult) *Totals {
	if len(routes) == 0 {
		return nil
	}
	t := &Totals{
		CheapestRoute:        routes[0].Route,
		CheapestTotalCostRub: routes[0].TotalCost.Rub,
		BestProfitRoute:      routes[0].Route,
		BestTotalProfitRub:   routes[0].TotalProfit.Rub,
	}
	for _, r := range routes[1:] {
		if r.TotalCost.Rub.LessThan(t.CheapestTotalCostRub) {
			t.CheapestRoute, t.CheapestTotalCostRub = r.Route, r.TotalCost.Rub
		}
		if r.TotalProfit.Rub.GreaterThan(t.BestTotalProfitRub) {
			t.BestProfitRoute, t.BestTotalProfitRub = r.Route, r.TotalProfit.Rub
		}
	}
	return t
}

// String renders a one-line summary, used in logs.
func (r Result) String() string {
	if !r.Complete() {
		return fmt.Sprintf("%s: needs %v", r.Category, r.NeedsInput)
	}
	return fmt.Sprintf("%s: %d routes, %d units", r.Category, len(r.Routes), r.Quantity)
}
