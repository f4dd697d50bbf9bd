package pricing

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

// Category holds the logistics and customs parameters of a product group.
// A nil DutyPercent or VATPercent, or an empty Rates map, means the value
// has to be supplied per calculation.
type Category struct {
	Name        string            `json:"name" mapstructure:"name"`
	Keywords    []string          `json:"keywords" mapstructure:"keywords"`
	DensityKgM3 float64           `json:"density_kg_m3" mapstructure:"density_kg_m3"`
	DutyPercent *float64          `json:"duty_percent" mapstructure:"duty_percent"`
	VATPercent  *float64          `json:"vat_percent" mapstructure:"vat_percent"`
	Rates       map[Route]float64 `json:"rates_usd_per_kg" mapstructure:"rates"`
}

// FX holds static conversion rates into the target currency.
type FX struct {
	YuanRub float64 `json:"yuan_rub" mapstructure:"yuan_rub"`
	UsdRub  float64 `json:"usd_rub" mapstructure:"usd_rub"`
}

// Overheads are per-unit costs added on every route.
type Overheads struct {
	LocalDeliveryPerKgRub float64 `json:"local_delivery_per_kg_rub" mapstructure:"local_delivery_per_kg_rub"`
	PickupPerKgRub        float64 `json:"pickup_per_kg_rub" mapstructure:"pickup_per_kg_rub"`
	MiscPerUnitRub        float64 `json:"misc_per_unit_rub" mapstructure:"misc_per_unit_rub"`
}

// Tariffs is the read-only rate table shared by all calculations.
type Tariffs struct {
	categories map[string]Category
	FX         FX
	Overheads  Overheads
}

// NewTariffs validates the inputs and indexes categories by folded name.
func NewTariffs(categories []Category, fx FX, overheads Overheads) (Tariffs, error) {
	if fx.YuanRub <= 0 || fx.UsdRub <= 0 {
		return Tariffs{}, fmt.Errorf("fx rates must be positive (yuan_rub=%v, usd_rub=%v)", fx.YuanRub, fx.UsdRub)
	}
	if overheads.LocalDeliveryPerKgRub < 0 || overheads.PickupPerKgRub < 0 || overheads.MiscPerUnitRub < 0 {
		return Tariffs{}, fmt.Errorf("overheads must not be negative")
	}

	t := Tariffs{categories: make(map[string]Category, len(categories)), FX: fx, Overheads: overheads}
	for _, c := range categories {
		key := foldLabel(c.Name)
		if key == "" {
			return Tariffs{}, fmt.Errorf("category name is required")
		}
		if _, dup := t.categories[key]; dup {
			return Tariffs{}, fmt.Errorf("duplicate category %q", c.Name)
		}
		for route, rate := range c.Rates {
			if !route.Valid() {
				return Tariffs{}, fmt.Errorf("category %q: unknown route %q", c.Name, route)
			}
			if rate <= 0 {
				return Tariffs{}, fmt.Errorf("category %q: rate for %s must be positive", c.Name, route)
			}
		}
		if c.DensityKgM3 < 0 {
			return Tariffs{}, fmt.Errorf("category %q: density must not be negative", c.Name)
		}
		t.categories[key] = c
	}
	return t, nil
}

// Lookup finds a category by name, ignoring case.
func (t Tariffs) Lookup(name string) (Category, error) {
	if c, ok := t.categories[foldLabel(name)]; ok {
		return c, nil
	}
	return Category{}, apperr.UnknownCategory("unknown category %q", name)
}

// Infer picks the category whose keyword occurs in productName. The longest
// matching keyword wins; ties go to the alphabetically first category.
func (t Tariffs) Infer(productName string) (Category, error) {
	name := foldLabel(productName)
	if name == "" {
		return Category{}, apperr.UnknownCategory("product name is empty and no category was given")
	}

	var (
		best    Category
		bestLen int
	)
	for _, key := range t.sortedKeys() {
		c := t.categories[key]
		for _, kw := range c.Keywords {
			folded := foldLabel(kw)
			if folded == "" || !strings.Contains(name, folded) {
				continue
			}
			if n := len([]rune(folded)); n > bestLen {
				best, bestLen = c, n
			}
		}
	}
	if bestLen == 0 {
		return Category{}, apperr.UnknownCategory("cannot infer category for %q", productName)
	}
	return best, nil
}

// Categories returns all categories ordered by name.
func (t Tariffs) Categories() []Category {
	out := make([]Category, 0, len(t.categories))
	for _, key := range t.sortedKeys() {
		out = append(out, t.categories[key])
	}
	return out
}

func (t Tariffs) sortedKeys() []string {
	keys := make([]string, 0, len(t.categories))
	for k := range t.categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
