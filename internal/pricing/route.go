package pricing

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

// Route is a shipping route a calculation can be priced through.
type Route string

const (
	RouteRail         Route = "highway_rail"
	RouteAir          Route = "highway_air"
	RouteContract     Route = "highway_contract"
	RouteSeaContainer Route = "sea_container"
	RouteProlog       Route = "prologix"
)

// AllRoutes lists every route in evaluation order.
var AllRoutes = []Route{RouteRail, RouteAir, RouteContract, RouteSeaContainer, RouteProlog}

// routeAliases maps folded labels to routes. Keys are in the form produced
// by foldLabel.
var routeAliases = map[string]Route{
	"highway rail":         RouteRail,
	"highway жд":           RouteRail,
	"highway ж д":          RouteRail,
	"rail":                 RouteRail,
	"railway":              RouteRail,
	"жд":                   RouteRail,
	"ж д":                  RouteRail,
	"highway air":          RouteAir,
	"highway авиа":         RouteAir,
	"air":                  RouteAir,
	"avia":                 RouteAir,
	"авиа":                 RouteAir,
	"highway contract":     RouteContract,
	"highway контракт":     RouteContract,
	"highway под контракт": RouteContract,
	"contract":             RouteContract,
	"контракт":             RouteContract,
	"под контракт":         RouteContract,
	"sea container":        RouteSeaContainer,
	"sea":                  RouteSeaContainer,
	"море":                 RouteSeaContainer,
	"морем":                RouteSeaContainer,
	"море контейнер":       RouteSeaContainer,
	"морской контейнер":    RouteSeaContainer,
	"контейнер":            RouteSeaContainer,
	"prologix":             RouteProlog,
	"пролоджикс":           RouteProlog,
}

func (r Route) String() string { return string(r) }

// Valid reports whether r is one of AllRoutes.
func (r Route) Valid() bool {
	for _, known := range AllRoutes {
		if r == known {
			return true
		}
	}
	return false
}

// ParseRoute resolves a free-text route label such as "Highway ЖД" to a
// Route. Labels outside the alias table are rejected.
func ParseRoute(label string) (Route, error) {
	key := foldLabel(label)
	if key == "" {
		return "", apperr.Invalid("route", "route label is empty")
	}
	if route, ok := routeAliases[key]; ok {
		return route, nil
	}
	return "", apperr.Invalid("route", "unknown route label %q", label)
}

// foldLabel case-folds s and collapses every run of non-alphanumerics into
// a single space.
func foldLabel(s string) string {
	folded := cases.Fold().String(norm.NFC.String(s))
	fields := strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	return strings.Join(fields, " ")
}
