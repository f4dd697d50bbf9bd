package pricing

import (
	"testing"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

func TestParseRoute_Labels(t *testing.T) {
	cases := map[string]Route{
		"Highway ЖД":            RouteRail,
		"highway_rail":          RouteRail,
		"HIGHWAY Ж/Д":           RouteRail,
		"ЖД":                    RouteRail,
		"Highway Авиа":          RouteAir,
		"highway_air":           RouteAir,
		"  авиа ":               RouteAir,
		"Highway под контракт":  RouteContract,
		"highway-contract":      RouteContract,
		"Контракт":              RouteContract,
		"sea_container":         RouteSeaContainer,
		"Морем":                 RouteSeaContainer,
		"Морской контейнер":     RouteSeaContainer,
		"Prologix":              RouteProlog,
		"PROLOGIX":              RouteProlog,
	}
	for label, want := range cases {
		got, err := ParseRoute(label)
		if err != nil {
			t.Fatalf("ParseRoute(%q): %v", label, err)
		}
		if got != want {
			t.Fatalf("ParseRoute(%q) = %s, want %s", label, got, want)
		}
	}
}

func TestParseRoute_CanonicalNamesRoundTrip(t *testing.T) {
	for _, route := range AllRoutes {
		got, err := ParseRoute(string(route))
		if err != nil {
			t.Fatalf("ParseRoute(%q): %v", route, err)
		}
		if got != route {
			t.Fatalf("ParseRoute(%q) = %s", route, got)
		}
	}
}

func TestParseRoute_AliasTableTargetsKnownRoutes(t *testing.T) {
	for alias, route := range routeAliases {
		if !route.Valid() {
			t.Fatalf("alias %q maps to unknown route %q", alias, route)
		}
		if foldLabel(alias) != alias {
			t.Fatalf("alias %q is not in folded form (%q)", alias, foldLabel(alias))
		}
	}
}

func TestParseRoute_UnknownLabelIsRejected(t *testing.T) {
	for _, label := range []string{"Highway Truck", "", "   ", "railroad express"} {
		_, err := ParseRoute(label)
		if !apperr.Is(err, apperr.KindInvalidInput) {
			t.Fatalf("ParseRoute(%q) error = %v, want invalid_input", label, err)
		}
	}
}
