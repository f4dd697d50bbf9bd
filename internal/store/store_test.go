package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/db"
	"github.com/Simplici0/merchcalc/internal/migrations"
	"github.com/Simplici0/merchcalc/internal/pricing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	database, err := db.Open(db.DriverSQLite, filepath.Join(t.TempDir(), "store-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	require.NoError(t, migrations.Up(context.Background(), database.DB, db.DriverSQLite))
	return New(database)
}

func ptr[T any](v T) *T { return &v }

func TestPositionCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	created, err := s.CreatePosition(ctx, Position{
		Name:         "  Steel bottle ",
		Category:     "drinkware",
		DesignFiles:  types.JSONText(`["logo.ai","mockup.png"]`),
		CustomFields: types.JSONText(`{"color":"black"}`),
	})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Steel bottle", created.Name)
	assert.JSONEq(t, `["logo.ai","mockup.png"]`, created.DesignFiles.String())
	assert.NotEmpty(t, created.CreatedAt)

	bare, err := s.CreatePosition(ctx, Position{Name: "Cotton tote"})
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, bare.DesignFiles.String())
	assert.JSONEq(t, `{}`, bare.CustomFields.String())

	created.Description = "750 ml, laser engraving"
	updated, err := s.UpdatePosition(ctx, created)
	require.NoError(t, err)
	assert.Equal(t, "750 ml, laser engraving", updated.Description)

	all, err := s.ListPositions(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, bare.ID, all[0].ID, "newest first")

	found, err := s.ListPositions(ctx, "ENGRAVING")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, created.ID, found[0].ID)

	mug, err := s.CreatePosition(ctx, Position{Name: "Термокружка Стальная", Description: "С гравировкой"})
	require.NoError(t, err)
	for _, q := range []string{"термокружка", "СТАЛЬНАЯ", "гравировкой", "ТеРмО"} {
		found, err = s.ListPositions(ctx, q)
		require.NoError(t, err, q)
		require.Len(t, found, 1, "search %q folds Cyrillic case", q)
		assert.Equal(t, mug.ID, found[0].ID, q)
	}
	require.NoError(t, s.DeletePosition(ctx, mug.ID))

	require.NoError(t, s.DeletePosition(ctx, created.ID))
	_, err = s.GetPosition(ctx, created.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestPositionValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	cases := []struct {
		name  string
		pos   Position
		field string
	}{
		{"empty name", Position{Name: "  "}, "name"},
		{"design files not a list", Position{Name: "Cap", DesignFiles: types.JSONText(`{"a":1}`)}, "design_files"},
		{"custom fields not an object", Position{Name: "Cap", CustomFields: types.JSONText(`[1,2]`)}, "custom_fields"},
	}
	for _, tc := range cases {
		_, err := s.CreatePosition(ctx, tc.pos)
		var appErr *apperr.Error
		require.True(t, errors.As(err, &appErr), "%s: got %v", tc.name, err)
		assert.Equal(t, apperr.KindInvalidInput, appErr.Kind, tc.name)
		assert.Equal(t, tc.field, appErr.Field, tc.name)
	}

	_, err := s.UpdatePosition(ctx, Position{ID: 404, Name: "Ghost"})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
	assert.True(t, apperr.Is(s.DeletePosition(ctx, 404), apperr.KindNotFound))
}

func TestFactoryCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	f, err := s.CreateFactory(ctx, Factory{
		Name:            "Yiwu Promo Factory",
		Contact:         "wechat:yiwu-promo",
		SampleDays:      7,
		ProductionDays:  25,
		SamplePriceYuan: decimal.RequireFromString("150.50"),
	})
	require.NoError(t, err)
	assert.True(t, f.SamplePriceYuan.Equal(decimal.RequireFromString("150.5")), "got %s", f.SamplePriceYuan)

	exists, err := s.FactoryExists(ctx, "Yiwu Promo Factory")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.CreateFactory(ctx, Factory{Name: " Yiwu Promo Factory "})
	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr, "names are unique")
	assert.Equal(t, apperr.KindInvalidInput, appErr.Kind)
	assert.Equal(t, "name", appErr.Field)

	other, err := s.CreateFactory(ctx, Factory{Name: "Ningbo Drinkware Co"})
	require.NoError(t, err)
	other.Name = "Yiwu Promo Factory"
	_, err = s.UpdateFactory(ctx, other)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "rename onto a taken name, got %v", err)
	require.NoError(t, s.DeleteFactory(ctx, other.ID))

	f.ProductionDays = 30
	f, err = s.UpdateFactory(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, 30, f.ProductionDays)

	_, err = s.CreateFactory(ctx, Factory{Name: "Bad", SampleDays: -1})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput))

	list, err := s.ListFactories(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, s.DeleteFactory(ctx, f.ID))
	_, err = s.GetFactory(ctx, f.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCalculationCRUD(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	pos, err := s.CreatePosition(ctx, Position{Name: "Bottle"})
	require.NoError(t, err)
	factory, err := s.CreateFactory(ctx, Factory{Name: "Ningbo Drinkware Co", Contact: "sales@ningbo.example"})
	require.NoError(t, err)

	calc, err := s.CreateCalculation(ctx, Calculation{
		PositionID: pos.ID,
		FactoryID:  &factory.ID,
		Quantity:   500,
		PriceYuan:  12,
		Markup:     1.7,
		WeightKg:   ptr(0.3),
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.ModeSimple, calc.Mode)
	assert.Equal(t, "Ningbo Drinkware Co", calc.FactoryName, "name copied from factory")
	assert.Equal(t, "sales@ningbo.example", calc.FactoryContact)
	require.NotNil(t, calc.WeightKg)
	assert.InDelta(t, 0.3, *calc.WeightKg, 1e-9)
	assert.Nil(t, calc.UnitsPerBox)
	assert.JSONEq(t, `{}`, calc.CustomParams.String())

	precise, err := s.CreateCalculation(ctx, Calculation{
		PositionID:     pos.ID,
		FactoryName:    "Market stall",
		FactoryContact: "+86 000",
		Quantity:       100,
		PriceYuan:      10,
		Markup:         2,
		UnitsPerBox:    ptr(int64(40)),
		BoxWeightKg:    ptr(12.5),
	})
	require.NoError(t, err)
	assert.Equal(t, pricing.ModePrecise, precise.Mode, "packing implies precise mode")
	require.NotNil(t, precise.Packing())
	assert.Equal(t, int64(40), precise.Packing().UnitsPerBox)

	calc.Quantity = 1000
	require.NoError(t, calc.SetParams(pricing.CustomParams{DutyPercent: ptr(5.0)}))
	calc, err = s.UpdateCalculation(ctx, calc)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), calc.Quantity)
	params, err := calc.Params()
	require.NoError(t, err)
	require.NotNil(t, params.DutyPercent)
	assert.Equal(t, 5.0, *params.DutyPercent)

	list, err := s.ListCalculationsByPosition(ctx, pos.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, calc.ID, list[0].ID)

	_, err = s.ListCalculationsByPosition(ctx, 999)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	require.NoError(t, s.DeletePosition(ctx, pos.ID))
	_, err = s.GetCalculation(ctx, calc.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "calculations are removed with their position")
}

func TestCalculationReferences(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.CreateCalculation(ctx, Calculation{PositionID: 42, Quantity: 1, PriceYuan: 1, Markup: 2, WeightKg: ptr(1.0)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown position, got %v", err)

	pos, err := s.CreatePosition(ctx, Position{Name: "Mug"})
	require.NoError(t, err)

	_, err = s.CreateCalculation(ctx, Calculation{PositionID: pos.ID, FactoryID: ptr(int64(7)), Quantity: 1, PriceYuan: 1, Markup: 2, WeightKg: ptr(1.0)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound), "unknown factory, got %v", err)

	_, err = s.CreateCalculation(ctx, Calculation{PositionID: pos.ID, Mode: "rough", Quantity: 1})
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "unknown mode, got %v", err)
}

func TestCalculationInputsCheckedBeforeWrite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	pos, err := s.CreatePosition(ctx, Position{Name: "Bottle"})
	require.NoError(t, err)

	valid := func() Calculation {
		return Calculation{PositionID: pos.ID, Quantity: 500, PriceYuan: 12, Markup: 1.7, WeightKg: ptr(0.3)}
	}
	tests := []struct {
		name   string
		mutate func(*Calculation)
		field  string
	}{
		{"everything wrong", func(c *Calculation) { c.Quantity, c.WeightKg, c.PriceYuan, c.Markup = -5, ptr(0.0), -1, 0.5 }, "quantity"},
		{"zero quantity", func(c *Calculation) { c.Quantity = 0 }, "quantity"},
		{"zero price", func(c *Calculation) { c.PriceYuan = 0 }, "price_yuan"},
		{"markup of one", func(c *Calculation) { c.Markup = 1 }, "markup"},
		{"zero weight", func(c *Calculation) { c.WeightKg = ptr(0.0) }, "weight_kg"},
		{"negative weight", func(c *Calculation) { c.WeightKg = ptr(-0.3) }, "weight_kg"},
		{"empty box", func(c *Calculation) { c.WeightKg, c.UnitsPerBox, c.BoxWeightKg = nil, ptr(int64(0)), ptr(4.0) }, "units_per_box"},
		{"weightless box", func(c *Calculation) { c.WeightKg, c.UnitsPerBox, c.BoxWeightKg = nil, ptr(int64(20)), ptr(0.0) }, "box_weight_kg"},
		{"negative box side", func(c *Calculation) {
			c.WeightKg, c.UnitsPerBox, c.BoxWeightKg, c.BoxHeightCm = nil, ptr(int64(20)), ptr(4.0), ptr(-1.0)
		}, "box_dimensions"},
	}
	for _, tt := range tests {
		c := valid()
		tt.mutate(&c)
		_, err := s.CreateCalculation(ctx, c)
		require.Error(t, err, tt.name)
		var appErr *apperr.Error
		require.ErrorAs(t, err, &appErr, tt.name)
		assert.Equal(t, apperr.KindInvalidInput, appErr.Kind, tt.name)
		assert.Equal(t, tt.field, appErr.Field, tt.name)
	}

	list, err := s.ListCalculationsByPosition(ctx, pos.ID)
	require.NoError(t, err)
	assert.Empty(t, list, "nothing is written for rejected inputs")

	draft, err := s.CreateCalculation(ctx, Calculation{PositionID: pos.ID, Quantity: 500, PriceYuan: 12, Markup: 1.7})
	require.NoError(t, err, "weight may be supplied later")

	draft.Markup = 0.9
	_, err = s.UpdateCalculation(ctx, draft)
	assert.True(t, apperr.Is(err, apperr.KindInvalidInput), "got %v", err)
	stored, err := s.GetCalculation(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, 1.7, stored.Markup)
}

func TestRouteUpsertAndStaleDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	pos, err := s.CreatePosition(ctx, Position{Name: "Bottle"})
	require.NoError(t, err)
	calc, err := s.CreateCalculation(ctx, Calculation{PositionID: pos.ID, Quantity: 10, PriceYuan: 12, Markup: 1.7, WeightKg: ptr(0.3)})
	require.NoError(t, err)

	row := func(route pricing.Route, cost string) LogisticsRoute {
		return LogisticsRoute{
			CalculationID:  calc.ID,
			RouteName:      route,
			RatePerKgUsd:   decimal.RequireFromString("3"),
			CostPerUnitRub: decimal.RequireFromString(cost),
			TotalCostRub:   decimal.RequireFromString(cost).Mul(decimal.NewFromInt(10)),
		}
	}
	write := func(runID string, rows ...LogisticsRoute) {
		t.Helper()
		err := s.InTx(ctx, func(tx *Tx) error {
			for _, r := range rows {
				r.RunID = runID
				if err := tx.UpsertRoute(ctx, r); err != nil {
					return err
				}
			}
			_, err := tx.DeleteStaleRoutes(ctx, calc.ID, runID)
			return err
		})
		require.NoError(t, err)
	}

	write("run-1", row(pricing.RouteSeaContainer, "200.10"), row(pricing.RouteRail, "315.92"))
	routes, err := s.ListRoutes(ctx, calc.ID)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, pricing.RouteRail, routes[0].RouteName, "ordered by route vocabulary")
	firstID := routes[0].ID

	write("run-2", row(pricing.RouteRail, "320.00"))
	routes, err = s.ListRoutes(ctx, calc.ID)
	require.NoError(t, err)
	require.Len(t, routes, 1, "sea container row is stale")
	assert.Equal(t, firstID, routes[0].ID, "row is updated in place")
	assert.Equal(t, "run-2", routes[0].RunID)
	assert.True(t, routes[0].CostPerUnitRub.Equal(decimal.RequireFromString("320")), "got %s", routes[0].CostPerUnitRub)
	assert.True(t, routes[0].TotalCostRub.Equal(decimal.RequireFromString("3200")), "got %s", routes[0].TotalCostRub)

	require.NoError(t, s.DeleteRoutes(ctx, calc.ID))
	routes, err = s.ListRoutes(ctx, calc.ID)
	require.NoError(t, err)
	assert.Empty(t, routes)
}

func TestInTxRollsBack(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.InTx(ctx, func(tx *Tx) error {
		if _, err := tx.CreatePosition(ctx, Position{Name: "Doomed"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	positions, err := s.ListPositions(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, positions)
}
