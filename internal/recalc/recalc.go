// Package recalc prices stored calculations and persists their routes.
package recalc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/pricing"
	"github.com/Simplici0/merchcalc/internal/store"
)

// Status tells whether a recalculation wrote routes or needs more input.
type Status string

const (
	StatusComplete   Status = "complete"
	StatusNeedsInput Status = "needs_input"
)

// Overrides are the optional inputs supplied with a recalculation. Route
// keys are free-text labels and are normalized before use.
type Overrides struct {
	Category    string             `json:"category,omitempty"`
	Rates       map[string]float64 `json:"rates,omitempty"`
	DutyPercent *float64           `json:"duty_percent,omitempty"`
	VATPercent  *float64           `json:"vat_percent,omitempty"`
}

// Params converts the overrides into engine parameters.
func (o *Overrides) Params() (pricing.CustomParams, error) {
	var p pricing.CustomParams
	if o == nil {
		return p, nil
	}
	if len(o.Rates) > 0 {
		p.Rates = make(map[pricing.Route]float64, len(o.Rates))
		for label, rate := range o.Rates {
			route, err := pricing.ParseRoute(label)
			if err != nil {
				return pricing.CustomParams{}, err
			}
			if _, dup := p.Rates[route]; dup {
				return pricing.CustomParams{}, apperr.Invalid("rates", "route %s is given more than once", route)
			}
			p.Rates[route] = rate
		}
	}
	p.DutyPercent = o.DutyPercent
	p.VATPercent = o.VATPercent
	return p, nil
}

// Outcome is the result of a recalculation. Routes holds the stored rows
// when Status is complete; MissingFields names the inputs still required
// otherwise.
type Outcome struct {
	Status        Status                 `json:"status"`
	RunID         string                 `json:"run_id,omitempty"`
	Result        pricing.Result         `json:"-"`
	Routes        []store.LogisticsRoute `json:"routes,omitempty"`
	MissingFields []string               `json:"missing_fields,omitempty"`
}

// Service recalculates calculations against the engine.
type Service struct {
	store  *store.Store
	engine *pricing.Engine
	logger *slog.Logger
	newID  func() string
}

func NewService(s *store.Store, engine *pricing.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, engine: engine, logger: logger, newID: uuid.NewString}
}

// Recalculate prices calculation id with its stored inputs merged with o and
// rewrites its routes in one transaction. Errors and pending outcomes leave
// the database untouched.
func (s *Service) Recalculate(ctx context.Context, id int64, o *Overrides) (Outcome, error) {
	var out Outcome
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		var err error
		out, err = s.run(ctx, tx, id, o)
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("recalculate calculation %d: %w", id, err)
	}
	s.logOutcome(ctx, id, out)
	return out, nil
}

// Update stores new inputs for a calculation and reprices it in the same
// transaction. An invalid input rejects the whole update. When the new inputs
// need more data the update is kept and the outdated routes are dropped.
func (s *Service) Update(ctx context.Context, c store.Calculation) (store.Calculation, Outcome, error) {
	var (
		updated store.Calculation
		out     Outcome
	)
	err := s.store.InTx(ctx, func(tx *store.Tx) error {
		if _, err := tx.LockCalculation(ctx, c.ID); err != nil {
			return err
		}
		if _, err := tx.UpdateCalculation(ctx, c); err != nil {
			return err
		}

		var err error
		out, err = s.run(ctx, tx, c.ID, nil)
		if err != nil {
			return err
		}
		if out.Status == StatusNeedsInput {
			if err := tx.DeleteRoutes(ctx, c.ID); err != nil {
				return err
			}
		}

		updated, err = tx.GetCalculation(ctx, c.ID)
		return err
	})
	if err != nil {
		return store.Calculation{}, Outcome{}, fmt.Errorf("update calculation %d: %w", c.ID, err)
	}
	s.logOutcome(ctx, c.ID, out)
	return updated, out, nil
}

// run prices the calculation inside tx. A complete result is written;
// anything else returns before the first write.
func (s *Service) run(ctx context.Context, tx *store.Tx, id int64, o *Overrides) (Outcome, error) {
	calc, err := tx.LockCalculation(ctx, id)
	if err != nil {
		return Outcome{}, err
	}
	pos, err := tx.GetPosition(ctx, calc.PositionID)
	if err != nil {
		return Outcome{}, err
	}

	req, err := calc.Request(pos.Name)
	if err != nil {
		return Outcome{}, err
	}
	if req.Category == "" {
		req.Category = pos.Category
	}
	overrides, err := o.Params()
	if err != nil {
		return Outcome{}, err
	}
	category := overrideCategory(calc, o)
	if category != "" {
		req.Category = category
	}
	req.Params = req.Params.Merge(overrides)

	res, err := s.engine.Calculate(req)
	if err != nil {
		return Outcome{}, err
	}
	if !res.Complete() {
		return Outcome{Status: StatusNeedsInput, Result: res, MissingFields: res.NeedsInput}, nil
	}

	runID := s.newID()
	if err := tx.SaveInputs(ctx, id, category, req.Params); err != nil {
		return Outcome{}, err
	}
	for _, rr := range res.Routes {
		if err := tx.UpsertRoute(ctx, store.RouteFromResult(id, runID, rr)); err != nil {
			return Outcome{}, err
		}
	}
	stale, err := tx.DeleteStaleRoutes(ctx, id, runID)
	if err != nil {
		return Outcome{}, err
	}
	routes, err := tx.ListRoutes(ctx, id)
	if err != nil {
		return Outcome{}, err
	}

	s.logger.DebugContext(ctx, "routes written",
		"calculation_id", id,
		"run_id", runID,
		"routes_removed", stale,
	)
	return Outcome{Status: StatusComplete, RunID: runID, Result: res, Routes: routes}, nil
}

func (s *Service) logOutcome(ctx context.Context, id int64, out Outcome) {
	if out.Status == StatusNeedsInput {
		s.logger.InfoContext(ctx, "calculation needs input",
			"calculation_id", id,
			"category", out.Result.Category,
			"missing_fields", out.MissingFields,
		)
		return
	}
	s.logger.InfoContext(ctx, "calculation recalculated",
		"calculation_id", id,
		"run_id", out.RunID,
		"category", out.Result.Category,
		"routes", len(out.Routes),
	)
}

// overrideCategory is the category override to keep on the calculation: the
// one supplied now, or the stored one.
func overrideCategory(calc store.Calculation, o *Overrides) string {
	if o != nil && strings.TrimSpace(o.Category) != "" {
		return strings.TrimSpace(o.Category)
	}
	return calc.CategoryOverride
}
