package main

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/export"
	"github.com/Simplici0/merchcalc/internal/pricing"
	"github.com/Simplici0/merchcalc/internal/recalc"
	"github.com/Simplici0/merchcalc/internal/store"
)

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DB().PingContext(r.Context()); err != nil {
		s.logger.ErrorContext(r.Context(), "health check failed", "error", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type categoriesResponse struct {
	Routes     []pricing.Route    `json:"routes"`
	FX         pricing.FX         `json:"fx"`
	Overheads  pricing.Overheads  `json:"overheads"`
	Categories []pricing.Category `json:"categories"`
}

func (s *server) handleCategories(w http.ResponseWriter, r *http.Request) {
	t := s.engine.Tariffs()
	writeJSON(w, http.StatusOK, categoriesResponse{
		Routes:     pricing.AllRoutes,
		FX:         t.FX,
		Overheads:  t.Overheads,
		Categories: t.Categories(),
	})
}

type quoteRequest struct {
	ProductName string             `json:"product_name"`
	Quantity    int64              `json:"quantity"`
	Mode        pricing.Mode       `json:"mode"`
	WeightKg    *float64           `json:"weight_kg"`
	Packing     *pricing.Packing   `json:"packing"`
	PriceYuan   float64            `json:"price_yuan"`
	Markup      float64            `json:"markup"`
	Category    string             `json:"category"`
	SourceURL   string             `json:"source_url"`
	Rates       map[string]float64 `json:"rates"`
	DutyPercent *float64           `json:"duty_percent"`
	VATPercent  *float64           `json:"vat_percent"`
}

type quoteResponse struct {
	Status        recalc.Status  `json:"status"`
	MissingFields []string       `json:"missing_fields,omitempty"`
	Result        pricing.Result `json:"result"`
}

// handleQuote prices a product without storing anything.
func (s *server) handleQuote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decodeJSON(r, &req, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	overrides := recalc.Overrides{Rates: req.Rates, DutyPercent: req.DutyPercent, VATPercent: req.VATPercent}
	params, err := overrides.Params()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	res, err := s.engine.Calculate(pricing.Request{
		ProductName: req.ProductName,
		Quantity:    req.Quantity,
		Mode:        req.Mode,
		WeightKg:    req.WeightKg,
		Packing:     req.Packing,
		PriceYuan:   req.PriceYuan,
		Markup:      req.Markup,
		Category:    req.Category,
		SourceURL:   req.SourceURL,
		Params:      params,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := quoteResponse{Status: recalc.StatusComplete, Result: res}
	if !res.Complete() {
		resp.Status = recalc.StatusNeedsInput
		resp.MissingFields = res.NeedsInput
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	positions, err := s.store.ListPositions(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

func (s *server) handleCreatePosition(w http.ResponseWriter, r *http.Request) {
	var p store.Position
	if err := decodeJSON(r, &p, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.store.CreatePosition(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	p, err := s.store.GetPosition(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *server) handleUpdatePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var p store.Position
	if err := decodeJSON(r, &p, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	p.ID = id
	updated, err := s.store.UpdatePosition(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeletePosition(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeletePosition(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleListPositionCalculations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	calcs, err := s.store.ListCalculationsByPosition(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calcs)
}

func (s *server) handleListFactories(w http.ResponseWriter, r *http.Request) {
	factories, err := s.store.ListFactories(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, factories)
}

func (s *server) handleCreateFactory(w http.ResponseWriter, r *http.Request) {
	var f store.Factory
	if err := decodeJSON(r, &f, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.store.CreateFactory(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetFactory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := s.store.GetFactory(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *server) handleUpdateFactory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var f store.Factory
	if err := decodeJSON(r, &f, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	f.ID = id
	updated, err := s.store.UpdateFactory(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *server) handleDeleteFactory(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteFactory(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleCreateCalculation(w http.ResponseWriter, r *http.Request) {
	var c store.Calculation
	if err := decodeJSON(r, &c, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	created, err := s.store.CreateCalculation(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *server) handleGetCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	c, err := s.store.GetCalculation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

type calculationUpdateResponse struct {
	Calculation store.Calculation `json:"calculation"`
	recalc.Outcome
}

// handleUpdateCalculation stores the new inputs and reprices the
// calculation in the same step.
func (s *server) handleUpdateCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var c store.Calculation
	if err := decodeJSON(r, &c, false); err != nil {
		s.writeError(w, r, err)
		return
	}
	c.ID = id
	updated, out, err := s.recalc.Update(r.Context(), c)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, calculationUpdateResponse{Calculation: updated, Outcome: out})
}

func (s *server) handleDeleteCalculation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.store.DeleteCalculation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleRecalculate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var o *recalc.Overrides
	var body recalc.Overrides
	if err := decodeJSON(r, &body, true); err != nil {
		s.writeError(w, r, err)
		return
	}
	if body.Category != "" || len(body.Rates) > 0 || body.DutyPercent != nil || body.VATPercent != nil {
		o = &body
	}

	out, err := s.recalc.Recalculate(r.Context(), id, o)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handleListRoutes(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if _, err := s.store.GetCalculation(r.Context(), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	routes, err := s.store.ListRoutes(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, routes)
}

func (s *server) handleProposal(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ctx := r.Context()
	calc, err := s.store.GetCalculation(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	pos, err := s.store.GetPosition(ctx, calc.PositionID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	routes, err := s.store.ListRoutes(ctx, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(routes) == 0 {
		s.writeError(w, r, apperr.Data("calculation %d has no priced routes; recalculate it first", id))
		return
	}

	var buf bytes.Buffer
	if err := export.WriteExcel(&buf, export.Proposal{
		Position:    pos,
		Calculation: calc,
		Category:    s.categoryOf(calc, pos),
		Routes:      routes,
	}); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="proposal-%d.xlsx"`, id))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// categoryOf names the category a calculation is priced under.
func (s *server) categoryOf(calc store.Calculation, pos store.Position) string {
	switch {
	case calc.CategoryOverride != "":
		return calc.CategoryOverride
	case pos.Category != "":
		return pos.Category
	}
	if c, err := s.engine.Tariffs().Infer(pos.Name); err == nil {
		return c.Name
	}
	return ""
}
