package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/pricing"
)

// Calculation is one pricing run of a position for a factory and quantity.
// The factory is either referenced by id or given as free text.
type Calculation struct {
	ID               int64          `db:"id" json:"id"`
	PositionID       int64          `db:"position_id" json:"position_id"`
	FactoryID        *int64         `db:"factory_id" json:"factory_id,omitempty"`
	FactoryName      string         `db:"factory_name" json:"factory_name"`
	FactoryContact   string         `db:"factory_contact" json:"factory_contact"`
	Quantity         int64          `db:"quantity" json:"quantity"`
	PriceYuan        float64        `db:"price_yuan" json:"price_yuan"`
	Markup           float64        `db:"markup" json:"markup"`
	Mode             pricing.Mode   `db:"mode" json:"mode"`
	WeightKg         *float64       `db:"weight_kg" json:"weight_kg,omitempty"`
	UnitsPerBox      *int64         `db:"units_per_box" json:"units_per_box,omitempty"`
	BoxWeightKg      *float64       `db:"box_weight_kg" json:"box_weight_kg,omitempty"`
	BoxLengthCm      *float64       `db:"box_length_cm" json:"box_length_cm,omitempty"`
	BoxWidthCm       *float64       `db:"box_width_cm" json:"box_width_cm,omitempty"`
	BoxHeightCm      *float64       `db:"box_height_cm" json:"box_height_cm,omitempty"`
	CategoryOverride string         `db:"category_override" json:"category_override"`
	SourceURL        string         `db:"source_url" json:"source_url"`
	CustomParams     types.JSONText `db:"custom_params" json:"custom_params"`
	CreatedAt        string         `db:"created_at" json:"created_at"`
	UpdatedAt        string         `db:"updated_at" json:"updated_at"`
}

const calculationColumns = `id, position_id, factory_id, factory_name, factory_contact, quantity,
	price_yuan, markup, mode, weight_kg, units_per_box, box_weight_kg, box_length_cm,
	box_width_cm, box_height_cm, category_override, source_url, custom_params,
	created_at, updated_at`

// Params decodes the stored custom parameters.
func (c Calculation) Params() (pricing.CustomParams, error) {
	var p pricing.CustomParams
	if len(c.CustomParams) == 0 {
		return p, nil
	}
	if err := json.Unmarshal(c.CustomParams, &p); err != nil {
		return pricing.CustomParams{}, apperr.Data("calculation %d: stored custom params are not valid: %v", c.ID, err)
	}
	return p, nil
}

// SetParams stores p as the calculation's custom parameters.
func (c *Calculation) SetParams(p pricing.CustomParams) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode custom params: %w", err)
	}
	c.CustomParams = raw
	return nil
}

// Packing returns the packing inputs, or nil when none were given.
func (c Calculation) Packing() *pricing.Packing {
	if c.UnitsPerBox == nil && c.BoxWeightKg == nil {
		return nil
	}
	p := &pricing.Packing{
		BoxLengthCm: deref(c.BoxLengthCm),
		BoxWidthCm:  deref(c.BoxWidthCm),
		BoxHeightCm: deref(c.BoxHeightCm),
		BoxWeightKg: deref(c.BoxWeightKg),
	}
	if c.UnitsPerBox != nil {
		p.UnitsPerBox = *c.UnitsPerBox
	}
	return p
}

// Request builds the engine request for the calculation of a product.
func (c Calculation) Request(productName string) (pricing.Request, error) {
	params, err := c.Params()
	if err != nil {
		return pricing.Request{}, err
	}
	return pricing.Request{
		ProductName: productName,
		Quantity:    c.Quantity,
		Mode:        c.Mode,
		WeightKg:    c.WeightKg,
		Packing:     c.Packing(),
		PriceYuan:   c.PriceYuan,
		Markup:      c.Markup,
		Category:    c.CategoryOverride,
		SourceURL:   c.SourceURL,
		Params:      params,
	}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func (c *Calculation) normalize() error {
	c.FactoryName = strings.TrimSpace(c.FactoryName)
	c.FactoryContact = strings.TrimSpace(c.FactoryContact)
	c.CategoryOverride = strings.TrimSpace(c.CategoryOverride)
	c.SourceURL = strings.TrimSpace(c.SourceURL)

	if c.PositionID <= 0 {
		return apperr.Invalid("position_id", "position id is required")
	}
	switch c.Mode {
	case "":
		c.Mode = pricing.ModeSimple
		if c.UnitsPerBox != nil || c.BoxWeightKg != nil {
			c.Mode = pricing.ModePrecise
		}
	case pricing.ModeSimple, pricing.ModePrecise:
	default:
		return apperr.Invalid("mode", "unknown calculation mode %q", c.Mode)
	}
	if len(c.CustomParams) == 0 || string(c.CustomParams) == "null" {
		c.CustomParams = types.JSONText("{}")
	}
	req, err := c.Request("")
	if err != nil {
		return apperr.Invalid("custom_params", "custom params are not valid")
	}
	// A draft may still lack its weight or packing; values that are given
	// must already be usable.
	if err := pricing.ValidateInputs(req); err != nil && !apperr.Is(err, apperr.KindMissingInput) {
		return err
	}
	return nil
}

type calculationArgs struct {
	Calculation
	CustomParamsText string `db:"custom_params_text"`
}

// resolveRefs checks the position and the factory exist and copies the
// factory name and contact when they were left empty.
func (q queries) resolveRefs(ctx context.Context, c *Calculation) error {
	if _, err := q.GetPosition(ctx, c.PositionID); err != nil {
		return err
	}
	if c.FactoryID == nil {
		return nil
	}
	f, err := q.GetFactory(ctx, *c.FactoryID)
	if err != nil {
		return err
	}
	if c.FactoryName == "" {
		c.FactoryName = f.Name
	}
	if c.FactoryContact == "" {
		c.FactoryContact = f.Contact
	}
	return nil
}

func (q queries) CreateCalculation(ctx context.Context, c Calculation) (Calculation, error) {
	if err := c.normalize(); err != nil {
		return Calculation{}, err
	}
	if err := q.resolveRefs(ctx, &c); err != nil {
		return Calculation{}, err
	}
	id, err := q.insertNamed(ctx, `
		INSERT INTO calculations (
			position_id, factory_id, factory_name, factory_contact, quantity, price_yuan,
			markup, mode, weight_kg, units_per_box, box_weight_kg, box_length_cm,
			box_width_cm, box_height_cm, category_override, source_url, custom_params
		) VALUES (
			:position_id, :factory_id, :factory_name, :factory_contact, :quantity, :price_yuan,
			:markup, :mode, :weight_kg, :units_per_box, :box_weight_kg, :box_length_cm,
			:box_width_cm, :box_height_cm, :category_override, :source_url, :custom_params_text
		)
		RETURNING id`, calculationArgs{Calculation: c, CustomParamsText: string(c.CustomParams)})
	if err != nil {
		return Calculation{}, fmt.Errorf("insert calculation: %w", err)
	}
	return q.GetCalculation(ctx, id)
}

func (q queries) GetCalculation(ctx context.Context, id int64) (Calculation, error) {
	var c Calculation
	if err := q.get(ctx, &c, `SELECT `+calculationColumns+` FROM calculations WHERE id = ?`, id); err != nil {
		return Calculation{}, notFound(err, "calculation", id)
	}
	return c, nil
}

// ListCalculationsByPosition returns the calculations of a position, oldest
// first. An unknown position is NotFound.
func (q queries) ListCalculationsByPosition(ctx context.Context, positionID int64) ([]Calculation, error) {
	if _, err := q.GetPosition(ctx, positionID); err != nil {
		return nil, err
	}
	calcs := []Calculation{}
	if err := q.selectAll(ctx, &calcs, `
		SELECT `+calculationColumns+` FROM calculations
		WHERE position_id = ?
		ORDER BY id`, positionID); err != nil {
		return nil, fmt.Errorf("list calculations of position %d: %w", positionID, err)
	}
	return calcs, nil
}

func (q queries) UpdateCalculation(ctx context.Context, c Calculation) (Calculation, error) {
	if err := c.normalize(); err != nil {
		return Calculation{}, err
	}
	if err := q.resolveRefs(ctx, &c); err != nil {
		return Calculation{}, err
	}
	ok, err := q.updateNamed(ctx, `
		UPDATE calculations
		SET position_id = :position_id, factory_id = :factory_id, factory_name = :factory_name,
			factory_contact = :factory_contact, quantity = :quantity, price_yuan = :price_yuan,
			markup = :markup, mode = :mode, weight_kg = :weight_kg, units_per_box = :units_per_box,
			box_weight_kg = :box_weight_kg, box_length_cm = :box_length_cm,
			box_width_cm = :box_width_cm, box_height_cm = :box_height_cm,
			category_override = :category_override, source_url = :source_url,
			custom_params = :custom_params_text, updated_at = CURRENT_TIMESTAMP
		WHERE id = :id`, calculationArgs{Calculation: c, CustomParamsText: string(c.CustomParams)})
	if err != nil {
		return Calculation{}, fmt.Errorf("update calculation %d: %w", c.ID, err)
	}
	if !ok {
		return Calculation{}, apperr.NotFound("calculation", c.ID)
	}
	return q.GetCalculation(ctx, c.ID)
}

// DeleteCalculation removes the calculation and its routes.
func (q queries) DeleteCalculation(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, "calculations", "calculation", id)
}

// LockCalculation reads the calculation inside a transaction. On PostgreSQL
// the row stays locked until the transaction ends; SQLite already allows a
// single writer.
func (t *Tx) LockCalculation(ctx context.Context, id int64) (Calculation, error) {
	query := `SELECT ` + calculationColumns + ` FROM calculations WHERE id = ?`
	if t.isPostgres() {
		query += ` FOR UPDATE`
	}
	var c Calculation
	if err := t.get(ctx, &c, query, id); err != nil {
		return Calculation{}, notFound(err, "calculation", id)
	}
	return c, nil
}

// SaveInputs stores the category override and custom params chosen during a
// recalculation.
func (t *Tx) SaveInputs(ctx context.Context, id int64, category string, params pricing.CustomParams) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode custom params: %w", err)
	}
	if _, err := t.exec(ctx, `
		UPDATE calculations
		SET category_override = ?, custom_params = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, category, string(raw), id); err != nil {
		return fmt.Errorf("save inputs of calculation %d: %w", id, err)
	}
	return nil
}
