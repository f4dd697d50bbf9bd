package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Simplici0/merchcalc/internal/apperr"
)

// Factory is a supplier that calculations can refer to.
type Factory struct {
	ID              int64           `db:"id" json:"id"`
	Name            string          `db:"name" json:"name"`
	Contact         string          `db:"contact" json:"contact"`
	SampleDays      int             `db:"sample_days" json:"sample_days"`
	ProductionDays  int             `db:"production_days" json:"production_days"`
	SamplePriceYuan decimal.Decimal `db:"sample_price_yuan" json:"sample_price_yuan"`
	Notes           string          `db:"notes" json:"notes"`
	CreatedAt       string          `db:"created_at" json:"created_at"`
	UpdatedAt       string          `db:"updated_at" json:"updated_at"`
}

const factoryColumns = `id, name, contact, sample_days, production_days, sample_price_yuan, notes, created_at, updated_at`

func (f *Factory) normalize() error {
	f.Name = strings.TrimSpace(f.Name)
	f.Contact = strings.TrimSpace(f.Contact)
	if f.Name == "" {
		return apperr.Invalid("name", "factory name is required")
	}
	if f.SampleDays < 0 {
		return apperr.Invalid("sample_days", "sample days must not be negative, got %d", f.SampleDays)
	}
	if f.ProductionDays < 0 {
		return apperr.Invalid("production_days", "production days must not be negative, got %d", f.ProductionDays)
	}
	if f.SamplePriceYuan.IsNegative() {
		return apperr.Invalid("sample_price_yuan", "sample price must not be negative, got %s", f.SamplePriceYuan)
	}
	return nil
}

func (q queries) CreateFactory(ctx context.Context, f Factory) (Factory, error) {
	if err := f.normalize(); err != nil {
		return Factory{}, err
	}
	id, err := q.insertNamed(ctx, `
		INSERT INTO factories (name, contact, sample_days, production_days, sample_price_yuan, notes)
		VALUES (:name, :contact, :sample_days, :production_days, :sample_price_yuan, :notes)
		RETURNING id`, f)
	if isUniqueViolation(err) {
		return Factory{}, duplicateFactory(f.Name)
	}
	if err != nil {
		return Factory{}, fmt.Errorf("insert factory %q: %w", f.Name, err)
	}
	return q.GetFactory(ctx, id)
}

func duplicateFactory(name string) error {
	return apperr.Invalid("name", "factory %q already exists", name)
}

func (q queries) GetFactory(ctx context.Context, id int64) (Factory, error) {
	var f Factory
	if err := q.get(ctx, &f, `SELECT `+factoryColumns+` FROM factories WHERE id = ?`, id); err != nil {
		return Factory{}, notFound(err, "factory", id)
	}
	return f, nil
}

// FactoryExists reports whether a factory with the given name is stored.
func (q queries) FactoryExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := q.get(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM factories WHERE name = ?)`, strings.TrimSpace(name)); err != nil {
		return false, fmt.Errorf("check factory %q: %w", name, err)
	}
	return exists, nil
}

func (q queries) ListFactories(ctx context.Context) ([]Factory, error) {
	factories := []Factory{}
	if err := q.selectAll(ctx, &factories, `SELECT `+factoryColumns+` FROM factories ORDER BY name`); err != nil {
		return nil, fmt.Errorf("list factories: %w", err)
	}
	return factories, nil
}

func (q queries) UpdateFactory(ctx context.Context, f Factory) (Factory, error) {
	if err := f.normalize(); err != nil {
		return Factory{}, err
	}
	ok, err := q.updateNamed(ctx, `
		UPDATE factories
		SET name = :name, contact = :contact, sample_days = :sample_days,
			production_days = :production_days, sample_price_yuan = :sample_price_yuan,
			notes = :notes, updated_at = CURRENT_TIMESTAMP
		WHERE id = :id`, f)
	if isUniqueViolation(err) {
		return Factory{}, duplicateFactory(f.Name)
	}
	if err != nil {
		return Factory{}, fmt.Errorf("update factory %d: %w", f.ID, err)
	}
	if !ok {
		return Factory{}, apperr.NotFound("factory", f.ID)
	}
	return q.GetFactory(ctx, f.ID)
}

// DeleteFactory removes the factory. Calculations that referenced it keep
// their copied name and contact.
func (q queries) DeleteFactory(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, "factories", "factory", id)
}
