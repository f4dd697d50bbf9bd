package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx/types"

	"github.com/Simplici0/merchcalc/internal/apperr"
	"github.com/Simplici0/merchcalc/internal/db"
)

// Position is an abstract product idea, independent of factory and quantity.
type Position struct {
	ID           int64          `db:"id" json:"id"`
	Name         string         `db:"name" json:"name"`
	Description  string         `db:"description" json:"description"`
	Category     string         `db:"category" json:"category"`
	DesignFiles  types.JSONText `db:"design_files" json:"design_files"`
	CustomFields types.JSONText `db:"custom_fields" json:"custom_fields"`
	CreatedAt    string         `db:"created_at" json:"created_at"`
	UpdatedAt    string         `db:"updated_at" json:"updated_at"`
}

const positionColumns = `id, name, description, category, design_files, custom_fields, created_at, updated_at`

// normalize trims the position and fills empty JSON columns.
func (p *Position) normalize() error {
	p.Name = strings.TrimSpace(p.Name)
	p.Category = strings.TrimSpace(p.Category)
	if p.Name == "" {
		return apperr.Invalid("name", "position name is required")
	}

	if len(p.DesignFiles) == 0 || string(p.DesignFiles) == "null" {
		p.DesignFiles = types.JSONText("[]")
	}
	var files []string
	if err := json.Unmarshal(p.DesignFiles, &files); err != nil {
		return apperr.Invalid("design_files", "design files must be a list of strings")
	}

	if len(p.CustomFields) == 0 || string(p.CustomFields) == "null" {
		p.CustomFields = types.JSONText("{}")
	}
	var fields map[string]any
	if err := json.Unmarshal(p.CustomFields, &fields); err != nil {
		return apperr.Invalid("custom_fields", "custom fields must be an object")
	}
	return nil
}

// positionArgs carries JSON columns as text so both drivers store them as
// strings.
type positionArgs struct {
	ID           int64  `db:"id"`
	Name         string `db:"name"`
	Description  string `db:"description"`
	Category     string `db:"category"`
	DesignFiles  string `db:"design_files"`
	CustomFields string `db:"custom_fields"`
}

func (p Position) args() positionArgs {
	return positionArgs{
		ID:           p.ID,
		Name:         p.Name,
		Description:  p.Description,
		Category:     p.Category,
		DesignFiles:  string(p.DesignFiles),
		CustomFields: string(p.CustomFields),
	}
}

func (q queries) CreatePosition(ctx context.Context, p Position) (Position, error) {
	if err := p.normalize(); err != nil {
		return Position{}, err
	}
	id, err := q.insertNamed(ctx, `
		INSERT INTO positions (name, description, category, design_files, custom_fields)
		VALUES (:name, :description, :category, :design_files, :custom_fields)
		RETURNING id`, p.args())
	if err != nil {
		return Position{}, fmt.Errorf("insert position: %w", err)
	}
	return q.GetPosition(ctx, id)
}

func (q queries) GetPosition(ctx context.Context, id int64) (Position, error) {
	var p Position
	if err := q.get(ctx, &p, `SELECT `+positionColumns+` FROM positions WHERE id = ?`, id); err != nil {
		return Position{}, notFound(err, "position", id)
	}
	return p, nil
}

// ListPositions returns positions newest first. A non-empty query filters by
// name, description or category.
func (q queries) ListPositions(ctx context.Context, query string) ([]Position, error) {
	positions := []Position{}
	var err error
	if query = strings.TrimSpace(query); query == "" {
		err = q.selectAll(ctx, &positions, `SELECT `+positionColumns+` FROM positions ORDER BY id DESC`)
	} else {
		fold, like := db.FoldFunc, "%"+db.Fold(query)+"%"
		if q.isPostgres() {
			fold, like = "LOWER", "%"+strings.ToLower(query)+"%"
		}
		err = q.selectAll(ctx, &positions, `
			SELECT `+positionColumns+` FROM positions
			WHERE `+fold+`(name) LIKE ? OR `+fold+`(description) LIKE ? OR `+fold+`(category) LIKE ?
			ORDER BY id DESC`, like, like, like)
	}
	if err != nil {
		return nil, fmt.Errorf("list positions: %w", err)
	}
	return positions, nil
}

func (q queries) UpdatePosition(ctx context.Context, p Position) (Position, error) {
	if err := p.normalize(); err != nil {
		return Position{}, err
	}
	ok, err := q.updateNamed(ctx, `
		UPDATE positions
		SET name = :name, description = :description, category = :category,
			design_files = :design_files, custom_fields = :custom_fields,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = :id`, p.args())
	if err != nil {
		return Position{}, fmt.Errorf("update position %d: %w", p.ID, err)
	}
	if !ok {
		return Position{}, apperr.NotFound("position", p.ID)
	}
	return q.GetPosition(ctx, p.ID)
}

// DeletePosition removes the position with its calculations and routes.
func (q queries) DeletePosition(ctx context.Context, id int64) error {
	return q.deleteByID(ctx, "positions", "position", id)
}
