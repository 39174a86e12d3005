package store

import (
	"context"
	"fmt"
)

// Category is one row of the category directory, including the synthetic
// virtual entries (Top/Featured) seeded alongside the real ones.
type Category struct {
	Code  uint32
	Value string
}

// Subcategory is one row under a parent category.
type Subcategory struct {
	ID    uint32
	Catg  uint32
	Name  string
}

const categoriesCacheKey = "categories"

// ListCategories returns every category, virtual and real alike, in
// ascending code order. Served from dirCache when warm.
func (d *DB) ListCategories(ctx context.Context) ([]Category, error) {
	if cached, ok := d.dirCache.Get(categoriesCacheKey); ok {
		return cached.([]Category), nil
	}

	rows, err := d.Read.QueryContext(ctx, `SELECT code, value FROM categories ORDER BY code`)
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	defer rows.Close()

	var out []Category
	for rows.Next() {
		var c Category
		if err := rows.Scan(&c.Code, &c.Value); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.dirCache.SetDefault(categoriesCacheKey, out)
	return out, nil
}

const subcategoriesCacheKey = "subcategories"

// ListSubcategories returns every subcategory row, regardless of parent.
// Served from dirCache when warm.
func (d *DB) ListSubcategories(ctx context.Context) ([]Subcategory, error) {
	if cached, ok := d.dirCache.Get(subcategoriesCacheKey); ok {
		return cached.([]Subcategory), nil
	}

	rows, err := d.Read.QueryContext(ctx, `SELECT subcatg, catg, name FROM subcategories ORDER BY subcatg`)
	if err != nil {
		return nil, fmt.Errorf("store: list subcategories: %w", err)
	}
	defer rows.Close()

	var out []Subcategory
	for rows.Next() {
		var s Subcategory
		if err := rows.Scan(&s.ID, &s.Catg, &s.Name); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	d.dirCache.SetDefault(subcategoriesCacheKey, out)
	return out, nil
}
