package pgstore

import (
	"context"

	"github.com/BearBump/BundleBox/internal/apperr"
	"github.com/BearBump/BundleBox/internal/models"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

const packageColumns = `id, carrier, name, data, validity, price::text, active, popular, created_at, updated_at`

func scanPackage(row scanner) (*models.Package, error) {
	var p models.Package
	var price string
	if err := row.Scan(&p.ID, &p.Carrier, &p.Name, &p.Data, &p.Validity, &price, &p.Active, &p.Popular, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrap(err, "parse price")
	}
	p.Price = d
	return &p, nil
}

func (s *Storage) CreatePackage(ctx context.Context, p *models.Package) error {
	_, err := s.db.Exec(ctx, `
INSERT INTO packages (id, carrier, name, data, validity, price, active, popular, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8,$9,$10)
`, p.ID, p.Carrier, p.Name, p.Data, p.Validity, p.Price.String(), p.Active, p.Popular, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	return apperr.FromStorage(err, "insert package")
}

func (s *Storage) GetPackage(ctx context.Context, id string) (*models.Package, error) {
	p, err := scanPackage(s.db.QueryRow(ctx, `SELECT `+packageColumns+` FROM packages WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromStorage(err, "select package")
	}
	return p, nil
}

// ListPackages: пакеты оператора, дешёвые первыми.
func (s *Storage) ListPackages(ctx context.Context, carrier string, activeOnly bool) ([]*models.Package, error) {
	rows, err := s.db.Query(ctx, `
SELECT `+packageColumns+`
FROM packages
WHERE carrier = $1
  AND (NOT $2 OR active)
ORDER BY price ASC, name ASC
`, carrier, activeOnly)
	if err != nil {
		return nil, apperr.FromStorage(err, "select packages")
	}
	defer rows.Close()

	out := []*models.Package{}
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, apperr.FromStorage(err, "scan package")
		}
		out = append(out, p)
	}
	if rows.Err() != nil {
		return nil, apperr.FromStorage(rows.Err(), "rows")
	}
	return out, nil
}

func (s *Storage) UpdatePackage(ctx context.Context, p *models.Package) error {
	tag, err := s.db.Exec(ctx, `
UPDATE packages
SET carrier = $2, name = $3, data = $4, validity = $5, price = $6::numeric,
    active = $7, popular = $8, updated_at = $9
WHERE id = $1
`, p.ID, p.Carrier, p.Name, p.Data, p.Validity, p.Price.String(), p.Active, p.Popular, p.UpdatedAt.UTC())
	if err != nil {
		return apperr.FromStorage(err, "update package")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(apperr.ErrNotFound, "update package")
	}
	return nil
}

func (s *Storage) DeletePackage(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM packages WHERE id = $1`, id)
	if err != nil {
		return apperr.FromStorage(err, "delete package")
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrap(apperr.ErrNotFound, "delete package")
	}
	return nil
}
