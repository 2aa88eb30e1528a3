package repo

import (
	"context"
	"database/sql"

	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
)

func (r Repo) InsertProperty(ctx context.Context, q dbx.DBTX, p domain.Property) error {
	_, err := q.ExecContext(ctx, `INSERT INTO properties(id,name,location,acres,created_at) VALUES (?,?,?,?,?)`,
		p.ID, p.Name, nullable(p.Location), nullable(p.Acres), p.CreatedAt)
	return err
}

func (r Repo) GetProperty(ctx context.Context, id string) (domain.Property, error) {
	return r.GetPropertyTx(ctx, r.DB, id)
}

func (r Repo) GetPropertyTx(ctx context.Context, q dbx.DBTX, id string) (domain.Property, error) {
	var p domain.Property
	err := q.QueryRowContext(ctx, `SELECT id,name,COALESCE(location,''),COALESCE(acres,''),created_at FROM properties WHERE id=?`, id).
		Scan(&p.ID, &p.Name, &p.Location, &p.Acres, &p.CreatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	return p, err
}

func (r Repo) ListProperties(ctx context.Context) ([]domain.Property, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(location,''),COALESCE(acres,''),created_at FROM properties ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Property
	for rows.Next() {
		var p domain.Property
		if err := rows.Scan(&p.ID, &p.Name, &p.Location, &p.Acres, &p.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

func (r Repo) InsertFarmer(ctx context.Context, q dbx.DBTX, f domain.Farmer) error {
	_, err := q.ExecContext(ctx, `INSERT INTO farmers(id,name,email,phone,created_at) VALUES (?,?,?,?,?)`,
		f.ID, f.Name, nullable(f.Email), nullable(f.Phone), f.CreatedAt)
	return err
}

func (r Repo) GetFarmer(ctx context.Context, id string) (domain.Farmer, error) {
	return r.GetFarmerTx(ctx, r.DB, id)
}

func (r Repo) GetFarmerTx(ctx context.Context, q dbx.DBTX, id string) (domain.Farmer, error) {
	var f domain.Farmer
	err := q.QueryRowContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(phone,''),created_at FROM farmers WHERE id=?`, id).
		Scan(&f.ID, &f.Name, &f.Email, &f.Phone, &f.CreatedAt)
	if err == sql.ErrNoRows {
		return f, ErrNotFound
	}
	return f, err
}

func (r Repo) ListFarmers(ctx context.Context) ([]domain.Farmer, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id,name,COALESCE(email,''),COALESCE(phone,''),created_at FROM farmers ORDER BY name ASC, id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Farmer
	for rows.Next() {
		var f domain.Farmer
		if err := rows.Scan(&f.ID, &f.Name, &f.Email, &f.Phone, &f.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, f)
	}
	return res, rows.Err()
}
