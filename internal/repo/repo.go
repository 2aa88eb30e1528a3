package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// scanner is implemented by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

const leaseColumns = `id,lease_type,property_id,farmer_id,growing_year,start_date,end_date,rent_amount,rent_frequency,status,agreement_path,agreement_hash,renewed_from,created_at,updated_at`

func scanLease(row scanner) (domain.Lease, error) {
	var l domain.Lease
	var start, end, rent, freq string
	var agreementPath, agreementHash, renewedFrom sql.NullString
	err := row.Scan(&l.ID, &l.Type, &l.PropertyID, &l.FarmerID, &l.GrowingYear, &start, &end, &rent, &freq, &l.Status,
		&agreementPath, &agreementHash, &renewedFrom, &l.CreatedAt, &l.UpdatedAt)
	if err == sql.ErrNoRows {
		return l, ErrNotFound
	}
	if err != nil {
		return l, err
	}
	if l.StartDate, err = domain.ParseDate(start); err != nil {
		return l, fmt.Errorf("lease %s start_date: %w", l.ID, err)
	}
	if l.EndDate, err = domain.ParseDate(end); err != nil {
		return l, fmt.Errorf("lease %s end_date: %w", l.ID, err)
	}
	if l.RentAmount, err = decimal.NewFromString(rent); err != nil {
		return l, fmt.Errorf("lease %s rent_amount: %w", l.ID, err)
	}
	l.RentFrequency = domain.RentFrequency(freq)
	if agreementPath.Valid {
		l.AgreementPath = agreementPath.String
	}
	if agreementHash.Valid {
		l.AgreementHash = agreementHash.String
	}
	if renewedFrom.Valid {
		l.RenewedFrom = &renewedFrom.String
	}
	return l, nil
}

func (r Repo) InsertLease(ctx context.Context, q dbx.DBTX, l domain.Lease) error {
	_, err := q.ExecContext(ctx, `INSERT INTO leases(`+leaseColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		l.ID, l.Type, l.PropertyID, l.FarmerID, l.GrowingYear, formatDate(l.StartDate), formatDate(l.EndDate),
		l.RentAmount.String(), string(l.RentFrequency), l.Status, nullable(l.AgreementPath), nullable(l.AgreementHash),
		nullableStringPtr(l.RenewedFrom), l.CreatedAt, l.UpdatedAt)
	return err
}

func (r Repo) GetLease(ctx context.Context, id string) (domain.Lease, error) {
	return r.GetLeaseTx(ctx, r.DB, id)
}

func (r Repo) GetLeaseTx(ctx context.Context, q dbx.DBTX, id string) (domain.Lease, error) {
	return scanLease(q.QueryRowContext(ctx, `SELECT `+leaseColumns+` FROM leases WHERE id=?`, id))
}

type LeaseFilters struct {
	Status     string
	PropertyID string
	FarmerID   string
	// RenewedFrom selects the successor of a lease.
	RenewedFrom string
	Limit       int
}

func (r Repo) ListLeases(ctx context.Context, f LeaseFilters) ([]domain.Lease, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.PropertyID != "" {
		clauses = append(clauses, "property_id=?")
		args = append(args, f.PropertyID)
	}
	if f.FarmerID != "" {
		clauses = append(clauses, "farmer_id=?")
		args = append(args, f.FarmerID)
	}
	if f.RenewedFrom != "" {
		clauses = append(clauses, "renewed_from=?")
		args = append(args, f.RenewedFrom)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + leaseColumns + ` FROM leases ` + where + ` ORDER BY start_date DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	return r.queryLeases(ctx, r.DB, query, args...)
}

// ListExpiredActiveTx returns active leases whose end date is before asOf.
func (r Repo) ListExpiredActiveTx(ctx context.Context, q dbx.DBTX, asOf time.Time) ([]domain.Lease, error) {
	return r.queryLeases(ctx, q, `SELECT `+leaseColumns+` FROM leases WHERE status=? AND end_date < ? ORDER BY end_date ASC, id ASC`,
		domain.LeaseActive, formatDate(asOf))
}

func (r Repo) queryLeases(ctx context.Context, q dbx.DBTX, query string, args ...any) ([]domain.Lease, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Lease
	for rows.Next() {
		l, err := scanLease(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, l)
	}
	return res, rows.Err()
}

func (r Repo) UpdateLeaseStatus(ctx context.Context, q dbx.DBTX, id, status, updatedAt string) error {
	res, err := q.ExecContext(ctx, `UPDATE leases SET status=?, updated_at=? WHERE id=?`, status, updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountLeasesByStatus returns lease counts keyed by status.
func (r Repo) CountLeasesByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, COUNT(*) FROM leases GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func formatDate(t time.Time) string {
	return t.Format(domain.DateLayout)
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
