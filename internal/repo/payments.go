package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
)

const paymentColumns = `id,lease_id,seq,amount,due_date,paid,paid_date,status,reference,created_at,updated_at`

func scanPayment(row scanner) (domain.Payment, error) {
	var p domain.Payment
	var amount, due string
	var paid int
	var paidDate, reference sql.NullString
	err := row.Scan(&p.ID, &p.LeaseID, &p.Sequence, &amount, &due, &paid, &paidDate, &p.Status, &reference, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return p, ErrNotFound
	}
	if err != nil {
		return p, err
	}
	if p.Amount, err = decimal.NewFromString(amount); err != nil {
		return p, fmt.Errorf("payment %s amount: %w", p.ID, err)
	}
	if p.DueDate, err = domain.ParseDate(due); err != nil {
		return p, fmt.Errorf("payment %s due_date: %w", p.ID, err)
	}
	p.Paid = paid == 1
	if paidDate.Valid {
		d, err := domain.ParseDate(paidDate.String)
		if err != nil {
			return p, fmt.Errorf("payment %s paid_date: %w", p.ID, err)
		}
		p.PaidDate = &d
	}
	if reference.Valid {
		p.Reference = reference.String
	}
	return p, nil
}

func (r Repo) InsertPayment(ctx context.Context, q dbx.DBTX, p domain.Payment) error {
	_, err := q.ExecContext(ctx, `INSERT INTO payments(`+paymentColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.LeaseID, p.Sequence, p.Amount.StringFixed(2), formatDate(p.DueDate), boolInt(p.Paid),
		nullableDate(p.PaidDate), p.Status, nullable(p.Reference), p.CreatedAt, p.UpdatedAt)
	return err
}

func (r Repo) GetPayment(ctx context.Context, id string) (domain.Payment, error) {
	return r.GetPaymentTx(ctx, r.DB, id)
}

func (r Repo) GetPaymentTx(ctx context.Context, q dbx.DBTX, id string) (domain.Payment, error) {
	return scanPayment(q.QueryRowContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE id=?`, id))
}

// ListPayments returns a lease's payments in sequence order.
func (r Repo) ListPayments(ctx context.Context, leaseID string) ([]domain.Payment, error) {
	return r.ListPaymentsTx(ctx, r.DB, leaseID)
}

func (r Repo) ListPaymentsTx(ctx context.Context, q dbx.DBTX, leaseID string) ([]domain.Payment, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+paymentColumns+` FROM payments WHERE lease_id=? ORDER BY seq ASC`, leaseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, p)
	}
	return res, rows.Err()
}

// UpdatePaymentState persists the settlement fields of a payment.
func (r Repo) UpdatePaymentState(ctx context.Context, q dbx.DBTX, p domain.Payment) error {
	res, err := q.ExecContext(ctx, `UPDATE payments SET paid=?, paid_date=?, status=?, reference=?, updated_at=? WHERE id=?`,
		boolInt(p.Paid), nullableDate(p.PaidDate), p.Status, nullable(p.Reference), p.UpdatedAt, p.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// CancelPendingPayments marks every unpaid payment of a lease cancelled.
func (r Repo) CancelPendingPayments(ctx context.Context, q dbx.DBTX, leaseID, updatedAt string) (int64, error) {
	res, err := q.ExecContext(ctx, `UPDATE payments SET status=?, updated_at=? WHERE lease_id=? AND paid=0 AND status=?`,
		domain.PaymentCancelled, updatedAt, leaseID, domain.PaymentPending)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func nullableDate(d *time.Time) any {
	if d == nil {
		return nil
	}
	return formatDate(*d)
}
