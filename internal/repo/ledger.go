package repo

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
)

const ledgerColumns = `id,lease_id,payment_id,entry_date,account_code,account_name,description,debit,credit,entry_type,reference,vendor,reconciled,approved,reverses,reversed,created_at`

func scanLedgerEntry(row scanner) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var paymentID, reference, vendor, reverses sql.NullString
	var entryDate, debit, credit string
	var reconciled, approved, reversed int
	err := row.Scan(&e.ID, &e.LeaseID, &paymentID, &entryDate, &e.AccountCode, &e.AccountName, &e.Description,
		&debit, &credit, &e.EntryType, &reference, &vendor, &reconciled, &approved, &reverses, &reversed, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	if err != nil {
		return e, err
	}
	if e.EntryDate, err = time.Parse(time.RFC3339, entryDate); err != nil {
		return e, fmt.Errorf("ledger entry %s entry_date: %w", e.ID, err)
	}
	if e.Debit, err = decimal.NewFromString(debit); err != nil {
		return e, fmt.Errorf("ledger entry %s debit: %w", e.ID, err)
	}
	if e.Credit, err = decimal.NewFromString(credit); err != nil {
		return e, fmt.Errorf("ledger entry %s credit: %w", e.ID, err)
	}
	if paymentID.Valid {
		e.PaymentID = paymentID.String
	}
	if reference.Valid {
		e.Reference = reference.String
	}
	if vendor.Valid {
		e.Vendor = vendor.String
	}
	if reverses.Valid {
		e.Reverses = &reverses.String
	}
	e.Reconciled = reconciled == 1
	e.Approved = approved == 1
	e.Reversed = reversed == 1
	return e, nil
}

func (r Repo) InsertLedgerEntry(ctx context.Context, q dbx.DBTX, e domain.LedgerEntry) error {
	_, err := q.ExecContext(ctx, `INSERT INTO ledger_entries(`+ledgerColumns+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		e.ID, e.LeaseID, nullable(e.PaymentID), e.EntryDate.UTC().Format(time.RFC3339), e.AccountCode, e.AccountName, e.Description,
		e.Debit.StringFixed(2), e.Credit.StringFixed(2), e.EntryType, nullable(e.Reference), nullable(e.Vendor),
		boolInt(e.Reconciled), boolInt(e.Approved), nullableStringPtr(e.Reverses), boolInt(e.Reversed), e.CreatedAt)
	return err
}

// GetLiveRevenueEntryTx returns the non-reversed revenue posting of a payment.
func (r Repo) GetLiveRevenueEntryTx(ctx context.Context, q dbx.DBTX, paymentID string) (domain.LedgerEntry, error) {
	return scanLedgerEntry(q.QueryRowContext(ctx, `SELECT `+ledgerColumns+` FROM ledger_entries
WHERE payment_id=? AND entry_type=? AND reversed=0`, paymentID, domain.EntryRevenue))
}

func (r Repo) MarkLedgerEntryReversed(ctx context.Context, q dbx.DBTX, id string) error {
	res, err := q.ExecContext(ctx, `UPDATE ledger_entries SET reversed=1 WHERE id=? AND reversed=0`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type LedgerFilters struct {
	LeaseID   string
	PaymentID string
	// From and To bound entry_date inclusively when non-zero.
	From time.Time
	To   time.Time
	// LiveOnly drops reversed revenue entries and their reversals.
	LiveOnly bool
	Limit    int
}

// ListLedgerEntries returns entries newest first.
func (r Repo) ListLedgerEntries(ctx context.Context, f LedgerFilters) ([]domain.LedgerEntry, error) {
	var clauses []string
	var args []any
	if f.LeaseID != "" {
		clauses = append(clauses, "lease_id=?")
		args = append(args, f.LeaseID)
	}
	if f.PaymentID != "" {
		clauses = append(clauses, "payment_id=?")
		args = append(args, f.PaymentID)
	}
	if !f.From.IsZero() {
		clauses = append(clauses, "entry_date >= ?")
		args = append(args, f.From.UTC().Format(time.RFC3339))
	}
	if !f.To.IsZero() {
		clauses = append(clauses, "entry_date <= ?")
		args = append(args, f.To.UTC().Format(time.RFC3339))
	}
	if f.LiveOnly {
		clauses = append(clauses, "reversed=0 AND reverses IS NULL")
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + ledgerColumns + ` FROM ledger_entries ` + where + ` ORDER BY entry_date DESC, created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LedgerEntry
	for rows.Next() {
		e, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, rows.Err()
}
