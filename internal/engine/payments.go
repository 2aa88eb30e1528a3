package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/events"
	"leasekeeper/internal/metrics"
	"leasekeeper/internal/repo"
)

// Settlement is the outcome of a payment state change. Changed is false when
// the call found the payment already in the requested state.
type Settlement struct {
	Payment domain.Payment     `json:"payment"`
	Entry   domain.LedgerEntry `json:"entry"`
	Changed bool               `json:"changed"`
}

type MarkPaidOptions struct {
	PaymentID string
	// PaidDate defaults to today.
	PaidDate  time.Time
	Reference string
	ActorID   string
}

// MarkPaid settles a payment and posts its revenue entry atomically. Marking
// an already paid payment returns the existing settlement unchanged.
func (e Engine) MarkPaid(ctx context.Context, opts MarkPaidOptions) (Settlement, error) {
	if e.Config == nil {
		return Settlement{}, errors.New("config not loaded")
	}
	paidOn := opts.PaidDate
	if paidOn.IsZero() {
		paidOn = e.now()
	}
	paidOn = day(paidOn)

	var res Settlement
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		p, err := e.Repo.GetPaymentTx(ctx, tx, opts.PaymentID)
		if err != nil {
			return fmt.Errorf("payment %s: %w", opts.PaymentID, err)
		}
		if p.Paid {
			entry, err := e.Repo.GetLiveRevenueEntryTx(ctx, tx, p.ID)
			if err != nil {
				return fmt.Errorf("revenue entry of paid payment %s: %w", p.ID, err)
			}
			res = Settlement{Payment: p, Entry: entry}
			return nil
		}
		if p.Status == domain.PaymentCancelled {
			return fmt.Errorf("%w: %s", ErrPaymentCancelled, p.ID)
		}
		l, err := e.Repo.GetLeaseTx(ctx, tx, p.LeaseID)
		if err != nil {
			return err
		}
		if l.Status == domain.LeaseVoid {
			return fmt.Errorf("%w: lease %s is void", ErrLeaseNotActive, l.ID)
		}
		if paidOn.Before(l.StartDate) {
			return fmt.Errorf("%w: %s before %s", ErrPaidBeforeStart, paidOn.Format(domain.DateLayout), l.StartDate.Format(domain.DateLayout))
		}
		property, err := e.Repo.GetPropertyTx(ctx, tx, l.PropertyID)
		if err != nil {
			return err
		}
		vendor := e.Config.Ledger.Vendor
		if vendor == "" {
			farmer, err := e.Repo.GetFarmerTx(ctx, tx, l.FarmerID)
			if err != nil {
				return err
			}
			vendor = farmer.Name
		}

		now := e.now().UTC()
		p.Paid = true
		p.PaidDate = &paidOn
		p.Status = domain.PaymentPaid
		p.Reference = opts.Reference
		p.UpdatedAt = now.Format(time.RFC3339)
		if err := e.Repo.UpdatePaymentState(ctx, tx, p); err != nil {
			return err
		}
		entry := domain.LedgerEntry{
			ID:          uuid.NewString(),
			LeaseID:     l.ID,
			PaymentID:   p.ID,
			EntryDate:   now,
			AccountCode: e.Config.Ledger.RevenueAccount.Code,
			AccountName: e.Config.Ledger.RevenueAccount.Name,
			Description: fmt.Sprintf("Lease payment #%d - %s", p.Sequence, property.Name),
			Debit:       decimal.Zero,
			Credit:      p.Amount,
			EntryType:   domain.EntryRevenue,
			Reference:   opts.Reference,
			Vendor:      vendor,
			Approved:    e.Config.Ledger.AutoApprove,
			CreatedAt:   p.UpdatedAt,
		}
		if err := e.Repo.InsertLedgerEntry(ctx, tx, entry); err != nil {
			return fmt.Errorf("post ledger entry: %w", err)
		}
		if err := e.Events.Append(ctx, tx, events.PaymentPaid, "payment", p.ID, opts.ActorID, events.EventPayload{
			"lease_id":  l.ID,
			"amount":    p.Amount.StringFixed(2),
			"paid_date": paidOn.Format(domain.DateLayout),
			"entry_id":  entry.ID,
			"reference": opts.Reference,
		}); err != nil {
			return err
		}
		res = Settlement{Payment: p, Entry: entry, Changed: true}
		return nil
	})
	if err != nil {
		metrics.ObserveSettlement("pay", "error")
		return Settlement{}, err
	}
	if !res.Changed {
		metrics.ObserveSettlement("pay", "noop")
		e.log().Debug(ctx, "payment already paid", "payment_id", res.Payment.ID)
		return res, nil
	}
	metrics.ObserveSettlement("pay", "ok")
	e.log().Info(ctx, "payment settled", "payment_id", res.Payment.ID, "lease_id", res.Payment.LeaseID, "amount", res.Payment.Amount.StringFixed(2))
	return res, nil
}

type UnmarkPaidOptions struct {
	PaymentID string
	Reason    string
	ActorID   string
}

// UnmarkPaid returns a paid payment to pending. Its revenue entry is flagged
// reversed and annulled by a reversal entry; no ledger row is deleted.
func (e Engine) UnmarkPaid(ctx context.Context, opts UnmarkPaidOptions) (Settlement, error) {
	if e.Config == nil {
		return Settlement{}, errors.New("config not loaded")
	}
	var res Settlement
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		p, err := e.Repo.GetPaymentTx(ctx, tx, opts.PaymentID)
		if err != nil {
			return fmt.Errorf("payment %s: %w", opts.PaymentID, err)
		}
		if !p.Paid {
			return fmt.Errorf("%w: payment %s is %s", ErrInvalidTransition, p.ID, p.Status)
		}
		l, err := e.Repo.GetLeaseTx(ctx, tx, p.LeaseID)
		if err != nil {
			return err
		}
		original, err := e.Repo.GetLiveRevenueEntryTx(ctx, tx, p.ID)
		if err != nil {
			return fmt.Errorf("revenue entry of payment %s: %w", p.ID, err)
		}
		if err := e.Repo.MarkLedgerEntryReversed(ctx, tx, original.ID); err != nil {
			return err
		}
		now := e.now().UTC()
		description := "Reversal of " + original.Description
		if opts.Reason != "" {
			description += " (" + opts.Reason + ")"
		}
		reversal := domain.LedgerEntry{
			ID:          uuid.NewString(),
			LeaseID:     l.ID,
			PaymentID:   p.ID,
			EntryDate:   now,
			AccountCode: original.AccountCode,
			AccountName: original.AccountName,
			Description: description,
			Debit:       original.Credit,
			Credit:      original.Debit,
			EntryType:   domain.EntryReversal,
			Reference:   original.Reference,
			Vendor:      original.Vendor,
			Approved:    e.Config.Ledger.AutoApprove,
			Reverses:    &original.ID,
			CreatedAt:   now.Format(time.RFC3339),
		}
		if err := e.Repo.InsertLedgerEntry(ctx, tx, reversal); err != nil {
			return fmt.Errorf("post reversal: %w", err)
		}

		p.Paid = false
		p.PaidDate = nil
		p.Reference = ""
		p.Status = domain.PaymentPending
		if l.Status == domain.LeaseVoid {
			p.Status = domain.PaymentCancelled
		}
		p.UpdatedAt = reversal.CreatedAt
		if err := e.Repo.UpdatePaymentState(ctx, tx, p); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.PaymentUnpaid, "payment", p.ID, opts.ActorID, events.EventPayload{
			"lease_id":    l.ID,
			"reason":      opts.Reason,
			"reversed_id": original.ID,
			"reversal_id": reversal.ID,
		}); err != nil {
			return err
		}
		res = Settlement{Payment: p, Entry: reversal, Changed: true}
		return nil
	})
	if err != nil {
		metrics.ObserveSettlement("unpay", "error")
		return Settlement{}, err
	}
	metrics.ObserveSettlement("unpay", "ok")
	e.log().Info(ctx, "payment reversed", "payment_id", res.Payment.ID, "reversal_id", res.Entry.ID)
	return res, nil
}

// ListPayments returns a lease's schedule after checking the lease exists.
func (e Engine) ListPayments(ctx context.Context, leaseID string) ([]domain.Payment, error) {
	if _, err := e.Repo.GetLease(ctx, leaseID); err != nil {
		return nil, err
	}
	return e.Repo.ListPayments(ctx, leaseID)
}

// PaymentLedger returns every ledger entry of a payment, newest first.
func (e Engine) PaymentLedger(ctx context.Context, paymentID string) ([]domain.LedgerEntry, error) {
	if _, err := e.Repo.GetPayment(ctx, paymentID); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, fmt.Errorf("payment %s: %w", paymentID, err)
		}
		return nil, err
	}
	return e.Repo.ListLedgerEntries(ctx, repo.LedgerFilters{PaymentID: paymentID})
}
