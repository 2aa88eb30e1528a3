package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasekeeper/internal/db"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/migrate"
	"leasekeeper/internal/repo"
)

const ts = "2024-01-01T00:00:00Z"

func setup(t *testing.T) (repo.Repo, context.Context) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.NoError(t, migrate.Migrate(conn))
	r := repo.Repo{DB: conn}
	ctx := context.Background()
	require.NoError(t, r.InsertProperty(ctx, conn, domain.Property{ID: "prop-1", Name: "North 80", Acres: "80", CreatedAt: ts}))
	require.NoError(t, r.InsertFarmer(ctx, conn, domain.Farmer{ID: "farmer-1", Name: "Ada Field", CreatedAt: ts}))
	return r, ctx
}

func date(s string) time.Time {
	d, err := domain.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return d
}

func insertLease(t *testing.T, r repo.Repo, ctx context.Context, id string) domain.Lease {
	t.Helper()
	l := domain.Lease{
		ID:            id,
		Type:          "cash",
		PropertyID:    "prop-1",
		FarmerID:      "farmer-1",
		GrowingYear:   2024,
		StartDate:     date("2024-01-01"),
		EndDate:       date("2024-12-31"),
		RentAmount:    decimal.RequireFromString("12000.00"),
		RentFrequency: domain.FrequencyMonthly,
		Status:        domain.LeaseActive,
		CreatedAt:     ts,
		UpdatedAt:     ts,
	}
	require.NoError(t, r.InsertLease(ctx, r.DB, l))
	return l
}

func TestLeaseRoundTrip(t *testing.T) {
	r, ctx := setup(t)
	want := insertLease(t, r, ctx, "lease-1")

	got, err := r.GetLease(ctx, "lease-1")
	require.NoError(t, err)
	assert.True(t, want.RentAmount.Equal(got.RentAmount))
	assert.Equal(t, want.StartDate, got.StartDate)
	assert.Equal(t, want.EndDate, got.EndDate)
	assert.Equal(t, domain.FrequencyMonthly, got.RentFrequency)
	assert.Nil(t, got.RenewedFrom)

	_, err = r.GetLease(ctx, "missing")
	assert.ErrorIs(t, err, repo.ErrNotFound)

	require.NoError(t, r.UpdateLeaseStatus(ctx, r.DB, "lease-1", domain.LeaseVoid, ts))
	voided, err := r.ListLeases(ctx, repo.LeaseFilters{Status: domain.LeaseVoid})
	require.NoError(t, err)
	require.Len(t, voided, 1)

	counts, err := r.CountLeasesByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{domain.LeaseVoid: 1}, counts)
}

func TestExpiredActiveLeases(t *testing.T) {
	r, ctx := setup(t)
	insertLease(t, r, ctx, "lease-1")

	due, err := r.ListExpiredActiveTx(ctx, r.DB, date("2024-12-31"))
	require.NoError(t, err)
	assert.Empty(t, due)

	due, err = r.ListExpiredActiveTx(ctx, r.DB, date("2025-01-01"))
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "lease-1", due[0].ID)
}

func TestPaymentsCancelAndUpdate(t *testing.T) {
	r, ctx := setup(t)
	insertLease(t, r, ctx, "lease-1")
	for i := 1; i <= 3; i++ {
		require.NoError(t, r.InsertPayment(ctx, r.DB, domain.Payment{
			ID: "pay-" + string(rune('0'+i)), LeaseID: "lease-1", Sequence: i,
			Amount:  decimal.NewFromInt(1000),
			DueDate: date("2024-01-01").AddDate(0, i-1, 0),
			Status:  domain.PaymentPending, CreatedAt: ts, UpdatedAt: ts,
		}))
	}
	paidOn := date("2024-01-05")
	p, err := r.GetPayment(ctx, "pay-1")
	require.NoError(t, err)
	p.Paid, p.PaidDate, p.Status, p.Reference = true, &paidOn, domain.PaymentPaid, "chk-101"
	require.NoError(t, r.UpdatePaymentState(ctx, r.DB, p))

	n, err := r.CancelPendingPayments(ctx, r.DB, "lease-1", ts)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	list, err := r.ListPayments(ctx, "lease-1")
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, domain.PaymentPaid, list[0].Status)
	require.NotNil(t, list[0].PaidDate)
	assert.Equal(t, paidOn, *list[0].PaidDate)
	assert.Equal(t, "chk-101", list[0].Reference)
	assert.Equal(t, domain.PaymentCancelled, list[1].Status)
	assert.Equal(t, domain.PaymentCancelled, list[2].Status)
}

func TestSingleLiveRevenueEntryPerPayment(t *testing.T) {
	r, ctx := setup(t)
	insertLease(t, r, ctx, "lease-1")
	require.NoError(t, r.InsertPayment(ctx, r.DB, domain.Payment{
		ID: "pay-1", LeaseID: "lease-1", Sequence: 1, Amount: decimal.NewFromInt(1000),
		DueDate: date("2024-01-01"), Status: domain.PaymentPending, CreatedAt: ts, UpdatedAt: ts,
	}))
	entry := domain.LedgerEntry{
		ID: "le-1", LeaseID: "lease-1", PaymentID: "pay-1",
		EntryDate:   time.Date(2024, 1, 5, 14, 30, 0, 0, time.UTC),
		AccountCode: "4000", AccountName: "Lease Revenue", Description: "Lease payment #1 - North 80",
		Debit: decimal.Zero, Credit: decimal.NewFromInt(1000), EntryType: domain.EntryRevenue, CreatedAt: ts,
	}
	require.NoError(t, r.InsertLedgerEntry(ctx, r.DB, entry))

	dup := entry
	dup.ID = "le-2"
	require.Error(t, r.InsertLedgerEntry(ctx, r.DB, dup), "a second live revenue entry must be rejected")

	live, err := r.GetLiveRevenueEntryTx(ctx, r.DB, "pay-1")
	require.NoError(t, err)
	assert.Equal(t, "le-1", live.ID)
	assert.Equal(t, entry.EntryDate, live.EntryDate)
	assert.Equal(t, "1000.00", live.Credit.StringFixed(2))

	require.NoError(t, r.MarkLedgerEntryReversed(ctx, r.DB, "le-1"))
	_, err = r.GetLiveRevenueEntryTx(ctx, r.DB, "pay-1")
	assert.ErrorIs(t, err, repo.ErrNotFound)
	require.NoError(t, r.InsertLedgerEntry(ctx, r.DB, dup))

	all, err := r.ListLedgerEntries(ctx, repo.LedgerFilters{LeaseID: "lease-1"})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	live2, err := r.ListLedgerEntries(ctx, repo.LedgerFilters{LeaseID: "lease-1", LiveOnly: true})
	require.NoError(t, err)
	require.Len(t, live2, 1)
	assert.Equal(t, "le-2", live2[0].ID)
}

func TestAPIKeys(t *testing.T) {
	r, ctx := setup(t)
	hash := repo.HashAPIKey(" secret ")
	assert.Equal(t, repo.HashAPIKey("secret"), hash)
	require.NoError(t, r.InsertAPIKey(ctx, r.DB, domain.APIKey{ID: "k1", ActorID: "clerk", KeyHash: hash}))
	key, err := r.GetAPIKeyByHash(ctx, hash)
	require.NoError(t, err)
	assert.Equal(t, "clerk", key.ActorID)
	_, err = r.GetAPIKeyByHash(ctx, "nope")
	assert.ErrorIs(t, err, repo.ErrNotFound)
}
