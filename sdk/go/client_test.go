package leasekeepersdk

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasekeeper/internal/app"
	"leasekeeper/internal/server"
)

func newClient(t *testing.T) *Client {
	t.Helper()
	ws, err := app.Open(context.Background(), t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	handler, err := server.New(server.Config{
		Engine:   ws.Engine,
		BasePath: "/v0",
		Auth:     server.AuthConfig{AllowLegacyActorHeader: true},
	})
	require.NoError(t, err)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c := New(srv.URL + "/v0")
	c.ActorID = "sdk-user"
	return c
}

func TestLeaseRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	prop, err := c.CreateProperty(ctx, Property{Name: "South 40", Acres: "40"})
	require.NoError(t, err)
	farmer, err := c.CreateFarmer(ctx, Farmer{Name: "Ben Row"})
	require.NoError(t, err)

	lease, err := c.CreateLease(ctx, NewLease{
		PropertyID:    prop.ID,
		FarmerID:      farmer.ID,
		StartDate:     "2025-03-01",
		EndDate:       "2026-02-28",
		RentAmount:    "6000",
		RentFrequency: "semi-annual",
		Template:      "Flex_Rent",
	})
	require.NoError(t, err)
	assert.Equal(t, "active", lease.Status)
	assert.Contains(t, lease.AgreementFile, "_Flex_Rent_"+lease.ID+"_")

	payments, err := c.ListPayments(ctx, lease.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, "2025-09-01", payments[1].DueDate)
	assert.Equal(t, "3000.00", payments[1].Amount)

	paid, err := c.Pay(ctx, payments[0].ID, "2025-03-02", "ach-9")
	require.NoError(t, err)
	assert.True(t, paid.Changed)
	again, err := c.Pay(ctx, payments[0].ID, "", "")
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Equal(t, paid.Entry.ID, again.Entry.ID)

	reversed, err := c.Unpay(ctx, payments[0].ID, "bounced")
	require.NoError(t, err)
	assert.Equal(t, "reversal", reversed.Entry.EntryType)
	assert.Equal(t, paid.Entry.ID, reversed.Entry.Reverses)

	v, err := c.VerifyAgreement(ctx, lease.ID)
	require.NoError(t, err)
	assert.True(t, v.OK)

	csv, err := c.ExportLedger(ctx, lease.ID, "csv")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(csv)), "\n"), 3)

	md, err := c.ExportLease(ctx, lease.ID, "md")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(md), "# Lease "+lease.ID))

	renewed, err := c.RenewLease(ctx, lease.ID, Renewal{RentAmount: "6500"})
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01", renewed.StartDate)
	assert.Equal(t, "2027-02-28", renewed.EndDate)
	assert.Equal(t, lease.ID, renewed.RenewedFrom)

	expired, err := c.ListLeases(ctx, "expired")
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, lease.ID, expired[0].ID)

	events, err := c.ListEvents(ctx, lease.ID, "", 0)
	require.NoError(t, err)
	require.NotEmpty(t, events.Items)
	assert.Equal(t, "lease.created", events.Items[0].Type)
	assert.Equal(t, "sdk-user", events.Items[0].ActorID)
}

func TestAPIErrors(t *testing.T) {
	ctx := context.Background()
	c := newClient(t)

	_, err := c.GetLease(ctx, "missing")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "not_found", apiErr.Code)

	c.ActorID = ""
	_, err = c.ListLeases(ctx, "")
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
}
