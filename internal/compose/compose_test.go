package compose

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leasekeeper/internal/domain"
	"leasekeeper/internal/templates"
)

var now = time.Date(2024, 3, 5, 9, 30, 0, 0, time.UTC)

func sample() domain.LeaseCreationData {
	return domain.LeaseCreationData{
		LeaseID:       "L-42",
		PropertyName:  "North 80",
		FarmerName:    "Ada Field",
		GrowingYear:   2024,
		LeaseType:     "cash",
		StartDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:       time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		RentAmount:    decimal.RequireFromString("2500.50"),
		RentFrequency: domain.FrequencyMonthly,
	}
}

func TestComposeRentAmount(t *testing.T) {
	out, err := Compose("# Lease\nRent: {{rent_amount}}\n", sample(), now)
	require.NoError(t, err)
	assert.Contains(t, out, "Rent: 2500.5\n")
}

func TestComposeAllTokens(t *testing.T) {
	text := "# Lease\n{{lease_id}}|{{property_name}}|{{farmer_name}}|{{growing_year}}|{{lease_type}}|{{start_date}}|{{end_date}}|{{rent_amount}}|{{rent_frequency}}\n"
	out, err := Compose(text, sample(), now)
	require.NoError(t, err)
	assert.Contains(t, out, "L-42|North 80|Ada Field|2024|cash|2024-01-01|2024-12-31|2500.5|monthly\n")
}

func TestComposeHeaderAfterFirstHeading(t *testing.T) {
	text := "Preamble\n# Cash Rent\nBody\n# Second\n"
	out, err := Compose(text, sample(), now)
	require.NoError(t, err)
	want := "Preamble\n# Cash Rent\n\n" +
		"- Lease ID: L-42\n" +
		"- Property: North 80\n" +
		"- Farmer: Ada Field\n" +
		"- Created: 2024-03-05T09:30:00Z\n" +
		"- Growing Year: 2024\n" +
		"Body\n# Second\n"
	assert.Equal(t, want, out)
}

func TestComposeHeadingWithoutNewline(t *testing.T) {
	out, err := Compose("# Only", sample(), now)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# Only\n\n- Lease ID: L-42\n"))
}

func TestComposeDeterministic(t *testing.T) {
	text := "# Lease\n{{farmer_name}} farms {{property_name}} {{unknown}}\n"
	first, err := Compose(text, sample(), now)
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Compose(text, sample(), now)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestUnknownTokensPassThrough(t *testing.T) {
	out := Substitute("{{landlord_name}} and {{lease_id}} {{ lease_id }} {{unterminated", sample())
	assert.Equal(t, "{{landlord_name}} and L-42 {{ lease_id }} {{unterminated", out)
}

func TestAbsentValuesRenderEmpty(t *testing.T) {
	out := Substitute("[{{farmer_name}}][{{growing_year}}][{{start_date}}]", domain.LeaseCreationData{})
	assert.Equal(t, "[][][]", out)
}

func TestValuesAreNotRescanned(t *testing.T) {
	d := sample()
	d.FarmerName = "{{lease_id}}"
	out, err := Compose("# Lease\n{{farmer_name}}\n", d, now)
	require.NoError(t, err)
	assert.Contains(t, out, "\n{{lease_id}}\n")
	assert.Contains(t, out, "- Farmer: {{lease_id}}\n")
}

func TestComposeWithoutHeading(t *testing.T) {
	_, err := Compose("## Sub heading only\n{{lease_id}}\n", sample(), now)
	require.Error(t, err)
	assert.ErrorIs(t, err, templates.ErrInvalidTemplate)
}

func TestHeaderAnchorIgnoresSubstitutedHeadings(t *testing.T) {
	d := sample()
	d.FarmerName = "\n# Injected"
	out, err := Compose("Intro {{farmer_name}}\n# Cash Rent\nBody\n", d, now)
	require.NoError(t, err)
	assert.Contains(t, out, "# Cash Rent\n\n- Lease ID: L-42\n")
	assert.Contains(t, out, "# Injected\n# Cash Rent\n")
}
