package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the storage and wire format for calendar dates.
const DateLayout = "2006-01-02"

type RentFrequency string

const (
	FrequencyMonthly    RentFrequency = "monthly"
	FrequencyQuarterly  RentFrequency = "quarterly"
	FrequencySemiAnnual RentFrequency = "semi-annual"
	FrequencyAnnual     RentFrequency = "annual"
)

const (
	LeaseActive  = "active"
	LeaseVoid    = "void"
	LeaseExpired = "expired"
)

const (
	PaymentPending   = "pending"
	PaymentPaid      = "paid"
	PaymentCancelled = "cancelled"
)

const (
	EntryRevenue  = "revenue"
	EntryReversal = "reversal"
)

type Property struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Location  string `json:"location,omitempty"`
	Acres     string `json:"acres,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Farmer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Lease struct {
	ID            string          `json:"id"`
	Type          string          `json:"type"`
	PropertyID    string          `json:"property_id"`
	FarmerID      string          `json:"farmer_id"`
	GrowingYear   int             `json:"growing_year"`
	StartDate     time.Time       `json:"start_date" format:"date"`
	EndDate       time.Time       `json:"end_date" format:"date"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	RentFrequency RentFrequency   `json:"rent_frequency" enum:"monthly,quarterly,semi-annual,annual"`
	Status        string          `json:"status" enum:"active,void,expired"`
	AgreementPath string          `json:"agreement_path,omitempty"`
	AgreementHash string          `json:"agreement_hash,omitempty"`
	RenewedFrom   *string         `json:"renewed_from,omitempty"`
	CreatedAt     string          `json:"created_at" format:"date-time"`
	UpdatedAt     string          `json:"updated_at" format:"date-time"`
}

type Payment struct {
	ID        string          `json:"id"`
	LeaseID   string          `json:"lease_id"`
	Sequence  int             `json:"sequence"`
	Amount    decimal.Decimal `json:"amount"`
	DueDate   time.Time       `json:"due_date" format:"date"`
	Paid      bool            `json:"paid"`
	PaidDate  *time.Time      `json:"paid_date,omitempty" format:"date"`
	Status    string          `json:"status" enum:"pending,paid,cancelled"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt string          `json:"created_at" format:"date-time"`
	UpdatedAt string          `json:"updated_at" format:"date-time"`
}

// Overdue reports whether an unpaid, non-cancelled payment is past due on asOf.
func (p Payment) Overdue(asOf time.Time) bool {
	if p.Paid || p.Status == PaymentCancelled {
		return false
	}
	return p.DueDate.Before(truncateDay(asOf))
}

type LedgerEntry struct {
	ID          string          `json:"id"`
	LeaseID     string          `json:"lease_id"`
	PaymentID   string          `json:"payment_id,omitempty"`
	EntryDate   time.Time       `json:"entry_date" format:"date-time"`
	AccountCode string          `json:"account_code"`
	AccountName string          `json:"account_name"`
	Description string          `json:"description"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	EntryType   string          `json:"entry_type" enum:"revenue,reversal"`
	Reference   string          `json:"reference,omitempty"`
	Vendor      string          `json:"vendor,omitempty"`
	Reconciled  bool            `json:"reconciled"`
	Approved    bool            `json:"approved"`
	Reverses    *string         `json:"reverses,omitempty"`
	Reversed    bool            `json:"reversed"`
	CreatedAt   string          `json:"created_at" format:"date-time"`
}

// LeaseCreationData is the value bag substituted into agreement templates.
type LeaseCreationData struct {
	LeaseID       string          `json:"lease_id"`
	PropertyName  string          `json:"property_name"`
	FarmerName    string          `json:"farmer_name"`
	GrowingYear   int             `json:"growing_year"`
	LeaseType     string          `json:"lease_type"`
	StartDate     time.Time       `json:"start_date" format:"date"`
	EndDate       time.Time       `json:"end_date" format:"date"`
	RentAmount    decimal.Decimal `json:"rent_amount"`
	RentFrequency RentFrequency   `json:"rent_frequency"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string as a UTC calendar date.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, time.UTC)
}
