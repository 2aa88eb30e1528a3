package leasekeepersdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal leasekeeper HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	// ActorID is sent as X-Actor-Id when no credentials are set. Servers only
	// honour it when legacy actor headers are allowed.
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults. baseURL includes the API base
// path, e.g. http://127.0.0.1:8080/v0.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

type Property struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Acres    string `json:"acres,omitempty"`
}

type Farmer struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Lease represents the API lease model. Amounts are decimal strings and
// dates are YYYY-MM-DD.
type Lease struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	PropertyID    string `json:"property_id"`
	FarmerID      string `json:"farmer_id"`
	GrowingYear   int    `json:"growing_year"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	RentAmount    string `json:"rent_amount"`
	RentFrequency string `json:"rent_frequency"`
	Status        string `json:"status"`
	AgreementFile string `json:"agreement_file,omitempty"`
	AgreementHash string `json:"agreement_hash,omitempty"`
	RenewedFrom   string `json:"renewed_from,omitempty"`
}

// NewLease holds the fields of a lease creation request.
type NewLease struct {
	ID            string `json:"id,omitempty"`
	Type          string `json:"type,omitempty"`
	PropertyID    string `json:"property_id"`
	FarmerID      string `json:"farmer_id"`
	GrowingYear   int    `json:"growing_year,omitempty"`
	StartDate     string `json:"start_date"`
	EndDate       string `json:"end_date"`
	RentAmount    string `json:"rent_amount"`
	RentFrequency string `json:"rent_frequency"`
	Template      string `json:"template,omitempty"`
	SkipAgreement bool   `json:"skip_agreement,omitempty"`
}

// Renewal overrides fields of a renewed lease. Empty fields are inherited.
type Renewal struct {
	StartDate     string `json:"start_date,omitempty"`
	EndDate       string `json:"end_date,omitempty"`
	TermMonths    int    `json:"term_months,omitempty"`
	RentAmount    string `json:"rent_amount,omitempty"`
	RentFrequency string `json:"rent_frequency,omitempty"`
	Template      string `json:"template,omitempty"`
}

type Payment struct {
	ID        string `json:"id"`
	LeaseID   string `json:"lease_id"`
	Sequence  int    `json:"sequence"`
	Amount    string `json:"amount"`
	DueDate   string `json:"due_date"`
	Paid      bool   `json:"paid"`
	PaidDate  string `json:"paid_date,omitempty"`
	Status    string `json:"status"`
	Reference string `json:"reference,omitempty"`
	Overdue   bool   `json:"overdue"`
}

type LedgerEntry struct {
	ID          string `json:"id"`
	LeaseID     string `json:"lease_id"`
	PaymentID   string `json:"payment_id,omitempty"`
	EntryDate   string `json:"entry_date"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Description string `json:"description"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	EntryType   string `json:"entry_type"`
	Reference   string `json:"reference,omitempty"`
	Reverses    string `json:"reverses,omitempty"`
	Reversed    bool   `json:"reversed"`
}

// Settlement is the result of a pay or unpay call. Changed is false when a
// pay call found the payment already paid.
type Settlement struct {
	Payment Payment     `json:"payment"`
	Entry   LedgerEntry `json:"entry"`
	Changed bool        `json:"changed"`
}

type Verification struct {
	LeaseID      string `json:"lease_id"`
	File         string `json:"file"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	OK           bool   `json:"ok"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

func (c *Client) CreateProperty(ctx context.Context, p Property) (Property, error) {
	var resp Property
	err := c.do(ctx, http.MethodPost, "properties", p, &resp)
	return resp, err
}

func (c *Client) CreateFarmer(ctx context.Context, f Farmer) (Farmer, error) {
	var resp Farmer
	err := c.do(ctx, http.MethodPost, "farmers", f, &resp)
	return resp, err
}

// CreateLease creates a lease with its payment schedule and agreement.
func (c *Client) CreateLease(ctx context.Context, l NewLease) (Lease, error) {
	var resp Lease
	err := c.do(ctx, http.MethodPost, "leases", l, &resp)
	return resp, err
}

func (c *Client) GetLease(ctx context.Context, id string) (Lease, error) {
	var resp Lease
	err := c.do(ctx, http.MethodGet, "leases/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListLeases returns leases, optionally filtered by status.
func (c *Client) ListLeases(ctx context.Context, status string) ([]Lease, error) {
	var resp struct {
		Items []Lease `json:"items"`
	}
	endpoint := "leases"
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) VoidLease(ctx context.Context, id, reason string) (Lease, error) {
	var resp Lease
	err := c.do(ctx, http.MethodPost, "leases/"+url.PathEscape(id)+"/void", map[string]any{"reason": reason}, &resp)
	return resp, err
}

func (c *Client) RenewLease(ctx context.Context, id string, r Renewal) (Lease, error) {
	var resp Lease
	err := c.do(ctx, http.MethodPost, "leases/"+url.PathEscape(id)+"/renew", r, &resp)
	return resp, err
}

// ListPayments returns the payment schedule of a lease.
func (c *Client) ListPayments(ctx context.Context, leaseID string) ([]Payment, error) {
	var resp struct {
		Items []Payment `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "leases/"+url.PathEscape(leaseID)+"/payments", nil, &resp)
	return resp.Items, err
}

// VerifyAgreement recomputes the agreement hash of a lease on the server.
func (c *Client) VerifyAgreement(ctx context.Context, leaseID string) (Verification, error) {
	var resp Verification
	err := c.do(ctx, http.MethodGet, "leases/"+url.PathEscape(leaseID)+"/verify", nil, &resp)
	return resp, err
}

// Pay marks a payment paid. An empty paidDate means today.
func (c *Client) Pay(ctx context.Context, paymentID, paidDate, reference string) (Settlement, error) {
	body := map[string]any{}
	if paidDate != "" {
		body["paid_date"] = paidDate
	}
	if reference != "" {
		body["reference"] = reference
	}
	var resp Settlement
	err := c.do(ctx, http.MethodPost, "payments/"+url.PathEscape(paymentID)+"/pay", body, &resp)
	return resp, err
}

func (c *Client) Unpay(ctx context.Context, paymentID, reason string) (Settlement, error) {
	var resp Settlement
	err := c.do(ctx, http.MethodPost, "payments/"+url.PathEscape(paymentID)+"/unpay", map[string]any{"reason": reason}, &resp)
	return resp, err
}

// ExportLedger returns the rendered ledger of a lease ("" for all leases).
func (c *Client) ExportLedger(ctx context.Context, leaseID, format string) ([]byte, error) {
	q := url.Values{}
	if format != "" {
		q.Set("format", format)
	}
	if leaseID != "" {
		q.Set("lease_id", leaseID)
	}
	endpoint := "ledger/export"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	return c.raw(ctx, endpoint)
}

func (c *Client) ExportLease(ctx context.Context, leaseID, format string) ([]byte, error) {
	endpoint := "leases/" + url.PathEscape(leaseID) + "/export"
	if format != "" {
		endpoint += "?format=" + url.QueryEscape(format)
	}
	return c.raw(ctx, endpoint)
}

// ListEvents returns audit events after the given cursor.
func (c *Client) ListEvents(ctx context.Context, entityID, cursor string, limit int) (PaginatedEvents, error) {
	q := url.Values{}
	if entityID != "" {
		q.Set("entity_id", entityID)
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	resp, err := c.send(ctx, method, endpoint, &buf, body != nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) raw(ctx context.Context, endpoint string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, endpoint, nil, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) send(ctx context.Context, method, endpoint string, body io.Reader, isJSON bool) (*http.Response, error) {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if isJSON {
		req.Header.Set("Content-Type", "application/json")
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	case c.ActorID != "":
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil {
			apiErr.Code = envelope.Error.Code
		}
		return nil, apiErr
	}
	return resp, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
