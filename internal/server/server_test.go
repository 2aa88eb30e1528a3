package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"leasekeeper/internal/agreement"
	"leasekeeper/internal/config"
	"leasekeeper/internal/db"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/migrate"
	"leasekeeper/internal/repo"
	"leasekeeper/internal/templates"
)

const testSecret = "test-secret"

type testServer struct {
	URL    string
	Engine engine.Engine
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	cfg := config.Default()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	tpl := templates.New(workspace)
	if _, err := tpl.Seed(templates.Defaults()); err != nil {
		t.Fatalf("seed templates: %v", err)
	}
	now := func() time.Time { return time.Date(2024, 3, 15, 9, 0, 0, 0, time.UTC) }
	factory := agreement.NewFactory(tpl, nil)
	factory.Now = now
	e := engine.New(conn, cfg, factory, nil)
	e.Now = now
	handler, err := New(Config{
		Engine:   e,
		BasePath: "/v0",
		Auth:     AuthConfig{JWTSecret: testSecret, AllowLegacyActorHeader: true},
	})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		Engine: e,
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

var asTester = map[string]string{"X-Actor-Id": "tester"}

func doJSON(t *testing.T, client *http.Client, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

// seedLease creates a property, a farmer and a quarterly lease over the API.
func seedLease(t *testing.T, srv *testServer) LeaseResponse {
	t.Helper()
	client := srv.Client()
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/properties", map[string]any{"name": "North 80"}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create property: %d %s", res.StatusCode, string(data))
	}
	var prop domain.Property
	_ = json.Unmarshal(data, &prop)
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/farmers", map[string]any{"name": "Ada Field"}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create farmer: %d %s", res.StatusCode, string(data))
	}
	var farmer domain.Farmer
	_ = json.Unmarshal(data, &farmer)

	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/leases", map[string]any{
		"property_id":    prop.ID,
		"farmer_id":      farmer.ID,
		"start_date":     "2024-01-01",
		"end_date":       "2024-12-31",
		"rent_amount":    "10000.00",
		"rent_frequency": "quarterly",
	}, asTester)
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create lease: %d %s", res.StatusCode, string(data))
	}
	var lease LeaseResponse
	if err := json.Unmarshal(data, &lease); err != nil {
		t.Fatalf("unmarshal lease: %v", err)
	}
	return lease
}

func listPayments(t *testing.T, srv *testServer, leaseID string) []PaymentResponse {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/leases/"+leaseID+"/payments", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list payments: %d %s", res.StatusCode, string(data))
	}
	var out struct {
		Items []PaymentResponse `json:"items"`
	}
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("unmarshal payments: %v", err)
	}
	return out.Items
}

func TestCreateLeaseOverAPI(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	if lease.Status != "active" || lease.RentAmount != "10000.00" || lease.GrowingYear != 2024 {
		t.Fatalf("unexpected lease %+v", lease)
	}
	if !strings.HasPrefix(lease.AgreementFile, "2024-03-15_Cash_Rent_"+lease.ID+"_") {
		t.Fatalf("unexpected agreement file %q", lease.AgreementFile)
	}
	payments := listPayments(t, srv, lease.ID)
	if len(payments) != 4 || payments[0].Amount != "2500.00" || payments[3].DueDate != "2024-10-01" {
		t.Fatalf("unexpected schedule %+v", payments)
	}
	if !payments[0].Overdue || payments[3].Overdue {
		t.Fatalf("overdue flags wrong: %+v", payments)
	}
}

func TestPayIsIdempotent(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	payment := listPayments(t, srv, lease.ID)[0]
	client := srv.Client()

	url := srv.URL + "/v0/payments/" + payment.ID + "/pay"
	res, data := doJSON(t, client, http.MethodPost, url, map[string]any{"paid_date": "2024-01-05", "reference": "chk-1"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("pay: %d %s", res.StatusCode, string(data))
	}
	var first SettlementResponse
	_ = json.Unmarshal(data, &first)
	if !first.Changed || !first.Payment.Paid || first.Entry.Credit != "2500.00" || first.Entry.Debit != "0.00" {
		t.Fatalf("unexpected settlement %+v", first)
	}

	res, data = doJSON(t, client, http.MethodPost, url, map[string]any{"paid_date": "2024-02-05"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("second pay: %d %s", res.StatusCode, string(data))
	}
	var second SettlementResponse
	_ = json.Unmarshal(data, &second)
	if second.Changed || second.Entry.ID != first.Entry.ID || second.Payment.PaidDate != "2024-01-05" {
		t.Fatalf("second pay must be a no-op, got %+v", second)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/payments/"+payment.ID+"/ledger", nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ledger: %d %s", res.StatusCode, string(data))
	}
	var ledger struct {
		Items []LedgerEntryResponse `json:"items"`
	}
	_ = json.Unmarshal(data, &ledger)
	if len(ledger.Items) != 1 {
		t.Fatalf("expected one ledger entry, got %d", len(ledger.Items))
	}
}

func TestErrorMapping(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	payment := listPayments(t, srv, lease.ID)[0]
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/payments/"+payment.ID+"/pay", map[string]any{"paid_date": "2023-12-01"}, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(data), "paid_before_start") {
		t.Fatalf("expected 422 paid_before_start, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases/missing", nil, asTester)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/leases", map[string]any{
		"property_id":    "x",
		"farmer_id":      "y",
		"start_date":     "2024-01-01",
		"end_date":       "2024-12-31",
		"rent_amount":    "100",
		"rent_frequency": "monthly",
		"template":       "Pasture",
		"skip_agreement": false,
	}, asTester)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown property, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/leases/"+lease.ID+"/void", map[string]any{"reason": "sold"}, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("void: %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/leases/"+lease.ID+"/void", nil, asTester)
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 on second void, got %d %s", res.StatusCode, string(data))
	}
	res, data = doJSON(t, client, http.MethodPost, srv.URL+"/v0/payments/"+payment.ID+"/pay", nil, asTester)
	if res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(data), "payment_cancelled") {
		t.Fatalf("expected 422 payment_cancelled, got %d %s", res.StatusCode, string(data))
	}
}

func TestVerifyDetectsTampering(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	client := srv.Client()

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases/"+lease.ID+"/verify", nil, asTester)
	var ok VerifyResponse
	_ = json.Unmarshal(data, &ok)
	if res.StatusCode != http.StatusOK || !ok.OK {
		t.Fatalf("expected verified agreement, got %d %s", res.StatusCode, string(data))
	}

	stored, err := srv.Engine.Repo.GetLease(context.Background(), lease.ID)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stored.AgreementPath, []byte("rewritten"), 0o644); err != nil {
		t.Fatal(err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases/"+lease.ID+"/verify", nil, asTester)
	var bad VerifyResponse
	_ = json.Unmarshal(data, &bad)
	if res.StatusCode != http.StatusOK || bad.OK || bad.ActualHash == bad.ExpectedHash {
		t.Fatalf("expected mismatch, got %d %s", res.StatusCode, string(data))
	}
}

func TestExportEndpoints(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	payment := listPayments(t, srv, lease.ID)[0]
	client := srv.Client()
	doJSON(t, client, http.MethodPost, srv.URL+"/v0/payments/"+payment.ID+"/pay", map[string]any{"paid_date": "2024-01-02"}, asTester)

	res, data := doJSON(t, client, http.MethodGet, srv.URL+"/v0/ledger/export?format=csv&lease_id="+lease.ID, nil, asTester)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("ledger export: %d %s", res.StatusCode, string(data))
	}
	if !strings.HasPrefix(res.Header.Get("Content-Type"), "text/csv") {
		t.Fatalf("unexpected content type %q", res.Header.Get("Content-Type"))
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 || !strings.Contains(lines[1], `"Lease payment #1 - North 80"`) {
		t.Fatalf("unexpected csv:\n%s", data)
	}

	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases/"+lease.ID+"/export", nil, asTester)
	if res.StatusCode != http.StatusOK || !strings.HasPrefix(string(data), "# Lease "+lease.ID) {
		t.Fatalf("lease export: %d %s", res.StatusCode, string(data))
	}
}

func TestAuthentication(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	client := srv.Client()

	res, _ := doJSON(t, client, http.MethodGet, srv.URL+"/v0/health", nil, nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("health must be public, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases", nil, nil)
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without credentials, got %d", res.StatusCode)
	}
	res, _ = doJSON(t, client, http.MethodGet, srv.URL+"/v0/leases", nil, map[string]string{"Authorization": "Bearer nope"})
	if res.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a bad token, got %d", res.StatusCode)
	}

	token, err := SignToken(testSecret, "jwt-actor", time.Hour)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	res, data := doJSON(t, client, http.MethodPost, srv.URL+"/v0/farmers", map[string]any{"name": "Bo"}, map[string]string{"Authorization": "Bearer " + token})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("jwt create farmer: %d %s", res.StatusCode, string(data))
	}

	key := domain.APIKey{ID: "key-1", ActorID: "key-actor", KeyHash: repo.HashAPIKey("s3cret")}
	if err := srv.Engine.Repo.InsertAPIKey(context.Background(), srv.Engine.DB, key); err != nil {
		t.Fatalf("insert api key: %v", err)
	}
	res, data = doJSON(t, client, http.MethodGet, srv.URL+"/v0/events?entity_id=", nil, map[string]string{"X-Api-Key": "s3cret"})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("api key list events: %d %s", res.StatusCode, string(data))
	}
	var events paginatedEvents
	_ = json.Unmarshal(data, &events)
	if len(events.Items) != 1 || events.Items[0].ActorID != "jwt-actor" || events.Items[0].Type != "farmer.created" {
		t.Fatalf("unexpected events %+v", events.Items)
	}
}

func TestCreateLeaseRejectsUnsafeInput(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	lease := seedLease(t, srv)
	base := map[string]any{
		"property_id":    lease.PropertyID,
		"farmer_id":      lease.FarmerID,
		"start_date":     "2025-01-01",
		"end_date":       "2025-12-31",
		"rent_amount":    "500.00",
		"rent_frequency": "annual",
	}
	cases := map[string]map[string]any{
		"lease id with separators": {"id": "x/../../../../escaped"},
		"template outside tier":    {"template": "../Templates/Cash_Rent"},
		"sub-cent rent":            {"rent_amount": "10.001"},
	}
	for name, override := range cases {
		body := map[string]any{}
		for k, v := range base {
			body[k] = v
		}
		for k, v := range override {
			body[k] = v
		}
		res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/leases", body, asTester)
		if res.StatusCode != http.StatusBadRequest || !strings.Contains(string(data), "bad_request") {
			t.Fatalf("%s: expected 400 bad_request, got %d %s", name, res.StatusCode, string(data))
		}
	}
}

func TestOpenAPIConcurrentFirstRequests(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	const n = 8
	bodies := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := srv.Client().Get(srv.URL + "/v0/openapi.json")
			if err != nil {
				errs[i] = err
				return
			}
			defer res.Body.Close()
			b, err := io.ReadAll(res.Body)
			errs[i] = err
			bodies[i] = string(b)
		}(i)
	}
	wg.Wait()
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("request %d: %v", i, errs[i])
		}
		if bodies[i] == "" || bodies[i] != bodies[0] {
			t.Fatalf("request %d returned a different document", i)
		}
	}
	if !strings.Contains(bodies[0], "bearerAuth") && !strings.Contains(bodies[0], "securitySchemes") {
		t.Fatalf("openapi document lacks security schemes")
	}
}
