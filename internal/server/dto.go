package server

import (
	"encoding/json"
	"path/filepath"
	"time"

	"leasekeeper/internal/agreement"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
)

// Request payloads

type CreatePropertyRequest struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"name"`
	Location string `json:"location,omitempty"`
	Acres    string `json:"acres,omitempty" example:"80.5"`
}

type CreateFarmerRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

type CreateLeaseRequest struct {
	ID            string `json:"id,omitempty"`
	Type          string `json:"type,omitempty" example:"cash"`
	PropertyID    string `json:"property_id"`
	FarmerID      string `json:"farmer_id"`
	GrowingYear   int    `json:"growing_year,omitempty"`
	StartDate     string `json:"start_date" format:"date"`
	EndDate       string `json:"end_date" format:"date"`
	RentAmount    string `json:"rent_amount" example:"12000.00"`
	RentFrequency string `json:"rent_frequency" enum:"monthly,quarterly,semi-annual,annual"`
	Template      string `json:"template,omitempty" example:"Cash_Rent"`
	SkipAgreement bool   `json:"skip_agreement,omitempty"`
}

type RenewLeaseRequest struct {
	ID            string `json:"id,omitempty"`
	StartDate     string `json:"start_date,omitempty" format:"date"`
	EndDate       string `json:"end_date,omitempty" format:"date"`
	TermMonths    int    `json:"term_months,omitempty"`
	RentAmount    string `json:"rent_amount,omitempty"`
	RentFrequency string `json:"rent_frequency,omitempty" enum:"monthly,quarterly,semi-annual,annual"`
	Template      string `json:"template,omitempty"`
	SkipAgreement bool   `json:"skip_agreement,omitempty"`
}

type VoidLeaseRequest struct {
	Reason string `json:"reason,omitempty"`
}

type PayRequest struct {
	PaidDate  string `json:"paid_date,omitempty" format:"date"`
	Reference string `json:"reference,omitempty"`
}

type UnpayRequest struct {
	Reason string `json:"reason,omitempty"`
}

// Response payloads

type LeaseResponse struct {
	ID            string `json:"id"`
	Type          string `json:"type"`
	PropertyID    string `json:"property_id"`
	FarmerID      string `json:"farmer_id"`
	GrowingYear   int    `json:"growing_year"`
	StartDate     string `json:"start_date" format:"date"`
	EndDate       string `json:"end_date" format:"date"`
	RentAmount    string `json:"rent_amount"`
	RentFrequency string `json:"rent_frequency" enum:"monthly,quarterly,semi-annual,annual"`
	Status        string `json:"status" enum:"active,void,expired"`
	AgreementFile string `json:"agreement_file,omitempty"`
	AgreementHash string `json:"agreement_hash,omitempty"`
	RenewedFrom   string `json:"renewed_from,omitempty"`
	CreatedAt     string `json:"created_at" format:"date-time"`
	UpdatedAt     string `json:"updated_at" format:"date-time"`
}

type PaymentResponse struct {
	ID        string `json:"id"`
	LeaseID   string `json:"lease_id"`
	Sequence  int    `json:"sequence"`
	Amount    string `json:"amount"`
	DueDate   string `json:"due_date" format:"date"`
	Paid      bool   `json:"paid"`
	PaidDate  string `json:"paid_date,omitempty" format:"date"`
	Status    string `json:"status" enum:"pending,paid,cancelled"`
	Reference string `json:"reference,omitempty"`
	Overdue   bool   `json:"overdue"`
}

type LedgerEntryResponse struct {
	ID          string `json:"id"`
	LeaseID     string `json:"lease_id"`
	PaymentID   string `json:"payment_id,omitempty"`
	EntryDate   string `json:"entry_date" format:"date-time"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Description string `json:"description"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	EntryType   string `json:"entry_type" enum:"revenue,reversal"`
	Reference   string `json:"reference,omitempty"`
	Vendor      string `json:"vendor,omitempty"`
	Approved    bool   `json:"approved"`
	Reverses    string `json:"reverses,omitempty"`
	Reversed    bool   `json:"reversed"`
}

type SettlementResponse struct {
	Payment PaymentResponse     `json:"payment"`
	Entry   LedgerEntryResponse `json:"entry"`
	Changed bool                `json:"changed"`
}

type VerifyResponse struct {
	LeaseID      string `json:"lease_id"`
	File         string `json:"file"`
	ExpectedHash string `json:"expected_hash"`
	ActualHash   string `json:"actual_hash"`
	OK           bool   `json:"ok"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts" format:"date-time"`
	Type       string         `json:"type"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload,omitempty"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

func leaseResponse(l domain.Lease) LeaseResponse {
	resp := LeaseResponse{
		ID:            l.ID,
		Type:          l.Type,
		PropertyID:    l.PropertyID,
		FarmerID:      l.FarmerID,
		GrowingYear:   l.GrowingYear,
		StartDate:     l.StartDate.Format(domain.DateLayout),
		EndDate:       l.EndDate.Format(domain.DateLayout),
		RentAmount:    l.RentAmount.StringFixed(2),
		RentFrequency: string(l.RentFrequency),
		Status:        l.Status,
		AgreementHash: l.AgreementHash,
		RenewedFrom:   strPtrValue(l.RenewedFrom),
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
	}
	if l.AgreementPath != "" {
		resp.AgreementFile = filepath.Base(l.AgreementPath)
	}
	return resp
}

func paymentResponse(p domain.Payment, e engine.Engine) PaymentResponse {
	resp := PaymentResponse{
		ID:        p.ID,
		LeaseID:   p.LeaseID,
		Sequence:  p.Sequence,
		Amount:    p.Amount.StringFixed(2),
		DueDate:   p.DueDate.Format(domain.DateLayout),
		Paid:      p.Paid,
		Status:    p.Status,
		Reference: p.Reference,
		Overdue:   p.Overdue(e.Clock()),
	}
	if p.PaidDate != nil {
		resp.PaidDate = p.PaidDate.Format(domain.DateLayout)
	}
	return resp
}

func ledgerEntryResponse(le domain.LedgerEntry) LedgerEntryResponse {
	return LedgerEntryResponse{
		ID:          le.ID,
		LeaseID:     le.LeaseID,
		PaymentID:   le.PaymentID,
		EntryDate:   le.EntryDate.UTC().Format(time.RFC3339),
		AccountCode: le.AccountCode,
		AccountName: le.AccountName,
		Description: le.Description,
		Debit:       le.Debit.StringFixed(2),
		Credit:      le.Credit.StringFixed(2),
		EntryType:   le.EntryType,
		Reference:   le.Reference,
		Vendor:      le.Vendor,
		Approved:    le.Approved,
		Reverses:    strPtrValue(le.Reverses),
		Reversed:    le.Reversed,
	}
}

func settlementResponse(s engine.Settlement, e engine.Engine) SettlementResponse {
	return SettlementResponse{
		Payment: paymentResponse(s.Payment, e),
		Entry:   ledgerEntryResponse(s.Entry),
		Changed: s.Changed,
	}
}

func verifyResponse(leaseID, expected string, info agreement.Info) VerifyResponse {
	return VerifyResponse{
		LeaseID:      leaseID,
		File:         info.FileName,
		ExpectedHash: expected,
		ActualHash:   info.Hash,
		OK:           info.Hash != "" && info.Hash == expected,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func mapLeases(items []domain.Lease) []LeaseResponse {
	out := make([]LeaseResponse, 0, len(items))
	for _, l := range items {
		out = append(out, leaseResponse(l))
	}
	return out
}

func mapPayments(items []domain.Payment, e engine.Engine) []PaymentResponse {
	out := make([]PaymentResponse, 0, len(items))
	for _, p := range items {
		out = append(out, paymentResponse(p, e))
	}
	return out
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return map[string]any{"raw": raw}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}

func strPtrValue(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
