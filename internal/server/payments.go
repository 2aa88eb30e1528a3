package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"leasekeeper/internal/engine"
	"leasekeeper/internal/export"
	"leasekeeper/internal/repo"
)

type settlementOutput struct {
	Body SettlementResponse `json:"body"`
}

func registerPayments(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "pay-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/pay",
		Summary:     "Mark a payment paid",
		Description: "Settles the payment and posts its revenue ledger entry. Repeating the call returns the existing settlement with changed=false.",
		Errors:      leaseErrors,
	}, func(ctx context.Context, input *struct {
		PaymentID string      `path:"payment_id"`
		Body      *PayRequest `json:"body,omitempty" required:"false"`
	}) (*settlementOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req := PayRequest{}
		if input.Body != nil {
			req = *input.Body
		}
		paidOn, herr := parseDate("paid_date", req.PaidDate)
		if herr != nil {
			return nil, herr
		}
		res, err := e.MarkPaid(ctx, engine.MarkPaidOptions{
			PaymentID: input.PaymentID,
			PaidDate:  paidOn,
			Reference: req.Reference,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &settlementOutput{Body: settlementResponse(res, e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "unpay-payment",
		Method:      http.MethodPost,
		Path:        "/payments/{payment_id}/unpay",
		Summary:     "Reverse a payment",
		Description: "Returns a paid payment to pending and posts a reversal entry against its revenue entry.",
		Errors:      leaseErrors,
	}, func(ctx context.Context, input *struct {
		PaymentID string        `path:"payment_id"`
		Body      *UnpayRequest `json:"body,omitempty" required:"false"`
	}) (*settlementOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		res, err := e.UnmarkPaid(ctx, engine.UnmarkPaidOptions{
			PaymentID: input.PaymentID,
			Reason:    reason,
			ActorID:   actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &settlementOutput{Body: settlementResponse(res, e)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "payment-ledger",
		Method:      http.MethodGet,
		Path:        "/payments/{payment_id}/ledger",
		Summary:     "List the ledger entries of a payment",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		PaymentID string `path:"payment_id"`
	}) (*struct {
		Body struct {
			Items []LedgerEntryResponse `json:"items"`
		} `json:"body"`
	}, error) {
		entries, err := e.PaymentLedger(ctx, input.PaymentID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []LedgerEntryResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = make([]LedgerEntryResponse, 0, len(entries))
		for _, le := range entries {
			out.Body.Items = append(out.Body.Items, ledgerEntryResponse(le))
		}
		return out, nil
	})
}

func registerLedger(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "export-ledger",
		Method:      http.MethodGet,
		Path:        "/ledger/export",
		Summary:     "Export ledger entries",
		Description: "Markdown groups entries by local day, newest first. CSV quotes every text field.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Format    string `query:"format" enum:"markdown,md,csv" default:"markdown"`
		LeaseID   string `query:"lease_id"`
		PaymentID string `query:"payment_id"`
		From      string `query:"from" format:"date"`
		To        string `query:"to" format:"date"`
		LiveOnly  bool   `query:"live_only"`
	}) (*documentOutput, error) {
		format, err := export.ParseFormat(input.Format)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		from, herr := parseDate("from", input.From)
		if herr != nil {
			return nil, herr
		}
		to, herr := parseDate("to", input.To)
		if herr != nil {
			return nil, herr
		}
		if !to.IsZero() {
			to = to.AddDate(0, 0, 1).Add(-1)
		}
		out, err := e.ExportLedger(ctx, repo.LedgerFilters{
			LeaseID:   input.LeaseID,
			PaymentID: input.PaymentID,
			From:      from,
			To:        to,
			LiveOnly:  input.LiveOnly,
		}, format)
		if err != nil {
			return nil, handleError(err)
		}
		return &documentOutput{ContentType: format.ContentType(), Body: out}, nil
	})
}
