package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"leasekeeper/internal/audit"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/export"
	"leasekeeper/internal/repo"
)

type leasePath struct {
	LeaseID string `path:"lease_id"`
}

type leaseOutput struct {
	Body LeaseResponse `json:"body"`
}

// documentOutput carries a rendered export verbatim.
type documentOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

var leaseErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusUnprocessableEntity,
	http.StatusInternalServerError,
}

func registerLeases(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-lease",
		Method:        http.MethodPost,
		Path:          "/leases",
		Summary:       "Create lease",
		Description:   "Stores the lease with its payment schedule and writes the completed agreement.",
		DefaultStatus: http.StatusCreated,
		Errors:        leaseErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateLeaseRequest `json:"body"`
	}) (*leaseOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		start, herr := parseDate("start_date", input.Body.StartDate)
		if herr != nil {
			return nil, herr
		}
		end, herr := parseDate("end_date", input.Body.EndDate)
		if herr != nil {
			return nil, herr
		}
		rent, herr := parseAmount("rent_amount", input.Body.RentAmount)
		if herr != nil {
			return nil, herr
		}
		if rent == nil {
			return nil, badRequest("rent_amount is required")
		}
		l, err := e.CreateLease(ctx, engine.LeaseCreateOptions{
			ID:            input.Body.ID,
			Type:          input.Body.Type,
			PropertyID:    input.Body.PropertyID,
			FarmerID:      input.Body.FarmerID,
			GrowingYear:   input.Body.GrowingYear,
			StartDate:     start,
			EndDate:       end,
			RentAmount:    *rent,
			RentFrequency: domain.RentFrequency(input.Body.RentFrequency),
			Template:      input.Body.Template,
			SkipAgreement: input.Body.SkipAgreement,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &leaseOutput{Body: leaseResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-leases",
		Method:      http.MethodGet,
		Path:        "/leases",
		Summary:     "List leases",
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status" enum:"active,void,expired"`
		PropertyID string `query:"property_id"`
		FarmerID   string `query:"farmer_id"`
	}) (*struct {
		Body struct {
			Items []LeaseResponse `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.Repo.ListLeases(ctx, repo.LeaseFilters{
			Status:     input.Status,
			PropertyID: input.PropertyID,
			FarmerID:   input.FarmerID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []LeaseResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapLeases(items)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-lease",
		Method:      http.MethodGet,
		Path:        "/leases/{lease_id}",
		Summary:     "Get lease",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *leasePath) (*leaseOutput, error) {
		l, err := e.Repo.GetLease(ctx, input.LeaseID)
		if err != nil {
			return nil, handleError(err)
		}
		return &leaseOutput{Body: leaseResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "void-lease",
		Method:      http.MethodPost,
		Path:        "/leases/{lease_id}/void",
		Summary:     "Void lease",
		Description: "Marks an active lease void and cancels its pending payments.",
		Errors:      leaseErrors,
	}, func(ctx context.Context, input *struct {
		LeaseID string            `path:"lease_id"`
		Body    *VoidLeaseRequest `json:"body,omitempty" required:"false"`
	}) (*leaseOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		reason := ""
		if input.Body != nil {
			reason = input.Body.Reason
		}
		l, err := e.VoidLease(ctx, input.LeaseID, reason, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &leaseOutput{Body: leaseResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "renew-lease",
		Method:        http.MethodPost,
		Path:          "/leases/{lease_id}/renew",
		Summary:       "Renew lease",
		Description:   "Starts the next term of a lease. Omitted fields are inherited.",
		DefaultStatus: http.StatusCreated,
		Errors:        leaseErrors,
	}, func(ctx context.Context, input *struct {
		LeaseID string             `path:"lease_id"`
		Body    *RenewLeaseRequest `json:"body,omitempty" required:"false"`
	}) (*leaseOutput, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		req := RenewLeaseRequest{}
		if input.Body != nil {
			req = *input.Body
		}
		start, herr := parseDate("start_date", req.StartDate)
		if herr != nil {
			return nil, herr
		}
		end, herr := parseDate("end_date", req.EndDate)
		if herr != nil {
			return nil, herr
		}
		var rent *decimal.Decimal
		if rent, herr = parseAmount("rent_amount", req.RentAmount); herr != nil {
			return nil, herr
		}
		l, err := e.RenewLease(ctx, engine.LeaseRenewOptions{
			LeaseID:       input.LeaseID,
			ID:            req.ID,
			StartDate:     start,
			EndDate:       end,
			TermMonths:    req.TermMonths,
			RentAmount:    rent,
			RentFrequency: domain.RentFrequency(req.RentFrequency),
			Template:      req.Template,
			SkipAgreement: req.SkipAgreement,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &leaseOutput{Body: leaseResponse(l)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-lease-payments",
		Method:      http.MethodGet,
		Path:        "/leases/{lease_id}/payments",
		Summary:     "List the payment schedule of a lease",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *leasePath) (*struct {
		Body struct {
			Items []PaymentResponse `json:"items"`
		} `json:"body"`
	}, error) {
		items, err := e.ListPayments(ctx, input.LeaseID)
		if err != nil {
			return nil, handleError(err)
		}
		out := &struct {
			Body struct {
				Items []PaymentResponse `json:"items"`
			} `json:"body"`
		}{}
		out.Body.Items = mapPayments(items, e)
		return out, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "verify-lease-agreement",
		Method:      http.MethodGet,
		Path:        "/leases/{lease_id}/verify",
		Summary:     "Verify the agreement hash of a lease",
		Description: "Recomputes the SHA-256 of the completed agreement. A tampered file yields ok=false.",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *leasePath) (*struct {
		Body VerifyResponse `json:"body"`
	}, error) {
		l, err := e.Repo.GetLease(ctx, input.LeaseID)
		if err != nil {
			return nil, handleError(err)
		}
		info, err := e.VerifyAgreement(ctx, l.ID)
		var mismatch *audit.MismatchError
		if err != nil && !errors.As(err, &mismatch) {
			return nil, handleError(err)
		}
		return &struct {
			Body VerifyResponse `json:"body"`
		}{Body: verifyResponse(l.ID, l.AgreementHash, info)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-lease",
		Method:      http.MethodGet,
		Path:        "/leases/{lease_id}/export",
		Summary:     "Export a lease summary and schedule",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		LeaseID string `path:"lease_id"`
		Format  string `query:"format" enum:"markdown,md,csv" default:"markdown"`
	}) (*documentOutput, error) {
		format, err := export.ParseFormat(input.Format)
		if err != nil {
			return nil, badRequest("%v", err)
		}
		out, err := e.ExportLease(ctx, input.LeaseID, format)
		if err != nil {
			return nil, handleError(err)
		}
		return &documentOutput{ContentType: format.ContentType(), Body: out}, nil
	})
}
