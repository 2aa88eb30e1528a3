package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"leasekeeper/internal/agreement"
	"leasekeeper/internal/config"
	"leasekeeper/internal/dbx"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/events"
	"leasekeeper/internal/logging"
	"leasekeeper/internal/metrics"
	"leasekeeper/internal/repo"
	"leasekeeper/internal/schedule"
	"leasekeeper/internal/templates"
)

var (
	ErrValidation        = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrLeaseNotActive    = errors.New("lease not active")
	ErrPaymentCancelled  = errors.New("payment cancelled")
	ErrPaidBeforeStart   = errors.New("paid date before lease start")
	ErrAlreadyRenewed    = errors.New("lease already renewed")
)

type Engine struct {
	DB         *sql.DB
	Repo       repo.Repo
	Events     events.Writer
	Config     *config.Config
	Agreements *agreement.Factory
	Logger     logging.Logger
	Now        func() time.Time
}

func New(db *sql.DB, cfg *config.Config, agreements *agreement.Factory, logger logging.Logger) Engine {
	if logger == nil {
		logger = logging.Discard()
	}
	return Engine{
		DB:         db,
		Repo:       repo.Repo{DB: db},
		Events:     events.Writer{DB: db},
		Config:     cfg,
		Agreements: agreements,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Clock returns the engine's current time.
func (e Engine) Clock() time.Time {
	return e.now()
}

func (e Engine) stamp() string {
	return e.now().UTC().Format(time.RFC3339)
}

func (e Engine) log() logging.Logger {
	if e.Logger == nil {
		return logging.Discard()
	}
	return e.Logger
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func (e Engine) CreateProperty(ctx context.Context, p domain.Property, actorID string) (domain.Property, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, invalid("property name is required")
	}
	if p.Acres != "" {
		if _, err := decimal.NewFromString(p.Acres); err != nil {
			return p, invalid("acres %q is not a number", p.Acres)
		}
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	p.CreatedAt = e.stamp()
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := e.Repo.InsertProperty(ctx, tx, p); err != nil {
			return fmt.Errorf("insert property: %w", err)
		}
		return e.Events.Append(ctx, tx, events.PropertyCreated, "property", p.ID, actorID, events.EventPayload{"name": p.Name})
	})
	return p, err
}

func (e Engine) CreateFarmer(ctx context.Context, f domain.Farmer, actorID string) (domain.Farmer, error) {
	f.Name = strings.TrimSpace(f.Name)
	if f.Name == "" {
		return f, invalid("farmer name is required")
	}
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	f.CreatedAt = e.stamp()
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := e.Repo.InsertFarmer(ctx, tx, f); err != nil {
			return fmt.Errorf("insert farmer: %w", err)
		}
		return e.Events.Append(ctx, tx, events.FarmerCreated, "farmer", f.ID, actorID, events.EventPayload{"name": f.Name})
	})
	return f, err
}

// LeaseCreateOptions are parameters for creating a lease.
type LeaseCreateOptions struct {
	ID            string
	Type          string
	PropertyID    string
	FarmerID      string
	GrowingYear   int
	StartDate     time.Time
	EndDate       time.Time
	RentAmount    decimal.Decimal
	RentFrequency domain.RentFrequency
	// Template defaults to the configured default template.
	Template      string
	SkipAgreement bool
	ActorID       string
}

// CreateLease validates the lease, writes its completed agreement and stores
// the lease with its payment schedule in one transaction.
func (e Engine) CreateLease(ctx context.Context, opts LeaseCreateOptions) (domain.Lease, error) {
	return e.createLease(ctx, opts, "", nil)
}

func (e Engine) createLease(ctx context.Context, opts LeaseCreateOptions, renewedFrom string, inTx func(ctx context.Context, tx *sql.Tx, l domain.Lease) error) (domain.Lease, error) {
	if e.Config == nil {
		return domain.Lease{}, errors.New("config not loaded")
	}
	if opts.Type == "" {
		opts.Type = "cash"
	}
	if opts.PropertyID == "" || opts.FarmerID == "" {
		return domain.Lease{}, invalid("property and farmer are required")
	}
	if opts.StartDate.IsZero() || opts.EndDate.IsZero() {
		return domain.Lease{}, invalid("start and end date are required")
	}
	start, end := day(opts.StartDate), day(opts.EndDate)
	if end.Before(start) {
		return domain.Lease{}, invalid("end date %s precedes start date %s", end.Format(domain.DateLayout), start.Format(domain.DateLayout))
	}
	if opts.RentAmount.IsNegative() {
		return domain.Lease{}, invalid("rent amount must not be negative")
	}
	if !opts.RentAmount.Equal(opts.RentAmount.Round(2)) {
		return domain.Lease{}, invalid("rent amount %s has more than 2 decimal places", opts.RentAmount)
	}
	opts.RentAmount = opts.RentAmount.Round(2)
	if opts.ID != "" {
		if err := templates.ValidName(opts.ID); err != nil {
			return domain.Lease{}, invalid("lease id %q must be a single path element", opts.ID)
		}
	}
	if opts.Template != "" {
		if err := templates.ValidName(opts.Template); err != nil {
			return domain.Lease{}, invalid("template %q must be a single path element", opts.Template)
		}
	}
	freq, err := schedule.ParseFrequency(string(opts.RentFrequency))
	if err != nil {
		return domain.Lease{}, invalid("%v", err)
	}
	if opts.GrowingYear == 0 {
		opts.GrowingYear = start.Year()
	}
	property, err := e.Repo.GetProperty(ctx, opts.PropertyID)
	if err != nil {
		return domain.Lease{}, fmt.Errorf("property %s: %w", opts.PropertyID, err)
	}
	farmer, err := e.Repo.GetFarmer(ctx, opts.FarmerID)
	if err != nil {
		return domain.Lease{}, fmt.Errorf("farmer %s: %w", opts.FarmerID, err)
	}

	now := e.stamp()
	l := domain.Lease{
		ID:            opts.ID,
		Type:          opts.Type,
		PropertyID:    property.ID,
		FarmerID:      farmer.ID,
		GrowingYear:   opts.GrowingYear,
		StartDate:     start,
		EndDate:       end,
		RentAmount:    opts.RentAmount,
		RentFrequency: freq,
		Status:        domain.LeaseActive,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	if renewedFrom != "" {
		l.RenewedFrom = &renewedFrom
	}

	var info *agreement.Info
	if !opts.SkipAgreement && e.Agreements != nil {
		tmpl := opts.Template
		if tmpl == "" {
			tmpl = e.Config.Agreements.DefaultTemplate
		}
		data := domain.LeaseCreationData{
			LeaseID:       l.ID,
			PropertyName:  property.Name,
			FarmerName:    farmer.Name,
			GrowingYear:   l.GrowingYear,
			LeaseType:     l.Type,
			StartDate:     l.StartDate,
			EndDate:       l.EndDate,
			RentAmount:    l.RentAmount,
			RentFrequency: l.RentFrequency,
		}
		generated, err := e.Agreements.Generate(ctx, tmpl, tmpl+"_"+l.ID, data)
		if err != nil {
			return domain.Lease{}, fmt.Errorf("generate agreement: %w", err)
		}
		info = &generated
		l.AgreementPath = generated.Path
		l.AgreementHash = generated.Hash
	}

	installments := schedule.Build(l.RentAmount, l.StartDate, l.EndDate, l.RentFrequency)
	err = dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		if err := e.Repo.InsertLease(ctx, tx, l); err != nil {
			return fmt.Errorf("insert lease: %w", err)
		}
		for _, inst := range installments {
			p := domain.Payment{
				ID:        uuid.NewString(),
				LeaseID:   l.ID,
				Sequence:  inst.Sequence,
				Amount:    inst.Amount,
				DueDate:   inst.DueDate,
				Status:    domain.PaymentPending,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := e.Repo.InsertPayment(ctx, tx, p); err != nil {
				return fmt.Errorf("insert payment %d: %w", inst.Sequence, err)
			}
		}
		if inTx != nil {
			if err := inTx(ctx, tx, l); err != nil {
				return err
			}
		}
		if err := e.Events.Append(ctx, tx, events.LeaseCreated, "lease", l.ID, opts.ActorID, events.EventPayload{
			"property_id":    l.PropertyID,
			"farmer_id":      l.FarmerID,
			"rent_amount":    l.RentAmount.String(),
			"rent_frequency": string(l.RentFrequency),
			"payments":       len(installments),
		}); err != nil {
			return err
		}
		if info != nil {
			return e.Events.Append(ctx, tx, events.AgreementCreated, "lease", l.ID, opts.ActorID, events.EventPayload{
				"file": info.FileName,
				"hash": info.Hash,
			})
		}
		return nil
	})
	if err != nil {
		if info != nil {
			e.Agreements.Discard(ctx, *info)
		}
		return domain.Lease{}, err
	}
	e.log().Info(ctx, "lease created", "lease_id", l.ID, "payments", len(installments), "renewed_from", renewedFrom)
	e.refreshGauges(ctx)
	return l, nil
}

// LeaseRenewOptions are parameters for renewing a lease. Zero values inherit
// from the previous lease.
type LeaseRenewOptions struct {
	LeaseID       string
	ID            string
	StartDate     time.Time
	EndDate       time.Time
	TermMonths    int
	RentAmount    *decimal.Decimal
	RentFrequency domain.RentFrequency
	Template      string
	SkipAgreement bool
	ActorID       string
}

// RenewLease starts the next term of a lease. The new term begins the day
// after the previous end date and keeps its length unless overridden. An
// active predecessor becomes expired.
func (e Engine) RenewLease(ctx context.Context, opts LeaseRenewOptions) (domain.Lease, error) {
	prev, err := e.Repo.GetLease(ctx, opts.LeaseID)
	if err != nil {
		return domain.Lease{}, err
	}
	if prev.Status == domain.LeaseVoid {
		return domain.Lease{}, fmt.Errorf("%w: void lease %s cannot be renewed", ErrInvalidTransition, prev.ID)
	}
	successors, err := e.Repo.ListLeases(ctx, repo.LeaseFilters{RenewedFrom: prev.ID, Limit: 1})
	if err != nil {
		return domain.Lease{}, err
	}
	if len(successors) > 0 {
		return domain.Lease{}, fmt.Errorf("%w: %s by %s", ErrAlreadyRenewed, prev.ID, successors[0].ID)
	}

	start := opts.StartDate
	if start.IsZero() {
		start = prev.EndDate.AddDate(0, 0, 1)
	}
	end := opts.EndDate
	if end.IsZero() {
		months := opts.TermMonths
		if months <= 0 {
			months = schedule.TermMonths(prev.StartDate, prev.EndDate)
		}
		end = schedule.AddMonths(day(start), months).AddDate(0, 0, -1)
	}
	rent := prev.RentAmount
	if opts.RentAmount != nil {
		rent = *opts.RentAmount
	}
	freq := prev.RentFrequency
	if opts.RentFrequency != "" {
		freq = opts.RentFrequency
	}
	create := LeaseCreateOptions{
		ID:            opts.ID,
		Type:          prev.Type,
		PropertyID:    prev.PropertyID,
		FarmerID:      prev.FarmerID,
		GrowingYear:   prev.GrowingYear + 1,
		StartDate:     start,
		EndDate:       end,
		RentAmount:    rent,
		RentFrequency: freq,
		Template:      opts.Template,
		SkipAgreement: opts.SkipAgreement,
		ActorID:       opts.ActorID,
	}
	return e.createLease(ctx, create, prev.ID, func(ctx context.Context, tx *sql.Tx, next domain.Lease) error {
		current, err := e.Repo.GetLeaseTx(ctx, tx, prev.ID)
		if err != nil {
			return err
		}
		if current.Status == domain.LeaseActive {
			if err := ensureLeaseTransition(current.Status, domain.LeaseExpired); err != nil {
				return err
			}
			if err := e.Repo.UpdateLeaseStatus(ctx, tx, prev.ID, domain.LeaseExpired, next.CreatedAt); err != nil {
				return err
			}
		} else if current.Status != domain.LeaseExpired {
			return fmt.Errorf("%w: %s lease %s cannot be renewed", ErrInvalidTransition, current.Status, prev.ID)
		}
		return e.Events.Append(ctx, tx, events.LeaseRenewed, "lease", prev.ID, opts.ActorID, events.EventPayload{
			"renewed_by": next.ID,
			"start_date": next.StartDate.Format(domain.DateLayout),
			"end_date":   next.EndDate.Format(domain.DateLayout),
		})
	})
}

// VoidLease marks an active lease void and cancels its pending payments.
func (e Engine) VoidLease(ctx context.Context, leaseID, reason, actorID string) (domain.Lease, error) {
	var l domain.Lease
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		l, err = e.Repo.GetLeaseTx(ctx, tx, leaseID)
		if err != nil {
			return err
		}
		if err := ensureLeaseTransition(l.Status, domain.LeaseVoid); err != nil {
			return err
		}
		now := e.stamp()
		if err := e.Repo.UpdateLeaseStatus(ctx, tx, l.ID, domain.LeaseVoid, now); err != nil {
			return err
		}
		cancelled, err := e.Repo.CancelPendingPayments(ctx, tx, l.ID, now)
		if err != nil {
			return err
		}
		l.Status = domain.LeaseVoid
		l.UpdatedAt = now
		return e.Events.Append(ctx, tx, events.LeaseVoided, "lease", l.ID, actorID, events.EventPayload{
			"reason":             reason,
			"cancelled_payments": cancelled,
		})
	})
	if err != nil {
		return domain.Lease{}, err
	}
	e.log().Info(ctx, "lease voided", "lease_id", l.ID)
	e.refreshGauges(ctx)
	return l, nil
}

// ExpireLeases marks every active lease whose end date precedes asOf expired.
func (e Engine) ExpireLeases(ctx context.Context, asOf time.Time, actorID string) ([]domain.Lease, error) {
	var expired []domain.Lease
	err := dbx.WithTx(ctx, e.DB, func(ctx context.Context, tx *sql.Tx) error {
		due, err := e.Repo.ListExpiredActiveTx(ctx, tx, day(asOf))
		if err != nil {
			return err
		}
		now := e.stamp()
		for _, l := range due {
			if err := ensureLeaseTransition(l.Status, domain.LeaseExpired); err != nil {
				return err
			}
			if err := e.Repo.UpdateLeaseStatus(ctx, tx, l.ID, domain.LeaseExpired, now); err != nil {
				return err
			}
			if err := e.Events.Append(ctx, tx, events.LeaseExpired, "lease", l.ID, actorID, events.EventPayload{
				"end_date": l.EndDate.Format(domain.DateLayout),
			}); err != nil {
				return err
			}
			l.Status = domain.LeaseExpired
			l.UpdatedAt = now
			expired = append(expired, l)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(expired) > 0 {
		e.log().Info(ctx, "leases expired", "count", len(expired))
		e.refreshGauges(ctx)
	}
	return expired, nil
}

// VerifyAgreement recomputes the hash of a lease's completed agreement.
func (e Engine) VerifyAgreement(ctx context.Context, leaseID string) (agreement.Info, error) {
	l, err := e.Repo.GetLease(ctx, leaseID)
	if err != nil {
		return agreement.Info{}, err
	}
	if l.AgreementPath == "" || e.Agreements == nil {
		return agreement.Info{}, &templates.Error{Kind: templates.ErrAgreementNotFound, Name: l.ID, Err: errors.New("lease has no agreement")}
	}
	return e.Agreements.Verify(ctx, filepath.Base(l.AgreementPath), l.AgreementHash)
}

func ensureLeaseTransition(oldStatus, newStatus string) error {
	switch oldStatus {
	case domain.LeaseActive:
		if newStatus == domain.LeaseVoid || newStatus == domain.LeaseExpired {
			return nil
		}
	}
	return fmt.Errorf("%w: lease %s -> %s", ErrInvalidTransition, oldStatus, newStatus)
}

func (e Engine) refreshGauges(ctx context.Context) {
	counts, err := e.Repo.CountLeasesByStatus(ctx)
	if err != nil {
		e.log().Warn(ctx, "count leases failed", "error", err)
		return
	}
	metrics.SetActiveLeases(counts[domain.LeaseActive])
}

func day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
