package engine

import (
	"context"

	"leasekeeper/internal/export"
	"leasekeeper/internal/metrics"
	"leasekeeper/internal/repo"
)

func (e Engine) exportOptions() (export.Options, error) {
	opts := export.Options{Now: e.now()}
	if e.Config != nil {
		loc, err := e.Config.ExportLocation()
		if err != nil {
			return opts, err
		}
		opts.Location = loc
	}
	return opts, nil
}

// ExportLedger renders the ledger entries matching f.
func (e Engine) ExportLedger(ctx context.Context, f repo.LedgerFilters, format export.Format) ([]byte, error) {
	opts, err := e.exportOptions()
	if err != nil {
		return nil, err
	}
	entries, err := e.Repo.ListLedgerEntries(ctx, f)
	if err != nil {
		return nil, err
	}
	out, err := export.Ledger(entries, format, opts)
	if err != nil {
		return nil, err
	}
	metrics.ObserveExport("ledger", string(format))
	return out, nil
}

// LeaseDocument loads a lease with its parties and payment schedule.
func (e Engine) LeaseDocument(ctx context.Context, leaseID string) (export.LeaseDocument, error) {
	var doc export.LeaseDocument
	l, err := e.Repo.GetLease(ctx, leaseID)
	if err != nil {
		return doc, err
	}
	doc.Lease = l
	if doc.Property, err = e.Repo.GetProperty(ctx, l.PropertyID); err != nil {
		return doc, err
	}
	if doc.Farmer, err = e.Repo.GetFarmer(ctx, l.FarmerID); err != nil {
		return doc, err
	}
	if doc.Payments, err = e.Repo.ListPayments(ctx, l.ID); err != nil {
		return doc, err
	}
	return doc, nil
}

// ExportLease renders a lease summary and schedule.
func (e Engine) ExportLease(ctx context.Context, leaseID string, format export.Format) ([]byte, error) {
	opts, err := e.exportOptions()
	if err != nil {
		return nil, err
	}
	doc, err := e.LeaseDocument(ctx, leaseID)
	if err != nil {
		return nil, err
	}
	out, err := export.Lease(doc, format, opts)
	if err != nil {
		return nil, err
	}
	metrics.ObserveExport("lease", string(format))
	return out, nil
}
