package export

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"

	"leasekeeper/internal/domain"
)

// LeaseDocument is everything a lease export shows.
type LeaseDocument struct {
	Lease    domain.Lease
	Property domain.Property
	Farmer   domain.Farmer
	Payments []domain.Payment
}

const leaseCSVHead = "Sequence,Due Date,Amount,Status,Paid,Paid Date,Reference"

// Lease renders a lease summary with its payment schedule.
func Lease(doc LeaseDocument, format Format, opts Options) ([]byte, error) {
	switch format {
	case Markdown:
		return leaseMarkdown(doc, opts), nil
	case CSV:
		return leaseCSV(doc), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

// Totals sums scheduled, paid and outstanding amounts. Cancelled payments
// count toward neither paid nor outstanding.
func Totals(payments []domain.Payment) (scheduled, paid, outstanding decimal.Decimal) {
	for _, p := range payments {
		scheduled = scheduled.Add(p.Amount)
		switch {
		case p.Paid:
			paid = paid.Add(p.Amount)
		case p.Status != domain.PaymentCancelled:
			outstanding = outstanding.Add(p.Amount)
		}
	}
	return scheduled, paid, outstanding
}

func leaseMarkdown(doc LeaseDocument, opts Options) []byte {
	l := doc.Lease
	var b strings.Builder
	fmt.Fprintf(&b, "# Lease %s\n\n", l.ID)
	fmt.Fprintf(&b, "Exported: %s\n\n", opts.Now.In(opts.location()).Format(stampLayout))
	property := doc.Property.Name
	if doc.Property.Location != "" {
		property += " (" + doc.Property.Location + ")"
	}
	fmt.Fprintf(&b, "- Property: %s\n", property)
	fmt.Fprintf(&b, "- Farmer: %s\n", doc.Farmer.Name)
	fmt.Fprintf(&b, "- Type: %s\n", l.Type)
	if l.GrowingYear != 0 {
		fmt.Fprintf(&b, "- Growing Year: %d\n", l.GrowingYear)
	}
	fmt.Fprintf(&b, "- Term: %s to %s\n", l.StartDate.Format(domain.DateLayout), l.EndDate.Format(domain.DateLayout))
	fmt.Fprintf(&b, "- Rent: %s (%s)\n", l.RentAmount.StringFixed(2), l.RentFrequency)
	fmt.Fprintf(&b, "- Status: %s\n", l.Status)
	if l.RenewedFrom != nil {
		fmt.Fprintf(&b, "- Renewed From: %s\n", *l.RenewedFrom)
	}
	if l.AgreementPath != "" {
		short := l.AgreementHash
		if len(short) > 8 {
			short = short[:8]
		}
		fmt.Fprintf(&b, "- Agreement: %s (%s)\n", filepath.Base(l.AgreementPath), short)
	}

	b.WriteString("\n## Payment Schedule\n\n")
	tw := table.NewWriter()
	tw.AppendHeader(table.Row{"#", "Due Date", "Amount", "Status", "Paid Date", "Reference"})
	tw.SetColumnConfigs([]table.ColumnConfig{{Name: "Amount", Align: text.AlignRight}})
	for _, p := range doc.Payments {
		paidDate := ""
		if p.PaidDate != nil {
			paidDate = p.PaidDate.Format(domain.DateLayout)
		}
		status := p.Status
		if p.Overdue(opts.Now) {
			status += " (overdue)"
		}
		tw.AppendRow(table.Row{p.Sequence, p.DueDate.Format(domain.DateLayout), p.Amount.StringFixed(2), status, paidDate, p.Reference})
	}
	b.WriteString(tw.RenderMarkdown())
	b.WriteString("\n\n")
	scheduled, paid, outstanding := Totals(doc.Payments)
	fmt.Fprintf(&b, "Scheduled: %s\n\n", scheduled.StringFixed(2))
	fmt.Fprintf(&b, "Paid: %s\n\n", paid.StringFixed(2))
	fmt.Fprintf(&b, "Outstanding: %s\n", outstanding.StringFixed(2))
	return []byte(b.String())
}

func leaseCSV(doc LeaseDocument) []byte {
	var b strings.Builder
	b.WriteString(leaseCSVHead)
	b.WriteString("\n")
	for _, p := range doc.Payments {
		paidDate := ""
		if p.PaidDate != nil {
			paidDate = p.PaidDate.Format(domain.DateLayout)
		}
		fields := []string{
			strconv.Itoa(p.Sequence),
			p.DueDate.Format(domain.DateLayout),
			p.Amount.StringFixed(2),
			quote(p.Status),
			strconv.FormatBool(p.Paid),
			paidDate,
			quote(p.Reference),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteString("\n")
	}
	return []byte(b.String())
}
