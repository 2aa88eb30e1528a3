// Package export renders ledger slices and leases as markdown or CSV. It
// performs no I/O.
package export

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"leasekeeper/internal/domain"
)

type Format string

const (
	Markdown Format = "markdown"
	CSV      Format = "csv"
)

// ParseFormat accepts "markdown", "md" and "csv".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "markdown", "md":
		return Markdown, nil
	case "csv":
		return CSV, nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// ContentType returns the MIME type of rendered output.
func (f Format) ContentType() string {
	if f == CSV {
		return "text/csv; charset=utf-8"
	}
	return "text/markdown; charset=utf-8"
}

type Options struct {
	// Now stamps the export header.
	Now time.Time
	// Location sets the day boundaries of markdown grouping. Defaults to time.Local.
	Location *time.Location
}

func (o Options) location() *time.Location {
	if o.Location == nil {
		return time.Local
	}
	return o.Location
}

const (
	timeLayout    = "15:04"
	stampLayout   = "2006-01-02 15:04"
	ledgerCSVHead = "Date,Time,Account Code,Account Name,Description,Debit Amount,Credit Amount,Reference Number,Vendor,Reconciled,Approved"
)

// Ledger renders ledger entries in the requested format.
func Ledger(entries []domain.LedgerEntry, format Format, opts Options) ([]byte, error) {
	switch format {
	case Markdown:
		return ledgerMarkdown(entries, opts), nil
	case CSV:
		return ledgerCSV(entries), nil
	default:
		return nil, fmt.Errorf("unknown export format %q", format)
	}
}

type dayGroup struct {
	day     string
	entries []domain.LedgerEntry
}

// groupByDay orders entries newest first and splits them on local calendar days.
func groupByDay(entries []domain.LedgerEntry, loc *time.Location) []dayGroup {
	sorted := make([]domain.LedgerEntry, len(entries))
	copy(sorted, entries)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EntryDate.After(sorted[j].EntryDate)
	})
	var groups []dayGroup
	for _, e := range sorted {
		day := e.EntryDate.In(loc).Format(domain.DateLayout)
		if n := len(groups); n > 0 && groups[n-1].day == day {
			groups[n-1].entries = append(groups[n-1].entries, e)
			continue
		}
		groups = append(groups, dayGroup{day: day, entries: []domain.LedgerEntry{e}})
	}
	return groups
}

func ledgerMarkdown(entries []domain.LedgerEntry, opts Options) []byte {
	loc := opts.location()
	var b strings.Builder
	b.WriteString("# General Ledger Export\n\n")
	fmt.Fprintf(&b, "Exported: %s\n\n", opts.Now.In(loc).Format(stampLayout))
	fmt.Fprintf(&b, "Entries: %d\n", len(entries))
	for _, g := range groupByDay(entries, loc) {
		fmt.Fprintf(&b, "\n## %s\n\n", g.day)
		tw := table.NewWriter()
		tw.AppendHeader(table.Row{"Time", "Account", "Description", "Debit", "Credit", "Reference"})
		tw.SetColumnConfigs([]table.ColumnConfig{
			{Name: "Debit", Align: text.AlignRight},
			{Name: "Credit", Align: text.AlignRight},
		})
		for _, e := range g.entries {
			tw.AppendRow(table.Row{
				e.EntryDate.In(loc).Format(timeLayout),
				e.AccountCode + " " + e.AccountName,
				e.Description,
				e.Debit.StringFixed(2),
				e.Credit.StringFixed(2),
				e.Reference,
			})
		}
		b.WriteString(tw.RenderMarkdown())
		b.WriteString("\n")
	}
	return []byte(b.String())
}

func ledgerCSV(entries []domain.LedgerEntry) []byte {
	var b strings.Builder
	b.WriteString(ledgerCSVHead)
	b.WriteString("\n")
	for _, e := range entries {
		at := e.EntryDate.UTC()
		fields := []string{
			at.Format(domain.DateLayout),
			at.Format(timeLayout),
			quote(e.AccountCode),
			quote(e.AccountName),
			quote(e.Description),
			e.Debit.StringFixed(2),
			e.Credit.StringFixed(2),
			quote(e.Reference),
			quote(e.Vendor),
			strconv.FormatBool(e.Reconciled),
			strconv.FormatBool(e.Approved),
		}
		b.WriteString(strings.Join(fields, ","))
		b.WriteString("\n")
	}
	return []byte(b.String())
}

// quote always wraps s in double quotes, doubling embedded quotes.
func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
