package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/export"
	"leasekeeper/internal/repo"
	"leasekeeper/internal/schedule"
)

func paymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "Rent payments"}
	cmd.AddCommand(paymentListCmd())
	cmd.AddCommand(paymentPayCmd())
	cmd.AddCommand(paymentUnpayCmd())
	cmd.AddCommand(paymentPreviewCmd())
	return cmd
}

func paymentListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list <lease-id>",
		Short: "List the payment schedule of a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				payments, err := e.ListPayments(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(payments)
				}
				renderPayments(payments, e)
				return nil
			})
		},
	}
}

func renderPayments(payments []domain.Payment, e engine.Engine) {
	now := e.Clock()
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"#", "ID", "Due", "Amount", "Status", "Paid Date", "Reference"})
	scheduled, paid, outstanding := export.Totals(payments)
	for _, p := range payments {
		status := statusText(p.Status)
		if p.Overdue(now) {
			status = text.FgYellow.Sprint("overdue")
		}
		paidDate := ""
		if p.PaidDate != nil {
			paidDate = p.PaidDate.Format(domain.DateLayout)
		}
		tw.AppendRow(table.Row{p.Sequence, p.ID, p.DueDate.Format(domain.DateLayout), p.Amount.StringFixed(2), status, paidDate, p.Reference})
	}
	tw.AppendFooter(table.Row{"", "", "Scheduled " + scheduled.StringFixed(2), "Paid " + paid.StringFixed(2), "Outstanding " + outstanding.StringFixed(2)})
	tw.Render()
}

func printSettlement(res engine.Settlement) error {
	if viper.GetBool("json") {
		return printJSON(res)
	}
	if !res.Changed {
		fmt.Printf("payment %s already %s\n", res.Payment.ID, res.Payment.Status)
		return nil
	}
	fmt.Printf("payment %s is %s; ledger entry %s (%s, debit %s, credit %s)\n",
		res.Payment.ID, res.Payment.Status, res.Entry.ID, res.Entry.EntryType,
		res.Entry.Debit.StringFixed(2), res.Entry.Credit.StringFixed(2))
	return nil
}

func paymentPayCmd() *cobra.Command {
	var date, reference string
	cmd := &cobra.Command{
		Use:   "pay <payment-id>",
		Short: "Mark a payment paid and post its ledger entry",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paidOn, err := parseDateFlag("date", date)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.MarkPaid(ctx, engine.MarkPaidOptions{
					PaymentID: args[0],
					PaidDate:  paidOn,
					Reference: reference,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printSettlement(res)
			})
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "paid date (defaults to today)")
	cmd.Flags().StringVar(&reference, "reference", "", "cheque or transfer reference")
	return cmd
}

func paymentUnpayCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "unpay <payment-id>",
		Short: "Reverse a payment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UnmarkPaid(ctx, engine.UnmarkPaidOptions{
					PaymentID: args[0],
					Reason:    reason,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printSettlement(res)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded on the reversal")
	return cmd
}

func paymentPreviewCmd() *cobra.Command {
	var start, end, rent, freq string
	cmd := &cobra.Command{
		Use:   "preview",
		Short: "Show the schedule a lease would get without storing anything",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}
			if endDate.Before(startDate) {
				return fmt.Errorf("--end must not be before --start")
			}
			amount, err := decimal.NewFromString(rent)
			if err != nil {
				return fmt.Errorf("--rent: %w", err)
			}
			frequency, err := schedule.ParseFrequency(freq)
			if err != nil {
				return err
			}
			plan := schedule.Build(amount, startDate, endDate, frequency)
			if viper.GetBool("json") {
				return printJSON(plan)
			}
			tw := table.NewWriter()
			tw.SetOutputMirror(os.Stdout)
			tw.AppendHeader(table.Row{"#", "Due", "Amount"})
			for _, in := range plan {
				tw.AppendRow(table.Row{in.Sequence, in.DueDate.Format(domain.DateLayout), in.Amount.StringFixed(2)})
			}
			tw.AppendFooter(table.Row{"", "Total", amount.StringFixed(2)})
			tw.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&rent, "rent", "", "total rent for the term")
	cmd.Flags().StringVar(&freq, "frequency", "annual", "monthly, quarterly, semi-annual or annual")
	for _, f := range []string{"start", "end", "rent"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func ledgerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "ledger", Short: "Revenue ledger"}
	cmd.AddCommand(ledgerListCmd())
	cmd.AddCommand(ledgerExportCmd())
	return cmd
}

func ledgerFilterFlags(cmd *cobra.Command, f *repo.LedgerFilters, from, to *string) {
	cmd.Flags().StringVar(&f.LeaseID, "lease", "", "lease id")
	cmd.Flags().StringVar(&f.PaymentID, "payment", "", "payment id")
	cmd.Flags().StringVar(from, "from", "", "first entry date YYYY-MM-DD")
	cmd.Flags().StringVar(to, "to", "", "last entry date YYYY-MM-DD (inclusive)")
	cmd.Flags().BoolVar(&f.LiveOnly, "live-only", false, "hide reversed entries and reversals")
}

func resolveLedgerRange(f *repo.LedgerFilters, from, to string) error {
	var err error
	if f.From, err = parseDateFlag("from", from); err != nil {
		return err
	}
	if f.To, err = parseDateFlag("to", to); err != nil {
		return err
	}
	if !f.To.IsZero() {
		f.To = f.To.AddDate(0, 0, 1).Add(-1)
	}
	return nil
}

func ledgerListCmd() *cobra.Command {
	var f repo.LedgerFilters
	var from, to string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List ledger entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveLedgerRange(&f, from, to); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				entries, err := e.Repo.ListLedgerEntries(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(entries)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Date", "Account", "Description", "Debit", "Credit", "Type", "Reference"})
				for _, le := range entries {
					desc := le.Description
					if le.Reversed {
						desc = text.CrossedOut.Sprint(desc)
					}
					tw.AppendRow(table.Row{le.EntryDate.Format(domain.DateLayout), le.AccountCode, desc, le.Debit.StringFixed(2), le.Credit.StringFixed(2), le.EntryType, le.Reference})
				}
				tw.Render()
				return nil
			})
		},
	}
	ledgerFilterFlags(cmd, &f, &from, &to)
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max entries")
	return cmd
}

func ledgerExportCmd() *cobra.Command {
	var f repo.LedgerFilters
	var from, to, format, out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export ledger entries as markdown or CSV",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmtKind, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			if err := resolveLedgerRange(&f, from, to); err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.ExportLedger(ctx, f, fmtKind)
				if err != nil {
					return err
				}
				return writeOutput(out, data)
			})
		},
	}
	ledgerFilterFlags(cmd, &f, &from, &to)
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}
