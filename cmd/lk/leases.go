package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leasekeeper/internal/audit"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/export"
	"leasekeeper/internal/repo"
	"leasekeeper/internal/schedule"
)

func leaseCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "lease", Short: "Leases"}
	cmd.AddCommand(leaseCreateCmd())
	cmd.AddCommand(leaseListCmd())
	cmd.AddCommand(leaseShowCmd())
	cmd.AddCommand(leaseVoidCmd())
	cmd.AddCommand(leaseRenewCmd())
	cmd.AddCommand(leaseExpireCmd())
	cmd.AddCommand(leaseVerifyCmd())
	cmd.AddCommand(leaseExportCmd())
	return cmd
}

func leaseCreateCmd() *cobra.Command {
	var id, leaseType, propertyID, farmerID, start, end, rent, freq, tmpl string
	var growingYear int
	var noAgreement bool
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a lease, its agreement and its payment schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			startDate, err := parseDateFlag("start", start)
			if err != nil {
				return err
			}
			endDate, err := parseDateFlag("end", end)
			if err != nil {
				return err
			}
			amount, err := decimal.NewFromString(rent)
			if err != nil {
				return fmt.Errorf("--rent: %w", err)
			}
			frequency, err := schedule.ParseFrequency(freq)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLease(ctx, engine.LeaseCreateOptions{
					ID:            id,
					Type:          leaseType,
					PropertyID:    propertyID,
					FarmerID:      farmerID,
					GrowingYear:   growingYear,
					StartDate:     startDate,
					EndDate:       endDate,
					RentAmount:    amount,
					RentFrequency: frequency,
					Template:      tmpl,
					SkipAgreement: noAgreement,
					ActorID:       actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "lease id (generated when empty)")
	cmd.Flags().StringVar(&leaseType, "type", "cash", "lease type")
	cmd.Flags().StringVar(&propertyID, "property", "", "property id")
	cmd.Flags().StringVar(&farmerID, "farmer", "", "farmer id")
	cmd.Flags().IntVar(&growingYear, "growing-year", 0, "growing year (defaults to the start year)")
	cmd.Flags().StringVar(&start, "start", "", "start date YYYY-MM-DD")
	cmd.Flags().StringVar(&end, "end", "", "end date YYYY-MM-DD")
	cmd.Flags().StringVar(&rent, "rent", "", "total rent for the term")
	cmd.Flags().StringVar(&freq, "frequency", "annual", "monthly, quarterly, semi-annual or annual")
	cmd.Flags().StringVar(&tmpl, "template", "", "agreement template (defaults to agreements.default_template)")
	cmd.Flags().BoolVar(&noAgreement, "no-agreement", false, "skip writing the agreement document")
	for _, f := range []string{"property", "farmer", "start", "end", "rent"} {
		_ = cmd.MarkFlagRequired(f)
	}
	return cmd
}

func leaseListCmd() *cobra.Command {
	var f repo.LeaseFilters
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List leases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				leases, err := e.Repo.ListLeases(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(leases)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Property", "Farmer", "Term", "Rent", "Frequency", "Status"})
				for _, l := range leases {
					term := l.StartDate.Format(domain.DateLayout) + " .. " + l.EndDate.Format(domain.DateLayout)
					tw.AppendRow(table.Row{l.ID, l.PropertyID, l.FarmerID, term, l.RentAmount.StringFixed(2), l.RentFrequency, statusText(l.Status)})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&f.Status, "status", "", "active, expired or void")
	cmd.Flags().StringVar(&f.PropertyID, "property", "", "property id")
	cmd.Flags().StringVar(&f.FarmerID, "farmer", "", "farmer id")
	cmd.Flags().IntVar(&f.Limit, "limit", 0, "max leases")
	return cmd
}

func leaseShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <lease-id>",
		Short: "Show a lease with its payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				doc, err := e.LeaseDocument(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"lease":    doc.Lease,
						"property": doc.Property,
						"farmer":   doc.Farmer,
						"payments": doc.Payments,
					})
				}
				l := doc.Lease
				fmt.Printf("Lease %s (%s)\n", l.ID, statusText(l.Status))
				fmt.Printf("  Property:  %s\n", doc.Property.Name)
				fmt.Printf("  Farmer:    %s\n", doc.Farmer.Name)
				fmt.Printf("  Term:      %s .. %s\n", l.StartDate.Format(domain.DateLayout), l.EndDate.Format(domain.DateLayout))
				fmt.Printf("  Rent:      %s %s\n", l.RentAmount.StringFixed(2), l.RentFrequency)
				if l.AgreementPath != "" {
					fmt.Printf("  Agreement: %s (%s)\n", l.AgreementPath, audit.Short(l.AgreementHash))
				}
				if l.RenewedFrom != nil {
					fmt.Printf("  Renews:    %s\n", *l.RenewedFrom)
				}
				renderPayments(doc.Payments, e)
				return nil
			})
		},
	}
}

func leaseVoidCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "void <lease-id>",
		Short: "Void a lease and cancel its pending payments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.VoidLease(ctx, args[0], reason, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "reason recorded in the event log")
	return cmd
}

func leaseRenewCmd() *cobra.Command {
	var id, start, end, rent, freq, tmpl string
	var months int
	var noAgreement bool
	cmd := &cobra.Command{
		Use:   "renew <lease-id>",
		Short: "Start the next term of a lease",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.LeaseRenewOptions{
				LeaseID:       args[0],
				ID:            id,
				TermMonths:    months,
				Template:      tmpl,
				SkipAgreement: noAgreement,
				ActorID:       actorID(),
			}
			var err error
			if opts.StartDate, err = parseDateFlag("start", start); err != nil {
				return err
			}
			if opts.EndDate, err = parseDateFlag("end", end); err != nil {
				return err
			}
			if rent != "" {
				amount, err := decimal.NewFromString(rent)
				if err != nil {
					return fmt.Errorf("--rent: %w", err)
				}
				opts.RentAmount = &amount
			}
			if freq != "" {
				if opts.RentFrequency, err = schedule.ParseFrequency(freq); err != nil {
					return err
				}
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.RenewLease(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "id of the new lease (generated when empty)")
	cmd.Flags().StringVar(&start, "start", "", "start date (defaults to the day after the previous end)")
	cmd.Flags().StringVar(&end, "end", "", "end date")
	cmd.Flags().IntVar(&months, "months", 0, "term length in months when --end is not set")
	cmd.Flags().StringVar(&rent, "rent", "", "new total rent")
	cmd.Flags().StringVar(&freq, "frequency", "", "new rent frequency")
	cmd.Flags().StringVar(&tmpl, "template", "", "agreement template")
	cmd.Flags().BoolVar(&noAgreement, "no-agreement", false, "skip writing the agreement document")
	return cmd
}

func leaseExpireCmd() *cobra.Command {
	var asOf string
	cmd := &cobra.Command{
		Use:   "expire",
		Short: "Expire active leases whose term has ended",
		RunE: func(cmd *cobra.Command, args []string) error {
			date, err := parseDateFlag("as-of", asOf)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if date.IsZero() {
					date = e.Clock()
				}
				expired, err := e.ExpireLeases(ctx, date, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(expired)
				}
				for _, l := range expired {
					fmt.Printf("expired %s (ended %s)\n", l.ID, l.EndDate.Format(domain.DateLayout))
				}
				fmt.Printf("%d lease(s) expired\n", len(expired))
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&asOf, "as-of", "", "reference date (defaults to today)")
	return cmd
}

func leaseVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <lease-id>",
		Short: "Check the agreement document against its recorded hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				info, err := e.VerifyAgreement(ctx, args[0])
				var mismatch *audit.MismatchError
				if errors.As(err, &mismatch) {
					fmt.Println(text.FgRed.Sprint("MISMATCH"), info.FileName)
					return err
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(info)
				}
				fmt.Println(text.FgGreen.Sprint("OK"), info.FileName, info.ShortHash)
				return nil
			})
		},
	}
}

func leaseExportCmd() *cobra.Command {
	var format, out string
	cmd := &cobra.Command{
		Use:   "export <lease-id>",
		Short: "Render a lease summary with its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				data, err := e.ExportLease(ctx, args[0], f)
				if err != nil {
					return err
				}
				return writeOutput(out, data)
			})
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or csv")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output file (stdout when empty)")
	return cmd
}

func statusText(status string) string {
	switch status {
	case domain.LeaseActive, domain.PaymentPaid:
		return text.FgGreen.Sprint(status)
	case domain.LeaseVoid, domain.PaymentCancelled:
		return text.FgRed.Sprint(status)
	case domain.LeaseExpired:
		return text.FgHiBlack.Sprint(status)
	default:
		return status
	}
}
