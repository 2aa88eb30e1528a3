package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"leasekeeper/internal/app"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "lk",
	Short: "Leasekeeper CLI",
	Long: `Leasekeeper keeps farm land leases, their signed agreements and their rent payments.
Core concepts:
- Workspace: a directory holding leasekeeper.yml, the .leasekeeper database and the Leases/ document tree.
- Templates: reusable agreement texts in Leases/Templates with {{token}} placeholders.
- Agreements: dated, hashed copies of a template filled in for one lease, kept in Leases/CompletedAgreements.
- Leases: a property rented to a farmer for a term; statuses go active -> expired or active -> void.
- Payments: the installments derived from the rent and its frequency; paying one posts a revenue ledger entry.
- Ledger: revenue and reversal entries, exportable as markdown or CSV.
- Event log: diary of changes, view with 'lk log tail'.`,
	SilenceUsage: true,
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("LEASEKEEPER")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier recorded in the event log")
	rootCmd.PersistentFlags().String("log-level", "warn", "log level (debug, info, warn, error)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(templateCmd())
	rootCmd.AddCommand(propertyCmd())
	rootCmd.AddCommand(farmerCmd())
	rootCmd.AddCommand(leaseCmd())
	rootCmd.AddCommand(paymentCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(tokenCmd())
	rootCmd.AddCommand(serveCmd())
}

// --- helpers ---

func newLogger(format string) (logging.Logger, error) {
	return logging.New(os.Stderr, format, viper.GetString("log-level"))
}

func withWorkspace(ctx context.Context, fn func(context.Context, *app.Workspace) error) error {
	logger, err := newLogger("text")
	if err != nil {
		return err
	}
	ws, err := app.Open(ctx, viper.GetString("workspace"), logger)
	if err != nil {
		return err
	}
	defer ws.Close()
	return fn(ctx, ws)
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withWorkspace(ctx, func(ctx context.Context, ws *app.Workspace) error {
		return fn(ctx, ws.Engine)
	})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func actorID() string {
	return viper.GetString("actor-id")
}

// parseDateFlag parses a YYYY-MM-DD flag value; empty stays zero.
func parseDateFlag(name, value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	d, err := domain.ParseDate(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("--%s must be YYYY-MM-DD: %w", name, err)
	}
	return d, nil
}

// writeOutput writes data to path, or to stdout when path is empty.
func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", path, len(data))
	return nil
}
