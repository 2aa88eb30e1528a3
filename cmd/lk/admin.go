package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"leasekeeper/internal/app"
	"leasekeeper/internal/config"
	"leasekeeper/internal/db"
	"leasekeeper/internal/domain"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/repo"
	"leasekeeper/internal/server"
	"leasekeeper/internal/templates"
)

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create leasekeeper.yml, the database and the agreement folders",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				fmt.Printf("%s already exists\n", path)
			} else {
				if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
					return err
				}
				fmt.Printf("wrote %s\n", path)
			}
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				names, err := ws.Templates.ListNames(templates.Templates)
				if err != nil {
					return err
				}
				fmt.Printf("workspace ready at %s (%d templates in %s)\n", ws.Dir, len(names), ws.Templates.Root())
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing leasekeeper.yml")
	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Workspace configuration"}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(cfg)
			}
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Print(string(out))
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate leasekeeper.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := config.Load(viper.GetString("workspace")); err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return cmd
}

func templateCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "template", Short: "Agreement templates"}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				names, err := ws.Templates.ListNames(templates.Templates)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(names)
				}
				for _, n := range names {
					marker := ""
					if n == ws.Config.Agreements.DefaultTemplate {
						marker = " (default)"
					}
					fmt.Println(n + marker)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Print a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withWorkspace(cmd.Context(), func(ctx context.Context, ws *app.Workspace) error {
				content, err := ws.Templates.Read(args[0], templates.Templates)
				if err != nil {
					return err
				}
				fmt.Print(content)
				return nil
			})
		},
	})
	return cmd
}

func propertyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "property", Short: "Rented properties"}
	var p domain.Property
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a property",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateProperty(ctx, p, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&p.ID, "id", "", "property id (generated when empty)")
	create.Flags().StringVar(&p.Name, "name", "", "property name")
	create.Flags().StringVar(&p.Location, "location", "", "location")
	create.Flags().StringVar(&p.Acres, "acres", "", "acreage")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List properties",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				props, err := e.Repo.ListProperties(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(props)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Location", "Acres"})
				for _, p := range props {
					tw.AppendRow(table.Row{p.ID, p.Name, p.Location, p.Acres})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func farmerCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "farmer", Short: "Tenant farmers"}
	var f domain.Farmer
	create := &cobra.Command{
		Use:   "create",
		Short: "Register a farmer",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				created, err := e.CreateFarmer(ctx, f, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(created)
			})
		},
	}
	create.Flags().StringVar(&f.ID, "id", "", "farmer id (generated when empty)")
	create.Flags().StringVar(&f.Name, "name", "", "farmer name")
	create.Flags().StringVar(&f.Email, "email", "", "email")
	create.Flags().StringVar(&f.Phone, "phone", "", "phone")
	_ = create.MarkFlagRequired("name")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List farmers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				farmers, err := e.Repo.ListFarmers(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(farmers)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Email", "Phone"})
				for _, f := range farmers {
					tw.AppendRow(table.Row{f.ID, f.Name, f.Email, f.Phone})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func logCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "log", Short: "Event log"}
	cmd.AddCommand(logTailCmd())
	return cmd
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var (
					evts []domain.Event
					err  error
				)
				if evtType == "" && entityID == "" {
					evts, err = e.Repo.TailEvents(ctx, n)
				} else {
					evts, err = e.Repo.ListEvents(ctx, repo.EventFilters{Type: evtType, EntityID: entityID})
					if len(evts) > n {
						evts = evts[len(evts)-n:]
					}
				}
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Time", "Type", "Entity", "Actor", "Payload"})
				for _, ev := range evts {
					tw.AppendRow(table.Row{ev.ID, ev.TS, ev.Type, ev.EntityKind + ":" + ev.EntityID, ev.ActorID, ev.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func apikeyCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "apikey", Short: "API keys for the HTTP server"}
	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				key := "lk_" + strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
				rec := domain.APIKey{
					ID:        uuid.NewString(),
					ActorID:   actorID(),
					Name:      name,
					KeyHash:   repo.HashAPIKey(key),
					CreatedAt: e.Clock().UTC().Format(time.RFC3339),
				}
				if err := e.Repo.InsertAPIKey(ctx, e.DB, rec); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": rec.ID, "actor_id": rec.ActorID, "key": key})
				}
				fmt.Printf("api key for %s (shown once): %s\n", rec.ActorID, key)
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "label for the key")
	cmd.AddCommand(create)
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List API keys of the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				keys, err := e.Repo.ListAPIKeys(ctx, actorID())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(keys)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Actor", "Name", "Created"})
				for _, k := range keys {
					tw.AppendRow(table.Row{k.ID, k.ActorID, k.Name, k.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	})
	return cmd
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign a bearer token for the current actor",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOptional(viper.GetString("workspace"))
			if err != nil {
				return err
			}
			secret := jwtSecret(cfg)
			if secret == "" {
				return errors.New("no JWT secret: set server.jwt_secret or LEASEKEEPER_JWT_SECRET")
			}
			tok, err := server.SignToken(secret, actorID(), ttl)
			if err != nil {
				return err
			}
			fmt.Println(tok)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func jwtSecret(cfg *config.Config) string {
	if s := viper.GetString("jwt_secret"); s != "" {
		return s
	}
	return cfg.Server.JWTSecret
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger("json")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ws, err := app.Open(ctx, viper.GetString("workspace"), logger)
			if err != nil {
				return err
			}
			defer ws.Close()
			if addr == "" {
				addr = ws.Config.Server.Addr
			}
			if basePath == "" {
				basePath = ws.Config.Server.BasePath
			}
			authCfg := server.AuthConfig{
				JWTSecret:              jwtSecret(ws.Config),
				AllowLegacyActorHeader: ws.Config.Server.AllowLegacyActorHeader,
				Logger:                 logger.With("component", "auth"),
			}
			if authCfg.JWTSecret == "" && !authCfg.AllowLegacyActorHeader {
				logger.Warn(ctx, "no JWT secret configured; only API keys will authenticate")
			}
			handler, err := server.New(server.Config{
				Engine:   ws.Engine,
				BasePath: basePath,
				Auth:     authCfg,
				Logger:   logger.With("component", "http"),
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info(ctx, "serving", "addr", addr, "base_path", basePath)
			fmt.Printf("Serving Leasekeeper API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at %s/docs)\n", addr, basePath, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (defaults to server.addr)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (defaults to server.base_path)")
	return cmd
}
