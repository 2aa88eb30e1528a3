package app

import (
	"context"
	"database/sql"
	"fmt"

	"leasekeeper/internal/agreement"
	"leasekeeper/internal/config"
	"leasekeeper/internal/db"
	"leasekeeper/internal/engine"
	"leasekeeper/internal/logging"
	"leasekeeper/internal/migrate"
	"leasekeeper/internal/templates"
)

// Workspace bundles everything opened for one workspace directory.
type Workspace struct {
	Dir       string
	Config    *config.Config
	DB        *sql.DB
	Templates *templates.Repository
	Engine    engine.Engine
}

// Open loads the workspace config (defaults when leasekeeper.yml is absent),
// migrates the database, prepares the agreement tiers and builds the engine.
// Callers must Close the returned workspace.
func Open(ctx context.Context, dir string, logger logging.Logger) (*Workspace, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	cfg, err := config.LoadOptional(dir)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		return nil, err
	}
	if err := migrate.MigrateContext(ctx, conn); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	tpl, err := OpenTemplates(ctx, dir, cfg, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	factory := agreement.NewFactory(tpl, logger.With("component", "agreement"))
	return &Workspace{
		Dir:       dir,
		Config:    cfg,
		DB:        conn,
		Templates: tpl,
		Engine:    engine.New(conn, cfg, factory, logger.With("component", "engine")),
	}, nil
}

// OpenTemplates creates the agreement tiers and seeds the bundled templates
// into an empty Templates tier when the config asks for it.
func OpenTemplates(ctx context.Context, dir string, cfg *config.Config, logger logging.Logger) (*templates.Repository, error) {
	tpl := templates.New(cfg.AgreementsDir(dir))
	if err := tpl.EnsureTiers(); err != nil {
		return nil, err
	}
	if !cfg.Agreements.SeedTemplates {
		return tpl, nil
	}
	n, err := tpl.Seed(templates.Defaults())
	if err != nil {
		return nil, fmt.Errorf("seed templates: %w", err)
	}
	if n > 0 && logger != nil {
		logger.Info(ctx, "seeded agreement templates", "count", n, "dir", tpl.Root())
	}
	return tpl, nil
}

func (w *Workspace) Close() error {
	if w == nil || w.DB == nil {
		return nil
	}
	return w.DB.Close()
}
