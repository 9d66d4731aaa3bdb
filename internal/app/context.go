package app

import (
	"database/sql"
	"fmt"

	"riskline/internal/config"
	"riskline/internal/db"
	"riskline/internal/migrate"
	"riskline/internal/model"
	"riskline/internal/repo"
)

// App bundles the open workspace: database, repository, config and the model
// service. Commands open one App, use it, and Close it on the way out.
type App struct {
	Workspace string
	DB        *sql.DB
	Repo      repo.Repo
	Config    *config.Config
	Models    *model.Service
}

// Open prepares the workspace: opens the database, applies pending migrations
// and loads riskline.yml, falling back to defaults when the file is absent.
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	modelDir := cfg.Models.Dir
	if modelDir == "" {
		modelDir = model.Dir(workspace)
	}
	return &App{
		Workspace: workspace,
		DB:        conn,
		Repo:      repo.Repo{DB: conn},
		Config:    cfg,
		Models:    model.NewService(modelDir),
	}, nil
}

func (a *App) Close() error {
	return a.DB.Close()
}
