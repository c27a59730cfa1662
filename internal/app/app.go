package app

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"facilityfix/internal/config"
	"facilityfix/internal/directory"
	"facilityfix/internal/engine"
	"facilityfix/internal/migrate"
	"facilityfix/internal/notify"
	"facilityfix/internal/store"
)

// App wires the document store, directory, notifier and engine for one
// workspace. Both the CLI and the HTTP server boot through here.
type App struct {
	DB        *sql.DB
	Store     *store.SQLite
	Directory directory.Service
	Notify    notify.Dispatcher
	Engine    engine.Engine
	Config    *config.Config
	Logger    *log.Logger
}

// Open loads workspace config, opens and migrates the database, and builds
// the engine with the configured capability grants.
func Open(workspace string) (*App, error) {
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		return nil, err
	}
	db, err := store.Open(store.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := migrate.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger := log.New(os.Stderr, "facilityfix ", log.LstdFlags)
	st := store.NewSQLite(db)
	dir := directory.Service{Store: st}
	dispatcher := notify.Dispatcher{Store: st, Logger: logger}
	eng := engine.New(st, dir, dispatcher)
	eng.Policy = cfg.Policy()
	eng.Logger = logger
	return &App{
		DB:        db,
		Store:     st,
		Directory: dir,
		Notify:    dispatcher,
		Engine:    eng,
		Config:    cfg,
		Logger:    logger,
	}, nil
}

// Close releases the database connection.
func (a *App) Close() error {
	return a.DB.Close()
}
