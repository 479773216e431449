// Package app wires configuration, stores, services and the router into a
// runnable server.
package app

import (
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/isdelr/practice-server/internal/api"
	"github.com/isdelr/practice-server/internal/auth"
	"github.com/isdelr/practice-server/internal/config"
	"github.com/isdelr/practice-server/internal/database"
	"github.com/isdelr/practice-server/internal/jsonstore"
	"github.com/isdelr/practice-server/internal/monitoring"
	"github.com/isdelr/practice-server/internal/seed"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/isdelr/practice-server/internal/store"
	"github.com/isdelr/practice-server/internal/websocket"
	"github.com/rs/zerolog/log"
)

// App holds every long-lived component of the server.
type App struct {
	Config    *config.Config
	Public    *store.Store
	Protected *store.Store
	Sessions  *auth.Manager
	DB        *sql.DB
	Hub       *websocket.Hub
	Metrics   *monitoring.Collector
	Util      *services.UtilService
	Router    http.Handler

	scheduler   *monitoring.Scheduler
	statUpdater *monitoring.StatUpdater
}

// New builds the server described by cfg. Nothing runs until Start.
func New(cfg *config.Config) (*App, error) {
	publicSeed, err := loadPublicSeed(cfg.SeedDir)
	if err != nil {
		return nil, err
	}
	protectedSeed, err := seed.Protected()
	if err != nil {
		return nil, fmt.Errorf("failed to load user seed: %w", err)
	}
	ruleSet, err := seed.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, err
	}
	treeSeed, err := jsonstore.LoadDir(cfg.JSONStoreDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load jsonstore data: %w", err)
	}

	hasher, err := auth.NewHasher(cfg.PasswordHash, cfg.ServerSecret)
	if err != nil {
		return nil, err
	}

	// Set up database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply database migrations: %w", err)
	}

	a := &App{
		Config:    cfg,
		Public:    store.New(publicSeed),
		Protected: store.New(protectedSeed),
		DB:        db,
		Hub:       websocket.NewHub(),
		Metrics:   monitoring.NewCollector("practice_server"),
		Util:      services.NewUtilService(cfg.Throttle),
	}
	a.Sessions = auth.NewManager(a.Protected, auth.NewTokenIssuer(cfg.ServerSecret),
		auth.WithIdentity(cfg.IdentityField),
		auth.WithHasher(hasher),
		auth.WithSessionTTL(cfg.SessionTTL),
	)

	a.scheduler, err = monitoring.NewScheduler(a.Sessions, cfg.SessionSweep)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("invalid session sweep schedule %q: %w", cfg.SessionSweep, err)
	}
	a.statUpdater = monitoring.NewStatUpdater(a.Public, a.Protected, a.Metrics, 15*time.Second)

	// Set up services
	eventService := services.NewEventService(db)
	dataService := services.NewDataService(a.Public, a.Protected, ruleSet,
		services.WithEvents(eventService),
		services.WithPublisher(a.Hub),
		services.WithMetrics(a.Metrics),
	)
	userService := services.NewUserService(a.Sessions, eventService)

	a.Router = api.NewRouter(api.Dependencies{
		Sessions:  a.Sessions,
		Data:      dataService,
		Users:     userService,
		Events:    eventService,
		Util:      a.Util,
		JSONStore: jsonstore.New(treeSeed),
		Hub:       a.Hub,
		Metrics:   a.Metrics,
	})
	return a, nil
}

// Start launches the background workers.
func (a *App) Start() {
	go a.Hub.Run()
	go a.scheduler.Run()
	go a.statUpdater.Run()
}

// Stop halts the background workers and closes the database.
func (a *App) Stop() {
	a.statUpdater.Stop()
	a.scheduler.Stop()
	a.Hub.Stop()
	if err := a.DB.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close database")
	}
}

func loadPublicSeed(dir string) (store.Seed, error) {
	if dir == "" {
		return seed.Public()
	}
	data, err := seed.LoadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to load seed directory %s: %w", dir, err)
	}
	log.Info().Str("dir", dir).Int("collections", len(data)).Msg("Loaded seed data from disk")
	return data, nil
}
