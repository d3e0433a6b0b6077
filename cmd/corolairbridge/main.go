package main

import (
	"database/sql"
	"net/http"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/corolair/moodle-bridge/internal/adapters/api"
	"github.com/corolair/moodle-bridge/internal/adapters/remote"
	"github.com/corolair/moodle-bridge/internal/adapters/repository"
	"github.com/corolair/moodle-bridge/internal/config"
	"github.com/corolair/moodle-bridge/internal/core/ports"
	"github.com/corolair/moodle-bridge/internal/core/services"
	"github.com/corolair/moodle-bridge/internal/infrastructure/metrics"
	"github.com/corolair/moodle-bridge/internal/logging"
)

func main() {
	cfg := config.Load()
	logger := logging.MustBuildLogger(cfg.Log.Level, cfg.Log.Env)
	defer logger.Sync()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		logger.Fatal("unable to open database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Warn("could not ping database", zap.Error(err))
	}
	metrics.DBConnectionsActive.Set(float64(db.Stats().OpenConnections))

	var store ports.HostStore = repository.NewPostgresRepository(db)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		store = repository.NewCachedHostStore(store, rdb, logger)
		logger.Info("plugin config cache enabled", zap.String("redis", cfg.Redis.Addr))
	}

	gateway := remote.NewClient(cfg.Corolair.BaseURL, logger)

	handler := api.NewAPIHandler(api.Deps{
		Store:        store,
		Registration: services.NewRegistrationService(store, gateway, logger),
		Session:      services.NewSessionService(store, gateway, logger),
		Auth:         services.NewAuthService(store, gateway, logger),
		Privacy:      services.NewPrivacyService(store, gateway, logger),
		Nav:          services.NewNavigationService(store, cfg.Site.URL, logger),
		Settings:     services.NewSettingsService(store, logger),
		Upgrade:      services.NewUpgradeService(store, gateway, logger),
		Remote:       gateway,
		SiteURL:      cfg.Site.URL,
		SiteName:     cfg.Site.Name,
		Logger:       logger,
	})

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)

	logger.Info("bridge listening", zap.String("addr", cfg.HTTPAddr), zap.String("site", cfg.Site.URL))
	if err := http.ListenAndServe(cfg.HTTPAddr, api.RequestID(mux)); err != nil {
		logger.Fatal("http server failed", zap.Error(err))
	}
}
