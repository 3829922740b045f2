package main

import (
	"context"

	"github.com/callowcreation/sfs-api/internal/handlers"
	"github.com/callowcreation/sfs-api/internal/migration"
	"github.com/callowcreation/sfs-api/internal/notify"
	"github.com/callowcreation/sfs-api/internal/rotation"
	"github.com/callowcreation/sfs-api/internal/store"
	"github.com/callowcreation/sfs-api/internal/websocket"
	"github.com/callowcreation/sfs-api/pkg/clients/twitchpubsub"
	"github.com/callowcreation/sfs-api/pkg/config"
	"github.com/callowcreation/sfs-api/pkg/database"
	"github.com/callowcreation/sfs-api/pkg/logging"
	"github.com/callowcreation/sfs-api/pkg/monitoring"
	"github.com/callowcreation/sfs-api/pkg/redis"
	"github.com/callowcreation/sfs-api/pkg/server"
	"github.com/callowcreation/sfs-api/pkg/version"
)

func main() {
	// Setup logger
	logger := logging.NewLoggerWithService("herald")

	// Load environment variables
	config.LoadEnv(logger)

	logger.Info("Starting Herald (Shoutouts for Streamers API)")

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Invalid configuration")
	}

	// Connect to database
	dbConfig := database.DefaultConfig()
	dbConfig.URL = cfg.DatabaseURL
	db := database.MustConnect(dbConfig, logger)
	defer func() { _ = db.Close() }()

	if config.GetEnvBool("DB_APPLY_SCHEMA", false) {
		if err := database.ApplySchema(db, logger); err != nil {
			logger.WithError(err).Fatal("Failed to apply database schema")
		}
	}

	// Connect to Redis
	rdb, err := redis.NewClientFromURL(context.Background(), cfg.RedisURL)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer func() { _ = rdb.Close() }()

	// Setup monitoring
	healthChecker := monitoring.NewHealthChecker("herald", version.Version)
	metricsCollector := monitoring.NewMetricsCollector("herald", version.Version, version.GitCommit)

	healthChecker.AddCheck("database", monitoring.DatabaseHealthCheck(db))
	healthChecker.AddCheck("redis", monitoring.RedisHealthCheck(rdb))
	healthChecker.AddCheck("config", monitoring.ConfigurationHealthCheck(map[string]string{
		"EXTENSION_CLIENT_ID": cfg.Extension.ClientID,
		"DATABASE_URL":        cfg.DatabaseURL,
		"REDIS_URL":           cfg.RedisURL,
	}))

	// Stores
	events := store.NewEventStore(db)
	checkpoints := store.NewCheckpointStore(db)
	legacy := store.NewLegacyStore(db)
	channelDir := store.NewChannelStore(db)
	settings := store.NewCachedSettings(store.NewSettingsStore(db))
	rotations := store.NewRotationStore(rdb)
	pins := store.NewPinStore(rdb)

	// Broadcast paths: Twitch extension pub/sub plus the local websocket hub.
	hub := websocket.NewHub(logger)
	go hub.Run()

	pubsub := twitchpubsub.NewClient(
		cfg.Extension.ClientID,
		cfg.Extension.OwnerID,
		cfg.Extension.Secret,
		twitchpubsub.WithBaseURL(cfg.PubSubURL),
	)
	_, broadcastOps, _ := metricsCollector.CreateBusinessMetrics()
	dispatcher := notify.NewDispatcher(string(cfg.Cycle), cfg.Extension.Version, logger, pubsub, hub).
		WithOperationsCounter(broadcastOps)

	// Engines share one per-channel lock table.
	locks := rotation.NewChannelLocks()
	queue := rotation.NewQueue(events, rotations, settings, dispatcher, locks, logger)
	registry := rotation.NewRegistry(events, rotations, pins, dispatcher, locks, logger)
	migrator := migration.NewMigrator(events, legacy, checkpoints, rotations, dispatcher, logger)

	handlers.Init(logger, queue, registry, migrator, settings, channelDir, hub)

	// Setup router
	router := server.SetupRouter(logger, "herald")
	router.Use(metricsCollector.MetricsMiddleware())
	router.GET("/healthz", healthChecker.Handler())
	router.GET("/metrics", metricsCollector.Handler())

	handlers.RegisterRoutes(router, cfg.Extension.Secret, cfg.Extension.ClientID, cfg.Extension.Secret)

	// Background maintenance: expired pins + interrupted migrations.
	sweeperCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go handlers.NewSweeper(registry, migrator, logger).Run(sweeperCtx)

	// Start server with graceful shutdown
	serverConfig := server.DefaultConfig("herald", "18080")
	if err := server.Start(serverConfig, router, logger); err != nil {
		logger.WithError(err).Fatal("Server startup failed")
	}
}
