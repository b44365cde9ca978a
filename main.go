package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"lumiere-backend/config"
	"lumiere-backend/handlers"
	"lumiere-backend/middleware"
	"lumiere-backend/models"
	"lumiere-backend/services"
	"lumiere-backend/utils"
	"lumiere-backend/workers"

	"github.com/go-redis/redis/v8"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	cfg, envFileFound, err := config.Load()
	logger := utils.NewLogger(os.Getenv("LOG_LEVEL"))
	defer func() { _ = logger.Sync() }()

	if !envFileFound {
		logger.Warn("⚠️  No .env file found, reading environment variables directly")
	}
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	tiers, err := config.LoadTiers(cfg.TiersFile)
	if err != nil {
		logger.Fatal("failed to load tier table", zap.String("file", cfg.TiersFile), zap.Error(err))
	}
	accrual, err := services.ParseAccrualPolicy(cfg.AccrualPolicy)
	if err != nil {
		logger.Fatal("invalid accrual policy", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}

	if err := db.AutoMigrate(
		&models.PointsAccount{},
		&models.PointsTransaction{},
		&models.TierChange{},
		&models.Reward{},
		&models.Redemption{},
	); err != nil {
		logger.Fatal("failed to migrate database", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pointsService := services.NewPointsService(services.NewGormBalanceStore(db), tiers, logger)
	pointsService.Accrual = accrual
	pointsService.WelcomeBonus = cfg.WelcomeBonus

	notifiers := services.MultiNotifier{services.NewLogNotifier(logger)}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("⚠️  redis unreachable, tier changes will only be logged", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		} else {
			notifiers = append(notifiers, services.NewRedisNotifier(rdb, cfg.RedisChannel))
			logger.Info("✅ publishing tier changes to redis", zap.String("channel", cfg.RedisChannel))
		}
	}
	pointsService.Notifier = notifiers

	var images services.ImageUploader
	if cfg.R2.Enabled() {
		uploader, err := utils.NewR2Uploader(ctx, cfg.R2.AccountID, cfg.R2.AccessKeyID, cfg.R2.AccessKeySecret, cfg.R2.Bucket, cfg.R2.CDNBaseURL)
		if err != nil {
			logger.Fatal("failed to initialize R2 client", zap.Error(err))
		}
		images = uploader
	} else {
		logger.Warn("⚠️  R2 not configured, reward image upload disabled")
	}
	rewardService := services.NewRewardService(db, pointsService, images, logger)

	sched, err := pointsService.StartTierReconciler(ctx, cfg.ReconcileEvery, cfg.ReconcileBatch)
	if err != nil {
		logger.Fatal("failed to start tier reconciler", zap.Error(err))
	}
	defer func() { _ = sched.Shutdown() }()

	if cfg.SyncServiceURL != "" {
		syncClient := workers.NewSyncClient(cfg.SyncServiceURL, cfg.GatewayToken)
		workers.NewAccountSyncWorker(syncClient, pointsService, cfg.SyncInterval, logger).Start(ctx)
		workers.NewPurchaseSyncWorker(syncClient, pointsService, cfg.SyncInterval, logger).Start(ctx)
	} else {
		logger.Warn("⚠️  SYNC_SERVICE_URL not set, account and purchase sync workers disabled")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 10 * 1024 * 1024, // reward images
	})
	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// everything below /health must come from the gateway
	app.Use(middleware.GatewayAuthMiddleware(cfg.GatewayToken, logger))

	var sseAuth fiber.Handler
	if cfg.AuthServiceURL != "" {
		sseAuth = middleware.SSEAuthMiddleware(services.NewAuthServiceClient(cfg.AuthServiceURL, cfg.GatewayToken), logger)
	} else {
		logger.Warn("⚠️  AUTH_SERVICE_URL not set, tier change stream disabled")
	}

	handlers.SetupPointsRoutes(app, pointsService, rewardService, sseAuth, logger)
	handlers.SetupRewardRoutes(app, rewardService, logger)
	handlers.SetupAdminRoutes(app, pointsService, rewardService, logger)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	logger.Info("✅ Server running",
		zap.String("port", cfg.Port),
		zap.Strings("cors_origins", cfg.AllowedOrigins),
		zap.String("accrual_policy", accrual.Name()),
		zap.Int("tiers", len(tiers.All())),
	)

	<-ctx.Done()
	logger.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}
