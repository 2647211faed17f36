// Package main provides the entry point for the PelattaHub labelling service
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bsm/redislock"
	"github.com/covxx/pelattahub-sub002/app/handlers"
	"github.com/covxx/pelattahub-sub002/app/middleware"
	"github.com/covxx/pelattahub-sub002/app/router"
	"github.com/covxx/pelattahub-sub002/app/scheduler"
	"github.com/covxx/pelattahub-sub002/app/services"
	businessflow "github.com/covxx/pelattahub-sub002/business_flow"
	"github.com/covxx/pelattahub-sub002/config"
	"github.com/covxx/pelattahub-sub002/repository"
	"github.com/covxx/pelattahub-sub002/utils"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    router.Router
	config    *config.ProductionConfig
	logger    *logrus.Logger
	stopFuncs []func()
}

func main() {
	issueToken := flag.String("issue-token", "", "print a bearer token for subject:role and exit")
	flag.Parse()

	// Load production configuration
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger(utils.LogOptions{
		Level:        cfg.Logging.Level,
		Format:       cfg.Logging.Format,
		Output:       cfg.Logging.Output,
		FilePath:     cfg.Logging.FilePath,
		MaxSize:      cfg.Logging.MaxSize,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAge:       cfg.Logging.MaxAge,
		Compress:     cfg.Logging.Compress,
		EnableCaller: cfg.Logging.EnableCaller,
	})

	if *issueToken != "" {
		token, err := issueBearerToken(cfg.JWT, *issueToken)
		if err != nil {
			logger.WithError(err).Fatal("failed to issue token")
		}
		fmt.Println(token)
		return
	}

	logger.WithFields(logrus.Fields{
		"version":     cfg.Deployment.Version,
		"commit":      cfg.Deployment.CommitHash,
		"environment": cfg.Deployment.Environment,
	}).Info("starting labelling service")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize application")
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serverErr := make(chan error, 1)
	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		serverErr <- app.router.Start(address)
	}()

	select {
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("shutting down gracefully")
	case err := <-serverErr:
		if err != nil {
			logger.WithError(err).Error("server stopped unexpectedly")
		}
	}

	app.shutdown()
	logger.Info("server stopped")
}

// shutdown drains HTTP traffic first, then stops background workers and closes clients
func (a *Application) shutdown() {
	done := make(chan error, 1)
	go func() { done <- a.router.Shutdown() }()

	select {
	case err := <-done:
		if err != nil {
			a.logger.WithError(err).Error("error during shutdown")
		}
	case <-time.After(a.config.Server.ShutdownTimeout):
		a.logger.Warn("shutdown timed out, abandoning in-flight requests")
	}

	for i := len(a.stopFuncs) - 1; i >= 0; i-- {
		a.stopFuncs[i]()
	}
}

// issueBearerToken signs a token for "subject:role", for operators without an identity provider
func issueBearerToken(cfg config.JWTConfig, subjectRole string) (string, error) {
	subject, role, ok := strings.Cut(subjectRole, ":")
	if !ok || strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("expected subject:role, got %q", subjectRole)
	}
	role = strings.ToLower(strings.TrimSpace(role))
	if role != services.RoleOperator && role != services.RoleAdmin {
		return "", fmt.Errorf("role must be %s or %s", services.RoleOperator, services.RoleAdmin)
	}

	tokenService, err := services.NewTokenService(
		12*time.Hour,
		cfg.Issuer,
		cfg.Audience,
		cfg.UseRSAKeys,
		cfg.PrivateKey,
		cfg.PublicKey,
		cfg.SecretKey,
	)
	if err != nil {
		return "", err
	}
	return tokenService.GenerateToken(strings.TrimSpace(subject), role)
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *logrus.Logger) (*gorm.DB, error) {
	logLevel := gormlogger.Silent
	if cfg.SlowQueryLog {
		logLevel = gormlogger.Warn
	}
	gormLog := gormlogger.New(
		log.New(logger.WriterLevel(logrus.WarnLevel), "", 0),
		gormlogger.Config{
			SlowThreshold:             cfg.SlowQueryTime,
			LogLevel:                  logLevel,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         gormLog,
		TranslateError: true,
		NowFunc:        utils.UTCNow,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Get underlying sql.DB for connection pooling configuration
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if cfg.AutoMigrate {
		if err := repository.AutoMigrate(db); err != nil {
			return nil, err
		}
		logger.Info("database schema migrated")
	}

	logger.WithFields(logrus.Fields{
		"max_open_conns": cfg.MaxOpenConns,
		"max_idle_conns": cfg.MaxIdleConns,
	}).Info("database connection established")

	return db, nil
}

// initializeCache initializes the Redis client and verifies connectivity. It returns
// nil when caching is disabled.
func initializeCache(cfg config.CacheConfig, logger logrus.FieldLogger) (*redis.Client, error) {
	if !cfg.Enabled || cfg.Provider != "redis" {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	// Override DB if provided in config
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.WithField("db", cfg.RedisDB).Info("redis connection established")
	return rc, nil
}

// initializePrintQueue returns nil when no print transport is configured
func initializePrintQueue(cfg config.QueueConfig, logger logrus.FieldLogger) (services.PrintQueue, error) {
	if !cfg.Enabled {
		logger.Warn("print queue disabled, label print requests will be rejected")
		return nil, nil
	}
	queue, err := services.NewAMQPPrintQueue(services.AMQPPrintQueueConfig{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		Queue:      cfg.Queue,
		RoutingKey: cfg.RoutingKey,
	}, logger.WithField("component", "print_queue"))
	if err != nil {
		return nil, err
	}
	return queue, nil
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, logger *logrus.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		stopFuncs = append(stopFuncs, func() { _ = sqlDB.Close() })
	}

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	var (
		prefixCache businessflow.PrefixCache
		locker      businessflow.RepairLocker = businessflow.NewLocalRepairLocker()
	)
	if rc != nil {
		prefixCache = businessflow.NewRedisPrefixCache(rc, cfg.Cache.RedisPrefix, cfg.Cache.DefaultTTL)
		locker = businessflow.NewRedisRepairLocker(redislock.New(rc))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
	}

	queue, err := initializePrintQueue(cfg.Queue, logger)
	if err != nil {
		return nil, err
	}
	if queue != nil {
		stopFuncs = append(stopFuncs, func() { _ = queue.Close() })
	}

	jobIDs, err := services.NewSnowflakeJobIDGenerator(int64(cfg.Deployment.NodeID))
	if err != nil {
		return nil, fmt.Errorf("failed to create print job id generator: %w", err)
	}

	// Initialize repositories
	counterRepo := repository.NewSequenceCounterRepository(db, cfg.Database.LockTimeout)
	settingRepo := repository.NewSystemSettingRepository(db)
	productRepo := repository.NewProductRepository(db)
	lotRepo := repository.NewLotRepository(db)
	receiptRepo := repository.NewReceiptRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	runTx := businessflow.GormTxRunner(db)

	// Initialize business flows
	sequences := businessflow.NewSequenceIssuer(counterRepo, lotRepo, receiptRepo, db, logger.WithField("flow", "sequence"))
	prefixes := businessflow.NewCompanyPrefixFlow(
		settingRepo,
		auditRepo,
		prefixCache,
		runTx,
		cfg.GS1.DefaultCompanyPrefix,
		logger.WithField("flow", "company_prefix"),
	)
	gtinFlow := businessflow.NewGTINFlow(
		productRepo,
		auditRepo,
		prefixes,
		nil,
		runTx,
		locker,
		businessflow.GTINFlowOptions{
			RepairBatchSize: cfg.GS1.RepairBatchSize,
			RepairLockTTL:   cfg.GS1.RepairLockTTL,
		},
		logger.WithField("flow", "gtin"),
	)
	lotFlow := businessflow.NewLotFlow(productRepo, lotRepo, auditRepo, gtinFlow, sequences, runTx, logger.WithField("flow", "lot"))
	receiptFlow := businessflow.NewReceiptFlow(receiptRepo, auditRepo, lotFlow, sequences, runTx, logger.WithField("flow", "receipt"))
	labelFlow := businessflow.NewLabelFlow(
		lotRepo,
		auditRepo,
		services.NewSymbolRenderer(services.SymbolRendererOptions{}),
		queue,
		jobIDs,
		logger.WithField("flow", "label"),
	)

	// Verification only needs the public key or shared secret
	tokenService, err := services.NewTokenService(
		time.Hour,
		cfg.JWT.Issuer,
		cfg.JWT.Audience,
		cfg.JWT.UseRSAKeys,
		cfg.JWT.PrivateKey,
		cfg.JWT.PublicKey,
		cfg.JWT.SecretKey,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create token service: %w", err)
	}

	// Initialize handlers
	h := router.Handlers{
		GTIN:    handlers.NewGTINHandler(gtinFlow, logger),
		Lot:     handlers.NewLotHandler(lotFlow, labelFlow, logger),
		Receipt: handlers.NewReceiptHandler(receiptFlow, logger),
		Admin:   handlers.NewAdminHandler(prefixes, sequences, logger),
	}

	r := router.NewFiberRouter(h, middleware.NewAuthMiddleware(tokenService), router.Options{
		AppName:               "PelattaHub Labels",
		Version:               cfg.Deployment.Version,
		Environment:           cfg.Deployment.Environment,
		BodyLimit:             cfg.Server.BodyLimit,
		ReadTimeout:           cfg.Server.ReadTimeout,
		WriteTimeout:          cfg.Server.WriteTimeout,
		IdleTimeout:           cfg.Server.IdleTimeout,
		TrustedProxies:        cfg.Server.TrustedProxies,
		ProxyHeader:           cfg.Server.ProxyHeader,
		EnableCompression:     cfg.Server.EnableCompression,
		EnableAccessLog:       cfg.Logging.EnableAccessLog,
		AllowOrigins:          cfg.Security.AllowedOrigins,
		AllowMethods:          cfg.Security.AllowedMethods,
		AllowHeaders:          cfg.Security.AllowedHeaders,
		AllowCredentials:      cfg.Security.AllowCredentials,
		CORSMaxAge:            cfg.Security.CORSMaxAge,
		RateLimit:             cfg.Security.GlobalRateLimit,
		AdminRateLimit:        cfg.Security.AdminRateLimit,
		RateWindow:            cfg.Security.RateLimitWindow,
		ContentSecurityPolicy: cfg.Security.CSPPolicy,
		XFrameOptions:         cfg.Security.XFrameOptions,
		ReferrerPolicy:        cfg.Security.ReferrerPolicy,
		HSTSMaxAge:            cfg.Security.HSTSMaxAge,
		MetricsEnabled:        cfg.Metrics.Enabled,
		MetricsPath:           cfg.Metrics.Path,
	}, logger.WithField("component", "router"))

	if cfg.GS1.RepairEnabled {
		repair := scheduler.NewGTINRepairScheduler(gtinFlow, cfg.GS1.RepairInterval, cfg.GS1.RepairLockTTL, logger)
		stopFuncs = append(stopFuncs, repair.Start(context.Background()))
	}

	return &Application{
		router:    r,
		config:    cfg,
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
