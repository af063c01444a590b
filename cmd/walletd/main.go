package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"agent-wallet.backend/internal/config"
	"agent-wallet.backend/internal/domain/entities"
	"agent-wallet.backend/internal/infrastructure/blockchain"
	"agent-wallet.backend/internal/infrastructure/jobs"
	"agent-wallet.backend/internal/infrastructure/keystore"
	"agent-wallet.backend/internal/infrastructure/oracle"
	"agent-wallet.backend/internal/infrastructure/repositories"
	"agent-wallet.backend/internal/interfaces/http/handlers"
	"agent-wallet.backend/internal/interfaces/http/middleware"
	"agent-wallet.backend/internal/observability"
	"agent-wallet.backend/internal/usecases"
	"agent-wallet.backend/pkg/jwt"
	"agent-wallet.backend/pkg/logger"
	"agent-wallet.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	newSessionStore = redis.NewSessionStore
	runServer       = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB        = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	// Load .env file
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	// Load configuration
	cfg := loadCfg()

	// Initialize Logger
	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	// Initialize Redis
	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	// Set Gin mode
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Connect to database using GORM
	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("⚠️ Database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("✅ Connected to PostgreSQL via GORM")
	}

	// Unlock the keystore. The password is wiped from config scope once the
	// keystore has derived what it needs.
	masterPassword, err := cfg.ResolveMasterPassword(os.Stdin, os.Stderr)
	if err != nil {
		return fmt.Errorf("failed to resolve master password: %w", err)
	}
	ks, err := keystore.New(cfg.Keystore.Dir, masterPassword)
	if err != nil {
		return fmt.Errorf("failed to open keystore: %w", err)
	}
	if err := ks.VerifyMasterPassword(); err != nil {
		return fmt.Errorf("master password verification failed: %w", err)
	}
	log.Printf("🔐 Keystore unlocked at %s", cfg.Keystore.Dir)

	// Initialize JWT service
	jwtService := jwt.NewJWTService(
		cfg.JWT.Secret,
		cfg.JWT.AccessExpiry,
		cfg.JWT.RefreshExpiry,
	)

	// Initialize repositories
	walletRepo := repositories.NewWalletRepository(db)
	txRepo := repositories.NewTransactionRepository(db)
	policyRepo := repositories.NewPolicyRepository(db)
	approvalRepo := repositories.NewApprovalRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	uow := repositories.NewUnitOfWork(db)

	// Initialize Session Store
	sessionStore, err := newSessionStore(cfg.Security.SessionEncryptionKey)
	if err != nil {
		return fmt.Errorf("failed to initialize session store: %w", err)
	}

	// Price oracle chain: first healthy source wins. Each source sits
	// behind its own rate limiter and circuit breaker.
	priceOracle := oracle.NewChain(
		oracle.DefaultSources(cfg.Oracle.CoinGeckoURL, cfg.Oracle.PythURL, cfg.Oracle.SourceRPS, cfg.Oracle.SourceTimeout),
		oracle.NewCache(cfg.Oracle.CacheTTL),
		cfg.Oracle.StaleMax,
	)

	// Chain adapters
	adapters := blockchain.NewAdapterFactory(map[entities.ChainType]string{
		entities.ChainEthereum: cfg.Blockchain.EthereumRPC,
		entities.ChainSolana:   cfg.Blockchain.SolanaRPC,
	})

	// Metrics
	metrics, registry := observability.NewMetrics("walletd")

	// Initialize usecases
	bus := usecases.NewEventBus()
	bus.Subscribe(usecases.LogSubscriber{})
	engine := usecases.NewPolicyEngine(policyRepo, txRepo, auditRepo, uow, priceOracle)
	queue := usecases.NewDelayQueue(approvalRepo, txRepo, auditRepo, uow, bus,
		cfg.Queue.DefaultDelay, cfg.Queue.DefaultApproval)
	authorizer := usecases.NewSessionAuthorizer(jwtService, sessionStore)
	pipeline := usecases.NewPipeline(walletRepo, txRepo, auditRepo, uow,
		engine, queue, adapters, ks, authorizer, bus, metrics, cfg.Pipeline.ConfirmTimeout)
	walletUsecase := usecases.NewWalletUsecase(walletRepo, txRepo, auditRepo, ks)

	// Initialize handlers
	walletHandler := handlers.NewWalletHandler(walletUsecase)
	transactionHandler := handlers.NewTransactionHandler(pipeline, txRepo)
	approvalHandler := handlers.NewApprovalHandler(queue, approvalRepo)
	policyHandler := handlers.NewPolicyHandler(policyRepo, walletRepo)
	sessionHandler := handlers.NewSessionHandler(jwtService, sessionStore, walletRepo, cfg.JWT.SessionTTL)

	// Agent auth middleware
	authMiddleware := middleware.AuthMiddleware(jwtService)

	// Crash recovery: requeue or park whatever a previous run left in flight
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pipeline.RecoverInFlight(ctx); err != nil {
		log.Printf("⚠️ In-flight recovery failed: %v", err)
	}

	// Background scheduler
	scheduler := jobs.NewScheduler(10 * time.Second)
	scheduler.Register(jobs.NewQueueSweepJob(queue, metrics, cfg.Queue.SweepInterval).Task())
	scheduler.Start(ctx)

	// Initialize router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	registerHealthRoute(r)
	registerMetricsRoute(r, registry)
	registerAPIV1Routes(r, routeDeps{
		walletHandler:      walletHandler,
		transactionHandler: transactionHandler,
		approvalHandler:    approvalHandler,
		policyHandler:      policyHandler,
		sessionHandler:     sessionHandler,
		authMiddleware:     authMiddleware,
	})

	// Print all registered routes for debugging
	log.Println("📋 Registered Routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	// Graceful shutdown
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("🛑 Shutting down walletd...")
		scheduler.Stop()
		pipeline.Wait()
		cancel()
	}()

	// Start server
	log.Printf("🚀 Agent wallet daemon starting on port %s", cfg.Server.Port)
	log.Printf("📚 API: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("❤️ Health: http://localhost:%s/health", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
