// internal/app/server.go
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"soko-service/internal/config"
	"soko-service/internal/db"
	"soko-service/internal/events"
	alertHandler "soko-service/internal/handlers/alert"
	entitlementHandler "soko-service/internal/handlers/entitlement"
	planHandler "soko-service/internal/handlers/plan"
	settlementHandler "soko-service/internal/handlers/settlement"
	subscriptionHandler "soko-service/internal/handlers/subscription"
	wsHandler "soko-service/internal/handlers/ws"
	"soko-service/internal/middleware"
	"soko-service/internal/pkg/jwt"
	"soko-service/internal/repository/postgres"
	"soko-service/internal/service/email"
	entitlementUsecase "soko-service/internal/service/entitlement"
	"soko-service/internal/service/lifecycle"
	notifyUsecase "soko-service/internal/service/notification"
	planUsecase "soko-service/internal/service/plan"
	settlementUsecase "soko-service/internal/service/settlement"
	subscriptionUsecase "soko-service/internal/service/subscription"
	usageUsecase "soko-service/internal/service/usage"
	"soko-service/internal/websocket"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	cfg    config.AppConfig
	engine *gin.Engine
	logger *zap.Logger

	httpServer *http.Server
	cancelBg   context.CancelFunc
}

func NewServer() *Server {
	cfg := config.Load()
	engine := gin.New()
	return &Server{cfg: cfg, engine: engine}
}

func (s *Server) Start() error {
	ctx := context.Background()

	// ----- Logger -----
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer logger.Sync()
	s.logger = logger

	// ----- PostgreSQL -----
	pool, err := db.ConnectDB(ctx, s.cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	logger.Info("connected to PostgreSQL")

	// ----- Redis -----
	redisClient, err := db.NewRedisClient(db.RedisConfig{
		Addr:     s.cfg.RedisAddr,
		Password: s.cfg.RedisPass,
		DB:       s.cfg.RedisDB,
		PoolSize: 10,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	// ----- JWT Manager -----
	jwtManager, err := jwt.LoadAndBuild(s.cfg.JWT)
	if err != nil {
		return fmt.Errorf("failed to load JWT manager: %w", err)
	}

	// ----- Email -----
	emailSender := email.NewEmailSender(
		s.cfg.SMTPHost,
		s.cfg.SMTPPort,
		s.cfg.SMTPUser,
		s.cfg.SMTPPass,
		s.cfg.SMTPFromName,
		s.cfg.SMTPSecure,
	)

	// ----- Repositories -----
	dbWrapper := postgres.NewDB(pool)
	planRepo := postgres.NewPlanRepository(pool)
	subscriptionRepo := postgres.NewSubscriptionRepository(pool)
	historyRepo := postgres.NewHistoryRepository(pool)
	counterRepo := postgres.NewFeatureCounterRepository(pool)
	settlementRepo := postgres.NewSettlementRepository(pool)
	alertRepo := postgres.NewAlertRepository(pool)

	// ----- WebSocket Hub -----
	hub := websocket.NewHub(jwtManager.Verifier, logger)

	bgCtx, cancelBg := context.WithCancel(context.Background())
	s.cancelBg = cancelBg
	go hub.Run(bgCtx)

	// ----- Services -----
	publisher := events.NewRedisPublisher(redisClient, logger)
	directory := notifyUsecase.NewRedisDirectory(redisClient)
	dispatcher := notifyUsecase.NewDispatcher(alertRepo, redisClient, hub, emailSender, directory, logger)

	planService := planUsecase.NewPlanService(planRepo, redisClient, logger)
	ledgerService := subscriptionUsecase.NewLedgerService(
		dbWrapper,
		subscriptionRepo,
		historyRepo,
		counterRepo,
		planRepo,
		publisher,
		logger,
	)
	settlementService := settlementUsecase.NewSettlementService(
		dbWrapper,
		settlementRepo,
		planRepo,
		subscriptionRepo,
		ledgerService,
		dispatcher,
		logger,
	)
	meterService := usageUsecase.NewMeterService(dbWrapper, counterRepo, subscriptionRepo, planRepo, logger)
	gateService := entitlementUsecase.NewGateService(subscriptionRepo, planRepo, counterRepo, meterService, logger)

	// ----- Lifecycle Sweeper -----
	sweeper := lifecycle.NewSweeper(subscriptionRepo, counterRepo, ledgerService, dispatcher, s.cfg.SweepInterval, logger)
	go sweeper.Run(bgCtx)

	// ----- Handlers -----
	planHandlerInst := planHandler.NewPlanHandler(planService)
	subscriptionHandlerInst := subscriptionHandler.NewSubscriptionHandler(ledgerService)
	settlementHandlerInst := settlementHandler.NewSettlementHandler(settlementService, s.cfg.WebhookSecret, logger)
	entitlementHandlerInst := entitlementHandler.NewEntitlementHandler(gateService)
	alertHandlerInst := alertHandler.NewAlertHandler(dispatcher)
	wsHandlerInst := wsHandler.NewWSHandler(hub, s.cfg.AllowedOrigins, logger)

	// ----- Middlewares -----
	authMiddleware := middleware.NewAuthMiddleware(jwtManager.Verifier)

	s.engine.Use(
		middleware.RecoveryMiddleware(logger),
		middleware.LoggingMiddleware(logger),
		middleware.CORSMiddleware(s.cfg.AllowedOrigins),
	)

	// ----- Router -----
	handlers := &Handlers{
		PlanHandler:         planHandlerInst,
		SubscriptionHandler: subscriptionHandlerInst,
		SettlementHandler:   settlementHandlerInst,
		EntitlementHandler:  entitlementHandlerInst,
		AlertHandler:        alertHandlerInst,
		WSHandler:           wsHandlerInst,
		AuthMiddleware:      authMiddleware,
	}
	SetupRouter(s.engine, logger, handlers)

	// ----- Start HTTP -----
	s.httpServer = &http.Server{
		Addr:         s.cfg.HTTPAddr,
		Handler:      s.engine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	logger.Info("server running", zap.String("addr", s.cfg.HTTPAddr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops background workers and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.cancelBg != nil {
		s.cancelBg()
	}
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
