package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "procurement/api/swagger" // swagger docs
	"procurement/internal/authz"
	"procurement/internal/config"
	"procurement/internal/database"
	"procurement/internal/delivery"
	"procurement/internal/handler"
	"procurement/internal/middleware"
	"procurement/internal/repository"
	"procurement/internal/service"
	"procurement/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"
)

// @title           Procurement API
// @version         1.0
// @description     Purchase requests, quotations, RFQ dispatch and purchase orders.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := initLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	gin.SetMode(cfg.Server.Mode)

	db, err := database.NewConnection(cfg.Database, log)
	if err != nil {
		log.Fatal("Database connection failed", zap.Error(err))
	}
	log.Info("Connected to PostgreSQL")

	ctx := context.Background()

	// Permission cache
	var cache authz.Cache = authz.NewMemoryCache()
	if cfg.Redis.Host != "" {
		rdb := initRedis(cfg.Redis)
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			log.Warn("Redis unavailable, using in-memory permission cache", zap.String("addr", cfg.Redis.Addr()), zap.Error(err))
		} else {
			cache = authz.NewRedisCache(rdb)
			defer rdb.Close()
		}
	}

	// Repositories
	roleRepo := repository.NewRoleRepository(db)
	requestRepo := repository.NewPurchaseRequestRepository(db)
	quotationRepo := repository.NewQuotationRepository(db)
	orderRepo := repository.NewPurchaseOrderRepository(db)
	supplierRepo := repository.NewSupplierRepository(db)
	rfqRepo := repository.NewRFQRepository(db)
	settingsRepo := repository.NewSettingsRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	if err := authz.SeedDefaultRolesAndPermissions(ctx, roleRepo); err != nil {
		log.Fatal("Failed to seed roles", zap.Error(err))
	}
	authorizer := authz.NewAuthorizer(roleRepo, cache, cfg.Redis.PermissionTTL, log)

	// WebSocket hub
	done := make(chan struct{})
	hub := websocket.NewHub(log)
	go hub.Run(done)

	// RFQ delivery
	var store service.DocumentStore
	if cfg.MinIO.Endpoint != "" {
		minioStore, err := delivery.NewMinIOStore(ctx, cfg.MinIO.Endpoint, cfg.MinIO.AccessKey, cfg.MinIO.SecretKey, cfg.MinIO.Bucket, cfg.MinIO.UseSSL)
		if err != nil {
			log.Warn("MinIO unavailable, RFQ documents will not be archived", zap.Error(err))
		} else {
			store = minioStore
		}
	}
	var senders []service.Sender
	if cfg.SMTP.Host != "" {
		senders = append(senders, delivery.NewSMTPSender(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From))
	}
	if cfg.WhatsApp.GatewayURL != "" {
		senders = append(senders, delivery.NewWhatsAppSender(cfg.WhatsApp.GatewayURL, cfg.WhatsApp.Token, cfg.WhatsApp.Timeout))
	}
	if len(senders) == 0 {
		log.Warn("No RFQ delivery methods configured")
	}
	renderer := delivery.NewSpreadsheetRenderer(cfg.Workflow.Organization)

	// Services
	opts := service.Options{
		MaxRetries:          cfg.Workflow.MaxRetries,
		DefaultCurrency:     cfg.Workflow.DefaultCurrency,
		DeliveryTimeout:     cfg.Workflow.DeliveryTimeout,
		DeliveryConcurrency: cfg.Workflow.DeliveryConcurrency,
		Organization:        cfg.Workflow.Organization,
	}
	settingsService := service.NewSettingsService(settingsRepo, auditRepo, txManager, cfg.Workflow.Policy(), log)
	requestService := service.NewRequestService(requestRepo, supplierRepo, auditRepo, txManager, authorizer, settingsService, hub, log, opts)
	quotationService := service.NewQuotationService(quotationRepo, requestRepo, orderRepo, supplierRepo, rfqRepo, auditRepo, txManager, authorizer, settingsService, hub, log, opts)
	orderService := service.NewOrderService(orderRepo, requestRepo, quotationRepo, supplierRepo, auditRepo, txManager, hub, log, opts)
	rfqService := service.NewRFQService(rfqRepo, requestRepo, supplierRepo, auditRepo, txManager, renderer, senders, store, hub, log, opts)
	auditService := service.NewAuditService(auditRepo)
	roleService := service.NewRoleService(roleRepo, auditRepo, txManager, authorizer, log)
	supplierService := service.NewSupplierService(supplierRepo)

	// Router
	router := gin.New()
	router.Use(middleware.RequestID(), middleware.Logger(log), middleware.Recovery(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.Server.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", middleware.HeaderRequestID}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	router.GET("/health", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DOWN", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK", "ws_clients": hub.ClientCount()})
	})

	secret := []byte(cfg.JWT.Secret)
	router.GET("/ws", hub.Handler(secret))

	guard := middleware.NewAuthenticator(secret, authorizer, log)
	api := router.Group("")
	handler.NewRequestHandler(requestService).RegisterRoutes(api, guard)
	handler.NewQuotationHandler(quotationService).RegisterRoutes(api, guard)
	handler.NewRFQHandler(rfqService).RegisterRoutes(api, guard)
	handler.NewOrderHandler(orderService).RegisterRoutes(api, guard)
	handler.NewSettingsHandler(settingsService).RegisterRoutes(api, guard)
	handler.NewAuditHandler(auditService).RegisterRoutes(api, guard)
	handler.NewRoleHandler(roleService).RegisterRoutes(api, guard)
	handler.NewSupplierHandler(supplierService).RegisterRoutes(api, guard)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("Server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")
	close(done)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	log.Info("Server exited")
}

func initLogger(cfg config.LogConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
	}

	switch cfg.Level {
	case "debug":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		zapCfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	}
	return zapCfg.Build()
}

func initRedis(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}
