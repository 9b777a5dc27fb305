package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "fleetops/api/swagger" // swagger docs
	"fleetops/internal/config"
	"fleetops/internal/database"
	"fleetops/internal/handler"
	"fleetops/internal/logger"
	"fleetops/internal/metrics"
	"fleetops/internal/middleware"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/internal/scheduler"
	"fleetops/internal/service"
	"fleetops/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

// @title           FleetOps API
// @version         1.0
// @description     Role based access control, superadmin consistency and the dynamic payroll ledger.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	cfg := config.Load()
	log := logger.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	db, err := database.NewConnection(cfg.DSN(), log)
	if err != nil {
		log.WithError(err).Fatal("Database connection failed")
	}
	log.Info("Connected to PostgreSQL successfully.")

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewMetrics(registry)

	// Set up WebSocket Hub
	stop := make(chan struct{})
	wsHub := websocket.NewHub(log)
	go wsHub.Run(stop)

	// Set up dependencies (Repository -> Service -> Handler)
	txManager := repository.NewTransactionManager(db)
	roleRepo := repository.NewRoleRepository(db)
	permRepo := repository.NewPermissionRepository(db)
	userRepo := repository.NewUserRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	recordRepo := repository.NewRecordRepository(db)
	fieldRepo := repository.NewFieldRepository(db)
	provenanceRepo := repository.NewProvenanceRepository(db)

	auditService := service.NewAuditService(auditRepo)
	superadminService := service.NewSuperadminService(txManager, roleRepo, permRepo, auditService, wsHub, m, log)
	roleService := service.NewRoleService(txManager, roleRepo, permRepo, superadminService, auditService, wsHub, log)
	userService := service.NewUserService(txManager, userRepo, roleRepo, auditService, cfg.JWTSecret)
	catalogService := service.NewCatalogService(fieldRepo, auditService)
	financeService := service.NewRecordService(model.CategoryFinance, txManager, recordRepo, provenanceRepo, catalogService, auditService, log)
	payslipRecords := service.NewRecordService(model.CategoryPayslip, txManager, recordRepo, provenanceRepo, catalogService, auditService, log)
	validator := service.NewRowValidator(cfg.ImportPolicy, userRepo)
	importService := service.NewImportService(txManager, recordRepo, provenanceRepo, catalogService, validator, auditService, wsHub, m, log)
	payslipService := service.NewPayslipService(txManager, recordRepo, provenanceRepo, catalogService, auditService, wsHub, m, log)

	seedCtx, cancelSeed := context.WithTimeout(context.Background(), time.Minute)
	if err := roleService.SeedDefaults(seedCtx); err != nil {
		log.WithError(err).Fatal("Failed to seed roles and permissions")
	}
	cancelSeed()

	jobs := scheduler.New(superadminService, log)
	if err := jobs.ScheduleRepair(cfg.RepairSchedule); err != nil {
		log.WithError(err).Fatal("Failed to schedule superadmin repair")
	}
	jobs.Start()

	auth := middleware.NewAuth(cfg.JWTSecret, service.NewAuthorizer(roleRepo, m), log)
	secureCookies := cfg.GinMode == gin.ReleaseMode

	// Initialize Handlers
	healthHandler := handler.NewHealthHandler(db)
	userHandler := handler.NewUserHandler(userService, roleService, auth, secureCookies)
	roleHandler := handler.NewRoleHandler(roleService, auth)
	superadminHandler := handler.NewSuperadminHandler(superadminService, auth)
	auditHandler := handler.NewAuditHandler(auditService, auth)
	financeHandler := handler.NewRecordHandler(financeService, catalogService, auth, "finance",
		handler.WithImport(importService, cfg.MaxUploadBytes))
	payslipHandler := handler.NewRecordHandler(payslipRecords, catalogService, auth, "payslips",
		handler.WithPayslipGeneration(payslipService))

	if cfg.GinMode != "" {
		gin.SetMode(cfg.GinMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), logger.GinMiddleware(log), m.GinMiddleware())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", metrics.Handler(registry))

	// WebSocket endpoint
	router.GET("/ws", auth.RequirePermission("events.subscribe"), func(c *gin.Context) {
		websocket.ServeWs(wsHub, c)
	})

	// API Routing
	root := router.Group("")
	healthHandler.RegisterRoutes(root)
	userHandler.RegisterRoutes(root)
	roleHandler.RegisterRoutes(root)
	superadminHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)
	financeHandler.RegisterRoutes(root, "/api/finance")
	payslipHandler.RegisterRoutes(root, "/api/payslips")

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Infof("Server listening on :%s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server failed")
		}
	}()

	// Wait for termination signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info("Shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("HTTP server shutdown failed")
	}
	jobs.Stop()
	close(stop)

	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	log.Info("Server stopped")
}
