package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "adcert/api/swagger" // swagger docs
	"adcert/internal/config"
	"adcert/internal/database"
	"adcert/internal/handler"
	"adcert/internal/logging"
	"adcert/internal/middleware"
	"adcert/internal/repository"
	"adcert/internal/service"
	"adcert/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"gorm.io/gorm"
)

// @title           Advert Certification API
// @version         1.0
// @description     Submission review workflow and certificate issuance for advertising campaigns.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}
	logging.Setup(os.Stdout, cfg.App.LogFormat, cfg.App.LogLevel)
	if cfg.App.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	logging.Info(ctx, "starting adcert", slog.String("environment", cfg.App.Environment))

	db, err := database.NewConnection(ctx, cfg.Database)
	if err != nil {
		logging.Error(ctx, "database connection failed", slog.Any("err", err))
		os.Exit(1)
	}
	sqlDB, err := db.DB()
	if err != nil {
		logging.Error(ctx, "database handle unavailable", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logging.Warn(ctx, "error closing database", slog.Any("err", err))
		}
	}()

	middleware.InitAuth(cfg.Auth.JWTSecret)

	// Set up WebSocket Hub
	wsHub := websocket.NewHub()
	go wsHub.Run(ctx)

	// Set up dependencies (Repository -> Service -> Handler)
	profileRepo := repository.NewProfileRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	commentRepo := repository.NewCommentRepository(db)
	certificateRepo := repository.NewCertificateRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	txManager := repository.NewTransactionManager(db)

	certificateService := service.NewCertificateService(certificateRepo, submissionRepo, profileRepo, auditRepo, txManager, wsHub, service.CertificateOptions{
		VerifyBaseURL: cfg.Certificate.VerifyBaseURL,
		MaxAttempts:   cfg.Certificate.MaxAttempts,
		ValidityDays:  cfg.Certificate.ValidityDays,
	})
	submissionService := service.NewSubmissionService(submissionRepo, commentRepo, profileRepo, auditRepo, txManager, certificateService, wsHub, nil)
	tokenTTL := time.Duration(cfg.Auth.TokenTTL) * time.Hour
	profileService := service.NewProfileService(profileRepo, auditRepo, txManager, cfg.Auth.JWTSecret, tokenTTL, nil)
	auditService := service.NewAuditService(auditRepo)

	if err := profileService.SeedAdmin(ctx, cfg.Auth.BootstrapAdminEmail, cfg.Auth.BootstrapAdminPassword); err != nil {
		logging.Error(ctx, "failed to seed bootstrap admin", slog.Any("err", err))
		os.Exit(1)
	}

	// Initialize Handlers
	profileHandler := handler.NewProfileHandler(profileService, int(tokenTTL.Seconds()), cfg.App.IsProduction())
	submissionHandler := handler.NewSubmissionHandler(submissionService, certificateService)
	certificateHandler := handler.NewCertificateHandler(certificateService)
	auditHandler := handler.NewAuditHandler(auditService)

	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger())

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORS.AllowOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept", "X-Request-ID"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	registerHealth(router, db)

	router.GET("/ws", func(c *gin.Context) {
		websocket.ServeWs(wsHub, c, middleware.GetJWTSecret())
	})

	root := router.Group("")
	profileHandler.RegisterRoutes(root)
	submissionHandler.RegisterRoutes(root)
	certificateHandler.RegisterRoutes(root)
	auditHandler.RegisterRoutes(root)

	var h http.Handler = router
	if cfg.Server.H2C {
		// Serve HTTP/2 without TLS for clients behind a terminating proxy
		h = h2c.NewHandler(router, &http2.Server{MaxConcurrentStreams: 250})
	}

	server := &http.Server{
		Addr:           cfg.Server.GetServerAddr(),
		Handler:        h,
		ReadTimeout:    time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout:   time.Duration(cfg.Server.WriteTimeout) * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	go func() {
		logging.Info(ctx, "server listening", slog.String("addr", server.Addr), slog.Bool("h2c", cfg.Server.H2C))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error(ctx, "server failed", slog.Any("err", err))
			stop()
		}
	}()

	<-ctx.Done()
	logging.Info(context.Background(), "shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Error(shutdownCtx, "server forced to shutdown", slog.Any("err", err))
		return
	}
	logging.Info(shutdownCtx, "server exited gracefully")
}

func registerHealth(router *gin.Engine, db *gorm.DB) {
	router.GET("/health", func(c *gin.Context) {
		hostname, _ := os.Hostname()
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "adcert", "hostname": hostname})
	})

	router.GET("/health/db", func(c *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "message": "database unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "database": "connected"})
	})
}
