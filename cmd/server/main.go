// Package main runs the check-in platform HTTP server with WebSocket feed and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doorlist/backend/config"
	"github.com/doorlist/backend/internal/activity"
	"github.com/doorlist/backend/internal/attendees"
	"github.com/doorlist/backend/internal/auth"
	"github.com/doorlist/backend/internal/checkin"
	"github.com/doorlist/backend/internal/emails"
	"github.com/doorlist/backend/internal/exports"
	"github.com/doorlist/backend/internal/mailer"
	"github.com/doorlist/backend/internal/middleware"
	"github.com/doorlist/backend/internal/models"
	"github.com/doorlist/backend/internal/ratelimit"
	"github.com/doorlist/backend/internal/realtime"
	"github.com/doorlist/backend/internal/registration"
	"github.com/doorlist/backend/internal/worker"
	"github.com/doorlist/backend/pkg/database"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/redis"
	"github.com/doorlist/backend/pkg/response"
	"github.com/doorlist/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.ExportsBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ExportsBucket:        cfg.AWS.ExportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled, export archives unavailable", zap.Error(err))
		}
	} else {
		logger.Warn("AWS_S3_EXPORTS_BUCKET not set, export archives unavailable")
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Activity log. Every mutating handler records through it.
	activityRepo := activity.NewRepository(pool, logger)
	activityHandler := activity.NewHandler(activityRepo)

	// Staff auth, roles, invites
	authRepo := auth.NewRepository(pool)
	inviteExpiry := time.Duration(cfg.JWT.InviteExpireHours) * time.Hour
	authHandler := auth.NewHandler(authRepo, jwtService, jobQueue, activityRepo, cfg.Event.PublicBaseURL, inviteExpiry, logger)

	if err := auth.EnsureBootstrapAdmin(ctx, authRepo, cfg.Bootstrap.AdminEmail, cfg.Bootstrap.AdminPassword, logger); err != nil {
		logger.Fatal("bootstrap admin", zap.Error(err))
	}

	// Attendee registry
	attendeeRepo := attendees.NewRepository(pool)
	attendeeHandler := attendees.NewHandler(attendeeRepo, jobQueue, activityRepo, logger)

	// Check-in resolver
	checkinRepo := checkin.NewRepository(pool)
	checkinService := checkin.NewService(checkinRepo, logger)
	checkinHandler := checkin.NewHandler(checkinService, checkinRepo, activityRepo, hub, logger)

	// Walk-in registration gate and token administration
	registrationRepo := registration.NewRepository(pool)
	registrationService := registration.NewService(registrationRepo, logger)
	registrationHandler := registration.NewHandler(registrationService, jobQueue, activityRepo, logger)
	tokensHandler := registration.NewTokensHandler(registrationRepo, activityRepo, logger)

	// Email delivery log
	emailRepo := emails.NewRepository(pool)
	emailHandler := emails.NewHandler(emailRepo, jobQueue, logger)

	// Report exports (streamed CSV + async S3 archives)
	exportRepo := exports.NewRepository(pool)
	exportBuilder := exports.NewBuilder(pool)
	exportHandler := exports.NewHandler(exportRepo, exportBuilder, jobQueue, s3Client, activityRepo, logger)

	// Rate limiters for the public surface, counted in Redis so limits
	// hold across server instances.
	window := time.Minute
	loginLimiter := ratelimit.NewRedisLimiter(rdb.Client, cfg.RateLimit.LoginPerMinute, window)
	registerLimiter := ratelimit.NewRedisLimiter(rdb.Client, cfg.RateLimit.RegisterPerMinute, window)

	jwtValidate := func(token string) (userID, role string, err error) {
		claims, err := jwtService.Validate(token)
		if err != nil {
			return "", "", err
		}
		return claims.UserID.String(), string(claims.Role), nil
	}

	adminOnly := middleware.RequireRole(models.RoleAdmin, models.RoleSuperAdmin)
	superAdminOnly := middleware.RequireRole(models.RoleSuperAdmin)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Public: walk-in self-registration behind the token gate
	router.POST("/register", middleware.RateLimit(registerLimiter, "register", logger), registrationHandler.Register)
	router.GET("/register/tokens/:token/validate", middleware.RateLimit(registerLimiter, "validate", logger), registrationHandler.Validate)

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", middleware.RateLimit(loginLimiter, "login", logger), authHandler.Login)
		authGroup.POST("/invites/accept", middleware.RateLimit(loginLimiter, "invite_accept", logger), authHandler.AcceptInvite)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/auth/me", authHandler.Me)

		// Staff management (super_admin only)
		api.GET("/users", superAdminOnly, authHandler.List)
		api.POST("/auth/invites", superAdminOnly, authHandler.CreateInvite)
		api.GET("/auth/invites", superAdminOnly, authHandler.ListInvites)

		// Check-ins
		api.POST("/checkins/scan", checkinHandler.Scan)
		api.GET("/checkins", checkinHandler.List)
		api.GET("/checkins/recent", checkinHandler.Recent)
		api.POST("/checkins/repair", adminOnly, checkinHandler.Repair)

		// Attendees
		api.POST("/attendees", adminOnly, attendeeHandler.Create)
		api.GET("/attendees", attendeeHandler.List)
		api.GET("/attendees/stats", attendeeHandler.Stats)
		api.GET("/attendees/:id", attendeeHandler.Get)
		api.PATCH("/attendees/:id", adminOnly, attendeeHandler.Update)
		api.POST("/attendees/bulk-delete", superAdminOnly, attendeeHandler.BulkDelete)
		api.GET("/attendees/:id/qr.png", attendeeHandler.QRCode)
		api.POST("/attendees/:id/send-qr", adminOnly, attendeeHandler.SendQR)

		// Registration tokens (admin)
		api.POST("/registration-tokens", adminOnly, tokensHandler.Create)
		api.GET("/registration-tokens", adminOnly, tokensHandler.List)
		api.PATCH("/registration-tokens/:id", adminOnly, tokensHandler.Update)

		// Email delivery log (admin)
		api.GET("/emails", adminOnly, emailHandler.List)
		api.POST("/emails/:id/resend", adminOnly, emailHandler.Resend)

		// Exports (admin)
		api.GET("/exports/attendees.csv", adminOnly, exportHandler.StreamAttendees)
		api.GET("/exports/checkins.csv", adminOnly, exportHandler.StreamCheckIns)
		api.POST("/exports", adminOnly, exportHandler.CreateJob)
		api.GET("/exports", adminOnly, exportHandler.ListJobs)
		api.GET("/exports/:id/download-url", adminOnly, exportHandler.DownloadURL)

		// Audit log (admin)
		api.GET("/activity", adminOnly, activityHandler.List)
	}

	// WebSocket feed (token in query; no Authorization header required)
	router.GET("/ws", realtime.ServeWs(hub, logger, jwtValidate))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Embedded worker (email delivery, export builds). cmd/worker runs the
	// same loop as a separate process when scaling out; BLPop hands each
	// job to exactly one consumer.
	mail := mailer.NewFromConfig(mailer.Config{
		MailerSendAPIKey: cfg.Email.APIKey,
		SMTPHost:         cfg.Email.SMTPHost,
		SMTPPort:         cfg.Email.SMTPPort,
		SMTPUser:         cfg.Email.SMTPUser,
		SMTPPass:         cfg.Email.SMTPPass,
		SMTPUseTLS:       cfg.Email.SMTPUseTLS,
		FromName:         cfg.Email.FromName,
		FromEmail:        cfg.Email.FromAddress,
	}, logger)
	processor := worker.NewProcessor(attendeeRepo, emailRepo, exportRepo, exportBuilder,
		mail, s3Client, jobQueue, cfg.Event.Name, cfg.Event.PublicBaseURL, logger)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go processor.Run(workerCtx)
	logger.Info("job worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
