// Package main runs the background job worker (email delivery, export builds).
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/doorlist/backend/config"
	"github.com/doorlist/backend/internal/attendees"
	"github.com/doorlist/backend/internal/emails"
	"github.com/doorlist/backend/internal/exports"
	"github.com/doorlist/backend/internal/mailer"
	"github.com/doorlist/backend/internal/worker"
	"github.com/doorlist/backend/pkg/database"
	"github.com/doorlist/backend/pkg/queue"
	"github.com/doorlist/backend/pkg/redis"
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
			logger.Warn("s3 disabled, export jobs will fail", zap.Error(err))
		}
	} else {
		logger.Warn("AWS_S3_EXPORTS_BUCKET not set, export jobs will fail")
	}

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

	attendeeRepo := attendees.NewRepository(pool)
	emailRepo := emails.NewRepository(pool)
	exportRepo := exports.NewRepository(pool)
	exportBuilder := exports.NewBuilder(pool)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewProcessor(attendeeRepo, emailRepo, exportRepo, exportBuilder,
		mail, s3Client, jobQueue, cfg.Event.Name, cfg.Event.PublicBaseURL, logger)

	workerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go processor.Run(workerCtx)
	logger.Info("worker started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	cancel()
	time.Sleep(2 * time.Second)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
