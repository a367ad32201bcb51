package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/config"
	"github.com/jorat/landing/internal/handlers"
	"github.com/jorat/landing/internal/middleware"
	"github.com/jorat/landing/internal/repository"
	"github.com/jorat/landing/internal/service"
	"github.com/jorat/landing/internal/sms"
	"github.com/jorat/landing/internal/validation"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	if level, err := logrus.ParseLevel(cfg.Server.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	clk := clock.New()

	validator, err := validation.New()
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize validator")
	}

	otpRepo := repository.NewOTPRepository(repository.OTPRepositoryConfig{
		Expiry:        cfg.OTP.Expiry,
		MaxAttempts:   cfg.OTP.MaxAttempts,
		SweepInterval: cfg.OTP.SweepInterval,
	}, service.GenerateCode, clk, logger)
	otpRepo.Start(ctx)
	defer otpRepo.Stop()

	limiter, closeLimiter, err := initRateLimiter(ctx, cfg, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize rate limiter")
	}
	defer closeLimiter()

	var leads service.LeadRecorder
	if cfg.DynamoDB.LeadsTableName != "" {
		dynamoClient, err := initDynamoDB(ctx, cfg, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize DynamoDB")
		}
		leads = repository.NewLeadRepository(dynamoClient, cfg.DynamoDB.LeadsTableName, logger)
	}

	tokenService, err := service.NewDownloadTokenService(cfg.Download.TokenSecret, cfg.Download.TokenExpiry, clk, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize download token service")
	}

	otpService := service.NewOTPService(service.OTPServiceDeps{
		Store:     otpRepo,
		Limiter:   limiter,
		Sender:    initSender(cfg, logger),
		Leads:     leads,
		Tokens:    tokenService,
		Validator: validator,
		Clock:     clk,
		Logger:    logger,
	})

	router := handlers.NewRouter(handlers.RouterDeps{
		OTP:            handlers.NewOTPHandlers(otpService, logger),
		Download:       handlers.NewDownloadHandlers(cfg.Download.APKPath, cfg.Download.FileName, logger),
		AuthMiddleware: middleware.NewAuthMiddleware(tokenService, logger),
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		Logger:         logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"port": cfg.Server.Port,
			"env":  cfg.Server.Env,
		}).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	<-ctx.Done()

	logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initSender(cfg *config.Config, logger *logrus.Logger) sms.Sender {
	if cfg.SMS.DevMode {
		logger.Warn("SMS dev mode enabled, OTP codes are logged instead of sent")
		return sms.NewLogSender(logger)
	}

	return sms.NewGateway(sms.Config{
		APIURL:   cfg.SMS.APIURL,
		APIToken: cfg.SMS.APIToken,
		Template: cfg.SMS.Template,
		Timeout:  cfg.SMS.Timeout,
	}, &http.Client{}, logger)
}

func initRateLimiter(ctx context.Context, cfg *config.Config, clk clock.Clock, logger *logrus.Logger) (service.RateLimiter, func(), error) {
	limits := service.RateLimitConfig{
		MaxRequests:   cfg.RateLimit.MaxRequests,
		Window:        cfg.RateLimit.Window,
		SweepInterval: cfg.RateLimit.SweepInterval,
	}

	if cfg.RateLimit.Backend == config.RateLimitBackendRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Endpoint,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		logger.WithField("endpoint", cfg.Redis.Endpoint).Info("Redis rate limiter initialized")
		return service.NewRedisRateLimiter(client, limits, logger), func() { client.Close() }, nil
	}

	limiter := service.NewMemoryRateLimiter(limits, clk, logger)
	limiter.Start(ctx)
	return limiter, limiter.Stop, nil
}

func initDynamoDB(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.DynamoDB.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		if cfg.DynamoDB.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.DynamoDB.Endpoint)
		}
	})
	logger.WithField("table", cfg.DynamoDB.LeadsTableName).Info("DynamoDB lead repository initialized")
	return client, nil
}
