package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"nestmarket/internal/config"
	"nestmarket/internal/db"
	"nestmarket/internal/email"
	apihttp "nestmarket/internal/http"
	"nestmarket/internal/repository"
	"nestmarket/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	accountRepo := repository.NewPgAccountRepository(pool)
	transactionRepo := repository.NewPgTransactionRepository(pool)
	notificationRepo := repository.NewPgNotificationRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		otpStore    service.OTPStore
		otpLimiter  service.OTPRateLimiter
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			otpStore = service.NewRedisOTPStore(redisClient)
			otpLimiter = service.NewRedisOTPRateLimiter(redisClient, 10*time.Minute, 3)
		}
		cancel()
	}

	jwtSvc := service.NewJWTService(cfg.JWTSecret, time.Duration(cfg.JWTSessionDays)*24*time.Hour)

	ledgerSvc := service.NewLedgerService(logger, accountRepo, transactionRepo, notificationRepo)
	engagementSvc := service.NewEngagementService(logger, accountRepo, ledgerSvc)
	userSvc := service.NewUserService(logger, accountRepo, ledgerSvc, engagementSvc)
	otpSvc := service.NewOTPService(logger, accountRepo, userSvc, engagementSvc, otpStore, otpLimiter, emailSender)

	var googleVerifier service.GoogleTokenVerifier
	if cfg.GoogleClientID != "" {
		googleVerifier = service.NewGoogleTokenVerifier(cfg.GoogleClientID)
	} else {
		logger.Warn("google client id not configured, google login disabled")
	}
	googleSvc := service.NewGoogleAuthService(logger, accountRepo, userSvc, engagementSvc, googleVerifier)

	authHandler := apihttp.NewAuthHandler(logger, userSvc, otpSvc, googleSvc, engagementSvc, jwtSvc)
	walletHandler := apihttp.NewWalletHandler(logger, userSvc, ledgerSvc, transactionRepo, notificationRepo)
	router := apihttp.NewRouter(logger, jwtSvc, authHandler, walletHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
