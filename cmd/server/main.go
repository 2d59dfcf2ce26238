package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/activity"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/authflow"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/config"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/db"
	internalhttp "github.com/cherinet-woyesa/eoty-platform-sub006/internal/http"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/logger"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/mail"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/model"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/oauth"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/permissions"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/repository"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/schema"
	"github.com/cherinet-woyesa/eoty-platform-sub006/internal/tokens"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New(0).Fatal("invalid configuration", "error", err)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal("db connection failed", "error", err)
	}
	defer pool.Close()

	// Redis is optional: with REDIS_ADDR unset, OTP codes live in
	// Postgres alongside the other tokens.
	var otpStore tokens.OTPStore
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Fatal("redis connection failed", "error", err)
		}
		defer client.Close()
		otpStore = tokens.NewRedisOTPStore(client)
		log.Info("otp codes backed by redis", "addr", cfg.RedisAddr)
	}

	store := repository.NewStore(pool)
	probe := schema.NewProbe(pool, log)
	recorder := activity.NewRecorder(store, store, probe, log)
	registry := tokens.New(store, otpStore, tokens.Options{
		OTPTTL:     cfg.OTPTTL,
		ResetTTL:   cfg.ResetTTL,
		VerifyTTL:  cfg.VerifyTTL,
		BcryptCost: cfg.BcryptCost,
	})

	mailer, err := mail.New(cfg.Mail, log)
	if err != nil {
		log.Fatal("mail transport setup failed", "error", err)
	}

	providers := map[string]oauth.Provider{}
	if cfg.OAuth.Google.ClientID != "" {
		providers[model.ProviderGoogle] = oauth.NewGoogle(cfg.OAuth.Google, log)
	}
	if cfg.OAuth.Facebook.ClientID != "" {
		providers[model.ProviderFacebook] = oauth.NewFacebook(cfg.OAuth.Facebook, log)
	}

	flows := authflow.New(store, store, registry, mailer, recorder, probe, authflow.Config{
		JWTSecret:   cfg.JWTSecret,
		Issuer:      "eoty-auth",
		SessionTTL:  cfg.SessionTTL,
		DeviceTTL:   cfg.DeviceTTL,
		BcryptCost:  cfg.BcryptCost,
		FrontendURL: cfg.FrontendURL,
	}, log)
	resolver := permissions.NewResolver(store, log)

	server := internalhttp.NewServer(cfg, flows, recorder, resolver, store, store, providers, log)

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("auth core listening", "addr", cfg.HTTPAddr, "env", cfg.Environment)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("http server error", "error", err)
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}
}
