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

	"eldercare-platform/internal/auth"
	"eldercare-platform/internal/config"
	"eldercare-platform/internal/docstore"
	"eldercare-platform/internal/httpapi"
	"eldercare-platform/internal/records"
	"eldercare-platform/internal/reporting"
	"eldercare-platform/internal/token"
	"eldercare-platform/pkg/logger"

	"github.com/gin-gonic/gin"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	// The certificate is optional outside production; without it the token
	// endpoint answers 503 and clients join with no credential.
	var issuer *token.Issuer
	if cfg.RTC.AppCertificate != "" {
		issuer, err = token.NewIssuer(cfg.RTC.AppID, cfg.RTC.AppCertificate, cfg.RTC.TokenTTL)
		if err != nil {
			log.Error("token issuer init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("RTC_APP_CERTIFICATE not set, token endpoint disabled")
	}

	store, closeStore, err := docstore.Open(rootCtx, cfg, log)
	if err != nil {
		log.Error("document store init failed", "driver", cfg.Store.Driver, "err", err)
		os.Exit(1)
	}
	defer func() { _ = closeStore() }()

	repo := records.NewDocRepository(store, log)
	h := httpapi.Handlers{
		Auth:    authManager,
		Tokens:  issuer,
		Records: records.NewSynchronizer(repo, log),
		Reports: reporting.NewService(repo),
	}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env, "store", cfg.Store.Driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
