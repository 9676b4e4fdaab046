package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"finance/internal/app"
	"finance/internal/config"
	"finance/internal/handlers"
	"finance/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

func main() {
	// Load .env file if it exists, but don't fail if it's missing (e.g. in production)
	_ = godotenv.Load()

	cfg, err := config.Load(os.Getenv("FINANCE_CONFIG_DIR"))
	if err != nil {
		logrus.Fatalf("config: %v", err)
	}
	log, err := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)
	if err != nil {
		logrus.Fatalf("logger: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	defer a.Close()

	if log.GetLevel() < logrus.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}
	rg := gin.New()
	rg.Use(gin.Recovery())
	handlers.NewHandler(a.Engine, a.Auth, log).Routes(rg)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           rg,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithFields(logrus.Fields{
			"port":     cfg.Service.Port,
			"driver":   cfg.Database.Driver,
			"provider": cfg.Quotes.Provider,
		}).Info("server starting")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutdown requested")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warnf("shutdown: %v", err)
	}
}
