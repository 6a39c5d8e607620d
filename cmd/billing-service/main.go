package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/gin-gonic/gin"

	"github.com/Dhoini/billing-sync/internal/app"
	"github.com/Dhoini/billing-sync/internal/config"
	"github.com/Dhoini/billing-sync/pkg/logger"
)

func main() {
	configDir := flag.String("config", ".", "directory with config.yml and .env")
	flag.Parse()

	cfg, err := config.LoadConfig(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(logger.ParseLevel(cfg.Log.Level), logger.Options{
		JSON: strings.EqualFold(cfg.Log.Format, "json"),
	})
	//goland:noinspection GoUnhandledErrorResult
	defer log.Sync()

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}

	log.Infow("Billing service starting", "env", cfg.App.Env, "storage", cfg.Storage.Driver, "queue", cfg.Queue.Driver)
	if err := application.Run(ctx); err != nil {
		log.Errorw("Service stopped with error", "error", err)
		os.Exit(1)
	}
	log.Infow("Service stopped gracefully")
}
