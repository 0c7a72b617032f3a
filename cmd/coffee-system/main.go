package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"coffee-shop-system/internal/barista/console"
	"coffee-shop-system/internal/config"
	"coffee-shop-system/internal/connections/database"
	"coffee-shop-system/internal/connections/rabbitmq"
	"coffee-shop-system/internal/logger"
	"coffee-shop-system/internal/microservices/dispatch"
	"coffee-shop-system/internal/microservices/store"
)

func main() {
	mode := flag.String("mode", "", "store-service | dispatch-service | barista-console")
	configPath := flag.String("config", "config.yaml", "path to config file")
	branchHint := flag.String("branch", "", "barista-console: one-time branch provisioning hint")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	lg := logger.New(*mode)
	lg.SetLevel(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch *mode {
	case "store-service":
		db, err := database.ConnectDB(ctx, cfg.Database)
		if err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
		defer db.Close()
		rmq, err := rabbitmq.Dial(rmqConfig(cfg))
		if err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
		defer rmq.Close()
		lg.Info("service_started", map[string]any{"service": "store-service", "port": cfg.Store.Port})
		if err := store.Run(ctx, cfg, db, rmq, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "dispatch-service":
		rmq, err := rabbitmq.Dial(rmqConfig(cfg))
		if err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
		defer rmq.Close()
		lg.Info("service_started", map[string]any{"service": "dispatch-service", "port": cfg.Dispatch.Port})
		if err := dispatch.Run(ctx, cfg, rmq, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "barista-console":
		lg.Info("service_started", map[string]any{"service": "barista-console"})
		if err := console.Run(ctx, cfg, console.Options{BranchHint: *branchHint}, lg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: store-service | dispatch-service | barista-console")
		os.Exit(2)
	}
}

func rmqConfig(cfg *config.Config) rabbitmq.Config {
	return rabbitmq.Config{
		Host:     cfg.RabbitMQ.Host,
		Port:     cfg.RabbitMQ.Port,
		User:     cfg.RabbitMQ.User,
		Password: cfg.RabbitMQ.Password,
		VHost:    cfg.RabbitMQ.VHost,
	}
}
