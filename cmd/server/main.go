package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"eventsync/internal/app/server"
	"eventsync/internal/app/server/api/http/httperr"
	"eventsync/internal/config"
	"eventsync/internal/utils/logger"

	"golang.org/x/exp/slog"
)

func main() {
	configFile := flag.String("config", "", "config file")
	flag.Parse()

	conf, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.NewWithLevel(conf.Env, conf.Logger.LogLevel)

	// Ошибки Huma (в том числе 422 валидации) отдаются в форме {message, error}
	httperr.Install()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := server.New(ctx, conf, log)
	if err != nil {
		log.Error("Failed to start node", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if err := app.Run(ctx); err != nil {
		log.Error("Server stopped with error", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("Server stopped")
}
