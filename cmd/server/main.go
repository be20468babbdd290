package main

import (
	"fmt"
	"os"

	"warehouse-backend/internal/config"
	"warehouse-backend/internal/database"
	"warehouse-backend/internal/logging"
	"warehouse-backend/internal/server"

	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, warnings, err := config.Load()
	if err != nil {
		return err
	}

	log, err := logging.New(cfg.IsProduction(), cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	for _, w := range warnings {
		log.Warn(w)
	}

	db, err := database.Open(cfg, log)
	if err != nil {
		return err
	}

	app := server.New(cfg, db, log)

	addr := ":" + cfg.HTTPPort
	log.Info("server listening", zap.String("addr", addr), zap.String("env", cfg.Environment))
	return app.Listen(addr)
}
