// ====================================
// File: cmd/settler/main.go
// ====================================
package main

import (
	"context"
	"flag"

	"go.uber.org/zap"

	"github.com/tarlanisaev/poolbridge/internal/config"
	"github.com/tarlanisaev/poolbridge/internal/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.json", "path to configuration file")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Failed to load configuration", zap.Error(err))
	}

	log, err := logger.New(&logger.Config{
		LogFile:     cfg.LogFile,
		MaxSize:     100,
		MaxAge:      7,
		MaxBackups:  3,
		Compress:    true,
		Development: cfg.DebugLogging,
	})
	if err != nil {
		fallback, _ := zap.NewDevelopment()
		fallback.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer func() { _ = log.Sync() }()

	log.Info("Starting pool settler")

	runner, err := NewRunner(cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize settler", zap.Error(err))
	}

	if err := runner.Run(ctx); err != nil {
		log.Fatal("Settler execution error", zap.Error(err))
	}
}
