package main

import (
	"os"
	"path/filepath"
	"role-keeper/bot"
	"role-keeper/config"
	"role-keeper/handlers"
	"role-keeper/utils"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Error loading config", zap.Error(err))
	}

	logger, err := utils.NewLogger(cfg.LogLevel)
	if err != nil {
		fallback, _ := zap.NewProduction()
		fallback.Fatal("Error creating logger", zap.Error(err))
	}
	defer logger.Sync()

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, os.ModePerm); err != nil {
			logger.Fatal("Failed to create data directory", zap.String("dir", dir), zap.Error(err))
		}
	}

	b, err := bot.New(cfg, logger)
	if err != nil {
		logger.Fatal("Error creating bot", zap.Error(err))
	}

	handlers.Register(b)

	if err := b.Run(); err != nil {
		logger.Error("Bot stopped with error", zap.Error(err))
		b.Close()
		logger.Sync()
		os.Exit(1)
	}
	b.Close()
}
