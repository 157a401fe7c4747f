package main

import (
	"flag"

	"github.com/zjoart/go-monnify-wallet/pkg/config"
	"github.com/zjoart/go-monnify-wallet/pkg/database"
	"github.com/zjoart/go-monnify-wallet/pkg/logger"
)

func main() {
	direction := flag.String("direction", "up", "migration direction: up or down")
	flag.Parse()

	cfg := config.LoadConfig()
	logger.Init(cfg.Env)

	if err := database.Migrate(cfg.DBUrl, *direction); err != nil {
		logger.Fatal("Migration failed", logger.Merge(logger.WithError(err), logger.Fields{"direction": *direction}))
	}
	logger.Info("Migration complete", logger.Fields{"direction": *direction})
}
