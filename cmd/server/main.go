package main

import (
	"context"
	"log"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/dmitrijs2005/consentkeeper/internal/flagx"
	"github.com/dmitrijs2005/consentkeeper/internal/logging"
	"github.com/dmitrijs2005/consentkeeper/internal/server"
	"github.com/dmitrijs2005/consentkeeper/internal/server/config"
)

func main() {
	if err := godotenv.Load(flagx.EnvFile(".env")); err != nil {
		log.Println("No .env file found")
	}

	cfg := config.LoadConfig()
	logger := logging.NewConsole(os.Stderr, slog.LevelInfo)

	server.NewApp(cfg, logger).Run(context.Background())
}
