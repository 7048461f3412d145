package main

import (
	"log"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"verax/cmd"
	"verax/internal/config"
	"verax/internal/logger"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Could not load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		// commands that need configuration report the error themselves
		if err := logger.Setup(logger.DefaultConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
	} else {
		if err := logger.Setup(cfg.GetLoggerConfig()); err != nil {
			log.Fatalf("Failed to initialize logger: %v", err)
		}
		if cfg.LogLevel != "debug" && cfg.LogLevel != "trace" {
			gin.SetMode(gin.ReleaseMode)
		}
	}
	cmd.SetConfig(cfg, err)

	log := logger.WithComponent("main")
	log.Debug().Msg("Starting Verax CLI")

	cmd.Execute()

	log.Debug().Msg("Verax CLI shutdown")
	os.Exit(0)
}
