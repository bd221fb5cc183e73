package main

import (
	"log"
	"os"

	"github.com/nottavi/forget/internal/api"
	"github.com/nottavi/forget/internal/cli"
	"github.com/nottavi/forget/internal/config"
	"github.com/nottavi/forget/internal/database"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Initialize database
	db, err := database.Initialize(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}

	// Check if running CLI command
	if len(os.Args) > 1 {
		cli.Execute(db, cfg)
		return
	}

	// Start API server with its background workers
	app, err := api.SetupApp(db, cfg)
	if err != nil {
		log.Fatalf("Failed to setup server: %v", err)
	}
	app.Start()
	defer app.Stop()

	log.Printf("Starting Forget server on port %s", cfg.APIPort)
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Database path: %s", cfg.DatabasePath)
	log.Printf("API Key: %s", app.APIKeyManager.GetCurrentKey())
	if cfg.TwitterConsumerKey == "" {
		log.Println("Twitter consumer credentials not set, Twitter login disabled")
	}
	if err := app.Router.Run(":" + cfg.APIPort); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
