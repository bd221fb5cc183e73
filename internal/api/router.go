package api

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nottavi/forget/internal/api/handlers"
	"github.com/nottavi/forget/internal/api/middleware"
	"github.com/nottavi/forget/internal/config"
	"github.com/nottavi/forget/internal/database/models"
	"github.com/nottavi/forget/internal/provider"
	"github.com/nottavi/forget/internal/services"
)

// maintenanceInterval is how often expired sessions and finished queue
// entries are pruned
const maintenanceInterval = time.Hour

// App bundles the router with the background machinery so main can shut
// everything down in order
type App struct {
	Router        *gin.Engine
	APIKeyManager *middleware.APIKeyManager

	sweepScheduler       *services.SweepScheduler
	jobWorker            *services.JobWorker
	maintenanceScheduler *services.MaintenanceScheduler
}

// Start launches the schedulers and the worker pool
func (a *App) Start() {
	a.jobWorker.Start()
	a.sweepScheduler.Start()
	a.maintenanceScheduler.Start()
}

// Stop shuts the background machinery down, workers last so in-flight
// jobs can finish
func (a *App) Stop() {
	a.maintenanceScheduler.Stop()
	a.sweepScheduler.Stop()
	a.jobWorker.Stop()
}

// SetupApp initializes services, providers, background workers and the
// Gin router with all routes configured
func SetupApp(db *gorm.DB, cfg *config.Config) (*App, error) {
	router := gin.Default()

	// 配置 CORS - 允许跨域请求
	router.Use(cors.New(cors.Config{
		AllowOrigins:     splitOrigins(cfg.CORSOrigins),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", middleware.APIKeyHeader, middleware.SessionHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	apiKeyManager, err := middleware.NewAPIKeyManager(cfg.DataDir)
	if err != nil {
		return nil, err
	}

	// Initialize services
	encryptionKey := cfg.GetEncryptionKey()
	logService := services.NewLogServiceWithLevel(db, cfg.LogLevel)
	accountService := services.NewAccountService(db, encryptionKey)
	postService := services.NewPostService(db)
	sessionService := services.NewSessionService(db, cfg.SessionTTL())
	instanceService := services.NewInstanceService(db, encryptionKey)
	jobService := services.NewJobService(db)
	archiveService := services.NewArchiveService(db, postService, jobService)

	// Initialize providers. Twitter needs app credentials; Mastodon
	// registers itself per instance on first login.
	var twitter *provider.Twitter
	if cfg.TwitterConsumerKey != "" && cfg.TwitterConsumerSecret != "" {
		twitter = provider.NewTwitter(cfg.TwitterConsumerKey, cfg.TwitterConsumerSecret)
	}
	mastodon := provider.NewMastodon(instanceService, cfg.BaseURL)

	deleters := map[models.Service]provider.Deleter{
		models.ServiceMastodon: mastodon,
	}
	fetchers := map[models.Service]provider.Fetcher{
		models.ServiceMastodon: mastodon,
	}
	if twitter != nil {
		deleters[models.ServiceTwitter] = twitter
		fetchers[models.ServiceTwitter] = twitter
	}

	sweepService := services.NewSweepService(accountService, postService, logService,
		deleters, cfg.DeleteRatePerMinute, cfg.DeleteRatePerAccountMinute)
	fetchService := services.NewFetchService(accountService, postService, logService, fetchers)

	// Background machinery: the scheduler enqueues, the workers execute
	sweepScheduler := services.NewSweepScheduler(accountService, jobService, cfg.SweepInterval())
	jobWorker := services.NewJobWorker(jobService, accountService, sweepService, fetchService,
		archiveService, logService, cfg.SweepWorkers)
	maintenanceScheduler := services.NewMaintenanceScheduler(sessionService, jobService, maintenanceInterval)

	// Initialize handlers
	authHandler := handlers.NewAuthHandler(twitter, mastodon, accountService, sessionService,
		instanceService, jobService, logService, cfg.BaseURL, cfg.SessionTTL())
	accountHandler := handlers.NewAccountHandler(accountService, postService, logService)
	archiveHandler := handlers.NewArchiveHandler(archiveService)
	postHandler := handlers.NewPostHandler(postService)
	adminHandler := handlers.NewAdminHandler(accountService, jobService)

	// Health check endpoint (no auth required)
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// API routes
	api := router.Group("/api")
	{
		// Login handshakes (no session yet)
		auth := api.Group("/auth")
		{
			auth.GET("/twitter", authHandler.TwitterLogin)
			auth.GET("/twitter/callback", authHandler.TwitterCallback)
			auth.POST("/mastodon", authHandler.MastodonLogin)
			auth.GET("/mastodon/callback", authHandler.MastodonCallback)
		}

		// Instance picker for the login page
		api.GET("/instances", authHandler.PopularInstances)

		// Protected routes (session required)
		protected := api.Group("")
		protected.Use(middleware.SessionMiddleware(sessionService))
		{
			protected.GET("/auth/me", authHandler.Me)
			protected.POST("/auth/logout", authHandler.Logout)

			settings := protected.Group("/settings")
			{
				settings.GET("", accountHandler.GetSettings)
				settings.PUT("", accountHandler.UpdateSettings)
				settings.POST("/enable", accountHandler.Enable)
				settings.POST("/disable", accountHandler.Disable)
				settings.GET("/estimate", accountHandler.Estimate)
				settings.DELETE("/account", accountHandler.DeleteAccount)
			}

			protected.GET("/posts", postHandler.List)
			protected.GET("/logs", accountHandler.GetLogs)

			archive := protected.Group("/archive")
			{
				archive.GET("", archiveHandler.List)
				archive.POST("", archiveHandler.Upload)
			}
		}

		// Operator routes (API key required)
		admin := api.Group("/admin")
		admin.Use(middleware.APIKeyMiddleware(apiKeyManager))
		{
			admin.GET("/accounts", adminHandler.ListAccounts)
			admin.GET("/queue", adminHandler.QueueStats)
		}
	}

	return &App{
		Router:               router,
		APIKeyManager:        apiKeyManager,
		sweepScheduler:       sweepScheduler,
		jobWorker:            jobWorker,
		maintenanceScheduler: maintenanceScheduler,
	}, nil
}

func splitOrigins(origins string) []string {
	if origins == "" || origins == "*" {
		return []string{"*"}
	}
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
