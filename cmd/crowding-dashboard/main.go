package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	httpapi "github.com/taipei-transit/crowding-dashboard/internal/api/http"
	"github.com/taipei-transit/crowding-dashboard/internal/auth"
	"github.com/taipei-transit/crowding-dashboard/internal/config"
	"github.com/taipei-transit/crowding-dashboard/internal/feeds"
	"github.com/taipei-transit/crowding-dashboard/internal/poller"
	"github.com/taipei-transit/crowding-dashboard/internal/refdata"
	"github.com/taipei-transit/crowding-dashboard/internal/store"
	"github.com/taipei-transit/crowding-dashboard/internal/transit"
)

func main() {
	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound feed and token calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Reference data: built-in tables plus optional YAML overrides.
	tables := refdata.Builtin()
	if cfg.RefDataPath != "" {
		if err := tables.LoadOverrides(cfg.RefDataPath); err != nil {
			log.Fatalf("failed to load reference data: %v", err)
		}
	}

	// Token source and the two feed clients.
	tokens := auth.NewTokenSource(httpClient, cfg.AuthURL, auth.Credentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
	})
	crowdingFeed := feeds.NewCrowdingClient(httpClient, cfg.CrowdingFeedURL)
	locationFeed := feeds.NewLocationClient(httpClient, cfg.LocationBaseURL, tokens)

	// Core reconciliation service and latest-snapshot store.
	snapshots := store.NewSnapshotStore()
	service := transit.NewService(crowdingFeed, locationFeed, tables, cfg.City)

	// Poller that drives reconciliation cycles.
	poll := poller.New(service, snapshots, cfg.PollInterval, nil)
	if err := poll.Start(); err != nil {
		log.Fatalf("failed to start poller: %v", err)
	}
	defer poll.Stop()

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "crowding-dashboard",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())
	app.Use(cors.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "crowding-dashboard",
			"city":    cfg.City,
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Options{
		Snapshots: snapshots,
		Service:   service,
		Tables:    tables,
		Tokens:    tokens,
		Loading:   poll.Loading,
		Refresh:   poll.TriggerNow,
	})

	// Start server with graceful shutdown
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}

	go func() {
		if err := app.Listen(":" + port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
