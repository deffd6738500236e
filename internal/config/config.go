package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
)

type AppConfig struct {
	// City selects which TDX city endpoint to poll.
	City string

	// PollInterval controls how often a reconciliation cycle runs.
	PollInterval time.Duration

	// Upstream endpoints. Empty values select the Taipei defaults.
	CrowdingFeedURL string
	LocationBaseURL string
	AuthURL         string

	// TDX client credentials for the token exchange.
	ClientID     string
	ClientSecret string

	// Optional YAML file shadowing the built-in reference data tables.
	RefDataPath string

	// HTTPTimeout applies to all outbound requests.
	HTTPTimeout time.Duration

	Port string
}

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}
	cfg := &AppConfig{}

	cfg.City = getenvDefault("TDX_CITY", "Taipei")
	cfg.ClientID = os.Getenv("TDX_CLIENT_ID")
	cfg.ClientSecret = os.Getenv("TDX_CLIENT_SECRET")

	cfg.CrowdingFeedURL = os.Getenv("CROWDING_FEED_URL")
	cfg.LocationBaseURL = os.Getenv("LOCATION_FEED_BASE_URL")
	cfg.AuthURL = os.Getenv("TDX_AUTH_URL")
	cfg.RefDataPath = os.Getenv("REFDATA_FILE")

	// Poll interval: default 20 seconds, matching the dashboard cadence.
	intervalStr := getenvDefault("POLL_INTERVAL", "20s")
	interval, err := time.ParseDuration(intervalStr)
	if err != nil {
		return nil, fmt.Errorf("invalid POLL_INTERVAL: %w", err)
	}
	cfg.PollInterval = interval

	timeoutStr := getenvDefault("HTTP_TIMEOUT", "10s")
	timeout, err := time.ParseDuration(timeoutStr)
	if err != nil {
		return nil, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	cfg.HTTPTimeout = timeout

	cfg.Port = getenvDefault("PORT", "8080")

	return cfg, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
