// Package config centralizes environment configuration for the stock
// engine's binaries. Library code never reads the environment.
package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	// DatabaseURL is the Postgres connection string for the durable
	// stock store.
	DatabaseURL string
	// KafkaBrokers lists broker addresses for event publishing; empty
	// disables the event pipeline.
	KafkaBrokers []string
	// StockEventsTopic is the topic stock domain events are written to.
	StockEventsTopic string
}

// Load reads configuration from the environment, loading .env first if
// present.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		StockEventsTopic: os.Getenv("STOCK_EVENTS_TOPIC"),
	}
	if cfg.StockEventsTopic == "" {
		cfg.StockEventsTopic = "stock-events"
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	return cfg
}
