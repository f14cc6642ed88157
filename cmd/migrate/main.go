package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/tribegate/tribegate/internal/config"
	"github.com/tribegate/tribegate/internal/storage"
)

func main() {
	var (
		driver    = flag.String("driver", envOr("DATABASE_DRIVER", config.DriverPostgres), "Database driver: postgres or sqlite")
		dsn       = flag.String("dsn", os.Getenv("DATABASE_URL"), "Database connection string")
		direction = flag.String("direction", storage.MigrateUp, "Migration direction: up or down")
		steps     = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("DATABASE_URL (or -dsn) is required")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, storage.Dialect(*driver), *dsn)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer store.Close()

	count, err := store.Migrate(ctx, *direction, *steps)
	if err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	if count == 0 {
		fmt.Println("No migrations to apply")
	} else {
		fmt.Printf("Applied %d migration(s) %s\n", count, *direction)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
