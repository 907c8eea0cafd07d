// Command resetdb clears all material request data from a development
// database. It refuses to run unless the operator types "yes".
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"vendfleet-backend/internal/cache"
	"vendfleet-backend/internal/config"
	"vendfleet-backend/internal/db"
	"vendfleet-backend/internal/logger"
)

// Children first; TRUNCATE ... CASCADE would also cover it.
var tables = []string{
	"outbox_events",
	"material_request_payments",
	"material_request_history",
	"material_request_items",
	"material_requests",
	"material_request_number_counters",
}

func main() {
	fmt.Println("========================================")
	fmt.Println("   Reset Material Request Data")
	fmt.Println("========================================")
	fmt.Println()
	fmt.Println("WARNING: this deletes every material request, its history,")
	fmt.Println("payments, pending events and the request number counters.")
	fmt.Println()
	fmt.Print("Type 'yes' to confirm: ")

	confirm, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	if strings.TrimSpace(confirm) != "yes" {
		fmt.Println("Reset cancelled.")
		return
	}

	cfg := config.Load()
	log, err := logger.New(cfg.App.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		log.Fatal("unable to connect to database", "error", err)
	}
	defer pool.Close()

	tx, err := pool.Begin(ctx)
	if err != nil {
		log.Fatal("failed to begin transaction", "error", err)
	}
	defer tx.Rollback(ctx)

	for _, table := range tables {
		if _, err := tx.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			log.Fatal("failed to truncate", "table", table, "error", err)
		}
		fmt.Printf("  cleared %s\n", table)
	}

	if err := tx.Commit(ctx); err != nil {
		log.Fatal("failed to commit", "error", err)
	}

	// Cached stats would otherwise outlive the rows they were computed from.
	if cfg.Redis.Addr != "" {
		if err := cache.Init(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB); err != nil {
			log.Warn("redis unavailable, cached stats left to expire", "error", err)
		} else {
			cache.FlushStats(ctx)
			cache.Close()
			fmt.Println("  cleared cached stats")
		}
	}

	fmt.Println()
	fmt.Println("Database reset successful.")
}
