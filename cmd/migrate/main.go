package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/repository/postgres"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying")
	flag.Parse()

	// Load .env file if it exists
	_ = godotenv.Load()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Migrating round ledger at %s:%d/%s...\n", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	if *down > 0 {
		if err := postgres.RollbackMigrations(cfg.Database.DSN(), *down); err != nil {
			fmt.Fprintf(os.Stderr, "Rollback failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rolled back %d migration(s)\n", *down)
		return
	}

	if err := postgres.RunMigrations(cfg.Database.DSN()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Migrations applied")
}
