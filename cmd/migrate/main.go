package main

import (
	"database/sql"
	"fmt"
	"log"
	"os"

	"aviator-client/internal/sim"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]

	dbURL := getEnv("AVIATOR_DB_URL", "")
	if dbURL == "" {
		dbURL = fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
			getEnv("AVIATOR_DB_USERNAME", "postgres"),
			getEnv("AVIATOR_DB_PASSWORD", "postgres"),
			getEnv("AVIATOR_DB_HOST", "localhost"),
			getEnv("AVIATOR_DB_PORT", "5432"),
			getEnv("AVIATOR_DB_DATABASE", "aviator_sim"),
		)
	}

	db, err := sql.Open("pgx", dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	migrationsPath := getEnv("MIGRATIONS_PATH", "./migrations")

	switch command {
	case "up":
		log.Println("Running migrations...")
		if err := sim.RunMigrations(db, migrationsPath); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")

	case "down":
		log.Println("Rolling back last migration...")
		if err := sim.RollbackMigration(db, migrationsPath); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rollback completed successfully")

	case "version":
		version, dirty, err := sim.MigrationVersion(db, migrationsPath)
		if err != nil {
			log.Fatalf("Failed to get version: %v", err)
		}
		if dirty {
			log.Printf("Current version: %d (DIRTY - needs manual intervention)", version)
		} else {
			log.Printf("Current version: %d", version)
		}

	default:
		log.Printf("Unknown command: %s", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Database Migration Tool")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  migrate up         Run all pending migrations")
	fmt.Println("  migrate down       Rollback the last migration")
	fmt.Println("  migrate version    Show current migration version")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  AVIATOR_DB_URL         Full postgres URL (overrides the parts below)")
	fmt.Println("  AVIATOR_DB_HOST        Database host (default: localhost)")
	fmt.Println("  AVIATOR_DB_PORT        Database port (default: 5432)")
	fmt.Println("  AVIATOR_DB_DATABASE    Database name (default: aviator_sim)")
	fmt.Println("  AVIATOR_DB_USERNAME    Database user (default: postgres)")
	fmt.Println("  AVIATOR_DB_PASSWORD    Database password (default: postgres)")
	fmt.Println("  MIGRATIONS_PATH        Path to migrations (default: ./migrations)")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
