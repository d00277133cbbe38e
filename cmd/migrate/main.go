package main

import (
	"log"

	"course-subscription-be/internal/config"
	"course-subscription-be/internal/model"
	"course-subscription-be/pkg/database"
)

func main() {
	// 1. Load Environment Variables
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	// 2. Connect to Database using existing GORM helpers
	db, err := database.Open(cfg.Database.Driver, cfg.Database.Connection)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Starting GORM Migration...")

	// 3. Pre-Migration: extensions GORM AutoMigrate does not create
	if cfg.Database.Driver == database.DriverPostgres || cfg.Database.Driver == "" {
		setupSQL := []string{
			`CREATE EXTENSION IF NOT EXISTS pgcrypto;`,
		}
		for _, sql := range setupSQL {
			if err := db.Exec(sql).Error; err != nil {
				log.Printf("Warn: Failed to execute setup SQL: %v. Continuing...", err)
			}
		}
	}

	// 4. AutoMigrate ledger, subscription store and audit tables
	models := model.Models()
	log.Printf("Running AutoMigrate for %d tables...", len(models))
	if err := database.Migrate(db, models...); err != nil {
		log.Fatalf("Error: AutoMigrate failed: %v", err)
	}

	log.Println("✅ Success: Database migration completed successfully via GORM.")
}
