// cmd/tools/dbmigrate/main.go
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"

	"github.com/codr1/fieldbook/internal/db"
)

func main() {
	var (
		dbPath  = flag.String("db", "", "Path to SQLite database")
		command = flag.String("command", "", "Command to run (up, down, version)")
	)
	flag.Parse()

	if *dbPath == "" || *command == "" {
		log.Println("All flags are required:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	absDB, err := filepath.Abs(*dbPath)
	if err != nil {
		log.Fatalf("Invalid database path: %v", err)
	}
	if err := os.MkdirAll(filepath.Dir(absDB), 0755); err != nil {
		log.Fatalf("Failed to create database directory: %v", err)
	}

	version, err := db.Migrate(absDB, *command)
	if err != nil {
		log.Fatalf("Migration %s failed: %v", *command, err)
	}
	log.Printf("Migration %s complete, schema version %d", *command, version)
}
