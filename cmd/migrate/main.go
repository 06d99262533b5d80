package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"cpumon/internal/storage"

	"github.com/golang-migrate/migrate/v4"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cmd := flag.String("op", "", "operation: up, down, version, force")
	steps := flag.Int("steps", 0, "number of steps for up/down, or the version for force (0 = all)")
	dbURL := flag.String("db", os.Getenv("DATABASE_URL"), "database url (sqlite://path.db or postgres://...)")
	flag.Parse()

	if *cmd == "" || *dbURL == "" {
		fmt.Println("Usage: go run ./cmd/migrate -op=[up|down|version|force] -steps=[n] -db=[url]")
		os.Exit(1)
	}

	m, err := storage.NewMigrate(*dbURL)
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	switch *cmd {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-(*steps))
		} else {
			err = m.Down()
		}
	case "version":
		v, dirty, err := m.Version()
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("Version: %d, Dirty: %v\n", v, dirty)
		return
	case "force":
		if *steps == 0 {
			log.Fatal("please specify version to force")
		}
		err = m.Force(*steps)
	default:
		log.Fatal("unknown command")
	}

	if err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			fmt.Println("No changes detected.")
		} else {
			log.Fatalf("Migration failed: %v", err)
		}
	} else {
		fmt.Println("Migration success!")
	}
}
