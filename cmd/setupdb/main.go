package main

import (
	"flag"
	"fmt"
	"log"
	"path/filepath"

	"gatekeeper/internal/repository/sqlite"
)

// samplePlates seed the database for bench testing the gate end to end.
var samplePlates = []string{
	"29A12345",
	"30B67890",
	"51C11111",
}

func main() {
	dbPath := flag.String("db", filepath.Join("data", "gatekeeper.db"), "path to the SQLite database")
	sample := flag.Bool("sample", false, "insert sample authorized plates")
	flag.Parse()

	repo, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("failed to initialize database: %v", err)
	}
	defer repo.Close()

	fmt.Printf("database initialized at %s\n", *dbPath)

	if *sample {
		for _, plate := range samplePlates {
			if err := repo.AddPlate(plate); err != nil {
				log.Fatalf("failed to add plate %s: %v", plate, err)
			}
		}
		fmt.Printf("added %d sample plates\n", len(samplePlates))
	}

	plates, err := repo.ListPlates()
	if err != nil {
		log.Fatalf("failed to list plates: %v", err)
	}
	fmt.Printf("%d authorized plates:\n", len(plates))
	for _, p := range plates {
		fmt.Printf("  %s (added %s)\n", p.PlateNumber, p.AddedDate.Format("2006-01-02"))
	}
}
