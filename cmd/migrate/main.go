package main

import (
	"errors"
	"log"
	"os"
	"path/filepath"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	databaseURL := os.Getenv("DB_URL")
	if databaseURL == "" {
		log.Fatal("DB_URL environment variable is required")
	}

	migrationsDir, err := findMigrationsDir()
	if err != nil {
		log.Fatalf("Locate migrations: %v", err)
	}

	m, err := migrate.New("file://"+migrationsDir, databaseURL)
	if err != nil {
		log.Fatalf("Open migrator: %v", err)
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	switch direction {
	case "down":
		if err := m.Down(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migrate down: %v", err)
		}
		log.Println("Schema rolled back")
	case "up":
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			log.Fatalf("Migrate up: %v", err)
		}
		log.Println("Schema up to date")
	default:
		log.Fatalf("Unknown direction %q (want up or down)", direction)
	}
}

// findMigrationsDir walks up from the working directory, then tries paths
// relative to the binary, so the runner works from the repo root, a package
// directory, or a deploy bundle.
func findMigrationsDir() (string, error) {
	var candidates []string

	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	dir := cwd
	for i := 0; i < 6; i++ {
		candidates = append(candidates, filepath.Join(dir, "migrations"))
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		candidates = append(candidates,
			filepath.Join(exeDir, "migrations"),
			filepath.Join(exeDir, "..", "migrations"),
		)
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return filepath.Abs(candidate)
		}
	}
	return "", errors.New("no migrations directory found")
}
