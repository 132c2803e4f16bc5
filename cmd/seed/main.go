// Command seed creates demo licenses. Running it twice leaves existing codes
// untouched.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/dukerupert/airlink/internal/config"
	"github.com/dukerupert/airlink/internal/database"
	"github.com/dukerupert/airlink/internal/logging"
	"github.com/dukerupert/airlink/internal/model"
	"github.com/dukerupert/airlink/internal/store"
)

type demoLicense struct {
	Code         string
	Minutes      int
	MaxListeners int
}

var demo = []demoLicense{
	{"TRIAL-10", 240, 10},
	{"DEMO-25", 240, 25},
	{"DEMO-35", 480, 35},
	{"EVENT-100", 720, 100},
}

func main() {
	dbPath := flag.String("db", "", "database path (defaults to AIRLINK_DB_PATH)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		logger.Error("open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	n, err := seed(context.Background(), store.NewLicenseStore(db), time.Now().UTC())
	if err != nil {
		logger.Error("seed licenses", "error", err)
		os.Exit(1)
	}
	logger.Info("seed complete", "created", n, "db", cfg.DBPath)
}

func seed(ctx context.Context, licenses *store.LicenseStore, now time.Time) (int, error) {
	created := 0
	for _, d := range demo {
		existing, err := licenses.GetByCode(ctx, d.Code)
		if err != nil {
			return created, err
		}
		if existing != nil {
			continue
		}
		if !model.IsAllowedMaxListeners(d.MaxListeners) {
			return created, fmt.Errorf("license %s: max listeners %d not allowed", d.Code, d.MaxListeners)
		}
		if _, err := licenses.Create(ctx, d.Code, d.Minutes, d.MaxListeners, now); err != nil {
			return created, err
		}
		created++
	}
	return created, nil
}
