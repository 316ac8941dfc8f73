package main

import (
	"context"
	"flag"
	"time"

	"github.com/JunaidSumsaal/advanceparkingsystem/internal/config"
	applogger "github.com/JunaidSumsaal/advanceparkingsystem/internal/logger"
	"github.com/JunaidSumsaal/advanceparkingsystem/internal/maintenance"
	"github.com/joho/godotenv"
)

func main() {
	dedupe := flag.Bool("dedupe", false, "remove duplicate external spot rows")
	constraint := flag.Bool("ensure-constraint", false, "add the external_id unique constraint")
	pruneAge := flag.Duration("prune-older-than", 0, "deactivate external spots not refreshed within this duration (e.g. 720h)")
	flag.Parse()

	_ = godotenv.Load()

	if err := applogger.Init(); err != nil {
		panic(err)
	}
	defer applogger.Sync()
	log := applogger.GetLogger("maintenance")

	if !*dedupe && !*constraint && *pruneAge == 0 {
		log.Fatal("Nothing to do: pass -dedupe, -ensure-constraint or -prune-older-than")
	}

	cfg := config.Load()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := maintenance.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	cleaner := maintenance.NewCleaner(pool)

	if *dedupe {
		if err := cleaner.DeduplicateExternalSpots(ctx); err != nil {
			log.Fatalf("Dedupe failed: %v", err)
		}
	}

	if *constraint {
		if err := cleaner.EnsureExternalIDConstraint(ctx); err != nil {
			log.Fatalf("Constraint setup failed: %v", err)
		}
	}

	if *pruneAge > 0 {
		if err := cleaner.PruneStaleExternalSpots(ctx, *pruneAge); err != nil {
			log.Fatalf("Prune failed: %v", err)
		}
	}
}
