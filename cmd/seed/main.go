// cmd/seed populates the database with the sample class timetable.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/config"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/database"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/logging"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/service"
)

func main() {
	reset := flag.Bool("reset", false, "delete every class and booking before seeding")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log, err := logging.New(cfg.LogLevel, "console", "fitness-booking-seed")
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(context.Background(), cfg, *reset, log); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, reset bool, log *zap.Logger) error {
	pool, err := database.NewPool(ctx, cfg.Database, log)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}
	store := repository.NewPostgresStore(pool, cfg.Database.LockTimeout)

	if reset {
		n, err := store.DeleteAllClasses(ctx)
		if err != nil {
			return err
		}
		log.Info("existing classes removed", zap.Int64("count", n))
	}

	catalog := service.NewCatalogService(store, log, service.WithLocation(cfg.Location()))
	classes, err := catalog.SeedSampleClasses(ctx)
	if err != nil {
		return err
	}
	for _, c := range classes {
		log.Info("created class",
			zap.String("id", c.ID),
			zap.String("category", string(c.Category)),
			zap.String("instructor", c.Instructor),
			zap.String("starts", c.LocalStartTime),
			zap.Int("slots", c.TotalSlots),
		)
	}
	fmt.Printf("Successfully created %d fitness classes\n", len(classes))
	return nil
}
