// Package di provides dependency injection wiring and initialization.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/mpmeasure/internal/archive"
	"github.com/aristath/mpmeasure/internal/config"
	"github.com/aristath/mpmeasure/internal/database"
	"github.com/aristath/mpmeasure/internal/modules/measurement"
	measurementhandlers "github.com/aristath/mpmeasure/internal/modules/measurement/handlers"
	"github.com/aristath/mpmeasure/internal/samplestore"
	"github.com/aristath/mpmeasure/internal/scheduler"
	"github.com/aristath/mpmeasure/internal/workers"
)

// Container holds all wired dependencies
type Container struct {
	Config    *config.Config
	DB        *database.DB
	Store     *samplestore.Repository
	Pool      *workers.WorkerPool
	Service   *measurement.Service
	Archive   *archive.Archive // nil unless archiving is enabled
	Scheduler *scheduler.Scheduler
	Handler   *measurementhandlers.Handler
}

// Wire initializes all dependencies and returns a configured container.
// Order of operations:
// 1. Open and migrate the sample store database
// 2. Create the measurement service
// 3. Connect the archive, if enabled
// 4. Register maintenance jobs
// The scheduler is returned stopped.
func Wire(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	db, err := database.New(database.Config{
		Path:    cfg.StorePath(),
		Profile: database.ProfileStandard,
		Name:    "samples",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sample store: %w", err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate sample store: %w", err)
	}

	c := &Container{
		Config:    cfg,
		DB:        db,
		Store:     samplestore.NewRepository(db.Conn(), log),
		Pool:      workers.NewWorkerPool(cfg.Workers),
		Scheduler: scheduler.New(log),
	}
	c.Service = measurement.NewService(measurement.DefaultCatalog(), c.Pool, cfg.ServiceSettings(), nil, log)

	if cfg.Archive != nil && cfg.Archive.Enabled {
		c.Archive, err = archive.New(ctx, archive.Config{
			Bucket:    cfg.Archive.Bucket,
			Prefix:    cfg.Archive.Prefix,
			Region:    cfg.Archive.Region,
			Endpoint:  cfg.Archive.Endpoint,
			AccessKey: cfg.Archive.AccessKey,
			SecretKey: cfg.Archive.SecretKey,
		}, log)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize archive: %w", err)
		}
	}

	// A nil *archive.Archive must not become a non-nil interface.
	var runArchive measurementhandlers.RunArchive
	if c.Archive != nil {
		runArchive = c.Archive
	}
	c.Handler = measurementhandlers.NewHandler(c.Service, c.Store, runArchive, log)

	if err := RegisterJobs(c, log); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	log.Info().
		Str("store", db.Path()).
		Bool("archive", c.Archive != nil).
		Int("workers", cfg.Workers).
		Msg("Dependencies wired")
	return c, nil
}

// RegisterJobs adds the maintenance jobs enabled by the configuration.
func RegisterJobs(c *Container, log zerolog.Logger) error {
	ret := c.Config.Retention
	if ret == nil || !ret.Enabled {
		return nil
	}
	job := scheduler.NewRetentionJob(c.Store, time.Duration(ret.MaxAgeH)*time.Hour, log)
	return c.Scheduler.AddJob(ret.Schedule, job)
}

// Close releases the container's resources.
func (c *Container) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}
