package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	awscloud "cloudipam/internal/adapters/cloud/aws"
	pgrepo "cloudipam/internal/adapters/db/postgres"
	"cloudipam/internal/application/prefix"
	appsync "cloudipam/internal/application/sync"
	"cloudipam/internal/config"
)

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg := config.LoadConfig()

	log.Info().
		Str("mode", cfg.Sync.Mode).
		Str("region", cfg.Sync.Region).
		Dur("interval", cfg.Sync.Interval).
		Msg("Starting CloudIPAM sync")

	if !cfg.Database.Enabled {
		log.Fatal().Msg("sync requires DB_ENABLED=true")
	}

	db, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("open postgres")
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatal().Err(err).Msg("ping postgres")
	}
	if err := pgrepo.RunMigrations(pingCtx, db, cfg.Database.Migrations); err != nil {
		log.Fatal().Err(err).Msg("run migrations")
	}

	repo := pgrepo.NewRepository(db)
	prefixService := prefix.NewService(repo, cfg.DefaultVRFID)

	source, err := awscloud.NewClientFromSession(cfg.Sync.Region, log.Logger, cfg.Sync.AWSPageSize)
	if err != nil {
		log.Fatal().Err(err).Msg("init AWS client")
	}

	syncService := appsync.NewService(repo, prefixService, source, log.Logger, appsync.Options{
		Interval:         cfg.Sync.Interval,
		MaxSubnetsPerVPC: cfg.Sync.MaxSubnetsPerVPC,
		BatchSize:        cfg.Sync.BatchSize,
		DBBatchSize:      cfg.Sync.DBBatchSize,
	})

	if cfg.Sync.Mode == "once" {
		if err := syncService.RunCycle(ctx); err != nil {
			log.Fatal().Err(err).Msg("sync cycle failed")
		}
		log.Info().Msg("sync cycle complete")
		return
	}

	if err := syncService.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("sync loop stopped")
	}
	log.Info().Msg("sync stopped")
}
