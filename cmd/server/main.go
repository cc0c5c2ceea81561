package main

import (
	"context"
	"database/sql"
	"os"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cloudipam/internal/adapters/api"
	"cloudipam/internal/adapters/api/middleware"
	awscloud "cloudipam/internal/adapters/cloud/aws"
	"cloudipam/internal/adapters/db/memory"
	pgrepo "cloudipam/internal/adapters/db/postgres"
	"cloudipam/internal/application/allocator"
	"cloudipam/internal/application/idempotency"
	"cloudipam/internal/application/prefix"
	appsync "cloudipam/internal/application/sync"
	"cloudipam/internal/config"
	"cloudipam/internal/domain/ipam"
)

//	@title			CloudIPAM API
//	@version		1.0
//	@description	Multi-cloud IP address management with hierarchical prefix tracking

//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT

//	@host		localhost:8080
//	@BasePath	/api/v1

func main() {
	// Configure zerolog
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load configuration
	cfg := config.LoadConfig()

	log.Info().
		Str("http_port", cfg.HTTPPort).
		Bool("db_enabled", cfg.Database.Enabled).
		Msg("Starting CloudIPAM server")

	// Initialize repository (choose Postgres or in-memory)
	var repo ipam.Repository
	if cfg.Database.Enabled {
		log.Info().Str("dsn", cfg.Database.DSN).Msg("Initializing Postgres repository")
		db, err := sql.Open("postgres", cfg.Database.DSN)
		if err != nil {
			log.Fatal().Err(err).Msg("open postgres")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			log.Fatal().Err(err).Msg("ping postgres")
		}
		if err := pgrepo.RunMigrations(ctx, db, cfg.Database.Migrations); err != nil {
			log.Fatal().Err(err).Msg("run migrations")
		}
		repo = pgrepo.NewRepository(db)
	} else {
		log.Warn().Msg("DB disabled - using in-memory repository")
		repo = memory.NewRepository()
	}

	// Initialize services
	prefixService := prefix.NewService(repo, cfg.DefaultVRFID)
	allocatorService := allocator.NewService(repo, prefixService)
	idempotencyService := idempotency.NewService(repo)

	// Initialize API handler
	handler := api.NewHandler(prefixService, allocatorService, idempotencyService)

	// Optionally run the cloud reconciler inside the server process
	if cfg.Sync.Enabled {
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
		go func() {
			if err := syncService.Run(context.Background()); err != nil {
				log.Warn().Err(err).Msg("sync loop stopped")
			}
		}()
	}

	// Setup Gin router
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID(log.Logger))

	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{cfg.AllowedOrigin},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "X-Request-ID"},
		ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "X-Idempotency-Replayed"},
		AllowCredentials: false,
	}))

	handler.RegisterRoutes(r)

	// Start server
	log.Info().Msgf("Starting CloudIPAM server on port %s", cfg.HTTPPort)
	if err := r.Run(":" + cfg.HTTPPort); err != nil {
		log.Fatal().Err(err).Msg("Failed to start server")
	}
}
