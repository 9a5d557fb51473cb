package infra

import (
	"context"
	"errors"
	"fmt"

	"github.com/exaring/otelpgx"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/rs/zerolog"
	pgxuuid "github.com/vgarvardt/pgx-google-uuid/v5"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/Alturino/fitclub/internal/config"
	"github.com/Alturino/fitclub/internal/log"
)

func postgresURL(cfg config.Database) string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		cfg.Username,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Name,
	)
}

func poolConfig(cfg config.Database) (*pgxpool.Config, error) {
	pgxConfig, err := pgxpool.ParseConfig(postgresURL(cfg))
	if err != nil {
		return nil, err
	}
	pgxConfig.MaxConns = cfg.MaxConnections
	pgxConfig.MinConns = cfg.MinConnections
	pgxConfig.ConnConfig.Tracer = otelpgx.NewTracer(
		otelpgx.WithAttributes(semconv.DBSystemPostgreSQL),
	)
	pgxConfig.AfterConnect = func(c context.Context, conn *pgx.Conn) error {
		pgxuuid.Register(conn.TypeMap())
		return nil
	}
	return pgxConfig, nil
}

// NewDatabaseClient connects the pool holding the checkout ledger.
func NewDatabaseClient(c context.Context, cfg config.Database) *pgxpool.Pool {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "infra NewDatabaseClient").
		Str(log.KeyProcess, "initializing pgx config").
		Logger()

	logger.Info().Msg("initializing pgx config")
	pgxConfig, err := poolConfig(cfg)
	if err != nil {
		err = fmt.Errorf("failed creating pgx config with error=%w", err)
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("initialized pgx config")

	logger = logger.With().Str(log.KeyProcess, "creating connection pool").Logger()
	logger.Info().Msg("creating connection pool")
	pool, err := pgxpool.NewWithConfig(c, pgxConfig)
	if err != nil {
		err = fmt.Errorf("failed creating connection pool with error=%w", err)
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("created connection pool")

	logger = logger.With().Str(log.KeyProcess, "pinging database").Logger()
	logger.Info().Msg("pinging database")
	if err := pool.Ping(c); err != nil {
		err = fmt.Errorf("failed pinging database with error=%w", err)
		logger.Fatal().Err(err).Msg(err.Error())
	}
	logger.Info().Msg("pinged database")

	return pool
}

// Migrate applies pending migrations. It only moves up; the ledger is never
// dropped on start.
func Migrate(c context.Context, pool *pgxpool.Pool, cfg config.Database) error {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "infra Migrate").
		Str(log.KeyProcess, "initializing migration").
		Logger()

	logger.Info().Msg("initializing migration")
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		err = fmt.Errorf("failed creating migration driver with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	migration, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, cfg.Name, driver)
	if err != nil {
		err = fmt.Errorf("failed initializing migration with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("initialized migration")

	logger = logger.With().Str(log.KeyProcess, "migrating up").Logger()
	logger.Info().Msg("migrating up")
	if err := migration.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		err = fmt.Errorf("failed migrating up with error=%w", err)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("migrated up")

	return nil
}
