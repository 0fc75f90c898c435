package postgres

import (
	"errors"
	"fmt"
	"time"

	"github.com/absmach/fedcycle/pkg/storage/sqldb"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrMigration    = errors.New("database migration error")
)

const (
	uniqueViolation      = "23505"
	serializationFailure = "40001"
	deadlockDetected     = "40P01"
)

type Database struct {
	*sqlx.DB
}

func NewDatabase(host, port, user, pass, name, sslMode string) (*Database, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s", host, port, user, pass, name, sslMode)
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDBConnection, err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)

	database := &Database{DB: db}

	if err := database.Migrate(); err != nil {
		return nil, err
	}

	return database, nil
}

func NewRepositories(db *Database) *sqldb.Repositories {
	return sqldb.NewRepositories(db.DB, sqldb.Dialect{
		IsUniqueViolation: IsUniqueViolation,
		IsBusy:            IsBusy,
	})
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func IsBusy(err error) bool {
	var pgErr *pgconn.PgError

	return errors.As(err, &pgErr) && (pgErr.Code == serializationFailure || pgErr.Code == deadlockDetected)
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS processes (
						id VARCHAR(36) PRIMARY KEY,
						name VARCHAR(255) NOT NULL,
						version VARCHAR(64) NOT NULL,
						model_id VARCHAR(36) NOT NULL UNIQUE,
						plans BYTEA,
						averaging_plan BYTEA,
						client_config BYTEA,
						server_config BYTEA NOT NULL,
						terminated BOOLEAN NOT NULL DEFAULT FALSE,
						created_at TIMESTAMPTZ NOT NULL,
						UNIQUE (name, version)
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						model_id VARCHAR(36) NOT NULL,
						number BIGINT NOT NULL,
						payload BYTEA NOT NULL,
						latest BOOLEAN NOT NULL DEFAULT FALSE,
						created_at TIMESTAMPTZ NOT NULL,
						PRIMARY KEY (model_id, number)
					)`,
					`CREATE UNIQUE INDEX IF NOT EXISTS idx_checkpoints_latest ON checkpoints(model_id) WHERE latest`,
					`CREATE TABLE IF NOT EXISTS cycles (
						id VARCHAR(36) PRIMARY KEY,
						process_id VARCHAR(36) NOT NULL,
						model_id VARCHAR(36) NOT NULL,
						version BIGINT NOT NULL,
						seq BIGINT NOT NULL,
						start_at TIMESTAMPTZ NOT NULL,
						end_at TIMESTAMPTZ NOT NULL,
						max_workers BIGINT NOT NULL,
						min_workers BIGINT NOT NULL,
						status VARCHAR(16) NOT NULL,
						checkpoint_number BIGINT NOT NULL DEFAULT 0,
						error TEXT NOT NULL DEFAULT '',
						UNIQUE (model_id, seq)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status)`,
					`CREATE TABLE IF NOT EXISTS workers (
						id VARCHAR(36) PRIMARY KEY,
						name VARCHAR(255) NOT NULL,
						ping DOUBLE PRECISION NOT NULL DEFAULT 0,
						avg_download DOUBLE PRECISION NOT NULL DEFAULT 0,
						avg_upload DOUBLE PRECISION NOT NULL DEFAULT 0,
						format_preference VARCHAR(64) NOT NULL DEFAULT '',
						created_at TIMESTAMPTZ NOT NULL,
						updated_at TIMESTAMPTZ NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS worker_cycles (
						worker_id VARCHAR(36) NOT NULL,
						cycle_id VARCHAR(36) NOT NULL REFERENCES cycles(id) ON DELETE CASCADE,
						request_key VARCHAR(128) NOT NULL UNIQUE,
						joined_at TIMESTAMPTZ NOT NULL,
						diff BYTEA,
						completed_at TIMESTAMPTZ,
						PRIMARY KEY (worker_id, cycle_id)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_worker_cycles_cycle_id ON worker_cycles(cycle_id)`,
					`CREATE TABLE IF NOT EXISTS participation (
						worker_id VARCHAR(36) NOT NULL,
						model_id VARCHAR(36) NOT NULL,
						version VARCHAR(64) NOT NULL,
						last_seq BIGINT NOT NULL,
						PRIMARY KEY (worker_id, model_id, version)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS participation`,
					`DROP TABLE IF EXISTS worker_cycles`,
					`DROP TABLE IF EXISTS workers`,
					`DROP TABLE IF EXISTS cycles`,
					`DROP TABLE IF EXISTS checkpoints`,
					`DROP TABLE IF EXISTS processes`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "postgres", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
