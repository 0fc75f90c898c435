package sqlite

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/absmach/fedcycle/pkg/storage/sqldb"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
	migrate "github.com/rubenv/sql-migrate"
)

var (
	ErrDBConnection = errors.New("database connection error")
	ErrMigration    = errors.New("database migration error")
)

const dsnOptions = "_busy_timeout=5000&_txlock=immediate"

type Database struct {
	*sqlx.DB
}

func NewDatabase(path string) (*Database, error) {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}

	db, err := sqlx.Connect("sqlite3", path+sep+dsnOptions)
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
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func IsBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}

func (db *Database) Migrate() error {
	migrations := &migrate.MemoryMigrationSource{
		Migrations: []*migrate.Migration{
			{
				Id: "1_create_tables",
				Up: []string{
					`CREATE TABLE IF NOT EXISTS processes (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						version TEXT NOT NULL,
						model_id TEXT NOT NULL UNIQUE,
						plans BLOB,
						averaging_plan BLOB,
						client_config BLOB,
						server_config BLOB NOT NULL,
						terminated BOOLEAN NOT NULL DEFAULT 0,
						created_at TIMESTAMP NOT NULL,
						UNIQUE (name, version)
					)`,
					`CREATE TABLE IF NOT EXISTS checkpoints (
						model_id TEXT NOT NULL,
						number INTEGER NOT NULL,
						payload BLOB NOT NULL,
						latest BOOLEAN NOT NULL DEFAULT 0,
						created_at TIMESTAMP NOT NULL,
						PRIMARY KEY (model_id, number)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_checkpoints_latest ON checkpoints(model_id, latest)`,
					`CREATE TABLE IF NOT EXISTS cycles (
						id TEXT PRIMARY KEY,
						process_id TEXT NOT NULL,
						model_id TEXT NOT NULL,
						version INTEGER NOT NULL,
						seq INTEGER NOT NULL,
						start_at TIMESTAMP NOT NULL,
						end_at TIMESTAMP NOT NULL,
						max_workers INTEGER NOT NULL,
						min_workers INTEGER NOT NULL,
						status TEXT NOT NULL,
						checkpoint_number INTEGER NOT NULL DEFAULT 0,
						error TEXT NOT NULL DEFAULT '',
						UNIQUE (model_id, seq)
					)`,
					`CREATE INDEX IF NOT EXISTS idx_cycles_status ON cycles(status)`,
					`CREATE TABLE IF NOT EXISTS workers (
						id TEXT PRIMARY KEY,
						name TEXT NOT NULL,
						ping REAL NOT NULL DEFAULT 0,
						avg_download REAL NOT NULL DEFAULT 0,
						avg_upload REAL NOT NULL DEFAULT 0,
						format_preference TEXT NOT NULL DEFAULT '',
						created_at TIMESTAMP NOT NULL,
						updated_at TIMESTAMP NOT NULL
					)`,
					`CREATE TABLE IF NOT EXISTS worker_cycles (
						worker_id TEXT NOT NULL,
						cycle_id TEXT NOT NULL,
						request_key TEXT NOT NULL UNIQUE,
						joined_at TIMESTAMP NOT NULL,
						diff BLOB,
						completed_at TIMESTAMP,
						PRIMARY KEY (worker_id, cycle_id),
						FOREIGN KEY (cycle_id) REFERENCES cycles(id) ON DELETE CASCADE
					)`,
					`CREATE INDEX IF NOT EXISTS idx_worker_cycles_cycle_id ON worker_cycles(cycle_id)`,
					`CREATE TABLE IF NOT EXISTS participation (
						worker_id TEXT NOT NULL,
						model_id TEXT NOT NULL,
						version TEXT NOT NULL,
						last_seq INTEGER NOT NULL,
						PRIMARY KEY (worker_id, model_id, version)
					)`,
				},
				Down: []string{
					`DROP TABLE IF EXISTS participation`,
					`DROP INDEX IF EXISTS idx_worker_cycles_cycle_id`,
					`DROP TABLE IF EXISTS worker_cycles`,
					`DROP TABLE IF EXISTS workers`,
					`DROP INDEX IF EXISTS idx_cycles_status`,
					`DROP TABLE IF EXISTS cycles`,
					`DROP INDEX IF EXISTS idx_checkpoints_latest`,
					`DROP TABLE IF EXISTS checkpoints`,
					`DROP TABLE IF EXISTS processes`,
				},
			},
		},
	}

	if _, err := migrate.Exec(db.DB.DB, "sqlite3", migrations, migrate.Up); err != nil {
		return fmt.Errorf("%w: %w", ErrMigration, err)
	}

	return nil
}
