package storage

import (
	"fmt"
	"io"

	"github.com/absmach/fedcycle/pkg/storage/badger"
	"github.com/absmach/fedcycle/pkg/storage/postgres"
	"github.com/absmach/fedcycle/pkg/storage/sqldb"
	"github.com/absmach/fedcycle/pkg/storage/sqlite"
)

type Config struct {
	Type string `env:"FEDCYCLE_STORAGE_TYPE" envDefault:"memory"`

	PostgresHost    string `env:"FEDCYCLE_POSTGRES_HOST"    envDefault:"localhost"`
	PostgresPort    string `env:"FEDCYCLE_POSTGRES_PORT"    envDefault:"5432"`
	PostgresUser    string `env:"FEDCYCLE_POSTGRES_USER"    envDefault:"fedcycle"`
	PostgresPass    string `env:"FEDCYCLE_POSTGRES_PASS"    envDefault:"fedcycle"`
	PostgresDB      string `env:"FEDCYCLE_POSTGRES_DB"      envDefault:"fedcycle"`
	PostgresSSLMode string `env:"FEDCYCLE_POSTGRES_SSLMODE" envDefault:"disable"`

	SQLitePath string `env:"FEDCYCLE_SQLITE_PATH" envDefault:"./fedcycle.db"`

	BadgerPath string `env:"FEDCYCLE_BADGER_PATH" envDefault:"./data/badger"`
}

type Repositories struct {
	Processes     ProcessRepository
	Checkpoints   CheckpointRepository
	Cycles        CycleRepository
	Workers       WorkerRepository
	WorkerCycles  WorkerCycleRepository
	Participation ParticipationRepository
	// Closer closes the underlying persistent storage connection.
	// It is nil for the in-memory backend.
	Closer io.Closer
}

func NewRepositories(cfg Config) (*Repositories, error) {
	switch cfg.Type {
	case "postgres":
		return newPostgresRepositories(cfg)
	case "sqlite":
		return newSQLiteRepositories(cfg)
	case "badger":
		return newBadgerRepositories(cfg)
	case "memory":
		return NewMemoryRepositories(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func newPostgresRepositories(cfg Config) (*Repositories, error) {
	db, err := postgres.NewDatabase(
		cfg.PostgresHost,
		cfg.PostgresPort,
		cfg.PostgresUser,
		cfg.PostgresPass,
		cfg.PostgresDB,
		cfg.PostgresSSLMode,
	)
	if err != nil {
		return nil, err
	}

	return FromSQL(postgres.NewRepositories(db), db), nil
}

func newSQLiteRepositories(cfg Config) (*Repositories, error) {
	db, err := sqlite.NewDatabase(cfg.SQLitePath)
	if err != nil {
		return nil, err
	}

	return FromSQL(sqlite.NewRepositories(db), db), nil
}

func newBadgerRepositories(cfg Config) (*Repositories, error) {
	db, err := badger.NewDatabase(cfg.BadgerPath)
	if err != nil {
		return nil, err
	}

	return FromBadger(badger.NewRepositories(db), db), nil
}

func FromSQL(repos *sqldb.Repositories, closer io.Closer) *Repositories {
	return &Repositories{
		Processes:     repos.Processes,
		Checkpoints:   repos.Checkpoints,
		Cycles:        repos.Cycles,
		Workers:       repos.Workers,
		WorkerCycles:  repos.WorkerCycles,
		Participation: repos.Participation,
		Closer:        closer,
	}
}

func FromBadger(repos *badger.Repositories, closer io.Closer) *Repositories {
	return &Repositories{
		Processes:     repos.Processes,
		Checkpoints:   repos.Checkpoints,
		Cycles:        repos.Cycles,
		Workers:       repos.Workers,
		WorkerCycles:  repos.WorkerCycles,
		Participation: repos.Participation,
		Closer:        closer,
	}
}

func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Processes:     newMemoryProcessRepository(NewInMemoryStorage()),
		Checkpoints:   newMemoryCheckpointRepository(NewInMemoryStorage()),
		Cycles:        newMemoryCycleRepository(NewInMemoryStorage()),
		Workers:       newMemoryWorkerRepository(NewInMemoryStorage()),
		WorkerCycles:  newMemoryWorkerCycleRepository(NewInMemoryStorage()),
		Participation: newMemoryParticipationRepository(NewInMemoryStorage()),
	}
}
