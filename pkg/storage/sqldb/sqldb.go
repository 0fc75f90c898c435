// Package sqldb implements the coordinator repositories on top of sqlx.
// Queries use '?' placeholders and are rebound for the connected driver,
// so the same repositories serve both SQLite and PostgreSQL.
package sqldb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/jmoiron/sqlx"
)

var (
	ErrDBQuery = errors.New("database query error")
	ErrCreate  = errors.New("create error")
	ErrUpdate  = errors.New("update error")
	ErrDelete  = errors.New("delete error")
	ErrTx      = errors.New("transaction error")
)

// Dialect classifies driver errors that the repositories react to.
type Dialect struct {
	IsUniqueViolation func(error) bool
	IsBusy            func(error) bool
}

type Repositories struct {
	Processes     *ProcessRepository
	Checkpoints   *CheckpointRepository
	Cycles        *CycleRepository
	Workers       *WorkerRepository
	WorkerCycles  *WorkerCycleRepository
	Participation *ParticipationRepository
}

func NewRepositories(db *sqlx.DB, d Dialect) *Repositories {
	base := repo{db: db, dialect: d}

	return &Repositories{
		Processes:     &ProcessRepository{base},
		Checkpoints:   &CheckpointRepository{base},
		Cycles:        &CycleRepository{base},
		Workers:       &WorkerRepository{base},
		WorkerCycles:  &WorkerCycleRepository{base},
		Participation: &ParticipationRepository{base},
	}
}

type repo struct {
	db      *sqlx.DB
	dialect Dialect
}

func (r repo) q(query string) string {
	return r.db.Rebind(query)
}

func (r repo) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return r.wrap(ErrTx, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return r.wrap(ErrTx, err)
	}

	return nil
}

// wrap tags contention as transient so callers may retry.
func (r repo) wrap(kind, err error) error {
	if r.dialect.IsBusy != nil && r.dialect.IsBusy(err) {
		return fmt.Errorf("%w: %w: %w", pkgerrors.ErrTransient, kind, err)
	}

	return fmt.Errorf("%w: %w", kind, err)
}

func (r repo) unique(err error) bool {
	return r.dialect.IsUniqueViolation != nil && r.dialect.IsUniqueViolation(err)
}

func clampLimit(limit uint64) uint64 {
	if limit > math.MaxInt64 {
		return math.MaxInt64
	}

	return limit
}

func jsonBytes(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}

	return json.Marshal(v)
}

func jsonUnmarshal(data []byte, v any) error {
	if len(data) == 0 {
		return nil
	}

	return json.Unmarshal(data, v)
}
