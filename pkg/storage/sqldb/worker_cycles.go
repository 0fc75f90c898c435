package sqldb

import (
	"context"
	"database/sql"
	"errors"
	"time"

	pkgerrors "github.com/absmach/fedcycle/pkg/errors"
	"github.com/absmach/fedcycle/pkg/fl"
	"github.com/jmoiron/sqlx"
)

type WorkerCycleRepository struct {
	repo
}

type dbWorkerCycle struct {
	WorkerID    string     `db:"worker_id"`
	CycleID     string     `db:"cycle_id"`
	RequestKey  string     `db:"request_key"`
	JoinedAt    time.Time  `db:"joined_at"`
	Diff        []byte     `db:"diff"`
	CompletedAt *time.Time `db:"completed_at"`
}

const workerCycleColumns = `worker_id, cycle_id, request_key, joined_at, diff, completed_at`

func (r *WorkerCycleRepository) Create(ctx context.Context, wc fl.WorkerCycle) error {
	if wc.RequestKey == "" {
		return pkgerrors.ErrEmptyKey
	}

	query := `INSERT INTO worker_cycles (` + workerCycleColumns + `)
		VALUES (:worker_id, :cycle_id, :request_key, :joined_at, :diff, :completed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, toDBWorkerCycle(wc)); err != nil {
		if r.unique(err) {
			return pkgerrors.ErrEntityExists
		}

		return r.wrap(ErrCreate, err)
	}

	return nil
}

func (r *WorkerCycleRepository) Get(ctx context.Context, workerID, cycleID string) (fl.WorkerCycle, error) {
	return r.getOne(ctx, r.db, `SELECT `+workerCycleColumns+` FROM worker_cycles WHERE worker_id = ? AND cycle_id = ?`, workerID, cycleID)
}

func (r *WorkerCycleRepository) GetByKey(ctx context.Context, requestKey string) (fl.WorkerCycle, error) {
	return r.getOne(ctx, r.db, `SELECT `+workerCycleColumns+` FROM worker_cycles WHERE request_key = ?`, requestKey)
}

func (r *WorkerCycleRepository) getOne(ctx context.Context, q sqlx.QueryerContext, query string, args ...any) (fl.WorkerCycle, error) {
	var row dbWorkerCycle
	if err := sqlx.GetContext(ctx, q, &row, r.q(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.WorkerCycle{}, pkgerrors.ErrNotFound
		}

		return fl.WorkerCycle{}, r.wrap(ErrDBQuery, err)
	}

	return row.toWorkerCycle(), nil
}

func (r *WorkerCycleRepository) Consume(ctx context.Context, requestKey string, diff []byte, at time.Time) (fl.WorkerCycle, error) {
	var wc fl.WorkerCycle
	err := r.withTx(ctx, func(tx *sqlx.Tx) error {
		query := r.q(`UPDATE worker_cycles SET diff = ?, completed_at = ? WHERE request_key = ? AND completed_at IS NULL`)
		res, err := tx.ExecContext(ctx, query, diff, at, requestKey)
		if err != nil {
			return r.wrap(ErrUpdate, err)
		}

		wc, err = r.getOne(ctx, tx, `SELECT `+workerCycleColumns+` FROM worker_cycles WHERE request_key = ?`, requestKey)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return pkgerrors.ErrKeyConsumed
		}

		return nil
	})
	if err != nil {
		return fl.WorkerCycle{}, err
	}

	return wc, nil
}

func (r *WorkerCycleRepository) ListByCycle(ctx context.Context, cycleID string) ([]fl.WorkerCycle, error) {
	var rows []dbWorkerCycle
	query := r.q(`SELECT ` + workerCycleColumns + ` FROM worker_cycles WHERE cycle_id = ? ORDER BY joined_at`)
	if err := r.db.SelectContext(ctx, &rows, query, cycleID); err != nil {
		return nil, r.wrap(ErrDBQuery, err)
	}

	wcs := make([]fl.WorkerCycle, len(rows))
	for i, row := range rows {
		wcs[i] = row.toWorkerCycle()
	}

	return wcs, nil
}

func toDBWorkerCycle(wc fl.WorkerCycle) dbWorkerCycle {
	row := dbWorkerCycle{
		WorkerID:   wc.WorkerID,
		CycleID:    wc.CycleID,
		RequestKey: wc.RequestKey,
		JoinedAt:   wc.JoinedAt,
		Diff:       wc.Diff,
	}
	if wc.Completed() {
		at := wc.CompletedAt
		row.CompletedAt = &at
	}

	return row
}

func (row dbWorkerCycle) toWorkerCycle() fl.WorkerCycle {
	wc := fl.WorkerCycle{
		WorkerID:   row.WorkerID,
		CycleID:    row.CycleID,
		RequestKey: row.RequestKey,
		JoinedAt:   row.JoinedAt,
		Diff:       row.Diff,
	}
	if row.CompletedAt != nil {
		wc.CompletedAt = *row.CompletedAt
	}

	return wc
}
