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

type CycleRepository struct {
	repo
}

type dbCycle struct {
	ID               string    `db:"id"`
	ProcessID        string    `db:"process_id"`
	ModelID          string    `db:"model_id"`
	Version          uint64    `db:"version"`
	Sequence         uint64    `db:"seq"`
	Start            time.Time `db:"start_at"`
	End              time.Time `db:"end_at"`
	MaxWorkers       uint64    `db:"max_workers"`
	MinWorkers       uint64    `db:"min_workers"`
	Status           string    `db:"status"`
	CheckpointNumber uint64    `db:"checkpoint_number"`
	Error            string    `db:"error"`
}

const cycleColumns = `id, process_id, model_id, version, seq, start_at, end_at, max_workers, min_workers, status, checkpoint_number, error`

func (r *CycleRepository) Create(ctx context.Context, c fl.Cycle) error {
	query := `INSERT INTO cycles (` + cycleColumns + `)
		VALUES (:id, :process_id, :model_id, :version, :seq, :start_at, :end_at, :max_workers, :min_workers, :status, :checkpoint_number, :error)`
	if _, err := r.db.NamedExecContext(ctx, query, toDBCycle(c)); err != nil {
		if r.unique(err) {
			return pkgerrors.ErrConflict
		}

		return r.wrap(ErrCreate, err)
	}

	return nil
}

func (r *CycleRepository) Get(ctx context.Context, id string) (fl.Cycle, error) {
	return r.getOne(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE id = ?`, id)
}

func (r *CycleRepository) Latest(ctx context.Context, modelID string) (fl.Cycle, error) {
	return r.getOne(ctx, `SELECT `+cycleColumns+` FROM cycles WHERE model_id = ? ORDER BY seq DESC LIMIT 1`, modelID)
}

func (r *CycleRepository) getOne(ctx context.Context, query string, args ...any) (fl.Cycle, error) {
	var dbc dbCycle
	if err := r.db.GetContext(ctx, &dbc, r.q(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fl.Cycle{}, pkgerrors.ErrNotFound
		}

		return fl.Cycle{}, r.wrap(ErrDBQuery, err)
	}

	return dbc.toCycle(), nil
}

func (r *CycleRepository) Update(ctx context.Context, c fl.Cycle) error {
	query := `UPDATE cycles SET end_at = :end_at, status = :status, checkpoint_number = :checkpoint_number, error = :error WHERE id = :id`
	res, err := r.db.NamedExecContext(ctx, query, toDBCycle(c))
	if err != nil {
		return r.wrap(ErrUpdate, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return pkgerrors.ErrNotFound
	}

	return nil
}

func (r *CycleRepository) ListByStatus(ctx context.Context, statuses ...fl.CycleStatus) ([]fl.Cycle, error) {
	if len(statuses) == 0 {
		return []fl.Cycle{}, nil
	}

	names := make([]string, len(statuses))
	for i, s := range statuses {
		names[i] = string(s)
	}

	query, args, err := sqlx.In(`SELECT `+cycleColumns+` FROM cycles WHERE status IN (?) ORDER BY start_at`, names)
	if err != nil {
		return nil, r.wrap(ErrDBQuery, err)
	}

	var rows []dbCycle
	if err := r.db.SelectContext(ctx, &rows, r.q(query), args...); err != nil {
		return nil, r.wrap(ErrDBQuery, err)
	}

	cycles := make([]fl.Cycle, len(rows))
	for i, row := range rows {
		cycles[i] = row.toCycle()
	}

	return cycles, nil
}

func toDBCycle(c fl.Cycle) dbCycle {
	return dbCycle{
		ID:               c.ID,
		ProcessID:        c.ProcessID,
		ModelID:          c.ModelID,
		Version:          c.Version,
		Sequence:         c.Sequence,
		Start:            c.Start,
		End:              c.End,
		MaxWorkers:       c.MaxWorkers,
		MinWorkers:       c.MinWorkers,
		Status:           string(c.Status),
		CheckpointNumber: c.CheckpointNumber,
		Error:            c.Error,
	}
}

func (dbc dbCycle) toCycle() fl.Cycle {
	return fl.Cycle{
		ID:               dbc.ID,
		ProcessID:        dbc.ProcessID,
		ModelID:          dbc.ModelID,
		Version:          dbc.Version,
		Sequence:         dbc.Sequence,
		Start:            dbc.Start,
		End:              dbc.End,
		MaxWorkers:       dbc.MaxWorkers,
		MinWorkers:       dbc.MinWorkers,
		Status:           fl.CycleStatus(dbc.Status),
		CheckpointNumber: dbc.CheckpointNumber,
		Error:            dbc.Error,
	}
}
